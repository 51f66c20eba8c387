package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"NeighborSafe/pkg/util"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	SigUserCreate = "user.create"

	sessionUserID = "user_id"
	ctxUserKey    = "current_user"
	ctxDBKey      = "db"
)

// User 注册用户（认证/会话属于外部协作者，这里只保留权限判定需要的最小字段）
type User struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	Phone       string     `json:"phone" gorm:"size:32;uniqueIndex"`
	Email       string     `json:"email" gorm:"size:128;index"`
	Password    string     `json:"-" gorm:"size:128"`
	Salt        string     `json:"-" gorm:"size:32"`
	DisplayName string     `json:"displayName" gorm:"size:64"`
	IsModerator bool       `json:"isModerator"` // 社区管理员，可变更任意警报状态
	Enabled     bool       `json:"enabled" gorm:"default:true"`
	LastLogin   *time.Time `json:"lastLogin,omitempty"`
	CreatedAt   time.Time  `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updatedAt" gorm:"autoUpdateTime"`
}

// HashPassword 加盐哈希
func HashPassword(password, salt string) string {
	sum := sha256.Sum256([]byte(salt + password))
	return hex.EncodeToString(sum[:])
}

func newSalt() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// CreateUser 创建用户并发出 SigUserCreate 信号
func CreateUser(db *gorm.DB, phone, email, password, displayName string) (*User, error) {
	salt := newSalt()
	user := &User{
		Phone:       phone,
		Email:       email,
		Salt:        salt,
		Password:    HashPassword(password, salt),
		DisplayName: displayName,
		Enabled:     true,
	}
	if err := db.Create(user).Error; err != nil {
		return nil, err
	}
	util.Sig().Emit(SigUserCreate, user)
	return user, nil
}

// GetUserByPhone 按手机号查找用户
func GetUserByPhone(db *gorm.DB, phone string) (*User, error) {
	var user User
	if err := db.Where("phone = ?", phone).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func GetUserByID(db *gorm.DB, id uint) (*User, error) {
	var user User
	if err := db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// CheckPassword 校验密码
func (u *User) CheckPassword(password string) bool {
	return u.Password == HashPassword(password, u.Salt)
}

// Login 将用户写入会话
func Login(c *gin.Context, user *User) error {
	session := sessions.Default(c)
	session.Set(sessionUserID, user.ID)
	return session.Save()
}

// Logout 清空会话
func Logout(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	return session.Save()
}

// CurrentUser 从会话加载当前用户，未登录返回 nil
func CurrentUser(c *gin.Context) *User {
	if cached, ok := c.Get(ctxUserKey); ok {
		return cached.(*User)
	}
	session := sessions.Default(c)
	uid, ok := session.Get(sessionUserID).(uint)
	if !ok {
		return nil
	}
	db := c.MustGet(ctxDBKey).(*gorm.DB)
	user, err := GetUserByID(db, uid)
	if err != nil || !user.Enabled {
		return nil
	}
	c.Set(ctxUserKey, user)
	return user
}

// AuthRequired 认证中间件
func AuthRequired(c *gin.Context) {
	if CurrentUser(c) == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}
