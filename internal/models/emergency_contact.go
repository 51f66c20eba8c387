package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// 联系人通知方式标签
const (
	MethodInApp     = "in_app"
	MethodSMS       = "sms"
	MethodWhatsApp  = "whatsapp"
	MethodPhoneCall = "phone_call"
)

// MethodList 通知方式集合，列内按逗号存储
type MethodList []string

func (m MethodList) Value() (driver.Value, error) {
	return strings.Join(m, ","), nil
}

func (m *MethodList) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*m = nil
	case string:
		if v == "" {
			*m = nil
		} else {
			*m = strings.Split(v, ",")
		}
	case []byte:
		return m.Scan(string(v))
	default:
		return fmt.Errorf("unsupported method list type %T", value)
	}
	return nil
}

// Has 是否包含某个通知方式
func (m MethodList) Has(method string) bool {
	for _, v := range m {
		if v == method {
			return true
		}
	}
	return false
}

// EmergencyContact 紧急联系人。IsConfirmed 由双向确认流程维护，
// 这里只读消费。
type EmergencyContact struct {
	ID               uint       `json:"id" gorm:"primaryKey"`
	OwnerUserID      uint       `json:"ownerUserId" gorm:"index"`
	ContactName      string     `json:"contactName" gorm:"size:64"`
	PhoneNumber      string     `json:"phoneNumber" gorm:"size:32"`
	PreferredMethods MethodList `json:"preferredMethods" gorm:"type:text"`
	IsConfirmed      bool       `json:"isConfirmed"`
	CreatedAt        time.Time  `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt        time.Time  `json:"updatedAt" gorm:"autoUpdateTime"`
}

// CreateEmergencyContact 创建紧急联系人
func CreateEmergencyContact(db *gorm.DB, contact *EmergencyContact) error {
	return db.Create(contact).Error
}

// ListEmergencyContacts 取某用户的全部紧急联系人
func ListEmergencyContacts(db *gorm.DB, ownerUserID uint) ([]EmergencyContact, error) {
	var contacts []EmergencyContact
	if err := db.Where("owner_user_id = ?", ownerUserID).Find(&contacts).Error; err != nil {
		return nil, err
	}
	return contacts, nil
}

// GetEmergencyContact 获取单个联系人（限定归属用户）
func GetEmergencyContact(db *gorm.DB, ownerUserID, id uint) (*EmergencyContact, error) {
	var contact EmergencyContact
	if err := db.Where("owner_user_id = ? AND id = ?", ownerUserID, id).
		First(&contact).Error; err != nil {
		return nil, err
	}
	return &contact, nil
}

// UpdateEmergencyContact 更新联系人信息
func UpdateEmergencyContact(db *gorm.DB, contact *EmergencyContact) error {
	return db.Save(contact).Error
}

// DeleteEmergencyContact 删除联系人
func DeleteEmergencyContact(db *gorm.DB, ownerUserID, id uint) error {
	return db.Where("owner_user_id = ? AND id = ?", ownerUserID, id).
		Delete(&EmergencyContact{}).Error
}

// IsConfirmedContactOf 判断 actor 是否为 owner 的已确认紧急联系人。
// 以联系人登记的手机号反查 actor 账号。
func IsConfirmedContactOf(db *gorm.DB, ownerUserID, actorID uint) (bool, error) {
	actor, err := GetUserByID(db, actorID)
	if err != nil {
		return false, err
	}
	var count int64
	err = db.Model(&EmergencyContact{}).
		Where("owner_user_id = ? AND phone_number = ? AND is_confirmed = ?",
			ownerUserID, actor.Phone, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
