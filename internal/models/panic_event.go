package models

import (
	"time"

	"NeighborSafe/pkg/util"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 求助情形
const (
	SituationMedical          = "medical_emergency"
	SituationFire             = "fire"
	SituationBreakIn          = "break_in"
	SituationAssault          = "assault"
	SituationAccident         = "accident"
	SituationNaturalDisaster  = "natural_disaster"
	SituationSuspicious       = "suspicious_activity"
	SituationDomesticViolence = "domestic_violence"
	SituationKidnapping       = "kidnapping"
	SituationOther            = "other"
)

var validSituations = map[string]bool{
	SituationMedical: true, SituationFire: true, SituationBreakIn: true,
	SituationAssault: true, SituationAccident: true, SituationNaturalDisaster: true,
	SituationSuspicious: true, SituationDomesticViolence: true,
	SituationKidnapping: true, SituationOther: true,
}

// IsValidSituation 是否为合法求助情形
func IsValidSituation(s string) bool { return validSituations[s] }

// PanicEvent 个人求助事件。不变量：IsResolved == (ResolvedAt != nil)，
// ResolvedBy 仅在已解除时非空。
type PanicEvent struct {
	ID            string     `json:"id" gorm:"primaryKey;size:36"`
	UserID        uint       `json:"userId" gorm:"index"`
	SituationType string     `json:"situationType" gorm:"size:32"`
	Message       string     `json:"message,omitempty" gorm:"size:1024"`
	Latitude      float64    `json:"latitude"`
	Longitude     float64    `json:"longitude"`
	Address       string     `json:"address,omitempty" gorm:"size:256"` // 逆地理编码结果，尽力而为
	IsResolved    bool       `json:"isResolved"`
	ResolvedAt    *time.Time `json:"resolvedAt,omitempty"`
	ResolvedBy    *uint      `json:"resolvedBy,omitempty"`
	CreatedAt     time.Time  `json:"createdAt" gorm:"autoCreateTime;index"`
	UpdatedAt     time.Time  `json:"updatedAt" gorm:"autoUpdateTime"`
}

// CreatePanicEvent 创建求助事件
func CreatePanicEvent(db *gorm.DB, event *PanicEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if err := db.Create(event).Error; err != nil {
		return err
	}
	util.Sig().Emit(SigPanicCreated, event)
	EmitChange(TablePanicEvents, ChangeInsert, event.ID, nil, event.CreatedAt)
	return nil
}

// GetPanicEvent 获取单个求助事件
func GetPanicEvent(db *gorm.DB, id string) (*PanicEvent, error) {
	var event PanicEvent
	if err := db.First(&event, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// ListRecentPanicEventsByUser 按创建时间倒序取某用户最近的求助事件
func ListRecentPanicEventsByUser(db *gorm.DB, userID uint, limit int) ([]PanicEvent, error) {
	var events []PanicEvent
	if err := db.Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// SetPanicResolution 写入解除状态并广播变更。调用方负责权限校验，
// 这里维护 IsResolved/ResolvedAt/ResolvedBy 三字段的一致性。
func SetPanicResolution(db *gorm.DB, event *PanicEvent, resolved bool, actorID uint) error {
	now := time.Now()
	updates := map[string]any{"updated_at": now}
	if resolved {
		event.IsResolved = true
		event.ResolvedAt = &now
		event.ResolvedBy = &actorID
		updates["is_resolved"] = true
		updates["resolved_at"] = now
		updates["resolved_by"] = actorID
	} else {
		event.IsResolved = false
		event.ResolvedAt = nil
		event.ResolvedBy = nil
		updates["is_resolved"] = false
		updates["resolved_at"] = nil
		updates["resolved_by"] = nil
	}
	event.UpdatedAt = now
	if err := db.Model(&PanicEvent{}).Where("id = ?", event.ID).Updates(updates).Error; err != nil {
		return err
	}
	patch := map[string]any{
		"isResolved": event.IsResolved,
		"resolvedAt": event.ResolvedAt,
		"resolvedBy": event.ResolvedBy,
		"updatedAt":  now,
	}
	EmitChange(TablePanicEvents, ChangeUpdate, event.ID, patch, now)
	return nil
}
