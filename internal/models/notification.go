package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 通知类型
const (
	NotificationTypePanicAlert = "panic_alert"
)

// Notification 站内通知。派发字段在创建后不再变更，
// Read/ReadAt 是展示层的已读回执。
type Notification struct {
	ID               string     `json:"id" gorm:"primaryKey;size:36"`
	RecipientID      uint       `json:"recipientId" gorm:"index"`
	PanicEventID     string     `json:"panicEventId" gorm:"size:36;index"`
	NotificationType string     `json:"notificationType" gorm:"size:32"`
	Read             bool       `json:"read"`
	ReadAt           *time.Time `json:"readAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt" gorm:"autoCreateTime"`
}

// BulkCreateNotifications 批量写入通知，一次扇出一批
func BulkCreateNotifications(db *gorm.DB, notifications []Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	for i := range notifications {
		if notifications[i].ID == "" {
			notifications[i].ID = uuid.NewString()
		}
	}
	return db.Create(&notifications).Error
}

// ListNotifications 按接收者倒序取通知
func ListNotifications(db *gorm.DB, recipientID uint, limit int) ([]Notification, error) {
	var notifications []Notification
	if err := db.Where("recipient_id = ?", recipientID).
		Order("created_at DESC").Limit(limit).Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

// CountUnreadNotifications 未读数
func CountUnreadNotifications(db *gorm.DB, recipientID uint) (int64, error) {
	var count int64
	err := db.Model(&Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}

// MarkNotificationRead 标记单条已读
func MarkNotificationRead(db *gorm.DB, recipientID uint, id string) error {
	now := time.Now()
	return db.Model(&Notification{}).
		Where("recipient_id = ? AND id = ?", recipientID, id).
		Updates(map[string]any{"read": true, "read_at": now}).Error
}

// MarkAllNotificationsRead 全部标记已读
func MarkAllNotificationsRead(db *gorm.DB, recipientID uint) error {
	now := time.Now()
	return db.Model(&Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Updates(map[string]any{"read": true, "read_at": now}).Error
}

// CountNotificationsByPanicEvent 某次求助的扇出通知数
func CountNotificationsByPanicEvent(db *gorm.DB, panicEventID string) (int64, error) {
	var count int64
	err := db.Model(&Notification{}).
		Where("panic_event_id = ?", panicEventID).
		Count(&count).Error
	return count, err
}
