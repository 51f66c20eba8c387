package models

import (
	"time"

	"gorm.io/gorm"
)

// OperationLog 警报相关写操作的审计日志
type OperationLog struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"userId" gorm:"index"`
	Action    string    `json:"action" gorm:"size:16"`  // HTTP 方法
	Target    string    `json:"target" gorm:"size:256"` // API 路径
	IPAddress string    `json:"ipAddress" gorm:"size:64"`
	Device    string    `json:"device" gorm:"size:64"`
	Browser   string    `json:"browser" gorm:"size:64"`
	OS        string    `json:"os" gorm:"size:64"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

// CreateOperationLog 落一条审计日志
func CreateOperationLog(db *gorm.DB, log *OperationLog) error {
	return db.Create(log).Error
}
