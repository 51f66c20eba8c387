package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 社区警报类型
const (
	AlertTypeBreakIn     = "break_in"
	AlertTypeTheft       = "theft"
	AlertTypeAccident    = "accident"
	AlertTypeSuspicious  = "suspicious_activity"
	AlertTypeHarassment  = "harassment"
	AlertTypeFire        = "fire"
	AlertTypeFlood       = "flood"
	AlertTypePowerOutage = "power_outage"
	AlertTypeRoadClosure = "road_closure"
	AlertTypeOther       = "other"
)

// 严重程度，critical 最高
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// 警报状态
const (
	StatusActive        = "active"
	StatusInvestigating = "investigating"
	StatusResolved      = "resolved"
	StatusFalseAlarm    = "false_alarm"
)

var validAlertTypes = map[string]bool{
	AlertTypeBreakIn: true, AlertTypeTheft: true, AlertTypeAccident: true,
	AlertTypeSuspicious: true, AlertTypeHarassment: true, AlertTypeFire: true,
	AlertTypeFlood: true, AlertTypePowerOutage: true, AlertTypeRoadClosure: true,
	AlertTypeOther: true,
}

var validSeverities = map[string]bool{
	SeverityLow: true, SeverityMedium: true, SeverityHigh: true, SeverityCritical: true,
}

var validStatuses = map[string]bool{
	StatusActive: true, StatusInvestigating: true, StatusResolved: true,
	StatusFalseAlarm: true,
}

func IsValidAlertType(t string) bool { return validAlertTypes[t] }
func IsValidSeverity(s string) bool  { return validSeverities[s] }
func IsValidStatus(s string) bool    { return validStatuses[s] }

// CanTransition 状态迁移校验。四个状态间的迁移当前不受限制，
// 仅拒绝未知状态值；收紧迁移表时只需改这里。
func CanTransition(from, to string) bool {
	return validStatuses[from] && validStatuses[to]
}

// SafetyAlert 社区可见的事件警报。VerifiedAt/VerifiedBy 在状态首次
// 进入 resolved 时成对写入，此后不再清除。
type SafetyAlert struct {
	ID          string     `json:"id" gorm:"primaryKey;size:36"`
	UserID      uint       `json:"userId" gorm:"index"`
	Title       string     `json:"title" gorm:"size:256"`
	Description string     `json:"description" gorm:"size:2048"`
	AlertType   string     `json:"alertType" gorm:"size:32;index"`
	Severity    string     `json:"severity" gorm:"size:16;index"`
	Status      string     `json:"status" gorm:"size:16;index"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	Address     string     `json:"address,omitempty" gorm:"size:256"`
	IsVerified  bool       `json:"isVerified"`
	VerifiedAt  *time.Time `json:"verifiedAt,omitempty"`
	VerifiedBy  *uint      `json:"verifiedBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt" gorm:"autoCreateTime;index"`
	UpdatedAt   time.Time  `json:"updatedAt" gorm:"autoUpdateTime"`
}

// AlertResponse 状态变更留言，只追加，从不修改
type AlertResponse struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	AlertID      string    `json:"alertId" gorm:"size:36;index"`
	UserID       uint      `json:"userId"`
	ResponseType string    `json:"responseType" gorm:"size:32"`
	Comment      string    `json:"comment" gorm:"size:1024"`
	CreatedAt    time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

// AlertFilters 列表过滤条件，realtime 推送的 INSERT 也必须重新过这组条件
type AlertFilters struct {
	AlertType *string
	Severity  *string
	Status    *string
}

// Match 判断一条警报是否满足过滤条件
func (f AlertFilters) Match(a *SafetyAlert) bool {
	if f.AlertType != nil && a.AlertType != *f.AlertType {
		return false
	}
	if f.Severity != nil && a.Severity != *f.Severity {
		return false
	}
	if f.Status != nil && a.Status != *f.Status {
		return false
	}
	return true
}

// CreateSafetyAlert 创建社区警报
func CreateSafetyAlert(db *gorm.DB, alert *SafetyAlert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Status == "" {
		alert.Status = StatusActive
	}
	if err := db.Create(alert).Error; err != nil {
		return err
	}
	EmitChange(TableSafetyAlerts, ChangeInsert, alert.ID, nil, alert.CreatedAt)
	return nil
}

// GetSafetyAlert 获取单条警报
func GetSafetyAlert(db *gorm.DB, id string) (*SafetyAlert, error) {
	var alert SafetyAlert
	if err := db.First(&alert, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

// ListSafetyAlerts 按过滤条件倒序取警报列表
func ListSafetyAlerts(db *gorm.DB, filters AlertFilters, limit int) ([]SafetyAlert, error) {
	q := db.Model(&SafetyAlert{})
	if filters.AlertType != nil {
		q = q.Where("alert_type = ?", *filters.AlertType)
	}
	if filters.Severity != nil {
		q = q.Where("severity = ?", *filters.Severity)
	}
	if filters.Status != nil {
		q = q.Where("status = ?", *filters.Status)
	}
	var alerts []SafetyAlert
	if err := q.Order("created_at DESC").Limit(limit).Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

// FindLinkedSafetyAlert 在时间窗口内查找同一用户最近创建的警报，
// 用于求助侧状态向社区警报的级联
func FindLinkedSafetyAlert(db *gorm.DB, userID uint, panicCreatedAt time.Time, window time.Duration) (*SafetyAlert, error) {
	var alert SafetyAlert
	err := db.Where("user_id = ? AND created_at BETWEEN ? AND ?",
		userID, panicCreatedAt.Add(-window), panicCreatedAt.Add(window)).
		Order("created_at DESC").
		First(&alert).Error
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// SetSafetyAlertStatus 写入状态并在进入 resolved 时盖核实戳。
// 调用方负责权限与迁移校验。
func SetSafetyAlertStatus(db *gorm.DB, alert *SafetyAlert, newStatus string, actorID uint) error {
	now := time.Now()
	updates := map[string]any{"status": newStatus, "updated_at": now}
	prev := alert.Status
	alert.Status = newStatus
	alert.UpdatedAt = now
	// 首次进入 resolved 时成对写入核实字段，从不回退清除
	if newStatus == StatusResolved && prev != StatusResolved {
		alert.IsVerified = true
		alert.VerifiedAt = &now
		alert.VerifiedBy = &actorID
		updates["is_verified"] = true
		updates["verified_at"] = now
		updates["verified_by"] = actorID
	}
	if err := db.Model(&SafetyAlert{}).Where("id = ?", alert.ID).Updates(updates).Error; err != nil {
		return err
	}
	patch := map[string]any{"status": newStatus, "updatedAt": now}
	if alert.VerifiedAt != nil {
		patch["isVerified"] = alert.IsVerified
		patch["verifiedAt"] = alert.VerifiedAt
		patch["verifiedBy"] = alert.VerifiedBy
	}
	EmitChange(TableSafetyAlerts, ChangeUpdate, alert.ID, patch, now)
	return nil
}

// AppendAlertResponse 追加一条状态留言
func AppendAlertResponse(db *gorm.DB, alertID string, userID uint, responseType, comment string) (*AlertResponse, error) {
	resp := &AlertResponse{
		ID:           uuid.NewString(),
		AlertID:      alertID,
		UserID:       userID,
		ResponseType: responseType,
		Comment:      comment,
	}
	if err := db.Create(resp).Error; err != nil {
		return nil, err
	}
	EmitChange(TableAlertResponses, ChangeInsert, resp.ID, nil, resp.CreatedAt)
	return resp, nil
}

// ListAlertResponses 取某条警报的全部留言
func ListAlertResponses(db *gorm.DB, alertID string) ([]AlertResponse, error) {
	var responses []AlertResponse
	if err := db.Where("alert_id = ?", alertID).
		Order("created_at ASC").Find(&responses).Error; err != nil {
		return nil, err
	}
	return responses, nil
}
