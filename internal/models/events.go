package models

import (
	"time"

	"NeighborSafe/pkg/util"
)

// 变更流信号。每次对三张警报相关表的提交写入都会发出一条
// ChangeEvent，由监听器转发到 websocket/SSE 通道。
const (
	SigRowChanged = "row.changed"

	SigPanicCreated  = "panic.created"
	SigPanicResolved = "panic.resolved"
)

// 逻辑表名，同时也是推送通道（组）名
const (
	TableSafetyAlerts   = "safety_alerts"
	TablePanicEvents    = "panic_events"
	TableAlertResponses = "alert_responses"
)

// 变更类型
const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
)

// ChangeEvent 一次行级变更。UPDATE 的 Payload 只携带变更字段的
// 浅合并补丁，订阅端对 INSERT 需要回查完整行。
type ChangeEvent struct {
	Table     string         `json:"table"`
	Type      string         `json:"type"`
	RowID     string         `json:"rowId"`
	Payload   map[string]any `json:"payload,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// EmitChange 发布行级变更事件
func EmitChange(table, changeType, rowID string, payload map[string]any, updatedAt time.Time) {
	util.Sig().Emit(SigRowChanged, &ChangeEvent{
		Table:     table,
		Type:      changeType,
		RowID:     rowID,
		Payload:   payload,
		UpdatedAt: updatedAt,
	})
}
