package listeners

import (
	"errors"

	"NeighborSafe/internal/models"
	"NeighborSafe/internal/service"
	"NeighborSafe/pkg/logger"
	"NeighborSafe/pkg/metrics"
	"NeighborSafe/pkg/sse"
	"NeighborSafe/pkg/util"
	"NeighborSafe/pkg/websocket"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InitChangeListeners 把行变更信号接到推送通道。
// 每张表一个分组，客户端按表名订阅。
func InitChangeListeners(hub *websocket.Hub, sseHub *sse.Hub) {
	util.Sig().Connect(models.SigRowChanged, func(sender any, params ...any) {
		ev, ok := sender.(*models.ChangeEvent)
		if !ok {
			return
		}
		if hub != nil {
			hub.BroadcastChange(ev.Table, ev)
		}
		if sseHub != nil {
			sseHub.PublishChange(ev.Table, ev)
		}
	})
}

// InitCascadeListeners 求助事件解除后，把状态同步到关联的社区警报。
// 在信号处理器里同步执行，调用方返回前级联已落库。
func InitCascadeListeners(db *gorm.DB, m *metrics.Metrics) {
	util.Sig().Connect(models.SigPanicResolved, func(sender any, params ...any) {
		event, ok := sender.(*models.PanicEvent)
		if !ok || len(params) < 2 {
			return
		}
		actorID, ok := params[0].(uint)
		if !ok {
			return
		}
		targetStatus, ok := params[1].(string)
		if !ok {
			return
		}

		alert, err := models.FindLinkedSafetyAlert(db, event.UserID, event.CreatedAt, service.DefaultCorrelationWindow)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				logger.Warn("cascade lookup failed", zap.String("event", event.ID), zap.Error(err))
			}
			return
		}
		if alert.Status == targetStatus {
			return
		}
		if err := models.SetSafetyAlertStatus(db, alert, targetStatus, actorID); err != nil {
			logger.Warn("cascade status update failed",
				zap.String("event", event.ID), zap.String("alert", alert.ID), zap.Error(err))
			return
		}
		if m != nil {
			m.RecordCascade()
		}
		logger.Info("linked alert status cascaded",
			zap.String("event", event.ID), zap.String("alert", alert.ID), zap.String("status", targetStatus))
	})
}

// InitMetricsListeners 业务指标挂到领域信号上
func InitMetricsListeners(m *metrics.Metrics) {
	if m == nil {
		return
	}
	util.Sig().Connect(models.SigPanicCreated, func(sender any, params ...any) {
		if event, ok := sender.(*models.PanicEvent); ok {
			m.RecordPanicEvent(event.SituationType)
		}
	})
}
