package service

import (
	"context"
	"fmt"
	"time"

	"NeighborSafe/internal/models"
	"NeighborSafe/pkg/errors"
	"NeighborSafe/pkg/notification"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DispatchResult 一次求助扇出的结果
type DispatchResult struct {
	NotifiedUserIDs []uint              `json:"notifiedUserIds"`
	SkippedContacts int                 `json:"skippedContacts"`
	Alert           *models.SafetyAlert `json:"alert"`
}

// FanoutNotifier 求助触发后的扇出：站内通知每个注册了 in_app 的
// 紧急联系人，异步调用派发边缘函数驱动带外通道，并镜像一条社区
// 警报建立关联窗口。
type FanoutNotifier struct {
	db         *gorm.DB
	dispatcher notification.Dispatcher
	logger     *zap.Logger
}

func NewFanoutNotifier(db *gorm.DB, dispatcher notification.Dispatcher, logger *zap.Logger) *FanoutNotifier {
	return &FanoutNotifier{db: db, dispatcher: dispatcher, logger: logger}
}

// OnPanicTriggered 执行扇出。联系人查询失败和镜像警报写入失败是
// 硬错误；联系人账号解析、站内通知写入、带外派发都是尽力而为，
// 失败只记录。
func (n *FanoutNotifier) OnPanicTriggered(
	ctx context.Context,
	event *models.PanicEvent,
	triggeredBy *models.User,
) (*DispatchResult, error) {
	db := n.db.WithContext(ctx)

	// 1. 联系人查询失败则整个调用失败
	contacts, err := models.ListEmergencyContacts(db, event.UserID)
	if err != nil {
		return nil, errors.Dependency(err, "load emergency contacts for user %d", event.UserID)
	}

	// 2-3. 过滤 in_app 标签并按手机号反查注册账号，查不到的跳过
	result := &DispatchResult{}
	var rows []models.Notification
	for _, contact := range contacts {
		if !contact.PreferredMethods.Has(models.MethodInApp) {
			continue
		}
		recipient, err := models.GetUserByPhone(db, contact.PhoneNumber)
		if err != nil {
			result.SkippedContacts++
			continue
		}
		rows = append(rows, models.Notification{
			RecipientID:      recipient.ID,
			PanicEventID:     event.ID,
			NotificationType: models.NotificationTypePanicAlert,
		})
		result.NotifiedUserIDs = append(result.NotifiedUserIDs, recipient.ID)
	}

	// 4. 站内通知批量写入，失败只记录
	if err := models.BulkCreateNotifications(db, rows); err != nil {
		n.logger.Error("notification fanout insert failed",
			zap.String("panic_event_id", event.ID),
			zap.Error(err),
		)
		result.NotifiedUserIDs = nil
	}

	// 5. 带外派发不依赖联系人解析结果，异步执行，结果只用于记录
	n.dispatchAsync(event, triggeredBy)

	// 6. 镜像社区警报：critical/active/未核实。这是关联窗口的
	// 建立写入，也是最后的持久化保障，失败必须上抛。
	alert := &models.SafetyAlert{
		UserID:      event.UserID,
		Title:       fmt.Sprintf("Emergency: %s", event.SituationType),
		Description: event.Message,
		AlertType:   mirrorAlertType(event.SituationType),
		Severity:    models.SeverityCritical,
		Status:      models.StatusActive,
		Latitude:    event.Latitude,
		Longitude:   event.Longitude,
		Address:     event.Address,
	}
	if err := models.CreateSafetyAlert(db, alert); err != nil {
		return nil, errors.Wrapf(err, "create mirrored safety alert for panic %s", event.ID)
	}
	result.Alert = alert

	n.logger.Info("panic fanout completed",
		zap.String("panic_event_id", event.ID),
		zap.Int("notified", len(result.NotifiedUserIDs)),
		zap.Int("skipped", result.SkippedContacts),
		zap.String("alert_id", alert.ID),
	)
	return result, nil
}

// dispatchAsync 独立任务调用边缘函数，结果通过通道回收仅做记录，
// 从不阻塞或影响主写入
func (n *FanoutNotifier) dispatchAsync(event *models.PanicEvent, triggeredBy *models.User) {
	if n.dispatcher == nil {
		return
	}
	pc := &notification.PanicContext{
		PanicEventID:  event.ID,
		UserID:        event.UserID,
		SituationType: event.SituationType,
		Message:       event.Message,
		Latitude:      event.Latitude,
		Longitude:     event.Longitude,
		Address:       event.Address,
	}
	if triggeredBy != nil {
		pc.DisplayName = triggeredBy.DisplayName
	}

	done := make(chan error, 1)
	go func() {
		// 独立于发起方的生命周期：UI 卸载不中止已发出的派发
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		done <- n.dispatcher.DispatchPanic(ctx, pc)
	}()
	go func() {
		if err := <-done; err != nil {
			n.logger.Warn("out-of-band dispatch failed",
				zap.String("panic_event_id", event.ID),
				zap.Error(err),
			)
		}
	}()
}

// mirrorAlertType 求助情形到社区警报类型的映射
func mirrorAlertType(situation string) string {
	switch situation {
	case models.SituationFire:
		return models.AlertTypeFire
	case models.SituationBreakIn:
		return models.AlertTypeBreakIn
	case models.SituationAccident:
		return models.AlertTypeAccident
	case models.SituationSuspicious:
		return models.AlertTypeSuspicious
	default:
		return models.AlertTypeOther
	}
}
