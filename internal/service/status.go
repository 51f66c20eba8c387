package service

import (
	"context"

	"NeighborSafe/internal/models"
	"NeighborSafe/pkg/errors"
	"NeighborSafe/pkg/util"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StatusService 警报状态变更的唯一入口。
// 职责：
// 1. 权限校验（所有者 / 社区管理员 / 已确认紧急联系人）
// 2. 状态值与迁移校验
// 3. 进入 resolved 时盖解除/核实戳
// 4. 同状态重复提交幂等放行
type StatusService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewStatusService(db *gorm.DB, logger *zap.Logger) *StatusService {
	return &StatusService{db: db, logger: logger}
}

// UpdateSafetyAlertStatus 变更社区警报状态。
// 返回更新后的警报，changed=false 表示同状态重复提交（幂等空操作）。
func (s *StatusService) UpdateSafetyAlertStatus(
	ctx context.Context,
	alertID, newStatus string,
	actingUserID uint,
) (*models.SafetyAlert, bool, error) {
	if !models.IsValidStatus(newStatus) {
		return nil, false, errors.Validation("invalid status: %s", newStatus)
	}

	alert, err := models.GetSafetyAlert(s.db.WithContext(ctx), alertID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, errors.NotFound("safety alert %s not found", alertID)
		}
		return nil, false, errors.Wrapf(err, "load safety alert %s", alertID)
	}

	if err := s.checkAlertPermission(ctx, alert, actingUserID); err != nil {
		return nil, false, err
	}

	// 同状态重复提交：成功返回但不落任何写
	if alert.Status == newStatus {
		return alert, false, nil
	}

	if !models.CanTransition(alert.Status, newStatus) {
		return nil, false, errors.Validation("transition %s -> %s not allowed", alert.Status, newStatus)
	}

	if err := models.SetSafetyAlertStatus(s.db.WithContext(ctx), alert, newStatus, actingUserID); err != nil {
		return nil, false, errors.Wrapf(err, "update safety alert %s status", alertID)
	}

	s.logger.Info("safety alert status updated",
		zap.String("alert_id", alertID),
		zap.String("status", newStatus),
		zap.Uint("actor", actingUserID),
	)
	return alert, true, nil
}

// ResolvePanicEvent 解除/误报求助事件。targetStatus 只接受终态
// （resolved / false_alarm），用于向关联警报级联时保留语义。
// 返回 changed=false 表示事件已处于解除状态。
func (s *StatusService) ResolvePanicEvent(
	ctx context.Context,
	eventID string,
	targetStatus string,
	actingUserID uint,
) (*models.PanicEvent, bool, error) {
	if targetStatus != models.StatusResolved && targetStatus != models.StatusFalseAlarm {
		return nil, false, errors.Validation("panic events only accept terminal statuses, got %s", targetStatus)
	}

	event, err := models.GetPanicEvent(s.db.WithContext(ctx), eventID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, errors.NotFound("panic event %s not found", eventID)
		}
		return nil, false, errors.Wrapf(err, "load panic event %s", eventID)
	}

	if err := s.checkPanicPermission(ctx, event, actingUserID); err != nil {
		return nil, false, err
	}

	if event.IsResolved {
		return event, false, nil
	}

	if err := models.SetPanicResolution(s.db.WithContext(ctx), event, true, actingUserID); err != nil {
		return nil, false, errors.Wrapf(err, "resolve panic event %s", eventID)
	}

	s.logger.Info("panic event resolved",
		zap.String("event_id", eventID),
		zap.String("target_status", targetStatus),
		zap.Uint("actor", actingUserID),
	)

	// 关联警报的状态级联由监听器异步完成（最终一致）
	util.Sig().Emit(models.SigPanicResolved, event, actingUserID, targetStatus)
	return event, true, nil
}

func (s *StatusService) checkAlertPermission(ctx context.Context, alert *models.SafetyAlert, actorID uint) error {
	if alert.UserID == actorID {
		return nil
	}
	actor, err := models.GetUserByID(s.db.WithContext(ctx), actorID)
	if err != nil {
		return errors.Permission("actor %d not found", actorID)
	}
	if actor.IsModerator {
		return nil
	}
	return errors.Permission("user %d may not update alert %s", actorID, alert.ID)
}

func (s *StatusService) checkPanicPermission(ctx context.Context, event *models.PanicEvent, actorID uint) error {
	if event.UserID == actorID {
		return nil
	}
	actor, err := models.GetUserByID(s.db.WithContext(ctx), actorID)
	if err != nil {
		return errors.Permission("actor %d not found", actorID)
	}
	if actor.IsModerator {
		return nil
	}
	confirmed, err := models.IsConfirmedContactOf(s.db.WithContext(ctx), event.UserID, actorID)
	if err != nil {
		s.logger.Warn("contact check failed", zap.Error(err))
	}
	if confirmed {
		return nil
	}
	return errors.Permission("user %d may not resolve panic event %s", actorID, event.ID)
}
