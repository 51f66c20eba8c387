package service

import (
	"context"
	"fmt"
	"time"

	"NeighborSafe/internal/models"
	"NeighborSafe/pkg/errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 关联窗口与回扫深度的默认值
const (
	DefaultCorrelationWindow   = 5 * time.Minute
	DefaultCorrelationLookback = 10
)

// 更新走了哪条路径
const (
	PathPanic  = "panic"
	PathDirect = "direct"
)

// Outcome 一次状态变更的结果及其路径，供调用方记录观测
type Outcome struct {
	Path       string              `json:"path"`
	Changed    bool                `json:"changed"`
	Alert      *models.SafetyAlert `json:"alert,omitempty"`
	PanicEvent *models.PanicEvent  `json:"panicEvent,omitempty"`
}

// CorrelationResolver 把针对社区警报的状态变更请求按时间窗口
// 关联到同一用户的求助事件上：命中则走求助侧更新（由监听器级联回
// 警报行，最终一致），未命中或求助侧失败则直接更新警报行。
type CorrelationResolver struct {
	db       *gorm.DB
	status   *StatusService
	logger   *zap.Logger
	window   time.Duration
	lookback int
}

func NewCorrelationResolver(db *gorm.DB, status *StatusService, logger *zap.Logger) *CorrelationResolver {
	return &CorrelationResolver{
		db:       db,
		status:   status,
		logger:   logger,
		window:   DefaultCorrelationWindow,
		lookback: DefaultCorrelationLookback,
	}
}

// WithWindow 覆盖关联窗口与回扫深度
func (r *CorrelationResolver) WithWindow(window time.Duration, lookback int) *CorrelationResolver {
	if window > 0 {
		r.window = window
	}
	if lookback > 0 {
		r.lookback = lookback
	}
	return r
}

// ResolveAndApply 应用一次状态变更。
// 步骤：加载警报（不存在即失败）→ 回扫警报所有者最近的求助事件，
// 按创建时间倒序取第一条落在窗口内的 → 命中且为终态时走求助侧更
// 新 → 否则直接更新警报行，必要时追加 status_update 留言。
// 求助侧失败只记录后回退，不重试；两条路径之间没有事务。
func (r *CorrelationResolver) ResolveAndApply(
	ctx context.Context,
	alertID, newStatus, note string,
	actingUserID uint,
) (*Outcome, error) {
	if !models.IsValidStatus(newStatus) {
		return nil, errors.Validation("invalid status: %s", newStatus)
	}

	alert, err := models.GetSafetyAlert(r.db.WithContext(ctx), alertID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NotFound("safety alert %s not found", alertID)
		}
		return nil, errors.Wrapf(err, "load safety alert %s", alertID)
	}

	// 终态才有求助侧表示；active/investigating 直接走警报行
	if isTerminalStatus(newStatus) {
		if match := r.findLinkedPanicEvent(ctx, alert); match != nil {
			event, changed, err := r.status.ResolvePanicEvent(ctx, match.ID, newStatus, actingUserID)
			if err == nil {
				r.logger.Info("status update routed through panic event",
					zap.String("alert_id", alertID),
					zap.String("panic_event_id", match.ID),
					zap.String("status", newStatus),
				)
				return &Outcome{Path: PathPanic, Changed: changed, Alert: alert, PanicEvent: event}, nil
			}
			// 求助侧失败：记录后回退到直接更新，不重试
			r.logger.Warn("panic-side update failed, falling back to direct alert update",
				zap.String("alert_id", alertID),
				zap.String("panic_event_id", match.ID),
				zap.Error(err),
			)
		}
	}

	updated, changed, err := r.status.UpdateSafetyAlertStatus(ctx, alertID, newStatus, actingUserID)
	if err != nil {
		return nil, err
	}

	// 留言属于非关键副作用：失败只记录，不影响主写入的结果
	if note != "" && changed {
		comment := fmt.Sprintf("Status changed to %s: %s", newStatus, note)
		if _, err := models.AppendAlertResponse(r.db.WithContext(ctx), alertID, actingUserID, "status_update", comment); err != nil {
			r.logger.Warn("append alert response failed",
				zap.String("alert_id", alertID),
				zap.Error(err),
			)
		}
	}

	return &Outcome{Path: PathDirect, Changed: changed, Alert: updated}, nil
}

// findLinkedPanicEvent 回扫最近 lookback 条求助事件，按倒序取第一条
// 与警报创建时间差不超过窗口的。取的是最近命中而非时间差最小的。
func (r *CorrelationResolver) findLinkedPanicEvent(ctx context.Context, alert *models.SafetyAlert) *models.PanicEvent {
	events, err := models.ListRecentPanicEventsByUser(r.db.WithContext(ctx), alert.UserID, r.lookback)
	if err != nil {
		// 扫描失败视为无匹配，回退路径兜底
		r.logger.Warn("panic event scan failed",
			zap.String("alert_id", alert.ID),
			zap.Error(err),
		)
		return nil
	}
	for i := range events {
		delta := alert.CreatedAt.Sub(events[i].CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= r.window {
			return &events[i]
		}
	}
	return nil
}

func isTerminalStatus(status string) bool {
	return status == models.StatusResolved || status == models.StatusFalseAlarm
}
