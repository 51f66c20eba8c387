package service

import (
	"context"
	"time"

	"NeighborSafe/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultStaleAfter 危急警报无人响应多久后自动升级
const DefaultStaleAfter = 24 * time.Hour

// StaleSweeper 定时把长时间停留在 active 的危急警报升级为
// investigating，并留一条系统留言，避免事件无人跟进。
type StaleSweeper struct {
	db         *gorm.DB
	logger     *zap.Logger
	staleAfter time.Duration
}

func NewStaleSweeper(db *gorm.DB, logger *zap.Logger) *StaleSweeper {
	return &StaleSweeper{db: db, logger: logger, staleAfter: DefaultStaleAfter}
}

// WithStaleAfter 覆盖升级阈值，测试用
func (s *StaleSweeper) WithStaleAfter(d time.Duration) *StaleSweeper {
	if d > 0 {
		s.staleAfter = d
	}
	return s
}

// Run 执行一轮扫描。单条失败只记录，不中断本轮
func (s *StaleSweeper) Run(ctx context.Context) {
	db := s.db.WithContext(ctx)
	cutoff := time.Now().Add(-s.staleAfter)

	var stale []models.SafetyAlert
	err := db.Where("status = ? AND severity = ? AND created_at < ?",
		models.StatusActive, models.SeverityCritical, cutoff).
		Find(&stale).Error
	if err != nil {
		s.logger.Warn("stale alert scan failed", zap.Error(err))
		return
	}

	for i := range stale {
		alert := &stale[i]

		var responses int64
		if err := db.Model(&models.AlertResponse{}).
			Where("alert_id = ?", alert.ID).Count(&responses).Error; err != nil {
			s.logger.Warn("stale alert response count failed", zap.String("alert", alert.ID), zap.Error(err))
			continue
		}
		if responses > 0 {
			continue
		}

		if err := models.SetSafetyAlertStatus(db, alert, models.StatusInvestigating, alert.UserID); err != nil {
			s.logger.Warn("stale alert escalation failed", zap.String("alert", alert.ID), zap.Error(err))
			continue
		}
		if _, err := models.AppendAlertResponse(db, alert.ID, alert.UserID,
			"status_update", "Escalated to investigating: no responses received"); err != nil {
			s.logger.Warn("stale alert note failed", zap.String("alert", alert.ID), zap.Error(err))
		}
		s.logger.Info("stale critical alert escalated", zap.String("alert", alert.ID))
	}
}
