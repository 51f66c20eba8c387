package service

import (
	"context"
	"testing"
	"time"

	"NeighborSafe/internal/models"
	"NeighborSafe/pkg/errors"
	"NeighborSafe/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newResolver(db *gorm.DB) *CorrelationResolver {
	return NewCorrelationResolver(db, NewStatusService(db, zap.NewNop()), zap.NewNop())
}

func createPanicAt(t *testing.T, db *gorm.DB, userID uint, createdAt time.Time) *models.PanicEvent {
	event := &models.PanicEvent{
		UserID:        userID,
		SituationType: models.SituationBreakIn,
		CreatedAt:     createdAt,
	}
	require.NoError(t, models.CreatePanicEvent(db, event))
	return event
}

func createAlertAt(t *testing.T, db *gorm.DB, userID uint, createdAt time.Time) *models.SafetyAlert {
	alert := &models.SafetyAlert{
		UserID:    userID,
		Title:     "Break-in reported",
		AlertType: models.AlertTypeBreakIn,
		Severity:  models.SeverityCritical,
		Status:    models.StatusActive,
		CreatedAt: createdAt,
	}
	require.NoError(t, models.CreateSafetyAlert(db, alert))
	return alert
}

func TestResolveRoutesThroughPanicEvent(t *testing.T) {
	db := newTestDB(t)
	owner := newTestUser(t, db, false)
	t.Cleanup(func() { util.Sig().Disconnect(models.SigPanicResolved) })

	now := time.Now()
	event := createPanicAt(t, db, owner.ID, now.Add(-3*time.Minute))
	alert := createAlertAt(t, db, owner.ID, now)

	outcome, err := newResolver(db).ResolveAndApply(context.Background(), alert.ID, models.StatusResolved, "", owner.ID)
	require.NoError(t, err)
	assert.Equal(t, PathPanic, outcome.Path)
	assert.True(t, outcome.Changed)
	require.NotNil(t, outcome.PanicEvent)
	assert.Equal(t, event.ID, outcome.PanicEvent.ID)

	reloaded, err := models.GetPanicEvent(db, event.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsResolved)

	// 没挂级联监听器，警报行保持原状（最终一致由监听器负责）
	alertRow, err := models.GetSafetyAlert(db, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, alertRow.Status)
}

func TestResolveWindowBoundary(t *testing.T) {
	db := newTestDB(t)
	t.Cleanup(func() { util.Sig().Disconnect(models.SigPanicResolved) })

	now := time.Now()

	// 恰好压线：5分钟整属于窗口内
	inside := newTestUser(t, db, false)
	createPanicAt(t, db, inside.ID, now.Add(-DefaultCorrelationWindow))
	alertIn := createAlertAt(t, db, inside.ID, now)

	outcome, err := newResolver(db).ResolveAndApply(context.Background(), alertIn.ID, models.StatusResolved, "", inside.ID)
	require.NoError(t, err)
	assert.Equal(t, PathPanic, outcome.Path)

	// 超出一毫秒即窗口外，走直接路径
	outside := newTestUser(t, db, false)
	createPanicAt(t, db, outside.ID, now.Add(-DefaultCorrelationWindow-time.Millisecond))
	alertOut := createAlertAt(t, db, outside.ID, now)

	outcome, err = newResolver(db).ResolveAndApply(context.Background(), alertOut.ID, models.StatusResolved, "", outside.ID)
	require.NoError(t, err)
	assert.Equal(t, PathDirect, outcome.Path)
	assert.Equal(t, models.StatusResolved, outcome.Alert.Status)
}

func TestResolvePicksNewestMatch(t *testing.T) {
	db := newTestDB(t)
	owner := newTestUser(t, db, false)
	t.Cleanup(func() { util.Sig().Disconnect(models.SigPanicResolved) })

	now := time.Now()
	older := createPanicAt(t, db, owner.ID, now.Add(-4*time.Minute))
	newer := createPanicAt(t, db, owner.ID, now.Add(-1*time.Minute))
	alert := createAlertAt(t, db, owner.ID, now)

	outcome, err := newResolver(db).ResolveAndApply(context.Background(), alert.ID, models.StatusResolved, "", owner.ID)
	require.NoError(t, err)
	assert.Equal(t, PathPanic, outcome.Path)
	assert.Equal(t, newer.ID, outcome.PanicEvent.ID)

	untouched, err := models.GetPanicEvent(db, older.ID)
	require.NoError(t, err)
	assert.False(t, untouched.IsResolved)
}

func TestNonTerminalStatusGoesDirect(t *testing.T) {
	db := newTestDB(t)
	owner := newTestUser(t, db, false)

	now := time.Now()
	event := createPanicAt(t, db, owner.ID, now.Add(-2*time.Minute))
	alert := createAlertAt(t, db, owner.ID, now)

	// investigating 在求助侧没有对应表示，即使窗口命中也走警报行
	outcome, err := newResolver(db).ResolveAndApply(context.Background(), alert.ID, models.StatusInvestigating, "", owner.ID)
	require.NoError(t, err)
	assert.Equal(t, PathDirect, outcome.Path)

	reloaded, err := models.GetPanicEvent(db, event.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsResolved)
}

func TestNoteAppendedOnlyOnChange(t *testing.T) {
	db := newTestDB(t)
	owner := newTestUser(t, db, false)
	alert := createAlertAt(t, db, owner.ID, time.Now())
	resolver := newResolver(db)

	outcome, err := resolver.ResolveAndApply(context.Background(), alert.ID, models.StatusInvestigating, "checking cameras", owner.ID)
	require.NoError(t, err)
	assert.True(t, outcome.Changed)

	responses, err := models.ListAlertResponses(db, alert.ID)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Equal(t, "status_update", responses[0].ResponseType)
	assert.Contains(t, responses[0].Comment, "investigating")
	assert.Contains(t, responses[0].Comment, "checking cameras")

	// 同状态重复提交不追加留言
	outcome, err = resolver.ResolveAndApply(context.Background(), alert.ID, models.StatusInvestigating, "still checking", owner.ID)
	require.NoError(t, err)
	assert.False(t, outcome.Changed)

	responses, err = models.ListAlertResponses(db, alert.ID)
	require.NoError(t, err)
	assert.Len(t, responses, 1)
}

func TestResolveUnknownAlert(t *testing.T) {
	db := newTestDB(t)
	owner := newTestUser(t, db, false)

	_, err := newResolver(db).ResolveAndApply(context.Background(), "missing", models.StatusResolved, "", owner.ID)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestResolveLookbackDepth(t *testing.T) {
	db := newTestDB(t)
	owner := newTestUser(t, db, false)

	now := time.Now()
	// 窗口内的事件被更新的窗口外事件挤出回扫范围
	inWindow := createPanicAt(t, db, owner.ID, now.Add(-2*time.Minute))
	createPanicAt(t, db, owner.ID, now.Add(10*time.Minute))
	alert := createAlertAt(t, db, owner.ID, now)

	resolver := newResolver(db).WithWindow(DefaultCorrelationWindow, 1)
	outcome, err := resolver.ResolveAndApply(context.Background(), alert.ID, models.StatusResolved, "", owner.ID)
	require.NoError(t, err)
	assert.Equal(t, PathDirect, outcome.Path)

	untouched, err := models.GetPanicEvent(db, inWindow.ID)
	require.NoError(t, err)
	assert.False(t, untouched.IsResolved)
}

func TestCascadeUpdatesLinkedAlert(t *testing.T) {
	db := newTestDB(t)
	owner := newTestUser(t, db, false)
	t.Cleanup(func() {
		util.Sig().Disconnect(models.SigPanicResolved)
		util.Sig().Disconnect(models.SigRowChanged)
	})

	// 级联监听器挂上后，求助侧解除会同步更新关联警报
	util.Sig().Connect(models.SigPanicResolved, func(sender any, params ...any) {
		event := sender.(*models.PanicEvent)
		actorID := params[0].(uint)
		targetStatus := params[1].(string)
		linked, err := models.FindLinkedSafetyAlert(db, event.UserID, event.CreatedAt, DefaultCorrelationWindow)
		if err != nil || linked.Status == targetStatus {
			return
		}
		_ = models.SetSafetyAlertStatus(db, linked, targetStatus, actorID)
	})

	now := time.Now()
	createPanicAt(t, db, owner.ID, now.Add(-time.Minute))
	alert := createAlertAt(t, db, owner.ID, now)

	outcome, err := newResolver(db).ResolveAndApply(context.Background(), alert.ID, models.StatusFalseAlarm, "", owner.ID)
	require.NoError(t, err)
	assert.Equal(t, PathPanic, outcome.Path)

	reloaded, err := models.GetSafetyAlert(db, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFalseAlarm, reloaded.Status)
}
