package listeners

import (
	"context"
	"testing"
	"time"

	"NeighborSafe/internal/models"
	"NeighborSafe/internal/service"
	"NeighborSafe/pkg/util"
	"NeighborSafe/pkg/websocket"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	t.Cleanup(func() {
		util.Sig().Disconnect(models.SigRowChanged)
		util.Sig().Disconnect(models.SigPanicCreated)
		util.Sig().Disconnect(models.SigPanicResolved)
	})
	return db
}

func TestChangeListenerBroadcastsToHub(t *testing.T) {
	db := newTestDB(t)
	hub := websocket.NewHub(nil)
	defer hub.Close()
	InitChangeListeners(hub, nil)

	conn := &websocket.Connection{
		ID:       "c1",
		UserID:   "u1",
		Send:     make(chan []byte, 16),
		Hub:      hub,
		LastPing: time.Now(),
		IsAlive:  true,
		Groups:   make(map[string]bool),
	}
	hub.Register(conn)
	time.Sleep(100 * time.Millisecond)
	conn.JoinGroup(models.TableSafetyAlerts)

	alert := &models.SafetyAlert{UserID: 1, Title: "t", AlertType: models.AlertTypeFire, Severity: models.SeverityHigh}
	require.NoError(t, models.CreateSafetyAlert(db, alert))
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, len(conn.Send))
}

// 完整火警场景：触发求助→两个在册联系人收到通知→通过求助路径解除
// →关联警报级联为已解决并盖核实戳
func TestPanicLifecycleEndToEnd(t *testing.T) {
	db := newTestDB(t)
	InitCascadeListeners(db, nil)

	owner, err := models.CreateUser(db, "+15552220001", "", "secret123", "owner")
	require.NoError(t, err)
	neighbor1, err := models.CreateUser(db, "+15552220002", "", "secret123", "n1")
	require.NoError(t, err)
	neighbor2, err := models.CreateUser(db, "+15552220003", "", "secret123", "n2")
	require.NoError(t, err)

	for _, phone := range []string{neighbor1.Phone, neighbor2.Phone, "+15552229999"} {
		require.NoError(t, models.CreateEmergencyContact(db, &models.EmergencyContact{
			OwnerUserID:      owner.ID,
			ContactName:      "c",
			PhoneNumber:      phone,
			PreferredMethods: models.MethodList{models.MethodInApp},
		}))
	}

	event := &models.PanicEvent{UserID: owner.ID, SituationType: models.SituationFire, Message: "fire"}
	require.NoError(t, models.CreatePanicEvent(db, event))

	fanout := service.NewFanoutNotifier(db, nil, zap.NewNop())
	dispatch, err := fanout.OnPanicTriggered(context.Background(), event, owner)
	require.NoError(t, err)
	assert.Len(t, dispatch.NotifiedUserIDs, 2)
	assert.Equal(t, 1, dispatch.SkippedContacts)
	require.NotNil(t, dispatch.Alert)

	status := service.NewStatusService(db, zap.NewNop())
	resolver := service.NewCorrelationResolver(db, status, zap.NewNop())
	outcome, err := resolver.ResolveAndApply(context.Background(), dispatch.Alert.ID, models.StatusResolved, "", owner.ID)
	require.NoError(t, err)
	assert.Equal(t, service.PathPanic, outcome.Path)

	reloadedEvent, err := models.GetPanicEvent(db, event.ID)
	require.NoError(t, err)
	assert.True(t, reloadedEvent.IsResolved)

	// 级联在信号处理器里同步执行，返回时已落库
	reloadedAlert, err := models.GetSafetyAlert(db, dispatch.Alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, reloadedAlert.Status)
	assert.True(t, reloadedAlert.IsVerified)
	require.NotNil(t, reloadedAlert.VerifiedBy)
	assert.Equal(t, owner.ID, *reloadedAlert.VerifiedBy)
}

func TestCascadeSkipsWhenNoLinkedAlert(t *testing.T) {
	db := newTestDB(t)
	InitCascadeListeners(db, nil)

	owner, err := models.CreateUser(db, "+15552230001", "", "secret123", "owner")
	require.NoError(t, err)
	event := &models.PanicEvent{UserID: owner.ID, SituationType: models.SituationOther}
	require.NoError(t, models.CreatePanicEvent(db, event))

	status := service.NewStatusService(db, zap.NewNop())
	_, changed, err := status.ResolvePanicEvent(context.Background(), event.ID, models.StatusFalseAlarm, owner.ID)
	require.NoError(t, err)
	assert.True(t, changed)
}
