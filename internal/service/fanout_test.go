package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"NeighborSafe/internal/models"
	"NeighborSafe/pkg/notification"
	"NeighborSafe/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fakeDispatcher 通过通道回收派发上下文，便于等待异步调用落地
type fakeDispatcher struct {
	calls chan *notification.PanicContext
	err   error
}

func newFakeDispatcher(err error) *fakeDispatcher {
	return &fakeDispatcher{calls: make(chan *notification.PanicContext, 4), err: err}
}

func (d *fakeDispatcher) DispatchPanic(_ context.Context, pc *notification.PanicContext) error {
	d.calls <- pc
	return d.err
}

func addContact(t *testing.T, db *gorm.DB, owner uint, phone string, methods models.MethodList) {
	t.Helper()
	require.NoError(t, models.CreateEmergencyContact(db, &models.EmergencyContact{
		OwnerUserID:      owner,
		ContactName:      "contact " + phone,
		PhoneNumber:      phone,
		PreferredMethods: methods,
	}))
}

func TestFanoutNotifiesRegisteredContacts(t *testing.T) {
	db := newTestDB(t)
	t.Cleanup(func() {
		util.Sig().Disconnect(models.SigRowChanged)
		util.Sig().Disconnect(models.SigPanicCreated)
	})

	owner := newTestUser(t, db, false)
	reachable1 := newTestUser(t, db, false)
	reachable2 := newTestUser(t, db, false)

	// 五个联系人：两个 in_app 且有账号，一个 in_app 无账号，
	// 两个只留了带外方式
	addContact(t, db, owner.ID, reachable1.Phone, models.MethodList{models.MethodInApp, models.MethodSMS})
	addContact(t, db, owner.ID, reachable2.Phone, models.MethodList{models.MethodInApp})
	addContact(t, db, owner.ID, "+15550009999", models.MethodList{models.MethodInApp})
	addContact(t, db, owner.ID, "+15550008888", models.MethodList{models.MethodSMS})
	addContact(t, db, owner.ID, "+15550007777", models.MethodList{models.MethodWhatsApp, models.MethodPhoneCall})

	event := &models.PanicEvent{
		UserID:        owner.ID,
		SituationType: models.SituationFire,
		Message:       "kitchen fire",
		Latitude:      37.77,
		Longitude:     -122.41,
		Address:       "123 Oak St",
	}
	require.NoError(t, models.CreatePanicEvent(db, event))

	dispatcher := newFakeDispatcher(nil)
	result, err := NewFanoutNotifier(db, dispatcher, zap.NewNop()).
		OnPanicTriggered(context.Background(), event, owner)
	require.NoError(t, err)

	assert.ElementsMatch(t, []uint{reachable1.ID, reachable2.ID}, result.NotifiedUserIDs)
	assert.Equal(t, 1, result.SkippedContacts)

	count, err := models.CountNotificationsByPanicEvent(db, event.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	unread, err := models.CountUnreadNotifications(db, reachable1.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, unread)

	select {
	case pc := <-dispatcher.calls:
		assert.Equal(t, event.ID, pc.PanicEventID)
		assert.Equal(t, models.SituationFire, pc.SituationType)
		assert.Equal(t, owner.DisplayName, pc.DisplayName)
		assert.Equal(t, "123 Oak St", pc.Address)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher was not invoked")
	}
}

func TestFanoutMirrorsSafetyAlert(t *testing.T) {
	db := newTestDB(t)
	t.Cleanup(func() {
		util.Sig().Disconnect(models.SigRowChanged)
		util.Sig().Disconnect(models.SigPanicCreated)
	})

	owner := newTestUser(t, db, false)
	event := &models.PanicEvent{
		UserID:        owner.ID,
		SituationType: models.SituationBreakIn,
		Message:       "someone at the back door",
	}
	require.NoError(t, models.CreatePanicEvent(db, event))

	result, err := NewFanoutNotifier(db, nil, zap.NewNop()).
		OnPanicTriggered(context.Background(), event, owner)
	require.NoError(t, err)
	require.NotNil(t, result.Alert)

	alert, err := models.GetSafetyAlert(db, result.Alert.ID)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, alert.UserID)
	assert.Equal(t, models.AlertTypeBreakIn, alert.AlertType)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	assert.Equal(t, models.StatusActive, alert.Status)
	assert.False(t, alert.IsVerified)
	assert.Contains(t, alert.Title, models.SituationBreakIn)
	assert.Equal(t, event.Message, alert.Description)
}

func TestFanoutDispatchFailureDoesNotFail(t *testing.T) {
	db := newTestDB(t)
	t.Cleanup(func() {
		util.Sig().Disconnect(models.SigRowChanged)
		util.Sig().Disconnect(models.SigPanicCreated)
	})

	owner := newTestUser(t, db, false)
	event := &models.PanicEvent{UserID: owner.ID, SituationType: models.SituationOther}
	require.NoError(t, models.CreatePanicEvent(db, event))

	dispatcher := newFakeDispatcher(errors.New("edge function unreachable"))
	result, err := NewFanoutNotifier(db, dispatcher, zap.NewNop()).
		OnPanicTriggered(context.Background(), event, owner)
	require.NoError(t, err)
	require.NotNil(t, result.Alert)

	select {
	case <-dispatcher.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher was not invoked")
	}
}

func TestMirrorAlertType(t *testing.T) {
	assert.Equal(t, models.AlertTypeFire, mirrorAlertType(models.SituationFire))
	assert.Equal(t, models.AlertTypeBreakIn, mirrorAlertType(models.SituationBreakIn))
	assert.Equal(t, models.AlertTypeAccident, mirrorAlertType(models.SituationAccident))
	assert.Equal(t, models.AlertTypeSuspicious, mirrorAlertType(models.SituationSuspicious))
	// 无对应类型的情形统一落到 other
	assert.Equal(t, models.AlertTypeOther, mirrorAlertType(models.SituationMedical))
	assert.Equal(t, models.AlertTypeOther, mirrorAlertType(models.SituationKidnapping))
}
