package sync

import (
	"context"
	"sync"
	"testing"
	"time"

	"NeighborSafe/internal/models"
	"NeighborSafe/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStore 是 fetch/list 的内存后端，记录调用次数以验证轮询兜底
type fakeStore struct {
	mu        sync.Mutex
	alerts    map[string]models.SafetyAlert
	listCalls int
}

func newFakeStore(alerts ...*models.SafetyAlert) *fakeStore {
	s := &fakeStore{alerts: make(map[string]models.SafetyAlert)}
	for _, a := range alerts {
		s.alerts[a.ID] = *a
	}
	return s
}

func (s *fakeStore) put(a *models.SafetyAlert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[a.ID] = *a
}

func (s *fakeStore) fetch(_ context.Context, id string) (*models.SafetyAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, context.DeadlineExceeded
	}
	return &a, nil
}

func (s *fakeStore) list(_ context.Context) ([]models.SafetyAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	out := make([]models.SafetyAlert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, a)
	}
	return out, nil
}

func (s *fakeStore) listCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func TestSignalFeedDeliversMatchingTable(t *testing.T) {
	dispatcher := util.NewSignalDispatcher()
	feed := NewSignalFeed(dispatcher)

	ch, cancel, err := feed.Subscribe(models.TableSafetyAlerts)
	require.NoError(t, err)
	defer cancel()

	dispatcher.Emit(models.SigRowChanged, &models.ChangeEvent{
		Table: models.TableSafetyAlerts,
		Type:  models.ChangeInsert,
		RowID: "a1",
	})
	// 其他表的变更不投递给这个订阅
	dispatcher.Emit(models.SigRowChanged, &models.ChangeEvent{
		Table: models.TablePanicEvents,
		Type:  models.ChangeInsert,
		RowID: "p1",
	})

	select {
	case ev := <-ch:
		assert.Equal(t, "a1", ev.RowID)
		assert.Equal(t, models.ChangeInsert, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSignalFeedCancelClosesChannel(t *testing.T) {
	dispatcher := util.NewSignalDispatcher()
	feed := NewSignalFeed(dispatcher)

	ch, cancel, err := feed.Subscribe(models.TableSafetyAlerts)
	require.NoError(t, err)
	cancel()
	cancel() // 重复释放无副作用

	_, open := <-ch
	assert.False(t, open)

	// 释放后的发射不会 panic
	dispatcher.Emit(models.SigRowChanged, &models.ChangeEvent{Table: models.TableSafetyAlerts})
}

func TestSignalFeedConcurrentCancelAndEmit(t *testing.T) {
	dispatcher := util.NewSignalDispatcher()
	feed := NewSignalFeed(dispatcher)

	// 取消和投递并发交错时，已关闭的通道绝不能再被写入
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					dispatcher.Emit(models.SigRowChanged, &models.ChangeEvent{
						Table: models.TableSafetyAlerts,
						Type:  models.ChangeUpdate,
						RowID: "r",
					})
				}
			}
		}()
	}

	for i := 0; i < 2000; i++ {
		ch, cancel, err := feed.Subscribe(models.TableSafetyAlerts)
		require.NoError(t, err)
		select {
		case <-ch:
		default:
		}
		cancel()
	}

	close(stop)
	wg.Wait()
}

func TestSubscriptionManagerDispatchesByType(t *testing.T) {
	dispatcher := util.NewSignalDispatcher()
	manager := NewSubscriptionManager(NewSignalFeed(dispatcher))
	defer manager.Close()

	inserts := make(chan string, 4)
	updates := make(chan string, 4)
	err := manager.Subscribe(models.TableSafetyAlerts, Handlers{
		OnInsert: func(ev models.ChangeEvent) { inserts <- ev.RowID },
		OnUpdate: func(ev models.ChangeEvent) { updates <- ev.RowID },
	})
	require.NoError(t, err)

	dispatcher.Emit(models.SigRowChanged, &models.ChangeEvent{
		Table: models.TableSafetyAlerts, Type: models.ChangeInsert, RowID: "i1",
	})
	dispatcher.Emit(models.SigRowChanged, &models.ChangeEvent{
		Table: models.TableSafetyAlerts, Type: models.ChangeUpdate, RowID: "u1",
	})

	select {
	case id := <-inserts:
		assert.Equal(t, "i1", id)
	case <-time.After(time.Second):
		t.Fatal("insert not dispatched")
	}
	select {
	case id := <-updates:
		assert.Equal(t, "u1", id)
	case <-time.After(time.Second):
		t.Fatal("update not dispatched")
	}
}

func TestSubscriptionManagerDropNotifies(t *testing.T) {
	dispatcher := util.NewSignalDispatcher()
	feed := NewSignalFeed(dispatcher)
	manager := NewSubscriptionManager(feed)
	defer manager.Close()

	dropped := make(chan struct{}, 1)
	require.NoError(t, manager.Subscribe(models.TableSafetyAlerts, Handlers{
		OnDrop: func() { dropped <- struct{}{} },
	}))

	// 同表重新订阅会释放旧订阅，旧通道关闭触发 OnDrop
	require.NoError(t, manager.Subscribe(models.TableSafetyAlerts, Handlers{}))

	select {
	case <-dropped:
	case <-time.After(time.Second):
		t.Fatal("OnDrop not called after resubscribe")
	}
}

func TestSubscriptionManagerCloseSuppressesDrop(t *testing.T) {
	dispatcher := util.NewSignalDispatcher()
	manager := NewSubscriptionManager(NewSignalFeed(dispatcher))

	dropped := make(chan struct{}, 1)
	require.NoError(t, manager.Subscribe(models.TableSafetyAlerts, Handlers{
		OnDrop: func() { dropped <- struct{}{} },
	}))

	// 主动关闭不算断流，不触发降级
	manager.Close()

	select {
	case <-dropped:
		t.Fatal("OnDrop called on explicit close")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSyncClientInsertRefetchesFullRow(t *testing.T) {
	dispatcher := util.NewSignalDispatcher()
	store := newFakeStore()
	client, err := NewSyncClient(NewSignalFeed(dispatcher), store.fetch, store.list, models.AlertFilters{}, zap.NewNop())
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Start(context.Background()))

	created := alertFixture("n1", 0)
	store.put(created)

	// INSERT 推送只带行 id，完整行由客户端回查
	dispatcher.Emit(models.SigRowChanged, &models.ChangeEvent{
		Table: models.TableSafetyAlerts, Type: models.ChangeInsert, RowID: "n1",
	})

	require.Eventually(t, func() bool { return client.View().Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	got, ok := client.View().Get("n1")
	require.True(t, ok)
	assert.Equal(t, created.Title, got.Title)

	items := client.FeedItems()
	require.Len(t, items, 1)
	assert.Equal(t, "n1", items[0].ID)
}

func TestSyncClientUpdateMergesPatch(t *testing.T) {
	dispatcher := util.NewSignalDispatcher()
	seed := alertFixture("a1", time.Hour)
	store := newFakeStore(seed)
	client, err := NewSyncClient(NewSignalFeed(dispatcher), store.fetch, store.list, models.AlertFilters{}, zap.NewNop())
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Start(context.Background()))
	require.Equal(t, 1, client.View().Len())

	dispatcher.Emit(models.SigRowChanged, &models.ChangeEvent{
		Table:     models.TableSafetyAlerts,
		Type:      models.ChangeUpdate,
		RowID:     "a1",
		Payload:   map[string]any{"status": models.StatusResolved, "isVerified": true},
		UpdatedAt: time.Now(),
	})

	require.Eventually(t, func() bool {
		got, ok := client.View().Get("a1")
		return ok && got.Status == models.StatusResolved
	}, 2*time.Second, 10*time.Millisecond)

	got, _ := client.View().Get("a1")
	assert.True(t, got.IsVerified)
	// 补丁只浅合并变更字段，其余保持初始拉取的值
	assert.Equal(t, seed.Title, got.Title)
}

func TestSyncClientPollFallback(t *testing.T) {
	dispatcher := util.NewSignalDispatcher()
	feed := NewSignalFeed(dispatcher)
	store := newFakeStore()
	client, err := NewSyncClient(feed, store.fetch, store.list, models.AlertFilters{}, zap.NewNop())
	require.NoError(t, err)
	defer client.Close()
	client.WithPollInterval(50 * time.Millisecond)
	require.NoError(t, client.Start(context.Background()))
	baseline := store.listCount()

	// 订阅断开后降级为固定间隔轮询
	client.manager.Unsubscribe(models.TableSafetyAlerts)

	store.put(alertFixture("late", 0))
	require.Eventually(t, func() bool {
		return store.listCount() > baseline && client.View().Len() == 1
	}, 3*time.Second, 20*time.Millisecond)
}
