package sync

import (
	"context"
	"sync"
	"time"

	"NeighborSafe/internal/models"

	"go.uber.org/zap"
)

// Handlers 是订阅回调。OnDrop 在订阅通道断开后触发一次，
// 消费方据此切换到轮询兜底。
type Handlers struct {
	OnInsert func(ev models.ChangeEvent)
	OnUpdate func(ev models.ChangeEvent)
	OnDrop   func()
}

// SubscriptionManager 管理按表名建立的订阅，组件卸载时统一释放，
// 防止重复订阅泄漏通道。
type SubscriptionManager struct {
	feed Feed

	mu      sync.Mutex
	cancels map[string]func()
	closed  bool
}

func NewSubscriptionManager(feed Feed) *SubscriptionManager {
	return &SubscriptionManager{
		feed:    feed,
		cancels: make(map[string]func()),
	}
}

// Subscribe 建立对一张表的订阅。同表重复订阅先释放旧的。
func (m *SubscriptionManager) Subscribe(table string, h Handlers) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	if cancel, ok := m.cancels[table]; ok {
		delete(m.cancels, table)
		m.mu.Unlock()
		cancel()
		m.mu.Lock()
	}
	m.mu.Unlock()

	ch, cancel, err := m.feed.Subscribe(table)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return nil
	}
	m.cancels[table] = cancel
	m.mu.Unlock()

	go func() {
		for ev := range ch {
			switch ev.Type {
			case models.ChangeInsert:
				if h.OnInsert != nil {
					h.OnInsert(ev)
				}
			case models.ChangeUpdate:
				if h.OnUpdate != nil {
					h.OnUpdate(ev)
				}
			}
		}
		m.mu.Lock()
		dropped := !m.closed
		m.mu.Unlock()
		if dropped && h.OnDrop != nil {
			h.OnDrop()
		}
	}()
	return nil
}

// Unsubscribe 释放一张表的订阅
func (m *SubscriptionManager) Unsubscribe(table string) {
	m.mu.Lock()
	cancel, ok := m.cancels[table]
	if ok {
		delete(m.cancels, table)
	}
	m.mu.Unlock()
	if ok {
		cancel()
	}
}

// Close 释放全部订阅
func (m *SubscriptionManager) Close() {
	m.mu.Lock()
	m.closed = true
	cancels := m.cancels
	m.cancels = make(map[string]func())
	m.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// DefaultPollInterval 推送不可用时的兜底轮询间隔，固定值不退避
const DefaultPollInterval = 30 * time.Second

// FetchFunc 按 id 回查完整警报行
type FetchFunc func(ctx context.Context, id string) (*models.SafetyAlert, error)

// ListFunc 按当前过滤条件拉取完整列表
type ListFunc func(ctx context.Context) ([]models.SafetyAlert, error)

// SyncClient 维护一份警报列表的实时视图：
// 启动时全量拉取，之后消费变更流增量维护；
// INSERT 只携带行 id，回查完整行再并入；UPDATE 浅合并补丁；
// 推送断开后降级为固定间隔轮询。
type SyncClient struct {
	manager *SubscriptionManager
	view    *ListView
	feed    *FeedCache
	fetch   FetchFunc
	list    ListFunc
	logger  *zap.Logger

	pollInterval time.Duration

	mu         sync.Mutex
	pollCancel context.CancelFunc
}

func NewSyncClient(feed Feed, fetch FetchFunc, list ListFunc, filters models.AlertFilters, logger *zap.Logger) (*SyncClient, error) {
	feedCache, err := NewFeedCache(10)
	if err != nil {
		return nil, err
	}
	return &SyncClient{
		manager:      NewSubscriptionManager(feed),
		view:         NewListView(filters),
		feed:         feedCache,
		fetch:        fetch,
		list:         list,
		logger:       logger,
		pollInterval: DefaultPollInterval,
	}, nil
}

// WithPollInterval 覆盖兜底轮询间隔，测试用
func (c *SyncClient) WithPollInterval(d time.Duration) *SyncClient {
	if d > 0 {
		c.pollInterval = d
	}
	return c
}

// Start 全量拉取并建立订阅
func (c *SyncClient) Start(ctx context.Context) error {
	if err := c.Refresh(ctx); err != nil {
		return err
	}
	err := c.manager.Subscribe(models.TableSafetyAlerts, Handlers{
		OnInsert: c.onInsert,
		OnUpdate: c.onUpdate,
		OnDrop:   func() { c.startPollFallback() },
	})
	if err != nil {
		c.logger.Warn("realtime subscribe failed, falling back to polling", zap.Error(err))
		c.startPollFallback()
	}
	return nil
}

func (c *SyncClient) onInsert(ev models.ChangeEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	alert, err := c.fetch(ctx, ev.RowID)
	if err != nil {
		c.logger.Warn("refetch on insert failed", zap.String("id", ev.RowID), zap.Error(err))
		return
	}
	if c.view.ApplyInsert(alert) {
		c.feed.Add(alert)
	}
}

func (c *SyncClient) onUpdate(ev models.ChangeEvent) {
	c.view.ApplyUpdate(ev.RowID, ev.Payload, ev.UpdatedAt)
}

// Refresh 手动刷新：整体替换本地视图
func (c *SyncClient) Refresh(ctx context.Context) error {
	alerts, err := c.list(ctx)
	if err != nil {
		return err
	}
	c.view.Replace(alerts)
	return nil
}

// ApplyLocal 状态变更调用点写入的乐观更新
func (c *SyncClient) ApplyLocal(alert *models.SafetyAlert) {
	c.view.ApplyLocal(alert)
}

// Snapshot 当前视图快照，创建时间倒序
func (c *SyncClient) Snapshot() []models.SafetyAlert {
	return c.view.Snapshot()
}

// FeedItems 首页小组件内容
func (c *SyncClient) FeedItems() []models.SafetyAlert {
	return c.feed.Items()
}

func (c *SyncClient) View() *ListView {
	return c.view
}

func (c *SyncClient) startPollFallback() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pollCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.pollCancel = cancel
	c.logger.Info("realtime feed dropped, polling", zap.Duration("interval", c.pollInterval))
	go func() {
		ticker := time.NewTicker(c.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.Refresh(ctx); err != nil {
					c.logger.Warn("poll refresh failed", zap.Error(err))
				}
			}
		}
	}()
}

// Close 释放订阅和轮询
func (c *SyncClient) Close() {
	c.manager.Close()
	c.mu.Lock()
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
	}
	c.mu.Unlock()
}
