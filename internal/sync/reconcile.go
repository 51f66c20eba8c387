package sync

import (
	"sort"
	"sync"
	"time"

	"NeighborSafe/internal/models"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ListView 把初始查询结果、realtime 推送和本地乐观更新合并成一份
// 去重、按时间倒序的列表。
// 规则：
//   - 以实体 id 去重
//   - realtime 为准，但按 updatedAt 比较，从不用旧数据覆盖乐观更新
//     已推进到更新时间点的字段（推送到达顺序不保证因果序）
//   - 推送的 INSERT 必须重新通过当前过滤条件，不匹配的静默丢弃
//   - 手动刷新整体替换本地缓存
type ListView struct {
	mu      sync.RWMutex
	filters models.AlertFilters
	entries map[string]*models.SafetyAlert
}

func NewListView(filters models.AlertFilters) *ListView {
	return &ListView{
		filters: filters,
		entries: make(map[string]*models.SafetyAlert),
	}
}

// SetFilters 更新过滤条件并剔除不再匹配的条目
func (v *ListView) SetFilters(filters models.AlertFilters) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.filters = filters
	for id, a := range v.entries {
		if !filters.Match(a) {
			delete(v.entries, id)
		}
	}
}

// Replace 手动刷新：服务端结果整体替换本地缓存，消除累积漂移
func (v *ListView) Replace(alerts []models.SafetyAlert) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries = make(map[string]*models.SafetyAlert, len(alerts))
	for i := range alerts {
		a := alerts[i]
		v.entries[a.ID] = &a
	}
}

// ApplyLocal 本地乐观更新（状态变更调用点写入）
func (v *ListView) ApplyLocal(alert *models.SafetyAlert) {
	if alert == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	cp := *alert
	v.entries[alert.ID] = &cp
}

// ApplyInsert 接纳一条 realtime INSERT（完整行，由调用方回查）。
// 不满足当前过滤条件时静默丢弃，返回 false。
func (v *ListView) ApplyInsert(alert *models.SafetyAlert) bool {
	if alert == nil {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.filters.Match(alert) {
		return false
	}
	if existing, ok := v.entries[alert.ID]; ok {
		// 本地乐观版本已更新则保留本地，否则以服务端行为准
		if existing.UpdatedAt.After(alert.UpdatedAt) {
			return true
		}
	}
	cp := *alert
	v.entries[alert.ID] = &cp
	return true
}

// ApplyUpdate 浅合并一条 realtime UPDATE 补丁。
// 按时间戳而非到达顺序做 last-write-wins：本地版本更新则忽略。
func (v *ListView) ApplyUpdate(id string, patch map[string]any, updatedAt time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	existing, ok := v.entries[id]
	if !ok {
		return false
	}
	if existing.UpdatedAt.After(updatedAt) {
		return false
	}
	applyPatch(existing, patch)
	if existing.UpdatedAt.Before(updatedAt) {
		existing.UpdatedAt = updatedAt
	}
	return true
}

// Get 按 id 取条目副本
func (v *ListView) Get(id string) (*models.SafetyAlert, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	a, ok := v.entries[id]
	if !ok {
		return nil, false
	}
	cp := *a
	return &cp, true
}

// Snapshot 按创建时间倒序返回当前列表副本
func (v *ListView) Snapshot() []models.SafetyAlert {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]models.SafetyAlert, 0, len(v.entries))
	for _, a := range v.entries {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (v *ListView) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}

// applyPatch 浅合并：只覆盖补丁携带的顶层字段，不做嵌套合并
func applyPatch(alert *models.SafetyAlert, patch map[string]any) {
	for key, value := range patch {
		switch key {
		case "status":
			if s, ok := value.(string); ok {
				alert.Status = s
			}
		case "title":
			if s, ok := value.(string); ok {
				alert.Title = s
			}
		case "description":
			if s, ok := value.(string); ok {
				alert.Description = s
			}
		case "severity":
			if s, ok := value.(string); ok {
				alert.Severity = s
			}
		case "alertType":
			if s, ok := value.(string); ok {
				alert.AlertType = s
			}
		case "address":
			if s, ok := value.(string); ok {
				alert.Address = s
			}
		case "isVerified":
			if b, ok := value.(bool); ok {
				alert.IsVerified = b
			}
		case "verifiedAt":
			if t := asTime(value); t != nil {
				alert.VerifiedAt = t
			}
		case "verifiedBy":
			if id := asUint(value); id != nil {
				alert.VerifiedBy = id
			}
		case "updatedAt":
			if t := asTime(value); t != nil {
				alert.UpdatedAt = *t
			}
		}
	}
}

func asTime(value any) *time.Time {
	switch t := value.(type) {
	case time.Time:
		return &t
	case *time.Time:
		return t
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return &parsed
		}
	}
	return nil
}

func asUint(value any) *uint {
	switch n := value.(type) {
	case uint:
		return &n
	case *uint:
		return n
	case int:
		u := uint(n)
		return &u
	case float64:
		u := uint(n)
		return &u
	}
	return nil
}

// FeedCache 首页小组件用的有界缓存，只保留最近加入的若干条
type FeedCache struct {
	cache *lru.Cache[string, models.SafetyAlert]
}

func NewFeedCache(size int) (*FeedCache, error) {
	if size <= 0 {
		size = 10
	}
	c, err := lru.New[string, models.SafetyAlert](size)
	if err != nil {
		return nil, err
	}
	return &FeedCache{cache: c}, nil
}

// Add 加入一条，超出容量时淘汰最旧的
func (f *FeedCache) Add(alert *models.SafetyAlert) {
	if alert == nil {
		return
	}
	f.cache.Add(alert.ID, *alert)
}

// Items 按创建时间倒序返回当前缓存内容
func (f *FeedCache) Items() []models.SafetyAlert {
	out := make([]models.SafetyAlert, 0, f.cache.Len())
	for _, key := range f.cache.Keys() {
		if a, ok := f.cache.Peek(key); ok {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
