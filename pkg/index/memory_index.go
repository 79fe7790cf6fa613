// 文件: pkg/index/memory_index.go
// 阈值索引内存实现
//
// 行为与 Redis 版对齐，供触发器/调度器单测在无外部依赖时使用。
// 范围查询退化为线性扫描，测试数据量下无所谓。

package index

import (
	"context"
	"sort"
	"sync"

	"ding.com/pkg/market"
)

// 确保实现了接口
var _ Index = (*MemoryIndex)(nil)

// MemoryIndex 内存版阈值索引
type MemoryIndex struct {
	mu      sync.RWMutex
	sets    map[string]map[string]float64 // setKey -> alertID -> score
	details map[string]Detail             // alertID -> detail
}

// NewMemoryIndex 创建内存索引
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		sets:    make(map[string]map[string]float64),
		details: make(map[string]Detail),
	}
}

// FindCrossedAbove above 集合中阈值 <= ceiling 的告警 ID
func (m *MemoryIndex) FindCrossedAbove(ctx context.Context, set SetKey, ceiling float64) ([]string, error) {
	return m.rangeQuery(set, func(score float64) bool { return score <= ceiling }), nil
}

// FindCrossedBelow below 集合中阈值 >= floor 的告警 ID
func (m *MemoryIndex) FindCrossedBelow(ctx context.Context, set SetKey, floor float64) ([]string, error) {
	return m.rangeQuery(set, func(score float64) bool { return score >= floor }), nil
}

func (m *MemoryIndex) rangeQuery(set SetKey, match func(float64) bool) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, score := range m.sets[set.String()] {
		if match(score) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids) // 稳定输出，方便断言
	return ids
}

// Remove 幂等移除
func (m *MemoryIndex) Remove(ctx context.Context, set SetKey, alertID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sets[set.String()], alertID)
	return nil
}

// GetDetail 读详情，不存在返回 (nil, nil)
func (m *MemoryIndex) GetDetail(ctx context.Context, alertID string) (*Detail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.details[alertID]
	if !ok || d.Validate() != nil {
		return nil, nil
	}
	return &d, nil
}

// DeleteDetail 幂等删除详情
func (m *MemoryIndex) DeleteDetail(ctx context.Context, alertID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.details, alertID)
	return nil
}

// DiscoverMarkets 去重市场列表
func (m *MemoryIndex) DiscoverMarkets(ctx context.Context, kind market.Kind, interval market.Interval) ([]string, error) {
	prefix := priceKeyPrefix
	if kind == market.KindCandle {
		prefix = candleKeyPrefix + string(interval) + ":"
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for key, members := range m.sets {
		if len(members) == 0 {
			continue
		}
		if mkt, ok := marketFromKey(key, prefix); ok {
			seen[mkt] = struct{}{}
		}
	}

	markets := make([]string, 0, len(seen))
	for mkt := range seen {
		markets = append(markets, mkt)
	}
	sort.Strings(markets)
	return markets, nil
}

// ForEachDetail 遍历全部详情记录
func (m *MemoryIndex) ForEachDetail(ctx context.Context, fn func(Detail) error) error {
	m.mu.RLock()
	details := make([]Detail, 0, len(m.details))
	for _, d := range m.details {
		if d.Validate() == nil {
			details = append(details, d)
		}
	}
	m.mu.RUnlock()

	sort.Slice(details, func(i, j int) bool { return details[i].AlertID < details[j].AlertID })
	for _, d := range details {
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe 写入详情并加入集合
func (m *MemoryIndex) Subscribe(ctx context.Context, d Detail) error {
	if err := d.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := d.Set().String()
	if m.sets[key] == nil {
		m.sets[key] = make(map[string]float64)
	}
	m.sets[key][d.AlertID] = d.Score()
	m.details[d.AlertID] = d
	return nil
}

// Unsubscribe 摘除索引条目和详情
func (m *MemoryIndex) Unsubscribe(ctx context.Context, alertID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.details[alertID]; ok {
		delete(m.sets[d.Set().String()], alertID)
	}
	delete(m.details, alertID)
	return nil
}

// CorruptDetail 仅测试用: 把详情换成缺字段的残缺记录，模拟缓存层数据失真
func (m *MemoryIndex) CorruptDetail(alertID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.details[alertID] = Detail{AlertID: alertID}
}
