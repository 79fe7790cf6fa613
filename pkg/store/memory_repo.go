// 文件: pkg/store/memory_repo.go
// 告警记录源内存实现 (单测用)
//
// 与 MySQL 版行为对齐: MarkTriggered 是比较后翻转的原子临界区，
// 并发下恰好一个调用者返回 true。

package store

import (
	"context"
	"sync"
)

// 确保实现了接口
var _ AlertRepository = (*MemoryAlertRepository)(nil)

// MemoryAlertRepository 内存版记录源
type MemoryAlertRepository struct {
	mu     sync.Mutex
	alerts map[string]*Alert
}

// NewMemoryAlertRepository 创建内存记录源
func NewMemoryAlertRepository() *MemoryAlertRepository {
	return &MemoryAlertRepository{alerts: make(map[string]*Alert)}
}

// Put 写入/覆盖一条告警 (测试布置数据用)
func (r *MemoryAlertRepository) Put(a Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := a
	r.alerts[a.ID] = &cp
}

// GetByID 按 ID 读取
func (r *MemoryAlertRepository) GetByID(ctx context.Context, id string) (*Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	cp := *a
	return &cp, nil
}

// MarkTriggered 条件翻转，并发下恰好一个赢家
func (r *MemoryAlertRepository) MarkTriggered(ctx context.Context, id string, triggeredAt int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[id]
	if !ok || a.Status != StatusPending {
		return false, nil
	}
	a.Status = StatusTriggered
	a.TriggeredAt = triggeredAt
	return true, nil
}
