// 文件: pkg/notify/memory_notifier.go
// 记录型发射器 (单测用)

package notify

import (
	"context"
	"sync"
)

// 确保实现了接口
var _ Notifier = (*MemoryNotifier)(nil)
var _ Journal = (*MemoryJournal)(nil)

// MemoryNotifier 把事件攒在内存里供断言；可注入错误模拟投递失败
type MemoryNotifier struct {
	mu     sync.Mutex
	events []Event

	// FailWith 非 nil 时每次 Notify 返回该错误 (事件仍记录，便于断言调用次数)
	FailWith error
}

// NewMemoryNotifier 创建记录型发射器
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{}
}

// Notify 记录事件
func (m *MemoryNotifier) Notify(ctx context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.FailWith
}

// Events 已记录事件快照
func (m *MemoryNotifier) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// MemoryJournal 内存版触发流水
type MemoryJournal struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryJournal 创建内存流水
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

// Record 记录事件
func (m *MemoryJournal) Record(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

// Events 已记录事件快照
func (m *MemoryJournal) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
