package journal

import (
	"context"
	"sync"
)

// DefaultCapacity 为内存流水的默认容量。
const DefaultCapacity = 512

// MemoryStore 以环形缓冲保存最近的流水，超出容量时淘汰最旧的条目。
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{entries: make([]Entry, capacity)}
}

// Append 实现 Store 接口。
func (m *MemoryStore) Append(_ context.Context, entry *Entry) error {
	if err := Prepare(entry); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[m.next] = *entry
	m.next = (m.next + 1) % len(m.entries)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

// ListLatest 按时间倒序返回最近的流水。
func (m *MemoryStore) ListLatest(_ context.Context, limit int) ([]Entry, error) {
	limit = NormalizeLimit(limit)
	m.mu.RLock()
	defer m.mu.RUnlock()

	size := m.next
	if m.full {
		size = len(m.entries)
	}
	if limit > size {
		limit = size
	}
	out := make([]Entry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (m.next - i + len(m.entries)) % len(m.entries)
		out = append(out, m.entries[idx])
	}
	return out, nil
}

// Close 实现 Store 接口。
func (m *MemoryStore) Close() error { return nil }
