package queue

import "sync"

// Mailbox is an unbounded multi-producer queue drained in batches by a
// single consumer.
type Mailbox[T any] struct {
	mu    sync.Mutex
	items []T
}

// Push appends v.
func (m *Mailbox[T]) Push(v T) {
	m.mu.Lock()
	m.items = append(m.items, v)
	m.mu.Unlock()
}

// Drain removes and returns everything pushed so far, oldest first.
func (m *Mailbox[T]) Drain() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.items
	m.items = nil
	return out
}

// Len returns the number of waiting items.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
