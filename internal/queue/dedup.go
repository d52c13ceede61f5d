// Package queue provides a FIFO work queue that holds each key at most once.
package queue

import (
	"container/list"
	"sync"
)

// Dedup is a FIFO queue with a membership set guarded by one mutex, so a key
// is in the set exactly when it is in the queue. Safe for concurrent use.
type Dedup[K comparable] struct {
	mu    sync.Mutex
	order *list.List
	index map[K]*list.Element
}

// NewDedup returns an empty queue.
func NewDedup[K comparable]() *Dedup[K] {
	return &Dedup[K]{
		order: list.New(),
		index: make(map[K]*list.Element),
	}
}

// EnqueueIfAbsent appends k unless it is already queued. It reports whether k
// was added.
func (q *Dedup[K]) EnqueueIfAbsent(k K) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.index[k]; ok {
		return false
	}
	q.index[k] = q.order.PushBack(k)
	return true
}

// Dequeue removes and returns the oldest key.
func (q *Dedup[K]) Dequeue() (K, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.order.Front()
	if front == nil {
		var zero K
		return zero, false
	}
	k := q.order.Remove(front).(K)
	delete(q.index, k)
	return k, true
}

// DequeueN removes up to n keys in FIFO order.
func (q *Dedup[K]) DequeueN(n int) []K {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > q.order.Len() {
		n = q.order.Len()
	}
	out := make([]K, 0, n)
	for i := 0; i < n; i++ {
		k := q.order.Remove(q.order.Front()).(K)
		delete(q.index, k)
		out = append(out, k)
	}
	return out
}

// Remove drops k from the queue if present.
func (q *Dedup[K]) Remove(k K) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.index[k]
	if !ok {
		return false
	}
	q.order.Remove(e)
	delete(q.index, k)
	return true
}

// RemoveFunc drops every key for which fn returns true and returns how many
// were removed.
func (q *Dedup[K]) RemoveFunc(fn func(K) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := 0
	for e := q.order.Front(); e != nil; {
		next := e.Next()
		k := e.Value.(K)
		if fn(k) {
			q.order.Remove(e)
			delete(q.index, k)
			removed++
		}
		e = next
	}
	return removed
}

// contains reports whether k is queued.
func (q *Dedup[K]) contains(k K) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.index[k]
	return ok
}

// Len returns the number of queued keys.
func (q *Dedup[K]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.order.Len()
}
