// Package queue provides a priority-ordered waiting area for units of work.
//
// Items are ordered by priority (highest first) and, within a priority, by
// insertion order. The insertion sequence is the only tie-break; timestamps
// play no part in ordering.
package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

type entry[T any] struct {
	item     T
	priority Priority
	seq      uint64
}

type entryHeap[T any] []*entry[T]

func (h entryHeap[T]) Len() int { return len(h) }

func (h entryHeap[T]) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap[T]) Push(x any) { *h = append(*h, x.(*entry[T])) }

func (h *entryHeap[T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Queue is a concurrency-safe priority queue.
type Queue[T any] struct {
	mu    sync.Mutex
	items entryHeap[T]
	seq   uint64

	// ready holds at most one token and is signalled whenever the heap
	// becomes non-empty.
	ready chan struct{}
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		ready: make(chan struct{}, 1),
	}
}

// Put adds an item. It never blocks beyond the internal lock.
func (q *Queue[T]) Put(item T, priority Priority) {
	q.mu.Lock()
	q.seq++
	heap.Push(&q.items, &entry[T]{item: item, priority: priority, seq: q.seq})
	q.mu.Unlock()

	q.signal()
}

// Get removes and returns the highest-priority item. It blocks until an
// item is available, timeout elapses, or ctx is done. A timeout <= 0 waits
// on ctx alone. The boolean is false when nothing was dequeued.
func (q *Queue[T]) Get(ctx context.Context, timeout time.Duration) (T, bool) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		if item, ok := q.tryPop(); ok {
			return item, true
		}

		select {
		case <-q.ready:
		case <-expired:
			var zero T
			return zero, false
		case <-ctx.Done():
			var zero T
			return zero, false
		}
	}
}

// TryGet removes the highest-priority item without blocking.
func (q *Queue[T]) TryGet() (T, bool) {
	return q.tryPop()
}

func (q *Queue[T]) tryPop() (T, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		var zero T
		return zero, false
	}
	e := heap.Pop(&q.items).(*entry[T])
	remaining := len(q.items)
	q.mu.Unlock()

	// Pass the wake-up on so other getters see the remaining items.
	if remaining > 0 {
		q.signal()
	}
	return e.item, true
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Empty reports whether the queue holds no items.
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

// Find returns the first queued item matching fn. It scans every item and
// is intended for status lookups on small queues.
func (q *Queue[T]) Find(match func(T) bool) (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.items {
		if match(e.item) {
			return e.item, true
		}
	}
	var zero T
	return zero, false
}

// Remove deletes the first item matching fn and reports whether one was found.
func (q *Queue[T]) Remove(match func(T) bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.items {
		if match(e.item) {
			heap.Remove(&q.items, i)
			return true
		}
	}
	return false
}

// Drain removes every item and returns them in priority order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, 0, len(q.items))
	for len(q.items) > 0 {
		out = append(out, heap.Pop(&q.items).(*entry[T]).item)
	}
	return out
}
