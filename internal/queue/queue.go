package queue

import (
	"cmp"
	"slices"
	"sync"
)

type entry[T any] struct {
	seq  uint64
	item T
}

// Queue is a concurrency safe work list. PopBest evaluates the ordering when
// called, so a priority that follows changing state, such as the frame on
// screen, is never stale.
type Queue[T any] struct {
	mu      sync.Mutex
	entries []entry[T]
	seq     uint64
	ready   chan struct{}
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{ready: make(chan struct{}, 1)}
}

// Push adds items and wakes one waiting consumer.
func (q *Queue[T]) Push(items ...T) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	for _, it := range items {
		q.seq++
		q.entries = append(q.entries, entry[T]{seq: q.seq, item: it})
	}
	q.mu.Unlock()
	q.wake()
}

// PopBest removes the item that sorts first under less. Ties go to the item
// pushed last. ok is false when the queue is empty.
func (q *Queue[T]) PopBest(less func(a, b T) bool) (item T, ok bool) {
	q.mu.Lock()
	n := len(q.entries)
	if n == 0 {
		q.mu.Unlock()
		return item, false
	}
	best := 0
	for i := 1; i < n; i++ {
		a, b := q.entries[i], q.entries[best]
		if less(a.item, b.item) || (!less(b.item, a.item) && a.seq > b.seq) {
			best = i
		}
	}
	item = q.entries[best].item
	q.entries[best] = q.entries[n-1]
	q.entries[n-1] = entry[T]{}
	q.entries = q.entries[:n-1]
	more := n > 1
	q.mu.Unlock()

	// Another worker may be parked on Ready.
	if more {
		q.wake()
	}
	return item, true
}

// RemoveFunc removes every item matched by drop and returns them in push
// order.
func (q *Queue[T]) RemoveFunc(drop func(T) bool) []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	var removed []entry[T]
	kept := q.entries[:0]
	for _, e := range q.entries {
		if drop(e.item) {
			removed = append(removed, e)
		} else {
			kept = append(kept, e)
		}
	}
	clear(q.entries[len(kept):])
	q.entries = kept

	out := make([]T, len(removed))
	slices.SortFunc(removed, func(a, b entry[T]) int { return cmp.Compare(a.seq, b.seq) })
	for i, e := range removed {
		out[i] = e.item
	}
	return out
}

// Ready receives a value whenever items may be waiting. One wake-up can
// stand for many pushes, so consumers pop until PopBest reports empty.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Clear drops all items.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	clear(q.entries)
	q.entries = q.entries[:0]
}

func (q *Queue[T]) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
