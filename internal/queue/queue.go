// Package queue is an unbounded FIFO shared by one producer side (the
// rotation path) and one consumer (the upload lane). Push never blocks.
package queue

import "sync"

// FIFO is safe for concurrent use without external locking.
type FIFO[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	notify chan struct{}
}

// New returns an empty queue.
func New[T any]() *FIFO[T] {
	return &FIFO[T]{notify: make(chan struct{}, 1)}
}

// Push appends v and wakes a waiting consumer.
func (q *FIFO[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.Wake()
}

// Pop removes the oldest item. ok is false when the queue is empty.
func (q *FIFO[T]) Pop() (v T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == len(q.items) {
		return v, false
	}
	v = q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return v, true
}

// Len returns the number of queued items.
func (q *FIFO[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Drop empties the queue and returns how many items were discarded.
func (q *FIFO[T]) Drop() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items) - q.head
	q.items = nil
	q.head = 0
	return n
}

// Wake signals the consumer without adding an item.
func (q *FIFO[T]) Wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Ready is signalled after Push or Wake. A receive does not guarantee an item.
func (q *FIFO[T]) Ready() <-chan struct{} { return q.notify }
