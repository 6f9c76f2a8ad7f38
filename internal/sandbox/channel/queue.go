// Package channel provides the message plumbing between the host and an
// isolated context: an unbounded FIFO mailbox, paired private ports, and a
// broadcast bus used before a port handshake completes.
package channel

import "sync"

// Queue is an unbounded FIFO. Push never blocks. Consumers wait on Ready
// and then Drain everything queued so far.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	ready  chan struct{}
	closed bool
}

// NewQueue creates an empty open queue
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{ready: make(chan struct{}, 1)}
}

// Push appends v. It returns false once the queue is closed.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// Ready fires at least once after any Push since the last Drain
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Drain removes and returns every queued item in order
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

// Len returns the number of queued items
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close discards queued items and rejects further pushes
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.items = nil
}

// Closed reports whether Close was called
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
