package bridge

import (
	"context"
	"sync"
)

// fifo is a single-consumer FIFO. push never blocks; pop blocks until an
// item is available, the queue is closed, or ctx is done.
type fifo[T any] struct {
	mu     sync.Mutex
	items  []T
	max    int // <0: unbounded
	closed bool
	wake   chan struct{}
	what   string
}

func newFIFO[T any](max int, what string) *fifo[T] {
	return &fifo[T]{max: max, wake: make(chan struct{}, 1), what: what}
}

func (q *fifo[T]) push(v T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if q.max >= 0 && len(q.items) >= q.max {
		q.mu.Unlock()
		return tooBusyError{what: q.what}
	}
	q.items = append(q.items, v)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

func (q *fifo[T]) pop(ctx context.Context) (T, bool) {
	var zero T
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			return v, true
		}
		if q.closed {
			q.mu.Unlock()
			return zero, false
		}
		q.mu.Unlock()
		select {
		case <-q.wake:
		case <-ctx.Done():
			return zero, false
		}
	}
}

// close stops the queue and returns the items that were never popped.
func (q *fifo[T]) close() []T {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	left := q.items
	q.items = nil
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return left
}

func (q *fifo[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
