package runq

import (
	"sync"
	"sync/atomic"
	"time"
)

// Queue is an unbounded FIFO with many producers and a single consumer.
// Push and Poll report the exact queue length after the operation, observed
// under the queue lock, so that callers can detect a specific length being
// reached without racing other producers.
type Queue[T any] struct {

	// mu protects items and closed.
	mu *sync.Mutex

	// items holds the queued elements, head first.
	items []T

	// length mirrors len(items) for lock-free readers.
	length *atomic.Int64

	// notify carries at most one pending wake-up for the consumer. A single slot is
	// enough because there is only one consumer, and it re-checks items after every
	// wake-up.
	notify chan struct{}

	// closed marks the queue as no longer accepting items.
	closed bool
}

//region Implementation

// Push appends item to the tail of the queue and returns the queue length
// including item. It never blocks. If the queue has been closed the item is
// not queued and ok is false.
func (q *Queue[T]) Push(item T) (depth int, ok bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0, false
	}
	q.items = append(q.items, item)
	depth = len(q.items)
	q.length.Store(int64(depth))
	q.mu.Unlock()

	// Wake the consumer without blocking if a wake-up is already pending.
	select {
	case q.notify <- struct{}{}:
	default:
	}

	return depth, true
}

// Poll removes and returns the head of the queue, waiting up to timeout for an
// item to arrive. depth is the queue length after the removal. ok is false if
// the timeout elapsed with the queue still empty, or if the queue was closed.
//
// Poll must only be called from a single goroutine.
func (q *Queue[T]) Poll(timeout time.Duration) (item T, depth int, ok bool) {

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if item, depth, ok = q.tryPop(); ok {
			return item, depth, true
		}

		if q.isClosed() {
			return item, 0, false
		}

		if timer == nil {
			timer = time.NewTimer(timeout)
		}

		select {
		case <-q.notify:
			// Re-check items.
		case <-timer.C:
			item, depth, ok = q.tryPop()
			return item, depth, ok
		}
	}
}

// Len returns the current queue length.
func (q *Queue[T]) Len() int {
	return int(q.length.Load())
}

// Close stops the queue from accepting new items and returns whatever was
// still queued, head first. Close is idempotent; later calls return nil.
func (q *Queue[T]) Close() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true

	remaining := q.items
	q.items = nil
	q.length.Store(0)

	// Wake a consumer that may be parked in Poll.
	select {
	case q.notify <- struct{}{}:
	default:
	}

	return remaining
}

//endregion

//region Helpers

// tryPop removes the head of the queue if there is one.
func (q *Queue[T]) tryPop() (item T, depth int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return item, 0, false
	}

	item = q.items[0]

	// Clear the slot so the popped element can be garbage collected.
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]

	depth = len(q.items)
	q.length.Store(int64(depth))
	return item, depth, true
}

// isClosed reports whether Close has been called.
func (q *Queue[T]) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

//endregion

//region Constructor

// New returns an empty, open Queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		mu:     &sync.Mutex{},
		length: &atomic.Int64{},
		notify: make(chan struct{}, 1),
	}
}

//endregion
