// Package fifo provides the unbounded FIFO queue behind the chain's single
// writer and the contract runtime's execution worker.
package fifo

import "sync"

// Queue is a thread-safe unbounded FIFO.
//
// Any goroutine may Enqueue; exactly one consumer goroutine should call
// TryDequeue and Wait. A buffered signal channel of size 1 coalesces
// wake-ups, and Close closes it so the consumer wakes up for shutdown.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{}
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items:  make([]T, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an item to the back of the queue.
// Returns false if the queue is closed.
func (q *Queue[T]) Enqueue(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, item)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front item without blocking.
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	// Clear the slot so the backing array does not pin the item.
	q.items[0] = zero
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return item, true
}

// Drained reports whether the queue is closed and empty.
func (q *Queue[T]) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.items) == 0
}

// Wait returns the wake-up channel. It receives after an Enqueue and is
// closed by Close.
func (q *Queue[T]) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting items. Items already queued can still be dequeued.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Serve runs fn on every item in FIFO order until the queue is closed and
// drained. It must be called from exactly one goroutine.
func (q *Queue[T]) Serve(fn func(T)) {
	for {
		item, ok := q.TryDequeue()
		if ok {
			fn(item)
			continue
		}
		if q.Drained() {
			return
		}
		<-q.Wait()
	}
}
