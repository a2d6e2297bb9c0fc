package mailbox

import (
	"sync"
)

// growThreshold is the fill percentage at which the ring doubles.
const growThreshold = 70

// Queue is an unbounded FIFO. Producers never block: the ring doubles when it
// reaches 70% full. Consumers may block in Receive until an item arrives or
// the queue is closed.
type Queue[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	closed   bool

	// Stats
	enqueued  int64
	dequeued  int64
	grows     int
	highWater int
}

// New creates a queue with the given initial capacity (minimum 1).
func New[T any](initialCapacity int) *Queue[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	q := &Queue[T]{
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Send appends an item. Returns false if the queue is closed.
func (q *Queue[T]) Send(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	threshold := (q.capacity * growThreshold) / 100
	if threshold < 1 {
		threshold = 1
	}
	if q.count+1 >= threshold {
		q.grow()
	}

	q.buf[q.tail] = item
	q.tail = (q.tail + 1) % q.capacity
	q.count++
	q.enqueued++
	if q.count > q.highWater {
		q.highWater = q.count
	}

	q.cond.Signal()
	return true
}

// Receive removes the oldest item, blocking while the queue is empty and open.
// Returns false once the queue is closed and drained.
func (q *Queue[T]) Receive() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.pop(), true
}

// TryReceive removes the oldest item without blocking.
func (q *Queue[T]) TryReceive() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.pop(), true
}

// DrainTo removes up to max items (all if max <= 0) in FIFO order.
func (q *Queue[T]) DrainTo(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil
	}

	n := q.count
	if max > 0 && max < n {
		n = max
	}

	out := make([]T, n)
	for i := range out {
		out[i] = q.pop()
	}
	return out
}

// Close rejects further sends and wakes blocked receivers. Items already
// queued can still be received.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the current ring capacity.
func (q *Queue[T]) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Len:       q.count,
		Capacity:  q.capacity,
		Enqueued:  q.enqueued,
		Dequeued:  q.dequeued,
		Grows:     q.grows,
		HighWater: q.highWater,
	}
}

// Stats contains queue statistics.
type Stats struct {
	Len       int
	Capacity  int
	Enqueued  int64
	Dequeued  int64
	Grows     int
	HighWater int
}

// pop removes the head item. Must be called with lock held and count > 0.
func (q *Queue[T]) pop() T {
	item := q.buf[q.head]
	var zero T
	q.buf[q.head] = zero // release reference
	q.head = (q.head + 1) % q.capacity
	q.count--
	q.dequeued++
	return item
}

// grow doubles the ring. Must be called with lock held.
func (q *Queue[T]) grow() {
	newCapacity := q.capacity * 2
	newBuf := make([]T, newCapacity)

	if q.count > 0 {
		if q.head < q.tail {
			copy(newBuf, q.buf[q.head:q.tail])
		} else {
			n := copy(newBuf, q.buf[q.head:])
			copy(newBuf[n:], q.buf[:q.tail])
		}
	}

	q.buf = newBuf
	q.head = 0
	q.tail = q.count
	q.capacity = newCapacity
	q.grows++
}
