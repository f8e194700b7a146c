// Package runner implements the application lifecycle and concurrency
// model of spec.md §4.J/§5: define/freeze/run, bounded inter-thread
// queues with drop-newest-on-full delivery backed by a process-wide
// data-loss counter, converting adapter threads for type-mismatched
// feeder/consumer pairs, and goroutine supervision via errgroup.
package runner

import "sync/atomic"

// dataLossCounter is the process-wide relaxed atomic spec.md §5 names
// ("the data-loss counter uses a relaxed atomic").
var dataLossCounter atomic.Uint64

// DataLoss returns the current cumulative data-loss count.
func DataLoss() uint64 { return dataLossCounter.Load() }

// SampleAndResetDataLoss atomically reads and clears the counter,
// returning the value observed since the last call. Used by
// DataLossCounterModule and by tests.
func SampleAndResetDataLoss() uint64 { return dataLossCounter.Swap(0) }

// BoundedQueue is the single-producer/multi-consumer bounded channel of
// spec.md §5: capacity is a per-network parameter (default 3), and a
// full queue on push drops the newest write and increments the
// data-loss counter rather than blocking the feeder.
type BoundedQueue[T any] struct {
	ch chan T
}

// DefaultQueueDepth is the depth used when a network does not specify one.
const DefaultQueueDepth = 3

// NewBoundedQueue creates a queue of the given depth, substituting
// DefaultQueueDepth for depth<=0.
func NewBoundedQueue[T any](depth int) *BoundedQueue[T] {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &BoundedQueue[T]{ch: make(chan T, depth)}
}

// TryPush attempts a non-blocking send. On a full queue it drops the
// value and increments the data-loss counter, returning false.
func (q *BoundedQueue[T]) TryPush(v T) bool {
	select {
	case q.ch <- v:
		return true
	default:
		dataLossCounter.Add(1)
		return false
	}
}

// Pop blocks until a value is available or done is closed.
func (q *BoundedQueue[T]) Pop(done <-chan struct{}) (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	case <-done:
		var zero T
		return zero, false
	}
}

// TryPop drains one value without blocking.
func (q *BoundedQueue[T]) TryPop() (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Len reports the number of values currently queued.
func (q *BoundedQueue[T]) Len() int { return len(q.ch) }
