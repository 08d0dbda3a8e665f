package buffer

import (
	"sync"

	"go.uber.org/zap"
)

// RingBuffer is a thread-safe generic circular buffer.
// When full, adding an item overwrites the oldest one.
type RingBuffer[T any] struct {
	mu       sync.RWMutex
	data     []T
	capacity int
	size     int
	head     int
	dropped  uint64
	logger   *zap.Logger
}

// New creates a new RingBuffer with the specified capacity
func New[T any](capacity int, logger *zap.Logger) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{
		data:     make([]T, capacity),
		capacity: capacity,
		logger:   logger,
	}
}

// Add inserts items in order, overwriting the oldest entries when full
func (rb *RingBuffer[T]) Add(items ...T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	overwritten := 0
	for _, item := range items {
		if rb.size == rb.capacity {
			overwritten++
		}

		rb.data[rb.head] = item
		rb.head = (rb.head + 1) % rb.capacity

		if rb.size < rb.capacity {
			rb.size++
		}
	}

	if overwritten > 0 {
		rb.dropped += uint64(overwritten)
		rb.logger.Warn("ring buffer full, overwrote oldest entries",
			zap.Int("capacity", rb.capacity),
			zap.Int("overwritten", overwritten))
	}
}

// Drain atomically removes and returns all buffered items, oldest first.
// The returned slice is a copy owned by the caller.
func (rb *RingBuffer[T]) Drain() []T {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size == 0 {
		return nil
	}

	// oldest entry sits at head once the buffer has wrapped
	tail := (rb.head - rb.size + rb.capacity) % rb.capacity
	results := make([]T, rb.size)
	for i := range results {
		results[i] = rb.data[(tail+i)%rb.capacity]
	}

	var zero T
	for i := range rb.data {
		rb.data[i] = zero
	}
	rb.size = 0
	rb.head = 0

	return results
}

// Size returns the current number of entries in the buffer
func (rb *RingBuffer[T]) Size() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}

// Capacity returns the maximum capacity of the buffer
func (rb *RingBuffer[T]) Capacity() int {
	return rb.capacity
}

// Dropped returns how many entries were overwritten before being drained
func (rb *RingBuffer[T]) Dropped() uint64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.dropped
}
