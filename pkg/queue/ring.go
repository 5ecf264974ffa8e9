package queue

import "sync"

// Ring is a thread-safe fixed-size buffer that overwrites the oldest
// element when full. It never blocks and never fails; it simply keeps the
// most recent capacity elements.
type Ring[T any] struct {
	mu         sync.Mutex
	buf        []T
	head, tail int64
}

// NewRing creates a ring holding at most capacity elements.
// It panics if capacity is not positive.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("queue: capacity must be positive")
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Add appends t, evicting the oldest element if the ring is full.
func (r *Ring[T]) Add(t T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.tail%int64(len(r.buf))] = t
	r.tail++
	if r.tail-r.head > int64(len(r.buf)) {
		r.head++
	}
}

// Snapshot returns a copy of the buffered elements, oldest first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, 0, r.tail-r.head)
	for i := r.head; i < r.tail; i++ {
		out = append(out, r.buf[i%int64(len(r.buf))])
	}
	return out
}

// Len returns the number of buffered elements.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.tail - r.head)
}
