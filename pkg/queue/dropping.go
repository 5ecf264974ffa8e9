package queue

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrDone is returned by Next when the queue is closed for writing and
// every remaining element has been consumed.
var ErrDone = errors.New("queue: done")

// Dropping is a thread-safe bounded FIFO that never blocks the producer.
//
// When the queue is full, Push discards the incoming element and reports
// the drop; elements already queued are preserved. The consumer side
// blocks in Next until an element arrives or the queue is closed. This
// asymmetry is the backbone of the realtime pipeline: producers run at
// wall-clock speed and must not be stalled by a slow consumer.
type Dropping[T any] struct {
	cond *sync.Cond

	mu         sync.Mutex
	buf        []T
	head, tail int64
	dropped    uint64
	closeWrite bool
	closeErr   error
}

// NewDropping creates a queue holding at most capacity elements.
// It panics if capacity is not positive.
func NewDropping[T any](capacity int) *Dropping[T] {
	if capacity <= 0 {
		panic("queue: capacity must be positive")
	}
	q := &Dropping[T]{buf: make([]T, capacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues t without ever blocking. If the queue is full the element
// is discarded and Push returns dropped=true. Push fails once the queue is
// closed for writing.
func (q *Dropping[T]) Push(t T) (dropped bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeErr != nil {
		return false, fmt.Errorf("queue: push to closed queue: %w", q.closeErr)
	}
	if q.closeWrite {
		return false, fmt.Errorf("queue: push to closed queue: %w", io.ErrClosedPipe)
	}
	if q.tail-q.head == int64(len(q.buf)) {
		q.dropped++
		return true, nil
	}
	q.buf[q.tail%int64(len(q.buf))] = t
	q.tail++
	q.cond.Signal()
	return false, nil
}

// Next removes and returns the oldest element. It blocks until an element
// is available or the queue is closed. After CloseWrite it keeps returning
// queued elements until the queue is drained, then reports ErrDone.
func (q *Dropping[T]) Next() (t T, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeErr != nil {
		err = fmt.Errorf("queue: next from closed queue: %w", q.closeErr)
		return
	}
	for q.head == q.tail {
		if q.closeWrite {
			err = ErrDone
			return
		}
		q.cond.Wait()
		if q.closeErr != nil {
			err = fmt.Errorf("queue: next from closed queue: %w", q.closeErr)
			return
		}
	}
	i := q.head % int64(len(q.buf))
	t = q.buf[i]
	var zero T
	q.buf[i] = zero
	q.head++
	return t, nil
}

// CloseWrite closes the producer side. Queued elements remain readable;
// once drained, Next reports ErrDone. Closing an already closed queue is
// a no-op.
func (q *Dropping[T]) CloseWrite() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeWrite {
		return nil
	}
	q.closeWrite = true
	q.cond.Broadcast()
	return nil
}

// CloseWithError tears the queue down immediately. All pending and future
// operations fail with the given error, which Error reports afterwards.
// A nil err defaults to io.ErrClosedPipe.
func (q *Dropping[T]) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeErr != nil {
		return nil
	}
	q.closeErr = err
	q.closeWrite = true
	q.cond.Broadcast()
	return nil
}

// Close tears the queue down immediately with io.ErrClosedPipe.
func (q *Dropping[T]) Close() error {
	return q.CloseWithError(io.ErrClosedPipe)
}

// Error returns the error the queue was closed with, if any.
func (q *Dropping[T]) Error() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closeErr
}

// Len returns the number of queued elements.
func (q *Dropping[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int(q.tail - q.head)
}

// Dropped returns how many elements Push has discarded.
func (q *Dropping[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
