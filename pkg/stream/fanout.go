package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/purecast-io/purecast/pkg/metrics"
	"github.com/purecast-io/purecast/pkg/queue"
)

// ErrFanoutClosed is returned by Register once the session has started
// closing; late listeners cannot join a stream that is ending.
var ErrFanoutClosed = errors.New("stream: fanout closed")

// Fanout delivers enhanced segments to every registered listener through
// bounded per-listener queues. Broadcast never blocks: a listener whose
// queue is full loses that segment while everyone else still gets it.
// Each listener queue holds its own copy of a segment, so no sample buffer
// is ever shared across goroutines.
type Fanout struct {
	queueCap int

	mu        sync.Mutex
	listeners map[string]*queue.Dropping[[]float32]
	closed    bool
	dropped   uint64
}

// NewFanout creates a distributor whose listener queues hold at most
// queueCap segments each.
func NewFanout(queueCap int) *Fanout {
	return &Fanout{
		queueCap:  queueCap,
		listeners: make(map[string]*queue.Dropping[[]float32]),
	}
}

// Register attaches a listener and returns the queue its pacer consumes.
func (f *Fanout) Register(id string) (*queue.Dropping[[]float32], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrFanoutClosed
	}
	if _, ok := f.listeners[id]; ok {
		return nil, errors.New("stream: listener already registered: " + id)
	}
	q := queue.NewDropping[[]float32](f.queueCap)
	f.listeners[id] = q
	metrics.Default().ActiveListeners.Add(context.Background(), 1)
	return q, nil
}

// Unregister detaches a listener and tears its queue down, unblocking the
// pacer. Unknown ids are ignored.
func (f *Fanout) Unregister(id string) {
	f.mu.Lock()
	q, ok := f.listeners[id]
	if ok {
		delete(f.listeners, id)
	}
	f.mu.Unlock()
	if ok {
		q.Close()
		metrics.Default().ActiveListeners.Add(context.Background(), -1)
	}
}

// Broadcast pushes a copy of one segment to every listener queue. It never
// blocks: full queues drop the new segment for that listener only.
func (f *Fanout) Broadcast(seg []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, q := range f.listeners {
		cp := make([]float32, len(seg))
		copy(cp, seg)
		dropped, err := q.Push(cp)
		if err != nil {
			// Lost the race with Unregister; the listener is gone anyway.
			continue
		}
		if dropped {
			f.dropped++
			metrics.Default().ListenerDrops.Add(context.Background(), 1)
			slog.Warn("listener queue full, dropping segment",
				"listener", id, "samples", len(seg))
		}
	}
}

// Close closes the producer side of every listener queue so pacers can
// drain what is buffered and then stop. Further Register calls fail.
func (f *Fanout) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	n := len(f.listeners)
	for id, q := range f.listeners {
		q.CloseWrite()
		delete(f.listeners, id)
	}
	if n > 0 {
		metrics.Default().ActiveListeners.Add(context.Background(), int64(-n))
	}
}

// Count returns the number of attached listeners.
func (f *Fanout) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

// Dropped returns the total number of segments dropped across all
// listeners.
func (f *Fanout) Dropped() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}
