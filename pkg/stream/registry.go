package stream

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// ErrNoSession is returned when an owner has no live session.
var ErrNoSession = errors.New("stream: no live session")

// EventType names a lifecycle event published by the registry.
type EventType string

const (
	EventStarted EventType = "stream_started"
	EventStopped EventType = "stream_stopped"
)

// Event is a session lifecycle notification for presence consumers.
// Events carry the session id so consumers can tell a replacement apart
// from a restart of the same owner.
type Event struct {
	Type      EventType `json:"type"`
	Owner     string    `json:"owner"`
	SessionID string    `json:"session_id"`
	Title     string    `json:"title,omitempty"`
	Time      time.Time `json:"time"`
}

// Registry tracks live sessions by owner. Each owner has at most one live
// session: starting a new one stops the previous one (last writer wins).
type Registry struct {
	mu      sync.Mutex
	byOwner map[string]*Session
	subs    map[chan Event]struct{}
	closed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byOwner: make(map[string]*Session),
		subs:    make(map[chan Event]struct{}),
	}
}

// Start creates a session from cfg, registers it under its owner and
// launches its pipeline. A previous live session for the same owner is
// stopped; it finishes flushing in the background while the new session
// already owns the slot.
func (r *Registry) Start(cfg Config) (*Session, error) {
	s, err := New(cfg)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.New("stream: registry closed")
	}
	if old := r.byOwner[cfg.Owner]; old != nil {
		slog.Info("replacing live session",
			"owner", cfg.Owner, "old_session", old.ID(), "new_session", s.ID())
		old.Stop("replaced by new session")
	}
	r.byOwner[cfg.Owner] = s
	r.mu.Unlock()

	s.onClosed = r.sessionClosed
	s.Start()
	r.publish(Event{
		Type:      EventStarted,
		Owner:     s.Owner(),
		SessionID: s.ID(),
		Title:     s.Title(),
		Time:      time.Now(),
	})
	return s, nil
}

// sessionClosed runs from each session's ingest goroutine after it fully
// closes. A replaced session must not evict its replacement.
func (r *Registry) sessionClosed(s *Session) {
	r.mu.Lock()
	if cur, ok := r.byOwner[s.Owner()]; ok && cur == s {
		delete(r.byOwner, s.Owner())
	}
	r.mu.Unlock()
	r.publish(Event{
		Type:      EventStopped,
		Owner:     s.Owner(),
		SessionID: s.ID(),
		Time:      time.Now(),
	})
}

// Get returns the live session for owner.
func (r *Registry) Get(owner string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byOwner[owner]
	return s, ok
}

// Stop gracefully stops the live session for owner. Returns ErrNoSession
// when there is none; stopping an already stopping session is not an
// error.
func (r *Registry) Stop(owner, reason string) error {
	s, ok := r.Get(owner)
	if !ok {
		return ErrNoSession
	}
	s.Stop(reason)
	return nil
}

// List snapshots all live sessions, sorted by owner.
func (r *Registry) List() []Info {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.byOwner))
	for _, s := range r.byOwner {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	slices.SortFunc(infos, func(a, b Info) int {
		return strings.Compare(a.Owner, b.Owner)
	})
	return infos
}

// Subscribe returns a channel of lifecycle events and a cancel function.
// Slow subscribers lose events rather than blocking the registry.
func (r *Registry) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()
	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subs[ch]; ok {
			delete(r.subs, ch)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

func (r *Registry) publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch := range r.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close stops every live session and waits for each to finish flushing,
// bounded by ctx. Used at server shutdown.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.byOwner))
	for _, s := range r.byOwner {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Stop("server shutdown")
	}
	for _, s := range sessions {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
