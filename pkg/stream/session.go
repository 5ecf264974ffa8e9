package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/purecast-io/purecast/pkg/audio/enhance"
	"github.com/purecast-io/purecast/pkg/audio/resampler"
	"github.com/purecast-io/purecast/pkg/audio/window"
	"github.com/purecast-io/purecast/pkg/metrics"
	"github.com/purecast-io/purecast/pkg/queue"
)

// State is the lifecycle phase of a broadcast session. Transitions only
// move forward: created, active, closing, closed.
type State int32

const (
	StateCreated State = iota
	StateActive
	StateClosing
	StateClosed
)

// String returns the lowercase state name used in APIs and logs.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

var (
	// ErrSessionClosed is returned when an operation races a session that
	// has ended or is ending.
	ErrSessionClosed = errors.New("stream: session closed")

	// ErrNotActive is returned by AwaitActive when the broadcaster sent no
	// audio within the ready timeout.
	ErrNotActive = errors.New("stream: session not active")
)

// Saver persists a finished recording and returns its id. Implemented by
// the recordings store; nil disables persistence.
type Saver interface {
	Save(ctx context.Context, owner, title string, rate int, samples []float32) (string, error)
}

// Config assembles a session pipeline.
type Config struct {
	// Owner is the broadcaster's username. Required.
	Owner string

	// Title labels the session's recording. Defaults to a timestamped
	// name at save time.
	Title string

	// Enhancer selects the enhancement variant for this session.
	Enhancer enhance.Kind

	// Input describes the decoded audio the transport will push.
	Input resampler.Format

	// ModelRate is the pipeline sample rate.
	ModelRate int

	// ChunkFrames and OverlapFrames set the windowing geometry.
	ChunkFrames   int
	OverlapFrames int

	// IngestCapacity bounds the ingest queue, in blocks.
	IngestCapacity int

	// ListenerCapacity bounds each listener queue, in segments.
	ListenerCapacity int

	// ReadyTimeout bounds how long AwaitActive waits for the first frame.
	ReadyTimeout time.Duration

	// FlushTimeout bounds the recording save at session close.
	FlushTimeout time.Duration

	// Saver persists the recording at close. Nil skips persistence.
	Saver Saver
}

// Session is one live broadcast: a single producer pipeline fanning out to
// listeners. All audio flows through one ingest goroutine; every control
// surface (Ingest, Listen, Stop, AwaitActive) is safe for concurrent use.
type Session struct {
	id        string
	cfg       Config
	startedAt time.Time

	rs       *resampler.Resampler
	adapter  *enhance.Adapter
	engine   *window.Engine
	recorder *Recorder
	fanout   *Fanout
	ingest   *queue.Dropping[[]float32]

	state         atomic.Int32
	ready         chan struct{}
	done          chan struct{}
	stopOnce      sync.Once
	invalidBlocks atomic.Uint64
	samplesIn     atomic.Int64
	recordingID   atomic.Value // string

	// onClosed runs at the tail of the ingest goroutine, after the state
	// reaches closed. Set before Start.
	onClosed func(*Session)
}

// New assembles a session pipeline. Any construction failure (unsupported
// rate, enhancer unavailable, bad geometry) is fatal for the session and
// surfaces here; a running session no longer has fatal audio errors.
func New(cfg Config) (*Session, error) {
	if cfg.Owner == "" {
		return nil, errors.New("stream: owner required")
	}
	enh, err := enhance.New(cfg.Enhancer, cfg.ModelRate)
	if err != nil {
		return nil, err
	}
	adapter := enhance.NewAdapter(enh)
	rs, err := resampler.New(cfg.Input, cfg.ModelRate)
	if err != nil {
		adapter.Close()
		return nil, err
	}
	eng, err := window.New(window.Config{
		ChunkFrames:   cfg.ChunkFrames,
		OverlapFrames: cfg.OverlapFrames,
	}, adapter)
	if err != nil {
		adapter.Close()
		return nil, err
	}
	s := &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		startedAt: time.Now(),
		rs:        rs,
		adapter:   adapter,
		engine:    eng,
		recorder:  NewRecorder(cfg.ModelRate),
		fanout:    NewFanout(cfg.ListenerCapacity),
		ingest:    queue.NewDropping[[]float32](cfg.IngestCapacity),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.state.Store(int32(StateCreated))
	return s, nil
}

// Start launches the ingest goroutine. Call exactly once.
func (s *Session) Start() {
	metrics.Default().RecordSessionStart(context.Background(), s.cfg.Owner)
	slog.Info("session created",
		"session", s.id, "owner", s.cfg.Owner,
		"enhancer", string(s.cfg.Enhancer), "rate", s.cfg.ModelRate)
	go s.run()
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Owner returns the broadcaster's username.
func (s *Session) Owner() string { return s.cfg.Owner }

// Title returns the session title.
func (s *Session) Title() string { return s.cfg.Title }

// StartedAt returns the session creation time.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// State returns the current lifecycle phase.
func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed once the session reaches the closed state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Ingest hands a block of decoded source samples to the pipeline. It never
// blocks: when the ingest queue is full the block is dropped and counted.
// The first block moves the session to active. Ingest fails once the
// session is closing.
func (s *Session) Ingest(block []float32) error {
	s.activate()
	dropped, err := s.ingest.Push(block)
	if err != nil {
		return ErrSessionClosed
	}
	if dropped {
		metrics.Default().IngestDrops.Add(context.Background(), 1)
		slog.Warn("ingest queue full, dropping audio block",
			"session", s.id, "owner", s.cfg.Owner, "samples", len(block))
	}
	return nil
}

func (s *Session) activate() {
	if s.state.CompareAndSwap(int32(StateCreated), int32(StateActive)) {
		close(s.ready)
		slog.Info("session active", "session", s.id, "owner", s.cfg.Owner)
	}
}

// AwaitActive blocks until the broadcaster's first audio frame arrives.
// Listeners who join before media flows wait here instead of failing.
// Returns ErrNotActive after the ready timeout, ErrSessionClosed if the
// session ends first, or the context error.
func (s *Session) AwaitActive(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	default:
	}
	timer := time.NewTimer(s.cfg.ReadyTimeout)
	defer timer.Stop()
	select {
	case <-s.ready:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrNotActive, s.cfg.ReadyTimeout)
	}
}

// Listen attaches a listener and returns the queue its pacer consumes.
// Listeners cannot join once the session is closing.
func (s *Session) Listen(id string) (*queue.Dropping[[]float32], error) {
	if s.State() >= StateClosing {
		return nil, ErrSessionClosed
	}
	return s.fanout.Register(id)
}

// Unlisten detaches a listener, closing its queue.
func (s *Session) Unlisten(id string) {
	s.fanout.Unregister(id)
}

// Stop requests a graceful close and returns immediately; wait on Done for
// completion. The ingest queue is drained, the engine flushed, the
// recording saved and every listener released. Stop is idempotent and all
// close paths (API stop, broadcaster disconnect, replacement, shutdown)
// share it.
func (s *Session) Stop(reason string) {
	s.stopOnce.Do(func() {
		for {
			st := s.state.Load()
			if st >= int32(StateClosing) {
				break
			}
			if s.state.CompareAndSwap(st, int32(StateClosing)) {
				break
			}
		}
		slog.Info("session closing", "session", s.id, "owner", s.cfg.Owner, "reason", reason)
		s.ingest.CloseWrite()
	})
}

// run is the ingest goroutine: the only place audio state is touched.
func (s *Session) run() {
	met := metrics.Default()
	for {
		block, err := s.ingest.Next()
		if err != nil {
			break
		}
		s.samplesIn.Add(int64(len(block)))
		start := time.Now()
		resampled, err := s.rs.Resample(block)
		if err != nil {
			// Malformed input is dropped, the stream continues.
			s.invalidBlocks.Add(1)
			slog.Warn("dropping invalid audio block",
				"session", s.id, "owner", s.cfg.Owner, "error", err)
			continue
		}
		s.emit(s.engine.Push(resampled))
		met.ProcessDuration.Record(context.Background(), time.Since(start).Seconds())
	}

	s.Stop("ingest drained")
	s.emit(s.engine.Flush())
	s.saveRecording()
	s.fanout.Close()
	if err := s.adapter.Close(); err != nil {
		slog.Warn("failed to close enhancer", "session", s.id, "error", err)
	}
	s.state.Store(int32(StateClosed))
	close(s.done)

	met.RecordSessionClose(context.Background(), time.Since(s.startedAt).Seconds())
	slog.Info("session closed",
		"session", s.id, "owner", s.cfg.Owner,
		"duration", time.Since(s.startedAt).Round(time.Millisecond),
		"recorded", s.recorder.Duration().Round(time.Millisecond),
		"windows", s.adapter.Windows(),
		"enhance_failures", s.adapter.Failures(),
		"ingest_drops", s.ingest.Dropped(),
		"listener_drops", s.fanout.Dropped())
	if s.onClosed != nil {
		s.onClosed(s)
	}
}

func (s *Session) emit(segs [][]float32) {
	if len(segs) == 0 {
		return
	}
	for _, seg := range segs {
		s.recorder.Append(seg)
		s.fanout.Broadcast(seg)
	}
	metrics.Default().SegmentsEmitted.Add(context.Background(), int64(len(segs)))
}

func (s *Session) saveRecording() {
	if s.cfg.Saver == nil {
		return
	}
	if s.recorder.Empty() {
		slog.Info("no audio received, nothing to record",
			"session", s.id, "owner", s.cfg.Owner)
		return
	}
	ctx := context.Background()
	if s.cfg.FlushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.FlushTimeout)
		defer cancel()
	}
	samples, dur := s.recorder.Finalize()
	id, err := s.cfg.Saver.Save(ctx, s.cfg.Owner, s.cfg.Title, s.cfg.ModelRate, samples)
	if err != nil {
		slog.Error("failed to save recording",
			"session", s.id, "owner", s.cfg.Owner, "error", err)
		return
	}
	s.recordingID.Store(id)
	metrics.Default().RecordingsSaved.Add(ctx, 1)
	slog.Info("recording saved",
		"session", s.id, "owner", s.cfg.Owner,
		"recording", id, "duration", dur.Round(time.Millisecond))
}

// RecordingID returns the persisted recording id, or empty if none was
// saved (yet).
func (s *Session) RecordingID() string {
	if v, ok := s.recordingID.Load().(string); ok {
		return v
	}
	return ""
}

// Info is a point-in-time snapshot of a session for the API.
type Info struct {
	ID              string    `json:"id"`
	Owner           string    `json:"owner"`
	Title           string    `json:"title,omitempty"`
	State           string    `json:"state"`
	Denoise         bool      `json:"denoise"`
	StartedAt       time.Time `json:"started_at"`
	Listeners       int       `json:"listeners"`
	SamplesIn       int64     `json:"samples_in"`
	RecordedSamples int64     `json:"recorded_samples"`
	RecordedSeconds float64   `json:"recorded_seconds"`
	Windows         uint64    `json:"windows"`
	EnhanceFailures uint64    `json:"enhance_failures"`
	InvalidBlocks   uint64    `json:"invalid_blocks"`
	IngestDrops     uint64    `json:"ingest_drops"`
	ListenerDrops   uint64    `json:"listener_drops"`
	RecordingID     string    `json:"recording_id,omitempty"`
}

// Info snapshots the session state and counters.
func (s *Session) Info() Info {
	return Info{
		ID:              s.id,
		Owner:           s.cfg.Owner,
		Title:           s.cfg.Title,
		State:           s.State().String(),
		Denoise:         s.cfg.Enhancer != enhance.KindBypass,
		StartedAt:       s.startedAt,
		Listeners:       s.fanout.Count(),
		SamplesIn:       s.samplesIn.Load(),
		RecordedSamples: s.recorder.Samples(),
		RecordedSeconds: s.recorder.Duration().Seconds(),
		Windows:         s.adapter.Windows(),
		EnhanceFailures: s.adapter.Failures(),
		InvalidBlocks:   s.invalidBlocks.Load(),
		IngestDrops:     s.ingest.Dropped(),
		ListenerDrops:   s.fanout.Dropped(),
		RecordingID:     s.RecordingID(),
	}
}
