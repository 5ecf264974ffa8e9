package window

import (
	"fmt"

	"github.com/purecast-io/purecast/pkg/audio/enhance"
)

// Config sets the windowing geometry, in frames at the model sample rate.
type Config struct {
	// ChunkFrames is the analysis window length. Every window handed to
	// the enhancer has exactly this many frames, except the final partial
	// window on flush.
	ChunkFrames int

	// OverlapFrames is the length of the crossfade region shared by
	// consecutive windows. Zero disables overlap entirely and windows abut
	// exactly. Must not exceed half the chunk, otherwise a frame would
	// belong to more than two windows.
	OverlapFrames int
}

func (c Config) validate() error {
	if c.ChunkFrames <= 0 {
		return fmt.Errorf("window: chunk must be positive, got %d frames", c.ChunkFrames)
	}
	if c.OverlapFrames < 0 {
		return fmt.Errorf("window: overlap must be non-negative, got %d frames", c.OverlapFrames)
	}
	if 2*c.OverlapFrames > c.ChunkFrames {
		return fmt.Errorf("window: overlap %d exceeds half the chunk %d", c.OverlapFrames, c.ChunkFrames)
	}
	return nil
}

// Engine is the per-track windowing and overlap-add state machine. It
// buffers resampled input, cuts full windows, runs them through the
// enhancement adapter and emits playable segments whose concatenation
// covers every input frame exactly once.
//
// The engine is not safe for concurrent use. Each broadcast session owns
// one instance and drives it from its ingest loop.
type Engine struct {
	chunk   int
	overlap int
	adapter *enhance.Adapter

	ramp     []float32 // crossfade gains for the new side, 0 to 1
	pending  []float32 // input buffered but not yet windowed
	prevTail []float32 // enhanced tail withheld from the last window
	flushed  bool
}

// New creates an engine with the given geometry.
func New(cfg Config, adapter *enhance.Adapter) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Engine{
		chunk:   cfg.ChunkFrames,
		overlap: cfg.OverlapFrames,
		adapter: adapter,
		ramp:    linearRamp(cfg.OverlapFrames),
	}, nil
}

// Push appends a block of mono frames and cuts as many full windows as the
// buffer now holds. It returns the playable segments produced, in order.
// Returned slices are freshly allocated and safe to retain; the input
// block may be reused by the caller. Push after Flush is a no-op.
func (e *Engine) Push(block []float32) [][]float32 {
	if e.flushed || len(block) == 0 {
		return nil
	}
	e.pending = append(e.pending, block...)

	var segs [][]float32
	for len(e.pending) >= e.chunk {
		win := make([]float32, e.chunk)
		copy(win, e.pending[:e.chunk])
		// Advance by the hop. With overlap the last frames stay in the
		// buffer and reappear as the head of the next window.
		e.pending = e.pending[e.chunk-e.overlap:]

		segs = append(segs, e.assemble(e.adapter.Enhance(win)))
	}
	return segs
}

// assemble turns one enhanced window into its emitted segment: crossfaded
// overlap, then the middle verbatim. The trailing overlap is withheld.
func (e *Engine) assemble(enhanced []float32) []float32 {
	ov := len(e.prevTail)
	end := len(enhanced) - e.overlap

	seg := make([]float32, 0, end)
	for i := 0; i < ov; i++ {
		p := e.prevTail[i]
		seg = append(seg, p+(enhanced[i]-p)*e.ramp[i])
	}
	seg = append(seg, enhanced[ov:end]...)

	if e.overlap > 0 {
		if e.prevTail == nil {
			e.prevTail = make([]float32, e.overlap)
		}
		copy(e.prevTail, enhanced[end:])
	}
	return seg
}

// Flush drains the engine at end of stream. A final partial window, if
// any input is still buffered, goes through the enhancer like any other;
// the withheld tail is resolved against it and everything is emitted,
// there being no further window to crossfade into. Flush is idempotent
// and returns nil when it has nothing to add.
func (e *Engine) Flush() [][]float32 {
	if e.flushed {
		return nil
	}
	e.flushed = true

	if len(e.pending) == 0 {
		if e.prevTail == nil {
			return nil
		}
		// No fresh input to fade against, release the tail as is.
		tail := e.prevTail
		e.prevTail = nil
		return [][]float32{tail}
	}

	win := make([]float32, len(e.pending))
	copy(win, e.pending)
	e.pending = nil
	enhanced := e.adapter.Enhance(win)

	// Whenever a tail is withheld the buffer retains at least overlap
	// frames, so the fade normally spans the full overlap. Cap it at the
	// enhanced length and emit whichever side extends past the fade.
	ov := len(e.prevTail)
	if ov > len(enhanced) {
		ov = len(enhanced)
	}
	ramp := e.ramp
	if ov != e.overlap {
		ramp = linearRamp(ov)
	}

	seg := make([]float32, 0, len(enhanced))
	for i := 0; i < ov; i++ {
		p := e.prevTail[i]
		seg = append(seg, p+(enhanced[i]-p)*ramp[i])
	}
	seg = append(seg, e.prevTail[ov:]...)
	seg = append(seg, enhanced[ov:]...)
	e.prevTail = nil
	return [][]float32{seg}
}

// Pending returns the number of buffered frames not yet windowed.
func (e *Engine) Pending() int {
	return len(e.pending)
}

// linearRamp returns n gains rising linearly from 0 to 1 inclusive.
func linearRamp(n int) []float32 {
	if n <= 0 {
		return nil
	}
	r := make([]float32, n)
	if n == 1 {
		return r
	}
	for i := range r {
		r[i] = float32(i) / float32(n-1)
	}
	return r
}
