package stream

import (
	"sync/atomic"
	"time"

	"github.com/purecast-io/purecast/pkg/audio/pcm"
)

// Recorder accumulates the enhanced segments of one session. Append is
// O(1): segments are retained as-is and nothing is concatenated until the
// recording is persisted at session close.
//
// Only the session's ingest goroutine appends and only after that
// goroutine has finished are the segments read back, so the slice needs no
// lock. The sample counter is atomic because stats snapshots read it from
// other goroutines.
type Recorder struct {
	rate     int
	segments [][]float32
	samples  atomic.Int64
}

// NewRecorder creates an accumulator for audio at the given sample rate.
func NewRecorder(rate int) *Recorder {
	return &Recorder{rate: rate}
}

// Append retains one enhanced segment. Empty segments are ignored.
func (r *Recorder) Append(seg []float32) {
	if len(seg) == 0 {
		return
	}
	r.segments = append(r.segments, seg)
	r.samples.Add(int64(len(seg)))
}

// Samples returns the total number of accumulated frames.
func (r *Recorder) Samples() int64 {
	return r.samples.Load()
}

// Duration returns the accumulated audio length.
func (r *Recorder) Duration() time.Duration {
	return time.Duration(r.samples.Load()) * time.Second / time.Duration(r.rate)
}

// Empty reports whether nothing was accumulated. A session that never
// received audio has no recording; that is a normal outcome, not an error.
func (r *Recorder) Empty() bool {
	return r.samples.Load() == 0
}

// Finalize concatenates the accumulated segments into one contiguous
// buffer and returns it with the recording duration. Samples are clamped
// to [-1, 1]; enhancement can overshoot slightly at crossfade boundaries.
// Returns nil when nothing was recorded. Call only after the session's
// ingest loop has finished.
func (r *Recorder) Finalize() ([]float32, time.Duration) {
	n := r.samples.Load()
	if n == 0 {
		return nil, 0
	}
	out := make([]float32, 0, n)
	for _, seg := range r.segments {
		out = append(out, seg...)
	}
	return pcm.Clamp(out), r.Duration()
}
