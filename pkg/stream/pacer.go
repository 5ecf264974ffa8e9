package stream

import (
	"context"
	"errors"
	"time"

	"github.com/purecast-io/purecast/pkg/audio/pcm"
	"github.com/purecast-io/purecast/pkg/queue"
)

// FrameSink receives fixed-size PCM frames ready for encoding. The frame
// slice is reused between calls; implementations must consume it before
// returning.
type FrameSink interface {
	SendFrame(pcm []int16) error
}

// FrameSinkFunc adapts a function to the FrameSink interface.
type FrameSinkFunc func(pcm []int16) error

func (f FrameSinkFunc) SendFrame(pcm []int16) error { return f(pcm) }

// Pacer consumes one listener queue, re-slices the variable-length
// enhanced segments into fixed frames and delivers them at the wall-clock
// audio rate. Deadlines are cumulative from the first frame, so scheduling
// jitter does not accumulate into drift.
type Pacer struct {
	queue    *queue.Dropping[[]float32]
	sink     FrameSink
	samples  int
	interval time.Duration
}

// NewPacer creates a pacer emitting frames of frameSamples mono samples at
// the given rate.
func NewPacer(q *queue.Dropping[[]float32], sink FrameSink, rate, frameSamples int) *Pacer {
	return &Pacer{
		queue:    q,
		sink:     sink,
		samples:  frameSamples,
		interval: time.Duration(frameSamples) * time.Second / time.Duration(rate),
	}
}

// Run pumps frames until the queue is closed, the sink fails or ctx is
// canceled. On a graceful queue close the final partial frame is padded
// with silence so the stream tail is not lost. Returns nil when the stream
// ended normally.
func (p *Pacer) Run(ctx context.Context) error {
	frame := make([]int16, p.samples)
	fill := 0
	var next time.Time

	send := func() error {
		now := time.Now()
		if next.IsZero() {
			next = now
		}
		if gap := next.Sub(now); gap > 0 {
			timer := time.NewTimer(gap)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := p.sink.SendFrame(frame); err != nil {
			return err
		}
		next = next.Add(p.interval)
		fill = 0
		return nil
	}

	for {
		seg, err := p.queue.Next()
		if err != nil {
			if errors.Is(err, queue.ErrDone) {
				if fill > 0 {
					for i := fill; i < len(frame); i++ {
						frame[i] = 0
					}
					return send()
				}
				return nil
			}
			return err
		}
		for _, v := range seg {
			frame[fill] = pcm.SampleToInt16(v)
			fill++
			if fill == len(frame) {
				if err := send(); err != nil {
					return err
				}
			}
		}
	}
}
