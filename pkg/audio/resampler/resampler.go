package resampler

import (
	"errors"
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// ErrInvalidFrame reports an inbound block that is empty or not aligned to
// the track's channel count. Callers drop the frame and continue; a single
// bad frame never terminates a session.
var ErrInvalidFrame = errors.New("resampler: invalid frame")

// Format describes the sample layout of one inbound track.
type Format struct {
	// SampleRate is the track's sample rate in Hz.
	SampleRate int

	// Channels is the number of interleaved channels (1 or 2).
	Channels int
}

// Resampler converts interleaved float32 blocks from a source track format
// to mono at a fixed output rate. Filter state carries across calls, so one
// Resampler serves exactly one inbound track and is not safe for concurrent
// use.
type Resampler struct {
	src     Format
	dstRate int

	// rs is nil when the source rate already matches the output rate and
	// only channel conversion is required.
	rs resampling.Resampler
}

// New creates a Resampler converting src blocks to mono at dstRate.
func New(src Format, dstRate int) (*Resampler, error) {
	if src.SampleRate <= 0 {
		return nil, fmt.Errorf("resampler: invalid source rate %d", src.SampleRate)
	}
	if dstRate <= 0 {
		return nil, fmt.Errorf("resampler: invalid output rate %d", dstRate)
	}
	if src.Channels != 1 && src.Channels != 2 {
		return nil, fmt.Errorf("resampler: unsupported channel count %d", src.Channels)
	}

	r := &Resampler{src: src, dstRate: dstRate}

	if src.SampleRate != dstRate {
		// Downmix happens before rate conversion, so the filter always
		// runs single-channel.
		rs, err := resampling.New(&resampling.Config{
			InputRate:  float64(src.SampleRate),
			OutputRate: float64(dstRate),
			Channels:   1,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("resampler: create filter: %w", err)
		}
		r.rs = rs
	}

	return r, nil
}

// Rate returns the output sample rate in Hz.
func (r *Resampler) Rate() int {
	return r.dstRate
}

// Resample converts one interleaved block to mono samples at the output
// rate. The output length varies call to call while the filter settles; the
// total signal duration is preserved across the stream. When no conversion
// is needed the returned slice may alias the input.
func (r *Resampler) Resample(block []float32) ([]float32, error) {
	if len(block) == 0 || len(block)%r.src.Channels != 0 {
		return nil, ErrInvalidFrame
	}

	mono := block
	if r.src.Channels == 2 {
		mono = downmix(block)
	}

	if r.rs == nil {
		return mono, nil
	}

	in := make([]float64, len(mono))
	for i, s := range mono {
		in[i] = float64(s)
	}

	out, err := r.rs.Process(in)
	if err != nil {
		return nil, fmt.Errorf("resampler: process: %w", err)
	}

	res := make([]float32, len(out))
	for i, s := range out {
		res[i] = float32(s)
	}
	return res, nil
}

// downmix averages interleaved stereo samples into a new mono block.
func downmix(block []float32) []float32 {
	mono := make([]float32, len(block)/2)
	for i := range mono {
		mono[i] = (block[i*2] + block[i*2+1]) / 2
	}
	return mono
}
