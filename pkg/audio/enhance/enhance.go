// Package enhance wraps the speech enhancement model behind a uniform
// window-in, window-out interface.
//
// The enhancement variant is selected once per session at construction
// (bypass vs model), never branched per call. Disabling denoising is a
// first-class mode, not an error path. The Adapter type enforces the
// contract the windowing engine relies on: output always has the same
// length as input, and a failed model call degrades to passthrough.
package enhance

import (
	"fmt"
)

// Enhancer processes one analysis window of mono float samples and returns
// a window of identical length. Implementations are stateful and not safe
// for concurrent use; each session owns its enhancer instances.
type Enhancer interface {
	// Process enhances one window. The returned slice has the same length
	// as the input on success. Windows shorter than a full chunk occur at
	// stream flush and must be tolerated.
	Process(window []float32) ([]float32, error)

	// Rate returns the sample rate the enhancer operates at.
	Rate() int

	// Close releases model resources.
	Close() error
}

// Kind names an enhancement variant.
type Kind string

const (
	// KindBypass passes audio through unmodified.
	KindBypass Kind = "bypass"

	// KindRNNoise runs the RNNoise suppression model.
	KindRNNoise Kind = "rnnoise"
)

// Valid reports whether k names a known variant.
func (k Kind) Valid() bool {
	switch k {
	case KindBypass, KindRNNoise:
		return true
	}
	return false
}

// New creates the enhancer variant named by kind at the given sample rate.
// An error here means the model is unavailable for the session and the
// session cannot start.
func New(kind Kind, rate int) (Enhancer, error) {
	switch kind {
	case KindBypass:
		return NewBypass(rate), nil
	case KindRNNoise:
		return NewRNNoise(rate)
	}
	return nil, fmt.Errorf("enhance: unknown enhancer %q", kind)
}

// Bypass is the identity enhancer, used when a session has denoising
// disabled.
type Bypass struct {
	rate int
}

// NewBypass creates a passthrough enhancer at the given rate.
func NewBypass(rate int) *Bypass {
	return &Bypass{rate: rate}
}

// Process returns the window unmodified.
func (b *Bypass) Process(window []float32) ([]float32, error) {
	return window, nil
}

// Rate returns the sample rate the enhancer operates at.
func (b *Bypass) Rate() int {
	return b.rate
}

// Close is a no-op.
func (b *Bypass) Close() error {
	return nil
}
