package enhance

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/purecast-io/purecast/pkg/metrics"
)

// Adapter sits between the windowing engine and an Enhancer and enforces
// the engine-facing contract: every call returns a window of exactly the
// input length, and a failing model degrades the window to passthrough
// instead of propagating the error. A broken enhancer costs quality, never
// audio.
type Adapter struct {
	enh      Enhancer
	windows  atomic.Uint64
	failures atomic.Uint64
}

// NewAdapter wraps enh.
func NewAdapter(enh Enhancer) *Adapter {
	return &Adapter{enh: enh}
}

// Enhance processes one window and always returns a window of the same
// length. Model errors and length-contract violations are logged and
// counted, and the original window is returned unmodified.
func (a *Adapter) Enhance(window []float32) []float32 {
	a.windows.Add(1)
	out, err := a.enh.Process(window)
	if err != nil {
		a.fail()
		slog.Warn("enhancement failed, passing window through",
			"error", err, "samples", len(window))
		return window
	}
	if len(out) != len(window) {
		a.fail()
		slog.Warn("enhancer violated length contract, passing window through",
			"got", len(out), "want", len(window))
		return window
	}
	return out
}

func (a *Adapter) fail() {
	a.failures.Add(1)
	metrics.Default().EnhanceFailures.Add(context.Background(), 1)
}

// Windows returns the number of windows pushed through the adapter.
func (a *Adapter) Windows() uint64 {
	return a.windows.Load()
}

// Failures returns the number of windows that fell back to passthrough.
func (a *Adapter) Failures() uint64 {
	return a.failures.Load()
}

// Close releases the wrapped enhancer.
func (a *Adapter) Close() error {
	return a.enh.Close()
}
