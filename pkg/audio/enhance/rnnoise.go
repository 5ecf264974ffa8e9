package enhance

/*
#cgo pkg-config: rnnoise
#include <rnnoise.h>
#include <stdlib.h>
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"
)

// rnnoiseRate is the only sample rate the RNNoise model supports.
const rnnoiseRate = 48000

// RNNoise suppresses background noise using the RNNoise recurrent model.
// The model consumes fixed 10ms frames (480 samples at 48kHz) and carries
// recurrent state across frames, so one instance must see one track's
// samples in order.
type RNNoise struct {
	st        *C.DenoiseState
	frameSize int
	voiceProb float32
}

// NewRNNoise creates a denoiser. The model is trained for 48kHz mono input
// only; any other rate is rejected.
func NewRNNoise(rate int) (*RNNoise, error) {
	if rate != rnnoiseRate {
		return nil, fmt.Errorf("enhance: rnnoise requires %d Hz input, got %d", rnnoiseRate, rate)
	}
	st := C.rnnoise_create(nil)
	if st == nil {
		return nil, errors.New("enhance: failed to allocate rnnoise state")
	}
	return &RNNoise{
		st:        st,
		frameSize: int(C.rnnoise_get_frame_size()),
	}, nil
}

// Process denoises one window, one model frame at a time. A trailing
// remainder shorter than one model frame is passed through unmodified,
// which only occurs on the final flush window.
func (d *RNNoise) Process(window []float32) ([]float32, error) {
	if d.st == nil {
		return nil, errors.New("enhance: rnnoise is closed")
	}
	out := make([]float32, len(window))
	frame := make([]float32, d.frameSize)
	whole := len(window) / d.frameSize
	for i := 0; i < whole; i++ {
		off := i * d.frameSize
		// The model works in int16 sample range, not [-1, 1].
		for j := 0; j < d.frameSize; j++ {
			frame[j] = window[off+j] * 32768
		}
		prob := C.rnnoise_process_frame(d.st,
			(*C.float)(unsafe.Pointer(&frame[0])),
			(*C.float)(unsafe.Pointer(&frame[0])))
		d.voiceProb = float32(prob)
		for j := 0; j < d.frameSize; j++ {
			out[off+j] = frame[j] / 32768
		}
	}
	copy(out[whole*d.frameSize:], window[whole*d.frameSize:])
	return out, nil
}

// Rate returns 48000.
func (d *RNNoise) Rate() int {
	return rnnoiseRate
}

// VoiceProb returns the voice activity probability the model reported for
// the most recent frame, in [0, 1].
func (d *RNNoise) VoiceProb() float32 {
	return d.voiceProb
}

// Close frees the model state. The denoiser is unusable afterwards.
func (d *RNNoise) Close() error {
	if d.st != nil {
		C.rnnoise_destroy(d.st)
		d.st = nil
	}
	return nil
}
