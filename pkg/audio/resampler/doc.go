// Package resampler converts inbound track audio to mono PCM at the
// pipeline's model sample rate.
//
// It supports:
//   - Sample rate conversion between arbitrary rates
//   - Channel downmix (stereo to mono by averaging)
//   - Block-oriented streaming: filter state carries across calls
//
// A Resampler is stateful per source track and must never be shared across
// tracks or sessions. Rate conversion uses the pure Go soxr-style resampler
// from github.com/tphakala/go-audio-resampling at high quality.
//
// Example usage:
//
//	r, err := resampler.New(resampler.Format{SampleRate: 24000, Channels: 1}, 48000)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := r.Resample(block)
package resampler
