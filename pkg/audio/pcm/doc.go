// Package pcm provides types and utilities for working with PCM (Pulse Code Modulation) audio data.
//
// The package defines audio formats for the mono 16-bit configurations the
// pipeline operates on (the Opus-compatible sample rates) and the sample
// conversions used at the transport and recording boundaries: interleaved
// little-endian bytes, int16 samples, and normalized float32 samples.
//
// Key types:
//   - Format: Represents audio format (sample rate, channels, bit depth)
//
// Example usage:
//
//	// Pick the 48kHz mono format
//	format, ok := pcm.FormatForRate(48000)
//
//	// Calculate samples in a 20ms listener frame
//	n := format.SamplesInDuration(20 * time.Millisecond)
//
//	// Convert decoded transport samples for the processing pipeline
//	samples := pcm.Int16ToFloat32(decoded)
package pcm
