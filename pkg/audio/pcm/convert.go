package pcm

// Sample conversions between the three representations the pipeline moves
// through: interleaved little-endian bytes on the wire, int16 samples at the
// codec boundary, and normalized float32 samples inside the processing
// pipeline.

// Int16ToFloat32 converts int16 PCM samples to float32 in range [-1.0, 1.0].
func Int16ToFloat32(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = SampleToFloat32(s)
	}
	return out
}

// Float32ToInt16 converts normalized float32 samples to int16 PCM, clipping
// out-of-range values.
func Float32ToInt16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		out[i] = SampleToInt16(s)
	}
	return out
}

// SampleToFloat32 converts one int16 sample to float32 in range [-1.0, 1.0].
func SampleToFloat32(s int16) float32 {
	// Positive values divide by 32767, negative by 32768, so both ends of
	// the int16 range map exactly onto [-1.0, 1.0].
	if s >= 0 {
		return float32(s) / 32767
	}
	return float32(s) / 32768
}

// SampleToInt16 converts one normalized float32 sample to int16, clipping
// out-of-range values.
func SampleToInt16(t float32) int16 {
	if t > 1 {
		t = 1
	} else if t < -1 {
		t = -1
	}
	if t >= 0 {
		return int16(t * 32767)
	}
	return int16(t * 32768)
}

// Clamp limits every sample to [-1.0, 1.0] in place and returns the slice.
// Enhancement output is not guaranteed bounded, so recordings are clamped
// before they are encoded.
func Clamp(samples []float32) []float32 {
	for i, s := range samples {
		if s > 1 {
			samples[i] = 1
		} else if s < -1 {
			samples[i] = -1
		}
	}
	return samples
}

// Int16ToBytes converts int16 PCM samples to interleaved little-endian bytes.
func Int16ToBytes(in []int16) []byte {
	out := make([]byte, len(in)*2)
	for i, s := range in {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// BytesToInt16 converts interleaved little-endian bytes to int16 PCM samples.
// A trailing odd byte is ignored.
func BytesToInt16(in []byte) []int16 {
	out := make([]int16, len(in)/2)
	for i := range out {
		out[i] = int16(in[i*2]) | int16(in[i*2+1])<<8
	}
	return out
}
