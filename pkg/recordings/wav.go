package recordings

import (
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/purecast-io/purecast/pkg/audio/pcm"
)

// encodeWAV writes samples as 16-bit mono PCM WAV. The encoder seeks back
// to fill in the chunk sizes, hence the WriteSeeker.
func encodeWAV(w io.WriteSeeker, rate int, samples []float32) error {
	enc := wav.NewEncoder(w, rate, 16, 1, 1)
	data := make([]int, len(samples))
	for i, v := range samples {
		data[i] = int(pcm.SampleToInt16(v))
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}
