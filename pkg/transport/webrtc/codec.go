package webrtc

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/purecast-io/purecast/pkg/audio/pcm"
)

// WebRTC audio is Opus over a 48 kHz RTP clock; purecast negotiates mono.
const (
	// OpusRate is the sample rate of decoded browser audio.
	OpusRate = 48000

	opusChannels = 1

	// maxOpusFrameSamples covers the longest legal Opus frame (120 ms),
	// so the decoder never truncates a packet.
	maxOpusFrameSamples = OpusRate * 120 / 1000

	// opusPayloadType is the dynamic RTP payload type browsers assign to
	// Opus.
	opusPayloadType = 111
)

// opusDecoder decodes one broadcaster's Opus packets into mono float32
// PCM. Decoder state carries across packets, so each track gets its own.
type opusDecoder struct {
	dec *gopus.Decoder
}

func newOpusDecoder() (*opusDecoder, error) {
	dec, err := gopus.NewDecoder(OpusRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("webrtc: create opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec}, nil
}

func (d *opusDecoder) decode(packet []byte) ([]float32, error) {
	pcm16, err := d.dec.Decode(packet, maxOpusFrameSamples, false)
	if err != nil {
		return nil, fmt.Errorf("webrtc: opus decode: %w", err)
	}
	out := make([]float32, len(pcm16))
	for i, s := range pcm16 {
		out[i] = pcm.SampleToFloat32(s)
	}
	return out, nil
}

// opusEncoder encodes fixed-size int16 frames for one listener. Voice
// tuning: the pipeline output is denoised speech.
type opusEncoder struct {
	enc *gopus.Encoder
}

func newOpusEncoder() (*opusEncoder, error) {
	enc, err := gopus.NewEncoder(OpusRate, opusChannels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("webrtc: create opus encoder: %w", err)
	}
	return &opusEncoder{enc: enc}, nil
}

func (e *opusEncoder) encode(frame []int16) ([]byte, error) {
	data, err := e.enc.Encode(frame, len(frame), len(frame)*2)
	if err != nil {
		return nil, fmt.Errorf("webrtc: opus encode: %w", err)
	}
	return data, nil
}
