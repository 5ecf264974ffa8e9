package webrtc

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"

	"github.com/pion/rtp"
	pion "github.com/pion/webrtc/v3"
)

// Listener is the outbound peer for one listener. It satisfies
// stream.FrameSink: the session's pacer pushes fixed PCM frames through
// SendFrame, which encodes them to Opus and writes RTP onto the local
// track. Only the pacer goroutine calls SendFrame, so the RTP sequence
// state needs no locking.
type Listener struct {
	cfg   Config
	id    string
	owner string
	enc   *opusEncoder
	track *pion.TrackLocalStaticRTP

	onDown func()
	pc     *pion.PeerConnection
	closed atomic.Bool

	seq  uint16
	ts   uint32
	ssrc uint32
}

// NewListener creates the outbound peer for a listener of owner's
// stream. onDown runs when the connection fails or the browser leaves.
func NewListener(cfg Config, owner, id string, onDown func()) (*Listener, error) {
	enc, err := newOpusEncoder()
	if err != nil {
		return nil, err
	}
	track, err := pion.NewTrackLocalStaticRTP(
		pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus},
		"audio",
		"purecast-"+owner,
	)
	if err != nil {
		return nil, fmt.Errorf("webrtc: create audio track: %w", err)
	}
	return &Listener{
		cfg:    cfg,
		id:     id,
		owner:  owner,
		enc:    enc,
		track:  track,
		onDown: onDown,
		ssrc:   rand.Uint32(),
	}, nil
}

// Answer takes the listener's SDP offer and returns the local answer
// with ICE candidates gathered. Call once per Listener.
func (l *Listener) Answer(offerSDP string) (string, error) {
	if l.pc != nil {
		return "", errors.New("webrtc: listener already answered")
	}
	pc, err := pion.NewPeerConnection(l.cfg.peerConfiguration())
	if err != nil {
		return "", fmt.Errorf("webrtc: create peer connection: %w", err)
	}
	l.pc = pc

	if _, err := pc.AddTrack(l.track); err != nil {
		pc.Close()
		return "", fmt.Errorf("webrtc: add track: %w", err)
	}

	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		slog.Info("listener peer state",
			"listener", l.id, "owner", l.owner, "state", state.String())
		switch state {
		case pion.PeerConnectionStateFailed, pion.PeerConnectionStateClosed:
			if !l.closed.Load() && l.onDown != nil {
				l.onDown()
			}
		}
	})

	offer := pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: offerSDP}
	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return "", fmt.Errorf("webrtc: set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return "", fmt.Errorf("webrtc: create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return "", fmt.Errorf("webrtc: set local description: %w", err)
	}
	<-pion.GatheringCompletePromise(pc)
	return pc.LocalDescription().SDP, nil
}

// SendFrame encodes one fixed-size PCM frame and writes it as RTP. The
// media clock advances for every frame; the sequence number only for
// packets actually sent, so a DTX gap shows up as a timestamp jump.
func (l *Listener) SendFrame(frame []int16) error {
	if l.closed.Load() {
		return ErrPeerClosed
	}
	data, err := l.enc.encode(frame)
	if err != nil {
		return err
	}
	ts := l.ts
	l.ts += uint32(len(frame))
	if len(data) == 0 {
		return nil
	}
	l.seq++
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    opusPayloadType,
			SequenceNumber: l.seq,
			Timestamp:      ts,
			SSRC:           l.ssrc,
		},
		Payload: data,
	}
	return l.track.WriteRTP(pkt)
}

// Close tears the peer connection down. The state-change callback is
// suppressed so a deliberate close does not re-enter listener removal.
func (l *Listener) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	if l.pc != nil {
		return l.pc.Close()
	}
	return nil
}
