package webrtc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	pion "github.com/pion/webrtc/v3"
)

// ErrPeerClosed is returned by operations on a peer that has been closed.
var ErrPeerClosed = errors.New("webrtc: peer closed")

// Config carries the ICE servers peers are built with. Empty means
// host-only candidates, which is enough for localhost and LAN testing.
type Config struct {
	ICEServers []string
}

func (c Config) peerConfiguration() pion.Configuration {
	var cfg pion.Configuration
	if len(c.ICEServers) > 0 {
		cfg.ICEServers = []pion.ICEServer{{URLs: c.ICEServers}}
	}
	return cfg
}

// Ingestor receives decoded broadcaster audio. *stream.Session satisfies
// it; Ingest must not block.
type Ingestor interface {
	Ingest(block []float32) error
}

// Broadcaster is the inbound peer for one session. It answers the
// browser's offer, decodes the Opus track and feeds PCM blocks into the
// session until the track or the connection ends.
type Broadcaster struct {
	cfg    Config
	owner  string
	dec    *opusDecoder
	sink   Ingestor
	onDown func(reason string)

	pc         *pion.PeerConnection
	trackTaken atomic.Bool
	closed     atomic.Bool

	packets    atomic.Uint64
	decodeErrs atomic.Uint64
}

// NewBroadcaster creates the inbound peer for owner's session. onDown
// runs when the connection fails or the remote hangs up; it must be safe
// to call more than once (session Stop is).
func NewBroadcaster(cfg Config, owner string, sink Ingestor, onDown func(reason string)) (*Broadcaster, error) {
	dec, err := newOpusDecoder()
	if err != nil {
		return nil, err
	}
	return &Broadcaster{
		cfg:    cfg,
		owner:  owner,
		dec:    dec,
		sink:   sink,
		onDown: onDown,
	}, nil
}

// Answer takes the browser's SDP offer and returns the local answer with
// ICE candidates gathered. Call once per Broadcaster.
func (b *Broadcaster) Answer(offerSDP string) (string, error) {
	if b.pc != nil {
		return "", errors.New("webrtc: broadcaster already answered")
	}
	pc, err := pion.NewPeerConnection(b.cfg.peerConfiguration())
	if err != nil {
		return "", fmt.Errorf("webrtc: create peer connection: %w", err)
	}
	b.pc = pc

	pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		if track.Kind() != pion.RTPCodecTypeAudio {
			return
		}
		// One decoder, one track. A renegotiated second audio track is
		// ignored rather than interleaved into the same session.
		if b.trackTaken.Swap(true) {
			slog.Warn("ignoring extra audio track", "owner", b.owner, "track", track.ID())
			return
		}
		slog.Info("broadcast track up",
			"owner", b.owner, "track", track.ID(), "codec", track.Codec().MimeType)
		go b.readTrack(track)
	})

	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		slog.Info("broadcaster peer state", "owner", b.owner, "state", state.String())
		switch state {
		case pion.PeerConnectionStateFailed, pion.PeerConnectionStateClosed:
			if !b.closed.Load() && b.onDown != nil {
				b.onDown("broadcaster peer " + state.String())
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

func (b *Broadcaster) readTrack(track *pion.TrackRemote) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			slog.Info("broadcast track ended", "owner", b.owner, "error", err)
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		if err := b.handlePayload(pkt.Payload); err != nil {
			return
		}
	}
}

// handlePayload decodes one Opus packet and pushes it into the session.
// A decode failure drops the packet; a sink failure means the session is
// gone and ends the read loop.
func (b *Broadcaster) handlePayload(payload []byte) error {
	block, err := b.dec.decode(payload)
	if err != nil {
		b.decodeErrs.Add(1)
		slog.Warn("dropping undecodable packet", "owner", b.owner, "error", err)
		return nil
	}
	b.packets.Add(1)
	return b.sink.Ingest(block)
}

// Packets returns how many packets were decoded and ingested.
func (b *Broadcaster) Packets() uint64 { return b.packets.Load() }

// DecodeErrors returns how many packets failed to decode.
func (b *Broadcaster) DecodeErrors() uint64 { return b.decodeErrs.Load() }

// Close tears the peer connection down. The state-change callback is
// suppressed so a deliberate close does not re-enter session stop.
func (b *Broadcaster) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	if b.pc != nil {
		return b.pc.Close()
	}
	return nil
}
