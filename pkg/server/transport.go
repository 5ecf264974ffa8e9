package server

import (
	"github.com/purecast-io/purecast/pkg/stream"
	"github.com/purecast-io/purecast/pkg/transport/webrtc"
)

// BroadcastPeer is the inbound half of a broadcast: it answers the
// broadcaster's SDP offer and feeds decoded audio into the session until
// closed.
type BroadcastPeer interface {
	Answer(offerSDP string) (string, error)
	Close() error
}

// ListenerPeer is the outbound half for one listener. The session's
// pacer drives it through stream.FrameSink.
type ListenerPeer interface {
	stream.FrameSink
	Answer(offerSDP string) (string, error)
	Close() error
}

// Transport builds peers for sessions and listeners. The production
// implementation is WebRTCTransport; tests substitute a fake so handler
// behavior is testable without a browser.
type Transport interface {
	NewBroadcaster(owner string, sink webrtc.Ingestor, onDown func(reason string)) (BroadcastPeer, error)
	NewListener(owner, id string, onDown func()) (ListenerPeer, error)
}

// WebRTCTransport builds pion peers with the configured ICE servers.
type WebRTCTransport struct {
	Config webrtc.Config
}

func (t WebRTCTransport) NewBroadcaster(owner string, sink webrtc.Ingestor, onDown func(reason string)) (BroadcastPeer, error) {
	return webrtc.NewBroadcaster(t.Config, owner, sink, onDown)
}

func (t WebRTCTransport) NewListener(owner, id string, onDown func()) (ListenerPeer, error) {
	return webrtc.NewListener(t.Config, owner, id, onDown)
}

var _ Transport = WebRTCTransport{}
