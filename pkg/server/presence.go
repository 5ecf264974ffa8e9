package server

import (
	"log/slog"
	"net/http"

	"github.com/purecast-io/purecast/pkg/stream"
)

// presenceSnapshot is the first message on every presence connection.
type presenceSnapshot struct {
	Type    string        `json:"type"`
	Streams []stream.Info `json:"streams"`
}

// handlePresence upgrades to a websocket and pushes stream lifecycle
// events: a snapshot of live streams on connect, then started/stopped
// events as they happen. The client is not expected to send anything.
func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("presence upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	events, cancel := s.registry.Subscribe()
	defer cancel()

	if err := conn.WriteJSON(presenceSnapshot{
		Type:    "snapshot",
		Streams: s.registry.List(),
	}); err != nil {
		return
	}

	// Reading is how a server-push websocket learns the peer went away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	slog.Debug("presence client connected", "remote", r.RemoteAddr)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
