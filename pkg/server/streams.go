package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/purecast-io/purecast/pkg/audio/enhance"
	"github.com/purecast-io/purecast/pkg/audio/resampler"
	"github.com/purecast-io/purecast/pkg/stream"
	"github.com/purecast-io/purecast/pkg/transport/webrtc"
)

type offerRequest struct {
	SDP     string `json:"sdp"`
	Title   string `json:"title,omitempty"`
	Denoise *bool  `json:"denoise,omitempty"`
}

type offerResponse struct {
	SDP       string `json:"sdp"`
	SessionID string `json:"session_id"`
}

type listenResponse struct {
	SDP        string `json:"sdp"`
	ListenerID string `json:"listener_id"`
}

type statusResponse struct {
	Streaming bool         `json:"streaming"`
	Session   *stream.Info `json:"session,omitempty"`
}

// handleBroadcastOffer starts a broadcast: it builds the session pipeline,
// answers the broadcaster's SDP offer and ties the peer's lifetime to the
// session's. A previous live session for the same username is replaced.
func (s *Server) handleBroadcastOffer(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("username")
	var req offerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SDP == "" {
		writeError(w, http.StatusBadRequest, "sdp required")
		return
	}

	denoise := s.pipeline.Denoise
	if req.Denoise != nil {
		denoise = *req.Denoise
	}
	enhancer := s.pipeline.Enhancer
	if !denoise {
		enhancer = enhance.KindBypass
	}
	var saver stream.Saver
	if s.recordings != nil {
		saver = s.recordings
	}

	sess, err := s.registry.Start(stream.Config{
		Owner:            owner,
		Title:            req.Title,
		Enhancer:         enhancer,
		Input:            resampler.Format{SampleRate: webrtc.OpusRate, Channels: 1},
		ModelRate:        s.pipeline.ModelRate,
		ChunkFrames:      s.pipeline.ChunkFrames,
		OverlapFrames:    s.pipeline.OverlapFrames,
		IngestCapacity:   s.pipeline.IngestQueue,
		ListenerCapacity: s.pipeline.ListenerQueue,
		ReadyTimeout:     s.pipeline.ReadyTimeout,
		FlushTimeout:     s.pipeline.FlushTimeout,
		Saver:            saver,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	peer, err := s.transport.NewBroadcaster(owner, sess, func(reason string) {
		sess.Stop(reason)
	})
	if err != nil {
		sess.Stop("transport setup failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	answer, err := peer.Answer(req.SDP)
	if err != nil {
		sess.Stop("webrtc negotiation failed")
		peer.Close()
		writeError(w, http.StatusBadGateway, "webrtc negotiation failed: "+err.Error())
		return
	}

	// The peer holds the only reference to the broadcaster connection;
	// release it once the session is fully closed, whichever side ends
	// first.
	go func() {
		<-sess.Done()
		peer.Close()
	}()

	writeJSON(w, http.StatusCreated, offerResponse{SDP: answer, SessionID: sess.ID()})
}

// handleListenOffer attaches a listener to a live broadcast. Joining waits
// for the broadcaster's first audio, bounded by the session's ready
// timeout.
func (s *Server) handleListenOffer(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("username")
	var req offerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SDP == "" {
		writeError(w, http.StatusBadRequest, "sdp required")
		return
	}

	sess, ok := s.registry.Get(owner)
	if !ok {
		writeError(w, http.StatusNotFound, owner+" is not streaming")
		return
	}
	if err := sess.AwaitActive(r.Context()); err != nil {
		switch {
		case errors.Is(err, stream.ErrNotActive):
			writeError(w, http.StatusGatewayTimeout, "stream not ready")
		case errors.Is(err, stream.ErrSessionClosed):
			writeError(w, http.StatusNotFound, owner+" is not streaming")
		default:
			// Listener gave up while waiting; nothing left to answer.
		}
		return
	}

	id := uuid.NewString()
	q, err := sess.Listen(id)
	if err != nil {
		writeError(w, http.StatusNotFound, owner+" is not streaming")
		return
	}
	peer, err := s.transport.NewListener(owner, id, func() {
		sess.Unlisten(id)
	})
	if err != nil {
		sess.Unlisten(id)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	answer, err := peer.Answer(req.SDP)
	if err != nil {
		sess.Unlisten(id)
		peer.Close()
		writeError(w, http.StatusBadGateway, "webrtc negotiation failed: "+err.Error())
		return
	}

	pacer := stream.NewPacer(q, peer, s.pipeline.ModelRate, s.pipeline.FrameSamples)
	go func() {
		err := pacer.Run(context.Background())
		if err != nil && !errors.Is(err, webrtc.ErrPeerClosed) {
			slog.Warn("listener pacer stopped",
				"owner", owner, "listener", id, "error", err)
		}
		sess.Unlisten(id)
		peer.Close()
		slog.Info("listener detached", "owner", owner, "listener", id)
	}()

	slog.Info("listener attached", "owner", owner, "listener", id)
	writeJSON(w, http.StatusCreated, listenResponse{SDP: answer, ListenerID: id})
}

// handleStop requests a graceful stop of the owner's live session. Stopping
// when nothing is live is not an error.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("username")
	err := s.registry.Stop(owner, "stopped via api")
	if err != nil && !errors.Is(err, stream.ErrNoSession) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": err == nil})
}

// handleStreams lists all live sessions.
func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"streams": s.registry.List()})
}

// handleStreamStatus reports whether one username is live, with stats.
func (s *Server) handleStreamStatus(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("username")
	sess, ok := s.registry.Get(owner)
	if !ok {
		writeJSON(w, http.StatusOK, statusResponse{Streaming: false})
		return
	}
	info := sess.Info()
	writeJSON(w, http.StatusOK, statusResponse{Streaming: true, Session: &info})
}
