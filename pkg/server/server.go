// Package server exposes the broadcast pipeline over HTTP: WebRTC
// signaling for broadcasters and listeners, stream status, recording
// management, a presence websocket and a live log tail.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/purecast-io/purecast/pkg/audio/enhance"
	"github.com/purecast-io/purecast/pkg/metrics"
	"github.com/purecast-io/purecast/pkg/recordings"
	"github.com/purecast-io/purecast/pkg/stream"
)

// Pipeline carries the audio geometry and session limits every new
// session is built with. The config layer populates it; per-request
// overrides adjust enhancer choice and title only.
type Pipeline struct {
	ModelRate     int
	ChunkFrames   int
	OverlapFrames int
	FrameSamples  int

	Enhancer enhance.Kind
	Denoise  bool

	ReadyTimeout  time.Duration
	FlushTimeout  time.Duration
	IngestQueue   int
	ListenerQueue int
}

// Options assembles a Server.
type Options struct {
	Registry   *stream.Registry
	Recordings *recordings.Store
	Transport  Transport
	Pipeline   Pipeline

	// LogTail feeds /debug/logs. Nil disables the endpoint.
	LogTail *LogTail
}

// Server is the HTTP surface over the registry and the recordings store.
type Server struct {
	registry   *stream.Registry
	recordings *recordings.Store
	transport  Transport
	pipeline   Pipeline
	logTail    *LogTail

	mux      *http.ServeMux
	upgrader websocket.Upgrader
}

// New builds the server and its routes.
func New(opts Options) *Server {
	s := &Server{
		registry:   opts.Registry,
		recordings: opts.Recordings,
		transport:  opts.Transport,
		pipeline:   opts.Pipeline,
		logTail:    opts.LogTail,
		mux:        http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/streams/{username}/offer", s.handleBroadcastOffer)
	s.mux.HandleFunc("POST /api/streams/{username}/listen", s.handleListenOffer)
	s.mux.HandleFunc("POST /api/streams/{username}/stop", s.handleStop)
	s.mux.HandleFunc("GET /api/streams", s.handleStreams)
	s.mux.HandleFunc("GET /api/streams/{username}", s.handleStreamStatus)
	s.mux.HandleFunc("GET /api/recordings", s.handleRecordingsList)
	s.mux.HandleFunc("GET /api/recordings/{owner}/{id}", s.handleRecordingGet)
	s.mux.HandleFunc("GET /api/recordings/{owner}/{id}/file", s.handleRecordingFile)
	s.mux.HandleFunc("DELETE /api/recordings/{owner}/{id}", s.handleRecordingDelete)
	s.mux.HandleFunc("GET /ws/presence", s.handlePresence)
	if s.logTail != nil {
		s.mux.HandleFunc("GET /debug/logs", s.handleLogs)
	}
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// Handler returns the full handler chain: request logging and latency
// metrics around the mux.
func (s *Server) Handler() http.Handler {
	return requestLogger(s.mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger logs every request and records its latency. Streaming
// endpoints (websocket, SSE) keep Flush and Hijack through the wrapper.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		elapsed := time.Since(start)

		metrics.Default().RecordHTTPRequest(r.Context(),
			r.Method, r.URL.Path, sw.status, elapsed.Seconds())
		slog.Info("http request",
			"method", r.Method, "path", r.URL.Path,
			"status", sw.status, "duration", elapsed.Round(time.Microsecond),
			"remote", r.RemoteAddr)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("server: response writer does not support hijacking")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// Shutdown-friendly serving: callers own the http.Server; this helper
// only exists so cmd and tests share one shutdown dance.
func Serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
