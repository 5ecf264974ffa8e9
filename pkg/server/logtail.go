package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/purecast-io/purecast/pkg/queue"
)

// LogTail keeps the most recent log lines in a ring buffer and fans them
// out to connected SSE clients. Plug it into the process logger with
// io.MultiWriter so every slog line also lands here.
type LogTail struct {
	ring *queue.Ring[string]

	mu      sync.RWMutex
	clients map[chan string]struct{}
}

// NewLogTail creates a tail retaining the last capacity lines.
func NewLogTail(capacity int) *LogTail {
	return &LogTail{
		ring:    queue.NewRing[string](capacity),
		clients: make(map[chan string]struct{}),
	}
}

// Write records one log line. slog handlers emit a single Write per
// record, so each call is treated as one line.
func (t *LogTail) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	if line == "" {
		return len(p), nil
	}
	t.ring.Add(line)
	t.mu.RLock()
	for ch := range t.clients {
		select {
		case ch <- line:
		default:
			// Slow client loses the line; the ring still has it.
		}
	}
	t.mu.RUnlock()
	return len(p), nil
}

// Snapshot returns the retained lines, oldest first.
func (t *LogTail) Snapshot() []string {
	return t.ring.Snapshot()
}

func (t *LogTail) subscribe() chan string {
	ch := make(chan string, 100)
	t.mu.Lock()
	t.clients[ch] = struct{}{}
	t.mu.Unlock()
	return ch
}

func (t *LogTail) unsubscribe(ch chan string) {
	t.mu.Lock()
	delete(t.clients, ch)
	t.mu.Unlock()
}

// handleLogs serves the recent log buffer and then live log lines as
// Server-Sent Events.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.logTail.subscribe()
	defer s.logTail.unsubscribe(ch)

	for _, line := range s.logTail.Snapshot() {
		fmt.Fprintf(w, "data: %s\n\n", line)
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case line := <-ch:
			fmt.Fprintf(w, "data: %s\n\n", line)
			flusher.Flush()
		}
	}
}
