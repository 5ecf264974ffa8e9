package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/purecast-io/purecast/pkg/recordings"
)

// handleRecordingsList lists an owner's recordings, newest first.
func (s *Server) handleRecordingsList(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner query parameter required")
		return
	}
	recs, err := s.recordings.List(r.Context(), owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recordings": recs})
}

// handleRecordingGet returns one recording's metadata.
func (s *Server) handleRecordingGet(w http.ResponseWriter, r *http.Request) {
	owner, id := r.PathValue("owner"), r.PathValue("id")
	rec, err := s.recordings.Get(r.Context(), owner, id)
	if err != nil {
		if errors.Is(err, recordings.ErrNotFound) {
			writeError(w, http.StatusNotFound, "recording not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleRecordingFile streams the recording's WAV file.
func (s *Server) handleRecordingFile(w http.ResponseWriter, r *http.Request) {
	owner, id := r.PathValue("owner"), r.PathValue("id")
	rc, rec, err := s.recordings.Open(r.Context(), owner, id)
	if err != nil {
		if errors.Is(err, recordings.ErrNotFound) {
			writeError(w, http.StatusNotFound, "recording not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", rec.Size))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.ID+".wav"))
	if _, err := io.Copy(w, rc); err != nil {
		// Headers are gone; all we can do is log the broken transfer.
		slog.Warn("recording download interrupted",
			"owner", owner, "recording", id, "error", err)
	}
}

// handleRecordingDelete removes a recording's file and metadata. Deleting
// an absent recording is not an error.
func (s *Server) handleRecordingDelete(w http.ResponseWriter, r *http.Request) {
	owner, id := r.PathValue("owner"), r.PathValue("id")
	if err := s.recordings.Delete(r.Context(), owner, id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
