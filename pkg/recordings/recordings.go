// Package recordings persists finished broadcasts: a 16-bit mono WAV
// payload in a file store and msgpack metadata in the kv store, keyed by
// owner so listing is a prefix scan.
package recordings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/purecast-io/purecast/pkg/jsontime"
	"github.com/purecast-io/purecast/pkg/kv"
	"github.com/purecast-io/purecast/pkg/storage"
)

// ErrNotFound is returned when a recording does not exist.
var ErrNotFound = errors.New("recordings: not found")

// keyRoot is the kv namespace for recording metadata.
const keyRoot = "recordings"

// Recording is the stored metadata for one captured broadcast.
type Recording struct {
	ID         string            `msgpack:"id" json:"id"`
	Owner      string            `msgpack:"owner" json:"owner"`
	Title      string            `msgpack:"title" json:"title"`
	Duration   jsontime.Duration `msgpack:"duration" json:"duration"`
	SampleRate int               `msgpack:"sample_rate" json:"sample_rate"`
	Size       int64             `msgpack:"size" json:"size_bytes"`
	CreatedAt  time.Time         `msgpack:"created_at" json:"created_at"`
	FileKey    string            `msgpack:"file_key" json:"-"`
}

// Store persists recordings. It satisfies stream.Saver.
type Store struct {
	kv    kv.Store
	files storage.FileStore
}

// NewStore creates a recordings store over the given metadata and file
// backends.
func NewStore(kvs kv.Store, files storage.FileStore) *Store {
	return &Store{kv: kvs, files: files}
}

func recordingKey(owner, id string) kv.Key {
	return kv.Key{keyRoot, owner, id}
}

// Save encodes samples as WAV, uploads the file and writes the metadata
// entry. It returns the new recording id. A session that produced no
// audio never reaches Save; empty input is a caller bug.
func (s *Store) Save(ctx context.Context, owner, title string, rate int, samples []float32) (string, error) {
	if owner == "" {
		return "", errors.New("recordings: owner required")
	}
	if len(samples) == 0 {
		return "", errors.New("recordings: no samples")
	}
	created := time.Now().UTC()
	if title == "" {
		title = "Live session " + created.Format(time.RFC3339)
	}
	id := uuid.NewString()
	fileKey := owner + "/" + id + ".wav"

	// The WAV encoder needs a WriteSeeker to patch up the header on
	// close, so encode to a temp file and stream that into the store.
	tmp, err := os.CreateTemp("", "purecast-*.wav")
	if err != nil {
		return "", fmt.Errorf("recordings: temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()
	if err := encodeWAV(tmp, rate, samples); err != nil {
		return "", fmt.Errorf("recordings: encode: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("recordings: rewind temp file: %w", err)
	}

	w, err := s.files.Write(ctx, fileKey)
	if err != nil {
		return "", fmt.Errorf("recordings: open %s: %w", fileKey, err)
	}
	size, err := io.Copy(w, tmp)
	if err != nil {
		w.Close()
		return "", fmt.Errorf("recordings: upload %s: %w", fileKey, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("recordings: upload %s: %w", fileKey, err)
	}

	rec := Recording{
		ID:         id,
		Owner:      owner,
		Title:      title,
		Duration:   jsontime.Duration(time.Duration(len(samples)) * time.Second / time.Duration(rate)),
		SampleRate: rate,
		Size:       size,
		CreatedAt:  created,
		FileKey:    fileKey,
	}
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("recordings: encode metadata: %w", err)
	}
	if err := s.kv.Set(ctx, recordingKey(owner, id), data); err != nil {
		// Don't leave an orphan file behind the missing metadata.
		if derr := s.files.Delete(ctx, fileKey); derr != nil {
			slog.Warn("failed to remove orphan recording file",
				"key", fileKey, "error", derr)
		}
		return "", fmt.Errorf("recordings: store metadata: %w", err)
	}

	slog.Info("recording stored",
		"owner", owner, "recording", id,
		"duration", rec.Duration, "bytes", size)
	return id, nil
}

// List returns the owner's recordings, newest first. Malformed metadata
// entries are skipped.
func (s *Store) List(ctx context.Context, owner string) ([]Recording, error) {
	var out []Recording
	for entry, err := range s.kv.List(ctx, kv.Key{keyRoot, owner}) {
		if err != nil {
			return nil, err
		}
		var rec Recording
		if err := msgpack.Unmarshal(entry.Value, &rec); err != nil {
			slog.Warn("skipping malformed recording entry",
				"key", entry.Key.String(), "error", err)
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Get returns one recording's metadata.
func (s *Store) Get(ctx context.Context, owner, id string) (*Recording, error) {
	data, err := s.kv.Get(ctx, recordingKey(owner, id))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var rec Recording
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("recordings: decode metadata: %w", err)
	}
	return &rec, nil
}

// Open streams a recording's WAV bytes alongside its metadata.
func (s *Store) Open(ctx context.Context, owner, id string) (io.ReadCloser, *Recording, error) {
	rec, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, nil, err
	}
	r, err := s.files.Read(ctx, rec.FileKey)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: file %s missing", ErrNotFound, rec.FileKey)
		}
		return nil, nil, err
	}
	return r, rec, nil
}

// Delete removes a recording's file and metadata. Deleting an absent
// recording is not an error.
func (s *Store) Delete(ctx context.Context, owner, id string) error {
	rec, err := s.Get(ctx, owner, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	// File first: if this fails the metadata stays and the delete can be
	// retried.
	if err := s.files.Delete(ctx, rec.FileKey); err != nil {
		return fmt.Errorf("recordings: delete file %s: %w", rec.FileKey, err)
	}
	if err := s.kv.Delete(ctx, recordingKey(owner, id)); err != nil {
		return fmt.Errorf("recordings: delete metadata: %w", err)
	}
	slog.Info("recording deleted", "owner", owner, "recording", id)
	return nil
}
