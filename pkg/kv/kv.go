// Package kv provides the small key-value store behind the recordings
// index. Keys are hierarchical paths represented as string slices (for
// example ["recordings", "alice", "<id>"]), encoded with a separator for
// storage, so listing by owner is a prefix scan.
//
// Two implementations: a BadgerDB-backed store for production and an
// in-memory store for tests and throwaway deployments.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

// Key is a hierarchical path represented as a slice of string segments.
// Segments must not contain the separator character.
type Key []string

// String returns the key joined with ':' for display and logs.
func (k Key) String() string {
	return strings.Join(k, ":")
}

// Entry is a key-value pair yielded by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store with path-based keys.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if not
	// present.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores a key-value pair, overwriting any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key Key) error

	// List iterates over all entries strictly below the given prefix, in
	// lexicographic order of the encoded key.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// Close releases resources held by the store.
	Close() error
}

// separator joins key segments in the encoded representation.
const separator byte = ':'

// encodeKey converts a Key to its stored byte representation.
func encodeKey(k Key) []byte {
	n := 0
	for i, seg := range k {
		if i > 0 {
			n++
		}
		n += len(seg)
	}
	buf := make([]byte, 0, n)
	for i, seg := range k {
		if i > 0 {
			buf = append(buf, separator)
		}
		buf = append(buf, seg...)
	}
	return buf
}

// decodeKey converts a stored byte representation back to a Key.
func decodeKey(b []byte) Key {
	parts := strings.Split(string(b), string(separator))
	return Key(parts)
}

// listPrefix returns the scan prefix for a Key, with a trailing separator
// so that prefix ["a","b"] does not match key ["a","bc"]. An empty prefix
// scans everything.
func listPrefix(k Key) []byte {
	p := encodeKey(k)
	if len(p) == 0 {
		return nil
	}
	return append(p, separator)
}
