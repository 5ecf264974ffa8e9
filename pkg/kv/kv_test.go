package kv_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/purecast-io/purecast/pkg/kv"
)

// Both implementations run the same conformance suite.
func stores(t *testing.T) map[string]kv.Store {
	t.Helper()
	badger, err := kv.NewBadger(kv.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	mem := kv.NewMemory()
	t.Cleanup(func() {
		badger.Close()
		mem.Close()
	})
	return map[string]kv.Store{"memory": mem, "badger": badger}
}

func TestGetSetDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			key := kv.Key{"recordings", "alice", "123"}
			val := []byte("hello")

			if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("Get absent: err = %v, want ErrNotFound", err)
			}
			if err := s.Set(ctx, key, val); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := s.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(got) != "hello" {
				t.Fatalf("Get = %q, want %q", got, val)
			}

			if err := s.Set(ctx, key, []byte("world")); err != nil {
				t.Fatalf("Set overwrite: %v", err)
			}
			got, _ = s.Get(ctx, key)
			if string(got) != "world" {
				t.Fatalf("Get after overwrite = %q", got)
			}

			if err := s.Delete(ctx, key); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("Get after delete: err = %v, want ErrNotFound", err)
			}
			if err := s.Delete(ctx, kv.Key{"no", "such", "key"}); err != nil {
				t.Fatalf("Delete absent: %v", err)
			}
		})
	}
}

func TestListByPrefix(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			seed := []kv.Entry{
				{Key: kv.Key{"recordings", "alice", "b"}, Value: []byte("2")},
				{Key: kv.Key{"recordings", "alice", "a"}, Value: []byte("1")},
				{Key: kv.Key{"recordings", "alicia", "c"}, Value: []byte("3")},
				{Key: kv.Key{"recordings", "bob", "d"}, Value: []byte("4")},
			}
			for _, e := range seed {
				if err := s.Set(ctx, e.Key, e.Value); err != nil {
					t.Fatalf("Set: %v", err)
				}
			}

			var got []string
			for entry, err := range s.List(ctx, kv.Key{"recordings", "alice"}) {
				if err != nil {
					t.Fatalf("List: %v", err)
				}
				got = append(got, entry.Key.String()+"="+string(entry.Value))
			}
			want := []string{
				"recordings:alice:a=1",
				"recordings:alice:b=2",
			}
			if !slices.Equal(got, want) {
				t.Fatalf("List = %v, want %v (prefix must not match alicia)", got, want)
			}

			// Empty prefix scans everything.
			n := 0
			for _, err := range s.List(ctx, nil) {
				if err != nil {
					t.Fatalf("List all: %v", err)
				}
				n++
			}
			if n != len(seed) {
				t.Fatalf("List all yielded %d entries, want %d", n, len(seed))
			}
		})
	}
}

func TestListEarlyStop(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"a", "b", "c"} {
				if err := s.Set(ctx, kv.Key{"recordings", "alice", id}, []byte(id)); err != nil {
					t.Fatalf("Set: %v", err)
				}
			}
			n := 0
			for range s.List(ctx, kv.Key{"recordings", "alice"}) {
				n++
				break
			}
			if n != 1 {
				t.Fatalf("broke after %d entries, want 1", n)
			}
		})
	}
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := kv.NewBadger(kv.BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	if err := s.Set(ctx, kv.Key{"recordings", "alice", "1"}, []byte("keep")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = kv.NewBadger(kv.BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Get(ctx, kv.Key{"recordings", "alice", "1"})
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(got) != "keep" {
		t.Fatalf("Get = %q, want keep", got)
	}
}

func TestBadgerRequiresDir(t *testing.T) {
	if _, err := kv.NewBadger(kv.BadgerOptions{}); err == nil {
		t.Fatal("NewBadger without dir should fail")
	}
}
