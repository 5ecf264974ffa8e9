package stream

import (
	"errors"
	"testing"

	"github.com/purecast-io/purecast/pkg/queue"
)

func TestFanoutBroadcastReachesEveryListener(t *testing.T) {
	f := NewFanout(8)
	qa, err := f.Register("a")
	if err != nil {
		t.Fatalf("Register(a) error = %v", err)
	}
	qb, err := f.Register("b")
	if err != nil {
		t.Fatalf("Register(b) error = %v", err)
	}
	if f.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", f.Count())
	}

	seg := []float32{1, 2, 3}
	f.Broadcast(seg)
	f.Close()

	for name, q := range map[string]*queue.Dropping[[]float32]{"a": qa, "b": qb} {
		got, err := q.Next()
		if err != nil {
			t.Fatalf("%s: Next() error = %v", name, err)
		}
		if len(got) != 3 || got[0] != 1 || got[2] != 3 {
			t.Fatalf("%s: got %v", name, got)
		}
		if _, err := q.Next(); !errors.Is(err, queue.ErrDone) {
			t.Fatalf("%s: queue not closed after fanout Close", name)
		}
	}
}

func TestFanoutListenersGetIndependentCopies(t *testing.T) {
	f := NewFanout(4)
	qa, _ := f.Register("a")
	qb, _ := f.Register("b")

	seg := []float32{1, 2, 3}
	f.Broadcast(seg)
	seg[0] = 99 // broadcaster reuses its buffer

	a, err := qa.Next()
	if err != nil {
		t.Fatalf("a: Next() error = %v", err)
	}
	a[1] = 98 // one listener scribbling must not leak to another

	b, err := qb.Next()
	if err != nil {
		t.Fatalf("b: Next() error = %v", err)
	}
	if b[0] != 1 || b[1] != 2 || b[2] != 3 {
		t.Fatalf("b received %v, want [1 2 3]", b)
	}
}

func TestFanoutOverflowIsPerListener(t *testing.T) {
	f := NewFanout(1)
	slow, _ := f.Register("slow")
	fast, _ := f.Register("fast")

	f.Broadcast([]float32{1})
	// Drain only the fast listener, then broadcast again. The slow queue
	// is still full and drops; the fast one receives.
	if _, err := fast.Next(); err != nil {
		t.Fatalf("fast Next() error = %v", err)
	}
	f.Broadcast([]float32{2})

	if f.Dropped() != 1 {
		t.Fatalf("Dropped() = %d, want 1", f.Dropped())
	}
	got, err := fast.Next()
	if err != nil || got[0] != 2 {
		t.Fatalf("fast listener lost a segment: %v %v", got, err)
	}
	got, err = slow.Next()
	if err != nil || got[0] != 1 {
		t.Fatalf("slow listener kept wrong segment: %v %v", got, err)
	}
}

func TestFanoutLateListenerGetsOnlySuffix(t *testing.T) {
	f := NewFanout(8)
	first, err := f.Register("first")
	if err != nil {
		t.Fatalf("Register(first) error = %v", err)
	}
	for i := 0; i < 3; i++ {
		f.Broadcast(make([]float32, 6))
	}
	if first.Len() != 3 {
		t.Fatalf("first queued %d segments, want 3", first.Len())
	}
	f.Unregister("first")

	second, err := f.Register("second")
	if err != nil {
		t.Fatalf("Register(second) error = %v", err)
	}
	f.Broadcast(make([]float32, 6))
	f.Broadcast(make([]float32, 6))
	f.Close()

	total := 0
	for {
		seg, err := second.Next()
		if errors.Is(err, queue.ErrDone) {
			break
		}
		if err != nil {
			t.Fatalf("second: Next() error = %v", err)
		}
		total += len(seg)
	}
	if total != 12 {
		t.Fatalf("second received %d samples, want the 12 broadcast after it joined", total)
	}
}

func TestFanoutUnregisterReleasesListener(t *testing.T) {
	f := NewFanout(4)
	q, _ := f.Register("a")
	f.Unregister("a")
	if f.Count() != 0 {
		t.Fatalf("Count() = %d after Unregister, want 0", f.Count())
	}
	if _, err := q.Next(); err == nil || errors.Is(err, queue.ErrDone) {
		t.Fatalf("Next() after Unregister error = %v, want closed-pipe error", err)
	}
	// Broadcasting to nobody and double unregister are fine.
	f.Broadcast([]float32{1})
	f.Unregister("a")
}

func TestFanoutRegisterAfterClose(t *testing.T) {
	f := NewFanout(4)
	f.Close()
	if _, err := f.Register("late"); !errors.Is(err, ErrFanoutClosed) {
		t.Fatalf("Register() after Close error = %v, want ErrFanoutClosed", err)
	}
	f.Close() // idempotent
}

func TestFanoutDuplicateListener(t *testing.T) {
	f := NewFanout(4)
	if _, err := f.Register("a"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := f.Register("a"); err == nil {
		t.Fatal("duplicate Register() should fail")
	}
}
