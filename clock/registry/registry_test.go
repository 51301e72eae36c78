package registry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	ms atomic.Int64
}

func (c *fakeClock) now() int64       { return c.ms.Load() }
func (c *fakeClock) set(ms int64)     { c.ms.Store(ms) }
func (c *fakeClock) advance(ms int64) { c.ms.Add(ms) }

func newTestRegistry(start int64) (*Registry, *fakeClock) {
	c := &fakeClock{}
	c.set(start)
	return NewWithClock(time.Minute, c.now), c
}

func TestIntroductionIsIdempotent(t *testing.T) {
	r, c := newTestRegistry(1000)

	r.UpsertIntroduction("10.0.0.1:9000")
	c.advance(500)
	r.UpsertIntroduction("10.0.0.1:9000")
	r.UpsertIntroduction("10.0.0.1:9000")

	if r.Len() != 1 {
		t.Fatalf("expected one record, got %d", r.Len())
	}
	n, ok := r.Get("10.0.0.1:9000")
	if !ok {
		t.Fatal("record missing")
	}
	if n.LastResponseAt != 1500 {
		t.Fatalf("LastResponseAt = %d, want 1500", n.LastResponseAt)
	}
}

func TestRecordResponseAutoRegisters(t *testing.T) {
	r, _ := newTestRegistry(2000)

	r.RecordResponse("10.0.0.2:9000", 123456)

	n, ok := r.Get("10.0.0.2:9000")
	if !ok {
		t.Fatal("time_report from unknown address must register it")
	}
	if n.LastResponseAt != 2000 {
		t.Fatalf("LastResponseAt = %d, want 2000", n.LastResponseAt)
	}
	if n.LastReportedTime != 123456 {
		t.Fatalf("LastReportedTime = %d, want 123456", n.LastReportedTime)
	}
}

func TestLastResponseMonotonic(t *testing.T) {
	r, c := newTestRegistry(5000)

	r.UpsertIntroduction("a")
	c.set(4000) // wall clock stepped backwards
	r.RecordResponse("a", 1)

	n, _ := r.Get("a")
	if n.LastResponseAt != 5000 {
		t.Fatalf("LastResponseAt moved backwards to %d", n.LastResponseAt)
	}

	c.set(7000)
	r.UpsertIntroduction("a")
	n, _ = r.Get("a")
	if n.LastResponseAt != 7000 {
		t.Fatalf("LastResponseAt = %d, want 7000", n.LastResponseAt)
	}
}

func TestRecordRequestSent(t *testing.T) {
	r, _ := newTestRegistry(0)

	r.RecordRequestSent("ghost", 10)
	if r.Len() != 0 {
		t.Fatal("request bookkeeping must not register slaves")
	}

	r.UpsertIntroduction("a")
	r.RecordRequestSent("a", 42)
	n, _ := r.Get("a")
	if n.LastRequestSentAt != 42 {
		t.Fatalf("LastRequestSentAt = %d, want 42", n.LastRequestSentAt)
	}

	snap := r.SnapshotActive()
	if len(snap) != 1 || snap[0].Address != "a" || snap[0].LastRequestSentAt != 42 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestEvictStale(t *testing.T) {
	r, c := newTestRegistry(0)

	r.UpsertIntroduction("old") // t=0
	c.set(30_000)
	r.UpsertIntroduction("mid") // t=30s
	c.set(59_999)
	r.UpsertIntroduction("new") // t=59.999s

	r.EvictStale(60_000, time.Minute)

	if _, ok := r.Get("old"); ok {
		t.Fatal("record silent for exactly the threshold must be evicted")
	}
	for _, addr := range []string{"mid", "new"} {
		if _, ok := r.Get(addr); !ok {
			t.Fatalf("%s evicted too early", addr)
		}
	}

	// Re-applying the same sweep changes nothing.
	r.EvictStale(60_000, time.Minute)
	if r.Len() != 2 {
		t.Fatalf("second sweep removed records: %d left", r.Len())
	}

	r.EvictStale(90_000, time.Minute)
	if _, ok := r.Get("mid"); ok {
		t.Fatal("mid should be evicted at t=90s")
	}
	if _, ok := r.Get("new"); !ok {
		t.Fatal("new should survive until t=119.999s")
	}
}

func TestSnapshotExcludesStale(t *testing.T) {
	r, c := newTestRegistry(0)

	r.UpsertIntroduction("b")
	c.set(20_000)
	r.UpsertIntroduction("a")
	c.set(60_000)

	snap := r.SnapshotActive()
	if len(snap) != 1 || snap[0].Address != "a" {
		t.Fatalf("stale slave leaked into snapshot: %+v", snap)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	r, _ := newTestRegistry(0)
	r.UpsertIntroduction("a")

	snap := r.SnapshotActive()
	r.RecordRequestSent("a", 99)

	if snap[0].LastRequestSentAt != 0 {
		t.Fatal("snapshot must not alias registry state")
	}
}

func TestConcurrentAccess(t *testing.T) {
	r, c := newTestRegistry(0)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				addr := fmt.Sprintf("slave-%d", i%10)
				c.advance(1)
				switch i % 4 {
				case 0:
					r.UpsertIntroduction(addr)
				case 1:
					r.RecordResponse(addr, int64(i))
				case 2:
					r.RecordRequestSent(addr, int64(i))
				case 3:
					_ = r.SnapshotActive()
					r.EvictStale(c.now(), time.Minute)
				}
			}
		}(w)
	}
	wg.Wait()

	if r.Len() != 10 {
		t.Fatalf("expected 10 distinct slaves, got %d", r.Len())
	}
}
