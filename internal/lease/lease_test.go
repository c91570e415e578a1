package lease

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestGuard(ttl time.Duration) (*MemoryGuard, *testClock) {
	clock := &testClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	g := NewMemoryGuard(ttl)
	g.now = clock.Now
	return g, clock
}

func TestAcquireConflict(t *testing.T) {
	g, _ := newTestGuard(30 * time.Second)
	ctx := context.Background()

	first, err := g.Acquire(ctx, "t1")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if first.Token == "" {
		t.Error("lease token empty")
	}

	_, err = g.Acquire(ctx, "t1")
	if !IsConflict(err) {
		t.Fatalf("expected ConflictError, got %v", err)
	}

	// A different thread is unaffected.
	if _, err := g.Acquire(ctx, "t2"); err != nil {
		t.Errorf("independent thread blocked: %v", err)
	}
}

func TestReleaseAllowsReacquire(t *testing.T) {
	g, _ := newTestGuard(30 * time.Second)
	ctx := context.Background()

	lease, _ := g.Acquire(ctx, "t1")
	if err := g.Release(lease); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if _, err := g.Acquire(ctx, "t1"); err != nil {
		t.Errorf("reacquire after release failed: %v", err)
	}
}

func TestExpiredLeaseReclaimable(t *testing.T) {
	g, clock := newTestGuard(30 * time.Second)
	ctx := context.Background()

	stale, _ := g.Acquire(ctx, "t1")
	clock.Advance(31 * time.Second)

	fresh, err := g.Acquire(ctx, "t1")
	if err != nil {
		t.Fatalf("expired lease should be reclaimable: %v", err)
	}
	if fresh.Token == stale.Token {
		t.Error("reclaimed lease must carry a new token")
	}

	// The stale holder's release must not free the new holder's lease.
	if err := g.Release(stale); !errors.Is(err, ErrNotHeld) {
		t.Errorf("stale release = %v, want ErrNotHeld", err)
	}
	if _, err := g.Acquire(ctx, "t1"); !IsConflict(err) {
		t.Errorf("fresh lease should still hold, got %v", err)
	}
	if err := g.Release(fresh); err != nil {
		t.Errorf("fresh release failed: %v", err)
	}
}

func TestReleaseTwice(t *testing.T) {
	g, _ := newTestGuard(30 * time.Second)
	lease, _ := g.Acquire(context.Background(), "t1")
	if err := g.Release(lease); err != nil {
		t.Fatal(err)
	}
	if err := g.Release(lease); !errors.Is(err, ErrNotHeld) {
		t.Errorf("second release = %v, want ErrNotHeld", err)
	}
}

func TestAcquireCancelledContext(t *testing.T) {
	g, _ := newTestGuard(30 * time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Acquire(ctx, "t1"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSweepEvictsExpired(t *testing.T) {
	g, clock := newTestGuard(30 * time.Second)
	ctx := context.Background()

	g.Acquire(ctx, "t1")
	g.Acquire(ctx, "t2")
	clock.Advance(31 * time.Second)
	g.Acquire(ctx, "t3")

	g.sweep()

	g.mu.Lock()
	remaining := len(g.held)
	g.mu.Unlock()
	if remaining != 1 {
		t.Errorf("sweep left %d leases, want 1", remaining)
	}
	if g.Active() != 1 {
		t.Errorf("Active = %d, want 1", g.Active())
	}
}

func TestMutualExclusionUnderContention(t *testing.T) {
	g, _ := newTestGuard(time.Minute)
	ctx := context.Background()

	const workers = 32
	var wg sync.WaitGroup
	var successes, conflicts int32
	var mu sync.Mutex

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := g.Acquire(ctx, "t1")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				_ = lease
			} else if IsConflict(err) {
				conflicts++
			} else {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("exactly one acquire should win, got %d", successes)
	}
	if conflicts != workers-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, workers-1)
	}
}
