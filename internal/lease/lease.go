// Package lease serializes turn processing per thread. A thread admits one
// in-flight turn at a time; competing requests fail fast instead of queuing.
package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ConflictError means the thread already has an active lease.
type ConflictError struct {
	ThreadID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("thread %s is already processing a turn", e.ThreadID)
}

// IsConflict reports whether err wraps a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// ErrNotHeld is returned when releasing a lease that is no longer held by
// the caller's token (expired and reclaimed, or already released).
var ErrNotHeld = errors.New("lease not held")

// Lease is a time-limited exclusive claim on a thread.
type Lease struct {
	ThreadID  string
	Token     string
	ExpiresAt time.Time
}

// Guard hands out per-thread leases.
type Guard interface {
	// Acquire claims the thread or fails fast with ConflictError.
	Acquire(ctx context.Context, threadID string) (*Lease, error)
	// Release frees the thread if the lease token still holds it.
	Release(lease *Lease) error
}

// MemoryGuard is an in-process Guard: a mutex-protected map of active
// leases with TTL expiry. Expired leases are reclaimable immediately by the
// next Acquire and swept in the background so the map does not grow with
// abandoned threads.
type MemoryGuard struct {
	mu     sync.Mutex
	held   map[string]*Lease
	ttl    time.Duration
	now    func() time.Time
	stopCh chan struct{}
}

// NewMemoryGuard creates a guard with the given lease TTL.
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &MemoryGuard{
		held: make(map[string]*Lease),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Acquire claims threadID. A live lease on the same thread yields
// ConflictError; an expired one is reclaimed.
func (g *MemoryGuard) Acquire(ctx context.Context, threadID string) (*Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if existing, ok := g.held[threadID]; ok && now.Before(existing.ExpiresAt) {
		return nil, &ConflictError{ThreadID: threadID}
	}

	lease := &Lease{
		ThreadID:  threadID,
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(g.ttl),
	}
	g.held[threadID] = lease
	return lease, nil
}

// Release frees the lease if the token still matches. Releasing after the
// TTL has been reclaimed by another acquirer returns ErrNotHeld and leaves
// the new holder untouched.
func (g *MemoryGuard) Release(lease *Lease) error {
	if lease == nil {
		return ErrNotHeld
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	current, ok := g.held[lease.ThreadID]
	if !ok || current.Token != lease.Token {
		return ErrNotHeld
	}
	delete(g.held, lease.ThreadID)
	return nil
}

// StartSweeper launches the background goroutine that evicts expired
// leases. Call Stop to shut it down.
func (g *MemoryGuard) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = g.ttl
	}
	g.mu.Lock()
	if g.stopCh != nil {
		g.mu.Unlock()
		return
	}
	g.stopCh = make(chan struct{})
	stop := g.stopCh
	g.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.sweep()
			case <-stop:
				return
			}
		}
	}()
}

// Stop halts the background sweeper.
func (g *MemoryGuard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopCh != nil {
		close(g.stopCh)
		g.stopCh = nil
	}
}

func (g *MemoryGuard) sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	for threadID, lease := range g.held {
		if !now.Before(lease.ExpiresAt) {
			delete(g.held, threadID)
			slog.Warn("swept expired lease", "thread_id", threadID)
		}
	}
}

// Active returns the number of live leases. Used by health reporting.
func (g *MemoryGuard) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	n := 0
	for _, lease := range g.held {
		if now.Before(lease.ExpiresAt) {
			n++
		}
	}
	return n
}
