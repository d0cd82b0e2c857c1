package core

// gate.go serializes access to the staging relation.
//
// The staging relation is a single shared destination: the import's
// overwrite and the reconciler's read would interleave across concurrent
// uploads and corrupt results. The gate makes import -> reconcile ->
// truncate one critical section, with a bounded wait so a stuck upload
// cannot queue callers forever.
//
// The gate also supports graceful shutdown via WaitForDrain, which
// blocks until an in-flight reconciliation completes.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrIngestBusy is returned when the staging relation is occupied and
// the wait timeout expires. Clients should retry after a short delay.
var ErrIngestBusy = errors.New("another upload is being reconciled, please try again later")

// DefaultIngestWait is how long to wait for the staging relation before
// rejecting.
const DefaultIngestWait = 30 * time.Second

// StagingGate grants exclusive access to the staging relation. It is a
// one-slot semaphore with a bounded acquire wait.
type StagingGate struct {
	slot    chan struct{}
	maxWait time.Duration

	mu      sync.RWMutex
	active  bool
	waiting int
}

// NewStagingGate creates a gate whose Acquire waits at most maxWait.
func NewStagingGate(maxWait time.Duration) *StagingGate {
	if maxWait <= 0 {
		maxWait = DefaultIngestWait
	}
	return &StagingGate{
		slot:    make(chan struct{}, 1),
		maxWait: maxWait,
	}
}

// Acquire claims the staging relation for one ingest cycle.
// Returns nil on success, ErrIngestBusy if the wait timeout expires.
// The caller MUST call Release() when the cycle completes (use defer).
func (g *StagingGate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	g.waiting++
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.waiting--
		g.mu.Unlock()
	}()

	waitCtx, cancel := context.WithTimeout(ctx, g.maxWait)
	defer cancel()

	select {
	case g.slot <- struct{}{}:
		g.mu.Lock()
		g.active = true
		g.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		// Distinguish caller cancellation from gate timeout.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrIngestBusy
	}
}

// Release frees the staging relation. Must be called exactly once for
// each successful Acquire.
func (g *StagingGate) Release() {
	g.mu.Lock()
	g.active = false
	g.mu.Unlock()

	<-g.slot
}

// GateStatus is a snapshot of the gate's state for monitoring.
type GateStatus struct {
	Active  bool `json:"active"`
	Waiting int  `json:"waiting"`
}

// Status returns the current gate state.
func (g *StagingGate) Status() GateStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return GateStatus{Active: g.active, Waiting: g.waiting}
}

// WaitForDrain blocks until no reconciliation is in flight or the
// context is cancelled. Used for graceful shutdown so the pool is not
// closed under an active merge.
func (g *StagingGate) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		g.mu.RLock()
		active := g.active
		g.mu.RUnlock()
		if !active {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
