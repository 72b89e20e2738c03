// Package requestctx is the process-wide ports.RequestRegistry
// implementation: it hands out domain.RequestContext values with a derived
// deadline, tracks them while in flight, and sweeps expired entries so a
// caller that never releases its context doesn't leak the map forever.
package requestctx

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thushan/dispatch/internal/core/domain"
	"github.com/thushan/dispatch/internal/logger"
)

const (
	sweepInterval  = 60 * time.Second
	maxEntryAge    = 10 * time.Minute
	defaultTimeout = 60 * time.Second
)

// Registry is the ports.RequestRegistry implementation.
type Registry struct {
	log *logger.StyledLogger

	mu      sync.Mutex
	entries map[string]*domain.RequestContext

	stop chan struct{}
}

func NewRegistry(log *logger.StyledLogger) *Registry {
	r := &Registry{
		log:     log,
		entries: make(map[string]*domain.RequestContext),
		stop:    make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

// New derives a child of ctx bounded by timeout (or
// defaultTimeout if zero/negative), registers it under a fresh request ID,
// and returns the tracked domain.RequestContext. Callers must call Release
// once the request completes.
func (r *Registry) New(ctx context.Context, parentID string, timeout time.Duration) *domain.RequestContext {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	now := time.Now()
	deadline := now.Add(timeout)
	childCtx, cancel := context.WithDeadline(ctx, deadline)

	rc := &domain.RequestContext{
		Context:   childCtx,
		Cancel:    cancel,
		StartedAt: now,
		Deadline:  deadline,
		ID:        uuid.NewString(),
		ParentID:  parentID,
	}

	r.mu.Lock()
	r.entries[rc.ID] = rc
	r.mu.Unlock()

	return rc
}

func (r *Registry) Get(id string) (*domain.RequestContext, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rc, ok := r.entries[id]
	return rc, ok
}

// Release cancels the request's context and drops it from the registry.
// Safe to call more than once.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	rc, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if ok {
		rc.Cancel()
	}
}

func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case now := <-ticker.C:
			r.sweep(now)
		}
	}
}

// sweep drops entries that have outlived maxEntryAge past their deadline --
// a caller that forgot to Release rather than a request still legitimately
// in flight.
func (r *Registry) sweep(now time.Time) {
	var stale []*domain.RequestContext

	r.mu.Lock()
	for id, rc := range r.entries {
		if now.Sub(rc.Deadline) > maxEntryAge {
			stale = append(stale, rc)
			delete(r.entries, id)
		}
	}
	count := len(r.entries)
	r.mu.Unlock()

	for _, rc := range stale {
		rc.Cancel()
	}
	if len(stale) > 0 {
		r.log.Warn("swept stale request contexts", "count", len(stale), "tracked", count)
	}
}

func (r *Registry) Stop() {
	close(r.stop)
}
