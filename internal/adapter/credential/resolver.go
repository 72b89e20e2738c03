package credential

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/thushan/dispatch/internal/core/domain"
	"github.com/thushan/dispatch/internal/core/ports"
	"github.com/thushan/dispatch/internal/logger"
)

const (
	maxCacheEntries = 200
	cacheTTL        = 5 * time.Minute
	sweepInterval   = 5 * time.Minute
)

type cacheEntry struct {
	credential *domain.Credential
	cachedAt   time.Time
	expiresAt  time.Time
}

// Resolver is the process-wide ports.CredentialResolver: a TTL plus
// bounded-size cache in front of the per-kind CredentialStore
// implementations. When full, the oldest-by-expiresAt entry
// is evicted to make room, since that entry is closest to needing a
// refresh anyway.
type Resolver struct {
	stores   map[domain.CredentialKind]ports.CredentialStore
	refKinds map[string]domain.CredentialKind
	log      *logger.StyledLogger

	mu    sync.Mutex
	cache map[string]*cacheEntry

	stopSweep chan struct{}
}

func NewResolver(log *logger.StyledLogger) *Resolver {
	r := &Resolver{
		stores:    make(map[domain.CredentialKind]ports.CredentialStore),
		refKinds:  make(map[string]domain.CredentialKind),
		log:       log,
		cache:     make(map[string]*cacheEntry),
		stopSweep: make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

func (r *Resolver) RegisterStore(store ports.CredentialStore) {
	r.stores[store.Kind()] = store
}

// BindRef associates a credential reference with the store kind that
// should resolve it, populated from config at startup.
func (r *Resolver) BindRef(ref string, kind domain.CredentialKind) {
	r.refKinds[ref] = kind
}

func (r *Resolver) Resolve(ctx context.Context, ref string) (*domain.Credential, error) {
	if cred, ok := r.cacheGet(ref); ok {
		return cred, nil
	}

	kind, ok := r.refKinds[ref]
	if !ok {
		return nil, &domain.CredentialError{Ref: ref, Kind: domain.CredentialNotFound, Err: fmt.Errorf("no credential store bound to reference %q", ref)}
	}
	store, ok := r.stores[kind]
	if !ok {
		return nil, &domain.CredentialError{Ref: ref, Kind: domain.CredentialStoreFailed, Err: fmt.Errorf("no store registered for kind %q", kind)}
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}

	cred, err := store.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	r.cachePut(ref, cred)
	return cred, nil
}

func (r *Resolver) Prewarm(ctx context.Context, refs []string) error {
	var firstErr error
	for _, ref := range refs {
		if _, err := r.Resolve(ctx, ref); err != nil {
			r.log.Warn("credential prewarm failed", "ref", ref, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Resolver) Invalidate(ref string) {
	r.mu.Lock()
	delete(r.cache, ref)
	r.mu.Unlock()
}

func (r *Resolver) cacheGet(ref string) (*domain.Credential, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.cache[ref]
	if !ok {
		return nil, false
	}

	now := time.Now()
	if now.After(entry.expiresAt) || entry.credential.Expired(now) {
		delete(r.cache, ref)
		return nil, false
	}
	return entry.credential, true
}

func (r *Resolver) cachePut(ref string, cred *domain.Credential) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.cache) >= maxCacheEntries {
		r.evictOldestLocked()
	}

	expiresAt := time.Now().Add(cacheTTL)
	if cred.ExpiresAt != nil && cred.ExpiresAt.Before(expiresAt) {
		expiresAt = *cred.ExpiresAt
	}

	r.cache[ref] = &cacheEntry{credential: cred, cachedAt: time.Now(), expiresAt: expiresAt}
}

// evictOldestLocked drops the entry with the earliest expiresAt. Called
// with r.mu held.
func (r *Resolver) evictOldestLocked() {
	var oldestRef string
	var oldestAt time.Time
	for ref, entry := range r.cache {
		if oldestRef == "" || entry.expiresAt.Before(oldestAt) {
			oldestRef = ref
			oldestAt = entry.expiresAt
		}
	}
	if oldestRef != "" {
		delete(r.cache, oldestRef)
	}
}

func (r *Resolver) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopSweep:
			return
		case now := <-ticker.C:
			r.sweep(now)
		}
	}
}

func (r *Resolver) sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ref, entry := range r.cache {
		if now.After(entry.expiresAt) {
			delete(r.cache, ref)
		}
	}
}

func (r *Resolver) Stop() {
	close(r.stopSweep)
}
