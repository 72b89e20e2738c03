package ports

import (
	"context"
	"time"

	"github.com/thushan/dispatch/internal/core/domain"
)

// DispatchResult is what the Router returns once it has either produced a
// usable upstream response or exhausted every fallback candidate.
type DispatchResult struct {
	Response     *ProviderResponse
	EndpointID   string
	PoolID       string
	Attempts     []domain.Outcome
	UsedFallback bool
}

// Router is the dispatch engine: it resolves a model to its pool chain,
// selects candidate endpoints, enforces bounded per-endpoint concurrency
// and the provider timeout clamp, and falls back across endpoints and pools
// on retryable failures.
type Router interface {
	Dispatch(ctx context.Context, rc *domain.RequestContext, req domain.NormalisedRequest) (*DispatchResult, error)
}

// RequestRegistry is the process-wide tracked set of in-flight
// domain.RequestContext values, swept periodically for expired entries.
type RequestRegistry interface {
	New(ctx context.Context, parentID string, timeout time.Duration) *domain.RequestContext
	Get(id string) (*domain.RequestContext, bool)
	Release(id string)
}

// DispatchEventKind names one of the nine lifecycle events the dispatch
// engine publishes on the event bus.
type DispatchEventKind string

const (
	EventRequestStarted          DispatchEventKind = "request-started"
	EventRequestSucceeded        DispatchEventKind = "request-succeeded"
	EventRequestFailed           DispatchEventKind = "request-failed"
	EventEndpointStateTransition DispatchEventKind = "endpoint-state-transition"
	EventPoolHealthChanged       DispatchEventKind = "pool-health-changed"
	EventCircuitTripped          DispatchEventKind = "circuit-tripped"
	EventRateLimitObserved       DispatchEventKind = "rate-limit-observed"
	EventCredentialResolved      DispatchEventKind = "credential-resolved"
	EventCredentialCacheEvicted  DispatchEventKind = "credential-cache-evicted"
)

// DispatchEvent is the payload published for every DispatchEventKind.
type DispatchEvent struct {
	Kind       DispatchEventKind
	RequestID  string
	EndpointID string
	PoolID     string
	Detail     string
	Outcome    *domain.Outcome
}
