package ports

import (
	"context"
	"time"

	"github.com/thushan/dispatch/internal/core/domain"
)

// CircuitBreaker is one endpoint's state machine. The Health
// Manager owns exactly one instance per endpoint ID.
type CircuitBreaker interface {
	// Allow is a pure, read-only availability check -- it never mutates
	// breaker state. Safe for filtering/scoring candidates.
	Allow(now time.Time) bool

	// AdmitProbe performs the state-mutating half-open admission,
	// transitioning open->half-open once the breaker's current wait
	// (ResetTimeout, or the escalated back-off after an immediate trip)
	// has elapsed and
	// claiming the single in-flight probe slot. Call this only
	// immediately before a live attempt actually reaches the endpoint.
	AdmitProbe(now time.Time) bool

	// RecordOutcome folds an attempt's result into the breaker's
	// counters, tripping or resetting as needed, and returns the
	// transition that occurred (zero value if none).
	RecordOutcome(now time.Time, outcome domain.RequestOutcome) (domain.BreakerTransition, bool)

	Snapshot() domain.CircuitBreakerSnapshot
}

// HealthManager owns the breaker and rolling metrics for every known
// endpoint, and answers availability/score queries for the Pool Manager.
type HealthManager interface {
	RecordOutcome(endpointID string, outcome domain.Outcome)
	Snapshot(endpointID string) (domain.EndpointHealth, bool)

	// Available is a pure, read-only check used to filter and score
	// candidates; it never claims the half-open probe slot.
	Available(endpointID string) bool

	// Admit performs the state-mutating half-open admission for
	// endpointID. Call this exactly once, immediately before a live
	// attempt actually reaches the endpoint -- never from a
	// filtering/scoring path -- or the real recovery probe never
	// reaches the adapter via live traffic.
	Admit(endpointID string) bool

	// Register and Forget manage the lifetime of tracked endpoints as
	// config is loaded/reloaded.
	Register(cfg domain.EndpointConfig)
	Forget(endpointID string)
}

// HealthProber performs an out-of-band probe against one endpoint; used by
// the Health Check Scheduler and backed by a ProviderAdapter.Probe call.
type HealthProber interface {
	Probe(ctx context.Context, endpoint domain.EndpointConfig) domain.Outcome
}

// HealthCheckScheduler periodically probes every registered endpoint,
// coalescing against recently-observed live traffic so a healthy,
// frequently-used endpoint isn't redundantly probed.
type HealthCheckScheduler interface {
	Start(ctx context.Context) error
	Stop() error
	// NotifyObserved lets the Router tell the scheduler a real request
	// just completed against endpointID, deferring its next scheduled
	// probe.
	NotifyObserved(endpointID string, at time.Time)
}
