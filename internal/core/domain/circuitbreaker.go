package domain

import "time"

// BreakerState is the circuit breaker's finite state.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// BreakerTransition records one state change for the transition log an
// operator can inspect.
type BreakerTransition struct {
	At        time.Time
	From      BreakerState
	To        BreakerState
	Reason    string
	TripCount int
}

// CircuitBreakerSnapshot is a point-in-time, read-only copy of a breaker's
// state, safe to hand to callers outside the health manager's lock.
type CircuitBreakerSnapshot struct {
	OpenedAt            time.Time
	NextProbeAt         time.Time
	State               BreakerState
	ConsecutiveFailures int
	TripCount           int
	BackoffMultiplier   int
	WindowRequests      int
	WindowFailures      int
}

// RequestOutcome is what the Router/Health Manager use to update a
// breaker's counters after an attempt completes.
type RequestOutcome struct {
	Kind      ErrorKind
	Latency   time.Duration
	Immediate bool
}
