package health

import (
	"sync"
	"time"

	"github.com/thushan/dispatch/internal/core/domain"
)

// breaker is the per-endpoint circuit breaker state machine.
// It follows the same compact state-plus-counters shape as the teacher's
// atomic-counter breaker, but a mutex replaces the bare
// atomics here because a trip decision reads several related counters
// together (consecutive failures, the monitoring window, tripCount) and a
// single read has to observe them consistently.
type breaker struct {
	mu sync.Mutex

	cfg domain.CircuitBreakerConfig

	state               domain.BreakerState
	consecutiveFailures int
	tripCount           int
	backoffMultiplier   int
	openedAt            time.Time
	nextProbeAt         time.Time
	lastTripAt          time.Time
	probeInFlight       bool

	windowStart    time.Time
	windowRequests int
	windowFailures int
}

func newBreaker(cfg domain.CircuitBreakerConfig) *breaker {
	return &breaker{
		cfg:               cfg,
		state:             domain.BreakerClosed,
		backoffMultiplier: 1,
	}
}

// Allow is a pure, read-only availability check: it never mutates breaker
// state. Safe to call any number of times from filtering/scoring paths
// (candidate selection, pool health scoring) without disturbing the single
// half-open probe slot. An open breaker past its nextProbeAt reads as
// available here even though the actual half-open transition -- and the
// claim on the probe slot -- only happens in AdmitProbe.
func (b *breaker) Allow(now time.Time) bool {
	if !b.cfg.Enabled {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case domain.BreakerClosed:
		return true
	case domain.BreakerHalfOpen:
		return !b.probeInFlight
	case domain.BreakerOpen:
		return !now.Before(b.nextProbeAt)
	default:
		return true
	}
}

// AdmitProbe performs the state-mutating half-open admission: flipping
// open -> half-open once the backoff-scaled reset timeout has elapsed, and
// claiming the single in-flight probe slot. Unlike Allow, this must only be
// called immediately before actually dispatching a live attempt (or a
// scheduled health probe) against the endpoint -- never from a read-only
// filtering/scoring path, or the real recovery probe gets consumed before
// it ever reaches the adapter.
func (b *breaker) AdmitProbe(now time.Time) bool {
	if !b.cfg.Enabled {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case domain.BreakerClosed:
		return true
	case domain.BreakerHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	case domain.BreakerOpen:
		if now.Before(b.nextProbeAt) {
			return false
		}
		b.state = domain.BreakerHalfOpen
		b.probeInFlight = true
		return true
	default:
		return true
	}
}

// RecordOutcome folds an attempt's result into the breaker, tripping or
// resetting as needed. The returned transition is valid only when ok is
// true.
func (b *breaker) RecordOutcome(now time.Time, outcome domain.RequestOutcome) (domain.BreakerTransition, bool) {
	if !b.cfg.Enabled {
		return domain.BreakerTransition{}, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.probeInFlight = false
	b.rollWindow(now)
	b.windowRequests++

	success := outcome.Kind == domain.KindSuccess
	if success {
		return b.onSuccess(now)
	}
	return b.onFailure(now, outcome)
}

func (b *breaker) onSuccess(now time.Time) (domain.BreakerTransition, bool) {
	b.consecutiveFailures = 0

	if b.state == domain.BreakerClosed {
		return domain.BreakerTransition{}, false
	}

	from := b.state
	b.state = domain.BreakerClosed
	b.backoffMultiplier = 1
	b.probeInFlight = false

	// tripCount decays once the breaker has recovered and stayed closed
	// past the decay window; recorded via lastTripAt so a flapping
	// endpoint still escalates backoff on its next trip.
	if b.cfg.TripCountDecayWindow > 0 && now.Sub(b.lastTripAt) > b.cfg.TripCountDecayWindow {
		b.tripCount = 0
	}

	return domain.BreakerTransition{
		At: now, From: from, To: domain.BreakerClosed,
		Reason: "probe succeeded", TripCount: b.tripCount,
	}, true
}

func (b *breaker) onFailure(now time.Time, outcome domain.RequestOutcome) (domain.BreakerTransition, bool) {
	b.windowFailures++
	b.consecutiveFailures++

	if outcome.Immediate || outcome.Kind.TripsImmediately() {
		return b.trip(now, "immediate failure", true)
	}

	if b.state == domain.BreakerHalfOpen {
		return b.trip(now, "probe failed", false)
	}

	if b.state == domain.BreakerOpen {
		return domain.BreakerTransition{}, false
	}

	if b.consecutiveFailures >= b.cfg.FailureThreshold {
		return b.trip(now, "consecutive failure threshold reached", false)
	}

	if b.windowRequests >= b.cfg.MinRequestsThreshold {
		errRate := float64(b.windowFailures) / float64(b.windowRequests) * 100
		if errRate >= b.cfg.ErrorThresholdPercentage {
			return b.trip(now, "windowed error rate threshold reached", false)
		}
	}

	return domain.BreakerTransition{}, false
}

// trip opens the breaker. A plain trip reopens after a flat ResetTimeout;
// an immediate-failure trip escalates nextProbeAt with exponential backoff
// seeded from max(ResetTimeout*TimeoutMultiplier, BaseTimeout) and scaled by
// 2^min(tripCount-1, MaxBackoffMultiplier), so repeated immediate failures
// (e.g. a dead credential) back off aggressively instead of hammering the
// endpoint every ResetTimeout.
func (b *breaker) trip(now time.Time, reason string, immediate bool) (domain.BreakerTransition, bool) {
	from := b.state
	b.state = domain.BreakerOpen
	b.openedAt = now
	b.tripCount++
	b.probeInFlight = false

	if immediate {
		b.lastTripAt = now

		escalated := time.Duration(float64(b.cfg.ResetTimeout) * b.cfg.TimeoutMultiplier)
		if escalated < b.cfg.BaseTimeout {
			escalated = b.cfg.BaseTimeout
		}

		exp := b.tripCount - 1
		if exp > b.cfg.MaxBackoffMultiplier {
			exp = b.cfg.MaxBackoffMultiplier
		}
		if exp < 0 {
			exp = 0
		}
		b.backoffMultiplier = 1 << uint(exp)
		b.nextProbeAt = now.Add(escalated * time.Duration(b.backoffMultiplier))
	} else {
		b.backoffMultiplier = 1
		b.nextProbeAt = now.Add(b.cfg.ResetTimeout)
	}

	return domain.BreakerTransition{
		At: now, From: from, To: domain.BreakerOpen,
		Reason: reason, TripCount: b.tripCount,
	}, true
}

// rollWindow resets the windowed counters once MonitoringWindow has
// elapsed since the window started.
func (b *breaker) rollWindow(now time.Time) {
	if b.windowStart.IsZero() || now.Sub(b.windowStart) > b.cfg.MonitoringWindow {
		b.windowStart = now
		b.windowRequests = 0
		b.windowFailures = 0
	}
}

func (b *breaker) Snapshot() domain.CircuitBreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return domain.CircuitBreakerSnapshot{
		State:               b.state,
		OpenedAt:            b.openedAt,
		NextProbeAt:         b.nextProbeAt,
		ConsecutiveFailures: b.consecutiveFailures,
		TripCount:           b.tripCount,
		BackoffMultiplier:   b.backoffMultiplier,
		WindowRequests:      b.windowRequests,
		WindowFailures:      b.windowFailures,
	}
}
