package health

import (
	"testing"
	"time"

	"github.com/thushan/dispatch/internal/core/domain"
)

func testCircuitBreakerConfig() domain.CircuitBreakerConfig {
	return domain.CircuitBreakerConfig{
		Enabled:                  true,
		FailureThreshold:         3,
		ResetTimeout:             10 * time.Second,
		MonitoringWindow:         time.Minute,
		MinRequestsThreshold:     10,
		ErrorThresholdPercentage: 50,
		TimeoutMultiplier:        5,
		BaseTimeout:              60 * time.Second,
		MaxBackoffMultiplier:     4,
		TripCountDecayWindow:     30 * time.Minute,
	}
}

func TestBreaker_StartsClosedAndAllows(t *testing.T) {
	b := newBreaker(testCircuitBreakerConfig())

	if !b.Allow(time.Now()) {
		t.Fatal("expected a fresh breaker to allow requests")
	}
	if b.Snapshot().State != domain.BreakerClosed {
		t.Fatalf("expected initial state closed, got %s", b.Snapshot().State)
	}
}

func TestBreaker_TripsOnConsecutiveFailureThreshold(t *testing.T) {
	b := newBreaker(testCircuitBreakerConfig())
	now := time.Now()

	for i := 0; i < 2; i++ {
		_, changed := b.RecordOutcome(now, domain.RequestOutcome{Kind: domain.KindTransient})
		if changed {
			t.Fatalf("did not expect a transition before reaching the failure threshold (i=%d)", i)
		}
	}

	transition, changed := b.RecordOutcome(now, domain.RequestOutcome{Kind: domain.KindTransient})
	if !changed {
		t.Fatal("expected the breaker to trip on reaching the failure threshold")
	}
	if transition.To != domain.BreakerOpen {
		t.Fatalf("expected transition to open, got %s", transition.To)
	}
	if b.Allow(now) {
		t.Fatal("expected an open breaker to reject requests immediately after tripping")
	}
}

func TestBreaker_ImmediateFailureTripsOnFirstOccurrence(t *testing.T) {
	b := newBreaker(testCircuitBreakerConfig())
	now := time.Now()

	transition, changed := b.RecordOutcome(now, domain.RequestOutcome{Kind: domain.KindCredentialError, Immediate: true})
	if !changed {
		t.Fatal("expected an immediate-failure outcome to trip the breaker on first occurrence")
	}
	if transition.To != domain.BreakerOpen {
		t.Fatalf("expected transition to open, got %s", transition.To)
	}
}

func TestBreaker_HalfOpenAllowsSingleProbe(t *testing.T) {
	cfg := testCircuitBreakerConfig()
	cfg.ResetTimeout = 1 * time.Millisecond
	b := newBreaker(cfg)
	now := time.Now()

	b.RecordOutcome(now, domain.RequestOutcome{Kind: domain.KindCredentialError, Immediate: true})

	probeAt := now.Add(2 * time.Minute)
	if !b.Allow(probeAt) {
		t.Fatal("expected Allow to read an open-past-deadline breaker as available")
	}
	if !b.AdmitProbe(probeAt) {
		t.Fatal("expected the breaker to let one probe through once past the escalated reset timeout")
	}
	if b.Snapshot().State != domain.BreakerHalfOpen {
		t.Fatalf("expected half-open after letting a probe through, got %s", b.Snapshot().State)
	}
	if b.AdmitProbe(probeAt) {
		t.Fatal("expected a second concurrent probe to be rejected while one is in flight")
	}
	if b.Allow(probeAt) {
		t.Fatal("expected Allow to reflect the in-flight probe once claimed")
	}
}

func TestBreaker_SuccessInHalfOpenCloses(t *testing.T) {
	cfg := testCircuitBreakerConfig()
	cfg.ResetTimeout = 1 * time.Millisecond
	b := newBreaker(cfg)
	now := time.Now()

	b.RecordOutcome(now, domain.RequestOutcome{Kind: domain.KindCredentialError, Immediate: true})
	probeAt := now.Add(2 * time.Minute)
	b.AdmitProbe(probeAt)

	transition, changed := b.RecordOutcome(probeAt, domain.RequestOutcome{Kind: domain.KindSuccess})
	if !changed {
		t.Fatal("expected a successful probe to transition the breaker")
	}
	if transition.To != domain.BreakerClosed {
		t.Fatalf("expected transition to closed, got %s", transition.To)
	}
	if !b.Allow(probeAt) {
		t.Fatal("expected a closed breaker to allow requests")
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	cfg := testCircuitBreakerConfig()
	cfg.ResetTimeout = 1 * time.Millisecond
	b := newBreaker(cfg)
	now := time.Now()

	b.RecordOutcome(now, domain.RequestOutcome{Kind: domain.KindCredentialError, Immediate: true})
	probeAt := now.Add(2 * time.Minute)
	b.AdmitProbe(probeAt)

	transition, changed := b.RecordOutcome(probeAt, domain.RequestOutcome{Kind: domain.KindTransient})
	if !changed {
		t.Fatal("expected a failed probe to transition the breaker")
	}
	if transition.To != domain.BreakerOpen {
		t.Fatalf("expected transition back to open, got %s", transition.To)
	}
}

func TestBreaker_RepeatedImmediateTripsEscalateBackoff(t *testing.T) {
	cfg := testCircuitBreakerConfig()
	b := newBreaker(cfg)
	now := time.Now()

	first, _ := b.RecordOutcome(now, domain.RequestOutcome{Kind: domain.KindCredentialError, Immediate: true})

	// let the first escalated reset window pass (max(ResetTimeout*TimeoutMultiplier, BaseTimeout)), then trip again
	probeAt := now.Add(70 * time.Second)
	b.AdmitProbe(probeAt)
	second, _ := b.RecordOutcome(probeAt, domain.RequestOutcome{Kind: domain.KindCredentialError, Immediate: true})

	if second.TripCount <= first.TripCount {
		t.Fatalf("expected trip count to increase across repeated immediate trips, got %d then %d", first.TripCount, second.TripCount)
	}

	snap := b.Snapshot()
	if snap.BackoffMultiplier <= 1 {
		t.Fatalf("expected backoff multiplier to escalate past 1, got %d", snap.BackoffMultiplier)
	}
}

func TestBreaker_DisabledAlwaysAllows(t *testing.T) {
	cfg := testCircuitBreakerConfig()
	cfg.Enabled = false
	b := newBreaker(cfg)

	for i := 0; i < 10; i++ {
		b.RecordOutcome(time.Now(), domain.RequestOutcome{Kind: domain.KindImmediateFailure, Immediate: true})
	}
	if !b.Allow(time.Now()) {
		t.Fatal("expected a disabled breaker to always allow requests")
	}
}
