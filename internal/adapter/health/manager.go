package health

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/thushan/dispatch/internal/core/domain"
	"github.com/thushan/dispatch/internal/core/ports"
	"github.com/thushan/dispatch/internal/logger"
	"github.com/thushan/dispatch/pkg/eventbus"
)

// endpointState is the mutable per-endpoint record the Manager owns:
// the breaker state machine plus the rolling HealthMetrics view the Pool
// Manager scores against.
type endpointState struct {
	mu      sync.Mutex
	breaker *breaker
	metrics domain.HealthMetrics
}

// Manager is the process-wide ports.HealthManager implementation. It is
// pairs a breaker with a transition tracker per endpoint, and tracks a
// full breaker state machine and EWMA metrics per endpoint instead of a
// single open/closed flag.
type Manager struct {
	endpoints *xsync.Map[string, *endpointState]
	tracker   *transitionTracker
	events    *eventbus.EventBus[ports.DispatchEvent]
	log       *logger.StyledLogger

	defaultCfg domain.CircuitBreakerConfig
}

func NewManager(events *eventbus.EventBus[ports.DispatchEvent], log *logger.StyledLogger) *Manager {
	return &Manager{
		endpoints:  xsync.NewMap[string, *endpointState](),
		tracker:    newTransitionTracker(),
		events:     events,
		log:        log,
		defaultCfg: domain.DefaultCircuitBreakerConfig(),
	}
}

func (m *Manager) Register(cfg domain.EndpointConfig) {
	bcfg := cfg.CircuitBreaker
	if bcfg.FailureThreshold == 0 {
		bcfg = m.defaultCfg
	}
	m.endpoints.Store(cfg.ID, &endpointState{breaker: newBreaker(bcfg)})
}

func (m *Manager) Forget(endpointID string) {
	m.endpoints.Delete(endpointID)
	m.tracker.forget(endpointID)
}

// RecordOutcome folds an attempt's outcome into the endpoint's breaker and
// EWMA metrics, publishing circuit-tripped / endpoint-state-transition
// events when the breaker's state actually changes.
func (m *Manager) RecordOutcome(endpointID string, outcome domain.Outcome) {
	state, ok := m.endpoints.Load(endpointID)
	if !ok {
		return
	}

	now := outcome.CompletedAt
	if now.IsZero() {
		now = time.Now()
	}

	state.mu.Lock()
	m.updateMetrics(&state.metrics, outcome, now)
	transition, changed := state.breaker.RecordOutcome(now, domain.RequestOutcome{
		Kind: outcome.Kind, Latency: outcome.Latency, Immediate: outcome.Kind.TripsImmediately(),
	})
	state.mu.Unlock()

	isError := outcome.Kind != domain.KindSuccess
	if shouldLog, count := m.tracker.shouldLog(endpointID, state.breaker.Snapshot().State, isError); shouldLog {
		if isError {
			m.log.WarnWithEndpoint("endpoint outcome degraded", endpointID,
				"kind", outcome.Kind, "consecutive_errors", count, "latency", outcome.Latency)
		} else {
			m.log.InfoWithEndpoint("endpoint recovered", endpointID, "latency", outcome.Latency)
		}
	}

	if changed {
		m.log.InfoBreakerState("breaker state changed", endpointID, transition.To, "reason", transition.Reason, "trip_count", transition.TripCount)
		if m.events != nil {
			kind := ports.EventEndpointStateTransition
			if transition.To == domain.BreakerOpen {
				kind = ports.EventCircuitTripped
			}
			m.events.PublishAsync(ports.DispatchEvent{
				Kind: kind, EndpointID: endpointID,
				Detail:  transition.Reason,
				Outcome: &outcome,
			})
		}
	}
}

func (m *Manager) updateMetrics(hm *domain.HealthMetrics, outcome domain.Outcome, now time.Time) {
	hm.LastObservedAt = now
	hm.TotalRequests++

	if outcome.Kind == domain.KindSuccess {
		hm.LastSuccessAt = now
		hm.ConsecutiveOK++
		hm.ConsecutiveErrors = 0
	} else {
		hm.LastFailureAt = now
		hm.TotalFailures++
		hm.ConsecutiveErrors++
		hm.ConsecutiveOK = 0
	}

	if hm.TotalRequests > 0 {
		hm.ErrorRate = float64(hm.TotalFailures) / float64(hm.TotalRequests)
	}

	if hm.EWMALatency == 0 {
		hm.EWMALatency = outcome.Latency
	} else {
		hm.EWMALatency = time.Duration(HealthMetricsAlpha*float64(outcome.Latency) + (1-HealthMetricsAlpha)*float64(hm.EWMALatency))
	}
	hm.AvgLatency = hm.EWMALatency
}

func (m *Manager) Snapshot(endpointID string) (domain.EndpointHealth, bool) {
	state, ok := m.endpoints.Load(endpointID)
	if !ok {
		return domain.EndpointHealth{}, false
	}

	state.mu.Lock()
	metrics := state.metrics
	state.mu.Unlock()

	snap := state.breaker.Snapshot()
	return domain.EndpointHealth{
		EndpointID: endpointID,
		Breaker:    snap,
		Metrics:    metrics,
		Available:  snap.State != domain.BreakerOpen,
	}, true
}

// Available is a pure, read-only check: it never claims the half-open
// probe slot, so it is safe to call repeatedly from filtering/scoring
// paths (pool candidate selection, pool health scoring) without starving
// the router's own admission check.
func (m *Manager) Available(endpointID string) bool {
	state, ok := m.endpoints.Load(endpointID)
	if !ok {
		return false
	}
	return state.breaker.Allow(time.Now())
}

// Admit claims the single half-open probe slot (or passes through
// unconditionally when closed). Call this exactly once, right before a
// live attempt actually reaches endpointID.
func (m *Manager) Admit(endpointID string) bool {
	state, ok := m.endpoints.Load(endpointID)
	if !ok {
		return false
	}
	return state.breaker.AdmitProbe(time.Now())
}

// cleanupStale bounds the endpoint map. While MaxTrackedEndpoints or fewer
// endpoints are tracked it does nothing, so endpoints that have gone quiet
// are kept. Above that, it drops endpoints that have gone quiet for longer
// than StaleEntryRetention, in map iteration order, until the count is down
// to KeepAfterEvictionCap or no stale endpoint is left; active endpoints are
// never dropped. Invoked periodically by the Health Check Scheduler's
// cleanup loop.
func (m *Manager) cleanupStale(now time.Time) {
	count := 0
	m.endpoints.Range(func(id string, _ *endpointState) bool {
		count++
		return true
	})
	if count <= MaxTrackedEndpoints {
		return
	}

	type candidate struct {
		id       string
		lastSeen time.Time
	}
	var stale []candidate
	m.endpoints.Range(func(id string, state *endpointState) bool {
		state.mu.Lock()
		last := state.metrics.LastObservedAt
		state.mu.Unlock()
		if now.Sub(last) > StaleEntryRetention {
			stale = append(stale, candidate{id, last})
		}
		return true
	})

	excess := count - KeepAfterEvictionCap
	for i := 0; i < len(stale) && i < excess; i++ {
		m.Forget(stale[i].id)
	}
}
