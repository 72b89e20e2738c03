package poolmgr

import (
	"testing"
	"time"

	"github.com/thushan/dispatch/internal/core/domain"
)

// fakeHealth implements ports.HealthManager with per-endpoint availability
// and a fixed EWMA latency, enough to exercise selection and scoring without
// a full health.Manager.
type fakeHealth struct {
	down    map[string]bool
	latency map[string]time.Duration
}

func newFakeHealth() *fakeHealth {
	return &fakeHealth{down: map[string]bool{}, latency: map[string]time.Duration{}}
}

func (f *fakeHealth) RecordOutcome(endpointID string, outcome domain.Outcome) {}
func (f *fakeHealth) Snapshot(endpointID string) (domain.EndpointHealth, bool) {
	return domain.EndpointHealth{EndpointID: endpointID, Metrics: domain.HealthMetrics{EWMALatency: f.latency[endpointID]}}, true
}
func (f *fakeHealth) Available(endpointID string) bool { return !f.down[endpointID] }
func (f *fakeHealth) Admit(endpointID string) bool       { return !f.down[endpointID] }
func (f *fakeHealth) Register(cfg domain.EndpointConfig) {}
func (f *fakeHealth) Forget(endpointID string)           {}

func TestManager_SelectOrdersByPriority(t *testing.T) {
	h := newFakeHealth()
	m := NewManager(h)
	m.SetPool(domain.Pool{ID: "pool-1", SelectionPolicy: domain.SelectionPriority, EndpointIDs: []string{"low", "high"}})
	m.SetEndpoint(domain.EndpointConfig{ID: "low", Priority: 2})
	m.SetEndpoint(domain.EndpointConfig{ID: "high", Priority: 1})

	ordered, err := m.Select("pool-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ordered) != 2 || ordered[0].ID != "high" {
		t.Fatalf("expected high-priority endpoint first, got %+v", ordered)
	}
}

func TestManager_SelectExcludesUnavailableAndTried(t *testing.T) {
	h := newFakeHealth()
	h.down["down-ep"] = true
	m := NewManager(h)
	m.SetPool(domain.Pool{ID: "pool-1", SelectionPolicy: domain.SelectionPriority, EndpointIDs: []string{"down-ep", "ep-1", "ep-2"}})
	m.SetEndpoint(domain.EndpointConfig{ID: "down-ep", Priority: 1})
	m.SetEndpoint(domain.EndpointConfig{ID: "ep-1", Priority: 2})
	m.SetEndpoint(domain.EndpointConfig{ID: "ep-2", Priority: 3})

	ordered, err := m.Select("pool-1", map[string]struct{}{"ep-1": {}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ordered) != 1 || ordered[0].ID != "ep-2" {
		t.Fatalf("expected only ep-2 to remain routable, got %+v", ordered)
	}
}

func TestManager_SelectUnknownPoolErrors(t *testing.T) {
	m := NewManager(newFakeHealth())
	if _, err := m.Select("missing", nil); err == nil {
		t.Fatal("expected an error for an unknown pool")
	}
}

func TestManager_SelectAllUnavailableErrors(t *testing.T) {
	h := newFakeHealth()
	h.down["ep-1"] = true
	m := NewManager(h)
	m.SetPool(domain.Pool{ID: "pool-1", SelectionPolicy: domain.SelectionPriority, EndpointIDs: []string{"ep-1"}})
	m.SetEndpoint(domain.EndpointConfig{ID: "ep-1", Priority: 1})

	if _, err := m.Select("pool-1", nil); err == nil {
		t.Fatal("expected an error when every endpoint is unavailable")
	}
}

func TestManager_HealthHealthyWithNoObservedErrors(t *testing.T) {
	h := newFakeHealth()
	m := NewManager(h)
	m.SetPool(domain.Pool{
		ID: "pool-1", SelectionPolicy: domain.SelectionPriority, EndpointIDs: []string{"ep-1"},
		HealthThresholds: domain.HealthThresholds{MinHealthyEndpoints: 1, ResponseTimeMs: 2000, ErrorRatePct: 10},
	})
	m.SetEndpoint(domain.EndpointConfig{ID: "ep-1", Priority: 1})

	score, err := m.Health("pool-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score.Status != domain.PoolHealthy {
		t.Errorf("expected a fresh pool with no observed errors to be healthy, got %s", score.Status)
	}
}

func TestManager_HealthUnhealthyBelowMinimum(t *testing.T) {
	h := newFakeHealth()
	h.down["ep-1"] = true
	m := NewManager(h)
	m.SetPool(domain.Pool{
		ID: "pool-1", SelectionPolicy: domain.SelectionPriority, EndpointIDs: []string{"ep-1"},
		HealthThresholds: domain.HealthThresholds{MinHealthyEndpoints: 1, ResponseTimeMs: 2000, ErrorRatePct: 10},
	})
	m.SetEndpoint(domain.EndpointConfig{ID: "ep-1", Priority: 1})

	score, err := m.Health("pool-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score.Status != domain.PoolUnhealthy {
		t.Errorf("expected unhealthy when below MinHealthyEndpoints, got %s", score.Status)
	}
}

func TestManager_HealthIsCached(t *testing.T) {
	h := newFakeHealth()
	m := NewManager(h)
	m.SetPool(domain.Pool{ID: "pool-1", SelectionPolicy: domain.SelectionPriority, EndpointIDs: []string{"ep-1"}})
	m.SetEndpoint(domain.EndpointConfig{ID: "ep-1", Priority: 1})

	first, err := m.Health("pool-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h.down["ep-1"] = true // change underlying health; cache should still be served
	second, err := m.Health("pool-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ComputedAt != first.ComputedAt {
		t.Error("expected Health to serve the cached score within the TTL window")
	}
}
