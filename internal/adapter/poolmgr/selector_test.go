package poolmgr

import (
	"testing"
	"time"

	"github.com/thushan/dispatch/internal/core/domain"
)

func TestSelectorFor_DefaultsToPriority(t *testing.T) {
	s := selectorFor(domain.SelectionPolicy("unknown-policy"))
	if s.Name() != domain.SelectionPriority {
		t.Errorf("expected unknown policy to default to priority, got %s", s.Name())
	}
}

func TestPrioritySelector_TiesBrokenByLatency(t *testing.T) {
	s := selectorFor(domain.SelectionPriority)
	candidates := []candidate{
		{endpoint: domain.EndpointConfig{ID: "slow", Priority: 1}, health: domain.EndpointHealth{Metrics: domain.HealthMetrics{EWMALatency: 500 * time.Millisecond}}},
		{endpoint: domain.EndpointConfig{ID: "fast", Priority: 1}, health: domain.EndpointHealth{Metrics: domain.HealthMetrics{EWMALatency: 10 * time.Millisecond}}},
	}

	ordered := s.Order(candidates)
	if len(ordered) != 2 || ordered[0].ID != "fast" {
		t.Fatalf("expected same-priority tier ordered by latency, got %+v", ordered)
	}
}

func TestPrioritySelector_LowerPriorityNumberFirst(t *testing.T) {
	s := selectorFor(domain.SelectionPriority)
	candidates := []candidate{
		{endpoint: domain.EndpointConfig{ID: "secondary", Priority: 2}},
		{endpoint: domain.EndpointConfig{ID: "primary", Priority: 1}},
	}

	ordered := s.Order(candidates)
	if ordered[0].ID != "primary" {
		t.Fatalf("expected priority 1 endpoint first, got %+v", ordered)
	}
}

func TestRoundRobinSelector_RotatesStartingPoint(t *testing.T) {
	s := &roundRobinSelector{}
	candidates := []candidate{
		{endpoint: domain.EndpointConfig{ID: "a"}},
		{endpoint: domain.EndpointConfig{ID: "b"}},
		{endpoint: domain.EndpointConfig{ID: "c"}},
	}

	first := s.Order(candidates)
	second := s.Order(candidates)

	if first[0].ID == second[0].ID {
		t.Errorf("expected consecutive calls to rotate the starting endpoint, got %s both times", first[0].ID)
	}
	if len(first) != 3 || len(second) != 3 {
		t.Fatal("expected every call to return all candidates")
	}
}

func TestLeastLatencySelector_OrdersAscendingAndUnobservedLast(t *testing.T) {
	s := &leastLatencySelector{}
	candidates := []candidate{
		{endpoint: domain.EndpointConfig{ID: "unobserved"}},
		{endpoint: domain.EndpointConfig{ID: "slow"}, health: domain.EndpointHealth{Metrics: domain.HealthMetrics{EWMALatency: 200 * time.Millisecond}}},
		{endpoint: domain.EndpointConfig{ID: "fast"}, health: domain.EndpointHealth{Metrics: domain.HealthMetrics{EWMALatency: 20 * time.Millisecond}}},
	}

	ordered := s.Order(candidates)
	if ordered[0].ID != "fast" {
		t.Fatalf("expected fast endpoint first, got %+v", ordered)
	}
	if ordered[len(ordered)-1].ID != "unobserved" {
		t.Fatalf("expected unobserved (zero-latency) endpoint last, got %+v", ordered)
	}
}

func TestWeightedSelector_ReturnsAllCandidatesOnce(t *testing.T) {
	s := &weightedSelector{}
	candidates := []candidate{
		{endpoint: domain.EndpointConfig{ID: "a", Weight: 1}},
		{endpoint: domain.EndpointConfig{ID: "b", Weight: 3}},
	}

	ordered := s.Order(candidates)
	if len(ordered) != 2 {
		t.Fatalf("expected both candidates returned exactly once, got %+v", ordered)
	}
	seen := map[string]bool{}
	for _, ep := range ordered {
		seen[ep.ID] = true
	}
	if !seen["a"] || !seen["b"] {
		t.Fatalf("expected both endpoint IDs present, got %+v", ordered)
	}
}

func TestWeightedSelector_UnweightedEndpointsDefaultToEqualWeight(t *testing.T) {
	s := &weightedSelector{}
	candidates := []candidate{
		{endpoint: domain.EndpointConfig{ID: "a", Weight: 0}},
		{endpoint: domain.EndpointConfig{ID: "b", Weight: 0}},
	}

	ordered := s.Order(candidates)
	if len(ordered) != 2 {
		t.Fatalf("expected both unweighted candidates returned once each, got %+v", ordered)
	}
}
