package poolmgr

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/thushan/dispatch/internal/core/domain"
)

// candidate bundles an endpoint with its live health view for one
// selection pass.
type candidate struct {
	endpoint domain.EndpointConfig
	health   domain.EndpointHealth
}

// selector picks the ordered list of endpoints a pool should try, most
// preferred first. Each domain.SelectionPolicy has one implementation,
// follows the same ranking-strategy-per-policy shape as a classic load balancer's selector family
// (internal/adapter/balancer/{priority,round_robin,least_connections}.go)
// generalised from picking one winner to ranking a full fallback order.
type selector interface {
	Name() domain.SelectionPolicy
	Order(candidates []candidate) []domain.EndpointConfig
}

func selectorFor(policy domain.SelectionPolicy) selector {
	switch policy {
	case domain.SelectionWeighted:
		return &weightedSelector{}
	case domain.SelectionRoundRobin:
		return &roundRobinSelector{}
	case domain.SelectionLeastLatency:
		return &leastLatencySelector{}
	default:
		return &prioritySelector{}
	}
}

// prioritySelector ranks by Priority ascending (1 = tried first), breaking
// ties between endpoints at the same priority tier by least EWMA latency,
// mirroring PrioritySelector.weightedSelect's tiering but scored on
// observed latency rather than a weighted draw.
type prioritySelector struct{}

func (p *prioritySelector) Name() domain.SelectionPolicy { return domain.SelectionPriority }

func (p *prioritySelector) Order(candidates []candidate) []domain.EndpointConfig {
	sorted := append([]candidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].endpoint.Priority < sorted[j].endpoint.Priority
	})

	result := make([]domain.EndpointConfig, 0, len(sorted))
	i := 0
	for i < len(sorted) {
		j := i
		for j < len(sorted) && sorted[j].endpoint.Priority == sorted[i].endpoint.Priority {
			j++
		}
		tier := sorted[i:j]
		result = append(result, (&leastLatencySelector{}).Order(tier)...)
		i = j
	}
	return result
}

// weightedSelector ranks purely by Weight, weighted-random throughout.
type weightedSelector struct{}

func (w *weightedSelector) Name() domain.SelectionPolicy { return domain.SelectionWeighted }

func (w *weightedSelector) Order(candidates []candidate) []domain.EndpointConfig {
	return weightedOrder(candidates)
}

func weightedOrder(candidates []candidate) []domain.EndpointConfig {
	remaining := append([]candidate(nil), candidates...)
	result := make([]domain.EndpointConfig, 0, len(remaining))

	for len(remaining) > 0 {
		total := 0.0
		for _, c := range remaining {
			total += weightOf(c)
		}

		if total <= 0 {
			for _, c := range remaining {
				result = append(result, c.endpoint)
			}
			break
		}

		r := rand.Float64() * total
		sum := 0.0
		idx := len(remaining) - 1
		for i, c := range remaining {
			sum += weightOf(c)
			if r <= sum {
				idx = i
				break
			}
		}

		result = append(result, remaining[idx].endpoint)
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	return result
}

func weightOf(c candidate) float64 {
	if c.endpoint.Weight > 0 {
		return c.endpoint.Weight
	}
	return 1
}

// roundRobinSelector rotates the starting point on every call, adapted
// from RoundRobinSelector's atomic counter.
type roundRobinSelector struct {
	counter atomic.Uint64
}

func (r *roundRobinSelector) Name() domain.SelectionPolicy { return domain.SelectionRoundRobin }

func (r *roundRobinSelector) Order(candidates []candidate) []domain.EndpointConfig {
	n := len(candidates)
	if n == 0 {
		return nil
	}
	start := int(r.counter.Add(1)-1) % n
	result := make([]domain.EndpointConfig, 0, n)
	for i := 0; i < n; i++ {
		result = append(result, candidates[(start+i)%n].endpoint)
	}
	return result
}

// leastLatencySelector ranks by EWMA latency ascending, adapted from
// LeastConnectionsSelector's min-scan but scored on observed latency
// rather than in-flight connection count.
type leastLatencySelector struct{ mu sync.Mutex }

func (l *leastLatencySelector) Name() domain.SelectionPolicy { return domain.SelectionLeastLatency }

func (l *leastLatencySelector) Order(candidates []candidate) []domain.EndpointConfig {
	sorted := append([]candidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		li, lj := sorted[i].health.Metrics.EWMALatency, sorted[j].health.Metrics.EWMALatency
		if li == 0 {
			return false
		}
		if lj == 0 {
			return true
		}
		return li < lj
	})
	result := make([]domain.EndpointConfig, 0, len(sorted))
	for _, c := range sorted {
		result = append(result, c.endpoint)
	}
	return result
}

var errNoRoutableEndpoints = fmt.Errorf("no routable endpoints available")
