package poolmgr

import (
	"fmt"
	"sync"
	"time"

	"github.com/thushan/dispatch/internal/core/domain"
	"github.com/thushan/dispatch/internal/core/ports"
)

const healthCacheTTL = 30 * time.Second

// Manager is the ports.PoolManager implementation: it resolves a pool's
// configured domain.SelectionPolicy to a selector, filters out endpoints
// the Health Manager reports unavailable, and caches the composite
// PoolHealth score for 30s.
type Manager struct {
	health ports.HealthManager

	mu        sync.RWMutex
	pools     map[string]domain.Pool
	endpoints map[string]domain.EndpointConfig

	healthCacheMu sync.Mutex
	healthCache   map[string]domain.PoolHealth
}

func NewManager(h ports.HealthManager) *Manager {
	return &Manager{
		health:      h,
		pools:       make(map[string]domain.Pool),
		endpoints:   make(map[string]domain.EndpointConfig),
		healthCache: make(map[string]domain.PoolHealth),
	}
}

func (m *Manager) SetPool(p domain.Pool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[p.ID] = p
}

func (m *Manager) SetEndpoint(e domain.EndpointConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoints[e.ID] = e
}

func (m *Manager) Pool(poolID string) (domain.Pool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[poolID]
	return p, ok
}

func (m *Manager) Select(poolID string, exclude map[string]struct{}) ([]domain.EndpointConfig, error) {
	m.mu.RLock()
	pool, ok := m.pools[poolID]
	if !ok {
		m.mu.RUnlock()
		return nil, fmt.Errorf("unknown pool: %s", poolID)
	}

	candidates := make([]candidate, 0, len(pool.EndpointIDs))
	for _, id := range pool.EndpointIDs {
		if _, skip := exclude[id]; skip {
			continue
		}
		ep, ok := m.endpoints[id]
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{endpoint: ep})
	}
	m.mu.RUnlock()

	routable := candidates[:0:0]
	for _, c := range candidates {
		if !m.health.Available(c.endpoint.ID) {
			continue
		}
		if h, found := m.health.Snapshot(c.endpoint.ID); found {
			c.health = h
		}
		routable = append(routable, c)
	}

	if len(routable) == 0 {
		return nil, errNoRoutableEndpoints
	}

	s := selectorFor(pool.SelectionPolicy)
	return s.Order(routable), nil
}

func (m *Manager) Health(poolID string) (domain.PoolHealth, error) {
	now := time.Now()

	m.healthCacheMu.Lock()
	if cached, ok := m.healthCache[poolID]; ok && now.Sub(cached.ComputedAt) < healthCacheTTL {
		m.healthCacheMu.Unlock()
		return cached, nil
	}
	m.healthCacheMu.Unlock()

	m.mu.RLock()
	pool, ok := m.pools[poolID]
	if !ok {
		m.mu.RUnlock()
		return domain.PoolHealth{}, fmt.Errorf("unknown pool: %s", poolID)
	}
	ids := append([]string(nil), pool.EndpointIDs...)
	m.mu.RUnlock()

	score := computeScore(m.health, ids, pool.HealthThresholds)
	score.PoolID = poolID
	score.ComputedAt = now
	score.TotalEndpoints = len(ids)

	m.healthCacheMu.Lock()
	m.healthCache[poolID] = score
	m.healthCacheMu.Unlock()

	return score, nil
}

// computeScore implements the pool's composite health score per §4.6:
// availability penalised up to 40, response time up to 30, error rate up
// to 30, starting from a perfect 100.
func computeScore(h ports.HealthManager, endpointIDs []string, thresholds domain.HealthThresholds) domain.PoolHealth {
	if len(endpointIDs) == 0 {
		return domain.PoolHealth{Status: domain.PoolUnhealthy}
	}
	if thresholds.MinHealthyEndpoints <= 0 {
		thresholds = domain.DefaultHealthThresholds()
	}

	available := 0
	var totalLatency time.Duration
	var totalErrorRate float64
	observed := 0

	for _, id := range endpointIDs {
		if h.Available(id) {
			available++
		}
		if eh, found := h.Snapshot(id); found {
			totalLatency += eh.Metrics.EWMALatency
			totalErrorRate += eh.Metrics.ErrorRate
			observed++
		}
	}

	total := len(endpointIDs)
	healthyRatio := float64(available) / float64(total)
	required := float64(thresholds.MinHealthyEndpoints) / float64(total)

	var avgLatency time.Duration
	var avgErrorRatePct float64
	if observed > 0 {
		avgLatency = totalLatency / time.Duration(observed)
		avgErrorRatePct = (totalErrorRate / float64(observed)) * 100
	}

	score := 100.0

	// Availability: 40% weight.
	if healthyRatio < required {
		score -= 40
	} else if healthyRatio < 0.8 {
		score -= 40 * (0.8 - healthyRatio) / 0.8
	}

	// Response time: 30% weight.
	if thresholds.ResponseTimeMs > 0 {
		threshold := float64(thresholds.ResponseTimeMs)
		avgMs := float64(avgLatency.Milliseconds())
		if avgMs > threshold {
			penalty := 30 * (avgMs - threshold) / threshold
			if penalty > 30 {
				penalty = 30
			}
			score -= penalty
		}
	}

	// Error rate: 30% weight, symmetric to response time.
	if thresholds.ErrorRatePct > 0 && avgErrorRatePct > thresholds.ErrorRatePct {
		penalty := 30 * (avgErrorRatePct - thresholds.ErrorRatePct) / thresholds.ErrorRatePct
		if penalty > 30 {
			penalty = 30
		}
		score -= penalty
	}

	if score < 0 {
		score = 0
	}

	status := domain.PoolHealthy
	switch {
	case available < thresholds.MinHealthyEndpoints:
		status = domain.PoolUnhealthy
	case score < 70:
		status = domain.PoolDegraded
	}

	return domain.PoolHealth{
		Status:             status,
		Score:              score,
		AvailableEndpoints: available,
		AvgLatency:         avgLatency,
		ErrorRatePct:       avgErrorRatePct,
	}
}
