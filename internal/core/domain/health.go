package domain

import "time"

// HealthMetrics is the rolling view of an endpoint's behaviour the Pool
// Manager scores against. Updated by the Health Manager after every attempt
// and every probe; EWMALatency is smoothed with alpha = 0.2, while ErrorRate
// is the cumulative TotalFailures/TotalRequests ratio.
type HealthMetrics struct {
	LastObservedAt    time.Time
	LastSuccessAt     time.Time
	LastFailureAt     time.Time
	AvgLatency        time.Duration
	EWMALatency       time.Duration
	TotalRequests     int64
	TotalFailures     int64
	ConsecutiveOK     int
	ConsecutiveErrors int
	ErrorRate         float64
}

// EndpointHealth pairs immutable config-derived identity with the mutable
// health/breaker state the Health Manager owns for one endpoint.
type EndpointHealth struct {
	EndpointID string
	Breaker    CircuitBreakerSnapshot
	Metrics    HealthMetrics
	Available  bool
}

// PoolHealthStatus is the Pool Manager's coarse verdict on a pool, derived
// from its composite Score and healthy-endpoint count.
type PoolHealthStatus string

const (
	PoolHealthy   PoolHealthStatus = "healthy"
	PoolDegraded  PoolHealthStatus = "degraded"
	PoolUnhealthy PoolHealthStatus = "unhealthy"
)

// PoolHealth is the Pool Manager's cached, scored view of a pool, refreshed
// at most every 30s.
type PoolHealth struct {
	ComputedAt         time.Time
	PoolID             string
	Status             PoolHealthStatus
	Score              float64
	AvailableEndpoints int
	TotalEndpoints     int
	AvgLatency         time.Duration
	ErrorRatePct       float64
}

// Routable reports whether the Router should still attempt this pool.
func (p PoolHealth) Routable() bool { return p.Status != PoolUnhealthy }

// HealthScoreWeights are the fixed weights in the PoolHealth composite
// score: availability 40%, response time 30%, error rate 30%.
const (
	WeightAvailability = 0.40
	WeightResponseTime = 0.30
	WeightErrorRate    = 0.30
)
