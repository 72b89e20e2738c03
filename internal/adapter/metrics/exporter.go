// Package metrics consumes the dispatch engine's event bus and exposes a
// minimal Prometheus view of it: counters for requests, circuit trips and
// rate-limit observations, and a gauge per pool's last-known health score.
// Peripheral to the core's semantics (see Non-goals), but every pack repo
// that carries an event bus also carries this kind of exporter, so the
// wiring is included rather than left as a dangling dependency.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/thushan/dispatch/internal/core/ports"
	"github.com/thushan/dispatch/pkg/eventbus"
)

// Exporter subscribes to the event bus and folds events into Prometheus
// collectors registered against its own registry.
type Exporter struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	circuitTrips    *prometheus.CounterVec
	rateLimitEvents *prometheus.CounterVec
	poolHealth      *prometheus.GaugeVec
}

// NewExporter builds the collector set and registers them against a fresh
// registry, so /internal/metrics never mixes in the Go runtime's default
// process collectors unless the caller wants them.
func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "requests_total",
			Help:      "Total dispatched requests by outcome.",
		}, []string{"outcome"}),
		circuitTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "circuit_trips_total",
			Help:      "Total circuit breaker trips by endpoint.",
		}, []string{"endpoint_id"}),
		rateLimitEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "rate_limit_observed_total",
			Help:      "Total upstream 429 observations by endpoint.",
		}, []string{"endpoint_id"}),
		poolHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dispatch",
			Name:      "pool_health_score",
			Help:      "Last reported composite health score for a pool.",
		}, []string{"pool_id"}),
	}

	e.registry.MustRegister(e.requestsTotal, e.circuitTrips, e.rateLimitEvents, e.poolHealth)
	return e
}

// Registry exposes the underlying prometheus.Registry for the /internal/metrics handler.
func (e *Exporter) Registry() *prometheus.Registry { return e.registry }

// SetPoolHealth records poolID's latest composite score, polled
// periodically from the Pool Manager since DispatchEvent carries no numeric
// payload for pool-health-changed.
func (e *Exporter) SetPoolHealth(poolID string, score float64) {
	e.poolHealth.WithLabelValues(poolID).Set(score)
}

// Run drains bus until ctx is cancelled, folding every DispatchEvent into
// the relevant collector. Intended to be launched in its own goroutine.
func (e *Exporter) Run(ctx context.Context, bus *eventbus.EventBus[ports.DispatchEvent]) {
	events, cancel := bus.Subscribe(ctx)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.observe(ev)
		}
	}
}

func (e *Exporter) observe(ev ports.DispatchEvent) {
	switch ev.Kind {
	case ports.EventRequestSucceeded:
		e.requestsTotal.WithLabelValues("success").Inc()
	case ports.EventRequestFailed:
		e.requestsTotal.WithLabelValues("failure").Inc()
	case ports.EventCircuitTripped:
		e.circuitTrips.WithLabelValues(ev.EndpointID).Inc()
	case ports.EventRateLimitObserved:
		e.rateLimitEvents.WithLabelValues(ev.EndpointID).Inc()
	}
}
