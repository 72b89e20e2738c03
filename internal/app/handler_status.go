package app

import (
	"encoding/json"
	"net/http"
	"time"
)

// statusResponse summarises every configured pool and endpoint's current
// health, the way an operator would want to see it at a glance without
// reaching for the metrics endpoint.
type statusResponse struct {
	Pools     []poolStatus     `json:"pools"`
	Endpoints []endpointStatus `json:"endpoints"`
	Uptime    string           `json:"uptime"`
}

type poolStatus struct {
	ID                 string  `json:"id"`
	Status             string  `json:"status"`
	Score              float64 `json:"score"`
	AvailableEndpoints int     `json:"availableEndpoints"`
	TotalEndpoints     int     `json:"totalEndpoints"`
	AvgLatencyMs       int64   `json:"avgLatencyMs"`
	ErrorRatePct       float64 `json:"errorRatePct"`
}

type endpointStatus struct {
	ID                  string `json:"id"`
	ProviderKind        string `json:"providerKind"`
	Available           bool   `json:"available"`
	BreakerState        string `json:"breakerState"`
	ConsecutiveFailures int    `json:"consecutiveFailures"`
	TotalRequests       int64  `json:"totalRequests"`
	ErrorRate           float64 `json:"errorRate"`
}

// statusHandler reports the dispatch engine's live view of every pool and
// endpoint, sourced from the Pool Manager's cached score and the Health
// Manager's per-endpoint snapshot.
func (a *Application) statusHandler(w http.ResponseWriter, r *http.Request) {
	cfg := a.getConfig()

	pools := make([]poolStatus, 0, len(cfg.Pools))
	for _, p := range cfg.Pools {
		h, err := a.pools.Health(p.ID)
		if err != nil {
			continue
		}
		pools = append(pools, poolStatus{
			ID:                 p.ID,
			Status:             string(h.Status),
			Score:              h.Score,
			AvailableEndpoints: h.AvailableEndpoints,
			TotalEndpoints:     h.TotalEndpoints,
			AvgLatencyMs:       h.AvgLatency.Milliseconds(),
			ErrorRatePct:       h.ErrorRatePct,
		})
	}

	endpoints := make([]endpointStatus, 0, len(cfg.Endpoints))
	for _, e := range cfg.Endpoints {
		snap, found := a.health.Snapshot(e.ID)
		if !found {
			continue
		}
		endpoints = append(endpoints, endpointStatus{
			ID:                  e.ID,
			ProviderKind:        e.ProviderKind,
			Available:           snap.Available,
			BreakerState:        string(snap.Breaker.State),
			ConsecutiveFailures: snap.Breaker.ConsecutiveFailures,
			TotalRequests:       snap.Metrics.TotalRequests,
			ErrorRate:           snap.Metrics.ErrorRate,
		})
	}

	w.Header().Set(ContentTypeHeader, ContentTypeJSON)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(statusResponse{
		Pools:     pools,
		Endpoints: endpoints,
		Uptime:    time.Since(a.StartTime).String(),
	})
}
