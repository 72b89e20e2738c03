package health

import "time"

const (
	DefaultProbeTimeout   = 5 * time.Second
	SlowResponseThreshold = 10 * time.Second

	DefaultWorkerCount = 10
	DefaultQueueSize   = 100

	CleanupInterval      = 5 * time.Minute
	StaleEntryRetention  = 24 * time.Hour
	MaxTrackedEndpoints  = 500
	KeepAfterEvictionCap = 250

	// HealthMetricsAlpha is the EWMA smoothing factor applied to latency
	// observations. The error rate is a plain cumulative ratio, not smoothed.
	HealthMetricsAlpha = 0.2
)
