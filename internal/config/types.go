package config

import "time"

// Config holds all configuration for the application: the ambient
// server/logging/rate-limit sections every front door carries, plus the
// gateway's credential stores, endpoints, pools and model routes.
type Config struct {
	Server      ServerConfig            `yaml:"server"`
	Logging     LoggingConfig           `yaml:"logging"`
	Dispatch    DispatchConfig          `yaml:"dispatch"`
	Credentials []CredentialStoreConfig `yaml:"credentials"`
	Endpoints   []EndpointConfig        `yaml:"endpoints"`
	Pools       []PoolConfig            `yaml:"pools"`
	Models      []ModelConfig           `yaml:"models"`
	Engineering EngineeringConfig       `yaml:"engineering"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string              `yaml:"host"`
	Port            int                 `yaml:"port"`
	ReadTimeout     time.Duration       `yaml:"read_timeout"`
	WriteTimeout    time.Duration       `yaml:"write_timeout"`
	ShutdownTimeout time.Duration       `yaml:"shutdown_timeout"`
	RequestLimits   ServerRequestLimits `yaml:"request_limits"`
	RateLimits      ServerRateLimits    `yaml:"rate_limits"`
	HighThroughput  bool                `yaml:"high_throughput"`
}

// ServerRequestLimits defines request size and validation limits
type ServerRequestLimits struct {
	MaxBodySize   int64 `yaml:"max_body_size"`
	MaxHeaderSize int64 `yaml:"max_header_size"`
}

// ServerRateLimits defines rate limiting configuration
type ServerRateLimits struct {
	GlobalRequestsPerMinute int           `yaml:"global_requests_per_minute"`
	PerIPRequestsPerMinute  int           `yaml:"per_ip_requests_per_minute"`
	BurstSize               int           `yaml:"burst_size"`
	HealthRequestsPerMinute int           `yaml:"health_requests_per_minute"`
	CleanupInterval         time.Duration `yaml:"cleanup_interval"`
	IPExtractionTrustProxy  bool          `yaml:"ip_extraction_trust_proxy"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DispatchConfig configures the Router's timeout/concurrency behaviour and
// the front door's per-path timeout clamp.
type DispatchConfig struct {
	ProviderTimeoutMultiplier float64       `yaml:"provider_timeout_multiplier"`
	MinProviderTimeout        time.Duration `yaml:"min_provider_timeout"`
	MaxProviderTimeout        time.Duration `yaml:"max_provider_timeout"`
	DefaultMaxConcurrent      int           `yaml:"default_max_concurrent"`
	MinTimeoutMs              int           `yaml:"min_timeout_ms"`
	MaxTimeoutMs              int           `yaml:"max_timeout_ms"`
}

// CredentialStoreConfig names one resolvable credential reference. Type
// selects simple (bearer/API key) or aws (SigV4) resolution; Source selects
// where the simple store reads its value from.
type CredentialStoreConfig struct {
	ID       string                `yaml:"id"`
	Type     string                `yaml:"type"`   // "simple" | "aws"
	Source   string                `yaml:"source"` // "env" | "file"
	Config   CredentialStoreParams `yaml:"config"`
	CacheTTL time.Duration         `yaml:"cache_ttl"`
}

// CredentialStoreParams enumerates every environment variable a credential
// store may reference, so a config document is self-describing about which
// env vars it depends on.
type CredentialStoreParams struct {
	APIKeyVar            string `yaml:"apiKeyVar"`
	FilePath             string `yaml:"filePath"`
	RegionVar            string `yaml:"regionVar"`
	AccessKeyIDVar       string `yaml:"accessKeyIdVar"`
	SecretAccessKeyVar   string `yaml:"secretAccessKeyVar"`
	SessionTokenVar      string `yaml:"sessionTokenVar"`
	UseInstanceProfile   bool   `yaml:"useInstanceProfile"`
	UseWebIdentity       bool   `yaml:"useWebIdentity"`
	WebIdentityTokenFile string `yaml:"webIdentityTokenFile"`
	RoleARN              string `yaml:"roleArn"`
}

// CircuitBreakerConfig is the on-disk shape of domain.CircuitBreakerConfig.
type CircuitBreakerConfig struct {
	Enabled                  bool          `yaml:"enabled"`
	FailureThreshold         int           `yaml:"failure_threshold"`
	ResetTimeout             time.Duration `yaml:"reset_timeout"`
	MonitoringWindow         time.Duration `yaml:"monitoring_window"`
	MinRequestsThreshold     int           `yaml:"min_requests_threshold"`
	ErrorThresholdPercentage float64       `yaml:"error_threshold_percentage"`
	TimeoutMultiplier        float64       `yaml:"timeout_multiplier"`
	BaseTimeout              time.Duration `yaml:"base_timeout"`
	MaxBackoffMultiplier     int           `yaml:"max_backoff_multiplier"`
	TripCountDecayWindow     time.Duration `yaml:"trip_count_decay_window"`
}

// HealthCheckConfig drives the Health Check Scheduler for one endpoint.
type HealthCheckConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// EndpointConfig is one upstream target: a provider kind, its credential
// reference, and the breaker/health/concurrency knobs the Health Manager and
// Router apply to it.
type EndpointConfig struct {
	ID                    string                 `yaml:"id"`
	ProviderKind          string                 `yaml:"providerKind"`
	CredentialRef         string                 `yaml:"credentialRef"`
	APIBase               string                 `yaml:"apiBase"`
	UpstreamModelName     string                 `yaml:"upstreamModelName"`
	Priority              int                    `yaml:"priority"`
	Weight                float64                `yaml:"weight"`
	Timeout               time.Duration          `yaml:"timeout"`
	MaxRetries            int                    `yaml:"maxRetries"`
	RetryDelay            time.Duration          `yaml:"retryDelay"`
	MaxConcurrentRequests int                    `yaml:"maxConcurrentRequests"`
	ProviderParams        map[string]interface{} `yaml:"providerParams"`
	StreamingParams       map[string]interface{} `yaml:"streamingParams"`
	CircuitBreaker        CircuitBreakerConfig   `yaml:"circuitBreaker"`
	HealthCheck           HealthCheckConfig      `yaml:"healthCheck"`
}

// HealthThresholdsConfig is the on-disk shape of domain.HealthThresholds.
type HealthThresholdsConfig struct {
	MinHealthyEndpoints int     `yaml:"minHealthyEndpoints"`
	ResponseTimeMs      int     `yaml:"responseTimeMs"`
	ErrorRatePct        float64 `yaml:"errorRatePct"`
}

// PoolConfig is a named, ordered group of endpoints sharing a selection
// policy, with an optional fallback pool to chain into.
type PoolConfig struct {
	ID               string                 `yaml:"id"`
	SelectionPolicy  string                 `yaml:"selectionPolicy"`
	EndpointIDs      []string               `yaml:"endpointIds"`
	FallbackPool     string                 `yaml:"fallbackPool"`
	HealthThresholds HealthThresholdsConfig `yaml:"healthThresholds"`
}

// ModelConfig maps a caller-visible model name to the pool chain that serves
// it, per the configuration contract: name, primaryPoolId, fallbackPoolIds,
// defaultParameters.
type ModelConfig struct {
	Name              string                 `yaml:"name"`
	PrimaryPoolID     string                 `yaml:"primaryPoolId"`
	FallbackPoolIDs   []string               `yaml:"fallbackPoolIds"`
	DefaultParameters map[string]interface{} `yaml:"defaultParameters"`
}

// EngineeringConfig holds development/debugging configuration
type EngineeringConfig struct {
	ShowNerdStats bool `yaml:"show_nerdstats"`
}
