package domain

import "time"

// ProviderKind is the closed set of upstream wire-protocol families an
// adapter can be built for. Runtime config strings are
// resolved to one of these at startup; unknown kinds fail configuration.
type ProviderKind string

const (
	ProviderOpenAI           ProviderKind = "openai"
	ProviderAnthropic        ProviderKind = "anthropic"
	ProviderBedrockAnthropic ProviderKind = "bedrock-anthropic"
	ProviderBedrockTitan     ProviderKind = "bedrock-titan"
	ProviderBedrockNova      ProviderKind = "bedrock-nova"
	ProviderBedrockLlama     ProviderKind = "bedrock-llama"
	ProviderBedrockMistral   ProviderKind = "bedrock-mistral"
	ProviderBedrockCohere    ProviderKind = "bedrock-cohere"
	ProviderBedrockAI21      ProviderKind = "bedrock-ai21"
	ProviderTogether         ProviderKind = "together"
	ProviderRunpod           ProviderKind = "runpod"
	ProviderCustom           ProviderKind = "custom"
)

// IsBedrockFamily reports whether this provider kind is invoked via the
// Bedrock runtime (common SigV4 signing + invoke/invoke-with-response-stream
// path shape).
func (p ProviderKind) IsBedrockFamily() bool {
	switch p {
	case ProviderBedrockAnthropic, ProviderBedrockTitan, ProviderBedrockNova,
		ProviderBedrockLlama, ProviderBedrockMistral, ProviderBedrockCohere, ProviderBedrockAI21:
		return true
	default:
		return false
	}
}

// IsVLLMFamily reports whether this provider kind speaks the vLLM-flavoured
// OpenAI-compatible dialect (chat_template_kwargs, enable_thinking, etc,
// wire dialect).
func (p ProviderKind) IsVLLMFamily() bool {
	switch p {
	case ProviderRunpod, ProviderTogether, ProviderCustom:
		return true
	default:
		return false
	}
}

// IsSnakeCaseNative reports whether the wire format already uses the
// canonical snake_case field names, making the parameter translator's fast
// path eligible.
func (p ProviderKind) IsSnakeCaseNative() bool {
	switch p {
	case ProviderOpenAI, ProviderTogether, ProviderRunpod, ProviderCustom:
		return true
	default:
		return false
	}
}

// Capabilities records what an adapter for this provider kind can do.
type Capabilities struct {
	Chat            bool
	Completion      bool
	Streaming       bool
	JSONMode        bool
	FunctionCalling bool
	Vision          bool
	Embeddings      bool
}

// CircuitBreakerConfig is immutable, read-only, shared across the Health
// Manager's per-endpoint breaker instances.
type CircuitBreakerConfig struct {
	Enabled                  bool
	FailureThreshold         int
	ResetTimeout             time.Duration
	MonitoringWindow         time.Duration
	MinRequestsThreshold     int
	ErrorThresholdPercentage float64

	// Escalation parameters for immediate-failure trips.
	TimeoutMultiplier    float64
	BaseTimeout          time.Duration
	MaxBackoffMultiplier int
	// TripCountDecayWindow bounds how long an elevated tripCount lingers
	// once the breaker has stopped tripping immediately.
	TripCountDecayWindow time.Duration
}

// DefaultCircuitBreakerConfig returns the recommended defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:                  true,
		FailureThreshold:         5,
		ResetTimeout:             30 * time.Second,
		MonitoringWindow:         60 * time.Second,
		MinRequestsThreshold:     10,
		ErrorThresholdPercentage: 50,
		TimeoutMultiplier:        5,
		BaseTimeout:              300 * time.Second,
		MaxBackoffMultiplier:     4,
		TripCountDecayWindow:     30 * time.Minute,
	}
}

// HealthCheckConfig drives the Health Check Scheduler.
type HealthCheckConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// EndpointConfig is an immutable record created at startup and destroyed at
// shutdown; never mutated afterwards. Mutable runtime state
// (breaker, metrics, in-flight counter) lives elsewhere, keyed by ID.
type EndpointConfig struct {
	ID                 string
	ProviderKind       ProviderKind
	CredentialRef      string
	APIBase            string
	UpstreamModelName  string
	Priority           int
	Weight             float64
	Timeout            time.Duration
	MaxRetries         int
	RetryDelay         time.Duration
	ProviderParams     map[string]interface{}
	HealthCheckParams  map[string]interface{}
	StreamingParams    map[string]interface{}
	CircuitBreaker     CircuitBreakerConfig
	HealthCheck        HealthCheckConfig

	// MaxConcurrentRequests bounds how many requests the Router will hold
	// in flight against this endpoint at once; zero means
	// DefaultMaxConcurrentRequests applies.
	MaxConcurrentRequests int
}

// DefaultMaxConcurrentRequests is the per-endpoint concurrency ceiling used
// when EndpointConfig.MaxConcurrentRequests is unset.
const DefaultMaxConcurrentRequests = 50
