package dispatchengine

import "time"

// Options configures a Router's timeout and concurrency behaviour, set via
// functional options so tests can override them without a config file.
type Options struct {
	// ProviderTimeoutMultiplier scales the request's remaining time down
	// to the timeout handed to the provider adapter, leaving headroom for
	// fallback to a further endpoint.
	ProviderTimeoutMultiplier float64
	MinProviderTimeout        time.Duration
	MaxProviderTimeout        time.Duration

	// DefaultMaxConcurrent is used for endpoints whose
	// domain.EndpointConfig.MaxConcurrentRequests is unset.
	DefaultMaxConcurrent int

	// MinRemainingToAttempt is the floor of ctx remaining time below which
	// the router gives up rather than attempting another pool.
	MinRemainingToAttempt time.Duration

	// SelfHealInterval is how often the in-flight counters are swept for
	// the negative-clamp/overflow-cap correction.
	SelfHealInterval time.Duration
}

// Option mutates an Options value being built up by NewRouter.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		ProviderTimeoutMultiplier: 0.8,
		MinProviderTimeout:        1 * time.Second,
		MaxProviderTimeout:        120 * time.Second,
		DefaultMaxConcurrent:      50,
		MinRemainingToAttempt:     1 * time.Second,
		SelfHealInterval:          30 * time.Second,
	}
}

func WithProviderTimeoutMultiplier(m float64) Option {
	return func(o *Options) { o.ProviderTimeoutMultiplier = m }
}

func WithProviderTimeoutBounds(min, max time.Duration) Option {
	return func(o *Options) { o.MinProviderTimeout = min; o.MaxProviderTimeout = max }
}

func WithDefaultMaxConcurrent(n int) Option {
	return func(o *Options) { o.DefaultMaxConcurrent = n }
}

func WithMinRemainingToAttempt(d time.Duration) Option {
	return func(o *Options) { o.MinRemainingToAttempt = d }
}

func WithSelfHealInterval(d time.Duration) Option {
	return func(o *Options) { o.SelfHealInterval = d }
}

// clamp bounds v to [min, max].
func clamp(v, min, max time.Duration) time.Duration {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
