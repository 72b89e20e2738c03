package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	DefaultPort = 19841
	DefaultHost = "localhost"

	DefaultFileWriteDelay = 150 * time.Millisecond // Small delay to ensure file write is complete
)

var (
	lastReload  time.Time
	reloadMutex sync.Mutex
)

// DefaultConfig returns a configuration with sensible defaults: a single
// local OpenAI-compatible endpoint in a priority pool, wired to an "env"
// credential store so a bare checkout still boots.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RequestLimits: ServerRequestLimits{
				MaxBodySize:   10 << 20,
				MaxHeaderSize: 64 << 10,
			},
			RateLimits: ServerRateLimits{
				GlobalRequestsPerMinute: 6000,
				PerIPRequestsPerMinute:  600,
				BurstSize:               50,
				HealthRequestsPerMinute: 600,
				CleanupInterval:         5 * time.Minute,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Dispatch: DispatchConfig{
			ProviderTimeoutMultiplier: 0.8,
			MinProviderTimeout:        1 * time.Second,
			MaxProviderTimeout:        120 * time.Second,
			DefaultMaxConcurrent:      50,
			MinTimeoutMs:              1000,
			MaxTimeoutMs:              300000,
		},
		Credentials: []CredentialStoreConfig{
			{
				ID:     "local-env",
				Type:   "simple",
				Source: "env",
				Config: CredentialStoreParams{APIKeyVar: "DISPATCH_LOCAL_API_KEY"},
			},
		},
		Endpoints: []EndpointConfig{
			{
				ID:                "local-openai-compat",
				ProviderKind:      "openai",
				CredentialRef:     "local-env",
				APIBase:           "http://localhost:11434/v1",
				Priority:          1,
				Weight:            1,
				Timeout:           120 * time.Second,
				MaxRetries:        3,
				RetryDelay:        500 * time.Millisecond,
				CircuitBreaker:    DefaultCircuitBreakerConfig(),
				HealthCheck:       HealthCheckConfig{Interval: 30 * time.Second, Timeout: 5 * time.Second},
			},
		},
		Pools: []PoolConfig{
			{
				ID:              "default",
				SelectionPolicy: "priority",
				EndpointIDs:     []string{"local-openai-compat"},
				HealthThresholds: HealthThresholdsConfig{
					MinHealthyEndpoints: 1,
					ResponseTimeMs:      2000,
					ErrorRatePct:        10,
				},
			},
		},
		Models: []ModelConfig{
			{Name: "default", PrimaryPoolID: "default"},
		},
	}
}

// DefaultCircuitBreakerConfig mirrors domain.DefaultCircuitBreakerConfig so
// a config document that omits circuitBreaker still gets sane defaults.
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

// Reload re-unmarshals the already-loaded viper state into a fresh Config,
// for use from an OnConfigChange callback registered by Load.
func Reload() (*Config, error) {
	cfg := DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode reloaded config: %w", err)
	}
	return cfg, nil
}

// Load loads configuration from file and environment variables, under the
// DISPATCH_ prefix, watching the file for changes when onConfigChange is set.
func Load(onConfigChange func()) (*Config, error) {
	config := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("DISPATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Try to read config file
	if err := viper.ReadInConfig(); err != nil {
		// It's okay if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, check if we have DISPATCH_CONFIG_FILE env var
		if configFile := os.Getenv("DISPATCH_CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	viper.WatchConfig()

	if onConfigChange != nil {
		viper.OnConfigChange(func(e fsnotify.Event) {
			reloadMutex.Lock()
			defer reloadMutex.Unlock()

			// lame debounce to avoid rapid-fire reloads
			now := time.Now()
			if now.Sub(lastReload) < 500*time.Millisecond {
				return // Ignore miultiple rapid changes
			}
			lastReload = now

			// looks like on windows this event is triggered
			// before the file is fully written, not sure why
			time.Sleep(DefaultFileWriteDelay)
			onConfigChange()
		})
	}
	return config, nil
}
