package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Host != DefaultHost {
		t.Errorf("Expected host %s, got %s", DefaultHost, cfg.Server.Host)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("Expected port %d, got %d", DefaultPort, cfg.Server.Port)
	}

	if len(cfg.Credentials) != 1 {
		t.Fatalf("Expected 1 default credential store, got %d", len(cfg.Credentials))
	}
	if cfg.Credentials[0].Type != "simple" {
		t.Errorf("Expected default credential type 'simple', got %s", cfg.Credentials[0].Type)
	}

	if len(cfg.Endpoints) != 1 {
		t.Fatalf("Expected 1 default endpoint, got %d", len(cfg.Endpoints))
	}
	if cfg.Endpoints[0].ProviderKind != "openai" {
		t.Errorf("Expected default endpoint provider 'openai', got %s", cfg.Endpoints[0].ProviderKind)
	}
	if cfg.Endpoints[0].CredentialRef != cfg.Credentials[0].ID {
		t.Errorf("Expected default endpoint to reference credential store %s, got %s",
			cfg.Credentials[0].ID, cfg.Endpoints[0].CredentialRef)
	}

	if len(cfg.Pools) != 1 {
		t.Fatalf("Expected 1 default pool, got %d", len(cfg.Pools))
	}
	if cfg.Pools[0].SelectionPolicy != "priority" {
		t.Errorf("Expected default selection policy 'priority', got %s", cfg.Pools[0].SelectionPolicy)
	}

	if len(cfg.Models) != 1 || cfg.Models[0].PrimaryPoolID != cfg.Pools[0].ID {
		t.Errorf("Expected default model to route to pool %s", cfg.Pools[0].ID)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Expected log level 'info', got %s", cfg.Logging.Level)
	}

	if cfg.Engineering.ShowNerdStats != false {
		t.Error("Expected ShowNerdStats to be false by default")
	}
}

func TestDefaultConfig_DispatchDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Dispatch.ProviderTimeoutMultiplier != 0.8 {
		t.Errorf("Expected provider timeout multiplier 0.8, got %v", cfg.Dispatch.ProviderTimeoutMultiplier)
	}
	if cfg.Dispatch.MinTimeoutMs != 1000 {
		t.Errorf("Expected min timeout 1000ms, got %d", cfg.Dispatch.MinTimeoutMs)
	}
	if cfg.Dispatch.MaxTimeoutMs != 300000 {
		t.Errorf("Expected max timeout 300000ms, got %d", cfg.Dispatch.MaxTimeoutMs)
	}
}

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	cb := DefaultCircuitBreakerConfig()

	if !cb.Enabled {
		t.Error("Expected circuit breaker enabled by default")
	}
	if cb.FailureThreshold != 5 {
		t.Errorf("Expected failure threshold 5, got %d", cb.FailureThreshold)
	}
	if cb.ResetTimeout != 30*time.Second {
		t.Errorf("Expected reset timeout 30s, got %v", cb.ResetTimeout)
	}
	if cb.ErrorThresholdPercentage != 50 {
		t.Errorf("Expected error threshold 50%%, got %v", cb.ErrorThresholdPercentage)
	}
}

func TestLoadConfig_WithoutFile(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Expected default port %d, got %d", DefaultPort, cfg.Server.Port)
	}
	if cfg.Server.Host != DefaultHost {
		t.Errorf("Expected default host %s, got %s", DefaultHost, cfg.Server.Host)
	}
}

func TestLoadConfig_WithEnvironmentVariables(t *testing.T) {
	testEnvVars := map[string]string{
		"DISPATCH_SERVER_PORT":   "8080",
		"DISPATCH_SERVER_HOST":   "0.0.0.0",
		"DISPATCH_LOGGING_LEVEL": "debug",
	}

	for key, value := range testEnvVars {
		os.Setenv(key, value)
	}
	defer func() {
		for key := range testEnvVars {
			os.Unsetenv(key)
		}
	}()

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load with env vars failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080 from env var, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected host 0.0.0.0 from env var, got %s", cfg.Server.Host)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level debug from env var, got %s", cfg.Logging.Level)
	}
}

func TestConfigTypes(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.ReadTimeout.String() == "" {
		t.Error("ReadTimeout should be a valid duration")
	}
	if cfg.Server.WriteTimeout.String() == "" {
		t.Error("WriteTimeout should be a valid duration")
	}
	if cfg.Endpoints[0].Timeout.String() == "" {
		t.Error("Endpoint Timeout should be a valid duration")
	}
	if cfg.Endpoints[0].CircuitBreaker.ResetTimeout.String() == "" {
		t.Error("CircuitBreaker ResetTimeout should be a valid duration")
	}
}

func TestReload_ReflectsViperState(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	os.Setenv("DISPATCH_LOGGING_LEVEL", "warn")
	defer os.Unsetenv("DISPATCH_LOGGING_LEVEL")

	reloaded, err := Reload()
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if reloaded.Logging.Level != "warn" {
		t.Errorf("Expected reloaded log level 'warn', got %s", reloaded.Logging.Level)
	}
	if cfg.Server.Port != reloaded.Server.Port {
		t.Errorf("Expected unrelated fields to stay stable across reload")
	}
}
