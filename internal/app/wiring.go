package app

import (
	"fmt"
	"os"

	"github.com/thushan/dispatch/internal/adapter/credential"
	"github.com/thushan/dispatch/internal/adapter/factory"
	"github.com/thushan/dispatch/internal/adapter/health"
	"github.com/thushan/dispatch/internal/adapter/metrics"
	"github.com/thushan/dispatch/internal/adapter/poolmgr"
	"github.com/thushan/dispatch/internal/adapter/provider"
	"github.com/thushan/dispatch/internal/adapter/translator"
	"github.com/thushan/dispatch/internal/config"
	"github.com/thushan/dispatch/internal/core/domain"
	"github.com/thushan/dispatch/internal/core/ports"
	dispatchengine "github.com/thushan/dispatch/internal/dispatch"
	"github.com/thushan/dispatch/internal/logger"
	"github.com/thushan/dispatch/internal/requestctx"
	"github.com/thushan/dispatch/pkg/eventbus"
)

// buildCredentialResolver wires a credential.Resolver from the config's
// credential store declarations, returning a lookup from store id to the
// literal reference the bound CredentialStore understands.
func buildCredentialResolver(cfg *config.Config, log *logger.StyledLogger) (*credential.Resolver, map[string]string, error) {
	resolver := credential.NewResolver(log)
	resolver.RegisterStore(credential.NewSimpleStore())

	literalRefs := make(map[string]string, len(cfg.Credentials))
	awsSpecs := make(map[string]domain.Credential)

	for _, c := range cfg.Credentials {
		switch c.Type {
		case "simple":
			var literal string
			if c.Source == "file" {
				literal = "file:" + c.Config.FilePath
			} else {
				literal = "env:" + c.Config.APIKeyVar
			}
			literalRefs[c.ID] = literal
			resolver.BindRef(literal, domain.CredentialSimple)
		case "aws":
			literalRefs[c.ID] = c.ID
			spec := domain.Credential{
				Kind:               domain.CredentialAWS,
				RoleARN:            c.Config.RoleARN,
				UseInstanceProfile: c.Config.UseInstanceProfile,
				UseWebIdentity:     c.Config.UseWebIdentity,
			}
			if c.Config.RegionVar != "" {
				spec.Region = os.Getenv(c.Config.RegionVar)
			}
			if c.Config.AccessKeyIDVar != "" {
				spec.AccessKeyID = os.Getenv(c.Config.AccessKeyIDVar)
			}
			if c.Config.SecretAccessKeyVar != "" {
				spec.SecretAccessKey = os.Getenv(c.Config.SecretAccessKeyVar)
			}
			if c.Config.SessionTokenVar != "" {
				spec.SessionToken = os.Getenv(c.Config.SessionTokenVar)
			}
			awsSpecs[c.ID] = spec
			resolver.BindRef(c.ID, domain.CredentialAWS)
		default:
			return nil, nil, fmt.Errorf("credential store %q: unknown type %q", c.ID, c.Type)
		}
	}

	if len(awsSpecs) > 0 {
		resolver.RegisterStore(credential.NewAWSStore(func(ref string) (domain.Credential, error) {
			spec, ok := awsSpecs[ref]
			if !ok {
				return domain.Credential{}, fmt.Errorf("no aws credential store bound to %q", ref)
			}
			return spec, nil
		}))
	}

	return resolver, literalRefs, nil
}

// toDomainCircuitBreaker converts the on-disk breaker knobs, falling back to
// domain.DefaultCircuitBreakerConfig for any zero-valued numeric or duration
// field. Enabled is copied as given and not defaulted, so a config document
// that omits the section gets a disabled breaker.
func toDomainCircuitBreaker(c config.CircuitBreakerConfig) domain.CircuitBreakerConfig {
	def := domain.DefaultCircuitBreakerConfig()
	out := domain.CircuitBreakerConfig{
		Enabled:                  c.Enabled,
		FailureThreshold:         c.FailureThreshold,
		ResetTimeout:             c.ResetTimeout,
		MonitoringWindow:         c.MonitoringWindow,
		MinRequestsThreshold:     c.MinRequestsThreshold,
		ErrorThresholdPercentage: c.ErrorThresholdPercentage,
		TimeoutMultiplier:        c.TimeoutMultiplier,
		BaseTimeout:              c.BaseTimeout,
		MaxBackoffMultiplier:     c.MaxBackoffMultiplier,
		TripCountDecayWindow:     c.TripCountDecayWindow,
	}
	if out.FailureThreshold == 0 {
		out.FailureThreshold = def.FailureThreshold
	}
	if out.ResetTimeout == 0 {
		out.ResetTimeout = def.ResetTimeout
	}
	if out.MonitoringWindow == 0 {
		out.MonitoringWindow = def.MonitoringWindow
	}
	if out.MinRequestsThreshold == 0 {
		out.MinRequestsThreshold = def.MinRequestsThreshold
	}
	if out.ErrorThresholdPercentage == 0 {
		out.ErrorThresholdPercentage = def.ErrorThresholdPercentage
	}
	if out.TimeoutMultiplier == 0 {
		out.TimeoutMultiplier = def.TimeoutMultiplier
	}
	if out.BaseTimeout == 0 {
		out.BaseTimeout = def.BaseTimeout
	}
	if out.MaxBackoffMultiplier == 0 {
		out.MaxBackoffMultiplier = def.MaxBackoffMultiplier
	}
	if out.TripCountDecayWindow == 0 {
		out.TripCountDecayWindow = def.TripCountDecayWindow
	}
	return out
}

// buildRuntime wires the full dispatch engine from cfg: credential resolver,
// health manager, pool manager, translator registry, provider adapter
// factory, request registry and the Router itself, plus the Prometheus
// exporter consuming its event bus.
func buildRuntime(cfg *config.Config, log *logger.StyledLogger) (*runtime, error) {
	resolver, literalRefs, err := buildCredentialResolver(cfg, log)
	if err != nil {
		return nil, err
	}

	events := eventbus.New[ports.DispatchEvent]()
	healthManager := health.NewManager(events, log)
	poolManager := poolmgr.NewManager(healthManager)

	translators := translator.NewRegistry(log)
	translator.RegisterDefaults(translators)

	clients := factory.NewSharedClientFactory()
	adapters := provider.NewFactory(clients, translators, log)

	endpointIDs := make(map[string]struct{}, len(cfg.Endpoints))
	for _, e := range cfg.Endpoints {
		credRef, ok := literalRefs[e.CredentialRef]
		if !ok {
			return nil, fmt.Errorf("endpoint %q: unknown credential store %q", e.ID, e.CredentialRef)
		}

		endpoint := domain.EndpointConfig{
			ID:                    e.ID,
			ProviderKind:          domain.ProviderKind(e.ProviderKind),
			CredentialRef:         credRef,
			APIBase:               e.APIBase,
			UpstreamModelName:     e.UpstreamModelName,
			Priority:              e.Priority,
			Weight:                e.Weight,
			Timeout:               e.Timeout,
			MaxRetries:            e.MaxRetries,
			RetryDelay:            e.RetryDelay,
			ProviderParams:        e.ProviderParams,
			StreamingParams:       e.StreamingParams,
			CircuitBreaker:        toDomainCircuitBreaker(e.CircuitBreaker),
			HealthCheck:           domain.HealthCheckConfig{Interval: e.HealthCheck.Interval, Timeout: e.HealthCheck.Timeout},
			MaxConcurrentRequests: e.MaxConcurrentRequests,
		}
		if _, err := adapters.For(endpoint.ProviderKind); err != nil {
			return nil, fmt.Errorf("endpoint %q: %w", e.ID, err)
		}

		poolManager.SetEndpoint(endpoint)
		healthManager.Register(endpoint)
		endpointIDs[e.ID] = struct{}{}
	}

	for _, p := range cfg.Pools {
		thresholds := domain.HealthThresholds{
			MinHealthyEndpoints: p.HealthThresholds.MinHealthyEndpoints,
			ResponseTimeMs:      p.HealthThresholds.ResponseTimeMs,
			ErrorRatePct:        p.HealthThresholds.ErrorRatePct,
		}
		if thresholds.MinHealthyEndpoints == 0 {
			thresholds = domain.DefaultHealthThresholds()
		}
		for _, id := range p.EndpointIDs {
			if _, ok := endpointIDs[id]; !ok {
				return nil, fmt.Errorf("pool %q: unknown endpoint %q", p.ID, id)
			}
		}
		poolManager.SetPool(domain.Pool{
			ID:               p.ID,
			SelectionPolicy:  domain.SelectionPolicy(p.SelectionPolicy),
			EndpointIDs:      p.EndpointIDs,
			FallbackPool:     p.FallbackPool,
			HealthThresholds: thresholds,
		})
	}

	requests := requestctx.NewRegistry(log)

	opts := []dispatchengine.Option{
		dispatchengine.WithProviderTimeoutMultiplier(cfg.Dispatch.ProviderTimeoutMultiplier),
		dispatchengine.WithProviderTimeoutBounds(cfg.Dispatch.MinProviderTimeout, cfg.Dispatch.MaxProviderTimeout),
		dispatchengine.WithDefaultMaxConcurrent(cfg.Dispatch.DefaultMaxConcurrent),
	}
	router := dispatchengine.NewRouter(poolManager, healthManager, resolver, adapters, events, log, opts...)

	for _, m := range cfg.Models {
		poolIDs := append([]string{m.PrimaryPoolID}, m.FallbackPoolIDs...)
		router.SetModelRoute(domain.ModelRoute{Model: m.Name, PoolIDs: poolIDs})
	}

	exporter := metrics.NewExporter()

	return &runtime{
		resolver:    resolver,
		health:      healthManager,
		pools:       poolManager,
		translators: translators,
		adapters:    adapters,
		requests:    requests,
		router:      router,
		events:      events,
		exporter:    exporter,
	}, nil
}

// runtime bundles every component New wires up, so Application can hold a
// single field and Stop can tear them down in one place.
type runtime struct {
	resolver    *credential.Resolver
	health      *health.Manager
	pools       *poolmgr.Manager
	translators *translator.Registry
	adapters    *provider.Factory
	requests    *requestctx.Registry
	router      *dispatchengine.Router
	events      *eventbus.EventBus[ports.DispatchEvent]
	exporter    *metrics.Exporter
}
