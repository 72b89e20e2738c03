// Package app wires the dispatch engine's components into a running HTTP
// server: configuration, the request dispatch Router and everything it
// depends on, and the front door's own middleware stack.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thushan/dispatch/internal/adapter/credential"
	"github.com/thushan/dispatch/internal/adapter/health"
	"github.com/thushan/dispatch/internal/adapter/metrics"
	"github.com/thushan/dispatch/internal/adapter/poolmgr"
	"github.com/thushan/dispatch/internal/adapter/provider"
	"github.com/thushan/dispatch/internal/adapter/translator"
	"github.com/thushan/dispatch/internal/app/middleware"
	"github.com/thushan/dispatch/internal/config"
	"github.com/thushan/dispatch/internal/core/constants"
	"github.com/thushan/dispatch/internal/core/ports"
	dispatchengine "github.com/thushan/dispatch/internal/dispatch"
	"github.com/thushan/dispatch/internal/logger"
	"github.com/thushan/dispatch/internal/requestctx"
	"github.com/thushan/dispatch/pkg/eventbus"
)

// ContentTypeHeader/ContentTypeJSON are shared by every handler in this
// package; kept here since app.go is the package's entry point.
const (
	ContentTypeHeader = constants.ContentTypeHeader
	ContentTypeJSON   = constants.ContentTypeJSON
)

// Application is the process: the loaded config, the wired dispatch
// engine, and the HTTP server fronting it.
type Application struct {
	config   *config.Config
	configMu sync.RWMutex

	logger    *logger.StyledLogger
	StartTime time.Time

	resolver    *credential.Resolver
	health      *health.Manager
	pools       *poolmgr.Manager
	translators *translator.Registry
	adapters    *provider.Factory
	requests    *requestctx.Registry
	router      *dispatchengine.Router
	events      *eventbus.EventBus[ports.DispatchEvent]
	exporter    *metrics.Exporter

	sizeLimiter *RequestSizeLimiter
	rateLimiter *RateLimiter

	server *http.Server
	errCh  chan error
}

// New builds the full dispatch engine from cfg and returns an Application
// ready for Start.
func New(cfg *config.Config, log *logger.StyledLogger, startTime time.Time) (*Application, error) {
	rt, err := buildRuntime(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("wiring dispatch engine: %w", err)
	}

	a := &Application{
		config:      cfg,
		logger:      log,
		StartTime:   startTime,
		resolver:    rt.resolver,
		health:      rt.health,
		pools:       rt.pools,
		translators: rt.translators,
		adapters:    rt.adapters,
		requests:    rt.requests,
		router:      rt.router,
		events:      rt.events,
		exporter:    rt.exporter,
		sizeLimiter: NewRequestSizeLimiter(cfg.Server.RequestLimits, log),
		rateLimiter: NewRateLimiter(cfg.Server.RateLimits, log),
		errCh:       make(chan error, 1),
	}

	a.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      a.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return a, nil
}

// routes assembles the chi router: CORS and request-size limiting apply
// globally, rate limiting is split so /internal/health gets its own
// (typically larger) budget, and EnhancedLoggingMiddleware wraps everything
// so request/response logging is consistent across every route.
func (a *Application) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{constants.HeaderRequestID, constants.HeaderRequestElapsedMs, constants.HeaderRequestRemainMs},
		MaxAge:           300,
	}))
	r.Use(middleware.EnhancedLoggingMiddleware(*a.logger))
	r.Use(a.sizeLimiter.Middleware)

	r.Group(func(r chi.Router) {
		r.Use(a.rateLimiter.Middleware(false))
		r.Post(constants.PathV1ChatCompletions, a.chatCompletionsHandler)
		r.Post(constants.PathV1Completions, a.chatCompletionsHandler)
		r.Get(constants.PathStatus, a.statusHandler)
		r.Get(constants.PathVersion, a.versionHandler)
		r.Get("/internal/process", a.processStatsHandler)
		r.Get("/internal/metrics", promhttp.HandlerFor(a.exporter.Registry(), promhttp.HandlerOpts{}).ServeHTTP)
	})

	r.Group(func(r chi.Router) {
		r.Use(a.rateLimiter.Middleware(true))
		r.Get(constants.PathHealth, a.healthHandler)
	})

	return r
}

// Start runs the metrics exporter loop and the HTTP server; the server's
// ListenAndServe error (if not http.ErrServerClosed) is delivered on errCh.
func (a *Application) Start(ctx context.Context) error {
	go a.exporter.Run(ctx, a.events)

	a.logger.Info("Starting dispatch engine", "addr", a.server.Addr)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.errCh <- err
		}
	}()
	return nil
}

// Stop stops the rate limiter, request registry, credential resolver and
// router background loops, then gracefully shuts down the HTTP server. The
// metrics exporter loop started by Start ends when Start's ctx is cancelled.
func (a *Application) Stop(ctx context.Context) error {
	a.rateLimiter.Stop()
	a.requests.Stop()
	a.resolver.Stop()
	a.router.Stop()
	return a.server.Shutdown(ctx)
}

// Errors exposes the channel Start delivers a fatal listen error on.
func (a *Application) Errors() <-chan error {
	return a.errCh
}

// Reload swaps in a newly-loaded config and rebuilds the dispatch engine
// wiring from scratch, used as viper's OnConfigChange callback.
func (a *Application) Reload(cfg *config.Config) error {
	rt, err := buildRuntime(cfg, a.logger)
	if err != nil {
		return fmt.Errorf("reloading dispatch engine: %w", err)
	}

	old := struct {
		resolver *credential.Resolver
		requests *requestctx.Registry
		router   *dispatchengine.Router
	}{a.resolver, a.requests, a.router}

	a.setConfig(cfg)
	a.resolver = rt.resolver
	a.health = rt.health
	a.pools = rt.pools
	a.translators = rt.translators
	a.adapters = rt.adapters
	a.requests = rt.requests
	a.router = rt.router
	a.events = rt.events
	a.exporter = rt.exporter

	old.router.Stop()
	old.requests.Stop()
	old.resolver.Stop()

	a.logger.Info("Configuration reloaded")
	return nil
}
