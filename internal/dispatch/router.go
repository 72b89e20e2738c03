// Package dispatchengine implements ports.Router: model-to-pool-chain
// resolution, bounded per-endpoint concurrency, the provider timeout
// clamp, and fallback across endpoints and pools.
package dispatchengine

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/thushan/dispatch/internal/core/domain"
	"github.com/thushan/dispatch/internal/core/ports"
	"github.com/thushan/dispatch/internal/logger"
	"github.com/thushan/dispatch/pkg/eventbus"
)

// Router is the process-wide ports.Router implementation.
type Router struct {
	pools       ports.PoolManager
	health      ports.HealthManager
	credentials ports.CredentialResolver
	adapters    ports.ProviderAdapterFactory
	events      *eventbus.EventBus[ports.DispatchEvent]
	log         *logger.StyledLogger

	inflight *inflightTracker
	opts     Options

	mu     sync.RWMutex
	routes map[string]domain.ModelRoute

	stop chan struct{}
}

func NewRouter(
	pools ports.PoolManager,
	health ports.HealthManager,
	credentials ports.CredentialResolver,
	adapters ports.ProviderAdapterFactory,
	events *eventbus.EventBus[ports.DispatchEvent],
	log *logger.StyledLogger,
	opts ...Option,
) *Router {
	o := defaultOptions()
	for _, apply := range opts {
		apply(&o)
	}

	r := &Router{
		pools:       pools,
		health:      health,
		credentials: credentials,
		adapters:    adapters,
		events:      events,
		log:         log,
		inflight:    newInflightTracker(log),
		opts:        o,
		routes:      make(map[string]domain.ModelRoute),
		stop:        make(chan struct{}),
	}
	go r.selfHealLoop()
	return r
}

// SetModelRoute registers (or replaces) the pool chain a model name
// resolves to. The chain is expected to already carry fallback pools
// flattened in order by the config loader.
func (r *Router) SetModelRoute(route domain.ModelRoute) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[route.Model] = route
}

func (r *Router) routeFor(model string) (domain.ModelRoute, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.routes[model]
	return route, ok
}

func (r *Router) endpointLimit(ep domain.EndpointConfig) int64 {
	if ep.MaxConcurrentRequests > 0 {
		return int64(ep.MaxConcurrentRequests)
	}
	return int64(r.opts.DefaultMaxConcurrent)
}

func (r *Router) selfHealLoop() {
	ticker := time.NewTicker(r.opts.SelfHealInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.inflight.selfHeal(func(endpointID string) int64 {
				return int64(r.opts.DefaultMaxConcurrent)
			})
		}
	}
}

func (r *Router) Stop() {
	close(r.stop)
}

// Dispatch implements ports.Router.
func (r *Router) Dispatch(ctx context.Context, rc *domain.RequestContext, req domain.NormalisedRequest) (*ports.DispatchResult, error) {
	route, ok := r.routeFor(req.Model)
	if !ok {
		return nil, &domain.DispatchError{
			Kind: domain.KindModelUnknown, RequestID: rc.ID,
			Err: errors.New("no pool route configured for model " + req.Model),
		}
	}

	r.publish(ports.EventRequestStarted, rc.ID, "", "", "", nil)

	var attempts []domain.Outcome
	tried := make(map[string]struct{})

	for _, poolID := range route.PoolIDs {
		now := time.Now()
		if rc.Remaining(now) < r.opts.MinRemainingToAttempt {
			return r.fail(rc, domain.KindTimeout, "insufficient time remaining to attempt pool "+poolID, attempts)
		}

		candidates, err := r.pools.Select(poolID, tried)
		if err != nil || len(candidates) == 0 {
			continue
		}

		for _, ep := range candidates {
			tried[ep.ID] = struct{}{}

			if rc.Context.Err() != nil {
				return r.fail(rc, domain.KindCancelled, "request cancelled", attempts)
			}
			if !r.health.Available(ep.ID) {
				continue
			}

			limit := r.endpointLimit(ep)
			if !r.inflight.tryAcquire(ep.ID, limit) {
				continue
			}

			if !r.health.Admit(ep.ID) {
				r.inflight.release(ep.ID)
				continue
			}

			result, outcome := r.attemptWithRetry(rc, ep, poolID, req, limit)
			r.health.RecordOutcome(ep.ID, outcome)
			if result != nil {
				result.Attempts = attempts
				result.UsedFallback = len(attempts) > 0
				r.publish(ports.EventRequestSucceeded, rc.ID, ep.ID, poolID, "", &outcome)
				return result, nil
			}

			attempts = append(attempts, outcome)
			r.publish(ports.EventRequestFailed, rc.ID, ep.ID, poolID, string(outcome.Kind), &outcome)
		}
	}

	return r.fail(rc, domain.KindAllEndpointsExhausted, "no endpoint in any pool satisfied the request", attempts)
}

// attempt resolves credentials, derives the provider timeout, and performs
// one Send call against ep. It always releases the acquired concurrency
// slot except on the success path, where release is deferred until the
// caller closes the returned response body.
func (r *Router) attempt(rc *domain.RequestContext, ep domain.EndpointConfig, poolID string, req domain.NormalisedRequest) (*ports.DispatchResult, domain.Outcome, bool) {
	now := time.Now()
	providerTimeout := clamp(
		time.Duration(float64(rc.Remaining(now))*r.opts.ProviderTimeoutMultiplier),
		r.opts.MinProviderTimeout, r.opts.MaxProviderTimeout,
	)

	if providerTimeout <= 0 {
		r.inflight.release(ep.ID)
		return nil, domain.Outcome{CompletedAt: now, Kind: domain.KindTimeout, EndpointID: ep.ID, PoolID: poolID}, true
	}

	deadline := rc.DeriveChildDeadline(providerTimeout, now)
	childCtx, cancel := context.WithDeadline(rc.Context, deadline)
	defer cancel()

	adapter, err := r.adapters.For(ep.ProviderKind)
	if err != nil {
		r.inflight.release(ep.ID)
		return nil, domain.Outcome{CompletedAt: time.Now(), Kind: domain.KindImmediateFailure, EndpointID: ep.ID, PoolID: poolID, Err: err}, true
	}

	credential, err := r.credentials.Resolve(childCtx, ep.CredentialRef)
	if err != nil {
		r.inflight.release(ep.ID)
		kind := domain.KindCredentialError
		var credErr *domain.CredentialError
		if errors.As(err, &credErr) && credErr.Kind == domain.CredentialTimeout {
			kind = domain.KindTimeout
		}
		return nil, domain.Outcome{CompletedAt: time.Now(), Kind: kind, EndpointID: ep.ID, PoolID: poolID, Err: err}, true
	}

	start := time.Now()
	resp, err := adapter.Send(childCtx, ep, credential, req)
	latency := time.Since(start)

	if err != nil {
		r.inflight.release(ep.ID)
		var dispatchErr *domain.DispatchError
		kind := domain.KindTransient
		if errors.As(err, &dispatchErr) {
			kind = dispatchErr.Kind
		} else if childCtx.Err() != nil {
			kind = classifyCtxErr(childCtx)
		}
		return nil, domain.Outcome{CompletedAt: time.Now(), Kind: kind, Latency: latency, EndpointID: ep.ID, PoolID: poolID, Err: err}, true
	}

	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		_ = resp.Body.Close()
		r.inflight.release(ep.ID)
		kind := adapter.ClassifyError(nil, resp.StatusCode)
		return nil, domain.Outcome{CompletedAt: time.Now(), Kind: kind, Latency: latency, StatusCode: resp.StatusCode, EndpointID: ep.ID, PoolID: poolID}, true
	}

	resp.Body = &releasingBody{ReadCloser: resp.Body, release: func() { r.inflight.release(ep.ID) }}
	outcome := domain.Outcome{CompletedAt: time.Now(), Kind: domain.KindSuccess, Latency: latency, StatusCode: resp.StatusCode, EndpointID: ep.ID, PoolID: poolID}

	return &ports.DispatchResult{Response: resp, EndpointID: ep.ID, PoolID: poolID}, outcome, false
}

// attemptResult bundles attempt's two return values so they can travel
// through backoff.Retry's single-value generic signature.
type attemptResult struct {
	result  *ports.DispatchResult
	outcome domain.Outcome
}

var errAttemptFailed = errors.New("dispatch attempt failed")

// attemptWithRetry retries the same endpoint up to ep.MaxRetries times,
// waiting ep.RetryDelay between tries, but only while the outcome's
// ErrorKind is Retryable -- a circuit-open or model-unknown outcome stops
// immediately rather than burning the request's remaining deadline.
func (r *Router) attemptWithRetry(rc *domain.RequestContext, ep domain.EndpointConfig, poolID string, req domain.NormalisedRequest, limit int64) (*ports.DispatchResult, domain.Outcome) {
	tries := uint(ep.MaxRetries) + 1
	first := true

	op := func() (attemptResult, error) {
		if !first {
			if !r.inflight.tryAcquire(ep.ID, limit) {
				outcome := domain.Outcome{CompletedAt: time.Now(), Kind: domain.KindTransient, EndpointID: ep.ID, PoolID: poolID, Err: errAttemptFailed}
				return attemptResult{outcome: outcome}, backoff.Permanent(errAttemptFailed)
			}
		}
		first = false

		result, outcome, released := r.attempt(rc, ep, poolID, req)
		if result != nil {
			return attemptResult{result: result, outcome: outcome}, nil
		}
		if !released {
			r.inflight.release(ep.ID)
		}

		failErr := outcome.Err
		if failErr == nil {
			failErr = errAttemptFailed
		}
		if !outcome.Kind.Retryable() {
			return attemptResult{outcome: outcome}, backoff.Permanent(failErr)
		}
		return attemptResult{outcome: outcome}, failErr
	}

	opts := []backoff.RetryOption{backoff.WithMaxTries(tries)}
	if ep.RetryDelay > 0 {
		opts = append(opts, backoff.WithBackOff(backoff.NewConstantBackOff(ep.RetryDelay)))
	}

	ar, err := backoff.Retry(rc.Context, op, opts...)
	if err == nil {
		return ar.result, ar.outcome
	}
	return nil, ar.outcome
}

func classifyCtxErr(ctx context.Context) domain.ErrorKind {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.KindTimeout
	}
	return domain.KindCancelled
}

func (r *Router) fail(rc *domain.RequestContext, kind domain.ErrorKind, msg string, attempts []domain.Outcome) (*ports.DispatchResult, error) {
	var lastErr error
	if len(attempts) > 0 {
		lastErr = attempts[len(attempts)-1].Err
	}
	err := &domain.DispatchError{Kind: kind, Message: msg, RequestID: rc.ID, Err: lastErr}
	r.publish(ports.EventRequestFailed, rc.ID, "", "", msg, nil)
	return nil, err
}

func (r *Router) publish(kind ports.DispatchEventKind, requestID, endpointID, poolID, detail string, outcome *domain.Outcome) {
	if r.events == nil {
		return
	}
	r.events.PublishAsync(ports.DispatchEvent{
		Kind: kind, RequestID: requestID, EndpointID: endpointID, PoolID: poolID,
		Detail: detail, Outcome: outcome,
	})
}

// releasingBody wraps a provider response body so the endpoint's
// concurrency slot is released exactly once, whenever the caller finishes
// reading the response -- streaming or not -- rather than when Send
// returns.
type releasingBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}
