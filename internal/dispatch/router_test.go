package dispatchengine

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/thushan/dispatch/internal/core/domain"
	"github.com/thushan/dispatch/internal/core/ports"
	"github.com/thushan/dispatch/internal/logger"
	"github.com/thushan/dispatch/pkg/eventbus"
	"github.com/thushan/dispatch/theme"
)

func testRouterLogger() *logger.StyledLogger {
	log, _, _ := logger.New(&logger.Config{Level: "error", Theme: "default"})
	return logger.NewStyledLogger(log, theme.Default())
}

// fakePoolManager returns a fixed endpoint list per pool, skipping anything
// in exclude, mimicking ports.PoolManager.Select without a full Manager.
type fakePoolManager struct {
	endpoints map[string][]domain.EndpointConfig
}

func (f *fakePoolManager) Select(poolID string, exclude map[string]struct{}) ([]domain.EndpointConfig, error) {
	var out []domain.EndpointConfig
	for _, ep := range f.endpoints[poolID] {
		if _, skip := exclude[ep.ID]; skip {
			continue
		}
		out = append(out, ep)
	}
	return out, nil
}

func (f *fakePoolManager) Health(poolID string) (domain.PoolHealth, error) {
	return domain.PoolHealth{PoolID: poolID, Status: domain.PoolHealthy}, nil
}

func (f *fakePoolManager) Pool(poolID string) (domain.Pool, bool) {
	return domain.Pool{ID: poolID}, true
}

// fakeHealthManager treats every endpoint as available unless explicitly
// marked down.
type fakeHealthManager struct {
	down     map[string]bool
	recorded []domain.Outcome
}

func (f *fakeHealthManager) RecordOutcome(endpointID string, outcome domain.Outcome) {
	f.recorded = append(f.recorded, outcome)
}
func (f *fakeHealthManager) Snapshot(endpointID string) (domain.EndpointHealth, bool) {
	return domain.EndpointHealth{EndpointID: endpointID}, true
}
func (f *fakeHealthManager) Available(endpointID string) bool { return !f.down[endpointID] }
func (f *fakeHealthManager) Admit(endpointID string) bool      { return !f.down[endpointID] }
func (f *fakeHealthManager) Register(cfg domain.EndpointConfig) {}
func (f *fakeHealthManager) Forget(endpointID string)           {}

// fakeCredentialResolver always succeeds unless the ref names a failing
// store.
type fakeCredentialResolver struct {
	fail map[string]bool
}

func (f *fakeCredentialResolver) Resolve(ctx context.Context, ref string) (*domain.Credential, error) {
	if f.fail[ref] {
		return nil, &domain.CredentialError{Ref: ref, Kind: domain.CredentialNotFound, Err: errors.New("no such credential")}
	}
	return &domain.Credential{Kind: domain.CredentialSimple, APIKey: "test-key"}, nil
}
func (f *fakeCredentialResolver) Prewarm(ctx context.Context, refs []string) error { return nil }
func (f *fakeCredentialResolver) Invalidate(ref string)                           {}

// fakeAdapter returns a scripted response/error per endpoint ID.
type fakeAdapter struct {
	responses map[string]*ports.ProviderResponse
	errs      map[string]error
	failUntil map[string]int // endpoint ID -> number of calls that should fail before succeeding
	calls     int
}

func (f *fakeAdapter) Kind() domain.ProviderKind        { return domain.ProviderOpenAI }
func (f *fakeAdapter) Capabilities() domain.Capabilities { return domain.Capabilities{Chat: true} }

func (f *fakeAdapter) Send(ctx context.Context, endpoint domain.EndpointConfig, cred *domain.Credential, req domain.NormalisedRequest) (*ports.ProviderResponse, error) {
	f.calls++
	if failsLeft, ok := f.failUntil[endpoint.ID]; ok && f.calls <= failsLeft {
		return nil, errors.New("connection reset")
	}
	if err, ok := f.errs[endpoint.ID]; ok {
		return nil, err
	}
	if resp, ok := f.responses[endpoint.ID]; ok {
		return resp, nil
	}
	return &ports.ProviderResponse{Body: io.NopCloser(strings.NewReader("{}")), StatusCode: 200}, nil
}

func (f *fakeAdapter) Probe(ctx context.Context, endpoint domain.EndpointConfig, cred *domain.Credential) domain.Outcome {
	return domain.Outcome{Kind: domain.KindSuccess}
}

func (f *fakeAdapter) ClassifyError(err error, statusCode int) domain.ErrorKind {
	if statusCode == 429 {
		return domain.KindRateLimited
	}
	return domain.KindTransient
}

type fakeAdapterFactory struct {
	adapter *fakeAdapter
}

func (f *fakeAdapterFactory) For(kind domain.ProviderKind) (ports.ProviderAdapter, error) {
	return f.adapter, nil
}

func newTestRequestContext(timeout time.Duration) *domain.RequestContext {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	now := time.Now()
	return &domain.RequestContext{
		Context: ctx, Cancel: cancel, ID: "req-1",
		StartedAt: now, Deadline: now.Add(timeout),
	}
}

func TestRouter_DispatchSucceedsOnFirstEndpoint(t *testing.T) {
	ep := domain.EndpointConfig{ID: "ep-1", ProviderKind: domain.ProviderOpenAI, CredentialRef: "cred-1", Timeout: 5 * time.Second}
	pools := &fakePoolManager{endpoints: map[string][]domain.EndpointConfig{"pool-1": {ep}}}
	health := &fakeHealthManager{down: map[string]bool{}}
	creds := &fakeCredentialResolver{}
	adapters := &fakeAdapterFactory{adapter: &fakeAdapter{responses: map[string]*ports.ProviderResponse{}}}

	router := NewRouter(pools, health, creds, adapters, eventbus.New[ports.DispatchEvent](), testRouterLogger())
	defer router.Stop()
	router.SetModelRoute(domain.ModelRoute{Model: "gpt-test", PoolIDs: []string{"pool-1"}})

	rc := newTestRequestContext(5 * time.Second)
	defer rc.Cancel()

	result, err := router.Dispatch(rc.Context, rc, domain.NormalisedRequest{Model: "gpt-test"})
	if err != nil {
		t.Fatalf("expected successful dispatch, got error: %v", err)
	}
	if result.EndpointID != "ep-1" {
		t.Errorf("expected dispatch to endpoint ep-1, got %s", result.EndpointID)
	}
	if result.UsedFallback {
		t.Error("did not expect fallback on a clean first attempt")
	}
}

func TestRouter_FallsBackToSecondEndpointOnFailure(t *testing.T) {
	ep1 := domain.EndpointConfig{ID: "ep-1", ProviderKind: domain.ProviderOpenAI, CredentialRef: "cred-1", Timeout: 5 * time.Second}
	ep2 := domain.EndpointConfig{ID: "ep-2", ProviderKind: domain.ProviderOpenAI, CredentialRef: "cred-1", Timeout: 5 * time.Second}
	pools := &fakePoolManager{endpoints: map[string][]domain.EndpointConfig{"pool-1": {ep1, ep2}}}
	health := &fakeHealthManager{down: map[string]bool{}}
	creds := &fakeCredentialResolver{}
	adapters := &fakeAdapterFactory{adapter: &fakeAdapter{
		errs: map[string]error{"ep-1": errors.New("connection refused")},
	}}

	router := NewRouter(pools, health, creds, adapters, eventbus.New[ports.DispatchEvent](), testRouterLogger())
	defer router.Stop()
	router.SetModelRoute(domain.ModelRoute{Model: "gpt-test", PoolIDs: []string{"pool-1"}})

	rc := newTestRequestContext(5 * time.Second)
	defer rc.Cancel()

	result, err := router.Dispatch(rc.Context, rc, domain.NormalisedRequest{Model: "gpt-test"})
	if err != nil {
		t.Fatalf("expected dispatch to succeed via fallback, got error: %v", err)
	}
	if result.EndpointID != "ep-2" {
		t.Errorf("expected fallback to endpoint ep-2, got %s", result.EndpointID)
	}
	if !result.UsedFallback {
		t.Error("expected UsedFallback to be true after ep-1 failed")
	}
	if len(result.Attempts) != 1 {
		t.Errorf("expected 1 recorded failed attempt, got %d", len(result.Attempts))
	}
}

func TestRouter_UnknownModelReturnsModelUnknown(t *testing.T) {
	pools := &fakePoolManager{endpoints: map[string][]domain.EndpointConfig{}}
	health := &fakeHealthManager{}
	creds := &fakeCredentialResolver{}
	adapters := &fakeAdapterFactory{adapter: &fakeAdapter{}}

	router := NewRouter(pools, health, creds, adapters, eventbus.New[ports.DispatchEvent](), testRouterLogger())
	defer router.Stop()

	rc := newTestRequestContext(5 * time.Second)
	defer rc.Cancel()

	_, err := router.Dispatch(rc.Context, rc, domain.NormalisedRequest{Model: "does-not-exist"})
	if err == nil {
		t.Fatal("expected an error for an unrouted model")
	}
	var dispatchErr *domain.DispatchError
	if !errors.As(err, &dispatchErr) || dispatchErr.Kind != domain.KindModelUnknown {
		t.Errorf("expected KindModelUnknown, got %v", err)
	}
}

func TestRouter_AllEndpointsDownReturnsAllEndpointsExhausted(t *testing.T) {
	ep := domain.EndpointConfig{ID: "ep-1", ProviderKind: domain.ProviderOpenAI, CredentialRef: "cred-1", Timeout: 5 * time.Second}
	pools := &fakePoolManager{endpoints: map[string][]domain.EndpointConfig{"pool-1": {ep}}}
	health := &fakeHealthManager{down: map[string]bool{"ep-1": true}}
	creds := &fakeCredentialResolver{}
	adapters := &fakeAdapterFactory{adapter: &fakeAdapter{}}

	router := NewRouter(pools, health, creds, adapters, eventbus.New[ports.DispatchEvent](), testRouterLogger())
	defer router.Stop()
	router.SetModelRoute(domain.ModelRoute{Model: "gpt-test", PoolIDs: []string{"pool-1"}})

	rc := newTestRequestContext(5 * time.Second)
	defer rc.Cancel()

	_, err := router.Dispatch(rc.Context, rc, domain.NormalisedRequest{Model: "gpt-test"})
	var dispatchErr *domain.DispatchError
	if !errors.As(err, &dispatchErr) || dispatchErr.Kind != domain.KindAllEndpointsExhausted {
		t.Errorf("expected KindAllEndpointsExhausted, got %v", err)
	}
}

func TestRouter_RetriesSameEndpointBeforeFallingBack(t *testing.T) {
	ep := domain.EndpointConfig{
		ID: "ep-1", ProviderKind: domain.ProviderOpenAI, CredentialRef: "cred-1", Timeout: 5 * time.Second,
		MaxRetries: 2, RetryDelay: time.Millisecond,
	}
	pools := &fakePoolManager{endpoints: map[string][]domain.EndpointConfig{"pool-1": {ep}}}
	health := &fakeHealthManager{down: map[string]bool{}}
	creds := &fakeCredentialResolver{}
	adapter := &fakeAdapter{failUntil: map[string]int{"ep-1": 2}}
	adapters := &fakeAdapterFactory{adapter: adapter}

	router := NewRouter(pools, health, creds, adapters, eventbus.New[ports.DispatchEvent](), testRouterLogger())
	defer router.Stop()
	router.SetModelRoute(domain.ModelRoute{Model: "gpt-test", PoolIDs: []string{"pool-1"}})

	rc := newTestRequestContext(5 * time.Second)
	defer rc.Cancel()

	result, err := router.Dispatch(rc.Context, rc, domain.NormalisedRequest{Model: "gpt-test"})
	if err != nil {
		t.Fatalf("expected the third try against the same endpoint to succeed, got error: %v", err)
	}
	if result.EndpointID != "ep-1" {
		t.Errorf("expected the retried endpoint to still be ep-1, got %s", result.EndpointID)
	}
	if result.UsedFallback {
		t.Error("did not expect UsedFallback to be set: retries stayed on the same endpoint")
	}
	if adapter.calls != 3 {
		t.Errorf("expected exactly 3 Send calls (1 initial + 2 retries), got %d", adapter.calls)
	}
}

func TestRouter_ExhaustsRetriesThenFallsBackToNextEndpoint(t *testing.T) {
	ep1 := domain.EndpointConfig{
		ID: "ep-1", ProviderKind: domain.ProviderOpenAI, CredentialRef: "cred-1", Timeout: 5 * time.Second,
		MaxRetries: 1, RetryDelay: time.Millisecond,
	}
	ep2 := domain.EndpointConfig{ID: "ep-2", ProviderKind: domain.ProviderOpenAI, CredentialRef: "cred-1", Timeout: 5 * time.Second}
	pools := &fakePoolManager{endpoints: map[string][]domain.EndpointConfig{"pool-1": {ep1, ep2}}}
	health := &fakeHealthManager{down: map[string]bool{}}
	creds := &fakeCredentialResolver{}
	adapter := &fakeAdapter{failUntil: map[string]int{"ep-1": 10}}
	adapters := &fakeAdapterFactory{adapter: adapter}

	router := NewRouter(pools, health, creds, adapters, eventbus.New[ports.DispatchEvent](), testRouterLogger())
	defer router.Stop()
	router.SetModelRoute(domain.ModelRoute{Model: "gpt-test", PoolIDs: []string{"pool-1"}})

	rc := newTestRequestContext(5 * time.Second)
	defer rc.Cancel()

	result, err := router.Dispatch(rc.Context, rc, domain.NormalisedRequest{Model: "gpt-test"})
	if err != nil {
		t.Fatalf("expected fallback to ep-2 after ep-1 exhausts its retries, got error: %v", err)
	}
	if result.EndpointID != "ep-2" {
		t.Errorf("expected fallback to endpoint ep-2, got %s", result.EndpointID)
	}
	if len(result.Attempts) != 1 {
		t.Errorf("expected exactly 1 recorded failed attempt for ep-1 (retries collapse into one outcome), got %d", len(result.Attempts))
	}
}

func TestRouter_CredentialFailureFallsBackToNextEndpoint(t *testing.T) {
	ep1 := domain.EndpointConfig{ID: "ep-1", ProviderKind: domain.ProviderOpenAI, CredentialRef: "bad-cred", Timeout: 5 * time.Second}
	ep2 := domain.EndpointConfig{ID: "ep-2", ProviderKind: domain.ProviderOpenAI, CredentialRef: "cred-1", Timeout: 5 * time.Second}
	pools := &fakePoolManager{endpoints: map[string][]domain.EndpointConfig{"pool-1": {ep1, ep2}}}
	health := &fakeHealthManager{down: map[string]bool{}}
	creds := &fakeCredentialResolver{fail: map[string]bool{"bad-cred": true}}
	adapters := &fakeAdapterFactory{adapter: &fakeAdapter{}}

	router := NewRouter(pools, health, creds, adapters, eventbus.New[ports.DispatchEvent](), testRouterLogger())
	defer router.Stop()
	router.SetModelRoute(domain.ModelRoute{Model: "gpt-test", PoolIDs: []string{"pool-1"}})

	rc := newTestRequestContext(5 * time.Second)
	defer rc.Cancel()

	result, err := router.Dispatch(rc.Context, rc, domain.NormalisedRequest{Model: "gpt-test"})
	if err != nil {
		t.Fatalf("expected fallback past the credential failure, got error: %v", err)
	}
	if result.EndpointID != "ep-2" {
		t.Errorf("expected fallback to endpoint ep-2, got %s", result.EndpointID)
	}
}

func TestRouter_RecordsOutcomeOnSuccess(t *testing.T) {
	ep := domain.EndpointConfig{ID: "ep-1", ProviderKind: domain.ProviderOpenAI, CredentialRef: "cred-1", Timeout: 5 * time.Second}
	pools := &fakePoolManager{endpoints: map[string][]domain.EndpointConfig{"pool-1": {ep}}}
	health := &fakeHealthManager{down: map[string]bool{}}
	creds := &fakeCredentialResolver{}
	adapters := &fakeAdapterFactory{adapter: &fakeAdapter{}}

	router := NewRouter(pools, health, creds, adapters, eventbus.New[ports.DispatchEvent](), testRouterLogger())
	defer router.Stop()
	router.SetModelRoute(domain.ModelRoute{Model: "gpt-test", PoolIDs: []string{"pool-1"}})

	rc := newTestRequestContext(5 * time.Second)
	defer rc.Cancel()

	if _, err := router.Dispatch(rc.Context, rc, domain.NormalisedRequest{Model: "gpt-test"}); err != nil {
		t.Fatalf("expected successful dispatch, got error: %v", err)
	}

	if len(health.recorded) != 1 {
		t.Fatalf("expected exactly 1 outcome recorded, got %d", len(health.recorded))
	}
	if health.recorded[0].Kind != domain.KindSuccess {
		t.Errorf("expected the success path to record KindSuccess, got %s", health.recorded[0].Kind)
	}
}

func TestRouter_CredentialTimeoutMapsToKindTimeout(t *testing.T) {
	ep1 := domain.EndpointConfig{ID: "ep-1", ProviderKind: domain.ProviderOpenAI, CredentialRef: "slow-cred", Timeout: 5 * time.Second}
	ep2 := domain.EndpointConfig{ID: "ep-2", ProviderKind: domain.ProviderOpenAI, CredentialRef: "cred-1", Timeout: 5 * time.Second}
	pools := &fakePoolManager{endpoints: map[string][]domain.EndpointConfig{"pool-1": {ep1, ep2}}}
	health := &fakeHealthManager{down: map[string]bool{}}
	creds := &timeoutCredentialResolver{timeoutRef: "slow-cred"}
	adapters := &fakeAdapterFactory{adapter: &fakeAdapter{}}

	router := NewRouter(pools, health, creds, adapters, eventbus.New[ports.DispatchEvent](), testRouterLogger())
	defer router.Stop()
	router.SetModelRoute(domain.ModelRoute{Model: "gpt-test", PoolIDs: []string{"pool-1"}})

	rc := newTestRequestContext(5 * time.Second)
	defer rc.Cancel()

	result, err := router.Dispatch(rc.Context, rc, domain.NormalisedRequest{Model: "gpt-test"})
	if err != nil {
		t.Fatalf("expected fallback past the timed-out credential resolution, got error: %v", err)
	}
	if result.EndpointID != "ep-2" {
		t.Errorf("expected fallback to endpoint ep-2, got %s", result.EndpointID)
	}
	if len(health.recorded) != 2 {
		t.Fatalf("expected 2 outcomes recorded (ep-1's timeout, then ep-2's success), got %d", len(health.recorded))
	}
	if health.recorded[0].Kind != domain.KindTimeout {
		t.Errorf("expected a credential timeout to map to KindTimeout, got %s", health.recorded[0].Kind)
	}
}

// timeoutCredentialResolver fails with a CredentialTimeout kind for the
// configured ref, mimicking an already-expired deadline reaching the
// resolver, and succeeds for everything else.
type timeoutCredentialResolver struct {
	timeoutRef string
}

func (t *timeoutCredentialResolver) Resolve(ctx context.Context, ref string) (*domain.Credential, error) {
	if ref == t.timeoutRef {
		return nil, &domain.CredentialError{Ref: ref, Kind: domain.CredentialTimeout, Err: context.DeadlineExceeded}
	}
	return &domain.Credential{Kind: domain.CredentialSimple, APIKey: "test-key"}, nil
}
func (t *timeoutCredentialResolver) Prewarm(ctx context.Context, refs []string) error { return nil }
func (t *timeoutCredentialResolver) Invalidate(ref string)                           {}
