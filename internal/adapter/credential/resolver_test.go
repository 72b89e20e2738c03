package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thushan/dispatch/internal/core/domain"
	"github.com/thushan/dispatch/internal/logger"
	"github.com/thushan/dispatch/theme"
)

func testCredentialLogger() *logger.StyledLogger {
	log, _, _ := logger.New(&logger.Config{Level: "error", Theme: "default"})
	return logger.NewStyledLogger(log, theme.Default())
}

// countingStore counts Resolve calls so tests can assert on cache hits.
type countingStore struct {
	kind  domain.CredentialKind
	calls int
	cred  *domain.Credential
	err   error
}

func (s *countingStore) Kind() domain.CredentialKind { return s.kind }
func (s *countingStore) Resolve(ctx context.Context, ref string) (*domain.Credential, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.cred, nil
}

func TestResolver_ResolveCachesSubsequentCalls(t *testing.T) {
	store := &countingStore{kind: domain.CredentialSimple, cred: &domain.Credential{Kind: domain.CredentialSimple, APIKey: "secret"}}
	r := NewResolver(testCredentialLogger())
	defer r.Stop()
	r.RegisterStore(store)
	r.BindRef("my-ref", domain.CredentialSimple)

	for i := 0; i < 3; i++ {
		cred, err := r.Resolve(context.Background(), "my-ref")
		if err != nil {
			t.Fatalf("unexpected error on resolve %d: %v", i, err)
		}
		if cred.APIKey != "secret" {
			t.Errorf("expected cached credential, got %+v", cred)
		}
	}

	if store.calls != 1 {
		t.Errorf("expected exactly one underlying store call due to caching, got %d", store.calls)
	}
}

func TestResolver_UnboundRefReturnsNotFound(t *testing.T) {
	r := NewResolver(testCredentialLogger())
	defer r.Stop()

	_, err := r.Resolve(context.Background(), "unknown-ref")
	var credErr *domain.CredentialError
	if !errors.As(err, &credErr) || credErr.Kind != domain.CredentialNotFound {
		t.Fatalf("expected CredentialNotFound, got %v", err)
	}
}

func TestResolver_StoreErrorPropagatesAndIsNotCached(t *testing.T) {
	store := &countingStore{kind: domain.CredentialSimple, err: errors.New("store unavailable")}
	r := NewResolver(testCredentialLogger())
	defer r.Stop()
	r.RegisterStore(store)
	r.BindRef("my-ref", domain.CredentialSimple)

	if _, err := r.Resolve(context.Background(), "my-ref"); err == nil {
		t.Fatal("expected the store error to propagate")
	}
	if _, err := r.Resolve(context.Background(), "my-ref"); err == nil {
		t.Fatal("expected a second attempt to also fail (not cached)")
	}
	if store.calls != 2 {
		t.Errorf("expected the store to be called again after a failure, got %d calls", store.calls)
	}
}

func TestResolver_InvalidateForcesRefetch(t *testing.T) {
	store := &countingStore{kind: domain.CredentialSimple, cred: &domain.Credential{Kind: domain.CredentialSimple, APIKey: "secret"}}
	r := NewResolver(testCredentialLogger())
	defer r.Stop()
	r.RegisterStore(store)
	r.BindRef("my-ref", domain.CredentialSimple)

	if _, err := r.Resolve(context.Background(), "my-ref"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.Invalidate("my-ref")
	if _, err := r.Resolve(context.Background(), "my-ref"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.calls != 2 {
		t.Errorf("expected Invalidate to force a second store call, got %d", store.calls)
	}
}

func TestResolver_ExpiredCredentialIsNotServedFromCache(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	store := &countingStore{kind: domain.CredentialSimple, cred: &domain.Credential{Kind: domain.CredentialSimple, APIKey: "secret", ExpiresAt: &past}}
	r := NewResolver(testCredentialLogger())
	defer r.Stop()
	r.RegisterStore(store)
	r.BindRef("my-ref", domain.CredentialSimple)

	if _, err := r.Resolve(context.Background(), "my-ref"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Resolve(context.Background(), "my-ref"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.calls != 2 {
		t.Errorf("expected an already-expired credential to be refetched rather than cached, got %d calls", store.calls)
	}
}

func TestResolver_PrewarmResolvesEveryRef(t *testing.T) {
	store := &countingStore{kind: domain.CredentialSimple, cred: &domain.Credential{Kind: domain.CredentialSimple, APIKey: "secret"}}
	r := NewResolver(testCredentialLogger())
	defer r.Stop()
	r.RegisterStore(store)
	r.BindRef("ref-a", domain.CredentialSimple)
	r.BindRef("ref-b", domain.CredentialSimple)

	if err := r.Prewarm(context.Background(), []string{"ref-a", "ref-b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.calls != 2 {
		t.Errorf("expected prewarm to resolve both refs, got %d calls", store.calls)
	}
}

func TestResolver_PrewarmReturnsFirstError(t *testing.T) {
	r := NewResolver(testCredentialLogger())
	defer r.Stop()

	err := r.Prewarm(context.Background(), []string{"unbound-ref"})
	if err == nil {
		t.Fatal("expected prewarm to surface the resolution failure")
	}
}
