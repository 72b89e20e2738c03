package ports

import (
	"context"

	"github.com/thushan/dispatch/internal/core/domain"
)

// CredentialStore resolves one kind of credential reference into a concrete
// domain.Credential. Implementations: simple (env/file) and
// AWS (key/secret, instance profile, web identity, session token).
type CredentialStore interface {
	// Resolve fetches and validates the credential named by ref. It must
	// honour ctx's deadline: a store that would block past it returns a
	// *domain.CredentialError with Kind CredentialTimeout.
	Resolve(ctx context.Context, ref string) (*domain.Credential, error)
	Kind() domain.CredentialKind
}

// CredentialResolver is the process-wide facade the Provider Adapter layer
// calls before every outbound request. It owns the TTL+bounded cache in
// front of the underlying stores.
type CredentialResolver interface {
	Resolve(ctx context.Context, ref string) (*domain.Credential, error)

	// Prewarm resolves every ref up front (e.g. at startup) so the first
	// real request for each doesn't pay a cold resolve.
	Prewarm(ctx context.Context, refs []string) error

	// Invalidate evicts a cached entry, forcing the next Resolve to go to
	// the underlying store.
	Invalidate(ref string)
}
