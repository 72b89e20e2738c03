package ports

import (
	"context"
	"io"

	"github.com/thushan/dispatch/internal/core/domain"
)

// ProviderResponse is what a ProviderAdapter.Send call returns: either a
// fully-buffered body or a stream the caller must read and close.
type ProviderResponse struct {
	Body       io.ReadCloser
	Header     map[string][]string
	StatusCode int
	Streaming  bool
}

// ProviderAdapter translates a canonical request into one upstream's wire
// dialect, sends it, and classifies the outcome. One adapter
// instance is built per domain.ProviderKind by the adapter factory; a
// single instance serves every endpoint of that kind.
type ProviderAdapter interface {
	Kind() domain.ProviderKind
	Capabilities() domain.Capabilities

	// Send performs the HTTP call against endpoint using the resolved
	// credential, returning the raw upstream response for the caller to
	// translate back to the caller's requested dialect and stream/buffer.
	Send(ctx context.Context, endpoint domain.EndpointConfig, cred *domain.Credential, req domain.NormalisedRequest) (*ProviderResponse, error)

	// Probe performs a lightweight health check against endpoint,
	// returning the classified outcome the Health Manager folds into its
	// metrics.
	Probe(ctx context.Context, endpoint domain.EndpointConfig, cred *domain.Credential) domain.Outcome

	// ClassifyError maps a transport/HTTP-level failure into the
	// dispatch engine's ErrorKind taxonomy. statusCode is 0
	// when the failure never reached an HTTP response.
	ClassifyError(err error, statusCode int) domain.ErrorKind
}

// ProviderAdapterFactory resolves a domain.ProviderKind to its adapter
// instance.
type ProviderAdapterFactory interface {
	For(kind domain.ProviderKind) (ProviderAdapter, error)
}
