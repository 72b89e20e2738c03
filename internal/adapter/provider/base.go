// Package provider implements the ports.ProviderAdapter family: one
// adapter per domain.ProviderKind, each translating a canonical request
// into its upstream's wire dialect and sending it. The HTTP
// adapters share a pooled transport and buffer pool; the Bedrock family
// instead goes through the AWS SDK's bedrockruntime client, which signs
// requests itself.
package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/thushan/dispatch/internal/core/domain"
	"github.com/thushan/dispatch/internal/core/ports"
	"github.com/thushan/dispatch/internal/logger"
	"github.com/thushan/dispatch/pkg/pool"
)

// bufferPool is a reusable byte buffer for
// marshalling translated request bodies, avoiding an allocation per
// dispatch on the hot path.
var bufferPool = pool.NewLitePool(func() *bytes.Buffer {
	return new(bytes.Buffer)
})

// marshalBody renders wire into a pooled buffer and copies the result out,
// so the buffer can return to the pool immediately instead of living as
// long as the in-flight request.
func marshalBody(encode func(w io.Writer) error) ([]byte, error) {
	buf := bufferPool.Get()
	buf.Reset()
	defer bufferPool.Put(buf)

	if err := encode(buf); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// classifyHTTPStatus maps a completed HTTP response's status code to the
// dispatch engine's ErrorKind taxonomy, used by every HTTP
// adapter's ClassifyError.
func classifyHTTPStatus(statusCode int) domain.ErrorKind {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return domain.KindRateLimited
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return domain.KindCredentialError
	case statusCode >= 500:
		return domain.KindTransient
	case statusCode >= 400:
		return domain.KindImmediateFailure
	default:
		return domain.KindSuccess
	}
}

// classifyTransportError maps a transport-level (no HTTP response) failure,
// distinguishing context cancellation/deadline from everything else. The
// underlying err is not inspected further since http.Client already folds
// deadline/cancellation into ctx.Err() on the request's context.
func classifyTransportError(ctx context.Context) domain.ErrorKind {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return domain.KindTimeout
	case context.Canceled:
		return domain.KindCancelled
	default:
		return domain.KindTransient
	}
}

// probeRequest issues a minimal GET against endpoint's base URL to confirm
// reachability. This intentionally avoids spending a real
// chat completion on every health tick; the scheduler only needs to know
// the upstream is accepting connections and responding within budget.
func probeRequest(ctx context.Context, client *http.Client, endpoint domain.EndpointConfig, cred *domain.Credential) domain.Outcome {
	started := domain.Outcome{EndpointID: endpoint.ID}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.APIBase, nil)
	if err != nil {
		started.Kind = domain.KindTransient
		started.Err = err
		return started
	}
	if cred != nil {
		for k, v := range cred.AuthHeaders() {
			req.Header.Set(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		started.Kind = classifyTransportError(ctx)
		started.Err = err
		return started
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	started.StatusCode = resp.StatusCode
	if resp.StatusCode < 500 {
		started.Kind = domain.KindSuccess
	} else {
		started.Kind = domain.KindTransient
	}
	return started
}

func newHTTPRequest(ctx context.Context, method, url string, body []byte, cred *domain.Credential, extraHeaders map[string]string) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cred != nil {
		for k, v := range cred.AuthHeaders() {
			req.Header.Set(k, v)
		}
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}
	return req, nil
}

func translatorFor(registry ports.TranslatorRegistry, kind domain.ProviderKind, log *logger.StyledLogger) ports.ParameterTranslator {
	t, err := registry.For(kind)
	if err != nil {
		log.Warn("no translator registered for provider kind", "kind", kind, "error", err)
		return nil
	}
	return t
}
