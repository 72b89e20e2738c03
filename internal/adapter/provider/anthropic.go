package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/thushan/dispatch/internal/core/domain"
	"github.com/thushan/dispatch/internal/core/ports"
	"github.com/thushan/dispatch/internal/logger"
)

// anthropicAPIVersion is the Messages API version header value Anthropic
// requires on every request.
const anthropicAPIVersion = "2023-06-01"

const anthropicMessagesPath = "/v1/messages"

// anthropicAdapter calls Anthropic's Messages API directly (as opposed to
// bedrockAdapter, which calls the same model family through Bedrock
// runtime's InvokeModel envelope).
type anthropicAdapter struct {
	client       *http.Client
	healthClient *http.Client
	translators  ports.TranslatorRegistry
	log          *logger.StyledLogger
}

func newAnthropicAdapter(client, healthClient *http.Client, translators ports.TranslatorRegistry, log *logger.StyledLogger) *anthropicAdapter {
	return &anthropicAdapter{client: client, healthClient: healthClient, translators: translators, log: log}
}

func (a *anthropicAdapter) Kind() domain.ProviderKind { return domain.ProviderAnthropic }

func (a *anthropicAdapter) Capabilities() domain.Capabilities {
	return domain.Capabilities{Chat: true, Streaming: true, FunctionCalling: true, Vision: true}
}

func (a *anthropicAdapter) Send(ctx context.Context, endpoint domain.EndpointConfig, cred *domain.Credential, req domain.NormalisedRequest) (*ports.ProviderResponse, error) {
	translator := translatorFor(a.translators, domain.ProviderAnthropic, a.log)
	if translator == nil {
		return nil, fmt.Errorf("no translator registered for %s", domain.ProviderAnthropic)
	}
	wire, err := translator.Translate(req)
	if err != nil {
		return nil, fmt.Errorf("translating request for anthropic: %w", err)
	}
	if endpoint.UpstreamModelName != "" {
		wire["model"] = endpoint.UpstreamModelName
	} else {
		wire["model"] = req.Model
	}

	body, err := marshalBody(func(w io.Writer) error {
		return json.NewEncoder(w).Encode(wire)
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}

	// Anthropic authenticates via x-api-key rather than Authorization:
	// Bearer, so the generic AuthHeaders() bearer header is dropped in
	// favour of the provider-specific header here.
	var apiKey string
	if cred != nil {
		apiKey = cred.APIKey
	}
	headers := map[string]string{
		"anthropic-version": anthropicAPIVersion,
		"x-api-key":         apiKey,
	}

	httpReq, err := newHTTPRequest(ctx, http.MethodPost, endpoint.APIBase+anthropicMessagesPath, body, nil, headers)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, &domain.DispatchError{Err: err, Kind: classifyTransportError(ctx), EndpointID: endpoint.ID}
	}

	return &ports.ProviderResponse{
		Body:       resp.Body,
		Header:     resp.Header,
		StatusCode: resp.StatusCode,
		Streaming:  req.Stream,
	}, nil
}

func (a *anthropicAdapter) Probe(ctx context.Context, endpoint domain.EndpointConfig, cred *domain.Credential) domain.Outcome {
	return probeRequest(ctx, a.healthClient, endpoint, cred)
}

func (a *anthropicAdapter) ClassifyError(err error, statusCode int) domain.ErrorKind {
	if statusCode > 0 {
		return classifyHTTPStatus(statusCode)
	}
	return domain.KindTransient
}
