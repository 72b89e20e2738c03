package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/thushan/dispatch/internal/core/constants"
	"github.com/thushan/dispatch/internal/core/domain"
	"github.com/thushan/dispatch/internal/core/ports"
	"github.com/thushan/dispatch/internal/logger"
)

// openAICompatAdapter serves every snake_case-native dialect (openai,
// together, runpod, custom): they all speak the same
// /v1/chat/completions shape over a Bearer token, differing only in
// APIBase and model catalogue.
type openAICompatAdapter struct {
	kind         domain.ProviderKind
	client       *http.Client
	healthClient *http.Client
	translators  ports.TranslatorRegistry
	log          *logger.StyledLogger
}

func newOpenAICompatAdapter(kind domain.ProviderKind, client, healthClient *http.Client, translators ports.TranslatorRegistry, log *logger.StyledLogger) *openAICompatAdapter {
	return &openAICompatAdapter{kind: kind, client: client, healthClient: healthClient, translators: translators, log: log}
}

func (a *openAICompatAdapter) Kind() domain.ProviderKind { return a.kind }

func (a *openAICompatAdapter) Capabilities() domain.Capabilities {
	return domain.Capabilities{
		Chat: true, Completion: true, Streaming: true,
		JSONMode: true, FunctionCalling: true, Embeddings: true,
	}
}

func (a *openAICompatAdapter) Send(ctx context.Context, endpoint domain.EndpointConfig, cred *domain.Credential, req domain.NormalisedRequest) (*ports.ProviderResponse, error) {
	translator := translatorFor(a.translators, a.kind, a.log)
	if translator == nil {
		return nil, fmt.Errorf("no translator registered for %s", a.kind)
	}
	wire, err := translator.Translate(req)
	if err != nil {
		return nil, fmt.Errorf("translating request for %s: %w", a.kind, err)
	}
	if endpoint.UpstreamModelName != "" {
		wire["model"] = endpoint.UpstreamModelName
	}

	body, err := marshalBody(func(w io.Writer) error {
		return json.NewEncoder(w).Encode(wire)
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}

	url := endpoint.APIBase + constants.PathV1ChatCompletions
	httpReq, err := newHTTPRequest(ctx, http.MethodPost, url, body, cred, nil)
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

func (a *openAICompatAdapter) Probe(ctx context.Context, endpoint domain.EndpointConfig, cred *domain.Credential) domain.Outcome {
	return probeRequest(ctx, a.healthClient, endpoint, cred)
}

func (a *openAICompatAdapter) ClassifyError(err error, statusCode int) domain.ErrorKind {
	if statusCode > 0 {
		return classifyHTTPStatus(statusCode)
	}
	return domain.KindTransient
}
