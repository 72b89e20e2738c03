package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/thushan/dispatch/internal/core/domain"
	"github.com/thushan/dispatch/internal/core/ports"
	"github.com/thushan/dispatch/internal/logger"
)

// bedrockAdapter serves every ProviderKind.IsBedrockFamily() kind through
// the bedrock-runtime InvokeModel/InvokeModelWithResponseStream API.
// The wire body itself is produced per-family by the
// parameter translator registry (bedrockAnthropicTranslator,
// promptFamilyTranslator and the Titan/Nova/Cohere/AI21 translators); this
// adapter only owns the envelope: client
// construction from the resolved AWS credential, signing (handled by the
// SDK client itself, so no separate SigV4 step is needed here), and
// decoding the response/event stream.
type bedrockAdapter struct {
	family      domain.ProviderKind
	translators ports.TranslatorRegistry
	log         *logger.StyledLogger
}

func newBedrockAdapter(family domain.ProviderKind, translators ports.TranslatorRegistry, log *logger.StyledLogger) *bedrockAdapter {
	return &bedrockAdapter{family: family, translators: translators, log: log}
}

func (a *bedrockAdapter) Kind() domain.ProviderKind { return a.family }

func (a *bedrockAdapter) Capabilities() domain.Capabilities {
	caps := domain.Capabilities{Chat: true, Streaming: true}
	if a.family == domain.ProviderBedrockAnthropic {
		caps.FunctionCalling = true
		caps.Vision = true
	}
	return caps
}

func (a *bedrockAdapter) clientFor(cred *domain.Credential) (*bedrockruntime.Client, error) {
	if cred == nil || cred.Kind != domain.CredentialAWS {
		return nil, fmt.Errorf("bedrock adapter requires an aws credential, got %v", cred)
	}
	provider := credentials.NewStaticCredentialsProvider(cred.AccessKeyID, cred.SecretAccessKey, cred.SessionToken)
	cfg := awssdk.Config{Region: cred.Region, Credentials: provider}
	return bedrockruntime.NewFromConfig(cfg), nil
}

func (a *bedrockAdapter) Send(ctx context.Context, endpoint domain.EndpointConfig, cred *domain.Credential, req domain.NormalisedRequest) (*ports.ProviderResponse, error) {
	translator := translatorFor(a.translators, a.family, a.log)
	if translator == nil {
		return nil, fmt.Errorf("no translator registered for %s", a.family)
	}
	wire, err := translator.Translate(req)
	if err != nil {
		return nil, fmt.Errorf("translating request for %s: %w", a.family, err)
	}

	body, err := marshalBody(func(w io.Writer) error {
		return json.NewEncoder(w).Encode(wire)
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}

	client, err := a.clientFor(cred)
	if err != nil {
		return nil, &domain.DispatchError{Err: err, Kind: domain.KindCredentialError, EndpointID: endpoint.ID}
	}

	modelID := endpoint.UpstreamModelName
	contentType := awssdk.String("application/json")

	if req.Stream {
		out, err := client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
			ModelId:     &modelID,
			Body:        body,
			ContentType: contentType,
			Accept:      contentType,
		})
		if err != nil {
			return nil, &domain.DispatchError{Err: err, Kind: a.classifyAWSError(err), EndpointID: endpoint.ID}
		}
		return &ports.ProviderResponse{
			Body:       newEventStreamReader(out.GetStream()),
			StatusCode: 200,
			Streaming:  true,
		}, nil
	}

	out, err := client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &modelID,
		Body:        body,
		ContentType: contentType,
		Accept:      contentType,
	})
	if err != nil {
		return nil, &domain.DispatchError{Err: err, Kind: a.classifyAWSError(err), EndpointID: endpoint.ID}
	}

	return &ports.ProviderResponse{
		Body:       io.NopCloser(bytes.NewReader(out.Body)),
		StatusCode: 200,
		Streaming:  false,
	}, nil
}

func (a *bedrockAdapter) Probe(ctx context.Context, endpoint domain.EndpointConfig, cred *domain.Credential) domain.Outcome {
	outcome := domain.Outcome{EndpointID: endpoint.ID}
	client, err := a.clientFor(cred)
	if err != nil {
		outcome.Kind = domain.KindCredentialError
		outcome.Err = err
		return outcome
	}

	// A minimal InvokeModel call with an empty-ish body is enough to prove
	// the credential and network path work; a validation error back from
	// Bedrock (rather than a timeout or auth failure) still counts as
	// "reachable" for health purposes.
	probeBody, _ := json.Marshal(map[string]interface{}{"prompt": "ping", "max_tokens": 1})
	modelID := endpoint.UpstreamModelName
	contentType := awssdk.String("application/json")
	_, err = client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId: &modelID, Body: probeBody, ContentType: contentType, Accept: contentType,
	})
	if err == nil {
		outcome.Kind = domain.KindSuccess
		return outcome
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationException" {
		outcome.Kind = domain.KindSuccess
		return outcome
	}
	outcome.Kind = a.classifyAWSError(err)
	outcome.Err = err
	return outcome
}

func (a *bedrockAdapter) ClassifyError(err error, statusCode int) domain.ErrorKind {
	return a.classifyAWSError(err)
}

// classifyAWSError maps Bedrock's smithy API error codes onto the dispatch
// engine's ErrorKind taxonomy.
func (a *bedrockAdapter) classifyAWSError(err error) domain.ErrorKind {
	if err == nil {
		return domain.KindSuccess
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ServiceUnavailableException":
			return domain.KindRateLimited
		case "ModelTimeoutException":
			return domain.KindTimeout
		case "AccessDeniedException", "UnrecognizedClientException":
			return domain.KindCredentialError
		case "ValidationException", "ResourceNotFoundException", "ModelNotReadyException":
			return domain.KindImmediateFailure
		default:
			return domain.KindTransient
		}
	}
	return domain.KindTransient
}

// eventStreamReader adapts bedrock-runtime's channel-based event stream
// into an io.ReadCloser so the rest of the pipeline can treat a Bedrock
// streaming response the same as any HTTP SSE body: each payload chunk is
// framed as "data: <json>\n\n", matching the shape callers already parse
// for the HTTP-family adapters.
type eventStreamReader struct {
	stream *bedrockruntime.InvokeModelWithResponseStreamEventStream
	pr     *io.PipeReader
}

func newEventStreamReader(stream *bedrockruntime.InvokeModelWithResponseStreamEventStream) *eventStreamReader {
	pr, pw := io.Pipe()
	r := &eventStreamReader{stream: stream, pr: pr}

	go func() {
		defer pw.Close()
		for event := range stream.Events() {
			chunk, ok := event.(*brtypes.ResponseStreamMemberChunk)
			if !ok {
				continue
			}
			frame := append([]byte("data: "), chunk.Value.Bytes...)
			frame = append(frame, '\n', '\n')
			if _, err := pw.Write(frame); err != nil {
				return
			}
		}
		if err := stream.Err(); err != nil {
			pw.CloseWithError(err)
		}
	}()

	return r
}

func (r *eventStreamReader) Read(p []byte) (int, error) { return r.pr.Read(p) }

func (r *eventStreamReader) Close() error {
	_ = r.pr.Close()
	return r.stream.Close()
}
