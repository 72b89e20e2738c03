package app

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/thushan/dispatch/internal/core/constants"
	"github.com/thushan/dispatch/internal/core/domain"
	"github.com/thushan/dispatch/internal/util"
)

// chatCompletionRequest is the wire shape this front door accepts: the
// OpenAI chat-completions body plus whatever extended sampling fields the
// caller sent. JSON fields outside this struct are dropped on decode; they
// are not carried through ProviderOverrides - the front door only lifts
// the fields the Parameter Translator understands.
type chatCompletionRequest struct {
	Model              string             `json:"model"`
	Messages           []canonicalMessage `json:"messages"`
	Stream             bool               `json:"stream"`
	Temperature        *float64           `json:"temperature"`
	TopP               *float64           `json:"top_p"`
	TopK               *int               `json:"top_k"`
	MaxTokens          *int               `json:"max_tokens"`
	Stop               []string           `json:"stop"`
	PresencePenalty    *float64           `json:"presence_penalty"`
	FrequencyPenalty   *float64           `json:"frequency_penalty"`
	Tools              []interface{}      `json:"tools"`
	ToolChoice         interface{}        `json:"tool_choice"`
	ResponseFormat     interface{}        `json:"response_format"`
	User               string             `json:"user"`
	Seed               *int               `json:"seed"`
	N                  *int               `json:"n"`
	MinP               *float64           `json:"min_p"`
	RepetitionPenalty  *float64           `json:"repetition_penalty"`
	LengthPenalty      *float64           `json:"length_penalty"`
	IgnoreEOS          *bool              `json:"ignore_eos"`
	BestOf             *int               `json:"best_of"`
	Echo               *bool              `json:"echo"`
	Logprobs           *bool              `json:"logprobs"`
	LogitBias          map[string]float64 `json:"logit_bias"`
	IncludeStopStrInOutput *bool          `json:"include_stop_str_in_output"`
	EnableThinking     *bool              `json:"enable_thinking"`
}

type canonicalMessage struct {
	Role       string      `json:"role"`
	Content    interface{} `json:"content"`
	Name       string      `json:"name,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
}

// toDomain lifts the wire body into the canonical NormalisedRequest the
// Router and Parameter Translator operate on.
func (c chatCompletionRequest) toDomain() domain.NormalisedRequest {
	messages := make([]domain.CanonicalMessage, 0, len(c.Messages))
	for _, m := range c.Messages {
		messages = append(messages, domain.CanonicalMessage{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		})
	}
	return domain.NormalisedRequest{
		Model:                  c.Model,
		Messages:               messages,
		Stream:                 c.Stream,
		Temperature:            c.Temperature,
		TopP:                   c.TopP,
		TopK:                   c.TopK,
		MaxTokens:              c.MaxTokens,
		Stop:                   c.Stop,
		PresencePenalty:        c.PresencePenalty,
		FrequencyPenalty:       c.FrequencyPenalty,
		Tools:                  c.Tools,
		ToolChoice:             c.ToolChoice,
		ResponseFormat:         c.ResponseFormat,
		User:                   c.User,
		Seed:                   c.Seed,
		N:                      c.N,
		MinP:                   c.MinP,
		RepetitionPenalty:      c.RepetitionPenalty,
		LengthPenalty:          c.LengthPenalty,
		IgnoreEOS:              c.IgnoreEOS,
		BestOf:                 c.BestOf,
		Echo:                   c.Echo,
		Logprobs:               c.Logprobs,
		LogitBias:              c.LogitBias,
		IncludeStopStrInOutput: c.IncludeStopStrInOutput,
		EnableThinking:         c.EnableThinking,
	}
}

// errorResponse is the stable {error:{...}} body shape every dispatch
// failure maps to, timeout included.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string         `json:"message"`
	Type    string         `json:"type"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// chatCompletionsHandler is the dispatch engine's front door: it normalises
// the inbound body, derives a bounded RequestContext honouring
// X-Request-Timeout-Ms, calls the Router, and relays the upstream response
// (buffered or streamed) with the elapsed/remaining headers attached.
func (a *Application) chatCompletionsHandler(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(constants.HeaderRequestID)
	if requestID == "" {
		requestID = util.GenerateRequestID()
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		a.writeError(w, requestID, http.StatusBadRequest, "invalid_request_error", "bad_request", "failed to read request body", 0, 0)
		return
	}

	var req chatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		a.writeError(w, requestID, http.StatusBadRequest, "invalid_request_error", "bad_request", "malformed JSON body", 0, 0)
		return
	}
	if req.Model == "" {
		a.writeError(w, requestID, http.StatusBadRequest, "invalid_request_error", "model_unknown", "model is required", 0, 0)
		return
	}

	timeout := a.timeoutForPath(r.URL.Path)
	if override := r.Header.Get(constants.HeaderRequestTimeoutMs); override != "" {
		if ms, err := strconv.Atoi(override); err == nil {
			timeout = a.clampTimeout(time.Duration(ms) * time.Millisecond)
		}
	}

	rc := a.requests.New(r.Context(), requestID, timeout)
	defer a.requests.Release(rc.ID)
	defer rc.Cancel()

	result, dispatchErr := a.router.Dispatch(rc.Context, rc, req.toDomain())
	now := time.Now()
	elapsedMs := rc.Elapsed(now).Milliseconds()
	remainingMs := rc.Remaining(now).Milliseconds()

	if dispatchErr != nil {
		a.writeDispatchError(w, requestID, elapsedMs, remainingMs, dispatchErr)
		return
	}
	defer result.Response.Body.Close()

	w.Header().Set(constants.HeaderRequestID, requestID)
	w.Header().Set(constants.HeaderRequestElapsedMs, strconv.FormatInt(elapsedMs, 10))
	w.Header().Set(constants.HeaderRequestRemainMs, strconv.FormatInt(remainingMs, 10))
	for k, values := range result.Response.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}

	status := result.Response.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	if result.Response.Streaming {
		flusher, _ := w.(http.Flusher)
		buf := make([]byte, 4096)
		for {
			n, readErr := result.Response.Body.Read(buf)
			if n > 0 {
				if _, writeErr := w.Write(buf[:n]); writeErr != nil {
					return
				}
				if flusher != nil {
					flusher.Flush()
				}
			}
			if readErr != nil {
				return
			}
		}
	}

	_, _ = io.Copy(w, result.Response.Body)
}

// timeoutForPath resolves the default timeout budget for path per the
// front door's per-path overrides, clamped to the configured bounds.
func (a *Application) timeoutForPath(path string) time.Duration {
	cfg := a.getConfig()
	var d time.Duration
	switch path {
	case constants.PathV1ChatCompletions, constants.PathV1Completions:
		d = 120 * time.Second
	case "/v1/models":
		d = 10 * time.Second
	case constants.PathHealth:
		if cfg.Server.HighThroughput {
			d = 2 * time.Second
		} else {
			d = 5 * time.Second
		}
	default:
		d = 30 * time.Second
	}
	return a.clampTimeout(d)
}

// clampTimeout bounds d to [MinTimeoutMs, MaxTimeoutMs], defaulting that
// range to [1s, 300s] when config leaves it unset.
func (a *Application) clampTimeout(d time.Duration) time.Duration {
	cfg := a.getConfig()
	minMs, maxMs := cfg.Dispatch.MinTimeoutMs, cfg.Dispatch.MaxTimeoutMs
	if minMs == 0 {
		minMs = 1000
	}
	if maxMs == 0 {
		maxMs = 300000
	}
	min := time.Duration(minMs) * time.Millisecond
	max := time.Duration(maxMs) * time.Millisecond
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}

// writeDispatchError maps a domain.DispatchError (or a bare error, treated
// as an opaque transient failure) to the stable error response body and its
// ErrorKind-derived status code.
func (a *Application) writeDispatchError(w http.ResponseWriter, requestID string, elapsedMs, remainingMs int64, err error) {
	kind := domain.KindTransient
	message := err.Error()
	endpointID := ""

	if de, ok := err.(*domain.DispatchError); ok {
		kind = de.Kind
		if de.Message != "" {
			message = de.Message
		}
		endpointID = de.EndpointID
	}

	status := kind.StatusCode()
	details := map[string]any{"requestId": requestID}
	if kind == domain.KindTimeout {
		details["elapsedMs"] = elapsedMs
		details["remainingMs"] = remainingMs
	}
	if endpointID != "" {
		details["endpointId"] = endpointID
	}

	a.writeErrorBody(w, requestID, elapsedMs, remainingMs, status, errorTypeFor(kind), kind.Code(), message, details)
}

// errorTypeFor maps an ErrorKind to the stable "type" field of the error
// response body. timeout_error is fixed by the timeout contract; the rest
// follow the same snake_case convention.
func errorTypeFor(kind domain.ErrorKind) string {
	switch kind {
	case domain.KindTimeout:
		return "timeout_error"
	case domain.KindCancelled:
		return "cancelled_error"
	case domain.KindCircuitOpen:
		return "circuit_open_error"
	case domain.KindAllEndpointsExhausted:
		return "all_endpoints_exhausted_error"
	case domain.KindRateLimited:
		return "rate_limit_error"
	case domain.KindCredentialError:
		return "credential_error"
	case domain.KindModelUnknown:
		return "invalid_request_error"
	default:
		return "api_error"
	}
}

func (a *Application) writeError(w http.ResponseWriter, requestID string, status int, errType, code, message string, elapsedMs, remainingMs int64) {
	a.writeErrorBody(w, requestID, elapsedMs, remainingMs, status, errType, code, message, map[string]any{"requestId": requestID})
}

func (a *Application) writeErrorBody(w http.ResponseWriter, requestID string, elapsedMs, remainingMs int64, status int, errType, code, message string, details map[string]any) {
	w.Header().Set(ContentTypeHeader, ContentTypeJSON)
	w.Header().Set(constants.HeaderRequestID, requestID)
	w.Header().Set(constants.HeaderRequestElapsedMs, strconv.FormatInt(elapsedMs, 10))
	w.Header().Set(constants.HeaderRequestRemainMs, strconv.FormatInt(remainingMs, 10))
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: errorBody{
		Message: message,
		Type:    errType,
		Code:    code,
		Details: details,
	}})
}
