package domain

import (
	"context"
	"time"
)

// RequestContext is the process-wide tracked unit of work.
// It wraps a context.Context deadline/cancellation chain with the
// bookkeeping the registry needs to enforce deadline propagation and to
// report X-Request-Elapsed-Ms/X-Request-Remaining-Ms.
type RequestContext struct {
	Context   context.Context
	Cancel    context.CancelFunc
	StartedAt time.Time
	Deadline  time.Time
	ID        string
	ParentID  string
}

// Remaining returns the time left before Deadline, floored at zero.
func (r *RequestContext) Remaining(now time.Time) time.Duration {
	d := r.Deadline.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Elapsed returns the time since StartedAt.
func (r *RequestContext) Elapsed(now time.Time) time.Duration {
	return now.Sub(r.StartedAt)
}

// DeriveChildDeadline implements the deadline-narrowing rule:
// a child request may ask for its own timeout, but never gets more time
// than the parent has left.
func (r *RequestContext) DeriveChildDeadline(requested time.Duration, now time.Time) time.Time {
	remaining := r.Remaining(now)
	if requested <= 0 || requested > remaining {
		return now.Add(remaining)
	}
	return now.Add(requested)
}

// NormalisedRequest is the canonical, OpenAI-shaped request the Router and
// Parameter Translator operate on regardless of which wire dialect the
// caller used.
type NormalisedRequest struct {
	Model             string
	Messages          []CanonicalMessage
	Stream            bool
	Temperature       *float64
	TopP              *float64
	TopK              *int
	MaxTokens         *int
	Stop              []string
	PresencePenalty   *float64
	FrequencyPenalty  *float64
	Tools             []interface{}
	ToolChoice        interface{}
	ResponseFormat    interface{}
	User              string
	Seed              *int
	N                 *int
	MinP              *float64
	RepetitionPenalty *float64
	LengthPenalty     *float64
	IgnoreEOS         *bool
	BestOf            *int
	Echo              *bool
	Logprobs          *bool
	LogitBias         map[string]float64
	IncludeStopStrInOutput *bool
	EnableThinking    *bool
	ProviderOverrides map[string]interface{}
}

// HasExtendedFields reports whether req carries any field beyond the bare
// OpenAI-core set, used by the parameter translator's fast path to decide
// whether a snake_case-native provider can skip translation entirely.
func (r NormalisedRequest) HasExtendedFields() bool {
	return r.TopK != nil || r.Seed != nil || r.N != nil || r.MinP != nil ||
		r.RepetitionPenalty != nil || r.LengthPenalty != nil || r.IgnoreEOS != nil ||
		r.BestOf != nil || r.Echo != nil || r.Logprobs != nil || len(r.LogitBias) > 0 ||
		r.IncludeStopStrInOutput != nil || r.EnableThinking != nil || r.User != ""
}

// CanonicalMessage is one chat turn in the canonical request shape.
type CanonicalMessage struct {
	Role       string
	Content    interface{}
	Name       string
	ToolCallID string
}

// Outcome is what an attempt against one endpoint produced: either a
// successful response marker or a classified failure, used by both the
// Router (to decide fallback) and the Health Manager (to update breaker and
// metrics state).
type Outcome struct {
	CompletedAt time.Time
	Kind        ErrorKind
	Latency     time.Duration
	StatusCode  int
	EndpointID  string
	PoolID      string
	Err         error
}

func (o Outcome) Success() bool {
	return o.Kind == KindSuccess
}
