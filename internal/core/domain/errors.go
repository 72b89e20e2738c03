package domain

import (
	"fmt"
	"time"
)

// ErrorKind is the dispatch engine's error taxonomy. Kinds are
// classification labels, not Go error types, so they can travel across the
// adapter -> health manager -> router boundary in an Outcome.
type ErrorKind string

const (
	KindTimeout             ErrorKind = "timeout"
	KindCancelled           ErrorKind = "cancelled"
	KindCircuitOpen         ErrorKind = "circuit-open"
	KindTransient           ErrorKind = "transient"
	KindRateLimited         ErrorKind = "rate-limited"
	KindImmediateFailure    ErrorKind = "immediate-failure"
	KindCredentialError     ErrorKind = "credential-error"
	KindModelUnknown        ErrorKind = "model-unknown"
	KindAllEndpointsExhausted ErrorKind = "all-endpoints-exhausted"
	KindSuccess             ErrorKind = "success"
)

// Retryable reports whether the Router may try the same endpoint again
// (up to its MaxRetries) after an outcome of this kind. It does not govern
// fallback: Dispatch moves on to the next candidate endpoint after any
// failed attempt, whatever its kind.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTransient, KindRateLimited:
		return true
	default:
		return false
	}
}

// TripsImmediately reports whether an outcome of this kind trips the
// breaker on first occurrence, bypassing the windowed/consecutive counters.
func (k ErrorKind) TripsImmediately() bool {
	return k == KindImmediateFailure || k == KindCredentialError
}

// DispatchError is the canonical wrapped error returned from the core. It
// carries enough context to build the stable {error:{...}} response body
// described in the error response body without the HTTP layer re-deriving it.
type DispatchError struct {
	Err        error
	Kind       ErrorKind
	Message    string
	RequestID  string
	EndpointID string
	PoolID     string
}

func (e *DispatchError) Error() string {
	if e.EndpointID != "" {
		return fmt.Sprintf("%s [%s] endpoint=%s: %v", e.Kind, e.RequestID, e.EndpointID, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Kind, e.RequestID, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Code maps an ErrorKind to the stable machine-readable code used in the
// error response body.
func (k ErrorKind) Code() string {
	switch k {
	case KindTimeout:
		return "request_timeout"
	case KindCancelled:
		return "request_cancelled"
	case KindCircuitOpen:
		return "circuit_open"
	case KindTransient:
		return "upstream_transient_error"
	case KindRateLimited:
		return "upstream_rate_limited"
	case KindImmediateFailure:
		return "upstream_rejected"
	case KindCredentialError:
		return "credential_error"
	case KindModelUnknown:
		return "model_unknown"
	case KindAllEndpointsExhausted:
		return "all_endpoints_exhausted"
	default:
		return "unknown_error"
	}
}

// StatusCode maps an ErrorKind to the HTTP status the front door should use.
func (k ErrorKind) StatusCode() int {
	switch k {
	case KindTimeout:
		return 408
	case KindCancelled:
		return 499
	case KindCircuitOpen, KindAllEndpointsExhausted:
		return 503
	case KindRateLimited:
		return 429
	case KindModelUnknown:
		return 400
	case KindImmediateFailure, KindCredentialError:
		return 502
	default:
		return 500
	}
}

// CredentialError classifies failures from the Resolver.
type CredentialErrorKind string

const (
	CredentialNotFound         CredentialErrorKind = "not-found"
	CredentialStoreFailed      CredentialErrorKind = "store-failed"
	CredentialTimeout          CredentialErrorKind = "timeout"
	CredentialValidationFailed CredentialErrorKind = "validation-failed"
)

// Retryable reports: not-found and validation-failed are
// non-retryable; store-failed and timeout may succeed against a different
// endpoint/credential reference.
func (k CredentialErrorKind) Retryable() bool {
	switch k {
	case CredentialStoreFailed, CredentialTimeout:
		return true
	default:
		return false
	}
}

type CredentialError struct {
	Err error
	Ref string
	Kind CredentialErrorKind
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential %s (ref=%s): %v", e.Kind, e.Ref, e.Err)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

// HealthCheckError records a failed probe, keyed by endpoint id rather
// than URL since endpoints here are provider/model tuples, not just a URL.
type HealthCheckError struct {
	Err                 error
	EndpointID          string
	Latency             time.Duration
	ConsecutiveFailures int
	StatusCode          int
}

func (e *HealthCheckError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("health probe failed for %s: HTTP %d after %v (failures: %d): %v",
			e.EndpointID, e.StatusCode, e.Latency, e.ConsecutiveFailures, e.Err)
	}
	return fmt.Sprintf("health probe failed for %s: %v after %v (failures: %d)",
		e.EndpointID, e.Err, e.Latency, e.ConsecutiveFailures)
}

func (e *HealthCheckError) Unwrap() error {
	return e.Err
}
