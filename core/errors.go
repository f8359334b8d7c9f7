package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidRequest is returned for malformed generation requests.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrModelUnavailable is returned once the transport retry budget is spent.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrAuditUnavailable is returned when a blocked decision cannot be recorded.
	ErrAuditUnavailable = errors.New("audit sink unavailable")
	// ErrBudgetExhausted is returned when a request has no provider calls left.
	ErrBudgetExhausted = errors.New("provider call budget exhausted")
)

// TransportErrorKind classifies provider and network failures.
type TransportErrorKind string

const (
	// TransportTimeout is a per-attempt deadline or provider-side timeout.
	TransportTimeout TransportErrorKind = "timeout"
	// TransportNetwork is a connection level failure.
	TransportNetwork TransportErrorKind = "network"
	// TransportRateLimit is a provider-side quota rejection (429).
	TransportRateLimit TransportErrorKind = "rate_limit"
	// TransportServer is a 5xx-equivalent provider failure.
	TransportServer TransportErrorKind = "server"
	// TransportClient is a 4xx-equivalent rejection that will not succeed on retry.
	TransportClient TransportErrorKind = "client"
)

// TransportError is a failure of a single provider call.
type TransportError struct {
	Kind      TransportErrorKind
	Retryable bool
	Provider  string
	Err       error
}

// NewTransportError wraps err. Timeouts, network, rate-limit and server
// errors are retryable; client errors are not.
func NewTransportError(provider string, kind TransportErrorKind, err error) *TransportError {
	return &TransportError{
		Kind:      kind,
		Retryable: kind != TransportClient,
		Provider:  provider,
		Err:       err,
	}
}

// Error implements error.
func (e *TransportError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s transport error (%s): %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("transport error (%s): %v", e.Kind, e.Err)
}

// Unwrap supports errors.Is / errors.As.
func (e *TransportError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a retryable transport error.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Retryable
}

// ThrottledError is returned by the rate limiter when too many callers are
// already queued for a token.
type ThrottledError struct {
	Role       Role
	RetryAfter time.Duration
}

// Error implements error.
func (e *ThrottledError) Error() string {
	return fmt.Sprintf("rate limit exceeded for role %s, retry after %s", e.Role, e.RetryAfter)
}

// ErrorKind is the terminal failure category carried by a Failed outcome.
type ErrorKind string

const (
	// ErrorModelUnavailable means every allowed provider attempt failed.
	ErrorModelUnavailable ErrorKind = "model_unavailable"
	// ErrorAuditUnavailable means a block decision could not be recorded.
	ErrorAuditUnavailable ErrorKind = "audit_unavailable"
	// ErrorTimeout means the overall request deadline expired.
	ErrorTimeout ErrorKind = "timeout"
	// ErrorCanceled means the caller canceled the request.
	ErrorCanceled ErrorKind = "canceled"
	// ErrorInvalidRequest means the request failed validation.
	ErrorInvalidRequest ErrorKind = "invalid_request"
)
