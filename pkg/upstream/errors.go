package upstream

import (
	"errors"
	"fmt"
	"time"
)

// AuthError represents an authorization rejection of a credential.
// This occurs when the upstream rejects the API key (HTTP 400 with an
// API_KEY_INVALID reason, 401, or 403). It is the only error class that
// permanently invalidates a credential.
type AuthError struct {
	// Endpoint is the upstream variant that rejected the credential
	// ("gemini" or "vertex").
	Endpoint string

	// StatusCode is the HTTP status code returned by the upstream.
	StatusCode int

	// Message is the error message from the upstream.
	Message string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("upstream %q rejected credential (status %d): %s", e.Endpoint, e.StatusCode, e.Message)
}

// RateLimitError represents a rate limit rejection (HTTP 429).
// The credential remains valid; it should be skipped for the remainder of
// the current rotation cycle.
type RateLimitError struct {
	// Endpoint is the upstream variant that rate limited the request.
	Endpoint string

	// RetryAfter is the duration to wait before retrying, if the upstream
	// provided one. Zero if unknown.
	RetryAfter time.Duration

	// Message is the error message from the upstream.
	Message string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("upstream %q rate limited (retry after %s): %s", e.Endpoint, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("upstream %q rate limited: %s", e.Endpoint, e.Message)
}

// TransientError represents a temporary upstream failure: 5xx responses,
// network errors, timeouts, or an open circuit breaker. The credential is
// not implicated and remains in the pool.
type TransientError struct {
	// Endpoint is the upstream variant where the failure occurred.
	Endpoint string

	// StatusCode is the HTTP status code (0 for network-level failures).
	StatusCode int

	// Message describes the failure.
	Message string

	// Cause is the underlying error (if any).
	Cause error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream %q transient error (status %d): %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upstream %q transient error: %s", e.Endpoint, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *TransientError) Unwrap() error {
	return e.Cause
}

// IsAuthError reports whether err classifies as a permanent credential
// rejection.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsRateLimitError reports whether err classifies as an upstream rate limit.
func IsRateLimitError(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// IsTransientError reports whether err classifies as a temporary failure
// that does not implicate the credential.
func IsTransientError(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsRetryable reports whether the request may be retried with the next
// credential in the rotation. Auth errors are retryable too (with a
// different credential); only a nil error is not.
func IsRetryable(err error) bool {
	return IsAuthError(err) || IsRateLimitError(err) || IsTransientError(err)
}
