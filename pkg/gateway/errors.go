package gateway

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitedError reports an admission denial. It is one of the two
// pipeline errors surfaced to clients with full detail; everything else
// collapses to a generic upstream failure at the HTTP boundary.
type RateLimitedError struct {
	// Scope names the exhausted window ("minute" or "day").
	Scope string

	// Limit is the configured ceiling for that window.
	Limit int

	// RetryAfter is how long until the window resets.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d requests per %s", e.Limit, e.Scope)
}

// IsRateLimited reports whether err is an admission denial.
func IsRateLimited(err error) bool {
	var rle *RateLimitedError
	return errors.As(err, &rle)
}

// ErrUnknownEndpoint is returned when a request names an upstream variant
// the gateway has no client for.
var ErrUnknownEndpoint = errors.New("gateway: unknown upstream endpoint")
