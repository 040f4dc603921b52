// Package upstream implements the HTTP clients and error taxonomy for the
// generative API the gateway fronts.
//
// Two interchangeable endpoints are supported: the public Gemini API and
// the Vertex-hosted variant of the same API. Both speak the same wire
// format and are served by one client implementation.
//
// # Error Classification
//
// Every failure is classified into exactly one of three classes before it
// leaves this package:
//
//   - *AuthError: the upstream rejected the credential. Permanent; the
//     credential must leave the pool.
//   - *RateLimitError: the credential is temporarily over quota. The
//     credential stays in the pool but is skipped this rotation cycle.
//   - *TransientError: network failures, timeouts, 5xx responses, open
//     circuit breaker. Says nothing about the credential.
//
// Callers branch with IsAuthError, IsRateLimitError, and IsTransientError
// rather than inspecting status codes.
//
// # Circuit Breaker
//
// Each client optionally wraps its transport in a circuit breaker
// (sony/gobreaker). Only transport failures and 5xx responses count toward
// tripping it; credential rejections and 429s do not, because they carry
// no signal about upstream health.
package upstream
