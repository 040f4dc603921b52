// Package middleware provides the HTTP middleware chain: panic recovery,
// request ID assignment, client identity resolution, request logging and
// CORS handling.
package middleware
