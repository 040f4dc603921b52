// Package handlers implements the HTTP endpoint handlers: generation,
// liveness and readiness probes, the model catalog, and the operational
// stats snapshot.
package handlers
