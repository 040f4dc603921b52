package handlers

import (
	"net/http"
	"time"

	"sundial-hq/aperture/pkg/gateway"
)

// HealthHandler handles liveness probes.
type HealthHandler struct{}

// NewHealthHandler creates a new health check handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// ServeHTTP implements http.Handler for liveness checks.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "invalid_request", "Method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

// ReadyHandler handles readiness probes. The service is ready when at
// least one credential is in rotation; an empty pool answers 503 so load
// balancers route elsewhere while the background sweep looks for a
// working key.
type ReadyHandler struct {
	gateway *gateway.Gateway
}

// NewReadyHandler creates a new readiness check handler.
func NewReadyHandler(gw *gateway.Gateway) *ReadyHandler {
	return &ReadyHandler{gateway: gw}
}

// ServeHTTP implements http.Handler for readiness checks.
func (h *ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "invalid_request", "Method not allowed")
		return
	}

	poolSize := h.gateway.Stats().PoolSize
	status := "ready"
	code := http.StatusOK
	if poolSize == 0 {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"pool_size": poolSize,
	})
}
