package handlers

import (
	"net/http"

	"sundial-hq/aperture/pkg/gateway"
)

// StatsHandler serves the operational snapshot: pool membership with
// redacted credentials, cache counters, in-flight handles and admission
// totals.
type StatsHandler struct {
	gateway *gateway.Gateway
}

// NewStatsHandler creates the stats handler.
func NewStatsHandler(gw *gateway.Gateway) *StatsHandler {
	return &StatsHandler{gateway: gw}
}

// ServeHTTP implements http.Handler.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "invalid_request", "Method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, h.gateway.Stats())
}
