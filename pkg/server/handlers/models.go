package handlers

import (
	"net/http"

	"sundial-hq/aperture/pkg/gateway"
)

// ModelsHandler serves the model catalog fetched during startup
// reconciliation.
type ModelsHandler struct {
	gateway *gateway.Gateway
}

// NewModelsHandler creates the model list handler.
func NewModelsHandler(gw *gateway.Gateway) *ModelsHandler {
	return &ModelsHandler{gateway: gw}
}

// ServeHTTP implements http.Handler.
func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "invalid_request", "Method not allowed")
		return
	}

	models := h.gateway.Models()
	entries := make([]map[string]string, 0, len(models))
	for _, model := range models {
		entries = append(entries, map[string]string{"id": model})
	}

	writeJSON(w, http.StatusOK, map[string]any{"models": entries})
}
