package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"sundial-hq/aperture/pkg/gateway"
	"sundial-hq/aperture/pkg/keypool"
	"sundial-hq/aperture/pkg/server/middleware"
	"sundial-hq/aperture/pkg/upstream"
)

// maxRequestBody bounds the generation request body at 4MB.
const maxRequestBody = 4 << 20

// GenerateHandler serves the generation endpoint. It validates the wire
// request, hands it to the gateway pipeline and maps pipeline errors to
// HTTP statuses. Only admission denials and pool exhaustion surface with
// detail; every other upstream failure collapses to a generic 502.
type GenerateHandler struct {
	gateway *gateway.Gateway
}

// NewGenerateHandler creates the generation handler.
func NewGenerateHandler(gw *gateway.Gateway) *GenerateHandler {
	return &GenerateHandler{gateway: gw}
}

// ServeHTTP implements http.Handler.
func (h *GenerateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "invalid_request", "Method not allowed")
		return
	}

	var req GenerateRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Request body is not valid JSON")
		return
	}

	if req.Model == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Field 'model' is required")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "Field 'messages' must not be empty")
		return
	}

	client := middleware.GetClient(r.Context())
	resp, err := h.gateway.Generate(r.Context(), client, req.Endpoint, &upstream.GenerationRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Params:   req.Params,
	})
	if err != nil {
		h.writeGenerateError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, GenerateResponse{
		ID:           middleware.GetRequestID(r.Context()),
		Model:        resp.Model,
		Content:      resp.Content,
		FinishReason: resp.FinishReason,
		Usage: Usage{
			PromptTokens: resp.PromptTokens,
			OutputTokens: resp.OutputTokens,
			TotalTokens:  resp.PromptTokens + resp.OutputTokens,
		},
	})
}

// writeGenerateError maps pipeline errors to HTTP responses.
func (h *GenerateHandler) writeGenerateError(w http.ResponseWriter, err error) {
	var rateLimited *gateway.RateLimitedError
	switch {
	case errors.As(err, &rateLimited):
		w.Header().Set("Retry-After", strconv.Itoa(int(rateLimited.RetryAfter.Seconds())+1))
		writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", rateLimited.Error())
	case errors.Is(err, keypool.ErrAllKeysExhausted):
		writeError(w, http.StatusServiceUnavailable, "all_keys_exhausted",
			"No upstream credential is currently available")
	case errors.Is(err, gateway.ErrUnknownEndpoint):
		writeError(w, http.StatusBadRequest, "invalid_request", "Unknown upstream endpoint")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", "The request timed out")
	default:
		writeError(w, http.StatusBadGateway, "upstream_error",
			"The upstream request failed. Please try again later.")
	}
}
