package handlers

import (
	"encoding/json"
	"net/http"

	"sundial-hq/aperture/pkg/upstream"
)

// GenerateRequest is the wire format of the generation endpoint.
type GenerateRequest struct {
	// Model is the upstream model identifier.
	Model string `json:"model"`

	// Messages is the conversation, oldest first.
	Messages []upstream.Message `json:"messages"`

	// Params contains optional sampling parameters.
	Params upstream.GenerationParams `json:"params"`

	// Endpoint optionally forces an upstream variant ("gemini" or
	// "vertex"). Empty uses the configured default.
	Endpoint string `json:"endpoint,omitempty"`
}

// GenerateResponse is the wire format of a successful generation.
type GenerateResponse struct {
	// ID is the request ID for correlation.
	ID string `json:"id"`

	// Model is the model that produced the response.
	Model string `json:"model"`

	// Content is the generated text.
	Content string `json:"content"`

	// FinishReason is the upstream stop reason.
	FinishReason string `json:"finish_reason"`

	// Usage holds token accounting.
	Usage Usage `json:"usage"`
}

// Usage holds token accounting for one generation.
type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ErrorResponse is the wire format of every error.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the error type and message.
type ErrorDetail struct {
	// Type is a stable machine-readable error kind.
	Type string `json:"type"`

	// Message is a human-readable description.
	Message string `json:"message"`
}

// writeJSON encodes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError encodes an error response with the given status.
func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Type: errType, Message: message}})
}
