// Package upstream provides a mock Gemini-style API server for tests.
package upstream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// MockServer simulates the Gemini generative API for tests: credential
// validation on the model-list endpoint, generation calls, and the error
// shapes the real upstream produces for bad keys, rate limits and
// outages.
type MockServer struct {
	server *httptest.Server

	mu             sync.Mutex
	validKeys      map[string]bool
	invalidKeys    map[string]bool
	rateLimited    map[string]bool
	failRequests   int
	models         []string
	responseText   string
	requestCount   int
	generateCount  int
	probeCount     int
	seenCredential []string
}

// NewMockServer creates a mock server with no known credentials.
func NewMockServer() *MockServer {
	ms := &MockServer{
		validKeys:    make(map[string]bool),
		invalidKeys:  make(map[string]bool),
		rateLimited:  make(map[string]bool),
		models:       []string{"gemini-2.0-flash", "gemini-2.0-pro"},
		responseText: "mock response",
	}
	ms.server = httptest.NewServer(http.HandlerFunc(ms.handler))
	return ms
}

// URL returns the mock server's base URL.
func (ms *MockServer) URL() string {
	return ms.server.URL
}

// Close closes the mock server.
func (ms *MockServer) Close() {
	ms.server.Close()
}

// AddValidKey registers a credential the server accepts.
func (ms *MockServer) AddValidKey(key string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.validKeys[key] = true
	delete(ms.invalidKeys, key)
}

// AddInvalidKey registers a credential rejected with the Gemini-style
// 400 API_KEY_INVALID error.
func (ms *MockServer) AddInvalidKey(key string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.invalidKeys[key] = true
	delete(ms.validKeys, key)
}

// SetRateLimited marks a credential to answer 429.
func (ms *MockServer) SetRateLimited(key string, limited bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if limited {
		ms.rateLimited[key] = true
	} else {
		delete(ms.rateLimited, key)
	}
}

// FailNextRequests makes the next n requests answer 500 regardless of
// credential.
func (ms *MockServer) FailNextRequests(n int) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.failRequests = n
}

// SetModels replaces the model list.
func (ms *MockServer) SetModels(models []string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.models = models
}

// SetResponseText sets the generated text for successful calls.
func (ms *MockServer) SetResponseText(text string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.responseText = text
}

// RequestCount returns the total number of requests received.
func (ms *MockServer) RequestCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.requestCount
}

// GenerateCount returns the number of generation requests received.
func (ms *MockServer) GenerateCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.generateCount
}

// ProbeCount returns the number of model-list requests received.
func (ms *MockServer) ProbeCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.probeCount
}

// SeenCredentials returns the credentials in request order.
func (ms *MockServer) SeenCredentials() []string {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make([]string, len(ms.seenCredential))
	copy(out, ms.seenCredential)
	return out
}

func (ms *MockServer) handler(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("x-goog-api-key")

	ms.mu.Lock()
	ms.requestCount++
	ms.seenCredential = append(ms.seenCredential, key)
	isGenerate := strings.Contains(r.URL.Path, ":generateContent")
	if isGenerate {
		ms.generateCount++
	} else {
		ms.probeCount++
	}
	shouldFail := ms.failRequests > 0
	if shouldFail {
		ms.failRequests--
	}
	valid := ms.validKeys[key]
	invalid := ms.invalidKeys[key]
	limited := ms.rateLimited[key]
	models := ms.models
	responseText := ms.responseText
	ms.mu.Unlock()

	switch {
	case shouldFail:
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL", "internal error", "")
		return
	case invalid:
		writeAPIError(w, http.StatusBadRequest, "INVALID_ARGUMENT",
			"API key not valid. Please pass a valid API key.", "API_KEY_INVALID")
		return
	case !valid:
		writeAPIError(w, http.StatusForbidden, "PERMISSION_DENIED", "permission denied", "")
		return
	case limited:
		w.Header().Set("Retry-After", "30")
		writeAPIError(w, http.StatusTooManyRequests, "RESOURCE_EXHAUSTED", "quota exceeded", "")
		return
	}

	if isGenerate {
		writeJSON(w, http.StatusOK, map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]any{{"text": responseText}},
				},
				"finishReason": "STOP",
			}},
			"usageMetadata": map[string]any{
				"promptTokenCount":     7,
				"candidatesTokenCount": 11,
			},
		})
		return
	}

	entries := make([]map[string]string, 0, len(models))
	for _, model := range models {
		entries = append(entries, map[string]string{"name": "models/" + model})
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": entries})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeAPIError(w http.ResponseWriter, status int, grpcStatus, message, reason string) {
	body := map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": message,
			"status":  grpcStatus,
		},
	}
	if reason != "" {
		body["error"].(map[string]any)["details"] = []map[string]string{{
			"@type":  "type.googleapis.com/google.rpc.ErrorInfo",
			"reason": reason,
		}}
	}
	writeJSON(w, status, body)
}
