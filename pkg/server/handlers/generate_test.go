package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sundial-hq/aperture/pkg/dedup"
	"sundial-hq/aperture/pkg/gateway"
	"sundial-hq/aperture/pkg/keypool"
	"sundial-hq/aperture/pkg/limits/ratelimit"
	"sundial-hq/aperture/pkg/server/middleware"
	"sundial-hq/aperture/pkg/settings"
	"sundial-hq/aperture/pkg/upstream"
)

// stubClient answers every generation with a fixed outcome.
type stubClient struct {
	err     error
	content string
}

func (c *stubClient) Generate(ctx context.Context, credential string, req *upstream.GenerationRequest) (*upstream.GenerationResponse, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &upstream.GenerationResponse{
		Model:        req.Model,
		Content:      c.content,
		FinishReason: "stop",
		PromptTokens: 7,
		OutputTokens: 11,
	}, nil
}

func (c *stubClient) Probe(ctx context.Context, credential string) error { return nil }

func (c *stubClient) ListModels(ctx context.Context, credential string) ([]string, error) {
	return []string{"gemini-2.0-flash"}, nil
}

func (c *stubClient) Endpoint() string { return "gemini" }
func (c *stubClient) Close() error     { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestGateway assembles a gateway over the stub client with one
// credential in rotation.
func newTestGateway(t *testing.T, client upstream.Client, limiter *ratelimit.Limiter) *gateway.Gateway {
	t.Helper()
	logger := discardLogger()

	pool := keypool.New(settings.NewMemoryStore(), logger, keypool.Options{})
	pool.Add("test-credential")

	return gateway.New(gateway.Options{
		Pool:            pool,
		Dedup:           dedup.New(logger, dedup.Options{}),
		Limiter:         limiter,
		Clients:         map[string]upstream.Client{"gemini": client},
		DefaultEndpoint: "gemini",
		Logger:          logger,
	})
}

// handlerWithMiddleware wires the identity and request ID middleware the
// server installs in front of every handler.
func handlerWithMiddleware(h http.Handler) http.Handler {
	return middleware.RequestID(middleware.ClientIdentity(h))
}

func postGenerate(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(body))
	req.RemoteAddr = "192.0.2.1:52000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	return resp
}

const validBody = `{"model":"gemini-2.0-flash","messages":[{"role":"user","content":"hello"}]}`

func TestGenerateSuccess(t *testing.T) {
	gw := newTestGateway(t, &stubClient{content: "hi there"}, nil)
	h := handlerWithMiddleware(NewGenerateHandler(gw))

	rec := postGenerate(t, h, validBody)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var resp GenerateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Content != "hi there" {
		t.Errorf("Expected content %q, got %q", "hi there", resp.Content)
	}
	if resp.Model != "gemini-2.0-flash" {
		t.Errorf("Expected model %q, got %q", "gemini-2.0-flash", resp.Model)
	}
	if resp.Usage.TotalTokens != 18 {
		t.Errorf("Expected %d total tokens, got %d", 18, resp.Usage.TotalTokens)
	}
	if resp.ID == "" {
		t.Error("Expected a request ID, got empty string")
	}
	if resp.ID != rec.Header().Get(middleware.RequestIDHeader) {
		t.Errorf("Expected body ID to match %s header", middleware.RequestIDHeader)
	}
}

func TestGenerateMethodNotAllowed(t *testing.T) {
	gw := newTestGateway(t, &stubClient{}, nil)
	h := handlerWithMiddleware(NewGenerateHandler(gw))

	req := httptest.NewRequest(http.MethodGet, "/v1/generate", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestGenerateInvalidJSON(t *testing.T) {
	gw := newTestGateway(t, &stubClient{}, nil)
	h := handlerWithMiddleware(NewGenerateHandler(gw))

	rec := postGenerate(t, h, "{not json")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error.Type != "invalid_request" {
		t.Errorf("Expected error type %q, got %q", "invalid_request", resp.Error.Type)
	}
}

func TestGenerateMissingModel(t *testing.T) {
	gw := newTestGateway(t, &stubClient{}, nil)
	h := handlerWithMiddleware(NewGenerateHandler(gw))

	rec := postGenerate(t, h, `{"messages":[{"role":"user","content":"hello"}]}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestGenerateMissingMessages(t *testing.T) {
	gw := newTestGateway(t, &stubClient{}, nil)
	h := handlerWithMiddleware(NewGenerateHandler(gw))

	rec := postGenerate(t, h, `{"model":"gemini-2.0-flash","messages":[]}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestGenerateRateLimited(t *testing.T) {
	limiter := ratelimit.New(discardLogger(), ratelimit.Options{RequestsPerMinute: 1})
	gw := newTestGateway(t, &stubClient{}, limiter)
	h := handlerWithMiddleware(NewGenerateHandler(gw))

	if rec := postGenerate(t, h, validBody); rec.Code != http.StatusOK {
		t.Fatalf("Expected first request to pass, got %d", rec.Code)
	}

	rec := postGenerate(t, h, validBody)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected status %d, got %d", http.StatusTooManyRequests, rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header on rate limit response")
	}
	if resp := decodeError(t, rec); resp.Error.Type != "rate_limit_exceeded" {
		t.Errorf("Expected error type %q, got %q", "rate_limit_exceeded", resp.Error.Type)
	}
}

func TestGenerateAllKeysExhausted(t *testing.T) {
	logger := discardLogger()
	gw := gateway.New(gateway.Options{
		Pool:            keypool.New(settings.NewMemoryStore(), logger, keypool.Options{}),
		Dedup:           dedup.New(logger, dedup.Options{}),
		Clients:         map[string]upstream.Client{"gemini": &stubClient{}},
		DefaultEndpoint: "gemini",
		Logger:          logger,
	})
	h := handlerWithMiddleware(NewGenerateHandler(gw))

	rec := postGenerate(t, h, validBody)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error.Type != "all_keys_exhausted" {
		t.Errorf("Expected error type %q, got %q", "all_keys_exhausted", resp.Error.Type)
	}
}

func TestGenerateUnknownEndpoint(t *testing.T) {
	gw := newTestGateway(t, &stubClient{}, nil)
	h := handlerWithMiddleware(NewGenerateHandler(gw))

	body := `{"model":"gemini-2.0-flash","messages":[{"role":"user","content":"hi"}],"endpoint":"vertex"}`
	rec := postGenerate(t, h, body)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestGenerateUpstreamFailureIsGeneric(t *testing.T) {
	client := &stubClient{err: &upstream.TransientError{
		Endpoint:   "gemini",
		StatusCode: 500,
		Message:    "backend error with internal detail",
	}}
	gw := newTestGateway(t, client, nil)
	h := handlerWithMiddleware(NewGenerateHandler(gw))

	rec := postGenerate(t, h, validBody)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("Expected status %d, got %d", http.StatusBadGateway, rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Error.Type != "upstream_error" {
		t.Errorf("Expected error type %q, got %q", "upstream_error", resp.Error.Type)
	}
	if strings.Contains(resp.Error.Message, "internal detail") {
		t.Errorf("Expected upstream detail hidden, got %q", resp.Error.Message)
	}
}

func TestGenerateBodyTooLarge(t *testing.T) {
	gw := newTestGateway(t, &stubClient{}, nil)
	h := handlerWithMiddleware(NewGenerateHandler(gw))

	var buf bytes.Buffer
	buf.WriteString(`{"model":"gemini-2.0-flash","messages":[{"role":"user","content":"`)
	buf.Write(bytes.Repeat([]byte("x"), maxRequestBody+1))
	buf.WriteString(`"}]}`)

	rec := postGenerate(t, h, buf.String())
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}
