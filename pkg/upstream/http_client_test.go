package upstream_test

import (
	"context"
	"errors"
	"testing"

	mock "sundial-hq/aperture/internal/upstream"
	"sundial-hq/aperture/pkg/upstream"
)

func newTestClient(ms *mock.MockServer) *upstream.HTTPClient {
	return upstream.NewGeminiClient(upstream.ClientConfig{
		BaseURL: ms.URL(),
	})
}

func testGenerationRequest() *upstream.GenerationRequest {
	return &upstream.GenerationRequest{
		Model: "gemini-2.0-flash",
		Messages: []upstream.Message{
			{Role: "user", Content: "Hello"},
		},
	}
}

func TestGenerateSuccess(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()
	ms.AddValidKey("key-valid")
	ms.SetResponseText("generated text")

	client := newTestClient(ms)
	defer client.Close()

	resp, err := client.Generate(context.Background(), "key-valid", testGenerationRequest())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if resp.Content != "generated text" {
		t.Errorf("Expected content %q, got %q", "generated text", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("Expected finish reason stop, got %s", resp.FinishReason)
	}
	if resp.PromptTokens != 7 || resp.OutputTokens != 11 {
		t.Errorf("Expected token counts 7/11, got %d/%d", resp.PromptTokens, resp.OutputTokens)
	}
}

func TestGenerateInvalidKeyIsAuthError(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()
	ms.AddInvalidKey("key-bad")

	client := newTestClient(ms)
	defer client.Close()

	_, err := client.Generate(context.Background(), "key-bad", testGenerationRequest())
	if !upstream.IsAuthError(err) {
		t.Errorf("Expected an auth error for the 400 API_KEY_INVALID response, got %v", err)
	}
}

func TestGenerateForbiddenIsAuthError(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()

	client := newTestClient(ms)
	defer client.Close()

	_, err := client.Generate(context.Background(), "key-unknown", testGenerationRequest())
	if !upstream.IsAuthError(err) {
		t.Errorf("Expected an auth error for the 403 response, got %v", err)
	}
}

func TestGenerateRateLimit(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()
	ms.AddValidKey("key-valid")
	ms.SetRateLimited("key-valid", true)

	client := newTestClient(ms)
	defer client.Close()

	_, err := client.Generate(context.Background(), "key-valid", testGenerationRequest())
	if !upstream.IsRateLimitError(err) {
		t.Fatalf("Expected a rate limit error, got %v", err)
	}

	var rle *upstream.RateLimitError
	if errors.As(err, &rle) && rle.RetryAfter.Seconds() != 30 {
		t.Errorf("Expected Retry-After of 30s, got %s", rle.RetryAfter)
	}
}

func TestGenerateServerErrorIsTransient(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()
	ms.AddValidKey("key-valid")
	ms.FailNextRequests(1)

	client := newTestClient(ms)
	defer client.Close()

	_, err := client.Generate(context.Background(), "key-valid", testGenerationRequest())
	if !upstream.IsTransientError(err) {
		t.Errorf("Expected a transient error for the 500 response, got %v", err)
	}
}

func TestProbe(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()
	ms.AddValidKey("key-valid")
	ms.AddInvalidKey("key-bad")

	client := newTestClient(ms)
	defer client.Close()

	if err := client.Probe(context.Background(), "key-valid"); err != nil {
		t.Errorf("Expected successful probe, got %v", err)
	}
	if err := client.Probe(context.Background(), "key-bad"); !upstream.IsAuthError(err) {
		t.Errorf("Expected auth error probing a bad key, got %v", err)
	}
}

func TestListModelsStripsResourcePrefix(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()
	ms.AddValidKey("key-valid")
	ms.SetModels([]string{"gemini-2.0-flash", "gemini-2.0-pro"})

	client := newTestClient(ms)
	defer client.Close()

	models, err := client.ListModels(context.Background(), "key-valid")
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("Expected 2 models, got %d", len(models))
	}
	if models[0] != "gemini-2.0-flash" {
		t.Errorf("Expected resource prefix stripped, got %s", models[0])
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()
	ms.AddValidKey("key-valid")
	ms.FailNextRequests(10)

	client := upstream.NewGeminiClient(upstream.ClientConfig{
		BaseURL: ms.URL(),
		Breaker: upstream.BreakerConfig{
			Enabled:          true,
			FailureThreshold: 2,
		},
	})
	defer client.Close()

	for i := 0; i < 2; i++ {
		if _, err := client.Generate(context.Background(), "key-valid", testGenerationRequest()); err == nil {
			t.Fatal("Expected failure while the upstream errors")
		}
	}

	before := ms.RequestCount()
	_, err := client.Generate(context.Background(), "key-valid", testGenerationRequest())
	if !upstream.IsTransientError(err) {
		t.Errorf("Expected a transient error from the open breaker, got %v", err)
	}
	if ms.RequestCount() != before {
		t.Error("Expected the open breaker to short-circuit without an upstream request")
	}
}

func TestErrorClassificationHelpers(t *testing.T) {
	authErr := &upstream.AuthError{Endpoint: "gemini", StatusCode: 403}
	rateErr := &upstream.RateLimitError{Endpoint: "gemini"}
	transientErr := &upstream.TransientError{Endpoint: "gemini", StatusCode: 500}

	if !upstream.IsAuthError(authErr) || upstream.IsAuthError(rateErr) {
		t.Error("IsAuthError misclassified")
	}
	if !upstream.IsRateLimitError(rateErr) || upstream.IsRateLimitError(authErr) {
		t.Error("IsRateLimitError misclassified")
	}
	if !upstream.IsTransientError(transientErr) || upstream.IsTransientError(authErr) {
		t.Error("IsTransientError misclassified")
	}
	// Every classified error permits a retry with the next credential.
	for _, err := range []error{authErr, rateErr, transientErr} {
		if !upstream.IsRetryable(err) {
			t.Errorf("Expected %v retryable with the next credential", err)
		}
	}
}
