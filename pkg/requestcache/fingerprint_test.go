package requestcache

import (
	"testing"

	"sundial-hq/aperture/pkg/upstream"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func testRequest() *upstream.GenerationRequest {
	return &upstream.GenerationRequest{
		Model: "gemini-2.0-flash",
		Messages: []upstream.Message{
			{Role: "system", Content: "You are helpful."},
			{Role: "user", Content: "Hello"},
		},
		Params: upstream.GenerationParams{
			Temperature:     floatPtr(0.7),
			MaxOutputTokens: intPtr(256),
		},
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a, err := Fingerprint(testRequest())
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	b, err := Fingerprint(testRequest())
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}

	if a != b {
		t.Errorf("Expected identical fingerprints for equal requests, got %s and %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("Expected 64 hex characters, got %d", len(a))
	}
}

func TestFingerprintSensitiveToSemanticFields(t *testing.T) {
	base, err := Fingerprint(testRequest())
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*upstream.GenerationRequest)
	}{
		{"model", func(r *upstream.GenerationRequest) { r.Model = "gemini-2.0-pro" }},
		{"message content", func(r *upstream.GenerationRequest) { r.Messages[1].Content = "Goodbye" }},
		{"message role", func(r *upstream.GenerationRequest) { r.Messages[1].Role = "assistant" }},
		{"temperature", func(r *upstream.GenerationRequest) { r.Params.Temperature = floatPtr(0.2) }},
		{"max tokens", func(r *upstream.GenerationRequest) { r.Params.MaxOutputTokens = intPtr(512) }},
		{"stop sequences", func(r *upstream.GenerationRequest) { r.Params.StopSequences = []string{"END"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest()
			tt.mutate(req)
			fp, err := Fingerprint(req)
			if err != nil {
				t.Fatalf("Fingerprint failed: %v", err)
			}
			if fp == base {
				t.Errorf("Expected changed %s to change the fingerprint", tt.name)
			}
		})
	}
}

func TestFingerprintIgnoresUnsetParams(t *testing.T) {
	req := testRequest()
	req.Params = upstream.GenerationParams{}

	withNilParams, err := Fingerprint(req)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}

	again, err := Fingerprint(req)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if withNilParams != again {
		t.Error("Expected stable fingerprint for request without params")
	}
}
