package upstream

import "time"

// Message is a single turn in a generation request.
type Message struct {
	// Role is the speaker role ("user", "model", "system").
	Role string `json:"role"`

	// Content is the text content of the turn.
	Content string `json:"content"`
}

// GenerationParams contains the sampling parameters that affect the
// semantics of a generation. These fields participate in the request
// fingerprint; anything volatile (request IDs, client identity, stream
// flags) must not live here.
type GenerationParams struct {
	// Temperature controls sampling randomness.
	Temperature *float64 `json:"temperature,omitempty"`

	// TopP is the nucleus sampling threshold.
	TopP *float64 `json:"top_p,omitempty"`

	// TopK limits sampling to the K most likely tokens.
	TopK *int `json:"top_k,omitempty"`

	// MaxOutputTokens caps the generated token count.
	MaxOutputTokens *int `json:"max_output_tokens,omitempty"`

	// StopSequences are strings that terminate generation.
	StopSequences []string `json:"stop_sequences,omitempty"`
}

// IsZero reports whether no parameter is set.
func (p GenerationParams) IsZero() bool {
	return p.Temperature == nil &&
		p.TopP == nil &&
		p.TopK == nil &&
		p.MaxOutputTokens == nil &&
		len(p.StopSequences) == 0
}

// GenerationRequest is a provider-agnostic generation request.
type GenerationRequest struct {
	// Model is the upstream model identifier (e.g., "gemini-2.0-flash").
	Model string `json:"model"`

	// Messages is the conversation history, oldest first.
	Messages []Message `json:"messages"`

	// Params contains the sampling parameters.
	Params GenerationParams `json:"params"`
}

// GenerationResponse is a provider-agnostic generation response.
type GenerationResponse struct {
	// Model is the model that produced the response.
	Model string `json:"model"`

	// Content is the generated text.
	Content string `json:"content"`

	// FinishReason is the upstream's stop reason ("stop", "max_tokens",
	// "safety", ...).
	FinishReason string `json:"finish_reason"`

	// PromptTokens is the number of input tokens billed.
	PromptTokens int `json:"prompt_tokens"`

	// OutputTokens is the number of generated tokens billed.
	OutputTokens int `json:"output_tokens"`
}

// ClientConfig contains configuration for an upstream HTTP client.
type ClientConfig struct {
	// Endpoint names the upstream variant ("gemini" or "vertex").
	Endpoint string

	// BaseURL is the upstream API base URL.
	BaseURL string

	// Timeout is the per-request timeout for generation calls.
	Timeout time.Duration

	// ProbeTimeout is the per-request timeout for validation probes.
	// Probes are cheap and should fail fast.
	ProbeTimeout time.Duration

	// MaxIdleConns bounds the connection pool.
	MaxIdleConns int

	// MaxIdleConnsPerHost bounds idle connections per upstream host.
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept.
	IdleConnTimeout time.Duration

	// Breaker configures the circuit breaker around the transport.
	Breaker BreakerConfig
}

// BreakerConfig configures the circuit breaker on an upstream client.
type BreakerConfig struct {
	// Enabled turns the breaker on. Disabled breakers pass every request.
	Enabled bool

	// MaxRequests is the number of probe requests allowed while half-open.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state used to clear
	// failure counts.
	Interval time.Duration

	// Timeout is how long the breaker stays open before half-opening.
	Timeout time.Duration

	// FailureThreshold is the number of consecutive transport failures
	// that trips the breaker.
	FailureThreshold uint32
}
