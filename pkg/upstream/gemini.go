package upstream

// DefaultGeminiBaseURL is the public Gemini API endpoint.
const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// DefaultVertexBaseURL is the Vertex-hosted variant of the same API
// (express mode, API-key authenticated).
const DefaultVertexBaseURL = "https://aiplatform.googleapis.com/v1beta1/publishers/google"

// NewGeminiClient creates a client for the public Gemini API endpoint.
func NewGeminiClient(config ClientConfig) *HTTPClient {
	config.Endpoint = "gemini"
	if config.BaseURL == "" {
		config.BaseURL = DefaultGeminiBaseURL
	}
	return NewHTTPClient(config)
}

// NewVertexClient creates a client for the Vertex-hosted variant. The wire
// format is identical to the public endpoint; only base URL differs.
func NewVertexClient(config ClientConfig) *HTTPClient {
	config.Endpoint = "vertex"
	if config.BaseURL == "" {
		config.BaseURL = DefaultVertexBaseURL
	}
	return NewHTTPClient(config)
}
