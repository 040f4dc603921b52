package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

// credentialHeader carries the API key. Header-based auth keeps credentials
// out of URLs and therefore out of access logs.
const credentialHeader = "x-goog-api-key"

// HTTPClient is the HTTP implementation of Client for the Gemini-style
// generative API. Both the public Gemini endpoint and the Vertex-hosted
// variant speak the same wire format; they differ only in base URL, so both
// are served by this one implementation (see NewGeminiClient and
// NewVertexClient).
type HTTPClient struct {
	config  ClientConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// NewHTTPClient creates an upstream client with connection pooling and an
// optional circuit breaker around the transport.
func NewHTTPClient(config ClientConfig) *HTTPClient {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.ProbeTimeout == 0 {
		config.ProbeTimeout = 10 * time.Second
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 100
	}
	if config.MaxIdleConnsPerHost == 0 {
		config.MaxIdleConnsPerHost = 10
	}
	if config.IdleConnTimeout == 0 {
		config.IdleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	c := &HTTPClient{
		config: config,
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
	}

	if config.Breaker.Enabled {
		c.breaker = newBreaker(config.Endpoint, config.Breaker)
	}

	return c
}

// newBreaker builds the circuit breaker for an endpoint. Only transport and
// 5xx failures count toward tripping; credential rejections and rate limits
// say nothing about upstream health.
func newBreaker(name string, cfg BreakerConfig) *gobreaker.CircuitBreaker[*http.Response] {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 3
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}

	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	})
}

// Endpoint returns the upstream variant name.
func (c *HTTPClient) Endpoint() string {
	return c.config.Endpoint
}

// Close releases idle transport connections.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// ----------------------------------------------------------------------------
// Wire types
// ----------------------------------------------------------------------------

type generateContentRequest struct {
	Contents          []wireContent         `json:"contents"`
	SystemInstruction *wireContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *wireGenerationConfig `json:"generationConfig,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text string `json:"text"`
}

type wireGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content      wireContent `json:"content"`
		FinishReason string      `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

type listModelsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Reason string `json:"reason"`
		} `json:"details"`
	} `json:"error"`
}

// ----------------------------------------------------------------------------
// Client implementation
// ----------------------------------------------------------------------------

// Generate performs one generation call with the given credential.
func (c *HTTPClient) Generate(ctx context.Context, credential string, req *GenerationRequest) (*GenerationResponse, error) {
	wireReq := toWireRequest(req)
	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("failed to encode generation request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(c.config.BaseURL, "/"), req.Model)

	resp, err := c.doRequest(ctx, http.MethodPost, url, credential, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyHTTPError(resp)
	}

	var wireResp generateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&wireResp); err != nil {
		return nil, &TransientError{
			Endpoint: c.config.Endpoint,
			Message:  "malformed generation response",
			Cause:    err,
		}
	}

	if len(wireResp.Candidates) == 0 {
		return nil, &TransientError{
			Endpoint: c.config.Endpoint,
			Message:  "generation response contained no candidates",
		}
	}

	candidate := wireResp.Candidates[0]
	var content strings.Builder
	for _, part := range candidate.Content.Parts {
		content.WriteString(part.Text)
	}

	return &GenerationResponse{
		Model:        req.Model,
		Content:      content.String(),
		FinishReason: strings.ToLower(candidate.FinishReason),
		PromptTokens: wireResp.UsageMetadata.PromptTokenCount,
		OutputTokens: wireResp.UsageMetadata.CandidatesTokenCount,
	}, nil
}

// Probe performs a lightweight model-list call with a short timeout. A nil
// return means the upstream unambiguously accepted the credential.
func (c *HTTPClient) Probe(ctx context.Context, credential string) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ProbeTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/models?pageSize=1", strings.TrimRight(c.config.BaseURL, "/"))

	resp, err := c.doRequest(ctx, http.MethodGet, url, credential, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.classifyHTTPError(resp)
	}

	io.Copy(io.Discard, resp.Body)
	return nil
}

// ListModels returns the model identifiers the upstream serves for the
// credential, with the "models/" resource prefix stripped.
func (c *HTTPClient) ListModels(ctx context.Context, credential string) ([]string, error) {
	url := fmt.Sprintf("%s/models?pageSize=100", strings.TrimRight(c.config.BaseURL, "/"))

	resp, err := c.doRequest(ctx, http.MethodGet, url, credential, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyHTTPError(resp)
	}

	var wireResp listModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&wireResp); err != nil {
		return nil, &TransientError{
			Endpoint: c.config.Endpoint,
			Message:  "malformed model list response",
			Cause:    err,
		}
	}

	models := make([]string, 0, len(wireResp.Models))
	for _, m := range wireResp.Models {
		models = append(models, strings.TrimPrefix(m.Name, "models/"))
	}
	return models, nil
}

// doRequest executes one HTTP request through the circuit breaker.
// Network-level failures are wrapped as TransientError; HTTP error statuses
// are left to the caller to classify so the breaker only counts transport
// and 5xx failures.
func (c *HTTPClient) doRequest(ctx context.Context, method, url, credential string, body []byte) (*http.Response, error) {
	execute := func() (*http.Response, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set(credentialHeader, credential)

		resp, err := c.client.Do(httpReq)
		if err != nil {
			return nil, &TransientError{
				Endpoint: c.config.Endpoint,
				Message:  "request failed",
				Cause:    err,
			}
		}

		// Surface 5xx to the breaker as failures; everything else is a
		// breaker success even if the caller will classify it as an error.
		if resp.StatusCode >= 500 {
			defer resp.Body.Close()
			return nil, c.classifyHTTPError(resp)
		}

		return resp, nil
	}

	if c.breaker == nil {
		return execute()
	}

	resp, err := c.breaker.Execute(execute)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &TransientError{
				Endpoint: c.config.Endpoint,
				Message:  "circuit breaker open",
				Cause:    err,
			}
		}
		return nil, err
	}
	return resp, nil
}

// classifyHTTPError maps a non-200 upstream response into the package error
// taxonomy. The body is consumed.
func (c *HTTPClient) classifyHTTPError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	message := strings.TrimSpace(string(raw))
	var wireErr errorResponse
	if err := json.Unmarshal(raw, &wireErr); err == nil && wireErr.Error.Message != "" {
		message = wireErr.Error.Message
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{
			Endpoint:   c.config.Endpoint,
			StatusCode: resp.StatusCode,
			Message:    message,
		}

	case resp.StatusCode == http.StatusBadRequest && isInvalidKeyReason(&wireErr):
		// The Gemini API reports bad API keys as 400 INVALID_ARGUMENT with
		// an API_KEY_INVALID detail rather than a 401.
		return &AuthError{
			Endpoint:   c.config.Endpoint,
			StatusCode: resp.StatusCode,
			Message:    message,
		}

	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			Endpoint:   c.config.Endpoint,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    message,
		}

	default:
		return &TransientError{
			Endpoint:   c.config.Endpoint,
			StatusCode: resp.StatusCode,
			Message:    message,
		}
	}
}

// isInvalidKeyReason reports whether a 400 response carries the
// API_KEY_INVALID detail used by the Gemini API for rejected keys.
func isInvalidKeyReason(wireErr *errorResponse) bool {
	for _, d := range wireErr.Error.Details {
		if d.Reason == "API_KEY_INVALID" {
			return true
		}
	}
	return strings.Contains(wireErr.Error.Message, "API key not valid")
}

// parseRetryAfter parses a Retry-After header value in seconds.
// Returns zero on absent or unparseable values.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// toWireRequest converts the provider-agnostic request to the Gemini wire
// format. A leading "system" message becomes the system instruction.
func toWireRequest(req *GenerationRequest) *generateContentRequest {
	wireReq := &generateContentRequest{}

	for _, msg := range req.Messages {
		if msg.Role == "system" && wireReq.SystemInstruction == nil {
			wireReq.SystemInstruction = &wireContent{
				Parts: []wirePart{{Text: msg.Content}},
			}
			continue
		}

		role := msg.Role
		if role == "assistant" {
			role = "model"
		}
		wireReq.Contents = append(wireReq.Contents, wireContent{
			Role:  role,
			Parts: []wirePart{{Text: msg.Content}},
		})
	}

	params := req.Params
	if params.Temperature != nil || params.TopP != nil || params.TopK != nil ||
		params.MaxOutputTokens != nil || len(params.StopSequences) > 0 {
		wireReq.GenerationConfig = &wireGenerationConfig{
			Temperature:     params.Temperature,
			TopP:            params.TopP,
			TopK:            params.TopK,
			MaxOutputTokens: params.MaxOutputTokens,
			StopSequences:   params.StopSequences,
		}
	}

	return wireReq
}
