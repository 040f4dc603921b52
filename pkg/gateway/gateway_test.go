package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sundial-hq/aperture/pkg/dedup"
	"sundial-hq/aperture/pkg/keypool"
	"sundial-hq/aperture/pkg/limits/ratelimit"
	"sundial-hq/aperture/pkg/requestcache"
	"sundial-hq/aperture/pkg/settings"
	"sundial-hq/aperture/pkg/upstream"
)

// scriptedClient returns per-credential outcomes and records call order.
type scriptedClient struct {
	mu       sync.Mutex
	outcomes map[string]error
	content  string
	calls    []string
	block    chan struct{}
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{
		outcomes: make(map[string]error),
		content:  "generated",
	}
}

func (c *scriptedClient) Generate(ctx context.Context, credential string, req *upstream.GenerationRequest) (*upstream.GenerationResponse, error) {
	c.mu.Lock()
	c.calls = append(c.calls, credential)
	outcome := c.outcomes[credential]
	content := c.content
	block := c.block
	c.mu.Unlock()

	if block != nil {
		<-block
	}
	if outcome != nil {
		return nil, outcome
	}
	return &upstream.GenerationResponse{
		Model:        req.Model,
		Content:      content,
		FinishReason: "stop",
	}, nil
}

func (c *scriptedClient) Probe(ctx context.Context, credential string) error { return nil }

func (c *scriptedClient) ListModels(ctx context.Context, credential string) ([]string, error) {
	return []string{"gemini-2.0-flash"}, nil
}

func (c *scriptedClient) Endpoint() string { return "gemini" }
func (c *scriptedClient) Close() error     { return nil }

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *scriptedClient) callOrder() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

type testFixture struct {
	gateway *Gateway
	pool    *keypool.Pool
	store   *settings.MemoryStore
	client  *scriptedClient
}

func newFixture(t *testing.T, credentials []string, opts Options) *testFixture {
	t.Helper()

	store := settings.NewMemoryStore()
	pool := keypool.New(store, nil, keypool.Options{Cooldown: 50 * time.Millisecond})
	pool.SetCredentials(credentials)
	client := newScriptedClient()

	opts.Pool = pool
	opts.Dedup = dedup.New(nil, dedup.Options{})
	opts.Clients = map[string]upstream.Client{"gemini": client}
	opts.DefaultEndpoint = "gemini"

	return &testFixture{
		gateway: New(opts),
		pool:    pool,
		store:   store,
		client:  client,
	}
}

func testRequest(content string) *upstream.GenerationRequest {
	return &upstream.GenerationRequest{
		Model:    "gemini-2.0-flash",
		Messages: []upstream.Message{{Role: "user", Content: content}},
	}
}

func TestGenerateSuccess(t *testing.T) {
	f := newFixture(t, []string{"key-a"}, Options{})

	resp, err := f.gateway.Generate(context.Background(), "client-1", "", testRequest("hello"))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Content != "generated" {
		t.Errorf("Expected generated content, got %q", resp.Content)
	}
}

func TestGenerateEmptyPoolExhausted(t *testing.T) {
	f := newFixture(t, nil, Options{})

	_, err := f.gateway.Generate(context.Background(), "client-1", "", testRequest("hello"))
	if !errors.Is(err, keypool.ErrAllKeysExhausted) {
		t.Errorf("Expected ErrAllKeysExhausted, got %v", err)
	}
}

func TestGenerateUnknownEndpoint(t *testing.T) {
	f := newFixture(t, []string{"key-a"}, Options{})

	_, err := f.gateway.Generate(context.Background(), "client-1", "vertex", testRequest("hello"))
	if !errors.Is(err, ErrUnknownEndpoint) {
		t.Errorf("Expected ErrUnknownEndpoint, got %v", err)
	}
}

func TestGenerateRotatesPastAuthFailure(t *testing.T) {
	f := newFixture(t, []string{"key-a", "key-b"}, Options{})
	f.client.outcomes["key-a"] = &upstream.AuthError{Endpoint: "gemini", StatusCode: 403, Message: "denied"}

	resp, err := f.gateway.Generate(context.Background(), "client-1", "", testRequest("hello"))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp == nil {
		t.Fatal("Expected a response from the second credential")
	}

	order := f.client.callOrder()
	if len(order) != 2 || order[0] != "key-a" || order[1] != "key-b" {
		t.Errorf("Expected rotation key-a then key-b, got %v", order)
	}

	// The rejected credential is evicted and persisted.
	if f.pool.Contains("key-a") {
		t.Error("Expected key-a evicted after the auth failure")
	}
	state, err := f.store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !state.HasInvalid("key-a") {
		t.Error("Expected key-a in the persisted invalid set")
	}
}

func TestGenerateAllCredentialsFailing(t *testing.T) {
	f := newFixture(t, []string{"key-a", "key-b"}, Options{})
	f.client.outcomes["key-a"] = &upstream.TransientError{Endpoint: "gemini", StatusCode: 503}
	f.client.outcomes["key-b"] = &upstream.TransientError{Endpoint: "gemini", StatusCode: 503}

	_, err := f.gateway.Generate(context.Background(), "client-1", "", testRequest("hello"))
	if !upstream.IsTransientError(err) {
		t.Errorf("Expected the last transient error surfaced, got %v", err)
	}
	if f.client.callCount() != 2 {
		t.Errorf("Expected one attempt per credential, got %d", f.client.callCount())
	}
	if f.pool.Size() != 2 {
		t.Error("Transient failures must not shrink the pool")
	}
}

func TestGenerateCacheHitSkipsUpstream(t *testing.T) {
	cache := requestcache.New(nil, requestcache.Options{})
	f := newFixture(t, []string{"key-a"}, Options{Cache: cache})

	if _, err := f.gateway.Generate(context.Background(), "client-1", "", testRequest("hello")); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if _, err := f.gateway.Generate(context.Background(), "client-1", "", testRequest("hello")); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if f.client.callCount() != 1 {
		t.Errorf("Expected the second request served from cache, got %d upstream calls", f.client.callCount())
	}
}

func TestGenerateDifferentRequestsMissCache(t *testing.T) {
	cache := requestcache.New(nil, requestcache.Options{})
	f := newFixture(t, []string{"key-a"}, Options{Cache: cache})

	f.gateway.Generate(context.Background(), "client-1", "", testRequest("hello"))
	f.gateway.Generate(context.Background(), "client-1", "", testRequest("goodbye"))

	if f.client.callCount() != 2 {
		t.Errorf("Expected 2 upstream calls for distinct requests, got %d", f.client.callCount())
	}
}

func TestGenerateCollapsesConcurrentIdenticalRequests(t *testing.T) {
	f := newFixture(t, []string{"key-a"}, Options{})
	f.client.block = make(chan struct{})

	const concurrent = 10
	var wg sync.WaitGroup
	responses := make([]*upstream.GenerationResponse, concurrent)
	errs := make([]error, concurrent)

	for i := 0; i < concurrent; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i], errs[i] = f.gateway.Generate(context.Background(), "client-1", "", testRequest("same"))
		}(i)
	}

	// Let all requests reach the pipeline, then release the upstream.
	time.Sleep(50 * time.Millisecond)
	close(f.client.block)
	wg.Wait()

	for i := 0; i < concurrent; i++ {
		if errs[i] != nil {
			t.Errorf("Request %d failed: %v", i, errs[i])
		}
	}
	if f.client.callCount() != 1 {
		t.Errorf("Expected 1 upstream call for identical concurrent requests, got %d", f.client.callCount())
	}
}

func TestGenerateRateLimited(t *testing.T) {
	limiter := ratelimit.New(nil, ratelimit.Options{RequestsPerMinute: 1, RequestsPerDay: 100})
	f := newFixture(t, []string{"key-a"}, Options{Limiter: limiter})

	if _, err := f.gateway.Generate(context.Background(), "client-1", "", testRequest("one")); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	_, err := f.gateway.Generate(context.Background(), "client-1", "", testRequest("two"))
	var rle *RateLimitedError
	if !errors.As(err, &rle) {
		t.Fatalf("Expected RateLimitedError, got %v", err)
	}
	if rle.Scope != "minute" {
		t.Errorf("Expected minute scope, got %s", rle.Scope)
	}

	// A different client is unaffected.
	if _, err := f.gateway.Generate(context.Background(), "client-2", "", testRequest("three")); err != nil {
		t.Errorf("Expected client-2 admitted, got %v", err)
	}
}

func TestGenerateOwnerErrorSharedWithWaiters(t *testing.T) {
	f := newFixture(t, []string{"key-a"}, Options{})
	f.client.outcomes["key-a"] = &upstream.TransientError{Endpoint: "gemini", StatusCode: 503}
	f.client.block = make(chan struct{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.gateway.Generate(context.Background(), "client-1", "", testRequest("same"))
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(f.client.block)
	wg.Wait()

	for i, err := range errs {
		if !upstream.IsTransientError(err) {
			t.Errorf("Request %d expected the owner's transient error, got %v", i, err)
		}
	}
}

func TestStatsSnapshot(t *testing.T) {
	cache := requestcache.New(nil, requestcache.Options{})
	limiter := ratelimit.New(nil, ratelimit.Options{})
	f := newFixture(t, []string{"key-a", "key-b"}, Options{Cache: cache, Limiter: limiter})

	if _, err := f.gateway.Generate(context.Background(), "client-1", "", testRequest("hello")); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	stats := f.gateway.Stats()
	if stats.PoolSize != 2 {
		t.Errorf("Expected pool size 2, got %d", stats.PoolSize)
	}
	if len(stats.Credentials) != 2 {
		t.Errorf("Expected 2 credential entries, got %d", len(stats.Credentials))
	}
	if stats.Cache == nil || stats.Cache.Entries != 1 {
		t.Error("Expected 1 cache entry in the snapshot")
	}
	if stats.Admission == nil || stats.Admission.Allowed != 1 {
		t.Error("Expected 1 admitted request in the snapshot")
	}
	if stats.InflightHandles != 0 {
		t.Errorf("Expected no in-flight handles, got %d", stats.InflightHandles)
	}
}
