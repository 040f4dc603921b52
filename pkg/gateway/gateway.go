package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"sundial-hq/aperture/pkg/dedup"
	"sundial-hq/aperture/pkg/keypool"
	"sundial-hq/aperture/pkg/limits/ratelimit"
	"sundial-hq/aperture/pkg/requestcache"
	"sundial-hq/aperture/pkg/telemetry/metrics"
	"sundial-hq/aperture/pkg/upstream"
)

// Gateway runs the request pipeline: admission, fingerprinting, cache
// lookup, in-flight deduplication, credential rotation and the upstream
// call. It is the only component that touches more than one subsystem.
type Gateway struct {
	pool    *keypool.Pool
	cache   *requestcache.Cache
	dedup   *dedup.Manager
	limiter *ratelimit.Limiter
	catalog *keypool.ModelCatalog

	clients         map[string]upstream.Client
	defaultEndpoint string

	metrics *metrics.Collector
	logger  *slog.Logger
}

// Options configures a Gateway. Cache and limiter may be nil when the
// corresponding feature is disabled; dedup and the pool are mandatory.
type Options struct {
	Pool            *keypool.Pool
	Cache           *requestcache.Cache
	Dedup           *dedup.Manager
	Limiter         *ratelimit.Limiter
	Catalog         *keypool.ModelCatalog
	Clients         map[string]upstream.Client
	DefaultEndpoint string
	Metrics         *metrics.Collector
	Logger          *slog.Logger
}

// New creates a gateway from its assembled subsystems.
func New(opts Options) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultEndpoint == "" {
		opts.DefaultEndpoint = "gemini"
	}

	return &Gateway{
		pool:            opts.Pool,
		cache:           opts.Cache,
		dedup:           opts.Dedup,
		limiter:         opts.Limiter,
		catalog:         opts.Catalog,
		clients:         opts.Clients,
		defaultEndpoint: opts.DefaultEndpoint,
		metrics:         opts.Metrics,
		logger:          logger.With("component", "gateway"),
	}
}

// Generate runs one request through the pipeline. The client string
// identifies the caller for admission; endpoint selects the upstream
// variant, empty meaning the configured default.
func (g *Gateway) Generate(ctx context.Context, client, endpoint string, req *upstream.GenerationRequest) (*upstream.GenerationResponse, error) {
	if g.limiter != nil {
		result := g.limiter.Allow(client)
		if !result.Allowed {
			if g.metrics != nil {
				g.metrics.RecordAdmissionDenied(result.Scope)
			}
			return nil, &RateLimitedError{
				Scope:      result.Scope,
				Limit:      result.Limit,
				RetryAfter: result.RetryAfter,
			}
		}
		if g.metrics != nil {
			g.metrics.RecordAdmissionAllowed()
		}
	}

	upstreamClient, err := g.selectClient(endpoint)
	if err != nil {
		return nil, err
	}

	fingerprint, err := requestcache.Fingerprint(req)
	if err != nil {
		return nil, err
	}

	if resp := g.cacheLookup(fingerprint); resp != nil {
		return resp, nil
	}

	// A force-cleared handle wakes waiters with ErrHandleExpired; one
	// retry lets them take ownership themselves.
	for attempt := 0; ; attempt++ {
		resp, err := g.joinOrExecute(ctx, upstreamClient, fingerprint, req)
		if errors.Is(err, dedup.ErrHandleExpired) && attempt == 0 {
			continue
		}
		return resp, err
	}
}

// joinOrExecute attaches to an existing in-flight execution or performs
// the upstream call as owner.
func (g *Gateway) joinOrExecute(ctx context.Context, client upstream.Client, fingerprint string, req *upstream.GenerationRequest) (*upstream.GenerationResponse, error) {
	handle, isOwner := g.dedup.JoinOrCreate(fingerprint)
	if g.metrics != nil {
		g.metrics.SetInflightHandles(g.dedup.Len())
	}

	if !isOwner {
		if g.metrics != nil {
			g.metrics.RecordDedupJoin("waiter")
		}
		return handle.Wait(ctx)
	}

	if g.metrics != nil {
		g.metrics.RecordDedupJoin("owner")
	}

	resp, err := g.execute(ctx, client, req)
	if err == nil && g.cache != nil {
		g.cache.Store(fingerprint, resp)
		if g.metrics != nil {
			g.metrics.SetCacheEntries(g.cache.Len())
		}
	}

	g.dedup.Complete(handle, resp, err)
	if g.metrics != nil {
		g.metrics.SetInflightHandles(g.dedup.Len())
	}
	return resp, err
}

// execute walks the credential rotation until a credential succeeds or
// the pool is exhausted. Auth failures evict and move on; rate limits and
// transient failures cool the credential down and move on. One full sweep
// of the pool bounds the attempts.
func (g *Gateway) execute(ctx context.Context, client upstream.Client, req *upstream.GenerationRequest) (*upstream.GenerationResponse, error) {
	attempts := g.pool.Size()
	if attempts == 0 {
		return nil, keypool.ErrAllKeysExhausted
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		credential, err := g.pool.Acquire()
		if err != nil {
			break
		}

		start := time.Now()
		resp, err := client.Generate(ctx, credential, req)
		elapsed := time.Since(start)

		if err == nil {
			g.pool.RecordSuccess(credential)
			g.recordUpstream(client.Endpoint(), "success", elapsed)
			return resp, nil
		}

		lastErr = err
		g.pool.RecordFailure(ctx, credential, err)
		g.recordFailure(client.Endpoint(), credential, err, elapsed)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, keypool.ErrAllKeysExhausted
}

// selectClient resolves the upstream variant for a request.
func (g *Gateway) selectClient(endpoint string) (upstream.Client, error) {
	if endpoint == "" {
		endpoint = g.defaultEndpoint
	}
	client, ok := g.clients[endpoint]
	if !ok {
		return nil, ErrUnknownEndpoint
	}
	return client, nil
}

// cacheLookup consults the response cache when caching is enabled.
func (g *Gateway) cacheLookup(fingerprint string) *upstream.GenerationResponse {
	if g.cache == nil {
		return nil
	}

	resp := g.cache.Lookup(fingerprint)
	if g.metrics != nil {
		if resp != nil {
			g.metrics.RecordCacheHit()
		} else {
			g.metrics.RecordCacheMiss()
		}
	}
	return resp
}

// recordFailure classifies a failed upstream attempt for metrics and the
// pool size gauge.
func (g *Gateway) recordFailure(endpoint, credential string, err error, elapsed time.Duration) {
	class := "transient"
	switch {
	case upstream.IsAuthError(err):
		class = "auth"
		if g.metrics != nil {
			g.metrics.RecordCredentialEvicted()
		}
	case upstream.IsRateLimitError(err):
		class = "ratelimit"
	}

	if g.metrics != nil {
		g.metrics.RecordCredentialFailure(class)
		g.metrics.SetPoolSize(g.pool.Size())
	}
	g.recordUpstream(endpoint, class, elapsed)

	g.logger.Warn("upstream attempt failed",
		"endpoint", endpoint,
		"credential", keypool.Redact(credential),
		"class", class,
		"error", err,
	)
}

func (g *Gateway) recordUpstream(endpoint, outcome string, elapsed time.Duration) {
	if g.metrics != nil {
		g.metrics.RecordUpstreamRequest(endpoint, outcome, elapsed.Seconds())
	}
}

// Models returns the model catalog loaded at startup.
func (g *Gateway) Models() []string {
	if g.catalog == nil {
		return nil
	}
	return g.catalog.Models()
}

// Stats is the operational snapshot served by the stats endpoint.
type Stats struct {
	// PoolSize is the current credential pool size.
	PoolSize int `json:"pool_size"`

	// EvictedCredentials counts credentials permanently evicted as
	// invalid since startup.
	EvictedCredentials int `json:"evicted_credentials"`

	// Credentials holds per-credential usage, redacted.
	Credentials []keypool.CredentialStats `json:"credentials"`

	// Cache holds response cache counters when caching is enabled.
	Cache *requestcache.Stats `json:"cache,omitempty"`

	// InflightHandles is the current deduplication handle count.
	InflightHandles int `json:"inflight_handles"`

	// Admission holds rate limiter counters when limiting is enabled.
	Admission *ratelimit.Stats `json:"admission,omitempty"`
}

// Stats assembles the current operational snapshot.
func (g *Gateway) Stats() Stats {
	stats := Stats{
		PoolSize:           g.pool.Size(),
		EvictedCredentials: g.pool.Evicted(),
		Credentials:        g.pool.Stats(),
		InflightHandles:    g.dedup.Len(),
	}
	if g.cache != nil {
		cs := g.cache.Stats()
		stats.Cache = &cs
	}
	if g.limiter != nil {
		ls := g.limiter.Stats()
		stats.Admission = &ls
	}
	return stats
}
