package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns every Prometheus metric the gateway exports, registered
// on a private registry so tests can create collectors freely.
type Collector struct {
	registry *prometheus.Registry

	poolSize          prometheus.Gauge
	credentialEvicted prometheus.Counter
	credentialFailure *prometheus.CounterVec

	cacheEntries   prometheus.Gauge
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheEvictions prometheus.Counter

	inflightHandles prometheus.Gauge
	dedupJoined     *prometheus.CounterVec

	admissionAllowed prometheus.Counter
	admissionDenied  *prometheus.CounterVec

	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
}

// NewCollector creates and registers the metric set under the given
// namespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "aperture"
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),

		poolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "credential_pool_size",
			Help:      "Number of credentials currently in rotation.",
		}),
		credentialEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credentials_evicted_total",
			Help:      "Credentials permanently evicted as invalid.",
		}),
		credentialFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_failures_total",
			Help:      "Credential failures by error class.",
		}, []string{"class"}),

		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Current response cache entry count.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Response cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Response cache misses.",
		}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Response cache entries evicted for capacity or age.",
		}),

		inflightHandles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_handles",
			Help:      "In-flight deduplication handles.",
		}),
		dedupJoined: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_joined_total",
			Help:      "Requests entering deduplication by role.",
		}, []string{"role"}),

		admissionAllowed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_allowed_total",
			Help:      "Requests admitted by the rate limiter.",
		}),
		admissionDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_denied_total",
			Help:      "Requests denied by the rate limiter, by window.",
		}, []string{"scope"}),

		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream generation attempts by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_latency_seconds",
			Help:      "Upstream generation latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"endpoint"}),
	}

	c.registry.MustRegister(
		c.poolSize,
		c.credentialEvicted,
		c.credentialFailure,
		c.cacheEntries,
		c.cacheHits,
		c.cacheMisses,
		c.cacheEvictions,
		c.inflightHandles,
		c.dedupJoined,
		c.admissionAllowed,
		c.admissionDenied,
		c.upstreamRequests,
		c.upstreamLatency,
	)

	return c
}

// Handler returns the scrape handler for the private registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SetPoolSize records the current pool size.
func (c *Collector) SetPoolSize(n int) {
	c.poolSize.Set(float64(n))
}

// RecordCredentialEvicted counts a permanent eviction.
func (c *Collector) RecordCredentialEvicted() {
	c.credentialEvicted.Inc()
}

// RecordCredentialFailure counts a credential failure by error class
// ("auth", "ratelimit", "transient").
func (c *Collector) RecordCredentialFailure(class string) {
	c.credentialFailure.WithLabelValues(class).Inc()
}

// SetCacheEntries records the current cache size.
func (c *Collector) SetCacheEntries(n int) {
	c.cacheEntries.Set(float64(n))
}

// RecordCacheHit counts a cache hit.
func (c *Collector) RecordCacheHit() {
	c.cacheHits.Inc()
}

// RecordCacheMiss counts a cache miss.
func (c *Collector) RecordCacheMiss() {
	c.cacheMisses.Inc()
}

// RecordCacheEvictions counts n evicted entries.
func (c *Collector) RecordCacheEvictions(n int) {
	c.cacheEvictions.Add(float64(n))
}

// SetInflightHandles records the current dedup handle count.
func (c *Collector) SetInflightHandles(n int) {
	c.inflightHandles.Set(float64(n))
}

// RecordDedupJoin counts a deduplication join by role ("owner" or
// "waiter").
func (c *Collector) RecordDedupJoin(role string) {
	c.dedupJoined.WithLabelValues(role).Inc()
}

// RecordAdmissionAllowed counts an admitted request.
func (c *Collector) RecordAdmissionAllowed() {
	c.admissionAllowed.Inc()
}

// RecordAdmissionDenied counts a denied request by exhausted window.
func (c *Collector) RecordAdmissionDenied(scope string) {
	c.admissionDenied.WithLabelValues(scope).Inc()
}

// RecordUpstreamRequest counts one upstream attempt with its latency.
func (c *Collector) RecordUpstreamRequest(endpoint, outcome string, seconds float64) {
	c.upstreamRequests.WithLabelValues(endpoint, outcome).Inc()
	c.upstreamLatency.WithLabelValues(endpoint).Observe(seconds)
}
