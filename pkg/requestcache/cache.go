package requestcache

import (
	"log/slog"
	"sync"
	"time"

	"sundial-hq/aperture/pkg/upstream"
)

// entry is one cached response with its storage timestamp.
type entry struct {
	response *upstream.GenerationResponse
	storedAt time.Time
}

// Cache stores completed generation responses keyed by request
// fingerprint. Entries expire logically after the configured TTL and are
// reclaimed by the periodic sweep; lookups check expiry themselves so a
// stale entry is never served between sweeps. When an insert pushes the
// cache past capacity the oldest entries by storage time are evicted.
//
// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry

	ttl        time.Duration
	maxEntries int
	logger     *slog.Logger

	hits   int64
	misses int64
}

// Options configures a Cache.
type Options struct {
	// TTL is the logical lifetime of an entry. Default: 20m
	TTL time.Duration

	// MaxEntries bounds the cache size. Default: 500
	MaxEntries int
}

// New creates an empty cache.
func New(logger *slog.Logger, opts Options) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TTL == 0 {
		opts.TTL = 20 * time.Minute
	}
	if opts.MaxEntries == 0 {
		opts.MaxEntries = 500
	}

	return &Cache{
		entries:    make(map[string]entry),
		ttl:        opts.TTL,
		maxEntries: opts.MaxEntries,
		logger:     logger.With("component", "requestcache"),
	}
}

// Lookup returns the cached response for a fingerprint, or nil when the
// entry is absent or expired. Expired entries found here are removed
// immediately rather than waiting for the sweep.
func (c *Cache) Lookup(fingerprint string) *upstream.GenerationResponse {
	c.mu.RLock()
	e, ok := c.entries[fingerprint]
	c.mu.RUnlock()

	if !ok {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return nil
	}

	if time.Since(e.storedAt) >= c.ttl {
		c.mu.Lock()
		// Recheck under the write lock; a concurrent Store may have
		// refreshed the entry.
		if cur, ok := c.entries[fingerprint]; ok && time.Since(cur.storedAt) >= c.ttl {
			delete(c.entries, fingerprint)
		}
		c.misses++
		c.mu.Unlock()
		return nil
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return e.response
}

// Store inserts or refreshes the response for a fingerprint. A refresh
// restarts the entry's TTL. If the insert exceeds capacity the oldest
// entries are evicted until the cache fits.
func (c *Cache) Store(fingerprint string, response *upstream.GenerationResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[fingerprint] = entry{response: response, storedAt: time.Now()}

	for len(c.entries) > c.maxEntries {
		c.evictOldestLocked()
	}
}

// evictOldestLocked removes the entry with the earliest storage time.
// Caller must hold the write lock.
func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for key, e := range c.entries {
		if first || e.storedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = e.storedAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
		c.logger.Debug("cache entry evicted", "fingerprint", shortFingerprint(oldestKey))
	}
}

// Sweep removes every expired entry and returns how many were reclaimed.
// Called periodically by the maintenance sweeper.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, key)
			removed++
		}
	}

	if removed > 0 {
		c.logger.Debug("cache sweep reclaimed entries", "removed", removed, "remaining", len(c.entries))
	}
	return removed
}

// Len returns the current entry count, expired entries included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	// Entries is the current entry count.
	Entries int `json:"entries"`

	// Hits is the number of successful lookups since start.
	Hits int64 `json:"hits"`

	// Misses is the number of failed lookups since start.
	Misses int64 `json:"misses"`
}

// Stats returns current cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}

// shortFingerprint truncates a fingerprint for log lines.
func shortFingerprint(fp string) string {
	if len(fp) <= 12 {
		return fp
	}
	return fp[:12]
}
