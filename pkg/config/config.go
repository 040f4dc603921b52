package config

import "time"

// Config is the root configuration structure for Aperture.
// It contains all configuration sections for the HTTP boundary, the
// upstream endpoints, the credential pool, caching, request deduplication,
// client rate limits, maintenance sweeps, persistence, and telemetry.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts, and CORS settings.
	Server ServerConfig `yaml:"server"`

	// Upstream contains configuration for the Gemini endpoint and its
	// Vertex-hosted variant.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Credentials contains the upstream API keys and the pool's
	// validation and rotation behavior.
	Credentials CredentialsConfig `yaml:"credentials"`

	// Cache contains response cache configuration (TTL, capacity).
	Cache CacheConfig `yaml:"cache"`

	// Dedup contains active-request deduplication configuration.
	Dedup DedupConfig `yaml:"dedup"`

	// Limits contains per-client admission control configuration.
	Limits LimitsConfig `yaml:"limits"`

	// Maintenance contains the cleanup scheduler configuration.
	Maintenance MaintenanceConfig `yaml:"maintenance"`

	// Settings contains persistence configuration for runtime state
	// (the invalid-credential set, usage counters).
	Settings SettingsConfig `yaml:"settings"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server boundary.
type ServerConfig struct {
	// ListenAddress is the address and port for the server to listen on.
	// Format: "host:port". Default: "127.0.0.1:7860"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of
	// the response. Generation calls can be slow; keep this generous.
	// Default: 120s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful
	// shutdown. Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size. Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS settings for the HTTP boundary.
type CORSConfig struct {
	// Enabled turns CORS handling on. Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins lists permitted origins. Empty means "*".
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods lists permitted methods.
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders lists permitted request headers.
	AllowedHeaders []string `yaml:"allowed_headers"`

	// MaxAge is the preflight cache lifetime in seconds. Default: 3600
	MaxAge int `yaml:"max_age"`
}

// UpstreamConfig contains configuration for both upstream endpoints.
type UpstreamConfig struct {
	// DefaultEndpoint selects which endpoint serves requests whose model
	// does not force a choice ("gemini" or "vertex"). Default: "gemini"
	DefaultEndpoint string `yaml:"default_endpoint"`

	// Gemini configures the public Gemini API endpoint.
	Gemini EndpointConfig `yaml:"gemini"`

	// Vertex configures the Vertex-hosted variant.
	Vertex EndpointConfig `yaml:"vertex"`
}

// EndpointConfig contains configuration for one upstream endpoint.
type EndpointConfig struct {
	// Enabled turns the endpoint on.
	Enabled bool `yaml:"enabled"`

	// BaseURL overrides the endpoint's API base URL. Empty uses the
	// well-known default.
	BaseURL string `yaml:"base_url"`

	// Timeout is the per-request timeout for generation calls.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout"`

	// ProbeTimeout is the per-request timeout for validation probes.
	// Default: 10s
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// Breaker configures the circuit breaker on the endpoint transport.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig contains circuit breaker settings for an endpoint.
type BreakerConfig struct {
	// Enabled turns the breaker on. Default: true
	Enabled bool `yaml:"enabled"`

	// FailureThreshold is the number of consecutive transport failures
	// that trips the breaker. Default: 5
	FailureThreshold uint32 `yaml:"failure_threshold"`

	// Cooldown is how long the breaker stays open before probing again.
	// Default: 30s
	Cooldown time.Duration `yaml:"cooldown"`
}

// CredentialsConfig contains the credential pool configuration.
type CredentialsConfig struct {
	// Keys is the initial credential list, in priority order. The startup
	// reconciler probes them in this order.
	Keys []string `yaml:"keys"`

	// SkipValidation trusts the configured key list as-is and bypasses
	// startup validation entirely. Operator opt-out for trusted
	// environments. Default: false
	SkipValidation bool `yaml:"skip_validation"`

	// ResetInvalid discards the persisted invalid-credential set on the
	// next load, giving every configured key a fresh chance.
	// Default: false
	ResetInvalid bool `yaml:"reset_invalid"`

	// ProbeInterval is the pacing delay between background validation
	// probes, so a large key list does not hammer the upstream.
	// Default: 250ms
	ProbeInterval time.Duration `yaml:"probe_interval"`

	// Cooldown is how long a transiently failing credential is
	// deprioritized before rejoining rotation. Default: 60s
	Cooldown time.Duration `yaml:"cooldown"`

	// MaxAttempts caps how many credentials one request may try before
	// the gateway reports exhaustion. Zero means the pool size at the
	// time of the request. Default: 0
	MaxAttempts int `yaml:"max_attempts"`
}

// CacheConfig contains response cache settings.
type CacheConfig struct {
	// Enabled turns response caching on. Default: true
	Enabled bool `yaml:"enabled"`

	// ExpiryTime is the logical TTL of a cache entry. Entries older than
	// this are misses even before the sweep removes them. Default: 20m
	ExpiryTime time.Duration `yaml:"expiry_time"`

	// MaxEntries is the soft capacity ceiling. Exceeding it evicts the
	// oldest entry. Default: 500
	MaxEntries int `yaml:"max_entries"`
}

// DedupConfig contains active-request deduplication settings.
type DedupConfig struct {
	// MaxHandleLifetime is the force-clear age for in-flight handles,
	// guarding against an owner that never completes. Default: 5m
	MaxHandleLifetime time.Duration `yaml:"max_handle_lifetime"`
}

// LimitsConfig contains per-client admission control settings.
type LimitsConfig struct {
	// Enabled turns admission control on. Default: true
	Enabled bool `yaml:"enabled"`

	// RequestsPerMinute is the per-client fixed-window minute ceiling.
	// Zero disables the minute window. Default: 30
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// RequestsPerDay is the per-client fixed-window day ceiling.
	// Zero disables the day window. Default: 600
	RequestsPerDay int `yaml:"requests_per_day"`

	// ClientRetention is how long an inactive client's counters are kept
	// before the sweep drops them. Default: 48h
	ClientRetention time.Duration `yaml:"client_retention"`
}

// MaintenanceConfig contains the cleanup scheduler settings.
type MaintenanceConfig struct {
	// SweepInterval is how often expired cache entries and stale dedup
	// handles are swept. Default: 1m
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// CompactSchedule is a cron expression for settings-store compaction
	// (e.g., "0 4 * * *"). Empty disables scheduled compaction.
	CompactSchedule string `yaml:"compact_schedule"`
}

// SettingsConfig contains persistence configuration for runtime state.
type SettingsConfig struct {
	// Backend selects the store: "memory", "file", or "sqlite".
	// Default: "file"
	Backend string `yaml:"backend"`

	// Path is the file path for the file and sqlite backends.
	// Defaults: "data/aperture-state.yaml" (file), "data/aperture.db"
	// (sqlite).
	Path string `yaml:"path"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format ("json" or "text"). Default: "json"
	Format string `yaml:"format"`

	// RedactSecrets enables credential redaction in log output.
	// Default: true
	RedactSecrets bool `yaml:"redact_secrets"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled turns the /metrics endpoint on. Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the metrics endpoint path. Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name namespace. Default: "aperture"
	Namespace string `yaml:"namespace"`
}
