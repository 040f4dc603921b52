package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:7860"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 120 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// CORS defaults
	DefaultCORSEnabled = true
	DefaultCORSMaxAge  = 3600 // 1 hour

	// Upstream defaults
	DefaultEndpoint             = "gemini"
	DefaultUpstreamTimeout      = 60 * time.Second
	DefaultUpstreamProbeTimeout = 10 * time.Second

	// Breaker defaults
	DefaultBreakerEnabled          = true
	DefaultBreakerFailureThreshold = uint32(5)
	DefaultBreakerCooldown         = 30 * time.Second

	// Credential pool defaults
	DefaultProbeInterval      = 250 * time.Millisecond
	DefaultCredentialCooldown = 60 * time.Second

	// Cache defaults
	DefaultCacheEnabled    = true
	DefaultCacheExpiryTime = 20 * time.Minute
	DefaultCacheMaxEntries = 500

	// Dedup defaults
	DefaultMaxHandleLifetime = 5 * time.Minute

	// Limits defaults
	DefaultLimitsEnabled     = true
	DefaultRequestsPerMinute = 30
	DefaultRequestsPerDay    = 600
	DefaultClientRetention   = 48 * time.Hour

	// Maintenance defaults
	DefaultSweepInterval = time.Minute

	// Settings defaults
	DefaultSettingsBackend    = "file"
	DefaultSettingsFilePath   = "data/aperture-state.yaml"
	DefaultSettingsSQLitePath = "data/aperture.db"

	// Telemetry defaults
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultRedactSecrets    = true
	DefaultMetricsEnabled   = true
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "aperture"
)

// ApplyDefaults fills in default values for any zero-valued configuration
// fields. It is called by LoadConfig before validation so a minimal YAML
// file produces a fully usable configuration.
//
// Boolean fields that default to true (cache.enabled, limits.enabled,
// cors.enabled, breakers, metrics, redaction) cannot be distinguished from
// an explicit false after unmarshaling, so NewConfig pre-sets them and YAML
// overrides them.
func ApplyDefaults(cfg *Config) {
	// Server
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.CORS.MaxAge == 0 {
		cfg.Server.CORS.MaxAge = DefaultCORSMaxAge
	}
	if len(cfg.Server.CORS.AllowedMethods) == 0 {
		cfg.Server.CORS.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}

	// Upstream
	if cfg.Upstream.DefaultEndpoint == "" {
		cfg.Upstream.DefaultEndpoint = DefaultEndpoint
	}
	applyEndpointDefaults(&cfg.Upstream.Gemini)
	applyEndpointDefaults(&cfg.Upstream.Vertex)

	// Credentials
	if cfg.Credentials.ProbeInterval == 0 {
		cfg.Credentials.ProbeInterval = DefaultProbeInterval
	}
	if cfg.Credentials.Cooldown == 0 {
		cfg.Credentials.Cooldown = DefaultCredentialCooldown
	}

	// Cache
	if cfg.Cache.ExpiryTime == 0 {
		cfg.Cache.ExpiryTime = DefaultCacheExpiryTime
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = DefaultCacheMaxEntries
	}

	// Dedup
	if cfg.Dedup.MaxHandleLifetime == 0 {
		cfg.Dedup.MaxHandleLifetime = DefaultMaxHandleLifetime
	}

	// Limits
	if cfg.Limits.RequestsPerMinute == 0 {
		cfg.Limits.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if cfg.Limits.RequestsPerDay == 0 {
		cfg.Limits.RequestsPerDay = DefaultRequestsPerDay
	}
	if cfg.Limits.ClientRetention == 0 {
		cfg.Limits.ClientRetention = DefaultClientRetention
	}

	// Maintenance
	if cfg.Maintenance.SweepInterval == 0 {
		cfg.Maintenance.SweepInterval = DefaultSweepInterval
	}

	// Settings
	if cfg.Settings.Backend == "" {
		cfg.Settings.Backend = DefaultSettingsBackend
	}
	if cfg.Settings.Path == "" {
		switch cfg.Settings.Backend {
		case "sqlite":
			cfg.Settings.Path = DefaultSettingsSQLitePath
		default:
			cfg.Settings.Path = DefaultSettingsFilePath
		}
	}

	// Telemetry
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
}

// applyEndpointDefaults fills defaults for one upstream endpoint section.
func applyEndpointDefaults(ec *EndpointConfig) {
	if ec.Timeout == 0 {
		ec.Timeout = DefaultUpstreamTimeout
	}
	if ec.ProbeTimeout == 0 {
		ec.ProbeTimeout = DefaultUpstreamProbeTimeout
	}
	if ec.Breaker.FailureThreshold == 0 {
		ec.Breaker.FailureThreshold = DefaultBreakerFailureThreshold
	}
	if ec.Breaker.Cooldown == 0 {
		ec.Breaker.Cooldown = DefaultBreakerCooldown
	}
}

// NewConfig returns a Config with every default applied, including the
// booleans that default to true. YAML unmarshaling into this value lets an
// explicit `enabled: false` survive.
func NewConfig() *Config {
	cfg := &Config{}
	cfg.Server.CORS.Enabled = DefaultCORSEnabled
	cfg.Upstream.Gemini.Enabled = true
	cfg.Upstream.Gemini.Breaker.Enabled = DefaultBreakerEnabled
	cfg.Upstream.Vertex.Breaker.Enabled = DefaultBreakerEnabled
	cfg.Cache.Enabled = DefaultCacheEnabled
	cfg.Limits.Enabled = DefaultLimitsEnabled
	cfg.Telemetry.Logging.RedactSecrets = DefaultRedactSecrets
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	ApplyDefaults(cfg)
	return cfg
}
