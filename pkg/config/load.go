package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	// Unmarshal into a fully defaulted config so explicit `enabled: false`
	// values survive the true-by-default booleans.
	cfg := NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. Environment variables follow the
// naming convention APERTURE_SECTION_FIELD (e.g.,
// APERTURE_SERVER_LISTEN_ADDRESS) and always take precedence over
// file-based configuration.
//
// The loading sequence is:
//  1. Load YAML from file
//  2. Apply default values
//  3. Apply environment variable overrides
//  4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Variables use the format APERTURE_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if val := os.Getenv("APERTURE_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("APERTURE_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("APERTURE_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Upstream overrides
	if val := os.Getenv("APERTURE_UPSTREAM_DEFAULT_ENDPOINT"); val != "" {
		cfg.Upstream.DefaultEndpoint = val
	}
	if val := os.Getenv("APERTURE_UPSTREAM_GEMINI_BASE_URL"); val != "" {
		cfg.Upstream.Gemini.BaseURL = val
	}
	if val := os.Getenv("APERTURE_UPSTREAM_VERTEX_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Upstream.Vertex.Enabled = b
		}
	}
	if val := os.Getenv("APERTURE_UPSTREAM_VERTEX_BASE_URL"); val != "" {
		cfg.Upstream.Vertex.BaseURL = val
	}

	// Credential overrides. APERTURE_CREDENTIALS_KEYS is comma-separated,
	// matching how operators inject key lists through container secrets.
	if val := os.Getenv("APERTURE_CREDENTIALS_KEYS"); val != "" {
		cfg.Credentials.Keys = splitAndTrim(val)
	}
	if val := os.Getenv("APERTURE_CREDENTIALS_SKIP_VALIDATION"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Credentials.SkipValidation = b
		}
	}
	if val := os.Getenv("APERTURE_CREDENTIALS_RESET_INVALID"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Credentials.ResetInvalid = b
		}
	}
	if val := os.Getenv("APERTURE_CREDENTIALS_PROBE_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Credentials.ProbeInterval = d
		}
	}

	// Cache overrides
	if val := os.Getenv("APERTURE_CACHE_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Cache.Enabled = b
		}
	}
	if val := os.Getenv("APERTURE_CACHE_EXPIRY_TIME"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Cache.ExpiryTime = d
		}
	}
	if val := os.Getenv("APERTURE_CACHE_MAX_ENTRIES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Cache.MaxEntries = i
		}
	}

	// Limits overrides
	if val := os.Getenv("APERTURE_LIMITS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Limits.Enabled = b
		}
	}
	if val := os.Getenv("APERTURE_LIMITS_REQUESTS_PER_MINUTE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Limits.RequestsPerMinute = i
		}
	}
	if val := os.Getenv("APERTURE_LIMITS_REQUESTS_PER_DAY"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Limits.RequestsPerDay = i
		}
	}

	// Settings overrides
	if val := os.Getenv("APERTURE_SETTINGS_BACKEND"); val != "" {
		cfg.Settings.Backend = val
	}
	if val := os.Getenv("APERTURE_SETTINGS_PATH"); val != "" {
		cfg.Settings.Path = val
	}

	// Telemetry overrides
	if val := os.Getenv("APERTURE_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("APERTURE_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("APERTURE_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
}

// splitAndTrim splits a comma-separated list, trimming whitespace and
// dropping empty elements.
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
