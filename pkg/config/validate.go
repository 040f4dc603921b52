package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// FieldError represents a validation error for a specific configuration
// field.
type FieldError struct {
	// Field is the dotted path to the configuration field
	// (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a
// configuration. It implements the error interface and provides access to
// all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a
// ValidationError if any validation rules fail. It returns nil if the
// configuration is valid. All validation errors are collected and returned
// together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateUpstream(&cfg.Upstream)...)
	errs = append(errs, validateCredentials(&cfg.Credentials)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateLimits(&cfg.Limits)...)
	errs = append(errs, validateSettings(&cfg.Settings)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// validateServer validates the server section.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid address %q: must be host:port", cfg.ListenAddress),
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "must not be negative"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "must not be negative"})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_header_bytes", Message: "must not be negative"})
	}

	return errs
}

// validateUpstream validates the upstream section.
func validateUpstream(cfg *UpstreamConfig) []FieldError {
	var errs []FieldError

	if cfg.DefaultEndpoint != "gemini" && cfg.DefaultEndpoint != "vertex" {
		errs = append(errs, FieldError{
			Field:   "upstream.default_endpoint",
			Message: fmt.Sprintf("unknown endpoint %q: must be \"gemini\" or \"vertex\"", cfg.DefaultEndpoint),
		})
	}
	if !cfg.Gemini.Enabled && !cfg.Vertex.Enabled {
		errs = append(errs, FieldError{
			Field:   "upstream",
			Message: "at least one endpoint must be enabled",
		})
	}
	errs = append(errs, validateEndpoint("upstream.gemini", &cfg.Gemini)...)
	errs = append(errs, validateEndpoint("upstream.vertex", &cfg.Vertex)...)

	return errs
}

// validateEndpoint validates one endpoint section.
func validateEndpoint(field string, cfg *EndpointConfig) []FieldError {
	var errs []FieldError

	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, FieldError{
				Field:   field + ".base_url",
				Message: fmt.Sprintf("invalid URL %q", cfg.BaseURL),
			})
		}
	}
	if cfg.Timeout < 0 {
		errs = append(errs, FieldError{Field: field + ".timeout", Message: "must not be negative"})
	}
	if cfg.ProbeTimeout < 0 {
		errs = append(errs, FieldError{Field: field + ".probe_timeout", Message: "must not be negative"})
	}

	return errs
}

// validateCredentials validates the credentials section.
func validateCredentials(cfg *CredentialsConfig) []FieldError {
	var errs []FieldError

	seen := make(map[string]bool, len(cfg.Keys))
	for i, key := range cfg.Keys {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("credentials.keys[%d]", i),
				Message: "credential must not be empty",
			})
			continue
		}
		if seen[key] {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("credentials.keys[%d]", i),
				Message: "duplicate credential",
			})
		}
		seen[key] = true
	}
	if cfg.ProbeInterval < 0 {
		errs = append(errs, FieldError{Field: "credentials.probe_interval", Message: "must not be negative"})
	}
	if cfg.Cooldown < 0 {
		errs = append(errs, FieldError{Field: "credentials.cooldown", Message: "must not be negative"})
	}
	if cfg.MaxAttempts < 0 {
		errs = append(errs, FieldError{Field: "credentials.max_attempts", Message: "must not be negative"})
	}

	return errs
}

// validateCache validates the cache section.
func validateCache(cfg *CacheConfig) []FieldError {
	var errs []FieldError

	if cfg.ExpiryTime <= 0 {
		errs = append(errs, FieldError{Field: "cache.expiry_time", Message: "must be positive"})
	}
	if cfg.MaxEntries <= 0 {
		errs = append(errs, FieldError{Field: "cache.max_entries", Message: "must be positive"})
	}

	return errs
}

// validateLimits validates the limits section.
func validateLimits(cfg *LimitsConfig) []FieldError {
	var errs []FieldError

	if cfg.RequestsPerMinute < 0 {
		errs = append(errs, FieldError{Field: "limits.requests_per_minute", Message: "must not be negative"})
	}
	if cfg.RequestsPerDay < 0 {
		errs = append(errs, FieldError{Field: "limits.requests_per_day", Message: "must not be negative"})
	}

	return errs
}

// validateSettings validates the settings section.
func validateSettings(cfg *SettingsConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory", "file", "sqlite":
	default:
		errs = append(errs, FieldError{
			Field:   "settings.backend",
			Message: fmt.Sprintf("unknown backend %q: must be \"memory\", \"file\", or \"sqlite\"", cfg.Backend),
		})
	}
	if cfg.Backend != "memory" && cfg.Path == "" {
		errs = append(errs, FieldError{Field: "settings.path", Message: "required for file and sqlite backends"})
	}

	return errs
}

// validateTelemetry validates the telemetry section.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("unknown level %q", cfg.Logging.Level),
		})
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("unknown format %q", cfg.Logging.Format),
		})
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "must start with /",
		})
	}

	return errs
}
