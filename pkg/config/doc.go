// Package config provides configuration loading, validation, and hot
// reloading for Aperture.
//
// Configuration is defined in YAML with environment variable overrides
// (APERTURE_SECTION_FIELD). Loading applies defaults, then environment
// overrides, then validates; a configuration that fails validation is
// never installed.
//
// The Watcher supports hot reload: operators can add credentials or flip
// reset_invalid without restarting the gateway, and the credential pool is
// reconciled against the new list.
package config
