// Aperture is a reverse-proxy gateway for Gemini-style generative APIs.
//
// It fronts the upstream with a managed credential pool, response caching,
// in-flight request deduplication and per-client rate limiting:
//   - Credential rotation with startup validation and invalid-key
//     bookkeeping
//   - Response caching keyed by request fingerprint
//   - Collapsing of concurrent identical requests onto one upstream call
//   - Fixed-window admission control per client
//
// Usage:
//
//	# Start the gateway with default configuration
//	aperture run
//
//	# Start with a custom configuration file
//	aperture run --config /path/to/config.yaml
//
//	# Validate configuration without starting
//	aperture validate
//
//	# Show version information
//	aperture version
package main

func main() {
	Execute()
}
