// Package requestcache caches completed generation responses by request
// fingerprint.
//
// The fingerprint is the SHA-256 digest of the canonical request
// projection: model, messages and sampling parameters. Volatile request
// metadata never participates, so semantically equal requests share one
// cache slot. Entries expire after a fixed TTL and the cache evicts its
// oldest entries when capacity is exceeded.
package requestcache
