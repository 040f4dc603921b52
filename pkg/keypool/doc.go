// Package keypool manages the pool of upstream API credentials.
//
// The pool is the ordered set of credentials believed valid. Rotation is a
// circular cursor over an immutable snapshot; any membership change swaps
// in a new snapshot and resets the cursor to the head. Absent mutation, a
// full sweep of Acquire calls visits every member exactly once before any
// repeat.
//
// Failures are classified by the upstream error taxonomy. Auth-class
// errors permanently evict the credential and merge it into the persisted
// invalid set; rate limits and transient errors only place it in a
// temporary cooldown.
//
// The Reconciler handles startup and reload: it excludes persisted-invalid
// credentials, probes the rest in configuration order until the first
// valid one seeds the pool, and validates the remainder on a paced
// background sweep.
package keypool
