// Package dedup collapses concurrent identical requests onto a single
// upstream execution.
//
// At most one handle exists per request fingerprint. The first arrival
// owns the handle and performs the upstream call; later arrivals attach
// as waiters and receive the owner's outcome, success or failure alike.
// Handles are removed on completion, and a periodic sweep force-clears
// handles whose owner never completed.
package dedup
