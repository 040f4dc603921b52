// Package ratelimit enforces per-client fixed-window admission limits.
//
// Each client carries two counters, one per minute window and one per
// calendar day, both anchored to wall-clock boundaries. A request is
// admitted only when both windows have capacity, and denials never
// consume capacity. Idle clients are reclaimed by a periodic sweep.
package ratelimit
