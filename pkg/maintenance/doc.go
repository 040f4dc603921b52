// Package maintenance schedules background cleanup: periodic sweeps over
// the response cache, deduplication handles and rate limit counters, plus
// cron-driven compaction of the settings store.
package maintenance
