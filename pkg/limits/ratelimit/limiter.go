package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// clientWindows holds the fixed-window counters for one client.
type clientWindows struct {
	// minuteStart is the wall-clock start of the current minute window.
	minuteStart time.Time
	minuteCount int

	// dayStart is the wall-clock start of the current day window.
	dayStart time.Time
	dayCount int

	// lastSeen drives inactive-client eviction.
	lastSeen time.Time
}

// Result is the outcome of an admission check.
type Result struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Scope names the exhausted window ("minute" or "day") when denied.
	Scope string

	// Limit is the configured ceiling for the exhausted window.
	Limit int

	// Remaining is how many requests are left in the tighter window.
	Remaining int

	// RetryAfter is how long until the exhausted window resets.
	RetryAfter time.Duration
}

// Limiter enforces per-client fixed-window admission over two horizons: a
// rolling minute window and a calendar-day window. Windows are anchored to
// wall-clock boundaries, so every client's minute window resets at the
// same instant and the day window resets at local midnight.
//
// Limiter is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*clientWindows

	perMinute int
	perDay    int
	retention time.Duration
	logger    *slog.Logger

	allowed int64
	denied  int64

	// now is swappable for tests.
	now func() time.Time
}

// Options configures a Limiter.
type Options struct {
	// RequestsPerMinute is the per-client minute ceiling. Default: 30
	RequestsPerMinute int

	// RequestsPerDay is the per-client day ceiling. Default: 600
	RequestsPerDay int

	// ClientRetention is how long an idle client's counters survive
	// before the sweep reclaims them. Default: 48h
	ClientRetention time.Duration
}

// New creates a limiter with no recorded clients.
func New(logger *slog.Logger, opts Options) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RequestsPerMinute == 0 {
		opts.RequestsPerMinute = 30
	}
	if opts.RequestsPerDay == 0 {
		opts.RequestsPerDay = 600
	}
	if opts.ClientRetention == 0 {
		opts.ClientRetention = 48 * time.Hour
	}

	return &Limiter{
		clients:   make(map[string]*clientWindows),
		perMinute: opts.RequestsPerMinute,
		perDay:    opts.RequestsPerDay,
		retention: opts.ClientRetention,
		logger:    logger.With("component", "ratelimit"),
		now:       time.Now,
	}
}

// Allow consumes one admission slot for the client when both windows have
// capacity. Denial consumes nothing, so a denied client is not pushed
// further from recovery. The check is atomic across both windows.
func (l *Limiter) Allow(client string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.clients[client]
	if !ok {
		w = &clientWindows{}
		l.clients[client] = w
	}
	w.lastSeen = now

	minuteStart := now.Truncate(time.Minute)
	if !w.minuteStart.Equal(minuteStart) {
		w.minuteStart = minuteStart
		w.minuteCount = 0
	}

	dayStart := startOfDay(now)
	if !w.dayStart.Equal(dayStart) {
		w.dayStart = dayStart
		w.dayCount = 0
	}

	if w.minuteCount >= l.perMinute {
		l.denied++
		return Result{
			Scope:      "minute",
			Limit:      l.perMinute,
			RetryAfter: minuteStart.Add(time.Minute).Sub(now),
		}
	}

	if w.dayCount >= l.perDay {
		l.denied++
		return Result{
			Scope:      "day",
			Limit:      l.perDay,
			RetryAfter: dayStart.Add(24 * time.Hour).Sub(now),
		}
	}

	w.minuteCount++
	w.dayCount++
	l.allowed++

	remaining := l.perMinute - w.minuteCount
	if dayRemaining := l.perDay - w.dayCount; dayRemaining < remaining {
		remaining = dayRemaining
	}

	return Result{Allowed: true, Remaining: remaining}
}

// Sweep reclaims counters for clients idle longer than the retention
// period. Returns how many clients were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.retention)
	removed := 0
	for client, w := range l.clients {
		if w.lastSeen.Before(cutoff) {
			delete(l.clients, client)
			removed++
		}
	}

	if removed > 0 {
		l.logger.Debug("idle rate limit clients reclaimed", "removed", removed, "remaining", len(l.clients))
	}
	return removed
}

// Stats is a point-in-time view of admission activity.
type Stats struct {
	// Clients is the number of tracked clients.
	Clients int `json:"clients"`

	// Allowed is the number of admitted requests since start.
	Allowed int64 `json:"allowed"`

	// Denied is the number of rejected requests since start.
	Denied int64 `json:"denied"`
}

// Stats returns current admission counters.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{Clients: len(l.clients), Allowed: l.allowed, Denied: l.denied}
}

// startOfDay returns midnight of the given instant in its location.
func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
