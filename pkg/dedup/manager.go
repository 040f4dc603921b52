package dedup

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"sundial-hq/aperture/pkg/upstream"
)

// ErrHandleExpired is delivered to waiters whose handle was force-cleared
// by the stale sweep. Waiters should retry the request themselves.
var ErrHandleExpired = errors.New("dedup: in-flight handle expired")

// Handle represents one in-flight upstream execution. The owner performs
// the request and calls Complete on the manager; every waiter blocks on
// Wait until the broadcast arrives.
type Handle struct {
	fingerprint string
	createdAt   time.Time
	done        chan struct{}

	// response and err are written exactly once, before done closes.
	response *upstream.GenerationResponse
	err      error
}

// Wait blocks until the owner completes the request, the handle is
// force-cleared, or the context ends. On owner failure every waiter
// receives the same error.
func (h *Handle) Wait(ctx context.Context) (*upstream.GenerationResponse, error) {
	select {
	case <-h.done:
		return h.response, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Age returns how long the handle has been in flight.
func (h *Handle) Age() time.Duration {
	return time.Since(h.createdAt)
}

// Manager tracks at most one in-flight execution per request fingerprint.
// The first caller for a fingerprint becomes the owner and performs the
// upstream request; concurrent callers with the same fingerprint attach as
// waiters and share the outcome. Handles are removed the moment they
// complete, so a new request arriving after completion starts fresh.
//
// Manager is safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	handles map[string]*Handle

	maxLifetime time.Duration
	logger      *slog.Logger
}

// Options configures a Manager.
type Options struct {
	// MaxLifetime is the age past which the stale sweep force-clears a
	// handle. Guards against owners that died without completing.
	// Default: 5m
	MaxLifetime time.Duration
}

// New creates an empty manager.
func New(logger *slog.Logger, opts Options) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxLifetime == 0 {
		opts.MaxLifetime = 5 * time.Minute
	}

	return &Manager{
		handles:     make(map[string]*Handle),
		maxLifetime: opts.MaxLifetime,
		logger:      logger.With("component", "dedup"),
	}
}

// JoinOrCreate returns the handle for a fingerprint. The boolean reports
// ownership: true means the caller must perform the request and call
// Complete; false means the caller should Wait on the returned handle.
func (m *Manager) JoinOrCreate(fingerprint string) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.handles[fingerprint]; ok {
		return h, false
	}

	h := &Handle{
		fingerprint: fingerprint,
		createdAt:   time.Now(),
		done:        make(chan struct{}),
	}
	m.handles[fingerprint] = h
	return h, true
}

// Complete records the outcome of an owned handle, wakes every waiter and
// removes the handle. Exactly one of response or err is meaningful.
// Completing a handle that was already cleared is a no-op, even when a
// successor handle for the same fingerprint is in flight.
func (m *Manager) Complete(h *Handle, response *upstream.GenerationResponse, err error) {
	m.mu.Lock()
	owned := m.handles[h.fingerprint] == h
	if owned {
		delete(m.handles, h.fingerprint)
	}
	m.mu.Unlock()

	if !owned {
		return
	}

	h.response = response
	h.err = err
	close(h.done)
}

// SweepStale force-clears every handle older than the maximum lifetime,
// waking its waiters with ErrHandleExpired. Returns the number cleared.
// Called periodically by the maintenance sweeper.
func (m *Manager) SweepStale() int {
	m.mu.Lock()
	var stale []*Handle
	for fingerprint, h := range m.handles {
		if time.Since(h.createdAt) >= m.maxLifetime {
			delete(m.handles, fingerprint)
			stale = append(stale, h)
		}
	}
	m.mu.Unlock()

	for _, h := range stale {
		h.err = ErrHandleExpired
		close(h.done)
		m.logger.Warn("stale in-flight handle cleared", "age", h.Age())
	}
	return len(stale)
}

// Len returns the number of in-flight handles.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}
