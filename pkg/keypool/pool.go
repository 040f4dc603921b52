package keypool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"sundial-hq/aperture/pkg/settings"
	"sundial-hq/aperture/pkg/upstream"
)

// ErrAllKeysExhausted is returned by Acquire when no credential is
// currently eligible for rotation. It is one of the two pool-layer errors
// that may become client-visible.
var ErrAllKeysExhausted = errors.New("credential pool: all keys exhausted")

// credentialState tracks per-credential bookkeeping that survives rotation
// snapshot replacement.
type credentialState struct {
	// cooldownUntil deprioritizes the credential until this instant after
	// a transient failure. Zero means eligible.
	cooldownUntil time.Time

	// useCount is the number of times the credential was acquired.
	useCount int64

	// failureCount is the number of recorded failures, transient or not.
	failureCount int64

	// lastUsed is when the credential was last acquired.
	lastUsed time.Time
}

// Pool manages the ordered collection of valid credentials and their
// rotation. Rotation is a circular cursor over an immutable snapshot slice;
// every membership mutation installs a fresh snapshot and resets the cursor
// so newly merged credentials are reachable on the very next Acquire and
// removed ones can never be dereferenced mid-sweep.
//
// Confirmed-invalid credentials leave the pool permanently and are merged
// into the persisted invalid set through the settings store.
//
// Pool is safe for concurrent use.
type Pool struct {
	mu       sync.Mutex
	snapshot []string
	cursor   int
	states   map[string]*credentialState

	cooldown time.Duration
	evicted  int
	store    settings.Store
	logger   *slog.Logger
}

// Options configures a Pool.
type Options struct {
	// Cooldown is how long a transiently failing credential is skipped
	// before rejoining rotation. Default: 60s
	Cooldown time.Duration
}

// New creates an empty pool. The store receives confirmed-invalid
// credentials; it must not be nil.
func New(store settings.Store, logger *slog.Logger, opts Options) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Cooldown == 0 {
		opts.Cooldown = 60 * time.Second
	}

	return &Pool{
		states:   make(map[string]*credentialState),
		cooldown: opts.Cooldown,
		store:    store,
		logger:   logger.With("component", "keypool"),
	}
}

// Acquire returns the next credential per rotation policy. The cursor
// advances circularly over the current snapshot; credentials in cooldown
// are skipped. Returns ErrAllKeysExhausted when the pool is empty or every
// member is cooling down.
func (p *Pool) Acquire() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.snapshot)
	if n == 0 {
		return "", ErrAllKeysExhausted
	}

	now := time.Now()
	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		credential := p.snapshot[idx]

		state := p.stateLocked(credential)
		if !state.cooldownUntil.IsZero() {
			if now.Before(state.cooldownUntil) {
				continue
			}
			// Cooldown elapsed; lazily clear it.
			state.cooldownUntil = time.Time{}
		}

		p.cursor = (idx + 1) % n
		state.useCount++
		state.lastUsed = now
		return credential, nil
	}

	return "", ErrAllKeysExhausted
}

// RecordSuccess records a successful use of the credential. Rotation order
// is unaffected; any lingering cooldown is cleared.
func (p *Pool) RecordSuccess(credential string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if state, ok := p.states[credential]; ok {
		state.cooldownUntil = time.Time{}
	}
}

// RecordFailure classifies a failed use of the credential. Auth-class
// errors evict the credential from the pool and merge it into the
// persisted invalid set; rate limits and transient errors put it in
// cooldown for the remainder of the rotation cycle.
func (p *Pool) RecordFailure(ctx context.Context, credential string, cause error) {
	if upstream.IsAuthError(cause) {
		p.markInvalid(ctx, credential, cause)
		return
	}

	p.mu.Lock()
	state := p.stateLocked(credential)
	state.failureCount++
	state.cooldownUntil = time.Now().Add(p.cooldown)
	p.mu.Unlock()

	p.logger.Warn("credential cooling down",
		"credential", Redact(credential),
		"cooldown", p.cooldown,
		"error", cause,
	)
}

// markInvalid removes the credential and persists it as invalid.
func (p *Pool) markInvalid(ctx context.Context, credential string, cause error) {
	p.mu.Lock()
	removed := p.removeLocked(credential)
	if removed {
		p.evicted++
	}
	p.mu.Unlock()

	if removed {
		p.logger.Warn("credential evicted from pool",
			"credential", Redact(credential),
			"error", cause,
		)
	}

	changed, err := p.store.MergeInvalidCredentials(ctx, []string{credential})
	if err != nil {
		p.logger.Error("failed to persist invalid credential",
			"credential", Redact(credential),
			"error", err,
		)
		return
	}
	if changed {
		p.logger.Info("invalid credential persisted", "credential", Redact(credential))
	}
}

// ResetRotation restores the cursor to the head of the pool. Called after
// any membership change so new members are reachable immediately.
func (p *Pool) ResetRotation() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor = 0
}

// Add merges credentials into the pool, skipping duplicates, and resets
// rotation if anything was added. Returns the number of new members.
func (p *Pool) Add(credentials ...string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	added := 0
	for _, credential := range credentials {
		if credential == "" || p.containsLocked(credential) {
			continue
		}
		next := make([]string, 0, len(p.snapshot)+1)
		next = append(next, p.snapshot...)
		next = append(next, credential)
		p.snapshot = next
		p.stateLocked(credential)
		added++
	}

	if added > 0 {
		p.cursor = 0
	}
	return added
}

// Remove drops a credential from the pool without touching the persisted
// invalid set. Used when a configuration reload no longer lists the key.
func (p *Pool) Remove(credential string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeLocked(credential)
}

// SetCredentials replaces the entire pool membership and resets rotation.
func (p *Pool) SetCredentials(credentials []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := make([]string, 0, len(credentials))
	seen := make(map[string]bool, len(credentials))
	for _, credential := range credentials {
		if credential == "" || seen[credential] {
			continue
		}
		seen[credential] = true
		next = append(next, credential)
		p.stateLocked(credential)
	}

	p.snapshot = next
	p.cursor = 0
}

// Contains reports whether the credential is currently in the pool.
func (p *Pool) Contains(credential string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.containsLocked(credential)
}

// Size returns the current pool size.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snapshot)
}

// Evicted returns how many credentials were permanently evicted as
// invalid since the pool was created.
func (p *Pool) Evicted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.evicted
}

// Snapshot returns a copy of the current rotation order.
func (p *Pool) Snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, len(p.snapshot))
	copy(out, p.snapshot)
	return out
}

// Stats reports per-credential usage for the stats endpoint. Credentials
// are identified by their redacted prefix.
func (p *Pool) Stats() []CredentialStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	out := make([]CredentialStats, 0, len(p.snapshot))
	for _, credential := range p.snapshot {
		state := p.stateLocked(credential)
		out = append(out, CredentialStats{
			Credential:   Redact(credential),
			UseCount:     state.useCount,
			FailureCount: state.failureCount,
			LastUsed:     state.lastUsed,
			CoolingDown:  now.Before(state.cooldownUntil),
		})
	}
	return out
}

// CredentialStats is a point-in-time snapshot of one pool member.
type CredentialStats struct {
	// Credential is the redacted credential identifier.
	Credential string `json:"credential"`

	// UseCount is how many times the credential was acquired.
	UseCount int64 `json:"use_count"`

	// FailureCount is how many failures were recorded against it.
	FailureCount int64 `json:"failure_count"`

	// LastUsed is when it was last acquired.
	LastUsed time.Time `json:"last_used"`

	// CoolingDown reports whether the credential is currently skipped.
	CoolingDown bool `json:"cooling_down"`
}

// stateLocked returns (creating if needed) the bookkeeping entry for a
// credential. Caller must hold the lock.
func (p *Pool) stateLocked(credential string) *credentialState {
	state, ok := p.states[credential]
	if !ok {
		state = &credentialState{}
		p.states[credential] = state
	}
	return state
}

// containsLocked reports membership. Caller must hold the lock.
func (p *Pool) containsLocked(credential string) bool {
	for _, c := range p.snapshot {
		if c == credential {
			return true
		}
	}
	return false
}

// removeLocked installs a snapshot without the credential and resets the
// cursor. Caller must hold the lock.
func (p *Pool) removeLocked(credential string) bool {
	for i, c := range p.snapshot {
		if c != credential {
			continue
		}
		next := make([]string, 0, len(p.snapshot)-1)
		next = append(next, p.snapshot[:i]...)
		next = append(next, p.snapshot[i+1:]...)
		p.snapshot = next
		p.cursor = 0
		return true
	}
	return false
}

// Redact returns the loggable form of a credential: its first eight
// characters. Whole credentials must never reach a log line.
func Redact(credential string) string {
	if len(credential) <= 8 {
		return credential
	}
	return credential[:8] + "..."
}
