package keypool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"sundial-hq/aperture/pkg/settings"
	"sundial-hq/aperture/pkg/upstream"
)

// ReconcilerOptions configures startup reconciliation.
type ReconcilerOptions struct {
	// SkipValidation seeds the pool with every configured credential
	// without probing. Faster startup, trusts configuration.
	SkipValidation bool

	// ProbeInterval paces the background revalidation sweep so it does
	// not burst probes against the upstream. Default: 250ms
	ProbeInterval time.Duration
}

// Reconciler brings the credential pool in line with configuration at
// startup and after reloads. It probes configured credentials in order,
// seeds the pool with the first valid one so the gateway can serve
// immediately, and validates the remainder in the background.
type Reconciler struct {
	pool      *Pool
	validator *Validator
	store     settings.Store
	catalog   *ModelCatalog
	logger    *slog.Logger
	opts      ReconcilerOptions

	mu      sync.Mutex
	pending map[string]bool
}

// NewReconciler creates a reconciler over the given pool, validator and
// settings store. The catalog receives the upstream model list and may be
// shared with the serving layer.
func NewReconciler(pool *Pool, validator *Validator, store settings.Store, catalog *ModelCatalog, logger *slog.Logger, opts ReconcilerOptions) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ProbeInterval == 0 {
		opts.ProbeInterval = 250 * time.Millisecond
	}

	return &Reconciler{
		pool:      pool,
		validator: validator,
		store:     store,
		catalog:   catalog,
		logger:    logger.With("component", "reconciler"),
		opts:      opts,
		pending:   make(map[string]bool),
	}
}

// Bootstrap reconciles the pool with the configured credential list.
// Credentials already recorded invalid in the settings store are excluded
// up front. In validating mode the remaining credentials are probed in
// configuration order until the first valid one seeds the pool; the rest
// are handed to a background sweep so startup latency stays bounded by a
// single probe in the common case.
//
// An empty resulting pool is not fatal. The gateway starts anyway and
// answers with an exhausted-pool error until a reload or background sweep
// supplies a working credential.
func (r *Reconciler) Bootstrap(ctx context.Context, client upstream.Client, configured []string) error {
	state, err := r.store.Load(ctx)
	if err != nil {
		return err
	}

	candidates := make([]string, 0, len(configured))
	skipped := 0
	for _, credential := range configured {
		if state.HasInvalid(credential) {
			skipped++
			continue
		}
		candidates = append(candidates, credential)
	}
	if skipped > 0 {
		r.logger.Info("excluded previously invalid credentials", "count", skipped)
	}

	if r.opts.SkipValidation {
		r.pool.SetCredentials(candidates)
		r.logger.Info("credential validation skipped", "pool_size", r.pool.Size())
		return nil
	}

	r.pool.SetCredentials(nil)

	var invalid, inconclusive []string
	seeded := -1
	for i, credential := range candidates {
		switch r.validator.Validate(ctx, credential) {
		case OutcomeValid:
			r.pool.Add(credential)
			r.pool.ResetRotation()
			seeded = i
			r.logger.Info("pool seeded", "credential", Redact(credential))
		case OutcomeInvalid:
			invalid = append(invalid, credential)
			continue
		case OutcomeUnknown:
			inconclusive = append(inconclusive, credential)
			continue
		}
		break
	}

	if seeded >= 0 {
		r.fetchModels(ctx, client, candidates[seeded])
	} else {
		r.logger.Error("no working credential found during startup", "candidates", len(candidates))
	}

	// Inconclusive probes stay in play. They join the background batch
	// alongside the credentials the seeding loop never reached.
	remaining := append([]string(nil), inconclusive...)
	if seeded >= 0 && seeded+1 < len(candidates) {
		remaining = append(remaining, candidates[seeded+1:]...)
	}

	if len(remaining) > 0 {
		go r.RevalidateAll(ctx, remaining, invalid)
	} else {
		r.persistInvalid(ctx, invalid)
	}

	return nil
}

// RevalidateAll probes each candidate at the configured pace, merging
// valid ones into the pool as they are confirmed and persisting the
// combined invalid set exactly once at the end. Inconclusive probes land
// in the pending set and are retried by RetryPending.
func (r *Reconciler) RevalidateAll(ctx context.Context, candidates []string, priorInvalid []string) {
	limiter := rate.NewLimiter(rate.Every(r.opts.ProbeInterval), 1)

	invalid := append([]string(nil), priorInvalid...)
	added := 0
	for _, credential := range candidates {
		if err := limiter.Wait(ctx); err != nil {
			r.logger.Info("background validation stopped", "error", err)
			break
		}

		switch r.validator.Validate(ctx, credential) {
		case OutcomeValid:
			r.clearPending(credential)
			if r.pool.Add(credential) > 0 {
				r.pool.ResetRotation()
				added++
			}
		case OutcomeInvalid:
			r.clearPending(credential)
			invalid = append(invalid, credential)
		case OutcomeUnknown:
			r.markPending(credential)
		}
	}

	r.persistInvalid(ctx, invalid)
	r.logger.Info("background validation finished",
		"candidates", len(candidates),
		"added", added,
		"invalid", len(invalid),
		"pending", r.PendingCount(),
		"pool_size", r.pool.Size(),
	)
}

// RetryPending re-probes credentials whose last probe was inconclusive,
// typically because the upstream was unreachable. Valid ones join the
// pool, rejected ones are persisted invalid, and anything still
// inconclusive stays pending for the next run. Returns the number of
// credentials classified either way.
func (r *Reconciler) RetryPending(ctx context.Context) int {
	r.mu.Lock()
	batch := make([]string, 0, len(r.pending))
	for credential := range r.pending {
		batch = append(batch, credential)
	}
	r.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}

	limiter := rate.NewLimiter(rate.Every(r.opts.ProbeInterval), 1)

	var invalid []string
	classified := 0
	for _, credential := range batch {
		if err := limiter.Wait(ctx); err != nil {
			break
		}

		switch r.validator.Validate(ctx, credential) {
		case OutcomeValid:
			r.clearPending(credential)
			if r.pool.Add(credential) > 0 {
				r.pool.ResetRotation()
			}
			classified++
		case OutcomeInvalid:
			r.clearPending(credential)
			invalid = append(invalid, credential)
			classified++
		case OutcomeUnknown:
		}
	}

	r.persistInvalid(ctx, invalid)
	if classified > 0 {
		r.logger.Info("pending credentials classified",
			"classified", classified,
			"invalid", len(invalid),
			"pool_size", r.pool.Size(),
		)
	}
	return classified
}

// PendingCount reports how many credentials await reclassification.
func (r *Reconciler) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Reconciler) markPending(credential string) {
	r.mu.Lock()
	r.pending[credential] = true
	r.mu.Unlock()
}

func (r *Reconciler) clearPending(credential string) {
	r.mu.Lock()
	delete(r.pending, credential)
	r.mu.Unlock()
}

// Reload reconciles the pool with a freshly loaded credential list.
// Credentials no longer configured leave the pool; new ones are validated
// in the background. When resetInvalid is set the persisted invalid set is
// cleared first so previously rejected credentials get another chance.
func (r *Reconciler) Reload(ctx context.Context, configured []string, resetInvalid bool) error {
	if resetInvalid {
		if err := r.store.ResetInvalidCredentials(ctx); err != nil {
			return err
		}
		r.logger.Info("persisted invalid credential set reset")
	}

	state, err := r.store.Load(ctx)
	if err != nil {
		return err
	}

	wanted := make(map[string]bool, len(configured))
	for _, credential := range configured {
		wanted[credential] = true
	}

	for _, credential := range r.pool.Snapshot() {
		if !wanted[credential] {
			r.pool.Remove(credential)
			r.logger.Info("credential removed from pool", "credential", Redact(credential))
		}
	}

	r.mu.Lock()
	for credential := range r.pending {
		if !wanted[credential] {
			delete(r.pending, credential)
		}
	}
	r.mu.Unlock()

	var fresh []string
	for _, credential := range configured {
		if r.pool.Contains(credential) || state.HasInvalid(credential) {
			continue
		}
		fresh = append(fresh, credential)
	}

	if len(fresh) == 0 {
		return nil
	}

	if r.opts.SkipValidation {
		if r.pool.Add(fresh...) > 0 {
			r.pool.ResetRotation()
		}
		return nil
	}

	go r.RevalidateAll(ctx, fresh, nil)
	return nil
}

// fetchModels retrieves the upstream model list with the given credential.
// Failure only costs the catalog, never startup.
func (r *Reconciler) fetchModels(ctx context.Context, client upstream.Client, credential string) {
	if client == nil || r.catalog == nil {
		return
	}

	models, err := client.ListModels(ctx, credential)
	if err != nil {
		r.logger.Warn("model list fetch failed", "error", err)
		return
	}

	r.catalog.Replace(models)
	r.logger.Info("model catalog loaded", "models", len(models))
}

// persistInvalid merges confirmed-invalid credentials into the settings
// store. The merge is a set union and only touches storage on change.
func (r *Reconciler) persistInvalid(ctx context.Context, invalid []string) {
	if len(invalid) == 0 {
		return
	}

	changed, err := r.store.MergeInvalidCredentials(ctx, invalid)
	if err != nil {
		r.logger.Error("failed to persist invalid credentials", "count", len(invalid), "error", err)
		return
	}
	if changed {
		r.logger.Info("invalid credentials persisted", "count", len(invalid))
	}
}
