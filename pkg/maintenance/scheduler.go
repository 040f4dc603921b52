package maintenance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweep is one periodic cleanup target. Run returns how many items were
// reclaimed.
type Sweep struct {
	// Name identifies the target in logs.
	Name string

	// Run performs one sweep pass.
	Run func() int
}

// Compactor is storage that supports offline compaction.
type Compactor interface {
	Compact(ctx context.Context) error
}

// Options configures the Scheduler.
type Options struct {
	// SweepInterval is the period between sweep passes. Default: 5m
	SweepInterval time.Duration

	// CompactSchedule is a cron expression for storage compaction.
	// Empty disables compaction.
	CompactSchedule string
}

// Scheduler drives background maintenance: a fixed-interval ticker runs
// every registered sweep, and an optional cron schedule compacts the
// settings store. All work stops when the context passed to Start ends
// or Stop is called.
type Scheduler struct {
	sweeps    []Sweep
	compactor Compactor
	opts      Options
	logger    *slog.Logger

	cron   *cron.Cron
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewScheduler creates a scheduler over the given sweep targets. The
// compactor may be nil when the settings backend has nothing to compact.
func NewScheduler(sweeps []Sweep, compactor Compactor, logger *slog.Logger, opts Options) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = 5 * time.Minute
	}

	return &Scheduler{
		sweeps:    sweeps,
		compactor: compactor,
		opts:      opts,
		logger:    logger.With("component", "maintenance"),
	}
}

// Start launches the sweep loop and, when configured, the compaction
// cron. Returns an error only for an unparsable cron expression.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	if s.opts.CompactSchedule != "" && s.compactor != nil {
		s.cron = cron.New()
		_, err := s.cron.AddFunc(s.opts.CompactSchedule, func() {
			s.compact(ctx)
		})
		if err != nil {
			return err
		}
		s.cron.Start()
		s.logger.Info("compaction scheduled", "schedule", s.opts.CompactSchedule)
	}

	go s.loop(ctx)
	s.logger.Info("maintenance started", "sweep_interval", s.opts.SweepInterval, "targets", len(s.sweeps))
	return nil
}

// Stop halts the sweep loop and the compaction cron, waiting for any
// in-progress pass to finish.
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
		if s.done != nil {
			<-s.done
		}
	})
}

// RunSweeps executes one pass over every sweep target immediately.
func (s *Scheduler) RunSweeps() {
	for _, sweep := range s.sweeps {
		reclaimed := sweep.Run()
		if reclaimed > 0 {
			s.logger.Info("sweep pass", "target", sweep.Name, "reclaimed", reclaimed)
		}
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunSweeps()
		}
	}
}

func (s *Scheduler) compact(ctx context.Context) {
	start := time.Now()
	if err := s.compactor.Compact(ctx); err != nil {
		s.logger.Error("compaction failed", "error", err)
		return
	}
	s.logger.Info("compaction finished", "duration", time.Since(start))
}
