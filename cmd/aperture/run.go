package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"sundial-hq/aperture/pkg/cli"
	"sundial-hq/aperture/pkg/config"
	"sundial-hq/aperture/pkg/dedup"
	"sundial-hq/aperture/pkg/gateway"
	"sundial-hq/aperture/pkg/keypool"
	"sundial-hq/aperture/pkg/limits/ratelimit"
	"sundial-hq/aperture/pkg/maintenance"
	"sundial-hq/aperture/pkg/requestcache"
	"sundial-hq/aperture/pkg/server"
	"sundial-hq/aperture/pkg/settings"
	"sundial-hq/aperture/pkg/telemetry/logging"
	"sundial-hq/aperture/pkg/telemetry/metrics"
	"sundial-hq/aperture/pkg/upstream"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	watchConfig   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Aperture gateway",
	Long: `Start the Aperture gateway with the specified configuration.

The gateway validates the configured credentials against the upstream,
then serves generation requests through the credential rotation with
response caching, request deduplication and per-client rate limiting.

Examples:
  # Start with default config
  aperture run

  # Start with custom config
  aperture run --config /etc/aperture/config.yaml

  # Override listen address
  aperture run --listen 0.0.0.0:8080

  # Reload credentials when the config file changes
  aperture run --watch`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.watchConfig, "watch", true, "reload credentials on config file changes")
}

func runGateway(cmd *cobra.Command, args []string) error {
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError(cfgFile, fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger := logging.New(logging.Options{
		Level:         cfg.Telemetry.Logging.Level,
		Format:        cfg.Telemetry.Logging.Format,
		RedactSecrets: cfg.Telemetry.Logging.RedactSecrets,
	})
	slog.SetDefault(logger)

	ctx := cli.SetupSignalHandler()

	// Settings store, holding the persisted invalid-credential set.
	store, err := settings.NewStore(&cfg.Settings)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to open settings store: %w", err))
	}
	defer store.Close()

	if cfg.Credentials.ResetInvalid {
		if err := store.ResetInvalidCredentials(ctx); err != nil {
			return cli.NewCommandError("run", fmt.Errorf("failed to reset invalid credentials: %w", err))
		}
		logger.Info("persisted invalid credential set reset")
	}

	// Upstream clients for the enabled endpoint variants.
	clients, err := buildClients(cfg)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer func() {
		for _, client := range clients {
			client.Close()
		}
	}()

	defaultClient, ok := clients[cfg.Upstream.DefaultEndpoint]
	if !ok {
		return cli.NewConfigError(cfgFile,
			fmt.Sprintf("default endpoint %q is not enabled", cfg.Upstream.DefaultEndpoint))
	}

	// Credential pool and startup reconciliation.
	pool := keypool.New(store, logger, keypool.Options{
		Cooldown: cfg.Credentials.Cooldown,
	})
	validator := keypool.NewValidator(defaultClient, logger)
	catalog := keypool.NewModelCatalog()
	reconciler := keypool.NewReconciler(pool, validator, store, catalog, logger, keypool.ReconcilerOptions{
		SkipValidation: cfg.Credentials.SkipValidation,
		ProbeInterval:  cfg.Credentials.ProbeInterval,
	})

	logger.Info("reconciling credential pool", "configured", len(cfg.Credentials.Keys))
	if err := reconciler.Bootstrap(ctx, defaultClient, cfg.Credentials.Keys); err != nil {
		return cli.NewCommandError("run", fmt.Errorf("credential reconciliation failed: %w", err))
	}

	// Pipeline subsystems.
	var cache *requestcache.Cache
	if cfg.Cache.Enabled {
		cache = requestcache.New(logger, requestcache.Options{
			TTL:        cfg.Cache.ExpiryTime,
			MaxEntries: cfg.Cache.MaxEntries,
		})
	}

	dedupMgr := dedup.New(logger, dedup.Options{
		MaxLifetime: cfg.Dedup.MaxHandleLifetime,
	})

	var limiter *ratelimit.Limiter
	if cfg.Limits.Enabled {
		limiter = ratelimit.New(logger, ratelimit.Options{
			RequestsPerMinute: cfg.Limits.RequestsPerMinute,
			RequestsPerDay:    cfg.Limits.RequestsPerDay,
			ClientRetention:   cfg.Limits.ClientRetention,
		})
	}

	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Telemetry.Metrics.Namespace)
		collector.SetPoolSize(pool.Size())
	}

	gatewayClients := make(map[string]upstream.Client, len(clients))
	for name, client := range clients {
		gatewayClients[name] = client
	}

	gw := gateway.New(gateway.Options{
		Pool:            pool,
		Cache:           cache,
		Dedup:           dedupMgr,
		Limiter:         limiter,
		Catalog:         catalog,
		Clients:         gatewayClients,
		DefaultEndpoint: cfg.Upstream.DefaultEndpoint,
		Metrics:         collector,
		Logger:          logger,
	})

	// Maintenance: periodic sweeps plus scheduled store compaction.
	sweeps := buildSweeps(cache, dedupMgr, limiter)
	sweeps = append(sweeps, maintenance.Sweep{Name: "credentials", Run: func() int {
		return reconciler.RetryPending(ctx)
	}})
	scheduler := maintenance.NewScheduler(sweeps, store, logger, maintenance.Options{
		SweepInterval:   cfg.Maintenance.SweepInterval,
		CompactSchedule: cfg.Maintenance.CompactSchedule,
	})
	if err := scheduler.Start(ctx); err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to start maintenance: %w", err))
	}
	defer scheduler.Stop()

	// Credential hot reload from config file changes.
	if runFlags.watchConfig {
		watcher, err := config.NewWatcher(cfgFile, logger)
		if err != nil {
			logger.Warn("config watcher unavailable", "error", err)
		} else {
			defer watcher.Stop()
			go func() {
				err := watcher.Watch(ctx, func(next *config.Config) {
					if err := reconciler.Reload(ctx, next.Credentials.Keys, next.Credentials.ResetInvalid); err != nil {
						logger.Error("credential reload failed", "error", err)
					}
				})
				if err != nil {
					logger.Error("config watcher exited", "error", err)
				}
			}()
		}
	}

	srv := server.NewServer(&cfg.Server, &cfg.Telemetry.Metrics, gw, collector, logger)

	logger.Info("aperture starting",
		"version", Version,
		"address", cfg.Server.ListenAddress,
		"pool_size", pool.Size(),
		"default_endpoint", cfg.Upstream.DefaultEndpoint,
	)

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	return nil
}

// buildClients creates one upstream client per enabled endpoint variant.
func buildClients(cfg *config.Config) (map[string]*upstream.HTTPClient, error) {
	clients := make(map[string]*upstream.HTTPClient)

	if cfg.Upstream.Gemini.Enabled {
		clients["gemini"] = upstream.NewGeminiClient(clientConfig(&cfg.Upstream.Gemini))
	}
	if cfg.Upstream.Vertex.Enabled {
		clients["vertex"] = upstream.NewVertexClient(clientConfig(&cfg.Upstream.Vertex))
	}

	if len(clients) == 0 {
		return nil, fmt.Errorf("no upstream endpoint is enabled")
	}
	return clients, nil
}

// clientConfig maps an endpoint's configuration onto the client config.
func clientConfig(ec *config.EndpointConfig) upstream.ClientConfig {
	return upstream.ClientConfig{
		BaseURL:      ec.BaseURL,
		Timeout:      ec.Timeout,
		ProbeTimeout: ec.ProbeTimeout,
		Breaker: upstream.BreakerConfig{
			Enabled:          ec.Breaker.Enabled,
			FailureThreshold: ec.Breaker.FailureThreshold,
			Timeout:          ec.Breaker.Cooldown,
		},
	}
}

// buildSweeps assembles the maintenance sweep targets for the enabled
// subsystems.
func buildSweeps(cache *requestcache.Cache, dedupMgr *dedup.Manager, limiter *ratelimit.Limiter) []maintenance.Sweep {
	var sweeps []maintenance.Sweep
	if cache != nil {
		sweeps = append(sweeps, maintenance.Sweep{Name: "cache", Run: cache.Sweep})
	}
	sweeps = append(sweeps, maintenance.Sweep{Name: "dedup", Run: dedupMgr.SweepStale})
	if limiter != nil {
		sweeps = append(sweeps, maintenance.Sweep{Name: "ratelimit", Run: limiter.Sweep})
	}
	return sweeps
}
