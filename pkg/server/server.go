// Package server provides the HTTP server for the gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"sundial-hq/aperture/pkg/config"
	"sundial-hq/aperture/pkg/gateway"
	"sundial-hq/aperture/pkg/server/handlers"
	"sundial-hq/aperture/pkg/server/middleware"
	"sundial-hq/aperture/pkg/telemetry/metrics"
)

// Server is the HTTP boundary of the gateway.
type Server struct {
	config     *config.ServerConfig
	metricsCfg *config.MetricsConfig
	gateway    *gateway.Gateway
	metrics    *metrics.Collector
	logger     *slog.Logger

	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates the HTTP server over an assembled gateway. The
// metrics collector may be nil when the metrics endpoint is disabled.
func NewServer(cfg *config.ServerConfig, metricsCfg *config.MetricsConfig, gw *gateway.Gateway, collector *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config:     cfg,
		metricsCfg: metricsCfg,
		gateway:    gw,
		metrics:    collector,
		logger:     logger.With("component", "server"),
	}
}

// Start starts the HTTP server and blocks until ctx ends, a shutdown
// signal handler calls Shutdown, or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddress,
		Handler:        s.Handler(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "address", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("server stopped")
	})

	return shutdownErr
}

// Handler builds the route table with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/v1/generate", handlers.NewGenerateHandler(s.gateway))
	mux.Handle("/v1/models", handlers.NewModelsHandler(s.gateway))
	mux.Handle("/v1/stats", handlers.NewStatsHandler(s.gateway))
	mux.Handle("/health", handlers.NewHealthHandler())
	mux.Handle("/ready", handlers.NewReadyHandler(s.gateway))

	if s.metrics != nil && s.metricsCfg != nil && s.metricsCfg.Enabled {
		path := s.metricsCfg.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, s.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = middleware.CORS(s.corsConfig())(handler)
	handler = middleware.Logging(s.logger)(handler)
	handler = middleware.ClientIdentity(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(handler)

	return handler
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// corsConfig converts config.CORSConfig to middleware.CORSConfig.
func (s *Server) corsConfig() *middleware.CORSConfig {
	return &middleware.CORSConfig{
		Enabled:        s.config.CORS.Enabled,
		AllowedOrigins: s.config.CORS.AllowedOrigins,
		AllowedMethods: s.config.CORS.AllowedMethods,
		AllowedHeaders: s.config.CORS.AllowedHeaders,
		MaxAge:         s.config.CORS.MaxAge,
	}
}
