package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/artpar/archiflow/internal/shell/api"
	apimw "github.com/artpar/archiflow/internal/shell/api/middleware"
	"github.com/artpar/archiflow/internal/shell/events"
	"github.com/artpar/archiflow/internal/shell/ledger"
	"github.com/artpar/archiflow/internal/shell/metrics"
	"github.com/artpar/archiflow/internal/shell/netbox"
	"github.com/artpar/archiflow/internal/shell/store"
	"github.com/artpar/archiflow/internal/shell/workers"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitHTTPServerError = 4
)

// =============================================================================
// Server
// =============================================================================

// Server represents the ArchiFlow application server.
type Server struct {
	config     *Config
	httpServer *http.Server
	store      store.Store
	hub        *events.Hub
	siteSync   *workers.SiteSync
	logger     *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	if err := ensureDataDir(cfg.Database.DSN); err != nil {
		return nil, newServerError("NewServer", err, ExitDatabaseError)
	}

	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, newServerError("NewServer", err, ExitDatabaseError)
	}

	hub := events.NewHub(events.HubConfig{
		BufferSize:     cfg.Events.BufferSize,
		AllowedOrigins: cfg.Events.AllowedOrigins,
	}, logger)

	collector, err := newCollector(cfg.Metrics, hub)
	if err != nil {
		hub.Close()
		s.Close()
		return nil, newServerError("NewServer", err, ExitConfigError)
	}

	opts := []ledger.Option{ledger.WithPublisher(hub)}
	if collector != nil {
		opts = append(opts, ledger.WithMetrics(collector))
	}
	svc := ledger.NewService(s, logger, opts...)

	handler := api.NewHandler(api.Config{
		Ledger:      svc,
		DB:          s,
		Events:      hub,
		Metrics:     collector,
		MetricsPath: cfg.Metrics.Path,
		Settings:    cfg.Drawio,
		Auth: apimw.AuthConfig{
			Mode:         cfg.Auth.Mode,
			SharedSecret: cfg.Auth.SharedSecret,
		},
		RequireAuth: cfg.Auth.RequireAuth,
		Logger:      logger,
	})

	return &Server{
		config: cfg,
		httpServer: &http.Server{
			Addr:         cfg.Server.Address(),
			Handler:      handler.Routes(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		store:    s,
		hub:      hub,
		siteSync: newSiteSync(cfg.NetBox, svc, logger),
		logger:   logger,
	}, nil
}

// newCollector returns nil when metrics are disabled.
func newCollector(cfg MetricsConfig, hub *events.Hub) (*metrics.Collector, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	c := metrics.NewCollector()
	err := c.RegisterGauge("event_subscribers", "Open deployment event subscriptions.", func() float64 {
		return float64(hub.ActiveSubscribers())
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// newSiteSync returns nil when no NetBox instance is configured.
func newSiteSync(cfg NetBoxConfig, svc *ledger.Service, logger *slog.Logger) *workers.SiteSync {
	if cfg.URL == "" {
		logger.Info("netbox site sync disabled")
		return nil
	}

	client := netbox.NewClient(netbox.Config{
		BaseURL:  cfg.URL,
		Token:    cfg.Token,
		PageSize: cfg.PageSize,
		Timeout:  cfg.Timeout,
	}, logger)

	logger.Info("netbox site sync enabled",
		"netbox_url", cfg.URL,
		"sync_interval", cfg.SyncInterval,
	)
	return workers.NewSiteSync(client, svc, workers.SiteSyncConfig{Interval: cfg.SyncInterval}, logger)
}

// ensureDataDir creates the parent directory of a file-backed database.
func ensureDataDir(dsn string) error {
	if dsn == "" || strings.HasPrefix(dsn, ":memory:") || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Start serves HTTP until SIGINT/SIGTERM, ctx cancellation or a listener error.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if s.siteSync != nil {
		s.siteSync.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.Shutdown(context.Background())
		return newServerError("Start", err, ExitHTTPServerError)
	case <-ctx.Done():
		s.logger.Info("shutdown requested", "cause", context.Cause(ctx))
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	// Closing the hub first ends open websocket streams, which
	// http.Server.Shutdown does not wait for.
	s.hub.Close()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.siteSync != nil {
		s.siteSync.Stop()
	}

	// Close database
	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func newServerError(op string, err error, code int) *ServerError {
	return &ServerError{Op: op, Err: err, ExitCode: code}
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
