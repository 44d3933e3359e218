// Package workers contains background workers for ArchiFlow.
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/artpar/archiflow/internal/core/domain"
)

// SiteSource lists the host's sites (the NetBox client).
type SiteSource interface {
	ListSites(ctx context.Context) ([]domain.Site, error)
}

// SiteSink stores synced sites (the ledger service).
type SiteSink interface {
	SyncSites(ctx context.Context, sites []domain.Site) (int, error)
}

// SiteSyncConfig configures the site sync worker.
type SiteSyncConfig struct {
	// Interval is the time between sync cycles.
	// Default: 5 minutes.
	Interval time.Duration

	// Timeout bounds a single sync cycle.
	// Default: 30 seconds.
	Timeout time.Duration
}

// DefaultSiteSyncConfig returns the default configuration.
func DefaultSiteSyncConfig() SiteSyncConfig {
	return SiteSyncConfig{
		Interval: 5 * time.Minute,
		Timeout:  30 * time.Second,
	}
}

// SyncStatus describes the outcome of the most recent sync cycle.
type SyncStatus struct {
	LastRun   time.Time `json:"last_run"`
	LastError string    `json:"last_error,omitempty"`
	Synced    int       `json:"synced"`
}

// SiteSync periodically copies the host's sites into the ledger store.
// Failures are logged and retried on the next cycle.
type SiteSync struct {
	source SiteSource
	sink   SiteSink
	config SiteSyncConfig
	logger *slog.Logger

	mu     sync.RWMutex
	status SyncStatus

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSiteSync creates a new site sync worker.
func NewSiteSync(source SiteSource, sink SiteSink, config SiteSyncConfig, logger *slog.Logger) *SiteSync {
	if config.Interval == 0 {
		config.Interval = 5 * time.Minute
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &SiteSync{
		source: source,
		sink:   sink,
		config: config,
		logger: logger.With("component", "site_sync"),
	}
}

// Start begins the sync background goroutine.
// It syncs immediately and then on every interval.
func (w *SiteSync) Start() {
	w.ctx, w.cancel = context.WithCancel(context.Background())

	w.wg.Add(1)
	go w.run()

	w.logger.Info("site sync started", "interval", w.config.Interval)
}

// Stop gracefully stops the worker.
// It waits for an in-progress cycle to complete.
func (w *SiteSync) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info("site sync stopped")
}

// Status returns the outcome of the last cycle.
func (w *SiteSync) Status() SyncStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// run is the main loop that syncs periodically.
func (w *SiteSync) run() {
	defer w.wg.Done()

	// Run immediately on start
	w.runCycle()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.runCycle()
		}
	}
}

func (w *SiteSync) runCycle() {
	ctx, cancel := context.WithTimeout(w.ctx, w.config.Timeout)
	defer cancel()

	n, err := w.SyncOnce(ctx)
	if err != nil {
		w.logger.Error("site sync failed", "error", err)
		return
	}
	w.logger.Debug("site sync completed", "synced", n)
}

// SyncOnce runs a single sync cycle and records its outcome.
func (w *SiteSync) SyncOnce(ctx context.Context) (int, error) {
	n, err := w.sync(ctx)

	w.mu.Lock()
	w.status = SyncStatus{LastRun: time.Now().UTC(), Synced: n}
	if err != nil {
		w.status.LastError = err.Error()
	}
	w.mu.Unlock()

	return n, err
}

func (w *SiteSync) sync(ctx context.Context) (int, error) {
	sites, err := w.source.ListSites(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sites: %w", err)
	}
	if len(sites) == 0 {
		return 0, nil
	}
	n, err := w.sink.SyncSites(ctx, sites)
	if err != nil {
		return 0, fmt.Errorf("failed to store sites: %w", err)
	}
	return n, nil
}
