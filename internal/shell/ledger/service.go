// Package ledger provides the deployment ledger service with I/O.
// This is part of the Imperative Shell - it loads state from the store,
// calls the pure planner and writes the plan back in one transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/artpar/archiflow/internal/core/deployment"
	"github.com/artpar/archiflow/internal/core/domain"
	"github.com/artpar/archiflow/internal/shell/store"
)

// History limits for SiteHistory.
const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 1000
)

// =============================================================================
// Collaborators
// =============================================================================

// Publisher receives every record the ledger appends, after commit.
type Publisher interface {
	Publish(record domain.DeploymentRecord)
}

// Metrics observes ledger operations.
type Metrics interface {
	ObserveOperation(op string, err error, elapsed time.Duration)
	RecordAppended(action domain.DeploymentAction)
}

type nopPublisher struct{}

func (nopPublisher) Publish(domain.DeploymentRecord) {}

type nopMetrics struct{}

func (nopMetrics) ObserveOperation(string, error, time.Duration) {}
func (nopMetrics) RecordAppended(domain.DeploymentAction)        {}

// =============================================================================
// Ledger Service
// =============================================================================

// Service implements the deployment ledger on top of a Store.
type Service struct {
	store     store.Store
	publisher Publisher
	metrics   Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the receiver of appended records.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithMetrics sets the operation observer.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a new ledger service.
func NewService(s store.Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Service{
		store:     s,
		publisher: nopPublisher{},
		metrics:   nopMetrics{},
		logger:    logger.With("component", "ledger"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// =============================================================================
// Requests & Results
// =============================================================================

// DeployRequest contains the input for deploying a diagram.
type DeployRequest struct {
	// SiteID is the host site the diagram belongs to (required).
	SiteID int64

	// DiagramID is the external diagram handle (required).
	DiagramID string

	// Metadata overwrites stored descriptive fields when non-empty.
	Metadata domain.DiagramMetadata

	// Actor is recorded as performed_by; empty means system.
	Actor string

	Notes string
}

// RollbackRequest contains the input for rolling a site back.
type RollbackRequest struct {
	SiteID int64
	Actor  string
	Notes  string
}

// CreateDraftRequest contains the input for creating a draft diagram.
type CreateDraftRequest struct {
	SiteID int64

	// DiagramID is generated when empty.
	DiagramID string

	Metadata domain.DiagramMetadata
	Actor    string
}

// CloneRequest contains the input for cloning a diagram into a new version.
type CloneRequest struct {
	SourceID string

	// DiagramID is generated when empty.
	DiagramID string

	// Version is the clone's version label (required).
	Version string

	Actor string
}

// TransitionResult is the outcome of a Deploy or Rollback.
type TransitionResult struct {
	// Diagram is the diagram that is now live.
	Diagram domain.Diagram

	// Previous is the diagram that was live before, if any.
	Previous *domain.Diagram

	// Records are the appended records in append order.
	Records []domain.DeploymentRecord
}

// DiagramStatus is a diagram with its history in chronological order.
type DiagramStatus struct {
	Diagram domain.Diagram
	History []domain.DeploymentRecord
}

// SiteStatus is the deployment state of one site.
type SiteStatus struct {
	Site     domain.Site
	Live     *domain.Diagram
	Diagrams []domain.Diagram
	Summary  deployment.Summary

	// History is every record of the site in chronological order.
	// It is left empty by ListSiteStatuses.
	History []domain.DeploymentRecord
}

// =============================================================================
// Deploy
// =============================================================================

// Deploy makes the diagram the site's live version.
//
// The diagram is created as a draft under the site when it does not exist.
// The previously live diagram of the site, if any, is archived. All reads
// and writes happen in one transaction; on error nothing is written.
func (s *Service) Deploy(ctx context.Context, req DeployRequest) (result *TransitionResult, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("deploy", err, time.Since(start)) }()

	diagramID := strings.TrimSpace(req.DiagramID)
	if req.SiteID <= 0 {
		return nil, domain.NewValidationError("site_id", "site_id is required")
	}
	if diagramID == "" {
		return nil, domain.NewValidationError("diagram_id", "diagram id is required")
	}

	now := s.now()
	var plan deployment.Plan

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		if _, err := loadSite(ctx, tx, req.SiteID); err != nil {
			return err
		}

		target, err := tx.GetDiagram(ctx, diagramID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			target, err = domain.NewDiagram(diagramID, req.SiteID, req.Actor, now)
			if err != nil {
				return err
			}
			if err := tx.CreateDiagram(ctx, target); err != nil {
				return fmt.Errorf("failed to create diagram: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to load diagram: %w", err)
		case target.SiteID != req.SiteID:
			return domain.NewValidationError("site_id",
				fmt.Sprintf("diagram %s belongs to site %d", diagramID, target.SiteID))
		}

		if err := target.ApplyMetadata(req.Metadata, now); err != nil {
			return err
		}

		live, err := tx.GetLiveDiagram(ctx, req.SiteID, target.ID)
		if err != nil {
			return fmt.Errorf("failed to load live diagram: %w", err)
		}

		plan, err = deployment.PlanDeploy(*target, live, req.Actor, req.Notes, now)
		if err != nil {
			return err
		}
		return applyPlan(ctx, tx, &plan)
	})
	if err != nil {
		return nil, err
	}

	s.committed(plan)
	s.logger.Info("diagram deployed",
		"site_id", req.SiteID,
		"diagram_id", plan.Promoted.ID,
		"version", plan.Promoted.Version,
		"previous_live_id", previousID(plan),
		"actor", plan.Promoted.DeployedBy,
	)

	return resultOf(plan), nil
}

// =============================================================================
// Drafts
// =============================================================================

// CreateDraft stores a new draft diagram under the site. No record is
// appended; a draft has no deployment history until it is deployed.
func (s *Service) CreateDraft(ctx context.Context, req CreateDraftRequest) (diagram *domain.Diagram, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("create_draft", err, time.Since(start)) }()

	if req.SiteID <= 0 {
		return nil, domain.NewValidationError("site_id", "site_id is required")
	}
	diagramID := strings.TrimSpace(req.DiagramID)
	if diagramID == "" {
		diagramID = uuid.NewString()
	}

	now := s.now()
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		if _, err := loadSite(ctx, tx, req.SiteID); err != nil {
			return err
		}

		d, err := domain.NewDiagram(diagramID, req.SiteID, req.Actor, now)
		if err != nil {
			return err
		}
		if err := d.ApplyMetadata(req.Metadata, now); err != nil {
			return err
		}
		if err := insertDiagram(ctx, tx, d); err != nil {
			return err
		}
		diagram = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("draft created",
		"site_id", diagram.SiteID,
		"diagram_id", diagram.ID,
		"version", diagram.Version,
		"actor", diagram.CreatedBy,
	)
	return diagram, nil
}

// CloneVersion copies a diagram into a new draft version of the same site.
func (s *Service) CloneVersion(ctx context.Context, req CloneRequest) (diagram *domain.Diagram, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("clone_version", err, time.Since(start)) }()

	sourceID := strings.TrimSpace(req.SourceID)
	if sourceID == "" {
		return nil, domain.NewValidationError("diagram_id", "diagram id is required")
	}
	diagramID := strings.TrimSpace(req.DiagramID)
	if diagramID == "" {
		diagramID = uuid.NewString()
	}

	now := s.now()
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		src, err := tx.GetDiagram(ctx, sourceID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.NewNotFoundError("diagram", sourceID)
			}
			return fmt.Errorf("failed to load diagram: %w", err)
		}

		clone, err := src.Clone(diagramID, req.Version, req.Actor, now)
		if err != nil {
			return err
		}
		if err := insertDiagram(ctx, tx, clone); err != nil {
			return err
		}
		diagram = clone
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("diagram cloned",
		"site_id", diagram.SiteID,
		"diagram_id", diagram.ID,
		"parent_id", diagram.ParentID,
		"version", diagram.Version,
		"actor", diagram.CreatedBy,
	)
	return diagram, nil
}

// =============================================================================
// Rollback
// =============================================================================

// Rollback re-promotes the diagram that was live before the current one.
//
// The target is the diagram of the site's most recent deployed record that
// is not the current live diagram. Without one, a NotFoundError is returned
// and nothing is written.
func (s *Service) Rollback(ctx context.Context, req RollbackRequest) (result *TransitionResult, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("rollback", err, time.Since(start)) }()

	if req.SiteID <= 0 {
		return nil, domain.NewValidationError("site_id", "site_id is required")
	}

	now := s.now()
	var plan deployment.Plan

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		if _, err := loadSite(ctx, tx, req.SiteID); err != nil {
			return err
		}

		live, err := tx.GetLiveDiagram(ctx, req.SiteID, "")
		if err != nil {
			return fmt.Errorf("failed to load live diagram: %w", err)
		}
		liveID := ""
		if live != nil {
			liveID = live.ID
		}

		records, err := tx.ListRecordsBySite(ctx, req.SiteID, store.RecordFilter{
			Action:           domain.ActionDeployed,
			ExcludeDiagramID: liveID,
			ListOptions:      store.ListOptions{Limit: 1},
		})
		if err != nil {
			return fmt.Errorf("failed to load deployment history: %w", err)
		}

		var target *domain.Diagram
		if targetID, ok := deployment.SelectRollbackTarget(records, liveID); ok {
			target, err = tx.GetDiagram(ctx, targetID)
			if err != nil {
				return fmt.Errorf("failed to load rollback target: %w", err)
			}
		}

		plan, err = deployment.PlanRollback(req.SiteID, target, live, req.Actor, req.Notes, now)
		if err != nil {
			return err
		}
		return applyPlan(ctx, tx, &plan)
	})
	if err != nil {
		return nil, err
	}

	s.committed(plan)
	s.logger.Info("site rolled back",
		"site_id", req.SiteID,
		"diagram_id", plan.Promoted.ID,
		"previous_live_id", previousID(plan),
		"actor", plan.Promoted.DeployedBy,
	)

	return resultOf(plan), nil
}

// =============================================================================
// Queries
// =============================================================================

// GetDiagramStatus returns a diagram and its records in chronological order.
func (s *Service) GetDiagramStatus(ctx context.Context, diagramID string) (*DiagramStatus, error) {
	diagramID = strings.TrimSpace(diagramID)
	if diagramID == "" {
		return nil, domain.NewValidationError("diagram_id", "diagram id is required")
	}

	d, err := s.store.GetDiagram(ctx, diagramID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.NewNotFoundError("diagram", diagramID)
		}
		return nil, fmt.Errorf("failed to load diagram: %w", err)
	}

	history, err := s.store.ListRecordsByDiagram(ctx, diagramID)
	if err != nil {
		return nil, fmt.Errorf("failed to load diagram history: %w", err)
	}

	return &DiagramStatus{Diagram: *d, History: history}, nil
}

// GetSiteStatus returns the site, its live diagram and all its diagrams.
func (s *Service) GetSiteStatus(ctx context.Context, siteID int64) (*SiteStatus, error) {
	if siteID <= 0 {
		return nil, domain.NewValidationError("site_id", "site_id is required")
	}

	site, err := loadSite(ctx, s.store, siteID)
	if err != nil {
		return nil, err
	}

	diagrams, err := s.store.ListDiagramsBySite(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list diagrams: %w", err)
	}

	status := &SiteStatus{
		Site:     *site,
		Diagrams: diagrams,
		Summary:  deployment.Summarize(diagrams),
	}
	status.Live = liveOf(diagrams)

	status.History, err = s.store.ListSiteHistory(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to load site history: %w", err)
	}
	return status, nil
}

// ListSiteStatuses returns the status of every site ordered by site name,
// without history. Diagrams are read in a single query.
func (s *Service) ListSiteStatuses(ctx context.Context) ([]SiteStatus, error) {
	sites, err := s.ListSites(ctx)
	if err != nil {
		return nil, err
	}

	diagrams, err := s.store.ListDiagrams(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list diagrams: %w", err)
	}
	bySite := make(map[int64][]domain.Diagram, len(sites))
	for _, d := range diagrams {
		bySite[d.SiteID] = append(bySite[d.SiteID], d)
	}

	statuses := make([]SiteStatus, 0, len(sites))
	for _, site := range sites {
		ds := bySite[site.ID]
		statuses = append(statuses, SiteStatus{
			Site:     site,
			Live:     liveOf(ds),
			Diagrams: ds,
			Summary:  deployment.Summarize(ds),
		})
	}
	return statuses, nil
}

// SiteHistory returns the site's records, newest first. A limit outside
// 1..MaxHistoryLimit falls back to DefaultHistoryLimit or is capped.
func (s *Service) SiteHistory(ctx context.Context, siteID int64, limit int) ([]domain.DeploymentRecord, error) {
	if siteID <= 0 {
		return nil, domain.NewValidationError("site_id", "site_id is required")
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	if _, err := loadSite(ctx, s.store, siteID); err != nil {
		return nil, err
	}

	records, err := s.store.ListRecordsBySite(ctx, siteID, store.RecordFilter{
		ListOptions: store.ListOptions{Limit: limit},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load site history: %w", err)
	}
	return records, nil
}

// =============================================================================
// Sites
// =============================================================================

// ListSites returns every known site ordered by name.
func (s *Service) ListSites(ctx context.Context) ([]domain.Site, error) {
	opts := store.ListOptions{Limit: 1000}
	var all []domain.Site
	for {
		page, err := s.store.ListSites(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list sites: %w", err)
		}
		all = append(all, page...)
		if len(page) < opts.Limit {
			break
		}
		opts.Offset += len(page)
	}
	if all == nil {
		all = []domain.Site{}
	}
	return all, nil
}

// SyncSites upserts sites received from the host, stamping last_synced.
// The batch is rejected as a whole if any site is invalid.
func (s *Service) SyncSites(ctx context.Context, sites []domain.Site) (n int, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("sync_sites", err, time.Since(start)) }()

	now := s.now()
	normalized := make([]domain.Site, 0, len(sites))
	for i, site := range sites {
		ns, err := domain.NormalizeSite(site)
		if err != nil {
			var vErr *domain.ValidationError
			if errors.As(err, &vErr) {
				return 0, domain.NewValidationError(vErr.Field, fmt.Sprintf("site %d: %s", i, vErr.Message))
			}
			return 0, err
		}
		ns.LastSynced = &now
		normalized = append(normalized, ns)
	}

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		for i := range normalized {
			if err := tx.UpsertSite(ctx, &normalized[i]); err != nil {
				return fmt.Errorf("failed to upsert site %d: %w", normalized[i].ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("sites synced", "count", len(normalized))
	return len(normalized), nil
}

// =============================================================================
// Helpers
// =============================================================================

// loadSite resolves a site, mapping a missing row to a NotFoundError.
func loadSite(ctx context.Context, st store.Store, siteID int64) (*domain.Site, error) {
	site, err := st.GetSite(ctx, siteID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.NewNotFoundError("site", strconv.FormatInt(siteID, 10))
		}
		return nil, fmt.Errorf("failed to load site: %w", err)
	}
	return site, nil
}

// insertDiagram creates d, mapping a duplicate id to a ConflictError.
func insertDiagram(ctx context.Context, tx store.Store, d *domain.Diagram) error {
	if err := tx.CreateDiagram(ctx, d); err != nil {
		if errors.Is(err, store.ErrDuplicateID) {
			return domain.NewConflictError("diagram", d.ID)
		}
		return fmt.Errorf("failed to create diagram: %w", err)
	}
	return nil
}

func liveOf(diagrams []domain.Diagram) *domain.Diagram {
	for i := range diagrams {
		if diagrams[i].IsLive {
			return &diagrams[i]
		}
	}
	return nil
}

// applyPlan writes the plan's diagrams, then appends its records.
func applyPlan(ctx context.Context, tx store.Store, plan *deployment.Plan) error {
	for _, d := range plan.Writes() {
		if err := tx.UpdateDiagram(ctx, &d); err != nil {
			return fmt.Errorf("failed to update diagram %s: %w", d.ID, err)
		}
	}
	for i := range plan.Records {
		if err := tx.AppendRecord(ctx, &plan.Records[i]); err != nil {
			return fmt.Errorf("failed to append %s record: %w", plan.Records[i].Action, err)
		}
	}
	return nil
}

// committed fans out the plan's records once the transaction has committed.
func (s *Service) committed(plan deployment.Plan) {
	for _, rec := range plan.Records {
		s.metrics.RecordAppended(rec.Action)
		s.publisher.Publish(rec)
	}
}

func resultOf(plan deployment.Plan) *TransitionResult {
	return &TransitionResult{
		Diagram:  plan.Promoted,
		Previous: plan.Demoted,
		Records:  plan.Records,
	}
}

func previousID(plan deployment.Plan) string {
	if plan.Demoted == nil {
		return ""
	}
	return plan.Demoted.ID
}
