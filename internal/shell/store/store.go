package store

import (
	"context"

	"github.com/artpar/archiflow/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for the deployment ledger.
type Store interface {
	// Site operations (read-through copy of the host's inventory)
	UpsertSite(ctx context.Context, site *domain.Site) error
	GetSite(ctx context.Context, id int64) (*domain.Site, error)
	ListSites(ctx context.Context, opts ListOptions) ([]domain.Site, error)

	// Diagram operations
	CreateDiagram(ctx context.Context, diagram *domain.Diagram) error
	GetDiagram(ctx context.Context, id string) (*domain.Diagram, error)
	UpdateDiagram(ctx context.Context, diagram *domain.Diagram) error
	ListDiagramsBySite(ctx context.Context, siteID int64) ([]domain.Diagram, error)

	// ListDiagrams returns every diagram ordered by site, newest first within a site.
	ListDiagrams(ctx context.Context) ([]domain.Diagram, error)

	// GetLiveDiagram returns the site's live diagram other than excludeID,
	// or nil when there is none.
	GetLiveDiagram(ctx context.Context, siteID int64, excludeID string) (*domain.Diagram, error)

	// Deployment record operations (append-only)
	AppendRecord(ctx context.Context, record *domain.DeploymentRecord) error
	ListRecordsByDiagram(ctx context.Context, diagramID string) ([]domain.DeploymentRecord, error)
	ListRecordsBySite(ctx context.Context, siteID int64, filter RecordFilter) ([]domain.DeploymentRecord, error)

	// ListSiteHistory returns all of a site's records, oldest first.
	ListSiteHistory(ctx context.Context, siteID int64) ([]domain.DeploymentRecord, error)

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination and filtering options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// RecordFilter narrows a site's deployment records. Results are newest first.
type RecordFilter struct {
	// Action keeps only records of this action when set.
	Action domain.DeploymentAction

	// ExcludeDiagramID drops records of this diagram when set.
	ExcludeDiagramID string

	ListOptions
}
