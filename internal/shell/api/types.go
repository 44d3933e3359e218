package api

import (
	"time"

	"github.com/artpar/archiflow/internal/core/deployment"
	"github.com/artpar/archiflow/internal/core/domain"
	"github.com/artpar/archiflow/internal/core/plugin"
)

// =============================================================================
// Request Types
// =============================================================================

// DeployRequest is the request body for deploying a diagram.
type DeployRequest struct {
	SiteID          *int64 `json:"site_id"`
	Version         string `json:"version,omitempty"`
	Title           string `json:"title,omitempty"`
	Description     string `json:"description,omitempty"`
	DeviceCount     *int   `json:"device_count,omitempty"`
	ConnectionCount *int   `json:"connection_count,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// CreateDiagramRequest is the request body for creating a draft diagram.
type CreateDiagramRequest struct {
	DiagramID       string `json:"diagram_id,omitempty"`
	SiteID          *int64 `json:"site_id"`
	Version         string `json:"version,omitempty"`
	Title           string `json:"title,omitempty"`
	Description     string `json:"description,omitempty"`
	DeviceCount     *int   `json:"device_count,omitempty"`
	ConnectionCount *int   `json:"connection_count,omitempty"`
}

// CloneRequest is the request body for cloning a diagram into a new version.
type CloneRequest struct {
	DiagramID string `json:"diagram_id,omitempty"`
	Version   string `json:"version"`
}

// RollbackRequest is the optional request body for a rollback.
type RollbackRequest struct {
	Notes string `json:"notes,omitempty"`
}

// SiteSyncItem is one site in a sync request body.
type SiteSyncItem struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Status      string `json:"status"`
	Description string `json:"description"`
}

// =============================================================================
// Response Types
// =============================================================================

// DeployedDiagram is the diagram summary returned by a deploy.
type DeployedDiagram struct {
	ID         string     `json:"id"`
	Version    string     `json:"version"`
	Title      string     `json:"title"`
	IsLive     bool       `json:"is_live"`
	DeployedAt *time.Time `json:"deployed_at"`
	DeployedBy string     `json:"deployed_by"`
}

// DeployResponse is the response for a deploy.
type DeployResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Diagram DeployedDiagram `json:"diagram"`
}

// RolledBackDiagram is the diagram summary returned by a rollback.
type RolledBackDiagram struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	Title   string `json:"title"`
}

// RollbackResponse is the response for a rollback.
type RollbackResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Diagram RolledBackDiagram `json:"diagram"`
}

// DiagramResponse is a diagram with its deployment state.
type DiagramResponse struct {
	ID              string     `json:"id"`
	SiteID          int64      `json:"site_id"`
	Version         string     `json:"version"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	DeviceCount     int        `json:"device_count"`
	ConnectionCount int        `json:"connection_count"`
	Status          string     `json:"status"`
	IsLive          bool       `json:"is_live"`
	CreatedAt       time.Time  `json:"created_at"`
	CreatedBy       string     `json:"created_by"`
	DeployedAt      *time.Time `json:"deployed_at"`
	DeployedBy      string     `json:"deployed_by"`
	ParentID        string     `json:"parent_id,omitempty"`
}

// DiagramCreatedResponse is the response for a draft creation or a clone.
type DiagramCreatedResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Diagram DiagramResponse `json:"diagram"`
}

// RecordResponse is one deployment ledger entry.
type RecordResponse struct {
	ID             string    `json:"id"`
	Seq            int64     `json:"seq"`
	DiagramID      string    `json:"diagram_id"`
	SiteID         int64     `json:"site_id"`
	Action         string    `json:"action"`
	Timestamp      time.Time `json:"timestamp"`
	PerformedBy    string    `json:"performed_by"`
	Notes          string    `json:"notes"`
	PreviousLiveID *string   `json:"previous_live_id"`
}

// DiagramStatusResponse is a diagram summary plus its ordered history.
type DiagramStatusResponse struct {
	Diagram DiagramResponse  `json:"diagram"`
	History []RecordResponse `json:"history"`
}

// SiteResponse is a site as listed by the sites endpoint.
type SiteResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Status      string `json:"status"`
	Description string `json:"description"`
}

// SiteStatusResponse is the deployment state of a site.
type SiteStatusResponse struct {
	Site     SiteResponse       `json:"site"`
	Live     *DiagramResponse   `json:"live"`
	Diagrams []DiagramResponse  `json:"diagrams"`
	Summary  deployment.Summary `json:"summary"`
	History  []RecordResponse   `json:"history"`
}

// HistoryResponse is a site's ledger, newest first.
type HistoryResponse struct {
	SiteID  int64            `json:"site_id"`
	Limit   int              `json:"limit"`
	Records []RecordResponse `json:"records"`
}

// SyncResponse is the response for a site sync.
type SyncResponse struct {
	Success bool `json:"success"`
	Synced  int  `json:"synced"`
}

// PluginSettingsResponse is the effective editor configuration.
type PluginSettingsResponse struct {
	plugin.Settings
	AutoSaveInterval int `json:"auto_save_interval"`
}

// PluginResponse describes the plugin to the host.
type PluginResponse struct {
	Plugin   plugin.Metadata        `json:"plugin"`
	Settings PluginSettingsResponse `json:"settings"`
	Menu     []plugin.MenuItem      `json:"menu"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// =============================================================================
// Conversions
// =============================================================================

func diagramToResponse(d domain.Diagram) DiagramResponse {
	return DiagramResponse{
		ID:              d.ID,
		SiteID:          d.SiteID,
		Version:         d.Version,
		Title:           d.Title,
		Description:     d.Description,
		DeviceCount:     d.DeviceCount,
		ConnectionCount: d.ConnectionCount,
		Status:          string(d.Status),
		IsLive:          d.IsLive,
		CreatedAt:       d.CreatedAt,
		CreatedBy:       d.CreatedBy,
		DeployedAt:      d.DeployedAt,
		DeployedBy:      d.DeployedBy,
		ParentID:        d.ParentID,
	}
}

func recordsToResponse(records []domain.DeploymentRecord) []RecordResponse {
	resp := make([]RecordResponse, 0, len(records))
	for _, r := range records {
		resp = append(resp, RecordResponse{
			ID:             r.ID,
			Seq:            r.Seq,
			DiagramID:      r.DiagramID,
			SiteID:         r.SiteID,
			Action:         string(r.Action),
			Timestamp:      r.Timestamp,
			PerformedBy:    r.PerformedBy,
			Notes:          r.Notes,
			PreviousLiveID: r.PreviousLiveID,
		})
	}
	return resp
}

func siteToResponse(s domain.Site) SiteResponse {
	return SiteResponse{
		ID:          s.ID,
		Name:        s.Name,
		Slug:        s.Slug,
		Status:      s.Status,
		Description: s.Description,
	}
}
