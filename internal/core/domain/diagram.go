// Package domain contains the core domain types and validation logic.
// This is part of the Functional Core - all functions are pure with no I/O.
package domain

import (
	"strings"
	"time"
)

// =============================================================================
// Diagram Status
// =============================================================================

// DiagramStatus is the lifecycle state of a diagram version.
type DiagramStatus string

const (
	DiagramStatusDraft    DiagramStatus = "draft"
	DiagramStatusDeployed DiagramStatus = "deployed"
	DiagramStatusArchived DiagramStatus = "archived"
)

// IsValid checks if the diagram status is known.
func (s DiagramStatus) IsValid() bool {
	switch s {
	case DiagramStatusDraft, DiagramStatusDeployed, DiagramStatusArchived:
		return true
	default:
		return false
	}
}

// SystemActor is recorded when a transition has no acting user.
const SystemActor = "system"

// =============================================================================
// Diagram
// =============================================================================

// Diagram is one version of a network diagram attached to a site.
// IsLive is scoped per site: at most one diagram of a site is live.
type Diagram struct {
	ID              string        `json:"id"`
	SiteID          int64         `json:"site_id"`
	Version         string        `json:"version"`
	Title           string        `json:"title"`
	Description     string        `json:"description,omitempty"`
	DeviceCount     int           `json:"device_count"`
	ConnectionCount int           `json:"connection_count"`
	Status          DiagramStatus `json:"status"`
	IsLive          bool          `json:"is_live"`
	CreatedAt       time.Time     `json:"created_at"`
	CreatedBy       string        `json:"created_by"`
	UpdatedAt       time.Time     `json:"updated_at"`
	DeployedAt      *time.Time    `json:"deployed_at,omitempty"`
	DeployedBy      string        `json:"deployed_by,omitempty"`

	// ParentID is the diagram this version was cloned from.
	ParentID string `json:"parent_id,omitempty"`
}

// DiagramMetadata carries optional descriptive fields supplied with a deploy.
// Zero values leave the stored value untouched.
type DiagramMetadata struct {
	Version         string
	Title           string
	Description     string
	DeviceCount     *int
	ConnectionCount *int
}

// NewDiagram creates a draft diagram for the given external identifier.
func NewDiagram(id string, siteID int64, createdBy string, now time.Time) (*Diagram, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, NewValidationError("diagram_id", "diagram id is required")
	}
	if siteID <= 0 {
		return nil, NewValidationError("site_id", "site_id is required")
	}
	if createdBy == "" {
		createdBy = SystemActor
	}
	return &Diagram{
		ID:        id,
		SiteID:    siteID,
		Version:   "1.0",
		Title:     id,
		Status:    DiagramStatusDraft,
		CreatedAt: now,
		CreatedBy: createdBy,
		UpdatedAt: now,
	}, nil
}

// ApplyMetadata overwrites descriptive fields with the non-empty values of m.
// Negative counts are rejected and leave d unchanged.
func (d *Diagram) ApplyMetadata(m DiagramMetadata, now time.Time) error {
	if m.DeviceCount != nil && *m.DeviceCount < 0 {
		return NewValidationError("device_count", "device_count must not be negative")
	}
	if m.ConnectionCount != nil && *m.ConnectionCount < 0 {
		return NewValidationError("connection_count", "connection_count must not be negative")
	}

	changed := false
	if v := strings.TrimSpace(m.Version); v != "" {
		d.Version = v
		changed = true
	}
	if v := strings.TrimSpace(m.Title); v != "" {
		d.Title = v
		changed = true
	}
	if m.Description != "" {
		d.Description = m.Description
		changed = true
	}
	if m.DeviceCount != nil {
		d.DeviceCount = *m.DeviceCount
		changed = true
	}
	if m.ConnectionCount != nil {
		d.ConnectionCount = *m.ConnectionCount
		changed = true
	}
	if changed {
		d.UpdatedAt = now
	}
	return nil
}

// Clone returns a new draft of d under id, recording d as its parent.
func (d *Diagram) Clone(id, version, actor string, now time.Time) (*Diagram, error) {
	clone, err := NewDiagram(id, d.SiteID, actor, now)
	if err != nil {
		return nil, err
	}
	version = strings.TrimSpace(version)
	if version == "" {
		return nil, NewValidationError("version", "version is required")
	}
	clone.Version = version
	clone.Title = d.Title + " (Clone)"
	clone.Description = d.Description
	clone.DeviceCount = d.DeviceCount
	clone.ConnectionCount = d.ConnectionCount
	clone.ParentID = d.ID
	return clone, nil
}

// Promote makes the diagram the live version of its site.
func (d *Diagram) Promote(actor string, now time.Time) error {
	if err := ValidateTransition(d.Status, DiagramStatusDeployed); err != nil {
		return err
	}
	if actor == "" {
		actor = SystemActor
	}
	d.Status = DiagramStatusDeployed
	d.IsLive = true
	d.DeployedAt = &now
	d.DeployedBy = actor
	d.UpdatedAt = now
	return nil
}

// Archive demotes a deployed diagram. Its deploy stamp is kept as history.
func (d *Diagram) Archive(now time.Time) error {
	if err := ValidateTransition(d.Status, DiagramStatusArchived); err != nil {
		return err
	}
	d.Status = DiagramStatusArchived
	d.IsLive = false
	d.UpdatedAt = now
	return nil
}

// =============================================================================
// State Machine
// =============================================================================

// validTransitions defines the allowed diagram state transitions.
// deployed -> deployed re-stamps a redeploy of the live version.
var validTransitions = map[DiagramStatus][]DiagramStatus{
	DiagramStatusDraft:    {DiagramStatusDeployed},
	DiagramStatusDeployed: {DiagramStatusDeployed, DiagramStatusArchived},
	DiagramStatusArchived: {DiagramStatusDeployed},
}

// ValidateTransition checks if a status transition is valid.
func ValidateTransition(from, to DiagramStatus) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return &TransitionError{From: from, To: to}
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return &TransitionError{From: from, To: to}
}
