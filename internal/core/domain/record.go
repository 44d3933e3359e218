package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Deployment Actions
// =============================================================================

// DeploymentAction names the transition captured by a DeploymentRecord.
type DeploymentAction string

const (
	ActionDeployed   DeploymentAction = "deployed"
	ActionArchived   DeploymentAction = "archived"
	ActionRolledBack DeploymentAction = "rolled_back"
)

// IsValid checks if the action is known.
func (a DeploymentAction) IsValid() bool {
	switch a {
	case ActionDeployed, ActionArchived, ActionRolledBack:
		return true
	default:
		return false
	}
}

// =============================================================================
// Deployment Record
// =============================================================================

// DeploymentRecord is an immutable audit entry for one diagram transition.
// Seq is assigned by the store on append and orders records chronologically.
type DeploymentRecord struct {
	ID             string           `json:"id"`
	Seq            int64            `json:"seq"`
	DiagramID      string           `json:"diagram_id"`
	SiteID         int64            `json:"site_id"`
	Action         DeploymentAction `json:"action"`
	Timestamp      time.Time        `json:"timestamp"`
	PerformedBy    string           `json:"performed_by"`
	Notes          string           `json:"notes,omitempty"`
	PreviousLiveID *string          `json:"previous_live_id,omitempty"`
}

// NewDeploymentRecord builds a record for a transition of diagram d.
// previousLive is the diagram that was live for the site before the transition.
func NewDeploymentRecord(d *Diagram, action DeploymentAction, actor, notes string, previousLive *Diagram, now time.Time) DeploymentRecord {
	if actor == "" {
		actor = SystemActor
	}
	rec := DeploymentRecord{
		ID:          uuid.New().String(),
		DiagramID:   d.ID,
		SiteID:      d.SiteID,
		Action:      action,
		Timestamp:   now,
		PerformedBy: actor,
		Notes:       notes,
	}
	if previousLive != nil {
		id := previousLive.ID
		rec.PreviousLiveID = &id
	}
	return rec
}
