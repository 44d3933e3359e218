package deployment

import (
	"fmt"
	"strconv"
	"time"

	"github.com/artpar/archiflow/internal/core/domain"
)

// =============================================================================
// Transition Plans
// =============================================================================

// Plan is the outcome of planning a ledger operation. It holds the diagrams
// in their post-transition state and the records to append, in order.
type Plan struct {
	// Promoted is the diagram that becomes live.
	Promoted domain.Diagram

	// Demoted is the previously live diagram, archived by this plan.
	// Nil when the site had no other live diagram.
	Demoted *domain.Diagram

	// Records are appended in slice order.
	Records []domain.DeploymentRecord
}

// Writes returns the diagrams to persist, demotion first so that the
// single-live constraint holds after every individual write.
func (p Plan) Writes() []domain.Diagram {
	if p.Demoted == nil {
		return []domain.Diagram{p.Promoted}
	}
	return []domain.Diagram{*p.Demoted, p.Promoted}
}

// PlanDeploy plans making target the live diagram of its site.
//
// currentLive is the site's live diagram, if any. It is ignored when it is
// target itself (a redeploy re-stamps the live version without archiving it).
//
// The plan appends a `deployed` record for target referencing the previous
// live diagram and, when one existed, an `archived` record for it.
//
// Archived versions are re-promoted only through PlanRollback.
func PlanDeploy(target domain.Diagram, currentLive *domain.Diagram, actor, notes string, now time.Time) (Plan, error) {
	if target.Status == domain.DiagramStatusArchived {
		return Plan{}, &domain.TransitionError{From: target.Status, To: domain.DiagramStatusDeployed}
	}
	if currentLive != nil && currentLive.ID == target.ID {
		currentLive = nil
	}
	if currentLive != nil && currentLive.SiteID != target.SiteID {
		return Plan{}, fmt.Errorf("live diagram %s belongs to site %d, not %d", currentLive.ID, currentLive.SiteID, target.SiteID)
	}

	promoted := target
	if err := promoted.Promote(actor, now); err != nil {
		return Plan{}, err
	}

	plan := Plan{
		Promoted: promoted,
		Records: []domain.DeploymentRecord{
			domain.NewDeploymentRecord(&promoted, domain.ActionDeployed, actor, notes, currentLive, now),
		},
	}

	if currentLive != nil {
		demoted := *currentLive
		if err := demoted.Archive(now); err != nil {
			return Plan{}, err
		}
		plan.Demoted = &demoted
		plan.Records = append(plan.Records,
			domain.NewDeploymentRecord(&demoted, domain.ActionArchived, actor, notes, currentLive, now))
	}

	return plan, nil
}

// SelectRollbackTarget returns the diagram of the most recent `deployed`
// record whose diagram is not currentLiveID. Records may be in any order;
// recency is decided by Seq. The second result is false when no such record
// exists.
func SelectRollbackTarget(records []domain.DeploymentRecord, currentLiveID string) (string, bool) {
	var best *domain.DeploymentRecord
	for i := range records {
		r := &records[i]
		if r.Action != domain.ActionDeployed || r.DiagramID == currentLiveID {
			continue
		}
		if best == nil || r.Seq > best.Seq {
			best = r
		}
	}
	if best == nil {
		return "", false
	}
	return best.DiagramID, true
}

// PlanRollback plans re-promoting target, the version that was live before
// currentLive. A nil target means the site has nothing to roll back to.
//
// The plan archives currentLive (when it differs from target) and appends a
// single `rolled_back` record for target referencing currentLive.
func PlanRollback(siteID int64, target *domain.Diagram, currentLive *domain.Diagram, actor, notes string, now time.Time) (Plan, error) {
	if target == nil {
		return Plan{}, domain.NewNotFoundError("rollback target", strconv.FormatInt(siteID, 10))
	}
	if target.SiteID != siteID {
		return Plan{}, fmt.Errorf("rollback target %s belongs to site %d, not %d", target.ID, target.SiteID, siteID)
	}
	if currentLive != nil && currentLive.ID == target.ID {
		currentLive = nil
	}

	promoted := *target
	if err := promoted.Promote(actor, now); err != nil {
		return Plan{}, err
	}

	plan := Plan{Promoted: promoted}

	if currentLive != nil {
		demoted := *currentLive
		if err := demoted.Archive(now); err != nil {
			return Plan{}, err
		}
		plan.Demoted = &demoted
	}

	plan.Records = []domain.DeploymentRecord{
		domain.NewDeploymentRecord(&promoted, domain.ActionRolledBack, actor, notes, currentLive, now),
	}

	return plan, nil
}

// =============================================================================
// Site Summary
// =============================================================================

// Summary counts a site's diagrams by status.
type Summary struct {
	Total    int    `json:"total"`
	Draft    int    `json:"draft"`
	Deployed int    `json:"deployed"`
	Archived int    `json:"archived"`
	LiveID   string `json:"live_id,omitempty"`
}

// Summarize builds the per-status summary of diagrams.
func Summarize(diagrams []domain.Diagram) Summary {
	s := Summary{Total: len(diagrams)}
	for _, d := range diagrams {
		switch d.Status {
		case domain.DiagramStatusDraft:
			s.Draft++
		case domain.DiagramStatusDeployed:
			s.Deployed++
		case domain.DiagramStatusArchived:
			s.Archived++
		}
		if d.IsLive {
			s.LiveID = d.ID
		}
	}
	return s
}
