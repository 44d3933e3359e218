package deployment

import (
	"testing"
	"time"

	"github.com/artpar/archiflow/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func draft(t *testing.T, id string, site int64) domain.Diagram {
	t.Helper()
	d, err := domain.NewDiagram(id, site, "alice", now.Add(-time.Hour))
	require.NoError(t, err)
	return *d
}

func live(t *testing.T, id string, site int64) *domain.Diagram {
	t.Helper()
	d := draft(t, id, site)
	require.NoError(t, d.Promote("alice", now.Add(-time.Minute)))
	return &d
}

// =============================================================================
// PlanDeploy Tests
// =============================================================================

func TestPlanDeploy_FirstDeployment(t *testing.T) {
	plan, err := PlanDeploy(draft(t, "v1", 1), nil, "bob", "initial", now)
	require.NoError(t, err)

	assert.Equal(t, domain.DiagramStatusDeployed, plan.Promoted.Status)
	assert.True(t, plan.Promoted.IsLive)
	assert.Equal(t, "bob", plan.Promoted.DeployedBy)
	assert.Nil(t, plan.Demoted)

	require.Len(t, plan.Records, 1)
	assert.Equal(t, domain.ActionDeployed, plan.Records[0].Action)
	assert.Nil(t, plan.Records[0].PreviousLiveID)
	assert.Equal(t, "initial", plan.Records[0].Notes)
	assert.Len(t, plan.Writes(), 1)
}

func TestPlanDeploy_ReplacesLiveDiagram(t *testing.T) {
	prev := live(t, "v1", 1)

	plan, err := PlanDeploy(draft(t, "v2", 1), prev, "bob", "", now)
	require.NoError(t, err)

	require.NotNil(t, plan.Demoted)
	assert.Equal(t, "v1", plan.Demoted.ID)
	assert.Equal(t, domain.DiagramStatusArchived, plan.Demoted.Status)
	assert.False(t, plan.Demoted.IsLive)

	require.Len(t, plan.Records, 2)
	deployed, archived := plan.Records[0], plan.Records[1]

	assert.Equal(t, domain.ActionDeployed, deployed.Action)
	assert.Equal(t, "v2", deployed.DiagramID)
	require.NotNil(t, deployed.PreviousLiveID)
	assert.Equal(t, "v1", *deployed.PreviousLiveID)

	assert.Equal(t, domain.ActionArchived, archived.Action)
	assert.Equal(t, "v1", archived.DiagramID)
	require.NotNil(t, archived.PreviousLiveID)
	assert.Equal(t, "v1", *archived.PreviousLiveID)

	// Input is not mutated
	assert.True(t, prev.IsLive)
}

func TestPlanDeploy_WritesDemotionFirst(t *testing.T) {
	plan, err := PlanDeploy(draft(t, "v2", 1), live(t, "v1", 1), "bob", "", now)
	require.NoError(t, err)

	writes := plan.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, "v1", writes[0].ID)
	assert.False(t, writes[0].IsLive)
	assert.Equal(t, "v2", writes[1].ID)
	assert.True(t, writes[1].IsLive)
}

func TestPlanDeploy_RedeployLiveDiagram(t *testing.T) {
	current := live(t, "v1", 1)

	plan, err := PlanDeploy(*current, current, "carol", "", now)
	require.NoError(t, err)

	assert.Nil(t, plan.Demoted)
	require.Len(t, plan.Records, 1)
	assert.Nil(t, plan.Records[0].PreviousLiveID)
	assert.Equal(t, "carol", plan.Promoted.DeployedBy)
	assert.Equal(t, now, *plan.Promoted.DeployedAt)
}

func TestPlanDeploy_ArchivedTargetRejected(t *testing.T) {
	target := draft(t, "v1", 1)
	target.Status = domain.DiagramStatusArchived

	_, err := PlanDeploy(target, nil, "bob", "", now)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestPlanDeploy_CrossSiteLiveRejected(t *testing.T) {
	_, err := PlanDeploy(draft(t, "v2", 1), live(t, "other", 2), "bob", "", now)
	assert.Error(t, err)
}

// =============================================================================
// SelectRollbackTarget Tests
// =============================================================================

func TestSelectRollbackTarget(t *testing.T) {
	records := []domain.DeploymentRecord{
		{Seq: 1, DiagramID: "v1", Action: domain.ActionDeployed},
		{Seq: 2, DiagramID: "v2", Action: domain.ActionDeployed},
		{Seq: 3, DiagramID: "v1", Action: domain.ActionArchived},
		{Seq: 4, DiagramID: "v3", Action: domain.ActionDeployed},
		{Seq: 5, DiagramID: "v2", Action: domain.ActionArchived},
	}

	id, ok := SelectRollbackTarget(records, "v3")
	require.True(t, ok)
	assert.Equal(t, "v2", id)
}

func TestSelectRollbackTarget_IgnoresOrder(t *testing.T) {
	records := []domain.DeploymentRecord{
		{Seq: 9, DiagramID: "v2", Action: domain.ActionDeployed},
		{Seq: 3, DiagramID: "v1", Action: domain.ActionDeployed},
	}

	id, ok := SelectRollbackTarget(records, "v3")
	require.True(t, ok)
	assert.Equal(t, "v2", id)
}

func TestSelectRollbackTarget_OnlyCurrentDeployed(t *testing.T) {
	records := []domain.DeploymentRecord{
		{Seq: 1, DiagramID: "v1", Action: domain.ActionDeployed},
		{Seq: 2, DiagramID: "v1", Action: domain.ActionRolledBack},
	}

	_, ok := SelectRollbackTarget(records, "v1")
	assert.False(t, ok)
}

func TestSelectRollbackTarget_Empty(t *testing.T) {
	_, ok := SelectRollbackTarget(nil, "")
	assert.False(t, ok)
}

// =============================================================================
// PlanRollback Tests
// =============================================================================

func TestPlanRollback_RestoresPreviousVersion(t *testing.T) {
	v1 := draft(t, "v1", 1)
	require.NoError(t, v1.Promote("alice", now.Add(-2*time.Hour)))
	require.NoError(t, v1.Archive(now.Add(-time.Hour)))
	v2 := live(t, "v2", 1)

	plan, err := PlanRollback(1, &v1, v2, "dave", "bad release", now)
	require.NoError(t, err)

	assert.Equal(t, "v1", plan.Promoted.ID)
	assert.True(t, plan.Promoted.IsLive)
	assert.Equal(t, domain.DiagramStatusDeployed, plan.Promoted.Status)
	assert.Equal(t, "dave", plan.Promoted.DeployedBy)
	assert.Equal(t, now, *plan.Promoted.DeployedAt)

	require.NotNil(t, plan.Demoted)
	assert.Equal(t, "v2", plan.Demoted.ID)
	assert.Equal(t, domain.DiagramStatusArchived, plan.Demoted.Status)

	require.Len(t, plan.Records, 1)
	rec := plan.Records[0]
	assert.Equal(t, domain.ActionRolledBack, rec.Action)
	assert.Equal(t, "v1", rec.DiagramID)
	require.NotNil(t, rec.PreviousLiveID)
	assert.Equal(t, "v2", *rec.PreviousLiveID)
	assert.Equal(t, "bad release", rec.Notes)
}

func TestPlanRollback_NoTarget(t *testing.T) {
	_, err := PlanRollback(5, nil, live(t, "v1", 5), "dave", "", now)

	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "rollback target", nf.Entity)
	assert.Equal(t, "5", nf.ID)
}

func TestPlanRollback_NoCurrentLive(t *testing.T) {
	v1 := draft(t, "v1", 1)
	v1.Status = domain.DiagramStatusArchived

	plan, err := PlanRollback(1, &v1, nil, "dave", "", now)
	require.NoError(t, err)

	assert.Nil(t, plan.Demoted)
	require.Len(t, plan.Records, 1)
	assert.Nil(t, plan.Records[0].PreviousLiveID)
}

func TestPlanRollback_WrongSite(t *testing.T) {
	v1 := draft(t, "v1", 2)
	_, err := PlanRollback(1, &v1, nil, "dave", "", now)
	assert.Error(t, err)
}

// =============================================================================
// Summarize Tests
// =============================================================================

func TestSummarize(t *testing.T) {
	archived := draft(t, "v1", 1)
	archived.Status = domain.DiagramStatusArchived

	s := Summarize([]domain.Diagram{archived, *live(t, "v2", 1), draft(t, "v3", 1)})

	assert.Equal(t, Summary{Total: 3, Draft: 1, Deployed: 1, Archived: 1, LiveID: "v2"}, s)
}
