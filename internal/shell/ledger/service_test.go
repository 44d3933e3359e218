package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/artpar/archiflow/internal/core/domain"
	"github.com/artpar/archiflow/internal/shell/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

type recordingPublisher struct {
	mu      sync.Mutex
	records []domain.DeploymentRecord
}

func (p *recordingPublisher) Publish(rec domain.DeploymentRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
}

type countingMetrics struct {
	mu       sync.Mutex
	ops      map[string]int
	failures map[string]int
	appended map[domain.DeploymentAction]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		ops:      map[string]int{},
		failures: map[string]int{},
		appended: map[domain.DeploymentAction]int{},
	}
}

func (m *countingMetrics) ObserveOperation(op string, err error, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops[op]++
	if err != nil {
		m.failures[op]++
	}
}

func (m *countingMetrics) RecordAppended(action domain.DeploymentAction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appended[action]++
}

func intPtr(v int) *int { return &v }

type fixture struct {
	svc       *Service
	store     *store.SQLiteStore
	publisher *recordingPublisher
	metrics   *countingMetrics
}

func setup(t *testing.T, siteIDs ...int64) *fixture {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}

	f := &fixture{
		store:     st,
		publisher: &recordingPublisher{},
		metrics:   newCountingMetrics(),
	}
	f.svc = NewService(st, nil, WithPublisher(f.publisher), WithMetrics(f.metrics), WithClock(tick))

	for _, id := range siteIDs {
		site := domain.Site{ID: id, Name: fmt.Sprintf("Site %d", id), Slug: fmt.Sprintf("site-%d", id), Status: "active"}
		require.NoError(t, st.UpsertSite(context.Background(), &site))
	}
	return f
}

func (f *fixture) deploy(t *testing.T, siteID int64, diagramID string) *TransitionResult {
	t.Helper()
	res, err := f.svc.Deploy(context.Background(), DeployRequest{SiteID: siteID, DiagramID: diagramID, Actor: "alice"})
	require.NoError(t, err)
	return res
}

func (f *fixture) liveIDs(t *testing.T, siteID int64) []string {
	t.Helper()
	diagrams, err := f.store.ListDiagramsBySite(context.Background(), siteID)
	require.NoError(t, err)
	var ids []string
	for _, d := range diagrams {
		if d.IsLive {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

func (f *fixture) allRecords(t *testing.T, siteID int64) []domain.DeploymentRecord {
	t.Helper()
	records, err := f.store.ListRecordsBySite(context.Background(), siteID, store.RecordFilter{
		ListOptions: store.ListOptions{Limit: 1000},
	})
	require.NoError(t, err)
	return records
}

// =============================================================================
// Deploy Tests
// =============================================================================

func TestDeploy_FirstDiagramCreatedAndLive(t *testing.T) {
	f := setup(t, 1)

	res, err := f.svc.Deploy(context.Background(), DeployRequest{
		SiteID:    1,
		DiagramID: "core-net",
		Actor:     "alice",
		Notes:     "initial",
		Metadata:  domain.DiagramMetadata{Version: "2.0", Title: "Core"},
	})
	require.NoError(t, err)

	assert.Equal(t, "core-net", res.Diagram.ID)
	assert.True(t, res.Diagram.IsLive)
	assert.Equal(t, domain.DiagramStatusDeployed, res.Diagram.Status)
	assert.Equal(t, "2.0", res.Diagram.Version)
	assert.Equal(t, "alice", res.Diagram.DeployedBy)
	assert.Nil(t, res.Previous)

	stored, err := f.store.GetDiagram(context.Background(), "core-net")
	require.NoError(t, err)
	assert.True(t, stored.IsLive)
	assert.Equal(t, "Core", stored.Title)

	records := f.allRecords(t, 1)
	require.Len(t, records, 1)
	assert.Equal(t, domain.ActionDeployed, records[0].Action)
	assert.Nil(t, records[0].PreviousLiveID)
	assert.Equal(t, "initial", records[0].Notes)
}

func TestDeploy_OverLiveDiagramWritesTwoRecords(t *testing.T) {
	f := setup(t, 1)
	f.deploy(t, 1, "v1")

	res := f.deploy(t, 1, "v2")
	require.NotNil(t, res.Previous)
	assert.Equal(t, "v1", res.Previous.ID)
	require.Len(t, res.Records, 2)

	assert.Equal(t, []string{"v2"}, f.liveIDs(t, 1))

	v1, err := f.store.GetDiagram(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, domain.DiagramStatusArchived, v1.Status)
	assert.False(t, v1.IsLive)

	v2History, err := f.store.ListRecordsByDiagram(context.Background(), "v2")
	require.NoError(t, err)
	require.Len(t, v2History, 1)
	assert.Equal(t, domain.ActionDeployed, v2History[0].Action)
	require.NotNil(t, v2History[0].PreviousLiveID)
	assert.Equal(t, "v1", *v2History[0].PreviousLiveID)

	v1History, err := f.store.ListRecordsByDiagram(context.Background(), "v1")
	require.NoError(t, err)
	require.Len(t, v1History, 2)
	archived := v1History[1]
	assert.Equal(t, domain.ActionArchived, archived.Action)
	require.NotNil(t, archived.PreviousLiveID)
	assert.Equal(t, "v1", *archived.PreviousLiveID)
}

func TestDeploy_MissingSiteID(t *testing.T) {
	f := setup(t, 1)

	_, err := f.svc.Deploy(context.Background(), DeployRequest{DiagramID: "v1"})

	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "site_id", vErr.Field)
	assert.Empty(t, f.allRecords(t, 1))
	assert.Equal(t, 1, f.metrics.failures["deploy"])
}

func TestDeploy_MissingDiagramID(t *testing.T) {
	f := setup(t, 1)

	_, err := f.svc.Deploy(context.Background(), DeployRequest{SiteID: 1, DiagramID: "  "})
	assert.True(t, domain.IsValidation(err))
}

func TestDeploy_UnknownSite(t *testing.T) {
	f := setup(t, 1)

	_, err := f.svc.Deploy(context.Background(), DeployRequest{SiteID: 404, DiagramID: "v1"})

	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "site", nf.Entity)

	_, err = f.store.GetDiagram(context.Background(), "v1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeploy_DiagramOfOtherSiteRejected(t *testing.T) {
	f := setup(t, 1, 2)
	f.deploy(t, 1, "shared")

	_, err := f.svc.Deploy(context.Background(), DeployRequest{SiteID: 2, DiagramID: "shared"})
	assert.True(t, domain.IsValidation(err))
	assert.Empty(t, f.liveIDs(t, 2))
	assert.Equal(t, []string{"shared"}, f.liveIDs(t, 1))
}

func TestDeploy_NegativeCountRejected(t *testing.T) {
	f := setup(t, 1)

	_, err := f.svc.Deploy(context.Background(), DeployRequest{
		SiteID:    1,
		DiagramID: "v1",
		Metadata:  domain.DiagramMetadata{DeviceCount: intPtr(-2)},
	})

	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "device_count", vErr.Field)

	_, err = f.store.GetDiagram(context.Background(), "v1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, f.allRecords(t, 1))
	assert.Empty(t, f.publisher.records)
}

func TestDeploy_RedeployLiveDiagram(t *testing.T) {
	f := setup(t, 1)
	first := f.deploy(t, 1, "v1")

	second, err := f.svc.Deploy(context.Background(), DeployRequest{SiteID: 1, DiagramID: "v1", Actor: "bob"})
	require.NoError(t, err)

	assert.Nil(t, second.Previous)
	assert.Equal(t, "bob", second.Diagram.DeployedBy)
	assert.True(t, second.Diagram.DeployedAt.After(*first.Diagram.DeployedAt))
	assert.Equal(t, []string{"v1"}, f.liveIDs(t, 1))
	assert.Len(t, f.allRecords(t, 1), 2)
}

func TestDeploy_ArchivedDiagramRejected(t *testing.T) {
	f := setup(t, 1)
	f.deploy(t, 1, "v1")
	f.deploy(t, 1, "v2")

	_, err := f.svc.Deploy(context.Background(), DeployRequest{SiteID: 1, DiagramID: "v1"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, []string{"v2"}, f.liveIDs(t, 1))
	assert.Len(t, f.allRecords(t, 1), 3)
}

func TestDeploy_EmptyActorRecordedAsSystem(t *testing.T) {
	f := setup(t, 1)

	res, err := f.svc.Deploy(context.Background(), DeployRequest{SiteID: 1, DiagramID: "v1"})
	require.NoError(t, err)

	assert.Equal(t, domain.SystemActor, res.Diagram.DeployedBy)
	assert.Equal(t, domain.SystemActor, res.Records[0].PerformedBy)
}

func TestDeploy_SitesAreIndependent(t *testing.T) {
	f := setup(t, 1, 2)
	f.deploy(t, 1, "a1")
	f.deploy(t, 2, "b1")
	f.deploy(t, 1, "a2")

	assert.Equal(t, []string{"a2"}, f.liveIDs(t, 1))
	assert.Equal(t, []string{"b1"}, f.liveIDs(t, 2))
}

func TestDeploy_AtMostOneLiveAfterAnySequence(t *testing.T) {
	f := setup(t, 1)

	for _, id := range []string{"v1", "v2", "v1", "v3", "v3", "v4"} {
		_, err := f.svc.Deploy(context.Background(), DeployRequest{SiteID: 1, DiagramID: id})
		if err != nil {
			// Redeploying an archived version is a rejected transition
			require.ErrorIs(t, err, domain.ErrInvalidTransition)
		}
		assert.LessOrEqual(t, len(f.liveIDs(t, 1)), 1)
	}
	assert.Equal(t, []string{"v4"}, f.liveIDs(t, 1))
}

func TestDeploy_ConcurrentDeploysKeepSingleLive(t *testing.T) {
	f := setup(t, 1)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Deploy(context.Background(), DeployRequest{SiteID: 1, DiagramID: fmt.Sprintf("d%d", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, f.liveIDs(t, 1), 1)

	// 1 first deploy + 7 deploys that each archive the previous one
	assert.Len(t, f.allRecords(t, 1), 15)
}

func TestDeploy_PublishesAfterCommit(t *testing.T) {
	f := setup(t, 1)
	f.deploy(t, 1, "v1")
	f.deploy(t, 1, "v2")

	require.Len(t, f.publisher.records, 3)
	assert.Equal(t, domain.ActionDeployed, f.publisher.records[0].Action)
	assert.Equal(t, domain.ActionDeployed, f.publisher.records[1].Action)
	assert.Equal(t, domain.ActionArchived, f.publisher.records[2].Action)
	assert.Greater(t, f.publisher.records[2].Seq, f.publisher.records[1].Seq)

	assert.Equal(t, 2, f.metrics.appended[domain.ActionDeployed])
	assert.Equal(t, 1, f.metrics.appended[domain.ActionArchived])
	assert.Equal(t, 2, f.metrics.ops["deploy"])
}

func TestDeploy_FailureDoesNotPublish(t *testing.T) {
	f := setup(t, 1)

	_, err := f.svc.Deploy(context.Background(), DeployRequest{SiteID: 9, DiagramID: "v1"})
	require.Error(t, err)
	assert.Empty(t, f.publisher.records)
}

// =============================================================================
// Rollback Tests
// =============================================================================

func TestRollback_RestoresPreviousVersion(t *testing.T) {
	f := setup(t, 1)
	f.deploy(t, 1, "v1")
	f.deploy(t, 1, "v2")

	res, err := f.svc.Rollback(context.Background(), RollbackRequest{SiteID: 1, Actor: "carol", Notes: "bad release"})
	require.NoError(t, err)

	assert.Equal(t, "v1", res.Diagram.ID)
	assert.Equal(t, "carol", res.Diagram.DeployedBy)
	require.NotNil(t, res.Previous)
	assert.Equal(t, "v2", res.Previous.ID)
	assert.Equal(t, []string{"v1"}, f.liveIDs(t, 1))

	v2, err := f.store.GetDiagram(context.Background(), "v2")
	require.NoError(t, err)
	assert.Equal(t, domain.DiagramStatusArchived, v2.Status)

	latest := f.allRecords(t, 1)[0]
	assert.Equal(t, domain.ActionRolledBack, latest.Action)
	assert.Equal(t, "v1", latest.DiagramID)
	require.NotNil(t, latest.PreviousLiveID)
	assert.Equal(t, "v2", *latest.PreviousLiveID)
	assert.Equal(t, "bad release", latest.Notes)
}

func TestRollback_TogglesBetweenLastTwoVersions(t *testing.T) {
	f := setup(t, 1)
	f.deploy(t, 1, "v1")
	f.deploy(t, 1, "v2")
	f.deploy(t, 1, "v3")

	res, err := f.svc.Rollback(context.Background(), RollbackRequest{SiteID: 1})
	require.NoError(t, err)
	assert.Equal(t, "v2", res.Diagram.ID)

	res, err = f.svc.Rollback(context.Background(), RollbackRequest{SiteID: 1})
	require.NoError(t, err)
	assert.Equal(t, "v3", res.Diagram.ID)
	assert.Equal(t, []string{"v3"}, f.liveIDs(t, 1))
}

func TestRollback_NoPriorVersion(t *testing.T) {
	f := setup(t, 1)
	f.deploy(t, 1, "v1")
	before := f.allRecords(t, 1)

	_, err := f.svc.Rollback(context.Background(), RollbackRequest{SiteID: 1})

	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "rollback target", nf.Entity)

	assert.Equal(t, before, f.allRecords(t, 1))
	assert.Equal(t, []string{"v1"}, f.liveIDs(t, 1))
}

func TestRollback_EmptySite(t *testing.T) {
	f := setup(t, 1)

	_, err := f.svc.Rollback(context.Background(), RollbackRequest{SiteID: 1})
	assert.True(t, domain.IsNotFound(err))
	assert.Empty(t, f.allRecords(t, 1))
}

func TestRollback_Validation(t *testing.T) {
	f := setup(t, 1)

	_, err := f.svc.Rollback(context.Background(), RollbackRequest{})
	assert.True(t, domain.IsValidation(err))

	_, err = f.svc.Rollback(context.Background(), RollbackRequest{SiteID: 77})
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "site", nf.Entity)
}

// =============================================================================
// Query Tests
// =============================================================================

func TestGetDiagramStatus(t *testing.T) {
	f := setup(t, 1)
	f.deploy(t, 1, "v1")
	f.deploy(t, 1, "v2")

	status, err := f.svc.GetDiagramStatus(context.Background(), "v1")
	require.NoError(t, err)

	assert.Equal(t, domain.DiagramStatusArchived, status.Diagram.Status)
	require.Len(t, status.History, 2)
	assert.Equal(t, domain.ActionDeployed, status.History[0].Action)
	assert.Equal(t, domain.ActionArchived, status.History[1].Action)
}

func TestGetDiagramStatus_NotFound(t *testing.T) {
	f := setup(t, 1)

	_, err := f.svc.GetDiagramStatus(context.Background(), "ghost")
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "diagram", nf.Entity)
}

func TestGetSiteStatus(t *testing.T) {
	f := setup(t, 1)
	f.deploy(t, 1, "v1")
	f.deploy(t, 1, "v2")

	status, err := f.svc.GetSiteStatus(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, "Site 1", status.Site.Name)
	require.NotNil(t, status.Live)
	assert.Equal(t, "v2", status.Live.ID)
	assert.Len(t, status.Diagrams, 2)
	assert.Equal(t, 1, status.Summary.Deployed)
	assert.Equal(t, 1, status.Summary.Archived)
	assert.Equal(t, "v2", status.Summary.LiveID)
}

func TestGetSiteStatus_HistoryChronological(t *testing.T) {
	f := setup(t, 1, 2)
	ids := []string{"v1", "v2", "v3", "v4", "v5", "v6", "v7"}
	for _, id := range ids {
		f.deploy(t, 1, id)
	}
	f.deploy(t, 2, "other")

	status, err := f.svc.GetSiteStatus(context.Background(), 1)
	require.NoError(t, err)

	// N deployed + N-1 archived, beyond the SiteHistory default limit
	require.Len(t, status.History, 2*len(ids)-1)
	assert.Greater(t, len(status.History), DefaultHistoryLimit)
	for i, rec := range status.History {
		assert.Equal(t, int64(1), rec.SiteID)
		if i > 0 {
			assert.Greater(t, rec.Seq, status.History[i-1].Seq, "oldest first")
		}
	}
	assert.Equal(t, "v1", status.History[0].DiagramID)
	assert.Equal(t, domain.ActionDeployed, status.History[len(status.History)-1].Action)
	assert.Equal(t, "v7", status.History[len(status.History)-1].DiagramID)
}

func TestGetSiteStatus_NoDiagrams(t *testing.T) {
	f := setup(t, 1)

	status, err := f.svc.GetSiteStatus(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, status.Live)
	assert.Empty(t, status.Diagrams)
	assert.Empty(t, status.History)

	_, err = f.svc.GetSiteStatus(context.Background(), 2)
	assert.True(t, domain.IsNotFound(err))
}

func TestSiteHistory_NewestFirst(t *testing.T) {
	f := setup(t, 1)
	ids := []string{"v1", "v2", "v3", "v4"}
	for _, id := range ids {
		f.deploy(t, 1, id)
	}

	history, err := f.svc.SiteHistory(context.Background(), 1, 100)
	require.NoError(t, err)

	// N deployed + N-1 archived
	require.Len(t, history, 2*len(ids)-1)

	var deployed, archived int
	for i, rec := range history {
		if i > 0 {
			assert.Less(t, rec.Seq, history[i-1].Seq, "newest first")
			assert.False(t, rec.Timestamp.After(history[i-1].Timestamp))
		}
		switch rec.Action {
		case domain.ActionDeployed:
			deployed++
		case domain.ActionArchived:
			archived++
		}
	}
	assert.Equal(t, len(ids), deployed)
	assert.Equal(t, len(ids)-1, archived)
}

func TestListSiteStatuses(t *testing.T) {
	f := setup(t, 1, 2, 3)
	f.deploy(t, 1, "v1")
	f.deploy(t, 1, "v2")
	f.deploy(t, 2, "b1")

	statuses, err := f.svc.ListSiteStatuses(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 3)

	assert.Equal(t, "Site 1", statuses[0].Site.Name)
	require.NotNil(t, statuses[0].Live)
	assert.Equal(t, "v2", statuses[0].Live.ID)
	assert.Len(t, statuses[0].Diagrams, 2)
	assert.Equal(t, 1, statuses[0].Summary.Archived)

	require.NotNil(t, statuses[1].Live)
	assert.Equal(t, "b1", statuses[1].Live.ID)

	assert.Nil(t, statuses[2].Live)
	assert.Empty(t, statuses[2].Diagrams)
	assert.Equal(t, 0, statuses[2].Summary.Total)
	for _, st := range statuses {
		assert.Empty(t, st.History)
	}
}

func TestSiteHistory_DefaultLimit(t *testing.T) {
	f := setup(t, 1)
	for i := 0; i < 8; i++ {
		f.deploy(t, 1, fmt.Sprintf("v%d", i))
	}

	history, err := f.svc.SiteHistory(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Len(t, history, DefaultHistoryLimit)
}

func TestSiteHistory_Errors(t *testing.T) {
	f := setup(t, 1)

	_, err := f.svc.SiteHistory(context.Background(), 0, 10)
	assert.True(t, domain.IsValidation(err))

	_, err = f.svc.SiteHistory(context.Background(), 3, 10)
	assert.True(t, domain.IsNotFound(err))
}

// =============================================================================
// Draft & Clone Tests
// =============================================================================

func TestCreateDraft(t *testing.T) {
	f := setup(t, 1)

	d, err := f.svc.CreateDraft(context.Background(), CreateDraftRequest{
		SiteID:    1,
		DiagramID: "core-net",
		Actor:     "alice",
		Metadata:  domain.DiagramMetadata{Version: "0.1", Title: "Core", DeviceCount: intPtr(4)},
	})
	require.NoError(t, err)

	assert.Equal(t, "core-net", d.ID)
	assert.Equal(t, domain.DiagramStatusDraft, d.Status)
	assert.False(t, d.IsLive)
	assert.Equal(t, "0.1", d.Version)
	assert.Equal(t, "Core", d.Title)
	assert.Equal(t, 4, d.DeviceCount)

	stored, err := f.store.GetDiagram(context.Background(), "core-net")
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.CreatedBy)

	assert.Empty(t, f.allRecords(t, 1))
	assert.Empty(t, f.publisher.records)
	assert.Equal(t, 1, f.metrics.ops["create_draft"])

	res := f.deploy(t, 1, "core-net")
	assert.Equal(t, "Core", res.Diagram.Title)
	assert.Equal(t, []string{"core-net"}, f.liveIDs(t, 1))
}

func TestCreateDraft_GeneratesID(t *testing.T) {
	f := setup(t, 1)

	d, err := f.svc.CreateDraft(context.Background(), CreateDraftRequest{SiteID: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, d.ID, d.Title)
	assert.Equal(t, domain.SystemActor, d.CreatedBy)
}

func TestCreateDraft_Errors(t *testing.T) {
	f := setup(t, 1)
	ctx := context.Background()

	_, err := f.svc.CreateDraft(ctx, CreateDraftRequest{DiagramID: "x"})
	assert.True(t, domain.IsValidation(err))

	_, err = f.svc.CreateDraft(ctx, CreateDraftRequest{SiteID: 9, DiagramID: "x"})
	assert.True(t, domain.IsNotFound(err))

	_, err = f.svc.CreateDraft(ctx, CreateDraftRequest{SiteID: 1, DiagramID: "x",
		Metadata: domain.DiagramMetadata{ConnectionCount: intPtr(-1)}})
	assert.True(t, domain.IsValidation(err))
	_, err = f.store.GetDiagram(ctx, "x")
	assert.ErrorIs(t, err, store.ErrNotFound)

	f.deploy(t, 1, "live")
	_, err = f.svc.CreateDraft(ctx, CreateDraftRequest{SiteID: 1, DiagramID: "live"})
	var cErr *domain.ConflictError
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, "diagram", cErr.Entity)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	stored, err := f.store.GetDiagram(ctx, "live")
	require.NoError(t, err)
	assert.True(t, stored.IsLive)
	assert.Equal(t, 4, f.metrics.failures["create_draft"])
}

func TestCloneVersion(t *testing.T) {
	f := setup(t, 1)
	_, err := f.svc.Deploy(context.Background(), DeployRequest{
		SiteID:    1,
		DiagramID: "v1",
		Actor:     "alice",
		Metadata: domain.DiagramMetadata{
			Title:           "Core",
			Description:     "spine/leaf",
			DeviceCount:     intPtr(8),
			ConnectionCount: intPtr(16),
		},
	})
	require.NoError(t, err)

	clone, err := f.svc.CloneVersion(context.Background(), CloneRequest{
		SourceID:  "v1",
		DiagramID: "v2",
		Version:   "2.0",
		Actor:     "bob",
	})
	require.NoError(t, err)

	assert.Equal(t, "v2", clone.ID)
	assert.Equal(t, int64(1), clone.SiteID)
	assert.Equal(t, "Core (Clone)", clone.Title)
	assert.Equal(t, "spine/leaf", clone.Description)
	assert.Equal(t, "2.0", clone.Version)
	assert.Equal(t, 8, clone.DeviceCount)
	assert.Equal(t, "v1", clone.ParentID)
	assert.Equal(t, domain.DiagramStatusDraft, clone.Status)
	assert.Equal(t, "bob", clone.CreatedBy)

	// the source stays live and no record is appended
	assert.Equal(t, []string{"v1"}, f.liveIDs(t, 1))
	assert.Len(t, f.allRecords(t, 1), 1)

	stored, err := f.store.GetDiagram(context.Background(), "v2")
	require.NoError(t, err)
	assert.Equal(t, "v1", stored.ParentID)
}

func TestCloneVersion_Errors(t *testing.T) {
	f := setup(t, 1)
	ctx := context.Background()
	f.deploy(t, 1, "v1")

	_, err := f.svc.CloneVersion(ctx, CloneRequest{SourceID: "ghost", Version: "2.0"})
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "diagram", nf.Entity)

	_, err = f.svc.CloneVersion(ctx, CloneRequest{SourceID: "v1"})
	assert.True(t, domain.IsValidation(err))

	_, err = f.svc.CloneVersion(ctx, CloneRequest{SourceID: " ", Version: "2.0"})
	assert.True(t, domain.IsValidation(err))

	_, err = f.svc.CloneVersion(ctx, CloneRequest{SourceID: "v1", DiagramID: "v1", Version: "2.0"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	assert.Equal(t, 4, f.metrics.failures["clone_version"])
}

// =============================================================================
// Site Sync Tests
// =============================================================================

func TestSyncSites_UpsertsIdempotently(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	input := []domain.Site{
		{ID: 2, Name: "Beta DC"},
		{ID: 1, Name: "Alpha DC", Status: "planned"},
	}

	n, err := f.svc.SyncSites(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.svc.SyncSites(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sites, err := f.svc.ListSites(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "Alpha DC", sites[0].Name)
	assert.Equal(t, "planned", sites[0].Status)
	assert.Equal(t, "beta-dc", sites[1].Slug)
	assert.NotNil(t, sites[1].LastSynced)
}

func TestSyncSites_InvalidBatchRejected(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.SyncSites(ctx, []domain.Site{{ID: 1, Name: "ok"}, {ID: 0, Name: "bad"}})
	assert.True(t, domain.IsValidation(err))

	sites, err := f.svc.ListSites(ctx)
	require.NoError(t, err)
	assert.Empty(t, sites)
}

func TestListSites_Empty(t *testing.T) {
	f := setup(t)

	sites, err := f.svc.ListSites(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, sites)
	assert.Empty(t, sites)
}

func TestErrorsAreTyped(t *testing.T) {
	f := setup(t, 1)
	_, err := f.svc.Deploy(context.Background(), DeployRequest{SiteID: 5, DiagramID: "x"})
	assert.False(t, errors.Is(err, domain.ErrValidation))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
