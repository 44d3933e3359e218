package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/artpar/archiflow/internal/core/domain"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ObserveOperation(t *testing.T) {
	c := NewCollector()

	c.ObserveOperation("deploy", nil, 10*time.Millisecond)
	c.ObserveOperation("deploy", domain.NewValidationError("site_id", "required"), time.Millisecond)
	c.ObserveOperation("rollback", domain.NewNotFoundError("rollback target", "1"), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.LedgerOperations.WithLabelValues("deploy", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.LedgerOperations.WithLabelValues("deploy", "invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.LedgerOperations.WithLabelValues("rollback", "not_found")))
}

func TestCollector_RecordAppended(t *testing.T) {
	c := NewCollector()

	c.RecordAppended(domain.ActionDeployed)
	c.RecordAppended(domain.ActionDeployed)
	c.RecordAppended(domain.ActionArchived)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.RecordsAppended.WithLabelValues("deployed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RecordsAppended.WithLabelValues("archived")))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "success", outcome(nil))
	assert.Equal(t, "conflict", outcome(&domain.TransitionError{From: "archived", To: "deployed"}))
	assert.Equal(t, "error", outcome(errors.New("disk full")))
}

func TestCollector_Middleware_UsesRoutePattern(t *testing.T) {
	c := NewCollector()

	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/api/deployment-status/{diagramID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/deployment-status/"+id, nil))
	}

	got := testutil.ToFloat64(c.HTTPRequestsTotal.WithLabelValues("GET", "/api/deployment-status/{diagramID}", "404"))
	assert.Equal(t, 3.0, got)
}

func TestCollector_RegisterGauge(t *testing.T) {
	c := NewCollector()
	require.NoError(t, c.RegisterGauge("event_subscribers", "Connected subscribers", func() float64 { return 4 }))

	// Duplicate registration is rejected by the registry
	assert.Error(t, c.RegisterGauge("event_subscribers", "again", func() float64 { return 0 }))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.ObserveOperation("deploy", nil, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "archiflow_ledger_operations_total")
	assert.Contains(t, string(body), "go_goroutines")
}
