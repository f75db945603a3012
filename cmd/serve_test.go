package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-harvest/internal/harvest"
	"github.com/sells-group/lead-harvest/internal/metrics"
	"github.com/sells-group/lead-harvest/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedRun(t *testing.T, st store.Store) *store.Run {
	t.Helper()
	ctx := context.Background()
	run, err := st.CreateRun(ctx, store.NewRun{Query: "roofing contractor", Keywords: []string{"roof"}, Locations: 1})
	require.NoError(t, err)
	_, err = st.SaveLeads(ctx, []store.LeadRecord{
		{RunID: run.ID, Outcome: store.OutcomeAccepted, Name: "Acme Roofing", Phone: "1"},
		{RunID: run.ID, Outcome: store.OutcomeRejected, Reason: "duplicate", Name: "Acme Roofing", Phone: "1"},
	})
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, run.ID, store.RunStatusComplete, &harvest.RunStatistics{Accepted: 1, Rejected: 1, TotalObserved: 2}, ""))
	return run
}

func serve(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestBuildRouter_Health(t *testing.T) {
	h := buildRouter(newTestStore(t), prometheus.NewRegistry())

	rr := serve(t, h, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestBuildRouter_ListRuns(t *testing.T) {
	st := newTestStore(t)
	run := seedRun(t, st)
	h := buildRouter(st, prometheus.NewRegistry())

	rr := serve(t, h, "/v1/runs")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Runs []store.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, run.ID, body.Runs[0].ID)
	require.NotNil(t, body.Runs[0].Stats)
	assert.Equal(t, 1, body.Runs[0].Stats.Accepted)

	rr = serve(t, h, "/v1/runs?status=failed")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"runs":[]}`, rr.Body.String())

	rr = serve(t, h, "/v1/runs?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBuildRouter_GetRun(t *testing.T) {
	st := newTestStore(t)
	run := seedRun(t, st)
	h := buildRouter(st, prometheus.NewRegistry())

	rr := serve(t, h, "/v1/runs/"+run.ID)
	require.Equal(t, http.StatusOK, rr.Code)

	var got store.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "roofing contractor", got.Query)
	assert.Equal(t, store.RunStatusComplete, got.Status)

	rr = serve(t, h, "/v1/runs/missing")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBuildRouter_Leads(t *testing.T) {
	st := newTestStore(t)
	run := seedRun(t, st)
	h := buildRouter(st, prometheus.NewRegistry())

	rr := serve(t, h, "/v1/runs/"+run.ID+"/leads?outcome=rejected")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Leads []store.LeadRecord `json:"leads"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Leads, 1)
	assert.Equal(t, "duplicate", body.Leads[0].Reason)

	rr = serve(t, h, "/v1/runs/"+run.ID+"/leads?outcome=maybe")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBuildRouter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg).ObserveLocation("ok")
	h := buildRouter(newTestStore(t), reg)

	rr := serve(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "leads_locations_total")
}

func TestBuildRouter_CORS(t *testing.T) {
	h := buildRouter(newTestStore(t), prometheus.NewRegistry())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
