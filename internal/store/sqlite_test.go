package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-harvest/internal/harvest"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func ptr[T any](v T) *T { return &v }

// --- Runs ---

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, NewRun{Query: "roofing contractor", Keywords: []string{"roof", "shingle"}, Locations: 4})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "roofing contractor", got.Query)
	assert.Equal(t, []string{"roof", "shingle"}, got.Keywords)
	assert.Equal(t, 4, got.Locations)
	assert.Nil(t, got.Stats)

	stats := &harvest.RunStatistics{
		TotalObserved:    5,
		Accepted:         3,
		Rejected:         2,
		RejectedByReason: map[harvest.Reason]int{harvest.ReasonDuplicate: 2},
		LocationsTotal:   4,
	}
	require.NoError(t, st.CompleteRun(ctx, run.ID, RunStatusComplete, stats, ""))

	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusComplete, got.Status)
	require.NotNil(t, got.Stats)
	assert.Equal(t, 3, got.Stats.Accepted)
	assert.Equal(t, 2, got.Stats.RejectedByReason[harvest.ReasonDuplicate])
}

func TestSQLite_CompleteRun_Failed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, NewRun{Query: "plumber"})
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, run.ID, RunStatusFailed, nil, "context canceled"))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "context canceled", got.Error)
	assert.Empty(t, got.Keywords)
}

func TestSQLite_CompleteRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.CompleteRun(context.Background(), "missing", RunStatusComplete, nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.CreateRun(ctx, NewRun{Query: "a"})
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, NewRun{Query: "b"})
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, NewRun{Query: "c"})
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, a.ID, RunStatusComplete, nil, ""))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	complete, err := st.ListRuns(ctx, RunFilter{Status: RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, a.ID, complete[0].ID)

	page, err := st.ListRuns(ctx, RunFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	rest, err := st.ListRuns(ctx, RunFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

// --- Leads ---

func TestSQLite_SaveAndListLeads(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, NewRun{Query: "roofing contractor"})
	require.NoError(t, err)

	n, err := st.SaveLeads(ctx, []LeadRecord{
		{RunID: run.ID, Outcome: OutcomeAccepted, PlaceID: "p1", Name: "Acme Roofing", Phone: "(555) 010-0001", Rating: ptr(4.5), Reviews: ptr(12), Score: 54},
		{RunID: run.ID, Outcome: OutcomeAccepted, PlaceID: "p2", Name: "Best Roofing", Website: "https://best.example"},
		{RunID: run.ID, Outcome: OutcomeRejected, Reason: string(harvest.ReasonNoContact), PlaceID: "p3", Name: "Quiet Roofing"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	all, err := st.ListLeads(ctx, LeadFilter{RunID: run.ID})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Acme Roofing", all[0].Name)
	require.NotNil(t, all[0].Rating)
	assert.InDelta(t, 4.5, *all[0].Rating, 0.001)
	require.NotNil(t, all[0].Reviews)
	assert.Equal(t, 12, *all[0].Reviews)
	assert.Nil(t, all[1].Rating)
	assert.Nil(t, all[1].Reviews)

	rejected, err := st.ListLeads(ctx, LeadFilter{RunID: run.ID, Outcome: OutcomeRejected})
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, "no_contact", rejected[0].Reason)

	limited, err := st.ListLeads(ctx, LeadFilter{RunID: run.ID, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLite_SaveLeads_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)

	n, err := st.SaveLeads(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

// --- Helpers ---

func TestLeadRecords(t *testing.T) {
	res := &harvest.Result{
		Accepted: []harvest.Lead{{PlaceID: "p1", Name: "Acme Roofing", Phone: "1", Location: "Springfield, IL", Rating: ptr(4.0), Score: 40}},
		Rejected: []harvest.RejectedLead{{Lead: harvest.Lead{PlaceID: "p2", Name: "Home Depot"}, Reason: harvest.ReasonExcludedChain}},
	}

	recs := LeadRecords("run-1", res)
	require.Len(t, recs, 2)
	assert.Equal(t, LeadRecord{
		RunID: "run-1", Outcome: OutcomeAccepted, PlaceID: "p1", Name: "Acme Roofing", Phone: "1",
		Location: "Springfield, IL", Rating: ptr(4.0), Score: 40,
	}, recs[0])
	assert.Equal(t, OutcomeRejected, recs[1].Outcome)
	assert.Equal(t, "excluded_chain", recs[1].Reason)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, "sqlite", filepath.Join(t.TempDir(), "open.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, st)
	require.NoError(t, st.Close())

	_, err = Open(ctx, "mysql", "dsn")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}
