package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-harvest/internal/metrics"
	"github.com/sells-group/lead-harvest/internal/ratelimit"
	"github.com/sells-group/lead-harvest/internal/resilience"
	"github.com/sells-group/lead-harvest/pkg/google"
	"github.com/sells-group/lead-harvest/pkg/google/mocks"
)

// placesServer fakes the Places JSON API. Each query maps to a single page
// of places; details are keyed by place_id.
type placesServer struct {
	mu       sync.Mutex
	pages    map[string][]google.Place
	denied   map[string]bool
	details  map[string]google.PlaceDetails
	searches int
}

func (s *placesServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/textsearch/json":
		s.mu.Lock()
		s.searches++
		s.mu.Unlock()

		query := q.Get("query")
		if s.denied[query] {
			_ = json.NewEncoder(w).Encode(google.TextSearchResponse{Status: google.StatusRequestDenied, ErrorMessage: "denied"})
			return
		}
		places := s.pages[query]
		status := google.StatusOK
		if len(places) == 0 {
			status = google.StatusZeroResults
		}
		_ = json.NewEncoder(w).Encode(google.TextSearchResponse{Status: status, Results: places})
	case "/details/json":
		d, ok := s.details[q.Get("place_id")]
		if !ok {
			_ = json.NewEncoder(w).Encode(google.PlaceDetailsResponse{Status: google.StatusNotFound})
			return
		}
		_ = json.NewEncoder(w).Encode(google.PlaceDetailsResponse{Status: google.StatusOK, Result: d})
	default:
		http.NotFound(w, r)
	}
}

func newServerOrchestrator(t *testing.T, srv *placesServer, cfg Config, opts ...OrchestratorOption) *Orchestrator {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	client := google.NewClient("test-key", google.WithBaseURL(ts.URL))
	return NewOrchestrator(client, newTestRequester(), cfg, opts...)
}

func TestOrchestrator_SpringfieldScenario(t *testing.T) {
	srv := &placesServer{
		pages: map[string][]google.Place{
			"christmas lights in Springfield, IL": {
				{PlaceID: "p1", Name: "Bright Lights Co", BusinessStatus: "OPERATING"},
				{PlaceID: "p2", Name: "Acme Chain", BusinessStatus: "OPERATING"},
			},
		},
		details: map[string]google.PlaceDetails{
			"p1": {FormattedPhoneNumber: "555-0100", BusinessStatus: "OPERATING"},
			"p2": {FormattedPhoneNumber: "555-0200", BusinessStatus: "OPERATING"},
		},
	}
	o := newServerOrchestrator(t, srv, Config{Rules: Rules{Exclusions: []string{"Acme"}}})

	res, err := o.Run(context.Background(), []Location{"Springfield, IL"}, Query{Text: "christmas lights", Keywords: []string{"light"}})
	require.NoError(t, err)

	require.Len(t, res.Accepted, 1)
	assert.Equal(t, "Bright Lights Co", res.Accepted[0].Name)
	assert.Equal(t, "555-0100", res.Accepted[0].Phone)
	assert.Equal(t, Location("Springfield, IL"), res.Accepted[0].Location)

	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "Acme Chain", res.Rejected[0].Name)
	assert.Equal(t, ReasonExcludedChain, res.Rejected[0].Reason)

	st := Summarize(res)
	require.NoError(t, st.Verify())
	assert.Equal(t, 2, st.TotalObserved)
	assert.Equal(t, 1, st.PagesFetched)
}

func TestOrchestrator_LocationIsolation(t *testing.T) {
	srv := &placesServer{
		pages: map[string][]google.Place{
			"lights in Peoria, IL":      {{PlaceID: "a1", Name: "Peoria Lights"}},
			"lights in Naperville, IL":  {{PlaceID: "b1", Name: "Naperville Lighting"}},
			"lights in Rockford, IL":    {{PlaceID: "c1", Name: "Rockford Light Co"}},
		},
		denied: map[string]bool{"lights in Springfield, IL": true},
		details: map[string]google.PlaceDetails{
			"a1": {FormattedPhoneNumber: "309-555-0001"},
			"b1": {FormattedPhoneNumber: "630-555-0002"},
			"c1": {FormattedPhoneNumber: "815-555-0003"},
		},
	}

	var mu sync.Mutex
	var reports []LocationReport
	o := newServerOrchestrator(t, srv, Config{MaxConcurrency: 2}, WithProgress(func(r LocationReport) {
		mu.Lock()
		defer mu.Unlock()
		reports = append(reports, r)
	}))

	locs := []Location{"Springfield, IL", "Peoria, IL", "Naperville, IL", "Rockford, IL"}
	res, err := o.Run(context.Background(), locs, Query{Text: "lights", Keywords: []string{"light"}})
	require.NoError(t, err)

	assert.Len(t, res.Accepted, 3)
	assert.Empty(t, res.Rejected)
	assert.Len(t, reports, 4)

	st := Summarize(res)
	assert.Equal(t, 4, st.LocationsTotal)
	assert.Equal(t, 1, st.LocationsFailed)
	require.NoError(t, st.Verify())

	for _, r := range res.Locations {
		if r.Location == "Springfield, IL" {
			assert.True(t, r.Failed())
			assert.True(t, resilience.IsTerminal(r.Err))
			assert.Zero(t, r.Observed)
		} else {
			assert.False(t, r.Failed())
			assert.Equal(t, 1, r.Accepted)
		}
	}
}

func TestOrchestrator_DuplicatesAcrossLocations(t *testing.T) {
	srv := &placesServer{
		pages: map[string][]google.Place{
			"lights in A": {{PlaceID: "a1", Name: "Glow Bros"}},
			"lights in B": {{PlaceID: "b1", Name: "GLOW BROS."}},
		},
		details: map[string]google.PlaceDetails{
			"a1": {FormattedPhoneNumber: "(555) 0300"},
			"b1": {FormattedPhoneNumber: "555-0300"},
		},
	}
	o := newServerOrchestrator(t, srv, Config{MaxConcurrency: 2})

	res, err := o.Run(context.Background(), []Location{"A", "B"}, Query{Text: "lights"})
	require.NoError(t, err)

	require.Len(t, res.Accepted, 1)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, ReasonDuplicate, res.Rejected[0].Reason)

	dups := 0
	for _, r := range res.Locations {
		dups += r.Duplicates
	}
	assert.Equal(t, 1, dups)
}

func TestOrchestrator_Completeness(t *testing.T) {
	places := map[string][]google.Place{}
	details := map[string]google.PlaceDetails{}
	var locs []Location
	for i := range 12 {
		loc := Location(fmt.Sprintf("City%d, ST", i))
		locs = append(locs, loc)
		q := "lights in " + string(loc)
		for j := range 5 {
			id := fmt.Sprintf("p%d-%d", i, j)
			name := []string{"Bright Lights", "Home Depot", "Plumbing Pros", "Light House", "Shared Lights"}[j]
			places[q] = append(places[q], google.Place{PlaceID: id, Name: name})
			phone := fmt.Sprintf("555-%02d%02d", i, j)
			switch j {
			case 3:
				phone = ""
			case 4:
				phone = "555-9999"
			}
			details[id] = google.PlaceDetails{FormattedPhoneNumber: phone}
		}
	}
	// One detail lookup fails outright.
	delete(details, "p0-0")

	srv := &placesServer{pages: places, details: details}
	o := newServerOrchestrator(t, srv, Config{MaxConcurrency: 4, Rules: Rules{Exclusions: []string{"home depot"}}})

	res, err := o.Run(context.Background(), locs, Query{Text: "lights", Keywords: []string{"light"}})
	require.NoError(t, err)

	st := Summarize(res)
	require.NoError(t, st.Verify())
	assert.Equal(t, 60, st.TotalObserved)
	assert.Equal(t, 60, len(res.Accepted)+len(res.Rejected))
	assert.Equal(t, 12, st.RejectedByReason[ReasonExcludedChain])
	assert.Equal(t, 12, st.RejectedByReason[ReasonNoKeywordMatch])
	assert.Equal(t, 13, st.RejectedByReason[ReasonNoContact])
	assert.Equal(t, 11, st.RejectedByReason[ReasonDuplicate])
	assert.Equal(t, 12, st.Accepted)
	assert.Equal(t, 1, st.DegradedEnrichments)
}

func TestOrchestrator_PrescreenSkipsDetails(t *testing.T) {
	mc := mocks.NewMockClient(t)
	mc.On("TextSearch", mock.Anything, mock.Anything).Return(page("", "Home Depot", "Bright Lights"), nil).Once()
	mc.On("PlaceDetails", mock.Anything, "id-Bright Lights", mock.Anything).
		Return(&google.PlaceDetailsResponse{Status: google.StatusOK, Result: google.PlaceDetails{FormattedPhoneNumber: "555-0100"}}, nil).Once()

	o := NewOrchestrator(mc, newTestRequester(), Config{
		Prescreen: true,
		Rules:     Rules{Exclusions: []string{"home depot"}},
	})
	res, err := o.Run(context.Background(), []Location{"X"}, Query{Text: "lights"})
	require.NoError(t, err)

	assert.Len(t, res.Accepted, 1)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, ReasonExcludedChain, res.Rejected[0].Reason)
	mc.AssertNotCalled(t, "PlaceDetails", mock.Anything, "id-Home Depot", mock.Anything)
}

func TestOrchestrator_BoundedConcurrency(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0

	mc := mocks.NewMockClient(t)
	mc.On("TextSearch", mock.Anything, mock.Anything).Return(func(_ context.Context, _ google.TextSearchRequest) (*google.TextSearchResponse, error) {
		mu.Lock()
		inFlight++
		peak = max(peak, inFlight)
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return page(""), nil
	})

	o := NewOrchestrator(mc, newTestRequester(), Config{MaxConcurrency: 3})
	locs := make([]Location, 12)
	for i := range locs {
		locs[i] = Location(fmt.Sprintf("L%d", i))
	}
	_, err := o.Run(context.Background(), locs, Query{Text: "q"})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak, 3)
}

func TestOrchestrator_SharedRateLimiter(t *testing.T) {
	srv := &placesServer{pages: map[string][]google.Place{}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	lim := ratelimit.NewWindow(2, 50*time.Millisecond)
	o := NewOrchestrator(google.NewClient("k", google.WithBaseURL(ts.URL)), NewRequester(lim, fastRetry()), Config{MaxConcurrency: 5})

	locs := []Location{"A", "B", "C", "D", "E"}
	_, err := o.Run(context.Background(), locs, Query{Text: "q"})
	require.NoError(t, err)

	assert.Equal(t, 5, srv.searches, "calls are delayed, never dropped")
	assert.GreaterOrEqual(t, lim.Delayed(), int64(3))
}

func TestOrchestrator_Cancelled(t *testing.T) {
	mc := mocks.NewMockClient(t)
	mc.On("TextSearch", mock.Anything, mock.Anything).Return(nil, errors.New("unreachable")).Maybe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := NewOrchestrator(mc, newTestRequester(), Config{})
	_, err := o.Run(ctx, []Location{"A", "B"}, Query{Text: "q"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "cancel"))
}

func TestOrchestrator_RecordsMetrics(t *testing.T) {
	srv := &placesServer{
		pages:   map[string][]google.Place{"q in A": {{PlaceID: "a1", Name: "Glow"}}},
		details: map[string]google.PlaceDetails{"a1": {FormattedPhoneNumber: "555-0100"}},
		denied:  map[string]bool{"q in B": true},
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	o := newServerOrchestrator(t, srv, Config{}, WithRunMetrics(m))

	_, err := o.Run(context.Background(), []Location{"A", "B"}, Query{Text: "q"})
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "leads_locations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one ok and one failed series")
}

func TestNewOrchestrator_Defaults(t *testing.T) {
	o := NewOrchestrator(mocks.NewMockClient(t), newTestRequester(), Config{})
	assert.Equal(t, DefaultMaxConcurrency, o.cfg.MaxConcurrency)
	assert.Equal(t, DefaultMaxPages, o.cfg.MaxPages)
}
