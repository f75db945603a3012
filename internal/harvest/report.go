package harvest

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-harvest/internal/sink"
)

// DestinationTimeFormat stamps output destination names.
const DestinationTimeFormat = "20060102_150405"

// RunStatistics are the counters of a finished run.
type RunStatistics struct {
	TotalObserved       int            `json:"total_observed"`
	Accepted            int            `json:"accepted"`
	Rejected            int            `json:"rejected"`
	RejectedByReason    map[Reason]int `json:"rejected_by_reason"`
	LocationsTotal      int            `json:"locations_total"`
	LocationsFailed     int            `json:"locations_failed"`
	PagesFetched        int            `json:"pages_fetched"`
	DegradedEnrichments int            `json:"degraded_enrichments"`
	Elapsed             time.Duration  `json:"elapsed"`
}

// Summarize computes the statistics of a finished run.
func Summarize(res *Result) RunStatistics {
	st := RunStatistics{
		Accepted:         len(res.Accepted),
		Rejected:         len(res.Rejected),
		RejectedByReason: make(map[Reason]int, len(Reasons)),
		LocationsTotal:   len(res.Locations),
		Elapsed:          res.Elapsed,
	}
	for _, r := range res.Rejected {
		st.RejectedByReason[r.Reason]++
	}
	for _, lr := range res.Locations {
		st.TotalObserved += lr.Observed
		st.PagesFetched += lr.Pages
		st.DegradedEnrichments += lr.Degraded
		if lr.Failed() {
			st.LocationsFailed++
		}
	}
	return st
}

// Verify checks that every observed candidate reached exactly one outcome.
func (s RunStatistics) Verify() error {
	if s.Accepted+s.Rejected != s.TotalObserved {
		return eris.Errorf("harvest: %d accepted + %d rejected != %d observed", s.Accepted, s.Rejected, s.TotalObserved)
	}
	sum := 0
	for _, n := range s.RejectedByReason {
		sum += n
	}
	if sum != s.Rejected {
		return eris.Errorf("harvest: rejected by reason sums to %d, want %d", sum, s.Rejected)
	}
	return nil
}

// Destinations are the output names of one run.
type Destinations struct {
	Accepted sink.Destination
	Rejected sink.Destination
}

// DestinationsAt names the outputs of a run published at t.
func DestinationsAt(t time.Time) Destinations {
	ts := t.Format(DestinationTimeFormat)
	return Destinations{
		Accepted: sink.Destination{Name: "leads_" + ts, Kind: sink.KindAccepted},
		Rejected: sink.Destination{Name: "bad-leads_" + ts, Kind: sink.KindRejected},
	}
}

// Reporter hands the result sets of a run to a sink.
type Reporter struct {
	sink sink.Sink
	now  func() time.Time
}

// NewReporter creates a Reporter writing to s.
func NewReporter(s sink.Sink) *Reporter {
	return &Reporter{sink: s, now: time.Now}
}

// Publish writes the accepted and rejected tables, once each. The writes are
// independent: a failed accepted write does not skip the rejected one.
func (r *Reporter) Publish(ctx context.Context, res *Result) (Destinations, error) {
	dests := DestinationsAt(r.now())

	var errs []error
	if err := r.sink.Write(ctx, AcceptedTable(res.Accepted), dests.Accepted); err != nil {
		errs = append(errs, eris.Wrap(err, "harvest: publish accepted"))
	}
	if err := r.sink.Write(ctx, RejectedTable(res.Rejected), dests.Rejected); err != nil {
		errs = append(errs, eris.Wrap(err, "harvest: publish rejected"))
	}
	if err := errors.Join(errs...); err != nil {
		return dests, err
	}

	zap.L().Info("published results",
		zap.String("accepted", dests.Accepted.Name),
		zap.String("rejected", dests.Rejected.Name),
	)
	return dests, nil
}

var leadColumns = []string{
	sink.ColName,
	sink.ColPhone,
	sink.ColWebsite,
	sink.ColLocation,
	sink.ColRating,
	sink.ColReviews,
	sink.ColScore,
	sink.ColPlaceID,
}

// AcceptedTable flattens leads into a table.
func AcceptedTable(leads []Lead) sink.Table {
	t := sink.Table{Columns: append([]string(nil), leadColumns...)}
	for _, l := range leads {
		t.Rows = append(t.Rows, leadRow(l))
	}
	return t
}

// RejectedTable flattens rejected leads into a table with a reason column.
func RejectedTable(rejected []RejectedLead) sink.Table {
	t := sink.Table{Columns: append(append([]string(nil), leadColumns...), sink.ColReason)}
	for _, r := range rejected {
		t.Rows = append(t.Rows, append(leadRow(r.Lead), string(r.Reason)))
	}
	return t
}

func leadRow(l Lead) []string {
	rating, reviews := "", ""
	if l.Rating != nil {
		rating = strconv.FormatFloat(*l.Rating, 'f', -1, 64)
	}
	if l.Reviews != nil {
		reviews = strconv.Itoa(*l.Reviews)
	}
	return []string{
		l.Name,
		l.Phone,
		l.Website,
		string(l.Location),
		rating,
		reviews,
		strconv.FormatFloat(l.Score, 'f', -1, 64),
		l.PlaceID,
	}
}
