// Package harvest runs the concurrent multi-location lead acquisition
// pipeline: paginated search, detail enrichment, classification and
// run-scoped deduplication.
package harvest

import (
	"strings"
	"time"

	"github.com/sells-group/lead-harvest/pkg/google"
)

// Location is an opaque search scope such as "Springfield, IL".
type Location string

// Query is the search phrase and classification keywords for a run.
type Query struct {
	Text     string
	Keywords []string
}

// For returns the search phrase for one location.
func (q Query) For(loc Location) string {
	if loc == "" {
		return q.Text
	}
	return q.Text + " in " + string(loc)
}

// OperationalStatus is the provider-assigned business status. The zero
// value means the status is unknown.
type OperationalStatus string

const (
	StatusUnknown           OperationalStatus = ""
	StatusOperational       OperationalStatus = google.BusinessOperational
	StatusClosedTemporarily OperationalStatus = google.BusinessClosedTemporarily
	StatusClosedPermanently OperationalStatus = google.BusinessClosedPermanently
)

// ParseStatus maps a provider status string to an OperationalStatus.
func ParseStatus(s string) OperationalStatus {
	switch v := strings.ToUpper(strings.TrimSpace(s)); v {
	case "":
		return StatusUnknown
	case "OPERATIONAL", "OPERATING":
		return StatusOperational
	default:
		return OperationalStatus(v)
	}
}

// Known reports whether the status was reported at all.
func (s OperationalStatus) Known() bool { return s != StatusUnknown }

// Operational reports whether the business is operating normally.
func (s OperationalStatus) Operational() bool { return s == StatusOperational }

// Candidate is one raw record from a single search page.
type Candidate struct {
	PlaceID  string
	Name     string
	Rating   *float64
	Reviews  *int
	Website  string
	Address  string
	Status   OperationalStatus
	Location Location
}

func candidateFromPlace(p google.Place, loc Location) Candidate {
	return Candidate{
		PlaceID:  p.PlaceID,
		Name:     strings.TrimSpace(p.Name),
		Rating:   p.Rating,
		Reviews:  p.UserRatingsTotal,
		Website:  strings.TrimSpace(p.Website),
		Address:  p.FormattedAddress,
		Status:   ParseStatus(p.BusinessStatus),
		Location: loc,
	}
}

// Enrichment holds the fields obtained from a details lookup. Degraded is
// set when the lookup failed and every field is absent.
type Enrichment struct {
	Phone    string
	Website  string
	Status   OperationalStatus
	Degraded bool
}

// EnrichedCandidate is a Candidate with its details lookup attached.
type EnrichedCandidate struct {
	Candidate
	Enrichment Enrichment
}

// Status is the enrichment status, falling back to the search status.
func (ec EnrichedCandidate) Status() OperationalStatus {
	if ec.Enrichment.Status.Known() {
		return ec.Enrichment.Status
	}
	return ec.Candidate.Status
}

// Website is the enrichment website, falling back to the search website.
func (ec EnrichedCandidate) Website() string {
	if ec.Enrichment.Website != "" {
		return ec.Enrichment.Website
	}
	return ec.Candidate.Website
}

// Reason is a rejection reason code.
type Reason string

const (
	ReasonExcludedChain  Reason = "excluded_chain"
	ReasonNotOperational Reason = "not_operational"
	ReasonNoKeywordMatch Reason = "no_keyword_match"
	ReasonNoContact      Reason = "no_contact"
	ReasonDuplicate      Reason = "duplicate"
)

// Reasons lists every rejection reason in precedence order.
var Reasons = []Reason{
	ReasonExcludedChain,
	ReasonNotOperational,
	ReasonNoKeywordMatch,
	ReasonNoContact,
	ReasonDuplicate,
}

// Lead is an accepted candidate.
type Lead struct {
	PlaceID  string
	Name     string
	Phone    string
	Website  string
	Address  string
	Location Location
	Rating   *float64
	Reviews  *int
	Score    float64
}

// RejectedLead is a rejected candidate with its reason.
type RejectedLead struct {
	Lead
	Reason Reason
}

// Score returns rating * reviews, or 0 when either is unknown.
func Score(rating *float64, reviews *int) float64 {
	if rating == nil || reviews == nil {
		return 0
	}
	return *rating * float64(*reviews)
}

func leadFrom(ec EnrichedCandidate) Lead {
	return Lead{
		PlaceID:  ec.PlaceID,
		Name:     ec.Name,
		Phone:    strings.TrimSpace(ec.Enrichment.Phone),
		Website:  ec.Website(),
		Address:  ec.Address,
		Location: ec.Location,
		Rating:   ec.Rating,
		Reviews:  ec.Reviews,
		Score:    Score(ec.Rating, ec.Reviews),
	}
}

// Outcome is the result of classifying one candidate. Exactly one of
// Accepted and Rejected is set.
type Outcome struct {
	Accepted *Lead
	Rejected *RejectedLead
}

// IsAccepted reports whether the candidate became a lead.
func (o Outcome) IsAccepted() bool { return o.Accepted != nil }

// Reason returns the rejection reason, or "" for an accepted outcome.
func (o Outcome) Reason() Reason {
	if o.Rejected == nil {
		return ""
	}
	return o.Rejected.Reason
}

// LocationReport summarizes one finished location task.
type LocationReport struct {
	Location   Location
	Observed   int
	Accepted   int
	Rejected   int
	Duplicates int
	Degraded   int
	Pages      int
	Err        error
	Duration   time.Duration
}

// Failed reports whether the location's walk ended in failure.
func (r LocationReport) Failed() bool { return r.Err != nil }

// Result is the merged output of a run.
type Result struct {
	Query     Query
	Accepted  []Lead
	Rejected  []RejectedLead
	Locations []LocationReport
	Started   time.Time
	Elapsed   time.Duration
}
