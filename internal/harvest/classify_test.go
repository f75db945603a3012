package harvest

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Precedence(t *testing.T) {
	c := NewClassifier(Rules{Exclusions: []string{"Acme"}, Keywords: []string{"light"}}, nil)

	tests := []struct {
		name string
		ec   EnrichedCandidate
		want Reason
	}{
		{"chain beats keyword mismatch", enriched("Acme Plumbing", "555-0200", StatusOperational), ReasonExcludedChain},
		{"chain beats closed", enriched("Acme Lights", "555-0200", StatusClosedPermanently), ReasonExcludedChain},
		{"closed beats keyword mismatch", enriched("Citywide Plumbing", "555-0200", StatusClosedTemporarily), ReasonNotOperational},
		{"keyword mismatch beats no contact", enriched("Citywide Plumbing", "", StatusOperational), ReasonNoKeywordMatch},
		{"no contact", enriched("City Lights Holiday Co", "", StatusOperational), ReasonNoContact},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := c.Classify(tt.ec)
			require.False(t, out.IsAccepted())
			assert.Equal(t, tt.want, out.Reason())
			assert.Equal(t, tt.ec.Name, out.Rejected.Name)
		})
	}
}

func TestClassify_PartialKeywordMatch(t *testing.T) {
	c := NewClassifier(Rules{Keywords: []string{"light"}}, nil)

	out := c.Classify(enriched("City Lights Holiday Co", "555-0100", StatusOperational))
	assert.True(t, out.IsAccepted())

	out = c.Classify(enriched("Sunrise Lighting", "555-0101", StatusOperational))
	assert.True(t, out.IsAccepted())

	out = c.Classify(enriched("Citywide Plumbing", "555-0102", StatusOperational))
	assert.Equal(t, ReasonNoKeywordMatch, out.Reason())
}

func TestClassify_EmptyKeywordsDisablesRule(t *testing.T) {
	c := NewClassifier(Rules{}, nil)
	out := c.Classify(enriched("Citywide Plumbing", "555-0102", StatusOperational))
	assert.True(t, out.IsAccepted())
}

func TestClassify_UnknownStatusIsNotRejected(t *testing.T) {
	c := NewClassifier(Rules{}, nil)

	out := c.Classify(enriched("Glow Bros", "555-0300", StatusUnknown))
	assert.True(t, out.IsAccepted())
}

func TestClassify_StatusFallsBackToSearch(t *testing.T) {
	c := NewClassifier(Rules{}, nil)
	ec := enriched("Glow Bros", "555-0300", StatusUnknown)
	ec.Candidate.Status = StatusClosedPermanently

	assert.Equal(t, ReasonNotOperational, c.Classify(ec).Reason())

	// Enrichment status wins when present.
	ec.Enrichment.Status = StatusOperational
	assert.True(t, c.Classify(ec).IsAccepted())
}

func TestClassify_DedupIdempotence(t *testing.T) {
	a := enriched("Bright Lights Co", "555-0100", StatusOperational)
	b := enriched("  bright LIGHTS co", "(555) 0100", StatusOperational)

	for _, order := range [][2]EnrichedCandidate{{a, b}, {b, a}} {
		c := NewClassifier(Rules{Keywords: []string{"light"}}, NewRegistry())
		first := c.Classify(order[0])
		second := c.Classify(order[1])

		assert.True(t, first.IsAccepted())
		assert.Equal(t, ReasonDuplicate, second.Reason())
	}
}

func TestClassify_SameNameDifferentPhoneNotDuplicate(t *testing.T) {
	c := NewClassifier(Rules{}, nil)
	assert.True(t, c.Classify(enriched("Glow Bros", "555-0300", StatusOperational)).IsAccepted())
	assert.True(t, c.Classify(enriched("Glow Bros", "555-0301", StatusOperational)).IsAccepted())
}

func TestClassify_RejectedCandidateNotRegistered(t *testing.T) {
	reg := NewRegistry()
	c := NewClassifier(Rules{Keywords: []string{"light"}}, reg)

	c.Classify(enriched("Citywide Plumbing", "555-0102", StatusOperational))
	assert.Equal(t, 0, reg.Len())
}

func TestClassify_ConcurrentSameIdentity(t *testing.T) {
	c := NewClassifier(Rules{}, NewRegistry())

	var mu sync.Mutex
	accepted, duplicates := 0, 0
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := c.Classify(enriched("Glow Bros", "555-0300", StatusOperational))
			mu.Lock()
			defer mu.Unlock()
			if out.IsAccepted() {
				accepted++
			} else if out.Reason() == ReasonDuplicate {
				duplicates++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 31, duplicates)
}

func TestClassify_LeadFields(t *testing.T) {
	c := NewClassifier(Rules{}, nil)
	ec := enriched("Bright Lights Co", "555-0100", StatusOperational)
	ec.Rating = ptr(4.5)
	ec.Reviews = ptr(10)
	ec.Candidate.Website = "https://search.example"
	ec.Enrichment.Website = "https://details.example"

	out := c.Classify(ec)
	require.True(t, out.IsAccepted())
	lead := out.Accepted
	assert.Equal(t, "555-0100", lead.Phone)
	assert.Equal(t, "https://details.example", lead.Website)
	assert.Equal(t, Location("Springfield, IL"), lead.Location)
	assert.InDelta(t, 45.0, lead.Score, 0.0001)
}

func TestScore(t *testing.T) {
	assert.InDelta(t, 45.0, Score(ptr(4.5), ptr(10)), 0.0001)
	assert.Zero(t, Score(nil, ptr(10)))
	assert.Zero(t, Score(ptr(4.5), nil))
}

func TestPrescreen(t *testing.T) {
	c := NewClassifier(Rules{Exclusions: []string{"home depot"}, Keywords: []string{"light"}}, nil)

	out, rejected := c.Prescreen(Candidate{Name: "The Home Depot"})
	require.True(t, rejected)
	assert.Equal(t, ReasonExcludedChain, out.Reason())

	out, rejected = c.Prescreen(Candidate{Name: "Bright Lights", Status: StatusClosedPermanently})
	require.True(t, rejected)
	assert.Equal(t, ReasonNotOperational, out.Reason())

	out, rejected = c.Prescreen(Candidate{Name: "Citywide Plumbing"})
	require.True(t, rejected)
	assert.Equal(t, ReasonNoKeywordMatch, out.Reason())

	_, rejected = c.Prescreen(Candidate{Name: "Bright Lights"})
	assert.False(t, rejected)
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, StatusOperational, ParseStatus("OPERATIONAL"))
	assert.Equal(t, StatusOperational, ParseStatus("operating"))
	assert.Equal(t, StatusUnknown, ParseStatus(" "))
	assert.Equal(t, StatusClosedPermanently, ParseStatus("closed_permanently"))
	assert.False(t, ParseStatus("CLOSED_TEMPORARILY").Operational())
	assert.True(t, ParseStatus("CLOSED_TEMPORARILY").Known())
}
