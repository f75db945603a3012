package harvest

import (
	"time"

	"github.com/sells-group/lead-harvest/internal/resilience"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:   3,
		BackoffBase:   time.Millisecond,
		RateLimitBase: time.Millisecond,
		MaxBackoff:    5 * time.Millisecond,
		Multiplier:    2,
	}
}

func newTestRequester() *Requester {
	return NewRequester(nil, fastRetry())
}

func ptr[T any](v T) *T { return &v }

func enriched(name, phone string, status OperationalStatus) EnrichedCandidate {
	return EnrichedCandidate{
		Candidate: Candidate{
			PlaceID:  "id-" + name,
			Name:     name,
			Location: "Springfield, IL",
		},
		Enrichment: Enrichment{Phone: phone, Status: status},
	}
}
