package harvest

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/lead-harvest/internal/resilience"
	"github.com/sells-group/lead-harvest/pkg/google"
)

// Enricher attaches Place Details fields to candidates.
type Enricher struct {
	client    google.Client
	requester *Requester
	fields    []string
}

// NewEnricher creates an Enricher requesting fields (google.DefaultDetailFields
// when empty).
func NewEnricher(client google.Client, requester *Requester, fields []string) *Enricher {
	if len(fields) == 0 {
		fields = google.DefaultDetailFields
	}
	return &Enricher{client: client, requester: requester, fields: fields}
}

// Enrich performs one details lookup. It never fails: when the lookup
// cannot be completed every enrichment field is absent and Degraded is set.
func (e *Enricher) Enrich(ctx context.Context, c Candidate) EnrichedCandidate {
	ec := EnrichedCandidate{Candidate: c}
	if c.PlaceID == "" {
		ec.Enrichment.Degraded = true
		return ec
	}

	var resp *google.PlaceDetailsResponse
	err := e.requester.Do(ctx, EndpointDetails, func(ctx context.Context) error {
		var err error
		resp, err = e.client.PlaceDetails(ctx, c.PlaceID, e.fields)
		return err
	})
	if err != nil {
		zap.L().Debug("details lookup degraded",
			zap.String("location", string(c.Location)),
			zap.String("place_id", c.PlaceID),
			zap.String("cause", resilience.Cause(err)),
			zap.Error(err),
		)
		ec.Enrichment.Degraded = true
		return ec
	}

	ec.Enrichment = Enrichment{
		Phone:   resp.Result.FormattedPhoneNumber,
		Website: resp.Result.Website,
		Status:  ParseStatus(resp.Result.BusinessStatus),
	}
	return ec
}
