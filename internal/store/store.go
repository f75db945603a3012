// Package store persists run history and the leads each run produced.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-harvest/internal/harvest"
)

// RunStatus is the lifecycle state of a harvest run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusComplete  RunStatus = "complete"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Lead outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
)

// NewRun describes a run about to start.
type NewRun struct {
	Query     string
	Keywords  []string
	Locations int
}

// Run is one recorded harvest run.
type Run struct {
	ID        string                 `json:"id"`
	Query     string                 `json:"query"`
	Keywords  []string               `json:"keywords"`
	Locations int                    `json:"locations"`
	Status    RunStatus              `json:"status"`
	Stats     *harvest.RunStatistics `json:"stats,omitempty"`
	Error     string                 `json:"error,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// LeadRecord is one persisted lead row.
type LeadRecord struct {
	RunID    string   `json:"run_id"`
	Outcome  string   `json:"outcome"`
	Reason   string   `json:"reason,omitempty"`
	PlaceID  string   `json:"place_id"`
	Name     string   `json:"name"`
	Phone    string   `json:"phone"`
	Website  string   `json:"website"`
	Location string   `json:"location"`
	Rating   *float64 `json:"rating,omitempty"`
	Reviews  *int     `json:"reviews,omitempty"`
	Score    float64  `json:"score"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status RunStatus `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// LeadFilter specifies criteria for listing leads.
type LeadFilter struct {
	RunID   string `json:"run_id"`
	Outcome string `json:"outcome,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// Store defines the persistence interface for run history.
type Store interface {
	CreateRun(ctx context.Context, run NewRun) (*Run, error)
	CompleteRun(ctx context.Context, runID string, status RunStatus, stats *harvest.RunStatistics, runErr string) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	SaveLeads(ctx context.Context, leads []LeadRecord) (int64, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]LeadRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the configured backend.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

// LeadRecords flattens both result sets of a run into rows.
func LeadRecords(runID string, res *harvest.Result) []LeadRecord {
	out := make([]LeadRecord, 0, len(res.Accepted)+len(res.Rejected))
	for _, l := range res.Accepted {
		out = append(out, record(runID, OutcomeAccepted, "", l))
	}
	for _, r := range res.Rejected {
		out = append(out, record(runID, OutcomeRejected, string(r.Reason), r.Lead))
	}
	return out
}

func record(runID, outcome, reason string, l harvest.Lead) LeadRecord {
	return LeadRecord{
		RunID:    runID,
		Outcome:  outcome,
		Reason:   reason,
		PlaceID:  l.PlaceID,
		Name:     l.Name,
		Phone:    l.Phone,
		Website:  l.Website,
		Location: string(l.Location),
		Rating:   l.Rating,
		Reviews:  l.Reviews,
		Score:    l.Score,
	}
}

func listLimit(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}

// leadColumns is the shared column order for lead inserts and selects.
var leadColumns = []string{"run_id", "outcome", "reason", "place_id", "name", "phone", "website", "location", "rating", "reviews", "score"}

func (l LeadRecord) values() []any {
	return []any{l.RunID, l.Outcome, l.Reason, l.PlaceID, l.Name, l.Phone, l.Website, l.Location, l.Rating, l.Reviews, l.Score}
}
