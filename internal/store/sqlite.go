package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-harvest/internal/harvest"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	query      TEXT NOT NULL,
	keywords   TEXT NOT NULL DEFAULT '[]',
	locations  INTEGER NOT NULL DEFAULT 0,
	status     TEXT NOT NULL DEFAULT 'running',
	stats      TEXT,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS leads (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id   TEXT NOT NULL REFERENCES runs(id),
	outcome  TEXT NOT NULL,
	reason   TEXT NOT NULL DEFAULT '',
	place_id TEXT NOT NULL DEFAULT '',
	name     TEXT NOT NULL,
	phone    TEXT NOT NULL DEFAULT '',
	website  TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	rating   REAL,
	reviews  INTEGER,
	score    REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_leads_run_id ON leads(run_id, outcome);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run NewRun) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	keywords := run.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	keywordsJSON, err := json.Marshal(keywords)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal keywords")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, query, keywords, locations, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, run.Query, string(keywordsJSON), run.Locations, string(RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &Run{
		ID:        id,
		Query:     run.Query,
		Keywords:  keywords,
		Locations: run.Locations,
		Status:    RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status RunStatus, stats *harvest.RunStatistics, runErr string) error {
	var statsJSON sql.NullString
	if stats != nil {
		b, err := json.Marshal(stats)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal stats")
		}
		statsJSON = sql.NullString{String: string(b), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, stats = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), statsJSON, runErr, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

const runColumns = `id, query, keywords, locations, status, stats, error, created_at, updated_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveLeads(ctx context.Context, leads []LeadRecord) (int64, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save leads")
	}
	defer tx.Rollback() //nolint:errcheck

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(leadColumns)), ", ")
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO leads (`+strings.Join(leadColumns, ", ")+`) VALUES (`+placeholders+`)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert lead")
	}
	defer stmt.Close()

	for _, l := range leads {
		if _, err := stmt.ExecContext(ctx, l.values()...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert lead %s", l.Name)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit leads")
	}
	return int64(len(leads)), nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]LeadRecord, error) {
	query := `SELECT ` + strings.Join(leadColumns, ", ") + ` FROM leads WHERE run_id = ?`
	args := []any{filter.RunID}
	if filter.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, filter.Outcome)
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []LeadRecord
	for rows.Next() {
		var l LeadRecord
		var rating sql.NullFloat64
		var reviews sql.NullInt64
		if err := rows.Scan(&l.RunID, &l.Outcome, &l.Reason, &l.PlaceID, &l.Name, &l.Phone, &l.Website, &l.Location, &rating, &reviews, &l.Score); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		if rating.Valid {
			l.Rating = &rating.Float64
		}
		if reviews.Valid {
			n := int(reviews.Int64)
			l.Reviews = &n
		}
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var r Run
	var keywordsJSON string
	var statsJSON sql.NullString

	err := row.Scan(&r.ID, &r.Query, &keywordsJSON, &r.Locations, &r.Status, &statsJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := decodeRun(&r, []byte(keywordsJSON), []byte(statsJSON.String)); err != nil {
		return nil, err
	}
	return &r, nil
}

func decodeRun(r *Run, keywordsJSON, statsJSON []byte) error {
	if len(keywordsJSON) > 0 {
		if err := json.Unmarshal(keywordsJSON, &r.Keywords); err != nil {
			return eris.Wrap(err, "store: unmarshal keywords")
		}
	}
	if len(statsJSON) > 0 {
		r.Stats = &harvest.RunStatistics{}
		if err := json.Unmarshal(statsJSON, r.Stats); err != nil {
			return eris.Wrap(err, "store: unmarshal stats")
		}
	}
	return nil
}
