// Package sink persists the accepted and rejected lead tables of a run.
package sink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Kind tells a sink which result set a destination holds.
type Kind string

const (
	KindAccepted Kind = "accepted"
	KindRejected Kind = "rejected"
)

// Column names shared by every table a run produces.
const (
	ColName     = "NAME"
	ColPhone    = "PHONE"
	ColWebsite  = "WEBSITE"
	ColLocation = "LOCATION"
	ColRating   = "RATING"
	ColReviews  = "REVIEWS"
	ColScore    = "SCORE"
	ColPlaceID  = "PLACE_ID"
	ColReason   = "REASON"
)

// Destination names one output of a run, e.g. "leads_20260102_150405".
type Destination struct {
	Name string
	Kind Kind
}

// Table is a homogeneous collection of flat records.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Records returns each row keyed by column name.
func (t Table) Records() []map[string]string {
	out := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]string, len(t.Columns))
		for i, col := range t.Columns {
			if i < len(row) {
				rec[col] = row[i]
			} else {
				rec[col] = ""
			}
		}
		out = append(out, rec)
	}
	return out
}

// Sink writes one table to one destination.
type Sink interface {
	Write(ctx context.Context, table Table, dest Destination) error
}

// Multi fans a write out to every sink. All sinks are attempted; their
// errors are joined.
type Multi []Sink

// Write implements Sink.
func (m Multi) Write(ctx context.Context, table Table, dest Destination) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, table, dest); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Format names a file-backed sink.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FileSinks builds one file sink per format, all writing under dir.
func FileSinks(dir string, formats []string) ([]Sink, error) {
	var sinks []Sink
	seen := make(map[Format]bool)
	for _, f := range formats {
		format := Format(strings.ToLower(strings.TrimSpace(f)))
		if seen[format] {
			continue
		}
		seen[format] = true
		switch format {
		case FormatCSV:
			sinks = append(sinks, &CSV{Dir: dir})
		case FormatXLSX:
			sinks = append(sinks, &XLSX{Dir: dir})
		default:
			return nil, eris.Errorf("sink: unknown output format %q", f)
		}
	}
	return sinks, nil
}

func outputPath(dir, name, ext string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "sink: create dir %s", dir)
	}
	return filepath.Join(dir, name+"."+ext), nil
}

func createFile(dir, name, ext string) (*os.File, string, error) {
	path, err := outputPath(dir, name, ext)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Create(path) //nolint:gosec
	if err != nil {
		return nil, "", eris.Wrapf(err, "sink: create %s", path)
	}
	return f, path, nil
}
