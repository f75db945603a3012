package sink

import (
	"context"
	"encoding/csv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CSV writes each destination to <Dir>/<name>.csv with a header row.
type CSV struct {
	Dir string
}

// Write implements Sink.
func (s *CSV) Write(ctx context.Context, table Table, dest Destination) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "sink: csv")
	}

	f, path, err := createFile(s.Dir, dest.Name, string(FormatCSV))
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(table.Columns); err != nil {
		return eris.Wrap(err, "sink: csv write header")
	}
	if err := w.WriteAll(table.Rows); err != nil {
		return eris.Wrap(err, "sink: csv write rows")
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "sink: close %s", path)
	}

	zap.L().Info("wrote csv",
		zap.String("path", path),
		zap.String("kind", string(dest.Kind)),
		zap.Int("rows", len(table.Rows)),
	)
	return nil
}
