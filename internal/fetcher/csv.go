package fetcher

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// RowOptions configures the streaming row parser.
type RowOptions struct {
	Delimiter rune // default ','
	HasHeader bool // if true, the first row is skipped
	Comment   rune // comment character (0 = none)
	// Raw splits each line on the delimiter with no quote handling. Dumps
	// such as GeoNames use tabs and carry stray quotes inside fields.
	Raw bool
}

// StreamRows reads delimited rows and sends them to a channel.
// Caller must consume the returned row channel. Errors are sent on the error channel.
// Both channels are closed when processing completes.
func StreamRows(ctx context.Context, r io.Reader, opts RowOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}

	go func() {
		defer close(rowCh)
		defer close(errCh)

		next := csvRows(r, opts)
		if opts.Raw {
			next = rawRows(r, opts)
		}

		first := true
		for {
			record, err := next()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if first && opts.HasHeader {
				first = false
				continue
			}
			first = false

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

func csvRows(r io.Reader, opts RowOptions) func() ([]string, error) {
	reader := csv.NewReader(r)
	reader.Comma = opts.Delimiter
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1 // allow variable fields
	return reader.Read
}

func rawRows(r io.Reader, opts RowOptions) func() ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	sep := string(opts.Delimiter)
	return func() ([]string, error) {
		for sc.Scan() {
			line := strings.TrimRight(sc.Text(), "\r")
			if line == "" {
				continue
			}
			if opts.Comment != 0 && strings.HasPrefix(line, string(opts.Comment)) {
				continue
			}
			return strings.Split(line, sep), nil
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
}
