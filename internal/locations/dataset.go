package locations

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-harvest/internal/fetcher"
)

// GeoNames dump columns.
const (
	colName       = 1
	colCountry    = 8
	colAdmin1     = 10
	colPopulation = 14
)

// City is one populated place from the dataset.
type City struct {
	Name       string
	State      string
	Population int
}

// ParseCities reads a GeoNames cities dump and keeps US rows.
func ParseCities(ctx context.Context, r io.Reader) ([]City, error) {
	rowCh, errCh := fetcher.StreamRows(ctx, r, fetcher.RowOptions{Delimiter: '\t', Raw: true})

	var cities []City
	skipped := 0
	for row := range rowCh {
		if len(row) <= colPopulation {
			skipped++
			continue
		}
		if row[colCountry] != "US" {
			continue
		}
		pop, err := strconv.Atoi(strings.TrimSpace(row[colPopulation]))
		if err != nil {
			skipped++
			continue
		}
		cities = append(cities, City{
			Name:       row[colName],
			State:      row[colAdmin1],
			Population: pop,
		})
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "locations: parse dataset")
	}
	if skipped > 0 {
		zap.L().Debug("skipped malformed dataset rows", zap.Int("rows", skipped))
	}
	return cities, nil
}

// Dataset locates the GeoNames dump, downloading and caching it when no
// local path is configured.
type Dataset struct {
	Path     string
	URL      string
	CacheDir string
	Fetcher  fetcher.Fetcher
}

// Load returns the US cities of the dataset.
func (d *Dataset) Load(ctx context.Context) ([]City, error) {
	p := d.Path
	if p == "" {
		var err error
		if p, err = d.cached(ctx); err != nil {
			return nil, err
		}
	}

	rc, err := openDump(p)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	cities, err := ParseCities(ctx, rc)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("loaded city dataset", zap.String("path", p), zap.Int("us_cities", len(cities)))
	return cities, nil
}

// openDump opens a plain dump, or the .txt entry of a zipped one.
func openDump(p string) (io.ReadCloser, error) {
	if strings.EqualFold(filepath.Ext(p), ".zip") {
		entry := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p)) + ".txt"
		rc, err := fetcher.OpenZIPEntry(p, entry)
		if err != nil {
			return nil, eris.Wrapf(err, "locations: open %s", p)
		}
		return rc, nil
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, eris.Wrapf(err, "locations: open %s", p)
	}
	return f, nil
}

// cached downloads URL into CacheDir unless the cached copy is current. An
// ETag sidecar file drives the conditional request.
func (d *Dataset) cached(ctx context.Context) (string, error) {
	if d.URL == "" {
		return "", eris.New("locations: no dataset path or url configured")
	}
	if d.Fetcher == nil {
		d.Fetcher = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
	}
	if err := os.MkdirAll(d.CacheDir, 0o755); err != nil {
		return "", eris.Wrap(err, "locations: create cache dir")
	}

	dest := filepath.Join(d.CacheDir, path.Base(d.URL))
	etagPath := dest + ".etag"

	etag := ""
	if _, err := os.Stat(dest); err == nil {
		if b, err := os.ReadFile(etagPath); err == nil {
			etag = strings.TrimSpace(string(b))
		}
	}

	body, newETag, changed, err := d.Fetcher.DownloadIfChanged(ctx, d.URL, etag)
	if err != nil {
		if etag != "" {
			zap.L().Warn("dataset refresh failed, using cached copy", zap.String("path", dest), zap.Error(err))
			return dest, nil
		}
		return "", eris.Wrap(err, "locations: download dataset")
	}
	if !changed {
		return dest, nil
	}
	defer body.Close() //nolint:errcheck

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", eris.Wrap(err, "locations: create cache file")
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return "", eris.Wrap(err, "locations: write cache file")
	}
	if err := os.Rename(tmp, dest); err != nil {
		return "", eris.Wrap(err, "locations: rename cache file")
	}
	if newETag != "" {
		_ = os.WriteFile(etagPath, []byte(newETag), 0o644)
	}

	zap.L().Info("downloaded city dataset", zap.String("url", d.URL), zap.Int64("bytes", n))
	return dest, nil
}
