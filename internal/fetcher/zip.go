package fetcher

import (
	"archive/zip"
	"io"
	"path"

	"github.com/rotisserie/eris"
)

// OpenZIPEntry opens the named entry of a ZIP archive for streaming. The
// name matches the entry's base name when it is not found verbatim. Closing
// the returned reader closes the archive.
func OpenZIPEntry(zipPath, name string) (io.ReadCloser, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}

	f := findEntry(r.File, name)
	if f == nil {
		_ = r.Close()
		return nil, eris.Errorf("zip: file %q not found in archive", name)
	}

	rc, err := f.Open()
	if err != nil {
		_ = r.Close()
		return nil, eris.Wrap(err, "zip: open entry")
	}
	return &zipEntry{ReadCloser: rc, archive: r}, nil
}

func findEntry(files []*zip.File, name string) *zip.File {
	for _, f := range files {
		if f.Name == name {
			return f
		}
	}
	for _, f := range files {
		if !f.FileInfo().IsDir() && path.Base(f.Name) == name {
			return f
		}
	}
	return nil
}

type zipEntry struct {
	io.ReadCloser
	archive *zip.ReadCloser
}

func (z *zipEntry) Close() error {
	err := z.ReadCloser.Close()
	if cerr := z.archive.Close(); err == nil {
		err = cerr
	}
	return err
}
