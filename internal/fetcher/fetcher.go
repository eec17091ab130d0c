// Package fetcher opens dataset sources given as local paths or file://,
// http(s):// and ftp:// URLs, and decodes their CSV, XLSX, JSON and ZIP
// payloads.
package fetcher

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
)

// Fetcher retrieves a source.
type Fetcher interface {
	// Download opens src for reading. The caller closes the reader.
	Download(ctx context.Context, src string) (io.ReadCloser, error)

	// DownloadToFile copies src to path and returns the bytes written.
	DownloadToFile(ctx context.Context, src string, path string) (int64, error)
}

// Resolver maps a local source name to a filesystem path.
type Resolver interface {
	Resolve(src string) string
}

func copyToFile(path string, r io.Reader) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, r)
	if err != nil {
		return n, eris.Wrap(err, "fetcher: write file")
	}
	return n, nil
}
