package fetcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// FileFetcher reads sources from the local filesystem. Relative paths are
// resolved against Root.
type FileFetcher struct {
	Root string
}

// NewFileFetcher creates a FileFetcher rooted at root ("" means the working
// directory).
func NewFileFetcher(root string) *FileFetcher {
	return &FileFetcher{Root: root}
}

// Resolve strips a file:// prefix and joins relative paths onto Root.
func (f *FileFetcher) Resolve(src string) string {
	p := strings.TrimPrefix(src, "file://")
	if f.Root == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(f.Root, p)
}

// Download opens the file.
func (f *FileFetcher) Download(_ context.Context, src string) (io.ReadCloser, error) {
	file, err := os.Open(f.Resolve(src))
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", src)
	}
	return file, nil
}

// DownloadToFile copies the file to path.
func (f *FileFetcher) DownloadToFile(ctx context.Context, src string, path string) (int64, error) {
	rc, err := f.Download(ctx, src)
	if err != nil {
		return 0, err
	}
	defer rc.Close() //nolint:errcheck
	return copyToFile(path, rc)
}
