package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Router dispatches a source to the fetcher registered for its scheme.
// Plain paths use the "file" scheme.
type Router struct {
	routes map[string]Fetcher
}

// NewRouter wires the local, HTTP and FTP fetchers. A nil fetcher leaves its
// schemes unsupported.
func NewRouter(local *FileFetcher, web *HTTPFetcher, ftp *FTPFetcher) *Router {
	r := &Router{routes: make(map[string]Fetcher)}
	if local != nil {
		r.Handle("file", local)
	}
	if web != nil {
		r.Handle("http", web)
		r.Handle("https", web)
	}
	if ftp != nil {
		r.Handle("ftp", ftp)
	}
	return r
}

// Handle registers f for scheme.
func (r *Router) Handle(scheme string, f Fetcher) {
	r.routes[scheme] = f
}

// Scheme returns the URL scheme of src, or "file" for plain paths.
func Scheme(src string) string {
	i := strings.Index(src, "://")
	if i <= 0 {
		return "file"
	}
	return strings.ToLower(src[:i])
}

// IsLocal reports whether src names a local file.
func IsLocal(src string) bool {
	return Scheme(src) == "file"
}

func (r *Router) route(src string) (Fetcher, error) {
	f, ok := r.routes[Scheme(src)]
	if !ok {
		return nil, eris.Errorf("fetcher: no fetcher for scheme %q (%s)", Scheme(src), src)
	}
	return f, nil
}

// Download opens src through its scheme's fetcher.
func (r *Router) Download(ctx context.Context, src string) (io.ReadCloser, error) {
	f, err := r.route(src)
	if err != nil {
		return nil, err
	}
	return f.Download(ctx, src)
}

// DownloadToFile copies src to path through its scheme's fetcher.
func (r *Router) DownloadToFile(ctx context.Context, src string, path string) (int64, error) {
	f, err := r.route(src)
	if err != nil {
		return 0, err
	}
	return f.DownloadToFile(ctx, src, path)
}

// Resolve delegates to the local fetcher when it can resolve paths.
func (r *Router) Resolve(src string) string {
	if res, ok := r.routes["file"].(Resolver); ok {
		return res.Resolve(src)
	}
	return strings.TrimPrefix(src, "file://")
}

// LocalCopy returns a filesystem path holding src. Local sources are used in
// place; remote ones are downloaded into dir under their base name.
func LocalCopy(ctx context.Context, f Fetcher, src, dir string) (string, error) {
	if IsLocal(src) {
		if res, ok := f.(Resolver); ok {
			return res.Resolve(src), nil
		}
		return strings.TrimPrefix(src, "file://"), nil
	}

	u, err := url.Parse(src)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: parse %s", src)
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = "download"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "fetcher: create temp dir")
	}
	dest := filepath.Join(dir, name)
	if _, err := f.DownloadToFile(ctx, src, dest); err != nil {
		return "", err
	}
	return dest, nil
}
