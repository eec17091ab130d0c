package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures FTPFetcher.
type FTPOptions struct {
	Timeout time.Duration
}

// FTPFetcher retrieves ftp:// sources. Credentials come from the URL user
// info, anonymous otherwise.
type FTPFetcher struct {
	opts FTPOptions
}

// NewFTPFetcher creates an FTPFetcher.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &FTPFetcher{opts: opts}
}

type ftpTarget struct {
	host, path, user, pass string
}

func parseFTPURL(raw string) (ftpTarget, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ftpTarget{}, eris.Wrap(err, "ftp: parse url")
	}
	if u.Scheme != "ftp" {
		return ftpTarget{}, eris.Errorf("ftp: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return ftpTarget{}, eris.New("ftp: empty path")
	}

	t := ftpTarget{host: u.Host, path: u.Path, user: "anonymous", pass: "anonymous@"}
	if _, _, err := net.SplitHostPort(t.host); err != nil {
		t.host = net.JoinHostPort(t.host, "21")
	}
	if u.User != nil {
		t.user = u.User.Username()
		t.pass, _ = u.User.Password()
	}
	return t, nil
}

type ftpBody struct {
	*ftp.Response
	conn *ftp.ServerConn
}

func (b *ftpBody) Close() error {
	err := b.Response.Close()
	if qerr := b.conn.Quit(); err == nil && qerr != nil {
		err = qerr
	}
	if err != nil {
		return eris.Wrap(err, "ftp: close")
	}
	return nil
}

// Download logs in and starts retrieving the file. Closing the reader ends
// the session.
func (f *FTPFetcher) Download(ctx context.Context, src string) (io.ReadCloser, error) {
	t, err := parseFTPURL(src)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("ftp: connecting", zap.String("host", t.host), zap.String("path", t.path))

	conn, err := ftp.Dial(t.host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrapf(err, "ftp: dial %s", t.host)
	}
	if err := conn.Login(t.user, t.pass); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrap(err, "ftp: login")
	}
	resp, err := conn.Retr(t.path)
	if err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "ftp: retrieve %s", t.path)
	}
	return &ftpBody{Response: resp, conn: conn}, nil
}

// DownloadToFile retrieves src into path.
func (f *FTPFetcher) DownloadToFile(ctx context.Context, src string, path string) (int64, error) {
	rc, err := f.Download(ctx, src)
	if err != nil {
		return 0, err
	}
	defer rc.Close() //nolint:errcheck
	return copyToFile(path, rc)
}
