package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/yys/safewalk-cli/internal/resilience"
)

// HTTPOptions configures HTTPFetcher.
type HTTPOptions struct {
	UserAgent   string
	Timeout     time.Duration
	Policy      resilience.Policy
	DefaultRate rate.Limit            // requests per second for unlisted hosts
	HostRates   map[string]rate.Limit // per-host overrides
}

// HTTPFetcher retrieves http(s) sources with per-host rate limits and
// retries on transient failures.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// DefaultHostRates caps the public data portals the importers read from.
func DefaultHostRates() map[string]rate.Limit {
	return map[string]rate.Limit{
		"opendata.koroad.or.kr": 10,
		"www.data.go.kr":        5,
		"api.data.go.kr":        5,
	}
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "safewalk-cli/1.0"
	}
	if opts.Policy.Attempts == 0 {
		opts.Policy = resilience.DefaultPolicy()
	}
	if opts.DefaultRate == 0 {
		opts.DefaultRate = 20
	}
	if opts.HostRates == nil {
		opts.HostRates = DefaultHostRates()
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (f *HTTPFetcher) limiter(rawURL string) *rate.Limiter {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if lim, ok := f.limiters[host]; ok {
		return lim
	}
	r, ok := f.opts.HostRates[host]
	if !ok {
		r = f.opts.DefaultRate
	}
	lim := rate.NewLimiter(r, max(1, int(r)))
	f.limiters[host] = lim
	return lim
}

// Download GETs src and returns the body of a 200 response.
func (f *HTTPFetcher) Download(ctx context.Context, src string) (io.ReadCloser, error) {
	return resilience.RetryValue(ctx, f.opts.Policy, func(ctx context.Context) (io.ReadCloser, error) {
		if err := f.limiter(src).Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "http: rate limit wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			return nil, eris.Wrap(err, "http: create request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "http: get %s", src)
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			err := eris.Errorf("http: status %d from %s", resp.StatusCode, src)
			if resilience.RetryableStatus(resp.StatusCode) {
				return nil, resilience.Temporary(err, resp.StatusCode)
			}
			return nil, err
		}
		return resp.Body, nil
	})
}

// DownloadToFile GETs src into path.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, src string, path string) (int64, error) {
	body, err := f.Download(ctx, src)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck
	return copyToFile(path, body)
}
