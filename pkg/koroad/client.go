// Package koroad is a client for the Korea Road Traffic Authority (KOROAD)
// open-data accident API.
package koroad

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/yys/safewalk-cli/internal/resilience"
)

const (
	// DefaultBaseURL is the public REST root.
	DefaultBaseURL   = "https://opendata.koroad.or.kr/data/rest"
	DefaultUserAgent = "Tourism-Safety-Service/1.0"
	DefaultPageSize  = 100
	MaxPageSize      = 1000
	DefaultRate      = 10
)

// Client defines the KOROAD API operations.
type Client interface {
	// HotspotPage fetches a single page of a hotspot category.
	HotspotPage(ctx context.Context, cat Category, q Query, pageNo int) (*Page[Hotspot], error)
	// Hotspots fetches every page of a hotspot category.
	Hotspots(ctx context.Context, cat Category, q Query) ([]Hotspot, error)
	// Statistics fetches per-region accident statistics.
	Statistics(ctx context.Context, q Query) ([]Statistic, error)
	// RiskAreas fetches link-based accident risk areas.
	RiskAreas(ctx context.Context, q Query) ([]RiskArea, error)
	// RiskIndex rates the road links along a WKT line string.
	RiskIndex(ctx context.Context, lineString, vehicleType string) ([]RiskIndex, error)
	// Health probes the API with a one-row request.
	Health(ctx context.Context) Health
}

// Health is the outcome of a probe.
type Health struct {
	Available bool          `json:"available"`
	CheckedAt time.Time     `json:"checked_at"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
}

// Observer is told about every HTTP round trip.
type Observer func(endpoint string, err error)

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL. Empty keeps the default.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithPageSize sets numOfRows, capped at MaxPageSize.
func WithPageSize(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.pageSize = min(n, MaxPageSize)
		}
	}
}

// WithRate limits requests per second. Zero or less disables limiting.
func WithRate(rps float64) Option {
	return func(c *httpClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithPolicy sets the retry policy. A policy without a Retryable func keeps
// the client's, which also retries temporary API result codes.
func WithPolicy(p resilience.Policy) Option {
	return func(c *httpClient) {
		if p.Retryable == nil {
			p.Retryable = retryable
		}
		c.policy = p
	}
}

// WithBreaker guards every request with b.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *httpClient) { c.breaker = b }
}

// WithObserver registers a request observer.
func WithObserver(o Observer) Option {
	return func(c *httpClient) { c.observe = o }
}

type httpClient struct {
	apiKey    string
	baseURL   string
	userAgent string
	pageSize  int
	http      *http.Client
	limiter   *rate.Limiter
	policy    resilience.Policy
	breaker   *resilience.Breaker
	observe   Observer
}

// NewClient creates a KOROAD client.
func NewClient(apiKey string, opts ...Option) Client {
	p := resilience.DefaultPolicy().WithLogging("koroad")
	p.Retryable = retryable
	c := &httpClient{
		apiKey:    apiKey,
		baseURL:   DefaultBaseURL,
		userAgent: DefaultUserAgent,
		pageSize:  DefaultPageSize,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(DefaultRate, 1),
		policy:    p,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return resilience.Retryable(err)
}

func (c *httpClient) HotspotPage(ctx context.Context, cat Category, q Query, pageNo int) (*Page[Hotspot], error) {
	path := cat.Path()
	if path == "" {
		return nil, eris.Errorf("koroad: unknown category %q", cat)
	}
	return getPage[Hotspot](ctx, c, path, c.queryParams(q, pageNo))
}

func (c *httpClient) Hotspots(ctx context.Context, cat Category, q Query) ([]Hotspot, error) {
	path := cat.Path()
	if path == "" {
		return nil, eris.Errorf("koroad: unknown category %q", cat)
	}
	return getAll[Hotspot](ctx, c, path, q)
}

func (c *httpClient) Statistics(ctx context.Context, q Query) ([]Statistic, error) {
	return getAll[Statistic](ctx, c, "/stt", q)
}

func (c *httpClient) RiskAreas(ctx context.Context, q Query) ([]RiskArea, error) {
	return getAll[RiskArea](ctx, c, "/accident/riskArea", q)
}

func (c *httpClient) RiskIndex(ctx context.Context, lineString, vehicleType string) ([]RiskIndex, error) {
	v := url.Values{}
	v.Set("authKey", c.apiKey)
	v.Set("searchLineString", lineString)
	v.Set("vhctyCd", vehicleType)
	v.Set("type", "json")
	page, err := getPage[RiskIndex](ctx, c, "/road/dgdgr/link", v)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

func (c *httpClient) Health(ctx context.Context) Health {
	start := time.Now()
	h := Health{CheckedAt: start.UTC()}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	v := c.queryParams(Query{Year: "2023", SiDo: "11", GuGun: "680"}, 1)
	v.Set("numOfRows", "1")
	page := new(Page[Hotspot])
	code, err := c.fetch(ctx, Pedestrian.Path(), v, page)
	if err == nil && code != CodeOK && code != "" {
		err = &APIError{Endpoint: Pedestrian.Path(), Code: code, Message: page.ResultMsg}
	}
	h.Latency = time.Since(start)
	if err != nil {
		h.Error = err.Error()
		return h
	}
	h.Available = true
	return h
}

func (c *httpClient) queryParams(q Query, pageNo int) url.Values {
	v := url.Values{}
	v.Set("authKey", c.apiKey)
	v.Set("searchYearCd", q.Year)
	v.Set("siDo", q.SiDo)
	v.Set("guGun", q.GuGun)
	v.Set("type", "json")
	v.Set("numOfRows", strconv.Itoa(c.pageSize))
	v.Set("pageNo", strconv.Itoa(pageNo))
	return v
}

// getAll follows pageNo until pageNo*numOfRows reaches totalCount.
func getAll[T any](ctx context.Context, c *httpClient, path string, q Query) ([]T, error) {
	var out []T
	for pageNo := 1; ; pageNo++ {
		page, err := getPage[T](ctx, c, path, c.queryParams(q, pageNo))
		if err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		if len(page.Items) == 0 || !page.HasNext() {
			return out, nil
		}
	}
}

func getPage[T any](ctx context.Context, c *httpClient, path string, v url.Values) (*Page[T], error) {
	call := func(ctx context.Context) (*Page[T], error) {
		return resilience.RetryValue(ctx, c.policy, func(ctx context.Context) (*Page[T], error) {
			page := new(Page[T])
			code, err := c.fetch(ctx, path, v, page)
			if err != nil {
				return nil, err
			}
			switch code {
			case CodeOK, "":
				return page, nil
			case CodeNoData:
				return &Page[T]{ResultCode: code, ResultMsg: page.ResultMsg}, nil
			}
			return nil, &APIError{Endpoint: path, Code: code, Message: page.ResultMsg}
		})
	}
	if c.breaker == nil {
		return call(ctx)
	}
	return resilience.Guard(ctx, c.breaker, call)
}

// fetch performs one GET and decodes the envelope into dst, returning its
// result code.
func (c *httpClient) fetch(ctx context.Context, path string, v url.Values, dst interface{ code() string }) (string, error) {
	var err error
	if c.observe != nil {
		defer func() { c.observe(path, err) }()
	}

	if c.limiter != nil {
		if err = c.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "koroad: rate limiter")
		}
	}

	reqURL := c.baseURL + path + "?" + v.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "koroad: create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrapf(err, "koroad: request %s", path)
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return "", eris.Wrap(err, "koroad: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		err = eris.Errorf("koroad: %s status %d: %s", path, resp.StatusCode, truncate(body, 200))
		if resilience.RetryableStatus(resp.StatusCode) {
			err = resilience.Temporary(err, resp.StatusCode)
		}
		return "", err
	}

	if err = json.Unmarshal(body, dst); err != nil {
		err = eris.Wrapf(err, "koroad: decode %s", path)
		return "", err
	}
	return dst.code(), nil
}

func (p *Page[T]) code() string { return p.ResultCode }

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
