package region

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/yys/safewalk-cli/internal/resilience"
)

// DefaultAPIBase is where the region API listens in local deployments.
const DefaultAPIBase = "http://localhost:8080/api/v1"

// APIClient queries the region API for per-EMD accident totals.
type APIClient struct {
	base    string
	http    *http.Client
	policy  resilience.Policy
	breaker *resilience.Breaker
}

// APIOption configures an APIClient.
type APIOption func(*APIClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) APIOption {
	return func(a *APIClient) { a.http = c }
}

// WithPolicy sets the retry policy.
func WithPolicy(p resilience.Policy) APIOption {
	return func(a *APIClient) { a.policy = p }
}

// WithBreaker guards calls with a circuit breaker.
func WithBreaker(b *resilience.Breaker) APIOption {
	return func(a *APIClient) { a.breaker = b }
}

// NewAPIClient creates a client for base ("" means DefaultAPIBase).
func NewAPIClient(base string, opts ...APIOption) *APIClient {
	if base == "" {
		base = DefaultAPIBase
	}
	c := &APIClient{
		base:   strings.TrimRight(base, "/"),
		http:   &http.Client{Timeout: 30 * time.Second},
		policy: resilience.DefaultPolicy().WithLogging("region-api"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// InBounds calls GET /emd with the viewport corners.
func (c *APIClient) InBounds(ctx context.Context, b Bounds) ([]Record, error) {
	q := url.Values{}
	q.Set("swLat", strconv.FormatFloat(b.SWLat, 'f', -1, 64))
	q.Set("swLng", strconv.FormatFloat(b.SWLng, 'f', -1, 64))
	q.Set("neLat", strconv.FormatFloat(b.NELat, 'f', -1, 64))
	q.Set("neLng", strconv.FormatFloat(b.NELng, 'f', -1, 64))
	return c.get(ctx, c.base+"/emd?"+q.Encode())
}

// InSido calls GET /emd/sido/{code}.
func (c *APIClient) InSido(ctx context.Context, code string) ([]Record, error) {
	if err := ValidateSidoCode(code); err != nil {
		return nil, err
	}
	return c.get(ctx, c.base+"/emd/sido/"+url.PathEscape(code))
}

func (c *APIClient) get(ctx context.Context, u string) ([]Record, error) {
	call := func(ctx context.Context) ([]Record, error) {
		return resilience.RetryValue(ctx, c.policy, func(ctx context.Context) ([]Record, error) {
			return c.fetch(ctx, u)
		})
	}
	var (
		recs []Record
		err  error
	)
	if c.breaker != nil {
		recs, err = resilience.Guard(ctx, c.breaker, call)
	} else {
		recs, err = call(ctx)
	}
	if err != nil {
		return nil, err
	}
	zap.L().Debug("region api: loaded records", zap.String("url", u), zap.Int("count", len(recs)))
	return recs, nil
}

func (c *APIClient) fetch(ctx context.Context, u string) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "region api: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "region api: get %s", u)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("region api: status %d from %s", resp.StatusCode, u)
		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, resilience.Temporary(err, resp.StatusCode)
		}
		return nil, err
	}

	var recs []Record
	if err := json.NewDecoder(resp.Body).Decode(&recs); err != nil {
		return nil, eris.Wrap(err, "region api: decode response")
	}
	return recs, nil
}
