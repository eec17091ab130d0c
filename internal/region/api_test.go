package region

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yys/safewalk-cli/internal/resilience"
)

func fastPolicy() resilience.Policy {
	p := resilience.DefaultPolicy()
	p.Attempts = 3
	p.Backoff = time.Millisecond
	p.MaxBackoff = time.Millisecond
	p.Jitter = 0
	return p
}

func TestAPIClient_InBounds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/emd", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "33", q.Get("swLat"))
		assert.Equal(t, "124", q.Get("swLng"))
		assert.Equal(t, "38.9", q.Get("neLat"))
		assert.Equal(t, "132", q.Get("neLng"))
		_, _ = w.Write([]byte(`[{"name":"황오동","totalAccident":38,"EMD_CD":"47130115","latitude":35.84,"longitude":129.22}]`))
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL+"/api/v1/", WithPolicy(fastPolicy()))
	recs, err := c.InBounds(context.Background(), KoreaBounds)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "47130115", recs[0].Code)
	assert.Equal(t, 38, recs[0].AccidentCount)
}

func TestAPIClient_InSido(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emd/sido/4713", r.URL.Path)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	recs, err := NewAPIClient(srv.URL, WithPolicy(fastPolicy())).InSido(context.Background(), "4713")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestAPIClient_InSido_BadCode(t *testing.T) {
	_, err := NewAPIClient("http://unused").InSido(context.Background(), "4")
	assert.ErrorContains(t, err, "4 digits")
}

func TestAPIClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"name":"a","totalAccident":1}]`))
	}))
	defer srv.Close()

	recs, err := NewAPIClient(srv.URL, WithPolicy(fastPolicy())).InSido(context.Background(), "1111")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAPIClient_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewAPIClient(srv.URL, WithPolicy(fastPolicy())).InSido(context.Background(), "1111")
	assert.ErrorContains(t, err, "status 404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestAPIClient_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	b := resilience.NewBreaker("region-api", 1, time.Hour)
	c := NewAPIClient(srv.URL, WithPolicy(fastPolicy()), WithBreaker(b))

	_, err := c.InSido(context.Background(), "1111")
	require.Error(t, err)
	_, err = c.InSido(context.Background(), "1111")
	assert.ErrorIs(t, err, resilience.ErrOpen)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAPIClient_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"oops":`))
	}))
	defer srv.Close()

	_, err := NewAPIClient(srv.URL, WithPolicy(fastPolicy())).InSido(context.Background(), "1111")
	assert.ErrorContains(t, err, "decode response")
}
