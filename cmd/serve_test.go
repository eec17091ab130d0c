package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yys/safewalk-cli/internal/analysis"
	"github.com/yys/safewalk-cli/internal/monitoring"
	"github.com/yys/safewalk-cli/internal/region"
	"github.com/yys/safewalk-cli/internal/store"
)

var skewedCounts = []int{2, 3, 3, 4, 4, 5, 7, 8, 12, 13, 38, 53, 58}

func skewedRecords() []region.Record {
	out := make([]region.Record, len(skewedCounts))
	for i, n := range skewedCounts {
		out[i] = region.Record{
			Name:          fmt.Sprintf("동%02d", i),
			AccidentCount: n,
			Code:          fmt.Sprintf("471301%02d", i),
		}
	}
	return out
}

type fakeLookup struct {
	recs   []region.Record
	err    error
	bounds region.Bounds
	sido   string
}

func (f *fakeLookup) InBounds(_ context.Context, b region.Bounds) ([]region.Record, error) {
	f.bounds = b
	return f.recs, f.err
}

func (f *fakeLookup) InSido(_ context.Context, code string) ([]region.Record, error) {
	f.sido = code
	return f.recs, f.err
}

func newTestServer(t *testing.T, lookup region.Lookup, withStore bool) (*apiServer, http.Handler) {
	t.Helper()
	m, err := monitoring.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	s := &apiServer{lookup: lookup, metrics: m, lookbackHours: 24, defaultMethod: "adaptive"}
	if withStore {
		st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
		require.NoError(t, err)
		require.NoError(t, st.Migrate(context.Background()))
		t.Cleanup(func() { _ = st.Close() })
		s.store = st
		s.collector = monitoring.NewCollector(st, nil)
	}
	return s, s.routes([]string{"*"})
}

func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestServe_Health(t *testing.T) {
	_, h := newTestServer(t, nil, true)
	rr := do(t, h, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServe_Metrics(t *testing.T) {
	_, h := newTestServer(t, nil, false)
	do(t, h, http.MethodPost, "/api/v1/risk/analyze", mustJSON(t, analyzeRequest{Regions: skewedRecords(), Method: "quartile"}))

	rr := do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `safewalk_analyses_total{method="quartile"} 1`)
}

func TestServe_CORS(t *testing.T) {
	_, h := newTestServer(t, nil, false)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://map.example.kr")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestServe_EMDBounds(t *testing.T) {
	lookup := &fakeLookup{recs: append(skewedRecords(), skewedRecords()[0])}
	_, h := newTestServer(t, lookup, false)

	rr := do(t, h, http.MethodGet, "/api/v1/emd?swLat=35.7&swLng=129.1&neLat=35.9&neLng=129.4", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, region.Bounds{SWLat: 35.7, SWLng: 129.1, NELat: 35.9, NELng: 129.4}, lookup.bounds)

	var recs []region.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &recs))
	assert.Len(t, recs, len(skewedCounts), "duplicates dropped")
	assert.Equal(t, "동00", recs[0].Name)
	assert.Equal(t, 2, recs[0].AccidentCount)
}

func TestServe_EMDBounds_DefaultsToKorea(t *testing.T) {
	lookup := &fakeLookup{}
	_, h := newTestServer(t, lookup, false)

	rr := do(t, h, http.MethodGet, "/api/v1/emd", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, region.KoreaBounds, lookup.bounds)
	assert.Equal(t, "[]", strings.TrimSpace(rr.Body.String()))
}

func TestServe_EMDBounds_Invalid(t *testing.T) {
	_, h := newTestServer(t, &fakeLookup{}, false)

	rr := do(t, h, http.MethodGet, "/api/v1/emd?swLat=36&swLng=129&neLat=35&neLng=130", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/v1/emd?swLat=36", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServe_EMDSido(t *testing.T) {
	lookup := &fakeLookup{recs: skewedRecords()}
	_, h := newTestServer(t, lookup, false)

	rr := do(t, h, http.MethodGet, "/api/v1/emd/sido/4713", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "4713", lookup.sido)

	rr = do(t, h, http.MethodGet, "/api/v1/emd/sido/47", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServe_EMD_LookupError(t *testing.T) {
	_, h := newTestServer(t, &fakeLookup{err: errors.New("connection reset")}, false)
	rr := do(t, h, http.MethodGet, "/api/v1/emd/sido/4713", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "connection reset")
}

func TestServe_NoDatabase(t *testing.T) {
	_, h := newTestServer(t, nil, false)
	for _, path := range []string{"/api/v1/emd", "/api/v1/emd/sido/4713", "/api/v1/risk/sido/4713", "/api/v1/runs", "/api/v1/status"} {
		rr := do(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, path)
	}
}

func TestServe_RiskSido(t *testing.T) {
	lookup := &fakeLookup{recs: skewedRecords()}
	s, h := newTestServer(t, lookup, true)

	rr := do(t, h, http.MethodGet, "/api/v1/risk/sido/4713?save=true", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var res analysis.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, "시도코드_4713", res.RegionName)
	assert.Equal(t, "adaptive", res.Method)
	assert.Len(t, res.ClassifiedRegions.High, 3)
	assert.Len(t, res.ClassifiedRegions.Medium, 4)
	assert.Len(t, res.ClassifiedRegions.Low, 6)

	runs, err := s.store.ListAnalyses(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 3, runs[0].High)
}

func TestServe_RiskSido_Method(t *testing.T) {
	_, h := newTestServer(t, &fakeLookup{recs: skewedRecords()}, false)

	rr := do(t, h, http.MethodGet, "/api/v1/risk/sido/4713?method=equal&name=경주시", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var res analysis.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, "경주시", res.RegionName)
	assert.Equal(t, "equal", res.Method)
	assert.Len(t, res.ClassifiedRegions.Low, 10)

	rr = do(t, h, http.MethodGet, "/api/v1/risk/sido/4713?method=magic", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServe_RiskSido_Empty(t *testing.T) {
	_, h := newTestServer(t, &fakeLookup{}, false)
	rr := do(t, h, http.MethodGet, "/api/v1/risk/sido/4713", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServe_Analyze(t *testing.T) {
	_, h := newTestServer(t, nil, false)

	rr := do(t, h, http.MethodPost, "/api/v1/risk/analyze", mustJSON(t, analyzeRequest{
		Name:    "경주시",
		Method:  "basic",
		Regions: skewedRecords(),
	}))
	require.Equal(t, http.StatusOK, rr.Code)

	var res analysis.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, "경주시", res.RegionName)
	assert.Equal(t, "basic", res.Method)
	assert.Len(t, res.ClassifiedRegions.Low, 8)
	assert.Len(t, res.ClassifiedRegions.Medium, 2)
	assert.Len(t, res.ClassifiedRegions.High, 3)
}

func TestServe_Analyze_BadInput(t *testing.T) {
	_, h := newTestServer(t, nil, false)

	tests := []struct {
		name string
		body []byte
	}{
		{"malformed", []byte("{")},
		{"empty", mustJSON(t, analyzeRequest{})},
		{"negative count", mustJSON(t, analyzeRequest{Regions: []region.Record{{Name: "a", AccidentCount: -1}}})},
		{"blank name", mustJSON(t, analyzeRequest{Regions: []region.Record{{AccidentCount: 3}}})},
		{"unknown method", mustJSON(t, analyzeRequest{Method: "magic", Regions: skewedRecords()})},
		{"fractional count", []byte(`{"regions":[{"name":"a","totalAccident":3.9}]}`)},
		{"negative fraction", []byte(`{"regions":[{"name":"a","totalAccident":-0.5}]}`)},
		{"null count", []byte(`{"regions":[{"name":"a","totalAccident":null}]}`)},
		{"missing count", []byte(`{"regions":[{"name":"a"}]}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/api/v1/risk/analyze", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, rr.Body.String(), `"error"`)
		})
	}
}

func TestServe_Analyze_WholeFloatCount(t *testing.T) {
	_, h := newTestServer(t, nil, false)

	body := []byte(`{"method":"quartile","regions":[{"name":"a","totalAccident":2.0},{"name":"b","totalAccident":9}]}`)
	rr := do(t, h, http.MethodPost, "/api/v1/risk/analyze", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestServe_Runs(t *testing.T) {
	s, h := newTestServer(t, nil, true)

	rr := do(t, h, http.MethodGet, "/api/v1/runs", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rr.Body.String()))

	res, err := analysis.Analyze("경주시", skewedRecords(), "quartile")
	require.NoError(t, err)
	id, err := s.store.SaveAnalysis(context.Background(), res)
	require.NoError(t, err)

	rr = do(t, h, http.MethodGet, "/api/v1/runs?method=quartile", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var runs []store.RunSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)

	rr = do(t, h, http.MethodGet, "/api/v1/runs/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got analysis.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "경주시", got.RegionName)

	rr = do(t, h, http.MethodGet, "/api/v1/runs/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServe_Status(t *testing.T) {
	s, h := newTestServer(t, nil, true)
	res, err := analysis.Analyze("경주시", skewedRecords(), "adaptive")
	require.NoError(t, err)
	_, err = s.store.SaveAnalysis(context.Background(), res)
	require.NoError(t, err)

	rr := do(t, h, http.MethodGet, "/api/v1/status?hours=6", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var snap monitoring.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, 1, snap.AnalysesTotal)
	assert.Equal(t, 13, snap.RegionsClassified)
	assert.Equal(t, 6, snap.LookbackHours)
}

func TestScheduleSync_InvalidSpec(t *testing.T) {
	_, err := scheduleSync(context.Background(), "every tuesday", nil, nil)
	assert.ErrorContains(t, err, "serve: schedule sync")
}

func TestScheduleSync_Valid(t *testing.T) {
	c, err := scheduleSync(context.Background(), "0 3 * * *", nil, nil)
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
