package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/yys/safewalk-cli/internal/analysis"
	"github.com/yys/safewalk-cli/internal/monitoring"
	"github.com/yys/safewalk-cli/internal/region"
	"github.com/yys/safewalk-cli/internal/riskclass"
	"github.com/yys/safewalk-cli/internal/riskstats"
	"github.com/yys/safewalk-cli/internal/store"
)

// apiServer holds the dependencies of the HTTP handlers. Any of lookup,
// store and collector may be nil; the endpoints that need them answer 503.
type apiServer struct {
	lookup        region.Lookup
	store         store.Store
	metrics       *monitoring.Metrics
	collector     *monitoring.Collector
	lookbackHours int
	defaultMethod string
}

// analyzeRequest is the body of POST /api/v1/risk/analyze.
type analyzeRequest struct {
	Name    string          `json:"name"`
	Method  string          `json:"method"`
	Regions []region.Record `json:"regions"`
	Save    bool            `json:"save"`
}

func (s *apiServer) routes(origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/emd", s.handleEMDBounds)
		r.Get("/emd/sido/{code}", s.handleEMDSido)
		r.Get("/risk/sido/{code}", s.handleRiskSido)
		r.Post("/risk/analyze", s.handleAnalyze)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/status", s.handleStatus)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		zap.L().Warn("serve: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// analysisStatus maps analysis errors caused by the input to 400.
func analysisStatus(err error) int {
	var empty *riskstats.EmptyInputError
	var invalid *riskstats.InvalidCountError
	var method *riskclass.UnsupportedMethodError
	if errors.As(err, &empty) || errors.As(err, &invalid) || errors.As(err, &method) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			status["status"] = "degraded"
			status["store"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, status)
}

func parseBoundsQuery(r *http.Request) (region.Bounds, error) {
	q := r.URL.Query()
	if q.Get("swLat") == "" && q.Get("swLng") == "" && q.Get("neLat") == "" && q.Get("neLng") == "" {
		return region.KoreaBounds, nil
	}
	return parseBounds(q.Get("swLat") + "," + q.Get("swLng") + "," + q.Get("neLat") + "," + q.Get("neLng"))
}

func (s *apiServer) handleEMDBounds(w http.ResponseWriter, r *http.Request) {
	if s.lookup == nil {
		writeError(w, http.StatusServiceUnavailable, "accident database not configured")
		return
	}
	b, err := parseBoundsQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := s.lookup.InBounds(r.Context(), b)
	if err != nil {
		zap.L().Error("serve: emd by bounds", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, region.Dedupe(recs))
}

func (s *apiServer) handleEMDSido(w http.ResponseWriter, r *http.Request) {
	if s.lookup == nil {
		writeError(w, http.StatusServiceUnavailable, "accident database not configured")
		return
	}
	code := chi.URLParam(r, "code")
	if err := region.ValidateSidoCode(code); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := s.lookup.InSido(r.Context(), code)
	if err != nil {
		zap.L().Error("serve: emd by sido", zap.String("code", code), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, region.Dedupe(recs))
}

func (s *apiServer) method(r *http.Request, fallback string) string {
	if m := r.URL.Query().Get("method"); m != "" {
		return m
	}
	if fallback != "" {
		return fallback
	}
	if s.defaultMethod != "" {
		return s.defaultMethod
	}
	return riskclass.MethodAdaptive
}

func (s *apiServer) handleRiskSido(w http.ResponseWriter, r *http.Request) {
	if s.lookup == nil {
		writeError(w, http.StatusServiceUnavailable, "accident database not configured")
		return
	}
	code := chi.URLParam(r, "code")
	if err := region.ValidateSidoCode(code); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	src := region.LookupSource{Lookup: s.lookup, Query: region.Query{SidoCode: code, Label: r.URL.Query().Get("name")}}
	res, err := analysis.Run(r.Context(), src, s.method(r, ""))
	if err != nil {
		status := analysisStatus(err)
		if status == http.StatusInternalServerError {
			zap.L().Error("serve: risk by sido", zap.String("code", code), zap.Error(err))
		}
		writeError(w, status, err.Error())
		return
	}
	s.finish(r, res, r.URL.Query().Get("save") == "true")
	writeJSON(w, http.StatusOK, res)
}

func (s *apiServer) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := region.ValidateAll(req.Regions); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := req.Name
	if name == "" {
		name = "사용자 지정 영역"
	}
	res, err := analysis.Analyze(name, req.Regions, s.method(r, req.Method))
	if err != nil {
		writeError(w, analysisStatus(err), err.Error())
		return
	}
	s.finish(r, res, req.Save)
	writeJSON(w, http.StatusOK, res)
}

// finish records metrics and, when asked and possible, saves res.
func (s *apiServer) finish(r *http.Request, res *analysis.Result, save bool) {
	s.metrics.ObserveAnalysis(res)
	if !save || s.store == nil {
		return
	}
	if _, err := s.store.SaveAnalysis(r.Context(), res); err != nil {
		zap.L().Warn("serve: save analysis", zap.String("region", res.RegionName), zap.Error(err))
	}
}

func (s *apiServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	runs, err := s.store.ListAnalyses(r.Context(), store.RunFilter{
		Method:     q.Get("method"),
		RegionName: q.Get("region"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		zap.L().Error("serve: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if runs == nil {
		runs = []store.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *apiServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	res, err := s.store.GetAnalysis(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		zap.L().Error("serve: get run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.collector == nil {
		writeError(w, http.StatusServiceUnavailable, "monitoring not configured")
		return
	}
	hours := s.lookbackHours
	if h, err := strconv.Atoi(r.URL.Query().Get("hours")); err == nil && h > 0 {
		hours = h
	}
	if hours <= 0 {
		hours = 24
	}
	snap, err := s.collector.Collect(r.Context(), hours)
	if err != nil {
		zap.L().Error("serve: collect status", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
