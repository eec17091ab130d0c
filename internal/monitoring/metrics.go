package monitoring

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"

	"github.com/yys/safewalk-cli/internal/analysis"
	"github.com/yys/safewalk-cli/internal/riskclass"
)

// Metrics bundles the Prometheus collectors of the service.
type Metrics struct {
	gatherer prometheus.Gatherer

	Analyses       *prometheus.CounterVec
	Regions        *prometheus.CounterVec
	SyncDuration   *prometheus.HistogramVec
	Syncs          *prometheus.CounterVec
	SyncRows       *prometheus.CounterVec
	KoroadRequests *prometheus.CounterVec
	Alerts         *prometheus.CounterVec
}

// NewMetrics registers the metrics against reg, defaulting to the global
// registry when nil. Registering twice returns the existing collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &Metrics{gatherer: gatherer}
	var err error
	if m.Analyses, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safewalk_analyses_total",
		Help: "Completed risk analyses by classification method.",
	}, []string{"method"})); err != nil {
		return nil, err
	}
	if m.Regions, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safewalk_classified_regions_total",
		Help: "Regions assigned to each risk level.",
	}, []string{"level"})); err != nil {
		return nil, err
	}
	if m.SyncDuration, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "safewalk_dataset_sync_duration_seconds",
		Help:    "Dataset sync latency in seconds.",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 300, 900, 1800},
	}, []string{"dataset"})); err != nil {
		return nil, err
	}
	if m.Syncs, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safewalk_dataset_syncs_total",
		Help: "Dataset syncs by outcome.",
	}, []string{"dataset", "result"})); err != nil {
		return nil, err
	}
	if m.SyncRows, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safewalk_dataset_rows_synced_total",
		Help: "Rows written by dataset syncs.",
	}, []string{"dataset"})); err != nil {
		return nil, err
	}
	if m.KoroadRequests, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safewalk_koroad_requests_total",
		Help: "KOROAD OpenAPI round trips by endpoint and outcome.",
	}, []string{"endpoint", "result"})); err != nil {
		return nil, err
	}
	if m.Alerts, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safewalk_sync_alerts_total",
		Help: "Dataset sync alerts raised, by type and delivery result.",
	}, []string{"type", "result"})); err != nil {
		return nil, err
	}
	return m, nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveAnalysis counts a finished analysis and its tier sizes.
func (m *Metrics) ObserveAnalysis(r *analysis.Result) {
	if m == nil || r == nil {
		return
	}
	m.Analyses.WithLabelValues(r.Method).Inc()
	for lvl, n := range r.Counts() {
		m.Regions.WithLabelValues(lvl.String()).Add(float64(n))
	}
}

// ObserveSync records one dataset sync. Its signature matches the sync
// engine's observer hook.
func (m *Metrics) ObserveSync(dataset string, rows int64, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.Syncs.WithLabelValues(dataset, result(err)).Inc()
	m.SyncDuration.WithLabelValues(dataset).Observe(elapsed.Seconds())
	if err == nil && rows > 0 {
		m.SyncRows.WithLabelValues(dataset).Add(float64(rows))
	}
}

// ObserveKoroad records one KOROAD API call.
func (m *Metrics) ObserveKoroad(endpoint string, err error) {
	if m == nil {
		return
	}
	m.KoroadRequests.WithLabelValues(endpoint, result(err)).Inc()
}

// ObserveAlert records one raised alert. Alerts raised without a webhook
// are counted as skipped.
func (m *Metrics) ObserveAlert(t AlertType, err error) {
	if m == nil {
		return
	}
	res := "sent"
	switch {
	case errors.Is(err, errNoWebhook):
		res = "skipped"
	case err != nil:
		res = "error"
	}
	m.Alerts.WithLabelValues(string(t), res).Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// levels keeps the label set stable so dashboards see zeros.
var levels = []riskclass.Level{riskclass.Low, riskclass.Medium, riskclass.High}

// Init pre-creates the per-level series.
func (m *Metrics) Init() {
	for _, l := range levels {
		m.Regions.WithLabelValues(l.String())
	}
	for _, method := range riskclass.Methods {
		m.Analyses.WithLabelValues(method)
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, eris.Wrap(err, "monitoring: register counter")
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
		}
		return nil, eris.Wrap(err, "monitoring: register histogram")
	}
	return vec, nil
}
