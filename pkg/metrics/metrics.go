package metrics

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels for StageTotal.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// PipelineMetrics holds the collectors for the documentation pipeline.
type PipelineMetrics struct {
	StageTotal       *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	CurationSessions prometheus.Gauge
	JobsEnqueued     *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewPipelineMetrics creates the collectors and registers them on registry.
// A nil registry gets a fresh one.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.StageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casedoc",
			Name:      "stage_total",
			Help:      "Pipeline stage executions by outcome",
		},
		[]string{"stage", "result"},
	)
	m.StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "casedoc",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)
	m.CurationSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "casedoc",
			Name:      "curation_sessions_open",
			Help:      "Topic curation sessions currently held in memory",
		},
	)
	m.JobsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casedoc",
			Name:      "jobs_enqueued_total",
			Help:      "Background jobs enqueued by kind",
		},
		[]string{"kind"},
	)
	m.HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casedoc",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status class",
		},
		[]string{"route", "code"},
	)
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.StageTotal.Describe(ch)
	m.StageDuration.Describe(ch)
	m.CurationSessions.Describe(ch)
	m.JobsEnqueued.Describe(ch)
	m.HTTPRequests.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.StageTotal.Collect(ch)
	m.StageDuration.Collect(ch)
	m.CurationSessions.Collect(ch)
	m.JobsEnqueued.Collect(ch)
	m.HTTPRequests.Collect(ch)
}

// ObserveStage records one execution of stage. Safe on a nil receiver.
func (m *PipelineMetrics) ObserveStage(stage string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.StageTotal.WithLabelValues(stage, result).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

// SetCurationSessions reports the number of open curation sessions.
func (m *PipelineMetrics) SetCurationSessions(n int) {
	if m == nil {
		return
	}
	m.CurationSessions.Set(float64(n))
}

// JobEnqueued counts an enqueued background job.
func (m *PipelineMetrics) JobEnqueued(kind string) {
	if m == nil {
		return
	}
	m.JobsEnqueued.WithLabelValues(kind).Inc()
}

// RequestServed counts a served HTTP request.
func (m *PipelineMetrics) RequestServed(route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, statusClass(status)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
