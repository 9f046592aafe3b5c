package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	jobsSubmitted *prometheus.CounterVec
	jobsFinished  *prometheus.CounterVec
	jobsInFlight  *prometheus.GaugeVec
	rowsExported  *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
	rowsIngested  *prometheus.CounterVec
	queryLatency  *prometheus.HistogramVec
	errorsTotal   *prometheus.CounterVec
}

// New creates a Prometheus metrics recorder registered on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		jobsSubmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "priceserver_export_jobs_submitted_total",
				Help: "Total number of export jobs submitted",
			},
			[]string{"kind"},
		),
		jobsFinished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "priceserver_export_jobs_finished_total",
				Help: "Total number of export jobs that reached a terminal state",
			},
			[]string{"kind", "state"},
		),
		jobsInFlight: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "priceserver_export_jobs_in_flight",
				Help: "Export jobs currently processing",
			},
			[]string{"kind"},
		),
		rowsExported: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "priceserver_export_rows_total",
				Help: "Rows written by completed exports",
			},
			[]string{"kind"},
		),
		exportLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "priceserver_export_duration_seconds",
				Help:    "Wall time of export jobs",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"kind", "state"},
		),
		rowsIngested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "priceserver_rows_ingested_total",
				Help: "Rows written to the series store",
			},
			[]string{"series", "source"},
		),
		queryLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "priceserver_query_duration_seconds",
				Help:    "Duration of interactive series queries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"series"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "priceserver_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

func (r *Recorder) RecordJobSubmitted(kind string) {
	r.jobsSubmitted.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordJobStarted(kind string) {
	r.jobsInFlight.WithLabelValues(kind).Inc()
}

// RecordJobFinished closes out a job started with RecordJobStarted.
func (r *Recorder) RecordJobFinished(kind, state string, rows int64, seconds float64) {
	r.jobsInFlight.WithLabelValues(kind).Dec()
	r.jobsFinished.WithLabelValues(kind, state).Inc()
	r.exportLatency.WithLabelValues(kind, state).Observe(seconds)
	if rows > 0 {
		r.rowsExported.WithLabelValues(kind).Add(float64(rows))
	}
}

func (r *Recorder) RecordRowsIngested(series, source string, n int) {
	r.rowsIngested.WithLabelValues(series, source).Add(float64(n))
}

func (r *Recorder) RecordQuery(series string, seconds float64) {
	r.queryLatency.WithLabelValues(series).Observe(seconds)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordJobSubmitted(string)                        {}
func (Nop) RecordJobStarted(string)                          {}
func (Nop) RecordJobFinished(string, string, int64, float64) {}
func (Nop) RecordRowsIngested(string, string, int)           {}
func (Nop) RecordQuery(string, float64)                      {}
func (Nop) RecordError(string)                               {}
