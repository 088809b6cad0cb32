// Package metrics holds the Prometheus collectors for pipeline runs, store
// operations and the HTTP API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sensor_etl"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// RunsTotal counts pipeline runs by outcome
	RunsTotal *prometheus.CounterVec

	// RunDuration is the wall time of a pipeline run
	RunDuration prometheus.Histogram

	// StageRows is the row count leaving each stage of the last run
	StageRows *prometheus.GaugeVec

	MalformedRows prometheus.Counter

	// OutliersReplaced counts values replaced by the cleaner
	OutliersReplaced *prometheus.CounterVec

	// ActiveAlerts is the alert count per column in the last loaded batch
	ActiveAlerts *prometheus.GaugeVec

	// StoreOpDuration is the latency of store operations
	StoreOpDuration *prometheus.HistogramVec

	// RequestsTotal counts HTTP requests
	RequestsTotal *prometheus.CounterVec

	// RequestDuration is the latency of HTTP requests
	RequestDuration *prometheus.HistogramVec
}

// New registers all collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of pipeline runs",
			},
			[]string{"status"},
		),
		RunDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Pipeline run duration in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		StageRows: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stage_rows",
				Help:      "Rows produced by each stage of the last run",
			},
			[]string{"stage"},
		),
		MalformedRows: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "malformed_rows_total",
				Help:      "Total number of source rows skipped as malformed",
			},
		),
		OutliersReplaced: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outliers_replaced_total",
				Help:      "Total number of values replaced by the IQR filter",
			},
			[]string{"column"},
		),
		ActiveAlerts: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_alerts",
				Help:      "Alerting rows per column in the last loaded batch",
			},
			[]string{"column"},
		),
		StoreOpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Store operation latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"backend", "op", "status"},
		),
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
	}
}

// ObserveStoreOp implements store.Observer
func (m *Metrics) ObserveStoreOp(backend, op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.StoreOpDuration.WithLabelValues(backend, op, status(err)).Observe(d.Seconds())
}

// ObserveRun records the outcome and duration of one pipeline run
func (m *Metrics) ObserveRun(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status(err)).Inc()
	m.RunDuration.Observe(d.Seconds())
}

// SetStageRows records the row count leaving stage
func (m *Metrics) SetStageRows(stage string, rows int) {
	if m == nil {
		return
	}
	m.StageRows.WithLabelValues(stage).Set(float64(rows))
}

// AddMalformed adds skipped source rows
func (m *Metrics) AddMalformed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.MalformedRows.Add(float64(n))
}

// AddOutliers adds replaced values for column
func (m *Metrics) AddOutliers(column string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.OutliersReplaced.WithLabelValues(column).Add(float64(n))
}

// SetAlerts records the alert count for column
func (m *Metrics) SetAlerts(column string, n int) {
	if m == nil {
		return
	}
	m.ActiveAlerts.WithLabelValues(column).Set(float64(n))
}

// ObserveRequest records one HTTP request
func (m *Metrics) ObserveRequest(method, endpoint string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	m.RequestDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
