// Package metrics collects prepare/run counters on a private Prometheus
// registry and exports them in the textfile format for node_exporter or CI
// artifact upload.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "primer"

// Fetch results.
const (
	FetchCached  = "cached"
	FetchFetched = "fetched"
	FetchFailed  = "failed"
)

// Metrics holds every primer collector. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	FetchTotal     *prometheus.CounterVec
	FetchAttempts  prometheus.Counter
	FetchDuration  prometheus.Histogram
	TargetsTotal   *prometheus.CounterVec
	TargetDuration *prometheus.HistogramVec
	BatchTargets   prometheus.Gauge
}

// New creates collectors registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		FetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fetch",
				Name:      "targets_total",
				Help:      "Corpus targets ensured, by result (cached, fetched, failed)",
			},
			[]string{"result"},
		),
		FetchAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fetch",
				Name:      "attempts_total",
				Help:      "Git fetch attempts, including retries",
			},
		),
		FetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "fetch",
				Name:      "duration_seconds",
				Help:      "Time to ensure one corpus target",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		TargetsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "targets_total",
				Help:      "Analyzed targets by outcome status",
			},
			[]string{"status"},
		),
		TargetDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "target_duration_seconds",
				Help:      "Analyzer wall time per target",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"status"},
		),
		BatchTargets: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "batch_targets",
				Help:      "Number of targets assigned to this batch",
			},
		),
	}

	reg.MustRegister(
		m.FetchTotal,
		m.FetchAttempts,
		m.FetchDuration,
		m.TargetsTotal,
		m.TargetDuration,
		m.BatchTargets,
	)
	return m
}

// ObserveFetch records one ensured target.
func (m *Metrics) ObserveFetch(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(result).Inc()
	m.FetchDuration.Observe(d.Seconds())
}

// IncFetchAttempt records one git fetch attempt.
func (m *Metrics) IncFetchAttempt() {
	if m == nil {
		return
	}
	m.FetchAttempts.Inc()
}

// ObserveTarget records one analyzed target.
func (m *Metrics) ObserveTarget(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.TargetsTotal.WithLabelValues(status).Inc()
	m.TargetDuration.WithLabelValues(status).Observe(d.Seconds())
}

// SetBatchTargets records the batch size.
func (m *Metrics) SetBatchTargets(n int) {
	if m == nil {
		return
	}
	m.BatchTargets.Set(float64(n))
}

// WriteTextfile writes all metrics to path in the Prometheus text format.
// The file is replaced atomically; missing parent directories are created.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
