// Package metrics holds the Prometheus metrics of a cpaws run. Metrics live
// on a private registry and are written to a node_exporter textfile when the
// command finishes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

type Metrics struct {
	registry *prometheus.Registry

	results    *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	stepErrors *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		results: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cpaws",
				Subsystem: "prepare_subnet",
				Name:      "results_total",
				Help:      "Prepared subnet actions by VPC mode and result",
			},
			[]string{"mode", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "cpaws",
				Subsystem: "prepare_subnet",
				Name:      "batch_duration_seconds",
				Help:      "Duration of a prepare subnets batch in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10), // 500ms to ~4m
			},
			[]string{"mode"},
		),
		stepErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cpaws",
				Subsystem: "prepare_subnet",
				Name:      "step_errors_total",
				Help:      "Failed prepare subnet steps by step name",
			},
			[]string{"step"},
		),
	}
	m.registry.MustRegister(m.results, m.duration, m.stepErrors)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordResult counts one action outcome. A nil *Metrics records nothing.
func (m *Metrics) RecordResult(mode string, success bool) {
	if m == nil {
		return
	}
	result := ResultFailure
	if success {
		result = ResultSuccess
	}
	m.results.WithLabelValues(mode, result).Inc()
}

func (m *Metrics) ObserveBatch(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *Metrics) RecordStepError(step string) {
	if m == nil {
		return
	}
	m.stepErrors.WithLabelValues(step).Inc()
}

// WriteTextfile writes all metrics in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
