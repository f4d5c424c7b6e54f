// Package metrics exports database and checker observations to Prometheus
// and OpenTelemetry.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"grampscore/internal/check"
)

// Metrics implements core.MetricsRecorder and check.CorrectionRecorder.
type Metrics struct {
	// Operation latency by operation name and outcome
	OperationLatency *prometheus.HistogramVec

	// Operation calls by operation name and outcome
	Operations *prometheus.CounterVec

	// Checker corrections by kind
	Corrections *prometheus.CounterVec
}

// New registers the grampscore metrics with reg. A nil reg uses a fresh
// registry so repeated calls never collide.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		OperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grampscore_operation_duration_seconds",
			Help:    "Duration of database operations",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation", "outcome"}),

		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "grampscore_operations_total",
			Help: "Total database operations by outcome",
		}, []string{"operation", "outcome"}),

		Corrections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "grampscore_check_corrections_total",
			Help: "Corrections committed by the integrity checker",
		}, []string{"kind"}),
	}
}

// Observe records one database operation.
func (m *Metrics) Observe(_ context.Context, operation string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.OperationLatency.WithLabelValues(operation, outcome).Observe(d.Seconds())
	m.Operations.WithLabelValues(operation, outcome).Inc()
}

// RecordCorrection counts one committed checker correction.
func (m *Metrics) RecordCorrection(kind check.Kind) {
	if m != nil {
		m.Corrections.WithLabelValues(string(kind)).Inc()
	}
}
