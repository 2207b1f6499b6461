package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AnalysisMetrics contains Prometheus metrics for the alert worker.
type AnalysisMetrics struct {
	AlertsGenerated    *prometheus.CounterVec
	ReadingsPersisted  prometheus.Counter
	EvaluationDuration prometheus.Histogram
}

// NewAnalysisMetrics creates and registers alert worker metrics.
func NewAnalysisMetrics(namespace string) *AnalysisMetrics {
	m := &AnalysisMetrics{
		AlertsGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "analysis",
				Name:      "alerts_generated_total",
				Help:      "Total number of alerts generated by severity",
			},
			[]string{"severity"},
		),
		ReadingsPersisted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "analysis",
				Name:      "readings_persisted_total",
				Help:      "Total number of readings persisted by the consumer",
			},
		),
		EvaluationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "analysis",
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of alert engine evaluations",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	MustRegister(
		m.AlertsGenerated,
		m.ReadingsPersisted,
		m.EvaluationDuration,
	)

	return m
}
