package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// IngestionMetrics contains Prometheus metrics for the ingestion API.
type IngestionMetrics struct {
	ReadingsIngested    prometheus.Counter
	RequestsRejected    *prometheus.CounterVec
	OwnershipDenied     prometheus.Counter
	RequestDuration     *prometheus.HistogramVec
	RangeQueries        *prometheus.CounterVec
}

// NewIngestionMetrics creates and registers ingestion metrics.
func NewIngestionMetrics(namespace string) *IngestionMetrics {
	m := &IngestionMetrics{
		ReadingsIngested: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingestion",
				Name:      "readings_ingested_total",
				Help:      "Total number of sensor readings persisted",
			},
		),
		RequestsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingestion",
				Name:      "requests_rejected_total",
				Help:      "Total number of rejected ingestion requests by reason",
			},
			[]string{"reason"},
		),
		OwnershipDenied: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingestion",
				Name:      "ownership_denied_total",
				Help:      "Total number of requests denied by the ownership gate",
			},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingestion",
				Name:      "request_duration_seconds",
				Help:      "Duration of ingestion HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"handler"},
		),
		RangeQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingestion",
				Name:      "range_queries_total",
				Help:      "Total number of range queries by mode (raw or bucketed)",
			},
			[]string{"mode"},
		),
	}

	MustRegister(
		m.ReadingsIngested,
		m.RequestsRejected,
		m.OwnershipDenied,
		m.RequestDuration,
		m.RangeQueries,
	)

	return m
}
