package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MQMetrics contains Prometheus metrics for the broker publisher and consumer.
type MQMetrics struct {
	EventsPublished   *prometheus.CounterVec
	PublishFailures   *prometheus.CounterVec
	PublishDuration   *prometheus.HistogramVec
	ConnectAttempts   prometheus.Counter
	ConnectionStatus  prometheus.Gauge
	MessagesConsumed  *prometheus.CounterVec
	MessagesPoisoned  *prometheus.CounterVec
	ProcessingErrors  *prometheus.CounterVec
	ProcessDuration   *prometheus.HistogramVec
}

// NewMQMetrics creates and registers broker metrics under the given namespace.
func NewMQMetrics(namespace string) *MQMetrics {
	m := &MQMetrics{
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "events_published_total",
				Help:      "Total number of events confirmed by the broker",
			},
			[]string{"routing_key"},
		),
		PublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "publish_failures_total",
				Help:      "Total number of publish failures by phase",
			},
			[]string{"routing_key", "phase"},
		),
		PublishDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "publish_duration_seconds",
				Help:      "Duration of publish operations including confirm wait",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"routing_key"},
		),
		ConnectAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "connect_attempts_total",
				Help:      "Total number of broker connection attempts",
			},
		),
		ConnectionStatus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "connection_status",
				Help:      "Current connection status (1=connected, 0=disconnected)",
			},
		),
		MessagesConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "messages_consumed_total",
				Help:      "Total number of messages acknowledged by the consumer",
			},
			[]string{"queue"},
		),
		MessagesPoisoned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "messages_poisoned_total",
				Help:      "Total number of messages handed to the poison sink",
			},
			[]string{"queue", "reason"},
		),
		ProcessingErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "processing_errors_total",
				Help:      "Total number of message processing failures",
			},
			[]string{"queue", "reason"},
		),
		ProcessDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "process_duration_seconds",
				Help:      "Duration of per-message processing",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"queue"},
		),
	}

	MustRegister(
		m.EventsPublished,
		m.PublishFailures,
		m.PublishDuration,
		m.ConnectAttempts,
		m.ConnectionStatus,
		m.MessagesConsumed,
		m.MessagesPoisoned,
		m.ProcessingErrors,
		m.ProcessDuration,
	)

	return m
}
