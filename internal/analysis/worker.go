package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	"agrosolutions.dev/sensor-pipeline/pkg/event"
	"agrosolutions.dev/sensor-pipeline/pkg/metrics"
	"agrosolutions.dev/sensor-pipeline/pkg/mq"
)

// workerStore is the storage surface the worker depends on.
type workerStore interface {
	InsertReading(ctx context.Context, reading *Reading) (int64, error)
	InsertAlert(ctx context.Context, alert *Alert) (int64, error)
}

// Worker consumes reading events, persists the analysis-side copy, runs
// the alert engine, and persists the resulting alerts.
//
// Delivery outcomes:
//   - processed: ack, message leaves the queue.
//   - malformed payload: hand to the poison sink, then ack. A payload
//     that cannot be decoded never succeeds on redelivery.
//   - processing failure: hand to the poison sink, then reject without
//     requeue. The happy-path queue never sees a failed message again.
type Worker struct {
	source mq.DeliverySource
	sink   mq.PoisonSink
	store  workerStore
	engine *Engine
	logger *slog.Logger
	queue  string

	mqMetrics       *metrics.MQMetrics
	analysisMetrics *metrics.AnalysisMetrics

	done chan struct{}
}

// NewWorker creates an alert worker. Call Start to begin consuming.
func NewWorker(source mq.DeliverySource, sink mq.PoisonSink, store workerStore, engine *Engine, queue string, logger *slog.Logger) (*Worker, error) {
	if source == nil {
		return nil, errors.New("delivery source cannot be nil")
	}
	if sink == nil {
		return nil, errors.New("poison sink cannot be nil")
	}
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if engine == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if queue == "" {
		return nil, errors.New("queue cannot be empty")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Worker{
		source: source,
		sink:   sink,
		store:  store,
		engine: engine,
		logger: logger,
		queue:  queue,
		done:   make(chan struct{}),
	}, nil
}

// SetMetrics installs the metric collectors. Call before Start.
func (w *Worker) SetMetrics(mm *metrics.MQMetrics, am *metrics.AnalysisMetrics) {
	w.mqMetrics = mm
	w.analysisMetrics = am
}

// Start connects to the broker and launches the consume loop. It
// returns once the subscription is established; the loop runs until the
// delivery channel closes.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.source.Connect(ctx); err != nil {
		return err
	}

	deliveries, err := w.source.Consume()
	if err != nil {
		return err
	}

	go w.loop(ctx, deliveries)
	w.logger.Info("alert worker started", "queue", w.queue)
	return nil
}

// Done is closed when the consume loop exits.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Stop closes the delivery source, which ends the consume loop.
func (w *Worker) Stop() error {
	return w.source.Close()
}

func (w *Worker) loop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer close(w.done)
	for d := range deliveries {
		w.handleDelivery(ctx, d)
	}
	w.logger.Info("delivery channel closed, alert worker stopping")
}

func (w *Worker) handleDelivery(ctx context.Context, d amqp.Delivery) {
	if w.mqMetrics != nil {
		timer := prometheus.NewTimer(w.mqMetrics.ProcessDuration.WithLabelValues(w.queue))
		defer timer.ObserveDuration()
	}

	var env event.ReadingReceived
	if err := json.Unmarshal(d.Body, &env); err != nil {
		w.poison(ctx, d, "malformed_payload", err)
		return
	}
	if env.Reading == nil {
		w.poison(ctx, d, "missing_payload", nil)
		return
	}

	reading := &Reading{
		FieldID:    env.Reading.FieldID,
		CapturedAt: env.Reading.CapturedAtUTC.UTC(),
	}
	if m := env.Reading.Metrics; m != nil {
		reading.SoilMoisturePct = m.SoilMoisturePct
		reading.TemperatureC = m.TemperatureC
		reading.PrecipitationMm = m.PrecipitationMm
	}

	if _, err := w.store.InsertReading(ctx, reading); err != nil {
		w.fail(ctx, d, "store_reading", err)
		return
	}
	if w.analysisMetrics != nil {
		w.analysisMetrics.ReadingsPersisted.Inc()
	}

	alerts, err := w.evaluate(ctx, reading)
	if err != nil {
		w.fail(ctx, d, "evaluate", err)
		return
	}

	for i := range alerts {
		if _, err := w.store.InsertAlert(ctx, &alerts[i]); err != nil {
			w.fail(ctx, d, "store_alert", err)
			return
		}
		if w.analysisMetrics != nil {
			w.analysisMetrics.AlertsGenerated.WithLabelValues(string(alerts[i].Severity)).Inc()
		}
		w.logger.Info("alert generated",
			"field_id", alerts[i].FieldID,
			"severity", alerts[i].Severity,
			"message", alerts[i].Message,
		)
	}

	if err := d.Ack(false); err != nil {
		w.logger.Error("failed to ack delivery", "error", err)
		return
	}
	if w.mqMetrics != nil {
		w.mqMetrics.MessagesConsumed.WithLabelValues(w.queue).Inc()
	}
}

func (w *Worker) evaluate(ctx context.Context, reading *Reading) ([]Alert, error) {
	if w.analysisMetrics != nil {
		timer := prometheus.NewTimer(w.analysisMetrics.EvaluationDuration)
		defer timer.ObserveDuration()
	}
	return w.engine.Evaluate(ctx, reading)
}

// poison handles a payload that can never be processed: sink, then ack
// so it leaves the queue.
func (w *Worker) poison(ctx context.Context, d amqp.Delivery, reason string, err error) {
	w.logger.Warn("unprocessable message", "reason", reason, "error", err)
	if w.mqMetrics != nil {
		w.mqMetrics.MessagesPoisoned.WithLabelValues(w.queue, reason).Inc()
	}
	if sinkErr := w.sink.Sink(ctx, d.Body, reason); sinkErr != nil {
		w.logger.Error("failed to sink poison message", "reason", reason, "error", sinkErr)
	}
	if ackErr := d.Ack(false); ackErr != nil {
		w.logger.Error("failed to ack poison message", "error", ackErr)
	}
}

// fail handles a processing failure: sink, then reject without requeue.
func (w *Worker) fail(ctx context.Context, d amqp.Delivery, reason string, err error) {
	w.logger.Error("failed to process delivery", "reason", reason, "error", err)
	if w.mqMetrics != nil {
		w.mqMetrics.ProcessingErrors.WithLabelValues(w.queue, reason).Inc()
	}
	if sinkErr := w.sink.Sink(ctx, d.Body, reason); sinkErr != nil {
		w.logger.Error("failed to sink failed message", "reason", reason, "error", sinkErr)
	}
	if nackErr := d.Nack(false, false); nackErr != nil {
		w.logger.Error("failed to reject delivery", "error", nackErr)
	}
}
