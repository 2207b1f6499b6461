package mq

import (
	"context"
	"errors"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// PoisonSink receives messages the worker could not process, together
// with the failure reason. It is a first-class output of the consumer:
// the happy-path queue never sees a failed message again, the sink does.
type PoisonSink interface {
	// Sink hands off a failed message. Implementations must not block
	// indefinitely; the worker treats sink errors as non-fatal.
	Sink(ctx context.Context, body []byte, reason string) error
}

// QueuePoisonSink publishes failed messages to a durable poison queue
// on the consumer's connection, tagging each with the failure reason.
type QueuePoisonSink struct {
	consumer *Consumer
	queue    string
	logger   *slog.Logger
}

// NewQueuePoisonSink declares the durable poison queue and returns a
// sink that publishes to it. The consumer must already be connected.
func NewQueuePoisonSink(consumer *Consumer, queue string, logger *slog.Logger) (*QueuePoisonSink, error) {
	if consumer == nil {
		return nil, errors.New("consumer cannot be nil")
	}
	if queue == "" {
		return nil, errors.New("poison queue cannot be empty")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	ch, err := consumer.channelForPublish()
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, err
	}

	return &QueuePoisonSink{
		consumer: consumer,
		queue:    queue,
		logger:   logger,
	}, nil
}

// Sink publishes the message to the poison queue via the default
// exchange, persistent, with the reason in a header.
func (s *QueuePoisonSink) Sink(ctx context.Context, body []byte, reason string) error {
	ch, err := s.consumer.channelForPublish()
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(
		ctx,
		"",      // default exchange
		s.queue, // routing key = queue name
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      amqp.Table{"x-failure-reason": reason},
			Body:         body,
		},
	)
	if err != nil {
		s.logger.Error("failed to publish to poison queue",
			"queue", s.queue,
			"reason", reason,
			"error", err,
		)
		return err
	}

	s.logger.Warn("message sent to poison queue", "queue", s.queue, "reason", reason)
	return nil
}

// LogPoisonSink records failed messages in the log only. Used when the
// poison queue is disabled.
type LogPoisonSink struct {
	Logger *slog.Logger
}

// Sink implements PoisonSink.
func (s *LogPoisonSink) Sink(_ context.Context, body []byte, reason string) error {
	s.Logger.Warn("dropping unprocessable message",
		"reason", reason,
		"bytes", len(body),
	)
	return nil
}
