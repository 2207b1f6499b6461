package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"agrosolutions.dev/sensor-pipeline/pkg/event"
	"agrosolutions.dev/sensor-pipeline/pkg/mq"
)

// ReadingPublisher turns a persisted reading into a durable broker
// event. A nil underlying publisher is not allowed; use NoopPublisher
// when messaging is disabled.
type ReadingPublisher struct {
	publisher mq.EventPublisher
	logger    *slog.Logger
}

// NewReadingPublisher creates a ReadingPublisher.
func NewReadingPublisher(publisher mq.EventPublisher, logger *slog.Logger) (*ReadingPublisher, error) {
	if publisher == nil {
		return nil, errors.New("publisher cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &ReadingPublisher{publisher: publisher, logger: logger}, nil
}

// PublishReadingReceived wraps the reading in an event envelope and
// publishes it. The error surfaces to the ingestion caller: a failed
// publish after a successful persist is not hidden.
func (p *ReadingPublisher) PublishReadingReceived(ctx context.Context, reading *SensorReading) error {
	envelope := event.NewReadingReceived(reading.ToEvent())

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal reading event: %w", err)
	}

	if err := p.publisher.Publish(ctx, body); err != nil {
		return fmt.Errorf("failed to publish reading event: %w", err)
	}

	p.logger.Debug("reading event published",
		"reading_id", reading.ID,
		"event_id", envelope.EventID,
	)
	return nil
}

// Close closes the underlying publisher.
func (p *ReadingPublisher) Close() error {
	return p.publisher.Close()
}

// NoopPublisher discards events. Used when messaging is
// administratively disabled.
type NoopPublisher struct{}

// Publish implements mq.EventPublisher.
func (NoopPublisher) Publish(context.Context, []byte) error { return nil }

// Close implements mq.EventPublisher.
func (NoopPublisher) Close() error { return nil }
