package mq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// EventPublisher is the publishing surface consumed by the ingestion
// service. It enables mocking in handler tests.
type EventPublisher interface {
	// Publish sends a persistent message and blocks until the broker
	// confirms it or the bounded retries are exhausted.
	Publish(ctx context.Context, body []byte) error

	// Close shuts down the channel and connection.
	Close() error
}

// DeliverySource is the consuming surface used by the alert worker.
type DeliverySource interface {
	// Connect dials the broker and declares the topology.
	Connect(ctx context.Context) error

	// Consume returns the delivery channel. Each delivery must be
	// acknowledged or rejected.
	Consume() (<-chan amqp.Delivery, error)

	// Close shuts down the channel and connection, best-effort.
	Close() error
}

// Ensure the concrete types satisfy the interfaces.
var (
	_ EventPublisher = (*Publisher)(nil)
	_ DeliverySource = (*Consumer)(nil)
	_ PoisonSink     = (*QueuePoisonSink)(nil)
	_ PoisonSink     = (*LogPoisonSink)(nil)
)
