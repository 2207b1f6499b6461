// Package mock provides mock implementations of the mq package
// interfaces for testing.
package mock

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"agrosolutions.dev/sensor-pipeline/pkg/mq"
)

// Publisher is a mock implementation of mq.EventPublisher. It tracks
// calls and allows configuring return values and behavior.
type Publisher struct {
	mu sync.Mutex

	// PublishFunc is called when Publish is invoked. If nil, returns PublishError.
	PublishFunc func(ctx context.Context, body []byte) error
	// PublishError is returned by Publish if PublishFunc is nil.
	PublishError error
	// PublishCalls tracks all bodies passed to Publish.
	PublishCalls [][]byte

	// CloseError is returned by Close.
	CloseError error
	// CloseCalls tracks the number of times Close was called.
	CloseCalls int
}

// Publish implements mq.EventPublisher.
func (p *Publisher) Publish(ctx context.Context, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.PublishCalls = append(p.PublishCalls, body)
	if p.PublishFunc != nil {
		return p.PublishFunc(ctx, body)
	}
	return p.PublishError
}

// Close implements mq.EventPublisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.CloseCalls++
	return p.CloseError
}

// DeliverySource is a mock implementation of mq.DeliverySource driven
// by a caller-owned delivery channel.
type DeliverySource struct {
	mu sync.Mutex

	// ConnectError is returned by Connect.
	ConnectError error
	// ConnectCalls tracks the number of times Connect was called.
	ConnectCalls int

	// Deliveries is returned by Consume.
	Deliveries chan amqp.Delivery
	// ConsumeError is returned by Consume.
	ConsumeError error

	// CloseCalls tracks the number of times Close was called.
	CloseCalls int
}

// NewDeliverySource creates a mock source with a buffered delivery channel.
func NewDeliverySource() *DeliverySource {
	return &DeliverySource{
		Deliveries: make(chan amqp.Delivery, 16),
	}
}

// Connect implements mq.DeliverySource.
func (s *DeliverySource) Connect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ConnectCalls++
	return s.ConnectError
}

// Consume implements mq.DeliverySource.
func (s *DeliverySource) Consume() (<-chan amqp.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ConsumeError != nil {
		return nil, s.ConsumeError
	}
	return s.Deliveries, nil
}

// Close implements mq.DeliverySource.
func (s *DeliverySource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CloseCalls++
	return nil
}

// PoisonSink is a mock implementation of mq.PoisonSink recording every
// sunk message.
type PoisonSink struct {
	mu sync.Mutex

	// SinkError is returned by Sink.
	SinkError error
	// Sunk records the bodies and reasons handed to the sink.
	Sunk []SunkMessage
}

// SunkMessage records one Sink call.
type SunkMessage struct {
	Body   []byte
	Reason string
}

// Sink implements mq.PoisonSink.
func (p *PoisonSink) Sink(_ context.Context, body []byte, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Sunk = append(p.Sunk, SunkMessage{Body: body, Reason: reason})
	return p.SinkError
}

// Messages returns a copy of the sunk messages.
func (p *PoisonSink) Messages() []SunkMessage {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]SunkMessage, len(p.Sunk))
	copy(out, p.Sunk)
	return out
}

// Ensure the mocks implement the interfaces.
var (
	_ mq.EventPublisher = (*Publisher)(nil)
	_ mq.DeliverySource = (*DeliverySource)(nil)
	_ mq.PoisonSink     = (*PoisonSink)(nil)
)
