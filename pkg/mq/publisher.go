// Package mq provides the RabbitMQ publisher and consumer used by the
// sensor pipeline. Both own their connection/channel pair exclusively;
// nothing is shared between a Publisher and a Consumer.
package mq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	"agrosolutions.dev/sensor-pipeline/pkg/metrics"
)

// Config holds the broker topology shared by publisher and consumer.
type Config struct {
	// URL is the AMQP connection string.
	URL string
	// Exchange is the durable topic exchange events are published to.
	Exchange string
	// RoutingKey routes reading events to the analysis queue.
	RoutingKey string
	// Queue is the durable queue the consumer binds to the exchange.
	Queue string
	// Prefetch bounds the number of unacknowledged messages in flight.
	Prefetch int
}

const (
	// Dial retry policy for the publisher (fail fast, the caller is an
	// HTTP request).
	publisherDialAttempts = 3
	publisherDialDelay    = 500 * time.Millisecond

	// Publish retry policy.
	publishAttempts       = 3
	publishInitialBackoff = 200 * time.Millisecond

	// How long to wait for a broker confirm before treating the
	// publish as failed.
	confirmTimeout = 5 * time.Second
)

var (
	errPublisherClosed = errors.New("publisher is closed")
	errNotConfirmed    = errors.New("publish not confirmed by broker")
)

// Publisher is a confirm-mode publisher with a lazily established,
// mutex-guarded connection. The connection is re-established on demand
// whenever a publish finds it closed; there is no background reconnect
// loop.
type Publisher struct {
	m       sync.Mutex
	logger  *slog.Logger
	cfg     Config
	conn    *amqp.Connection
	channel *amqp.Channel
	confirm chan amqp.Confirmation
	closed  bool
	metrics *metrics.MQMetrics
}

// NewPublisher creates a Publisher. No connection is made until the
// first Publish call.
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.URL == "" {
		return nil, errors.New("broker URL cannot be empty")
	}
	if cfg.Exchange == "" {
		return nil, errors.New("exchange cannot be empty")
	}
	if cfg.RoutingKey == "" {
		return nil, errors.New("routing key cannot be empty")
	}

	return &Publisher{
		logger: logger,
		cfg:    cfg,
	}, nil
}

// SetMetrics sets the metrics collector. Call before the first Publish.
func (p *Publisher) SetMetrics(m *metrics.MQMetrics) {
	p.metrics = m
}

// ensureChannel dials and initializes the channel if the current one is
// not usable. Caller must hold p.m.
func (p *Publisher) ensureChannel() error {
	if p.conn != nil && !p.conn.IsClosed() && p.channel != nil && !p.channel.IsClosed() {
		return nil
	}
	p.dropChannel()

	var conn *amqp.Connection
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = publisherDialDelay
	bo.RandomizationFactor = 0

	err := backoff.Retry(func() error {
		if p.metrics != nil {
			p.metrics.ConnectAttempts.Inc()
		}
		var dialErr error
		conn, dialErr = amqp.Dial(p.cfg.URL)
		if dialErr != nil {
			p.logger.Warn("broker dial failed", "error", dialErr)
		}
		return dialErr
	}, backoff.WithMaxRetries(bo, publisherDialAttempts-1))
	if err != nil {
		if p.metrics != nil {
			p.metrics.ConnectionStatus.Set(0)
		}
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return err
	}

	// Idempotent: safe to redeclare on every reconnect.
	if err := ch.ExchangeDeclare(
		p.cfg.Exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = conn.Close()
		return err
	}

	p.conn = conn
	p.channel = ch
	p.confirm = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	if p.metrics != nil {
		p.metrics.ConnectionStatus.Set(1)
	}
	p.logger.Info("publisher connected", "exchange", p.cfg.Exchange)
	return nil
}

// dropChannel discards the current connection pair. Caller must hold p.m.
func (p *Publisher) dropChannel() {
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	if p.metrics != nil {
		p.metrics.ConnectionStatus.Set(0)
	}
}

// Publish sends body as a persistent application/json message on the
// configured exchange and routing key, and blocks until the broker
// confirms it or the confirm timeout elapses. Failed attempts are
// retried with doubling backoff; after publishAttempts failures the
// last error is returned.
func (p *Publisher) Publish(ctx context.Context, body []byte) error {
	p.m.Lock()
	defer p.m.Unlock()

	if p.closed {
		return errPublisherClosed
	}

	var timer *prometheus.Timer
	if p.metrics != nil {
		timer = prometheus.NewTimer(p.metrics.PublishDuration.WithLabelValues(p.cfg.RoutingKey))
		defer timer.ObserveDuration()
	}

	delay := publishInitialBackoff
	var lastErr error

	for attempt := 1; attempt <= publishAttempts; attempt++ {
		if attempt > 1 {
			if p.metrics != nil {
				p.metrics.PublishFailures.WithLabelValues(p.cfg.RoutingKey, "publish_retry").Inc()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		lastErr = p.publishOnce(ctx, body)
		if lastErr == nil {
			if p.metrics != nil {
				p.metrics.EventsPublished.WithLabelValues(p.cfg.RoutingKey).Inc()
			}
			return nil
		}
		if errors.Is(lastErr, ctx.Err()) && ctx.Err() != nil {
			return lastErr
		}

		p.logger.Warn("publish attempt failed",
			"attempt", attempt,
			"error", lastErr,
		)
		p.dropChannel()
	}

	if p.metrics != nil {
		p.metrics.PublishFailures.WithLabelValues(p.cfg.RoutingKey, "publish_failed").Inc()
	}
	return lastErr
}

// publishOnce performs a single publish + confirm wait. Caller must
// hold p.m.
func (p *Publisher) publishOnce(ctx context.Context, body []byte) error {
	if err := p.ensureChannel(); err != nil {
		return err
	}

	err := p.channel.PublishWithContext(
		ctx,
		p.cfg.Exchange,
		p.cfg.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(confirmTimeout):
		return errNotConfirmed
	case confirm := <-p.confirm:
		if !confirm.Ack {
			return errNotConfirmed
		}
		p.logger.Debug("publish confirmed", "delivery_tag", confirm.DeliveryTag)
		return nil
	}
}

// Close shuts down the channel and connection. Safe to call when never
// connected.
func (p *Publisher) Close() error {
	p.m.Lock()
	defer p.m.Unlock()

	if p.closed {
		return errPublisherClosed
	}
	p.closed = true
	p.dropChannel()
	return nil
}
