package mq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"agrosolutions.dev/sensor-pipeline/pkg/metrics"
)

const (
	// Dial retry policy for the consumer: more patient than the
	// publisher, 2^attempt seconds between attempts.
	consumerDialAttempts = 5
	consumerDialDelay    = 2 * time.Second

	defaultPrefetch = 10
)

var (
	errNotConnected  = errors.New("not connected to the broker")
	errAlreadyClosed = errors.New("already closed: not connected to the broker")
)

// Consumer owns a durable subscription to the reading-events queue. It
// declares the exchange, the queue, and the binding on connect, and
// applies a bounded prefetch for backpressure.
type Consumer struct {
	m       sync.Mutex
	logger  *slog.Logger
	cfg     Config
	conn    *amqp.Connection
	channel *amqp.Channel
	isReady bool
	metrics *metrics.MQMetrics
}

// NewConsumer creates a Consumer. Call Connect before Consume.
func NewConsumer(cfg Config, logger *slog.Logger) (*Consumer, error) {
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
	if cfg.Queue == "" {
		return nil, errors.New("queue cannot be empty")
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = defaultPrefetch
	}

	return &Consumer{
		logger: logger,
		cfg:    cfg,
	}, nil
}

// SetMetrics sets the metrics collector. Call before Connect.
func (c *Consumer) SetMetrics(m *metrics.MQMetrics) {
	c.metrics = m
}

// Connect dials the broker with exponential backoff and declares the
// topology: durable topic exchange, durable non-exclusive
// non-auto-delete queue, binding under the routing key, bounded Qos.
func (c *Consumer) Connect(ctx context.Context) error {
	c.m.Lock()
	defer c.m.Unlock()

	if c.isReady {
		return nil
	}

	var conn *amqp.Connection
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = consumerDialDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		if c.metrics != nil {
			c.metrics.ConnectAttempts.Inc()
		}
		var dialErr error
		conn, dialErr = amqp.Dial(c.cfg.URL)
		if dialErr != nil {
			c.logger.Warn("broker dial failed, retrying", "error", dialErr)
		}
		return dialErr
	}, backoff.WithContext(backoff.WithMaxRetries(bo, consumerDialAttempts-1), ctx))
	if err != nil {
		if c.metrics != nil {
			c.metrics.ConnectionStatus.Set(0)
		}
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}

	if err := ch.ExchangeDeclare(
		c.cfg.Exchange,
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

	if _, err := ch.QueueDeclare(
		c.cfg.Queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		_ = conn.Close()
		return err
	}

	if err := ch.QueueBind(c.cfg.Queue, c.cfg.RoutingKey, c.cfg.Exchange, false, nil); err != nil {
		_ = conn.Close()
		return err
	}

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		_ = conn.Close()
		return err
	}

	c.conn = conn
	c.channel = ch
	c.isReady = true
	if c.metrics != nil {
		c.metrics.ConnectionStatus.Set(1)
	}
	c.logger.Info("consumer connected",
		"queue", c.cfg.Queue,
		"routing_key", c.cfg.RoutingKey,
		"prefetch", c.cfg.Prefetch,
	)
	return nil
}

// Consume registers the subscription and returns the delivery channel.
// Each delivery must be acknowledged or rejected by the handler;
// ignoring this stalls the prefetch window.
func (c *Consumer) Consume() (<-chan amqp.Delivery, error) {
	c.m.Lock()
	defer c.m.Unlock()

	if !c.isReady {
		return nil, errNotConnected
	}

	return c.channel.Consume(
		c.cfg.Queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
}

// NotifyClose registers a listener for connection loss.
func (c *Consumer) NotifyClose() <-chan *amqp.Error {
	c.m.Lock()
	defer c.m.Unlock()
	if c.conn == nil {
		ch := make(chan *amqp.Error, 1)
		close(ch)
		return ch
	}
	return c.conn.NotifyClose(make(chan *amqp.Error, 1))
}

// channelForPublish exposes the consumer's channel to the queue-backed
// poison sink. The sink must not depend on a second broker dial.
func (c *Consumer) channelForPublish() (*amqp.Channel, error) {
	c.m.Lock()
	defer c.m.Unlock()
	if !c.isReady {
		return nil, errNotConnected
	}
	return c.channel, nil
}

// Close shuts down the channel and then the connection. Both closes are
// best-effort.
func (c *Consumer) Close() error {
	c.m.Lock()
	defer c.m.Unlock()

	if !c.isReady {
		return errAlreadyClosed
	}
	c.isReady = false

	if c.channel != nil {
		_ = c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	if c.metrics != nil {
		c.metrics.ConnectionStatus.Set(0)
	}
	return nil
}
