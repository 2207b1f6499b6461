package mq_test

import (
	"context"
	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"agrosolutions.dev/sensor-pipeline/pkg/mq"
)

var _ = Describe("Publisher", func() {
	var logger *slog.Logger

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	})

	Describe("NewPublisher", func() {
		Context("with valid configuration", func() {
			It("should create a publisher without dialing", func() {
				// The URL points nowhere reachable; construction must not
				// touch the network.
				publisher, err := mq.NewPublisher(mq.Config{
					URL:        "amqp://localhost:1",
					Exchange:   "events",
					RoutingKey: "events.test",
				}, logger)
				Expect(err).NotTo(HaveOccurred())
				Expect(publisher).NotTo(BeNil())
			})
		})

		Context("with invalid configuration", func() {
			It("should return error when logger is nil", func() {
				publisher, err := mq.NewPublisher(mq.Config{
					URL:        "amqp://localhost:5672",
					Exchange:   "events",
					RoutingKey: "events.test",
				}, nil)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("logger"))
				Expect(publisher).To(BeNil())
			})

			It("should return error when URL is empty", func() {
				publisher, err := mq.NewPublisher(mq.Config{
					Exchange:   "events",
					RoutingKey: "events.test",
				}, logger)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("URL"))
				Expect(publisher).To(BeNil())
			})

			It("should return error when exchange is empty", func() {
				publisher, err := mq.NewPublisher(mq.Config{
					URL:        "amqp://localhost:5672",
					RoutingKey: "events.test",
				}, logger)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("exchange"))
				Expect(publisher).To(BeNil())
			})

			It("should return error when routing key is empty", func() {
				publisher, err := mq.NewPublisher(mq.Config{
					URL:      "amqp://localhost:5672",
					Exchange: "events",
				}, logger)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("routing key"))
				Expect(publisher).To(BeNil())
			})
		})
	})

	Describe("Publish after Close", func() {
		It("should refuse to publish", func() {
			publisher, err := mq.NewPublisher(mq.Config{
				URL:        "amqp://localhost:1",
				Exchange:   "events",
				RoutingKey: "events.test",
			}, logger)
			Expect(err).NotTo(HaveOccurred())

			Expect(publisher.Close()).To(Succeed())

			err = publisher.Publish(context.Background(), []byte(`{}`))
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("closed"))
		})
	})
})

var _ = Describe("Consumer", func() {
	var logger *slog.Logger

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	})

	Describe("NewConsumer", func() {
		Context("with valid configuration", func() {
			It("should create a consumer without dialing", func() {
				consumer, err := mq.NewConsumer(mq.Config{
					URL:        "amqp://localhost:1",
					Exchange:   "events",
					RoutingKey: "events.test",
					Queue:      "events.queue",
				}, logger)
				Expect(err).NotTo(HaveOccurred())
				Expect(consumer).NotTo(BeNil())
			})
		})

		Context("with invalid configuration", func() {
			It("should return error when logger is nil", func() {
				consumer, err := mq.NewConsumer(mq.Config{
					URL:        "amqp://localhost:5672",
					Exchange:   "events",
					RoutingKey: "events.test",
					Queue:      "events.queue",
				}, nil)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("logger"))
				Expect(consumer).To(BeNil())
			})

			It("should return error when queue is empty", func() {
				consumer, err := mq.NewConsumer(mq.Config{
					URL:        "amqp://localhost:5672",
					Exchange:   "events",
					RoutingKey: "events.test",
				}, logger)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("queue"))
				Expect(consumer).To(BeNil())
			})
		})
	})

	Describe("Consume before Connect", func() {
		It("should return a not-connected error", func() {
			consumer, err := mq.NewConsumer(mq.Config{
				URL:        "amqp://localhost:1",
				Exchange:   "events",
				RoutingKey: "events.test",
				Queue:      "events.queue",
			}, logger)
			Expect(err).NotTo(HaveOccurred())

			deliveries, err := consumer.Consume()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("not connected"))
			Expect(deliveries).To(BeNil())
		})
	})

	Describe("Close before Connect", func() {
		It("should report already closed", func() {
			consumer, err := mq.NewConsumer(mq.Config{
				URL:        "amqp://localhost:1",
				Exchange:   "events",
				RoutingKey: "events.test",
				Queue:      "events.queue",
			}, logger)
			Expect(err).NotTo(HaveOccurred())

			Expect(consumer.Close()).To(HaveOccurred())
		})
	})
})

var _ = Describe("LogPoisonSink", func() {
	It("should accept any message", func() {
		logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
		sink := &mq.LogPoisonSink{Logger: logger}
		Expect(sink.Sink(context.Background(), []byte("not json"), "malformed_payload")).To(Succeed())
	})
})
