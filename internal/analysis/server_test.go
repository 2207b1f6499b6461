package analysis_test

import (
	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"agrosolutions.dev/sensor-pipeline/internal/analysis"
)

var _ = Describe("Server", func() {
	var (
		logger *slog.Logger
		cfg    *analysis.ServerConfig
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
		cfg = &analysis.ServerConfig{
			Logger:           logger,
			HTTPPort:         8082,
			DBHost:           "localhost",
			DBPort:           5432,
			DBUser:           "postgres",
			DBName:           "analysis",
			BrokerURL:        "amqp://localhost:5672",
			Exchange:         "agrosolutions",
			RoutingKey:       "ingestao.leitura_sensor_recebida",
			Queue:            "agrosolutions.analise.leituras",
			PoisonQueue:      "agrosolutions.analise.leituras.poison",
			Prefetch:         10,
			MessagingEnabled: true,
		}
	})

	Describe("NewServer", func() {
		Context("with valid configuration", func() {
			It("should create a server", func() {
				server, err := analysis.NewServer(cfg)
				Expect(err).NotTo(HaveOccurred())
				Expect(server).NotTo(BeNil())
			})

			It("should not require broker settings when messaging is disabled", func() {
				cfg.MessagingEnabled = false
				cfg.BrokerURL = ""
				cfg.Queue = ""
				server, err := analysis.NewServer(cfg)
				Expect(err).NotTo(HaveOccurred())
				Expect(server).NotTo(BeNil())
			})
		})

		Context("with invalid configuration", func() {
			It("should return error when config is nil", func() {
				server, err := analysis.NewServer(nil)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("config cannot be nil"))
				Expect(server).To(BeNil())
			})

			It("should return error when logger is nil", func() {
				cfg.Logger = nil
				server, err := analysis.NewServer(cfg)
				Expect(err).To(HaveOccurred())
				Expect(server).To(BeNil())
			})

			It("should return error when the database name is empty", func() {
				cfg.DBName = ""
				server, err := analysis.NewServer(cfg)
				Expect(err).To(HaveOccurred())
				Expect(server).To(BeNil())
			})

			It("should return error when messaging is enabled without a queue", func() {
				cfg.Queue = ""
				server, err := analysis.NewServer(cfg)
				Expect(err).To(HaveOccurred())
				Expect(server).To(BeNil())
			})
		})
	})
})
