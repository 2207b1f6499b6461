package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"agrosolutions.dev/sensor-pipeline/internal/analysis"
	"agrosolutions.dev/sensor-pipeline/pkg/metrics"
)

var analysisCmd = &cobra.Command{
	Use:   "analysis",
	Short: "Run the analysis server",
	Long: `Run the analysis server that:
- Consumes reading events from RabbitMQ
- Persists an analysis-side copy of every reading to PostgreSQL
- Evaluates alert rules and stores the resulting alerts
- Serves read-only listing endpoints over HTTP`,
	RunE: runAnalysis,
}

func init() {
	rootCmd.AddCommand(analysisCmd)

	// Analysis-specific flags
	analysisCmd.Flags().Int("http-port", 8082, "HTTP server port")
	analysisCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	analysisCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	analysisCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	analysisCmd.Flags().String("db-password", "", "PostgreSQL password")
	analysisCmd.Flags().String("db-name", "analysis", "PostgreSQL database name")
	analysisCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	analysisCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	analysisCmd.Flags().String("exchange", "agrosolutions", "RabbitMQ exchange for reading events")
	analysisCmd.Flags().String("routing-key", "ingestao.leitura_sensor_recebida", "Routing key for reading events")
	analysisCmd.Flags().String("queue", "agrosolutions.analise.leituras", "RabbitMQ queue for reading events")
	analysisCmd.Flags().String("poison-queue", "agrosolutions.analise.leituras.poison", "RabbitMQ queue for unprocessable messages")
	analysisCmd.Flags().Int("prefetch", 10, "Consumer prefetch count")
	analysisCmd.Flags().Bool("messaging-enabled", true, "Consume reading events from RabbitMQ")

	// Bind flags to viper
	_ = viper.BindPFlag("analysis.http.port", analysisCmd.Flags().Lookup("http-port"))
	_ = viper.BindPFlag("analysis.db.host", analysisCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("analysis.db.port", analysisCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("analysis.db.user", analysisCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("analysis.db.password", analysisCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("analysis.db.name", analysisCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("analysis.db.sslmode", analysisCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("analysis.rabbitmq.url", analysisCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("analysis.rabbitmq.exchange", analysisCmd.Flags().Lookup("exchange"))
	_ = viper.BindPFlag("analysis.rabbitmq.routing_key", analysisCmd.Flags().Lookup("routing-key"))
	_ = viper.BindPFlag("analysis.rabbitmq.queue", analysisCmd.Flags().Lookup("queue"))
	_ = viper.BindPFlag("analysis.rabbitmq.poison_queue", analysisCmd.Flags().Lookup("poison-queue"))
	_ = viper.BindPFlag("analysis.rabbitmq.prefetch", analysisCmd.Flags().Lookup("prefetch"))
	_ = viper.BindPFlag("analysis.rabbitmq.enabled", analysisCmd.Flags().Lookup("messaging-enabled"))
}

func runAnalysis(_ *cobra.Command, _ []string) error {
	logger := GetLogger("analysis")
	logger.Info("starting analysis service")

	// Create analysis configuration from viper
	config := &analysis.ServerConfig{
		Logger:           logger,
		HTTPPort:         viper.GetInt("analysis.http.port"),
		DBHost:           viper.GetString("analysis.db.host"),
		DBPort:           viper.GetInt("analysis.db.port"),
		DBUser:           viper.GetString("analysis.db.user"),
		DBPassword:       viper.GetString("analysis.db.password"),
		DBName:           viper.GetString("analysis.db.name"),
		DBSSLMode:        viper.GetString("analysis.db.sslmode"),
		BrokerURL:        viper.GetString("analysis.rabbitmq.url"),
		Exchange:         viper.GetString("analysis.rabbitmq.exchange"),
		RoutingKey:       viper.GetString("analysis.rabbitmq.routing_key"),
		Queue:            viper.GetString("analysis.rabbitmq.queue"),
		PoisonQueue:      viper.GetString("analysis.rabbitmq.poison_queue"),
		Prefetch:         viper.GetInt("analysis.rabbitmq.prefetch"),
		MessagingEnabled: viper.GetBool("analysis.rabbitmq.enabled"),
	}

	// Create and run server
	server, err := analysis.NewServer(config)
	if err != nil {
		logger.Error("failed to create analysis server", "error", err)
		return err
	}
	server.SetMetrics(metrics.NewAnalysisMetrics("agro"), metrics.NewMQMetrics("agro"))

	logger.Info("analysis server configuration",
		"http_port", config.HTTPPort,
		"db_host", config.DBHost,
		"db_name", config.DBName,
		"rabbitmq_url", config.BrokerURL,
		"exchange", config.Exchange,
		"queue", config.Queue,
		"poison_queue", config.PoisonQueue,
		"prefetch", config.Prefetch,
		"messaging_enabled", config.MessagingEnabled,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("analysis server error", "error", err)
		return err
	}

	logger.Info("analysis server stopped")
	return nil
}
