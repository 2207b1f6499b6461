package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"agrosolutions.dev/sensor-pipeline/internal/ingestion"
	"agrosolutions.dev/sensor-pipeline/pkg/metrics"
)

var ingestionCmd = &cobra.Command{
	Use:   "ingestion",
	Short: "Run the ingestion server",
	Long: `Run the ingestion server that:
- Receives sensor readings over HTTP
- Checks field ownership against the property service
- Persists readings to PostgreSQL
- Publishes reading events to RabbitMQ with publisher confirms`,
	RunE: runIngestion,
}

func init() {
	rootCmd.AddCommand(ingestionCmd)

	// Ingestion-specific flags
	ingestionCmd.Flags().Int("http-port", 8080, "HTTP server port")
	ingestionCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	ingestionCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	ingestionCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	ingestionCmd.Flags().String("db-password", "", "PostgreSQL password")
	ingestionCmd.Flags().String("db-name", "ingestion", "PostgreSQL database name")
	ingestionCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	ingestionCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	ingestionCmd.Flags().String("exchange", "agrosolutions", "RabbitMQ exchange for reading events")
	ingestionCmd.Flags().String("routing-key", "ingestao.leitura_sensor_recebida", "Routing key for reading events")
	ingestionCmd.Flags().Bool("messaging-enabled", true, "Publish reading events to RabbitMQ")
	ingestionCmd.Flags().String("property-service-url", "http://localhost:8081", "Property service base URL for ownership checks")

	// Bind flags to viper
	_ = viper.BindPFlag("ingestion.http.port", ingestionCmd.Flags().Lookup("http-port"))
	_ = viper.BindPFlag("ingestion.db.host", ingestionCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("ingestion.db.port", ingestionCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("ingestion.db.user", ingestionCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("ingestion.db.password", ingestionCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("ingestion.db.name", ingestionCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("ingestion.db.sslmode", ingestionCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("ingestion.rabbitmq.url", ingestionCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("ingestion.rabbitmq.exchange", ingestionCmd.Flags().Lookup("exchange"))
	_ = viper.BindPFlag("ingestion.rabbitmq.routing_key", ingestionCmd.Flags().Lookup("routing-key"))
	_ = viper.BindPFlag("ingestion.rabbitmq.enabled", ingestionCmd.Flags().Lookup("messaging-enabled"))
	_ = viper.BindPFlag("ingestion.property_service.url", ingestionCmd.Flags().Lookup("property-service-url"))
}

func runIngestion(_ *cobra.Command, _ []string) error {
	logger := GetLogger("ingestion")
	logger.Info("starting ingestion service")

	// Create ingestion configuration from viper
	config := &ingestion.ServerConfig{
		Logger:             logger,
		HTTPPort:           viper.GetInt("ingestion.http.port"),
		DBHost:             viper.GetString("ingestion.db.host"),
		DBPort:             viper.GetInt("ingestion.db.port"),
		DBUser:             viper.GetString("ingestion.db.user"),
		DBPassword:         viper.GetString("ingestion.db.password"),
		DBName:             viper.GetString("ingestion.db.name"),
		DBSSLMode:          viper.GetString("ingestion.db.sslmode"),
		BrokerURL:          viper.GetString("ingestion.rabbitmq.url"),
		Exchange:           viper.GetString("ingestion.rabbitmq.exchange"),
		RoutingKey:         viper.GetString("ingestion.rabbitmq.routing_key"),
		MessagingEnabled:   viper.GetBool("ingestion.rabbitmq.enabled"),
		PropertyServiceURL: viper.GetString("ingestion.property_service.url"),
	}

	// Create and run server
	server, err := ingestion.NewServer(config)
	if err != nil {
		logger.Error("failed to create ingestion server", "error", err)
		return err
	}
	server.SetMetrics(metrics.NewIngestionMetrics("agro"), metrics.NewMQMetrics("agro"))

	logger.Info("ingestion server configuration",
		"http_port", config.HTTPPort,
		"db_host", config.DBHost,
		"db_name", config.DBName,
		"rabbitmq_url", config.BrokerURL,
		"exchange", config.Exchange,
		"routing_key", config.RoutingKey,
		"messaging_enabled", config.MessagingEnabled,
		"property_service_url", config.PropertyServiceURL,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("ingestion server error", "error", err)
		return err
	}

	logger.Info("ingestion server stopped")
	return nil
}
