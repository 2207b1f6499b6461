package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"agrosolutions.dev/sensor-pipeline/internal/simulator"
)

var simulatorCmd = &cobra.Command{
	Use:   "simulator",
	Short: "Run the reading simulator",
	Long: `Run the reading simulator that:
- Generates synthetic sensor readings for a set of fields
- Submits readings to the ingestion API on an interval
- Supports multiple concurrent fields`,
	RunE: runSimulator,
}

func init() {
	rootCmd.AddCommand(simulatorCmd)

	// Simulator-specific flags
	simulatorCmd.Flags().String("api-url", "http://localhost:8080", "Ingestion API base URL")
	simulatorCmd.Flags().String("token", "", "Bearer token for the ingestion API")
	simulatorCmd.Flags().Int("field-count", 5, "Number of simulated fields")
	simulatorCmd.Flags().Duration("interval", 5*time.Second, "Interval between readings per field")

	// Bind flags to viper
	_ = viper.BindPFlag("simulator.api_url", simulatorCmd.Flags().Lookup("api-url"))
	_ = viper.BindPFlag("simulator.token", simulatorCmd.Flags().Lookup("token"))
	_ = viper.BindPFlag("simulator.field_count", simulatorCmd.Flags().Lookup("field-count"))
	_ = viper.BindPFlag("simulator.interval", simulatorCmd.Flags().Lookup("interval"))
}

func runSimulator(_ *cobra.Command, _ []string) error {
	logger := GetLogger("simulator")
	logger.Info("starting simulator service")

	// Create simulator configuration from viper
	config := &simulator.ServerConfig{
		Logger:     logger,
		APIURL:     viper.GetString("simulator.api_url"),
		Token:      viper.GetString("simulator.token"),
		FieldCount: viper.GetInt("simulator.field_count"),
		Interval:   viper.GetDuration("simulator.interval"),
	}

	// Create and run server
	server, err := simulator.NewServer(config)
	if err != nil {
		logger.Error("failed to create simulator server", "error", err)
		return err
	}

	logger.Info("simulator server configuration",
		"api_url", config.APIURL,
		"field_count", config.FieldCount,
		"interval", config.Interval,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("simulator server error", "error", err)
		return err
	}

	logger.Info("simulator server stopped")
	return nil
}
