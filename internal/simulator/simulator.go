package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// SensorReading is the ingestion API request body.
type SensorReading struct {
	PropertyID    uuid.UUID      `json:"propertyId"`
	FieldID       uuid.UUID      `json:"fieldId"`
	Origin        string         `json:"origin"`
	CapturedAtUTC time.Time      `json:"capturedAtUtc"`
	Metrics       ReadingMetrics `json:"metrics"`
	Meta          *ReadingMeta   `json:"meta,omitempty"`
}

// ReadingMetrics holds the measurement values.
type ReadingMetrics struct {
	SoilMoisturePercent *float64 `json:"soilMoisturePercent,omitempty"`
	TemperatureCelsius  *float64 `json:"temperatureCelsius,omitempty"`
	PrecipitationMm     *float64 `json:"precipitationMm,omitempty"`
}

// ReadingMeta holds the device and correlation identifiers.
type ReadingMeta struct {
	DeviceID      *string `json:"deviceId,omitempty"`
	CorrelationID *string `json:"correlationId,omitempty"`
}

// ServerConfig holds the configuration for the simulator Server.
type ServerConfig struct {
	Logger *slog.Logger

	// Ingestion API target
	APIURL string
	Token  string

	// Simulation shape
	FieldCount int
	Interval   time.Duration
}

// Server runs one goroutine per simulated field, each submitting a
// reading to the ingestion API on every tick.
type Server struct {
	logger *slog.Logger
	config *ServerConfig
	client *http.Client
}

// NewServer creates a new simulator Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.APIURL == "" {
		return nil, errors.New("API URL cannot be empty")
	}
	if cfg.Token == "" {
		return nil, errors.New("token cannot be empty")
	}
	if cfg.FieldCount <= 0 {
		return nil, errors.New("field count must be positive")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("interval must be positive")
	}

	return &Server{
		logger: cfg.Logger,
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Run starts the simulator and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting simulator",
		"api_url", s.config.APIURL,
		"field_count", s.config.FieldCount,
		"interval", s.config.Interval,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	var wg sync.WaitGroup
	for i := 0; i < s.config.FieldCount; i++ {
		profile := NewFieldProfile()
		if profile == nil {
			return errors.New("failed to generate field profile")
		}
		gen := NewFieldGenerator(*profile)

		wg.Add(1)
		go func(id int, gen *FieldGenerator) {
			defer wg.Done()
			s.runField(ctx, id, gen)
		}(i, gen)
	}

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled")
	}

	wg.Wait()
	s.logger.Info("simulator stopped")
	return nil
}

// runField submits one reading per tick until the context ends.
func (s *Server) runField(ctx context.Context, id int, gen *FieldGenerator) {
	profile := gen.Profile()
	logger := s.logger.With(
		"field_worker", id,
		"field_id", profile.FieldID,
		"device_id", profile.DeviceID,
	)
	logger.Info("field worker started", "region", profile.Region)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("field worker stopping")
			return
		case t := <-ticker.C:
			reading := gen.Reading(t)
			if err := s.submit(ctx, reading); err != nil {
				logger.Error("failed to submit reading", "error", err)
				continue
			}
			logger.Debug("reading submitted",
				"captured_at", reading.CapturedAtUTC,
				"temperature", reading.Metrics.TemperatureCelsius,
				"moisture", reading.Metrics.SoilMoisturePercent,
			)
		}
	}
}

// submit POSTs one reading to the ingestion API.
func (s *Server) submit(ctx context.Context, reading *SensorReading) error {
	body, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to encode reading: %w", err)
	}

	url := strings.TrimRight(s.config.APIURL, "/") + "/v1/sensor-readings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.Token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
