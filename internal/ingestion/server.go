package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"agrosolutions.dev/sensor-pipeline/pkg/database"
	"agrosolutions.dev/sensor-pipeline/pkg/metrics"
	"agrosolutions.dev/sensor-pipeline/pkg/mq"
)

// ServerConfig holds the configuration for the ingestion Server.
type ServerConfig struct {
	Logger *slog.Logger

	// HTTP server configuration
	HTTPPort int

	// Database configuration
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBPort     int

	// Broker configuration
	BrokerURL        string
	Exchange         string
	RoutingKey       string
	MessagingEnabled bool

	// Ownership gate
	PropertyServiceURL string
}

// Server is the ingestion service: HTTP API, reading store, ownership
// gate, and event publisher.
type Server struct {
	logger     *slog.Logger
	config     *ServerConfig
	db         *gorm.DB
	store      readingStore
	gate       OwnershipGate
	publisher  *ReadingPublisher
	httpServer *http.Server
	metrics    *metrics.IngestionMetrics
	mqMetrics  *metrics.MQMetrics
}

// NewServer creates a new ingestion Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.HTTPPort <= 0 {
		return nil, errors.New("HTTP port must be positive")
	}
	if cfg.DBHost == "" {
		return nil, errors.New("database host cannot be empty")
	}
	if cfg.DBPort <= 0 {
		return nil, errors.New("database port must be positive")
	}
	if cfg.DBUser == "" {
		return nil, errors.New("database user cannot be empty")
	}
	if cfg.DBName == "" {
		return nil, errors.New("database name cannot be empty")
	}
	if cfg.PropertyServiceURL == "" {
		return nil, errors.New("property service URL cannot be empty")
	}
	if cfg.MessagingEnabled && cfg.BrokerURL == "" {
		return nil, errors.New("broker URL cannot be empty when messaging is enabled")
	}

	return &Server{
		logger: cfg.Logger,
		config: cfg,
	}, nil
}

// SetMetrics installs the metric collectors. Call before Run.
func (s *Server) SetMetrics(im *metrics.IngestionMetrics, mm *metrics.MQMetrics) {
	s.metrics = im
	s.mqMetrics = mm
}

// Run starts the ingestion server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting ingestion server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	db, err := database.Open(&database.Config{
		Logger:   s.logger,
		Host:     s.config.DBHost,
		Port:     s.config.DBPort,
		User:     s.config.DBUser,
		Password: s.config.DBPassword,
		DBName:   s.config.DBName,
		SSLMode:  s.config.DBSSLMode,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	s.db = db

	store, err := NewReadingStore(db, s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize reading store: %w", err)
	}
	s.store = store

	gate, err := NewPropertyGate(s.config.PropertyServiceURL, s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize ownership gate: %w", err)
	}
	s.gate = gate

	var underlying mq.EventPublisher
	if s.config.MessagingEnabled {
		pub, err := mq.NewPublisher(mq.Config{
			URL:        s.config.BrokerURL,
			Exchange:   s.config.Exchange,
			RoutingKey: s.config.RoutingKey,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize publisher: %w", err)
		}
		if s.mqMetrics != nil {
			pub.SetMetrics(s.mqMetrics)
		}
		underlying = pub
	} else {
		s.logger.Info("messaging disabled, events will be discarded")
		underlying = NoopPublisher{}
	}

	publisher, err := NewReadingPublisher(underlying, s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize reading publisher: %w", err)
	}
	s.publisher = publisher

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	httpErr := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(httpErr)
	}()

	s.logger.Info("ingestion server started")

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-httpErr:
		if err != nil {
			s.logger.Error("HTTP server error", "error", err)
			cancel()
			return err
		}
	}

	return s.Shutdown()
}

// routes builds the chi router for the ingestion API.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/v1/sensor-readings", s.handleCreateReading)
	r.Get("/v1/sensor-readings", s.handleQueryReadings)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return r
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down ingestion server")

	var shutdownErr error

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("failed to stop HTTP server", "error", err)
			shutdownErr = fmt.Errorf("HTTP shutdown error: %w", err)
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.Error("failed to close publisher", "error", err)
		}
	}

	if s.db != nil {
		if err := database.Close(s.db, s.logger); err != nil {
			s.logger.Error("failed to close database", "error", err)
			if shutdownErr != nil {
				shutdownErr = fmt.Errorf("%w; database close error: %w", shutdownErr, err)
			} else {
				shutdownErr = fmt.Errorf("database close error: %w", err)
			}
		}
	}

	if shutdownErr != nil {
		return shutdownErr
	}

	s.logger.Info("ingestion server shutdown completed")
	return nil
}
