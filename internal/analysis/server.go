package analysis

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
	"github.com/google/uuid"
	"gorm.io/gorm"

	"agrosolutions.dev/sensor-pipeline/pkg/database"
	"agrosolutions.dev/sensor-pipeline/pkg/metrics"
	"agrosolutions.dev/sensor-pipeline/pkg/mq"
)

// listStore is the storage surface the listing handlers depend on.
type listStore interface {
	ListReadings(ctx context.Context, fieldID *uuid.UUID, top int) ([]Reading, error)
	ListAlerts(ctx context.Context, fieldID *uuid.UUID, top int) ([]Alert, error)
}

// ServerConfig holds the configuration for the analysis Server.
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

	// Broker configuration. When messaging is disabled the service
	// serves reads only and no worker runs.
	BrokerURL        string
	Exchange         string
	RoutingKey       string
	Queue            string
	PoisonQueue      string
	Prefetch         int
	MessagingEnabled bool
}

// Server is the analysis service: the alert worker plus the read-only
// listing API over its store.
type Server struct {
	logger     *slog.Logger
	config     *ServerConfig
	db         *gorm.DB
	store      listStore
	worker     *Worker
	consumer   *mq.Consumer
	httpServer *http.Server

	analysisMetrics *metrics.AnalysisMetrics
	mqMetrics       *metrics.MQMetrics
}

// NewServer creates a new analysis Server instance.
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
	if cfg.MessagingEnabled {
		if cfg.BrokerURL == "" {
			return nil, errors.New("broker URL cannot be empty when messaging is enabled")
		}
		if cfg.Queue == "" {
			return nil, errors.New("queue cannot be empty when messaging is enabled")
		}
	}

	return &Server{
		logger: cfg.Logger,
		config: cfg,
	}, nil
}

// SetMetrics installs the metric collectors. Call before Run.
func (s *Server) SetMetrics(am *metrics.AnalysisMetrics, mm *metrics.MQMetrics) {
	s.analysisMetrics = am
	s.mqMetrics = mm
}

// Run starts the analysis server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting analysis server")

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

	store, err := NewStore(db, s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	s.store = store

	workerDone := make(chan struct{})
	if s.config.MessagingEnabled {
		if err := s.startWorker(ctx, store, workerDone); err != nil {
			return err
		}
	} else {
		s.logger.Info("messaging disabled, serving reads only")
	}

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

	s.logger.Info("analysis server started")

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case <-workerDone:
		s.logger.Error("alert worker stopped unexpectedly")
		cancel()
	case err := <-httpErr:
		if err != nil {
			s.logger.Error("HTTP server error", "error", err)
			cancel()
			return err
		}
	}

	return s.Shutdown()
}

// startWorker connects the consumer, wires the poison sink, and starts
// the alert worker.
func (s *Server) startWorker(ctx context.Context, store *Store, done chan struct{}) error {
	consumer, err := mq.NewConsumer(mq.Config{
		URL:        s.config.BrokerURL,
		Exchange:   s.config.Exchange,
		RoutingKey: s.config.RoutingKey,
		Queue:      s.config.Queue,
		Prefetch:   s.config.Prefetch,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize consumer: %w", err)
	}
	if s.mqMetrics != nil {
		consumer.SetMetrics(s.mqMetrics)
	}
	s.consumer = consumer

	if err := consumer.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect consumer: %w", err)
	}

	var sink mq.PoisonSink
	if s.config.PoisonQueue != "" {
		qs, err := mq.NewQueuePoisonSink(consumer, s.config.PoisonQueue, s.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize poison sink: %w", err)
		}
		sink = qs
	} else {
		s.logger.Warn("poison queue not configured, unprocessable messages will be dropped")
		sink = &mq.LogPoisonSink{Logger: s.logger}
	}

	engine, err := NewEngine(store, s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize alert engine: %w", err)
	}

	worker, err := NewWorker(consumer, sink, store, engine, s.config.Queue, s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize worker: %w", err)
	}
	worker.SetMetrics(s.mqMetrics, s.analysisMetrics)
	s.worker = worker

	if err := worker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	go func() {
		<-worker.Done()
		close(done)
	}()
	return nil
}

// routes builds the chi router for the analysis API.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/v1/readings", s.handleListReadings)
	r.Get("/v1/alerts", s.handleListAlerts)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return r
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down analysis server")

	var shutdownErr error

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("failed to stop HTTP server", "error", err)
			shutdownErr = fmt.Errorf("HTTP shutdown error: %w", err)
		}
	}

	if s.worker != nil {
		if err := s.worker.Stop(); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("failed to stop worker", "error", err)
		}
		select {
		case <-s.worker.Done():
		case <-time.After(10 * time.Second):
			s.logger.Warn("worker did not stop within the grace period")
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

	s.logger.Info("analysis server shutdown completed")
	return nil
}
