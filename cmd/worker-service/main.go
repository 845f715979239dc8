package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/promptvideos/orchestrator/internal/config"
	"github.com/promptvideos/orchestrator/internal/metrics"
	"github.com/promptvideos/orchestrator/internal/orchestrator/dispatcher"
	"github.com/promptvideos/orchestrator/internal/orchestrator/ledger"
	"github.com/promptvideos/orchestrator/internal/orchestrator/poller"
	"github.com/promptvideos/orchestrator/internal/orchestrator/provider"
	"github.com/promptvideos/orchestrator/internal/orchestrator/store"
	"github.com/promptvideos/orchestrator/internal/worker"
	"github.com/promptvideos/orchestrator/shared/logger"
	"github.com/promptvideos/orchestrator/shared/postgresql"
	"github.com/promptvideos/orchestrator/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("provider", cfg.Orchestrator.Provider),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	// Assemble the orchestrator core
	prov, err := initProvider(&cfg.Orchestrator, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize provider: %w", err)
	}

	costs := ledger.Costs{
		Free:    cfg.Orchestrator.Credits.FreeCost,
		Premium: cfg.Orchestrator.Credits.PremiumCost,
	}
	led := ledger.NewPostgres(dbClient.GetDB(), costs, appLogger.Logger)
	st := store.NewPostgres(dbClient.GetDB(), appLogger.Logger)
	appMetrics := metrics.New()

	disp := dispatcher.New(&dispatcher.Config{
		Provider: prov,
		Ledger:   led,
		Store:    st,
		Queue:    rabbitClient,
		Logger:   appLogger.Logger,
		Metrics:  appMetrics,
	})

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:       appLogger.Logger,
		RabbitClient: rabbitClient,
		Dispatcher:   disp,
		Concurrency:  cfg.Worker.Concurrency,
	})

	// The worker service owns the status poller: it watches PROCESSING jobs
	// and settles credits on completion or failure.
	jobPoller := poller.New(&poller.Config{
		Provider:    prov,
		Ledger:      led,
		Store:       st,
		Logger:      appLogger.Logger,
		Metrics:     appMetrics,
		Interval:    cfg.Orchestrator.Poller.Interval.Std(),
		JobTimeout:  cfg.Orchestrator.Poller.JobTimeout.Std(),
		Concurrency: cfg.Orchestrator.Poller.Concurrency,
	})

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go jobPoller.Start(ctx)

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	// Cancel context to stop worker and poller
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout.Std())
	defer shutdownCancel()

	// Stop worker
	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	// Cleanup function to close all resources
	cleanup := func() {
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	cleanup()

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime.Std(),
		ConnMaxIdleTime: cfg.ConnMaxIdleTime.Std(),
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval.Std(),
		Heartbeat:          cfg.Connection.Heartbeat.Std(),
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout.Std(),
		PrefetchCount:      cfg.Consumer.PrefetchCount,
		ConsumerAutoAck:    cfg.Consumer.AutoAck,
		ConsumerExclusive:  cfg.Consumer.Exclusive,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initProvider builds the configured video-generation provider
func initProvider(cfg *config.OrchestratorConfig, logger *slog.Logger) (provider.Provider, error) {
	switch cfg.Provider {
	case config.ProviderVeo:
		return provider.NewVeo(provider.VeoConfig{
			BaseURL:        cfg.Veo.BaseURL,
			ProjectID:      cfg.Veo.ProjectID,
			Location:       cfg.Veo.Location,
			APIToken:       os.Getenv("VEO_API_TOKEN"),
			StorageURI:     cfg.Veo.StorageURI,
			RequestTimeout: cfg.Veo.RequestTimeout.Std(),
		}, logger), nil
	case config.ProviderSimulated:
		return provider.NewSimulated(provider.SimulatedConfig{
			FreeSeconds:    cfg.Simulated.FreeSeconds,
			PremiumSeconds: cfg.Simulated.PremiumSeconds,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
