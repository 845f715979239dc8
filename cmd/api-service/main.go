package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/promptvideos/orchestrator/internal/api/handler"
	"github.com/promptvideos/orchestrator/internal/api/router"
	"github.com/promptvideos/orchestrator/internal/config"
	"github.com/promptvideos/orchestrator/internal/metrics"
	"github.com/promptvideos/orchestrator/internal/orchestrator/dispatcher"
	"github.com/promptvideos/orchestrator/internal/orchestrator/ledger"
	"github.com/promptvideos/orchestrator/internal/orchestrator/poller"
	"github.com/promptvideos/orchestrator/internal/orchestrator/provider"
	"github.com/promptvideos/orchestrator/internal/orchestrator/store"
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
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("provider", cfg.Orchestrator.Provider),
		slog.String("storage", cfg.Orchestrator.Storage),
	)

	// Initialize PostgreSQL client when configured
	var dbClient *postgresql.Client
	if cfg.Orchestrator.Storage == config.StoragePostgres {
		dbClient, err = initPostgreSQL(&cfg.Database, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		appLogger.Info("Database connection established")
	}

	// Initialize RabbitMQ client when enabled. A failed connection is not
	// fatal, the dispatcher falls back to inline processing.
	var rabbitClient *rabbitmq.Client
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err = initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			appLogger.Warn("RabbitMQ unavailable, jobs will be processed inline",
				slog.Any("error", err),
			)
			rabbitClient = nil
		} else {
			appLogger.Info("RabbitMQ connection established")
		}
	}

	// Assemble the orchestrator core
	prov, err := initProvider(&cfg.Orchestrator, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize provider: %w", err)
	}

	led := initLedger(&cfg.Orchestrator, dbClient, appLogger.Logger)
	st := initStore(&cfg.Orchestrator, dbClient, appLogger.Logger)
	appMetrics := metrics.New()

	var queue dispatcher.Queue
	if rabbitClient != nil {
		queue = rabbitClient
	}

	disp := dispatcher.New(&dispatcher.Config{
		Provider: prov,
		Ledger:   led,
		Store:    st,
		Queue:    queue,
		Logger:   appLogger.Logger,
		Metrics:  appMetrics,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Without a queue there is no worker service, so the API process owns
	// the status poller.
	if rabbitClient == nil {
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
		go jobPoller.Start(ctx)
		appLogger.Info("Status poller started in-process")
	}

	// Initialize router
	r := initRouter(cfg.App.Environment, &handler.Dependencies{
		Logger:     appLogger.Logger,
		Dispatcher: disp,
		Store:      st,
		DBClient:   dbClient,
		Metrics:    appMetrics,
	})

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  cfg.Server.IdleTimeout.Std(),
	}

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer shutdownCancel()

	cleanup := func() {
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	defer cleanup()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
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
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval.Std(),
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
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

// initLedger builds the credit ledger for the configured storage backend
func initLedger(cfg *config.OrchestratorConfig, dbClient *postgresql.Client, logger *slog.Logger) ledger.Ledger {
	costs := ledger.Costs{
		Free:    cfg.Credits.FreeCost,
		Premium: cfg.Credits.PremiumCost,
	}

	if cfg.Storage == config.StoragePostgres {
		return ledger.NewPostgres(dbClient.GetDB(), costs, logger)
	}

	mem := ledger.NewMemory(costs)
	mem.SetDefaultBalance(cfg.Credits.InitialBalance)
	return mem
}

// initStore builds the job store for the configured storage backend
func initStore(cfg *config.OrchestratorConfig, dbClient *postgresql.Client, logger *slog.Logger) store.Store {
	if cfg.Storage == config.StoragePostgres {
		return store.NewPostgres(dbClient.GetDB(), logger)
	}
	return store.NewMemory()
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, deps *handler.Dependencies) *gin.Engine {
	// Set Gin mode based on environment
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps)
}
