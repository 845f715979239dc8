package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/promptvideos/orchestrator/internal/orchestrator/dispatcher"
	"github.com/promptvideos/orchestrator/internal/orchestrator/domain"
	"github.com/promptvideos/orchestrator/shared/rabbitmq"
)

// Config holds worker configuration
type Config struct {
	Logger       *slog.Logger
	RabbitClient *rabbitmq.Client
	Dispatcher   *dispatcher.Dispatcher
	Concurrency  int
}

// Worker consumes queued video jobs from RabbitMQ and claims them for
// processing. The actual generation progress is tracked by the poller.
type Worker struct {
	logger       *slog.Logger
	rabbitClient *rabbitmq.Client
	dispatcher   *dispatcher.Dispatcher
	concurrency  int
	workerID     string
	jobsChan     chan *domain.JobMessage
	wg           sync.WaitGroup
	stopChan     chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	return &Worker{
		logger:       cfg.Logger,
		rabbitClient: cfg.RabbitClient,
		dispatcher:   cfg.Dispatcher,
		concurrency:  cfg.Concurrency,
		workerID:     "videogen-worker-" + uuid.New().String()[:8],
		jobsChan:     make(chan *domain.JobMessage),
		stopChan:     make(chan struct{}),
	}
}

// Start begins consuming and processing jobs. It blocks until the context
// is canceled or the delivery channel closes.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
	)

	deliveries, err := w.setupConsumer(ctx)
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)

	w.startMessageDispatcher(ctx, deliveries)

	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
