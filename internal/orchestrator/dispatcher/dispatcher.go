// Package dispatcher accepts generation requests and owns the single
// enqueue-or-inline decision per job, guaranteeing at-most-once execution
// and exactly-once credit debit.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/promptvideos/orchestrator/internal/metrics"
	"github.com/promptvideos/orchestrator/internal/orchestrator/domain"
	"github.com/promptvideos/orchestrator/internal/orchestrator/ledger"
	"github.com/promptvideos/orchestrator/internal/orchestrator/provider"
	"github.com/promptvideos/orchestrator/internal/orchestrator/store"
)

// Queue is the work-queue surface the dispatcher publishes to. Satisfied by
// the shared rabbitmq client.
type Queue interface {
	IsConnected() bool
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// SubmitRequest is a caller's generation request.
type SubmitRequest struct {
	UserID          string
	Prompt          string
	Quality         domain.Quality
	DurationSeconds int
}

// Config holds dispatcher dependencies. Queue may be nil; the dispatcher
// then always executes the processing routine inline.
type Config struct {
	Provider provider.Provider
	Ledger   ledger.Ledger
	Store    store.Store
	Queue    Queue
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Dispatcher validates, admits and hands off generation jobs.
type Dispatcher struct {
	provider provider.Provider
	ledger   ledger.Ledger
	store    store.Store
	queue    Queue
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New creates a dispatcher.
func New(cfg *Config) *Dispatcher {
	return &Dispatcher{
		provider: cfg.Provider,
		ledger:   cfg.Ledger,
		store:    cfg.Store,
		queue:    cfg.Queue,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// Submit runs the admission pipeline: validate, reserve credits, submit to
// the provider, record the job, then enqueue or run inline. Submission-time
// errors are returned synchronously and never leave partial state: a failed
// provider submission refunds the reservation and creates no job.
func (d *Dispatcher) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if err := d.validate(req); err != nil {
		d.metrics.JobRejected("invalid_request")
		return "", err
	}

	jobID := uuid.New().String()

	res, err := d.ledger.Reserve(ctx, req.UserID, jobID, req.Quality)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			d.metrics.JobRejected("insufficient_credits")
		}
		return "", err
	}

	sub, err := d.provider.Submit(ctx, req.Prompt, req.Quality, req.DurationSeconds)
	if err != nil {
		d.logger.Error("Provider submission failed, refunding reservation",
			slog.String("job_id", jobID),
			slog.String("user_id", req.UserID),
			slog.Any("error", err),
		)
		if _, refundErr := d.ledger.Refund(ctx, jobID); refundErr != nil {
			d.logger.Error("Failed to refund after submission failure",
				slog.String("job_id", jobID),
				slog.Any("error", refundErr),
			)
		}
		d.metrics.JobRejected("provider_unavailable")
		return "", fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:                    jobID,
		UserID:                req.UserID,
		Prompt:                req.Prompt,
		Quality:               req.Quality,
		DurationSeconds:       req.DurationSeconds,
		State:                 domain.StateQueued,
		OperationHandle:       sub.OperationHandle,
		CreatedAt:             now,
		EstimatedCompletionAt: now.Add(time.Duration(sub.EstimatedSeconds) * time.Second),
		UpdatedAt:             now,
	}

	if err := d.store.Create(ctx, job); err != nil {
		// The provider operation is already running and cannot be recalled;
		// refund so the caller is not charged for an untracked job.
		d.logger.Error("Failed to record job, refunding reservation",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		if _, refundErr := d.ledger.Refund(ctx, jobID); refundErr != nil {
			d.logger.Error("Failed to refund after store failure",
				slog.String("job_id", jobID),
				slog.Any("error", refundErr),
			)
		}
		return "", fmt.Errorf("failed to record job: %w", err)
	}

	d.metrics.JobSubmitted(string(req.Quality), res.Amount)
	d.logger.Info("Job submitted",
		slog.String("job_id", jobID),
		slog.String("user_id", req.UserID),
		slog.String("quality", string(req.Quality)),
		slog.String("operation_handle", sub.OperationHandle),
	)

	d.handOff(ctx, jobID)
	return jobID, nil
}

// handOff makes the enqueue-or-inline decision, exactly once per job. When
// the broker is unreachable (or publishing exhausts its retries) the
// processing routine runs synchronously in the caller's path; both paths
// converge on the same store mutation sequence.
func (d *Dispatcher) handOff(ctx context.Context, jobID string) {
	if d.queue != nil && d.queue.IsConnected() {
		body, _ := json.Marshal(domain.JobMessage{JobID: jobID})
		if err := d.queue.PublishWithRetry(ctx, body, "application/json"); err == nil {
			d.logger.Debug("Job enqueued", slog.String("job_id", jobID))
			return
		}
		d.logger.Warn("Queue publish failed, falling back to inline execution",
			slog.String("job_id", jobID),
		)
	}

	if err := d.Process(ctx, jobID); err != nil {
		// The job stays QUEUED; the poller's timeout rule will eventually
		// fail and refund it.
		d.logger.Error("Inline processing failed",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
	}
}

// Process is the processing routine shared by the queue worker and the
// inline fallback: it claims the job by moving it QUEUED -> PROCESSING,
// after which the status poller owns it. Running it twice for the same job
// returns domain.ErrJobAlreadyClaimed without side effects.
func (d *Dispatcher) Process(ctx context.Context, jobID string) error {
	err := d.store.UpdateState(ctx, jobID, domain.StateProcessing, "", "")
	if err == nil {
		d.logger.Info("Job processing", slog.String("job_id", jobID))
		return nil
	}

	if errors.Is(err, domain.ErrInvalidTransition) {
		return fmt.Errorf("job %s: %w", jobID, domain.ErrJobAlreadyClaimed)
	}
	if errors.Is(err, domain.ErrNotFound) {
		return err
	}

	// Store errors here are infrastructure trouble, worth a redelivery.
	return domain.NewRetryableError(fmt.Errorf("failed to claim job %s: %w", jobID, err))
}

func (d *Dispatcher) validate(req SubmitRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return fmt.Errorf("%w: prompt must not be empty", domain.ErrInvalidRequest)
	}
	if !req.Quality.Valid() {
		return fmt.Errorf("%w: unknown quality %q", domain.ErrInvalidRequest, req.Quality)
	}
	if req.DurationSeconds <= 0 {
		return fmt.Errorf("%w: duration must be positive", domain.ErrInvalidRequest)
	}
	if max := d.provider.MaxDurationSeconds(req.Quality); req.DurationSeconds > max {
		return fmt.Errorf("%w: duration %ds exceeds the %s tier limit of %ds",
			domain.ErrInvalidRequest, req.DurationSeconds, req.Quality, max)
	}
	return nil
}
