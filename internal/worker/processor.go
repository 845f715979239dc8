package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/promptvideos/orchestrator/internal/orchestrator/domain"
)

// claimJob transitions a queued job to processing. Generation itself runs
// asynchronously at the provider, so there is nothing to execute here: the
// poller drives the job to completion.
func (w *Worker) claimJob(ctx context.Context, msg *domain.JobMessage) error {
	w.logger.Info("Claiming job",
		slog.String("job_id", msg.JobID),
		slog.String("worker_id", w.workerID),
	)

	if err := w.dispatcher.Process(ctx, msg.JobID); err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			// Duplicate delivery, another worker won the claim
			w.logger.Warn("Job already claimed, skipping",
				slog.String("job_id", msg.JobID),
			)
			return fmt.Errorf("job already claimed: %w", err)
		}
		if errors.Is(err, domain.ErrNotFound) {
			w.logger.Error("Job not found in store",
				slog.String("job_id", msg.JobID),
			)
			return err
		}
		// Storage error, could be transient
		w.logger.Error("Failed to claim job",
			slog.String("job_id", msg.JobID),
			slog.String("error", err.Error()),
		)
		return err
	}

	return nil
}
