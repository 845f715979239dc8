package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/promptvideos/orchestrator/internal/orchestrator/domain"
)

// Postgres backs the job store with the jobs table. UpdateState takes a row
// lock before checking the transition, so the database serializes writers
// per job id.
type Postgres struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgres creates a database-backed job store.
func NewPostgres(db *sqlx.DB, logger *slog.Logger) *Postgres {
	return &Postgres{db: db, logger: logger}
}

func (p *Postgres) Create(ctx context.Context, job *domain.Job) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO jobs (
			job_id, user_id, prompt, quality, duration_seconds, state,
			operation_handle, result_url, error_message,
			created_at, estimated_completion_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		job.ID, job.UserID, job.Prompt, job.Quality, job.DurationSeconds, job.State,
		job.OperationHandle, job.ResultURL, job.ErrorMessage,
		job.CreatedAt, job.EstimatedCompletionAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	err := p.db.GetContext(ctx, &job,
		`SELECT job_id, user_id, prompt, quality, duration_seconds, state,
		        operation_handle, result_url, error_message,
		        created_at, estimated_completion_at, updated_at
		 FROM jobs WHERE job_id = $1`,
		jobID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (p *Postgres) UpdateState(ctx context.Context, jobID string, newState domain.State, resultURL, errMsg string) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transition: %w", err)
	}
	defer tx.Rollback()

	var current domain.State
	err = tx.QueryRowContext(ctx,
		`SELECT state FROM jobs WHERE job_id = $1 FOR UPDATE`,
		jobID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to lock job: %w", err)
	}

	if !current.CanTransition(newState) {
		return fmt.Errorf("job %s: %s -> %s: %w", jobID, current, newState, domain.ErrInvalidTransition)
	}

	// Terminal invariant: result URL only on COMPLETED, error only on FAILED.
	if newState != domain.StateCompleted {
		resultURL = ""
	}
	if newState != domain.StateFailed {
		errMsg = ""
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE jobs
		 SET state = $1, result_url = $2, error_message = $3, updated_at = NOW()
		 WHERE job_id = $4`,
		newState, resultURL, errMsg, jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transition: %w", err)
	}

	p.logger.Info("Job state updated",
		slog.String("job_id", jobID),
		slog.String("state", string(newState)),
	)
	return nil
}

func (p *Postgres) ListByState(ctx context.Context, state domain.State) ([]*domain.Job, error) {
	var jobs []*domain.Job
	err := p.db.SelectContext(ctx, &jobs,
		`SELECT job_id, user_id, prompt, quality, duration_seconds, state,
		        operation_handle, result_url, error_message,
		        created_at, estimated_completion_at, updated_at
		 FROM jobs WHERE state = $1
		 ORDER BY created_at`,
		state,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

var _ Store = (*Postgres)(nil)
