// Package poller advances in-flight jobs. A single scheduler iterates all
// PROCESSING jobs each cycle and fans the provider polls out over a bounded
// worker pool, so resource use stays flat as the job count grows. It also
// times out jobs stranded in QUEUED so their reservations cannot leak.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/promptvideos/orchestrator/internal/metrics"
	"github.com/promptvideos/orchestrator/internal/orchestrator/domain"
	"github.com/promptvideos/orchestrator/internal/orchestrator/ledger"
	"github.com/promptvideos/orchestrator/internal/orchestrator/provider"
	"github.com/promptvideos/orchestrator/internal/orchestrator/store"
)

// Config holds poller dependencies and tuning.
type Config struct {
	Provider provider.Provider
	Ledger   ledger.Ledger
	Store    store.Store
	Logger   *slog.Logger
	Metrics  *metrics.Metrics

	// Interval between poll cycles.
	Interval time.Duration
	// JobTimeout bounds how long a job may stay in flight since submission
	// before it is forced to FAILED and refunded. It keeps a stuck
	// operation from holding reserved credit forever.
	JobTimeout time.Duration
	// Concurrency bounds how many jobs are polled at once within a cycle.
	Concurrency int
}

// Poller periodically advances PROCESSING jobs to their terminal state and
// settles their reservations. Terminal transitions always happen before the
// matching ledger commit or refund.
type Poller struct {
	provider    provider.Provider
	ledger      ledger.Ledger
	store       store.Store
	logger      *slog.Logger
	metrics     *metrics.Metrics
	interval    time.Duration
	jobTimeout  time.Duration
	concurrency int

	now func() time.Time
}

// New creates a poller.
func New(cfg *Config) *Poller {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Poller{
		provider:    cfg.Provider,
		ledger:      cfg.Ledger,
		store:       cfg.Store,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		interval:    cfg.Interval,
		jobTimeout:  cfg.JobTimeout,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// Start runs poll cycles until the context is canceled.
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Status poller started",
		slog.Duration("interval", p.interval),
		slog.Duration("job_timeout", p.jobTimeout),
		slog.Int("concurrency", p.concurrency),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Status poller stopped")
			return
		case <-ticker.C:
			p.runCycle(ctx)
		}
	}
}

// runCycle advances every PROCESSING job once and reaps timed-out QUEUED
// jobs. Cycles for different jobs are independent; a slow poll on one job
// does not block the others beyond the pool bound.
func (p *Poller) runCycle(ctx context.Context) {
	p.metrics.PollCycle()

	p.reapStuckQueued(ctx)

	jobs, err := p.store.ListByState(ctx, domain.StateProcessing)
	if err != nil {
		p.logger.Error("Failed to list in-flight jobs", slog.Any("error", err))
		return
	}
	if len(jobs) == 0 {
		return
	}

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(job *domain.Job) {
			defer wg.Done()
			defer func() { <-sem }()
			p.advance(ctx, job)
		}(job)
	}
	wg.Wait()
}

// reapStuckQueued fails QUEUED jobs older than the job timeout. A failed
// inline claim or a lost queue message leaves a job QUEUED with no consumer;
// without this sweep its reservation would hold the user's credits forever.
// QUEUED jobs carry no provider claim, so there is nothing to poll.
func (p *Poller) reapStuckQueued(ctx context.Context) {
	jobs, err := p.store.ListByState(ctx, domain.StateQueued)
	if err != nil {
		p.logger.Error("Failed to list queued jobs", slog.Any("error", err))
		return
	}

	for _, job := range jobs {
		if !p.expired(job) {
			continue
		}
		p.logger.Warn("Queued job never claimed, forcing failure",
			slog.String("job_id", job.ID),
			slog.Time("created_at", job.CreatedAt),
		)
		p.fail(ctx, job, "generation timed out", "timeout")
	}
}

// advance polls one job and applies the outcome.
func (p *Poller) advance(ctx context.Context, job *domain.Job) {
	status, err := p.provider.Poll(ctx, job.OperationHandle)
	if err != nil {
		var terminal *domain.TerminalError
		if errors.As(err, &terminal) {
			p.logger.Warn("Provider reported terminal failure",
				slog.String("job_id", job.ID),
				slog.Any("error", err),
			)
			p.fail(ctx, job, terminal.Err.Error(), "provider_error")
			return
		}

		// Transient: leave the job untouched and retry next cycle, unless
		// it has been in flight longer than the per-job timeout.
		if p.expired(job) {
			p.logger.Warn("Job exceeded its poll timeout",
				slog.String("job_id", job.ID),
				slog.Duration("job_timeout", p.jobTimeout),
			)
			p.fail(ctx, job, "generation timed out", "timeout")
			return
		}

		p.logger.Debug("Transient poll error, will retry",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		return
	}

	if !status.Done {
		if p.expired(job) {
			p.logger.Warn("Job still running past its poll timeout",
				slog.String("job_id", job.ID),
				slog.Duration("job_timeout", p.jobTimeout),
			)
			p.fail(ctx, job, "generation timed out", "timeout")
		}
		return
	}

	if status.ResultURL == "" {
		p.fail(ctx, job, "empty result", "empty_result")
		return
	}

	p.complete(ctx, job, status.ResultURL)
}

func (p *Poller) complete(ctx context.Context, job *domain.Job, resultURL string) {
	if err := p.store.UpdateState(ctx, job.ID, domain.StateCompleted, resultURL, ""); err != nil {
		// An invalid transition here means another writer beat us to a
		// terminal state: a state-machine race. Committing anyway could
		// duplicate a settle, so log loudly and do nothing.
		p.logTransitionFailure(job.ID, domain.StateCompleted, err)
		return
	}

	committed, err := p.ledger.Commit(ctx, job.ID)
	if err != nil {
		p.logger.Error("Failed to commit reservation",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		return
	}

	p.metrics.JobCompleted(committed)
	p.logger.Info("Job completed",
		slog.String("job_id", job.ID),
		slog.String("result_url", resultURL),
	)
}

func (p *Poller) fail(ctx context.Context, job *domain.Job, reason, metricReason string) {
	if err := p.store.UpdateState(ctx, job.ID, domain.StateFailed, "", reason); err != nil {
		p.logTransitionFailure(job.ID, domain.StateFailed, err)
		return
	}

	refunded, err := p.ledger.Refund(ctx, job.ID)
	if err != nil {
		p.logger.Error("Failed to refund reservation",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		return
	}

	p.metrics.JobFailed(metricReason, refunded)
	p.logger.Info("Job failed, credits refunded",
		slog.String("job_id", job.ID),
		slog.String("reason", reason),
	)
}

func (p *Poller) logTransitionFailure(jobID string, state domain.State, err error) {
	if errors.Is(err, domain.ErrInvalidTransition) {
		p.logger.Error("State-machine race detected, skipping settlement",
			slog.String("job_id", jobID),
			slog.String("attempted_state", string(state)),
			slog.Any("error", err),
		)
		return
	}
	p.logger.Error("Failed to update job state",
		slog.String("job_id", jobID),
		slog.String("attempted_state", string(state)),
		slog.Any("error", err),
	)
}

func (p *Poller) expired(job *domain.Job) bool {
	return p.jobTimeout > 0 && p.now().Sub(job.CreatedAt) >= p.jobTimeout
}
