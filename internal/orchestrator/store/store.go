// Package store is the authoritative record of job state. All mutations for
// a given job are serialized, and state transitions are forward-only; an
// attempt to move a job backwards (or out of a terminal state) fails with
// domain.ErrInvalidTransition.
package store

import (
	"context"

	"github.com/promptvideos/orchestrator/internal/orchestrator/domain"
)

// Store persists jobs. Implementations must keep the terminal invariant:
// exactly one of result URL / error message is set in a terminal state,
// neither in a non-terminal one.
type Store interface {
	// Create inserts a new job. The job id must be unique.
	Create(ctx context.Context, job *domain.Job) error

	// Get returns the current job view, or domain.ErrNotFound.
	Get(ctx context.Context, jobID string) (*domain.Job, error)

	// UpdateState transitions the job. resultURL is stored only when moving
	// to COMPLETED, errMsg only when moving to FAILED. A transition that is
	// not forward-only fails with domain.ErrInvalidTransition and leaves
	// the job unchanged.
	UpdateState(ctx context.Context, jobID string, newState domain.State, resultURL, errMsg string) error

	// ListByState returns all jobs currently in the given state.
	ListByState(ctx context.Context, state domain.State) ([]*domain.Job, error)
}
