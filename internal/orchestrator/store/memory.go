package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/promptvideos/orchestrator/internal/orchestrator/domain"
)

// Memory is an in-process job store for development and tests. A single
// RWMutex serializes writers while allowing concurrent readers.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*domain.Job)}
}

func (m *Memory) Create(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}

	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *Memory) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}

	copied := *job
	return &copied, nil
}

func (m *Memory) UpdateState(ctx context.Context, jobID string, newState domain.State, resultURL, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}

	if !job.State.CanTransition(newState) {
		return fmt.Errorf("job %s: %s -> %s: %w", jobID, job.State, newState, domain.ErrInvalidTransition)
	}

	job.State = newState
	job.UpdatedAt = time.Now().UTC()
	switch newState {
	case domain.StateCompleted:
		job.ResultURL = resultURL
		job.ErrorMessage = ""
	case domain.StateFailed:
		job.ErrorMessage = errMsg
		job.ResultURL = ""
	}
	return nil
}

func (m *Memory) ListByState(ctx context.Context, state domain.State) ([]*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var jobs []*domain.Job
	for _, job := range m.jobs {
		if job.State == state {
			copied := *job
			jobs = append(jobs, &copied)
		}
	}
	return jobs, nil
}

var _ Store = (*Memory)(nil)
