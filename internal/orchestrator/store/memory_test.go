package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptvideos/orchestrator/internal/orchestrator/domain"
)

func newQueuedJob(id string) *domain.Job {
	now := time.Now().UTC()
	return &domain.Job{
		ID:                    id,
		UserID:                "user-1",
		Prompt:                "sunset",
		Quality:               domain.QualityFree,
		DurationSeconds:       5,
		State:                 domain.StateQueued,
		OperationHandle:       "simulated/operations/" + id,
		CreatedAt:             now,
		EstimatedCompletionAt: now.Add(10 * time.Second),
		UpdatedAt:             now,
	}
}

func TestMemory_CreateAndGet(t *testing.T) {
	s := NewMemory()
	job := newQueuedJob("job-1")

	require.NoError(t, s.Create(context.Background(), job))

	got, err := s.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, domain.StateQueued, got.State)

	// A second create with the same id is rejected.
	assert.Error(t, s.Create(context.Background(), job))
}

func TestMemory_Get_NotFound(t *testing.T) {
	s := NewMemory()

	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestMemory_UpdateState(t *testing.T) {
	tests := []struct {
		name       string
		transitions []domain.State
		fails      domain.State
	}{
		{name: "queued to processing to completed", transitions: []domain.State{domain.StateProcessing, domain.StateCompleted}},
		{name: "queued to processing to failed", transitions: []domain.State{domain.StateProcessing, domain.StateFailed}},
		{name: "queued directly to failed", transitions: []domain.State{domain.StateFailed}},
		{name: "terminal state is immutable", transitions: []domain.State{domain.StateProcessing, domain.StateCompleted}, fails: domain.StateFailed},
		{name: "no reverting to queued", transitions: []domain.State{domain.StateProcessing}, fails: domain.StateQueued},
		{name: "no re-entering processing", transitions: []domain.State{domain.StateProcessing}, fails: domain.StateProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemory()
			require.NoError(t, s.Create(context.Background(), newQueuedJob("job-1")))

			for _, next := range tt.transitions {
				require.NoError(t, s.UpdateState(context.Background(), "job-1", next, "https://cdn.example.com/a.mp4", "boom"))
			}

			if tt.fails != "" {
				before, err := s.Get(context.Background(), "job-1")
				require.NoError(t, err)

				err = s.UpdateState(context.Background(), "job-1", tt.fails, "", "late")
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

				// The failed transition left the job untouched.
				after, err := s.Get(context.Background(), "job-1")
				require.NoError(t, err)
				assert.Equal(t, before.State, after.State)
				assert.Equal(t, before.ResultURL, after.ResultURL)
				assert.Equal(t, before.ErrorMessage, after.ErrorMessage)
			}
		})
	}
}

// A job never carries both a result URL and an error message.
func TestMemory_TerminalExclusivity(t *testing.T) {
	s := NewMemory()

	require.NoError(t, s.Create(context.Background(), newQueuedJob("done")))
	require.NoError(t, s.UpdateState(context.Background(), "done", domain.StateProcessing, "", ""))
	require.NoError(t, s.UpdateState(context.Background(), "done", domain.StateCompleted, "https://cdn.example.com/a.mp4", "stray error"))

	completed, err := s.Get(context.Background(), "done")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.mp4", completed.ResultURL)
	assert.Empty(t, completed.ErrorMessage)

	require.NoError(t, s.Create(context.Background(), newQueuedJob("broken")))
	require.NoError(t, s.UpdateState(context.Background(), "broken", domain.StateProcessing, "", ""))
	require.NoError(t, s.UpdateState(context.Background(), "broken", domain.StateFailed, "https://stray.example.com/b.mp4", "empty result"))

	failed, err := s.Get(context.Background(), "broken")
	require.NoError(t, err)
	assert.Empty(t, failed.ResultURL)
	assert.Equal(t, "empty result", failed.ErrorMessage)
}

func TestMemory_UpdateState_NotFound(t *testing.T) {
	s := NewMemory()

	err := s.UpdateState(context.Background(), "missing", domain.StateProcessing, "", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestMemory_ListByState(t *testing.T) {
	s := NewMemory()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Create(context.Background(), newQueuedJob(id)))
	}
	require.NoError(t, s.UpdateState(context.Background(), "a", domain.StateProcessing, "", ""))
	require.NoError(t, s.UpdateState(context.Background(), "b", domain.StateProcessing, "", ""))

	processing, err := s.ListByState(context.Background(), domain.StateProcessing)
	require.NoError(t, err)
	assert.Len(t, processing, 2)

	queued, err := s.ListByState(context.Background(), domain.StateQueued)
	require.NoError(t, err)
	assert.Len(t, queued, 1)

	completed, err := s.ListByState(context.Background(), domain.StateCompleted)
	require.NoError(t, err)
	assert.Empty(t, completed)
}

// Mutating a job returned by Get must not leak into the store.
func TestMemory_GetReturnsCopy(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.Create(context.Background(), newQueuedJob("job-1")))

	got, err := s.Get(context.Background(), "job-1")
	require.NoError(t, err)
	got.State = domain.StateCompleted
	got.ResultURL = "https://tampered.example.com/x.mp4"

	fresh, err := s.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateQueued, fresh.State)
	assert.Empty(t, fresh.ResultURL)
}
