package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/promptvideos/orchestrator/internal/orchestrator/domain"
)

func TestWorker_ShouldRequeueJob(t *testing.T) {
	w := NewWorker(&Config{
		Logger:      slog.Default(),
		Concurrency: 1,
	})

	tests := []struct {
		name    string
		err     error
		requeue bool
	}{
		{
			name:    "already claimed is not requeued",
			err:     fmt.Errorf("job already claimed: %w", domain.ErrJobAlreadyClaimed),
			requeue: false,
		},
		{
			name:    "missing job is not requeued",
			err:     domain.ErrNotFound,
			requeue: false,
		},
		{
			name:    "retryable error is requeued",
			err:     domain.NewRetryableError(errors.New("db connection reset")),
			requeue: true,
		},
		{
			name:    "unknown error is not requeued",
			err:     errors.New("something unexpected"),
			requeue: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.requeue, w.shouldRequeueJob(tt.err))
		})
	}
}
