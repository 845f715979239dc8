package provider

import (
	"context"

	"github.com/promptvideos/orchestrator/internal/orchestrator/domain"
)

// Submission is the provider's acknowledgment of a generation request.
type Submission struct {
	// OperationHandle is the opaque reference used for polling.
	OperationHandle string
	// EstimatedSeconds is the provider's processing-time estimate. It is
	// informational, not a deadline.
	EstimatedSeconds int
}

// Status is a point-in-time view of a long-running operation.
type Status struct {
	Done bool
	// ResultURL is set once the operation produced output. Done with an
	// empty ResultURL means the provider finished without a usable result.
	ResultURL string
	// Progress is an informational percentage, capped at 90 before
	// completion.
	Progress int
}

// Provider is the capability contract for a video-generation backend.
// Submit and Poll are blocking network calls on the remote variant; errors
// from Poll are transient unless wrapped in domain.TerminalError.
type Provider interface {
	Submit(ctx context.Context, prompt string, quality domain.Quality, durationSeconds int) (*Submission, error)
	Poll(ctx context.Context, operationHandle string) (*Status, error)

	// MaxDurationSeconds is the longest output the given tier supports.
	// Requests above it are rejected before any credit is reserved.
	MaxDurationSeconds(quality domain.Quality) int
}
