package domain

import "errors"

var (
	// ErrInvalidRequest is returned for bad submission input. The request
	// never reaches the ledger or the provider.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInsufficientCredits is returned when the user's balance is below
	// the cost of the requested quality tier. No side effects.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrProviderUnavailable is returned when provider submission fails.
	// The reservation is refunded synchronously and no job is created.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrNotFound is returned when a job or reservation does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned by the job store for a state change
	// that is not forward-only. It indicates a concurrency defect and is
	// logged loudly rather than absorbed.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrJobAlreadyClaimed is returned when the processing routine runs for
	// a job that already left QUEUED, e.g. on a duplicated queue delivery.
	ErrJobAlreadyClaimed = errors.New("job already claimed")
)

// TerminalError wraps a provider error that will not resolve with further
// polling. The poller fails the job and refunds the reservation immediately.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string {
	return "terminal provider error: " + e.Err.Error()
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}

// NewTerminalError wraps err as non-retryable.
func NewTerminalError(err error) error {
	return &TerminalError{Err: err}
}

// RetryableError wraps transient errors that should trigger a queue requeue.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error.
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// JobMessage is the queue payload handed from the dispatcher to a worker.
type JobMessage struct {
	JobID       string `json:"job_id"`
	DeliveryTag uint64 `json:"-"`
}
