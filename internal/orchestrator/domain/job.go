package domain

import "time"

// Quality selects the generation tier. It determines the credit cost,
// the provider model, and the expected processing time.
type Quality string

const (
	QualityFree    Quality = "free"
	QualityPremium Quality = "premium"
)

// Valid reports whether q is a known quality tier.
func (q Quality) Valid() bool {
	return q == QualityFree || q == QualityPremium
}

// State is the lifecycle state of a job. Transitions are forward-only:
// QUEUED -> PROCESSING -> {COMPLETED | FAILED}.
type State string

const (
	StateQueued     State = "QUEUED"
	StateProcessing State = "PROCESSING"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
)

// Terminal reports whether s is a terminal state. Terminal jobs are immutable.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// rank orders states for the forward-only rule. Terminal states share a rank
// so neither can replace the other.
func (s State) rank() int {
	switch s {
	case StateQueued:
		return 0
	case StateProcessing:
		return 1
	case StateCompleted, StateFailed:
		return 2
	default:
		return -1
	}
}

// CanTransition reports whether a job in state s may move to next.
// Skipping PROCESSING is allowed (a queued job can be force-failed),
// reversing or re-entering a state is not.
func (s State) CanTransition(next State) bool {
	if s.rank() < 0 || next.rank() < 0 {
		return false
	}
	return next.rank() > s.rank()
}

// Job is one video-generation request and its lifecycle state.
// The dispatcher creates it and performs the QUEUED -> PROCESSING step;
// the status poller owns all terminal transitions. No other component
// mutates it.
type Job struct {
	ID                    string    `db:"job_id"`
	UserID                string    `db:"user_id"`
	Prompt                string    `db:"prompt"`
	Quality               Quality   `db:"quality"`
	DurationSeconds       int       `db:"duration_seconds"`
	State                 State     `db:"state"`
	OperationHandle       string    `db:"operation_handle"`
	ResultURL             string    `db:"result_url"`
	ErrorMessage          string    `db:"error_message"`
	CreatedAt             time.Time `db:"created_at"`
	EstimatedCompletionAt time.Time `db:"estimated_completion_at"`
	UpdatedAt             time.Time `db:"updated_at"`
}

// ProgressEstimate returns an informational completion percentage computed
// from elapsed wall-clock time against the provider's estimate. It is capped
// at 90 for non-terminal jobs so a job never looks finished before the
// provider confirms it. Completed jobs report 100, failed jobs 0.
func (j *Job) ProgressEstimate(now time.Time) int {
	switch j.State {
	case StateCompleted:
		return 100
	case StateFailed:
		return 0
	}

	total := j.EstimatedCompletionAt.Sub(j.CreatedAt)
	if total <= 0 {
		return 0
	}

	elapsed := now.Sub(j.CreatedAt)
	if elapsed <= 0 {
		return 0
	}

	pct := int(elapsed * 100 / total)
	if pct > 90 {
		pct = 90
	}
	return pct
}
