package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptvideos/orchestrator/internal/orchestrator/domain"
	"github.com/promptvideos/orchestrator/internal/orchestrator/ledger"
	"github.com/promptvideos/orchestrator/internal/orchestrator/provider"
	"github.com/promptvideos/orchestrator/internal/orchestrator/store"
	"github.com/promptvideos/orchestrator/shared/logger"
)

// stubProvider scripts Submit results and counts calls.
type stubProvider struct {
	submitErr   error
	submitCalls int
}

func (p *stubProvider) Submit(ctx context.Context, prompt string, quality domain.Quality, durationSeconds int) (*provider.Submission, error) {
	p.submitCalls++
	if p.submitErr != nil {
		return nil, p.submitErr
	}
	return &provider.Submission{
		OperationHandle:  fmt.Sprintf("stub/operations/%d", p.submitCalls),
		EstimatedSeconds: 10,
	}, nil
}

func (p *stubProvider) Poll(ctx context.Context, operationHandle string) (*provider.Status, error) {
	return &provider.Status{Done: false}, nil
}

func (p *stubProvider) MaxDurationSeconds(quality domain.Quality) int {
	if quality == domain.QualityPremium {
		return 60
	}
	return 8
}

// stubQueue scripts broker availability and records published messages.
type stubQueue struct {
	connected  bool
	publishErr error
	published  [][]byte
}

func (q *stubQueue) IsConnected() bool { return q.connected }

func (q *stubQueue) PublishWithRetry(ctx context.Context, body []byte, contentType string) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published = append(q.published, body)
	return nil
}

type fixture struct {
	dispatcher *Dispatcher
	provider   *stubProvider
	queue      *stubQueue
	ledger     *ledger.Memory
	store      *store.Memory
}

func newFixture(t *testing.T, queue *stubQueue) *fixture {
	t.Helper()

	prov := &stubProvider{}
	led := ledger.NewMemory(ledger.Costs{Free: 1, Premium: 3})
	led.SetBalance("user-1", 5)
	st := store.NewMemory()

	var q Queue
	if queue != nil {
		q = queue
	}

	return &fixture{
		dispatcher: New(&Config{
			Provider: prov,
			Ledger:   led,
			Store:    st,
			Queue:    q,
			Logger:   logger.NewDefault().Logger,
		}),
		provider: prov,
		queue:    queue,
		ledger:   led,
		store:    st,
	}
}

func validRequest() SubmitRequest {
	return SubmitRequest{
		UserID:          "user-1",
		Prompt:          "sunset",
		Quality:         domain.QualityFree,
		DurationSeconds: 5,
	}
}

func TestDispatcher_Submit_EnqueuesWhenBrokerReachable(t *testing.T) {
	f := newFixture(t, &stubQueue{connected: true})

	jobID, err := f.dispatcher.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	// Balance debited exactly once by the free-tier cost.
	assert.Equal(t, 4, f.ledger.Balance("user-1"))

	// The job was recorded and handed to the queue, not executed inline.
	job, err := f.store.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateQueued, job.State)
	assert.NotEmpty(t, job.OperationHandle)
	require.Len(t, f.queue.published, 1)
	assert.Contains(t, string(f.queue.published[0]), jobID)
}

func TestDispatcher_Submit_InlineFallback(t *testing.T) {
	tests := []struct {
		name  string
		queue *stubQueue
	}{
		{name: "no broker configured", queue: nil},
		{name: "broker disconnected", queue: &stubQueue{connected: false}},
		{name: "publish fails", queue: &stubQueue{connected: true, publishErr: errors.New("channel closed")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.queue)

			jobID, err := f.dispatcher.Submit(context.Background(), validRequest())
			require.NoError(t, err)

			// The inline path ran the processing routine in the caller's path.
			job, err := f.store.Get(context.Background(), jobID)
			require.NoError(t, err)
			assert.Equal(t, domain.StateProcessing, job.State)
			assert.Equal(t, 4, f.ledger.Balance("user-1"))
		})
	}
}

func TestDispatcher_Submit_InvalidRequest(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SubmitRequest)
	}{
		{name: "empty prompt", mutate: func(r *SubmitRequest) { r.Prompt = "" }},
		{name: "whitespace prompt", mutate: func(r *SubmitRequest) { r.Prompt = "   " }},
		{name: "missing user", mutate: func(r *SubmitRequest) { r.UserID = "" }},
		{name: "unknown quality", mutate: func(r *SubmitRequest) { r.Quality = "4k" }},
		{name: "zero duration", mutate: func(r *SubmitRequest) { r.DurationSeconds = 0 }},
		{name: "negative duration", mutate: func(r *SubmitRequest) { r.DurationSeconds = -1 }},
		{name: "duration above tier limit", mutate: func(r *SubmitRequest) { r.DurationSeconds = 9 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			req := validRequest()
			tt.mutate(&req)

			_, err := f.dispatcher.Submit(context.Background(), req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidRequest))

			// Invalid input never reaches the ledger or the provider.
			assert.Equal(t, 5, f.ledger.Balance("user-1"))
			assert.Equal(t, 0, f.provider.submitCalls)
		})
	}
}

func TestDispatcher_Submit_InsufficientCredits(t *testing.T) {
	f := newFixture(t, nil)
	f.ledger.SetBalance("user-1", 2)

	req := validRequest()
	req.Quality = domain.QualityPremium
	req.DurationSeconds = 30

	_, err := f.dispatcher.Submit(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientCredits))

	// Admission rejected with no side effects.
	assert.Equal(t, 2, f.ledger.Balance("user-1"))
	assert.Equal(t, 0, f.provider.submitCalls)
}

func TestDispatcher_Submit_ProviderFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.provider.submitErr = errors.New("api request failed: 503")

	_, err := f.dispatcher.Submit(context.Background(), validRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrProviderUnavailable))

	// Reservation refunded synchronously, and no orphaned job exists.
	assert.Equal(t, 5, f.ledger.Balance("user-1"))
	queued, err := f.store.ListByState(context.Background(), domain.StateQueued)
	require.NoError(t, err)
	assert.Empty(t, queued)
}

func TestDispatcher_Process(t *testing.T) {
	f := newFixture(t, &stubQueue{connected: true})

	jobID, err := f.dispatcher.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	require.NoError(t, f.dispatcher.Process(context.Background(), jobID))

	job, err := f.store.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateProcessing, job.State)

	// A duplicated delivery is rejected without touching the job.
	err = f.dispatcher.Process(context.Background(), jobID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrJobAlreadyClaimed))

	// Unknown jobs are not retryable.
	err = f.dispatcher.Process(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
