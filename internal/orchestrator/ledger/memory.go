package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/promptvideos/orchestrator/internal/orchestrator/domain"
)

// Memory is an in-process ledger for development and tests. A single mutex
// covers balances and reservations, which makes the check-and-decrement in
// Reserve atomic: two concurrent submissions can never both pass the balance
// check against the same funds.
type Memory struct {
	costs          Costs
	defaultBalance int

	mu           sync.Mutex
	balances     map[string]int
	reservations map[string]*domain.Reservation
}

// NewMemory creates an empty in-memory ledger.
func NewMemory(costs Costs) *Memory {
	return &Memory{
		costs:        costs,
		balances:     make(map[string]int),
		reservations: make(map[string]*domain.Reservation),
	}
}

// SetDefaultBalance grants every previously unseen user this balance on
// first reserve. Dev-mode convenience so requests do not need prior seeding.
func (m *Memory) SetDefaultBalance(credits int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultBalance = credits
}

// SetBalance seeds a user's balance. Dev/test helper.
func (m *Memory) SetBalance(userID string, credits int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = credits
}

// Balance returns the user's available balance.
func (m *Memory) Balance(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID]
}

func (m *Memory) Reserve(ctx context.Context, userID, jobID string, quality domain.Quality) (*domain.Reservation, error) {
	cost := m.costs.For(quality)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, seen := m.balances[userID]; !seen && m.defaultBalance > 0 {
		m.balances[userID] = m.defaultBalance
	}

	if m.balances[userID] < cost {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrInsufficientCredits)
	}
	m.balances[userID] -= cost

	res := &domain.Reservation{
		ID:        uuid.New().String(),
		JobID:     jobID,
		UserID:    userID,
		Amount:    cost,
		State:     domain.ReservationReserved,
		CreatedAt: time.Now().UTC(),
	}
	m.reservations[jobID] = res

	copied := *res
	return &copied, nil
}

func (m *Memory) Commit(ctx context.Context, jobID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.reservations[jobID]
	if !ok {
		return 0, fmt.Errorf("reservation for job %s: %w", jobID, domain.ErrNotFound)
	}
	if res.State != domain.ReservationReserved {
		return 0, nil
	}
	res.State = domain.ReservationCommitted
	return res.Amount, nil
}

func (m *Memory) Refund(ctx context.Context, jobID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.reservations[jobID]
	if !ok {
		return 0, fmt.Errorf("reservation for job %s: %w", jobID, domain.ErrNotFound)
	}
	if res.State != domain.ReservationReserved {
		return 0, nil
	}
	res.State = domain.ReservationRefunded
	m.balances[res.UserID] += res.Amount
	return res.Amount, nil
}

// Reservation returns the reservation for a job. Test helper.
func (m *Memory) Reservation(jobID string) (*domain.Reservation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.reservations[jobID]
	if !ok {
		return nil, false
	}
	copied := *res
	return &copied, true
}

var _ Ledger = (*Memory)(nil)
