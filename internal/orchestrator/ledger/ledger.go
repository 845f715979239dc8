// Package ledger is the admission-control layer for video generation.
// A user's credit balance is the only state mutated by more than one job
// concurrently, so all balance mutations go through the ledger's atomic
// Reserve/Commit/Refund and nothing else.
package ledger

import (
	"context"

	"github.com/promptvideos/orchestrator/internal/orchestrator/domain"
)

// Costs maps quality tiers to their credit price.
type Costs struct {
	Free    int
	Premium int
}

// For returns the cost of the given tier.
func (c Costs) For(quality domain.Quality) int {
	if quality == domain.QualityPremium {
		return c.Premium
	}
	return c.Free
}

// Ledger reserves, commits and refunds credits. Reservations are keyed by
// job id; Commit and Refund are idempotent so a duplicated completion
// notification cannot double-settle a reservation.
type Ledger interface {
	// Reserve atomically checks and debits the user's balance. It returns
	// domain.ErrInsufficientCredits without side effects if the balance is
	// below the tier cost.
	Reserve(ctx context.Context, userID, jobID string, quality domain.Quality) (*domain.Reservation, error)

	// Commit settles the reservation for jobID as consumed and returns the
	// committed amount. Calling it on an already-resolved reservation is a
	// no-op and returns zero.
	Commit(ctx context.Context, jobID string) (int, error)

	// Refund restores the reserved amount to the user's balance and returns
	// it. Calling it on an already-resolved reservation is a no-op and
	// returns zero.
	Refund(ctx context.Context, jobID string) (int, error)
}
