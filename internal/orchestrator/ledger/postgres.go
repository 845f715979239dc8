package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/promptvideos/orchestrator/internal/orchestrator/domain"
)

// Postgres backs the ledger with the users and credit_reservations tables.
// The check-and-decrement in Reserve is a single conditional UPDATE, so the
// database serializes concurrent reservations against the same balance.
type Postgres struct {
	db     *sqlx.DB
	costs  Costs
	logger *slog.Logger
}

// NewPostgres creates a database-backed ledger.
func NewPostgres(db *sqlx.DB, costs Costs, logger *slog.Logger) *Postgres {
	return &Postgres{
		db:     db,
		costs:  costs,
		logger: logger,
	}
}

func (p *Postgres) Reserve(ctx context.Context, userID, jobID string, quality domain.Quality) (*domain.Reservation, error) {
	cost := p.costs.For(quality)

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin reservation: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE users SET credits = credits - $1 WHERE user_id = $2 AND credits >= $1`,
		cost, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to debit balance: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrInsufficientCredits)
	}

	res := &domain.Reservation{
		ID:        uuid.New().String(),
		JobID:     jobID,
		UserID:    userID,
		Amount:    cost,
		State:     domain.ReservationReserved,
		CreatedAt: time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO credit_reservations (reservation_id, job_id, user_id, amount, state, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		res.ID, res.JobID, res.UserID, res.Amount, res.State, res.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reservation: %w", err)
	}

	p.logger.Info("Credits reserved",
		slog.String("user_id", userID),
		slog.String("job_id", jobID),
		slog.Int("amount", cost),
	)

	return res, nil
}

func (p *Postgres) Commit(ctx context.Context, jobID string) (int, error) {
	var amount int
	err := p.db.QueryRowContext(ctx,
		`UPDATE credit_reservations
		 SET state = $1, resolved_at = NOW()
		 WHERE job_id = $2 AND state = $3
		 RETURNING amount`,
		domain.ReservationCommitted, jobID, domain.ReservationReserved,
	).Scan(&amount)
	if err != nil {
		// No RESERVED row: already resolved, a duplicated completion
		// notification settles as a no-op.
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to commit reservation: %w", err)
	}

	p.logger.Info("Reservation committed",
		slog.String("job_id", jobID),
		slog.Int("amount", amount),
	)
	return amount, nil
}

func (p *Postgres) Refund(ctx context.Context, jobID string) (int, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin refund: %w", err)
	}
	defer tx.Rollback()

	var userID string
	var amount int
	err = tx.QueryRowContext(ctx,
		`UPDATE credit_reservations
		 SET state = $1, resolved_at = NOW()
		 WHERE job_id = $2 AND state = $3
		 RETURNING user_id, amount`,
		domain.ReservationRefunded, jobID, domain.ReservationReserved,
	).Scan(&userID, &amount)
	if err != nil {
		// No RESERVED row: already resolved, nothing to restore.
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to refund reservation: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE users SET credits = credits + $1 WHERE user_id = $2`,
		amount, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to restore balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit refund: %w", err)
	}

	p.logger.Info("Reservation refunded",
		slog.String("job_id", jobID),
		slog.String("user_id", userID),
		slog.Int("amount", amount),
	)
	return amount, nil
}

var _ Ledger = (*Postgres)(nil)
