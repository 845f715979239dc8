package domain

import "time"

// Reservation states. A reservation resolves exactly once:
// RESERVED -> COMMITTED on job completion, RESERVED -> REFUNDED on failure.
const (
	ReservationReserved  = "RESERVED"
	ReservationCommitted = "COMMITTED"
	ReservationRefunded  = "REFUNDED"
)

// Reservation ties a credit debit to a specific job. Its lifetime is bounded
// by the job's: created during Submit, resolved when the job reaches a
// terminal state (or synchronously when provider submission fails).
type Reservation struct {
	ID        string    `db:"reservation_id"`
	JobID     string    `db:"job_id"`
	UserID    string    `db:"user_id"`
	Amount    int       `db:"amount"`
	State     string    `db:"state"`
	CreatedAt time.Time `db:"created_at"`
}
