package repository

import (
	"context"
	"database/sql"
	"time"
)

// PhysicalRepo stores the raw button state of each seat in
// seat_physical_status.  There is at most one row per seat; a missing row
// reads as "waiting".
type PhysicalRepo struct {
	db *sql.DB
}

// NewPhysicalRepo returns a PhysicalRepo bound to db.
func NewPhysicalRepo(db *sql.DB) *PhysicalRepo { return &PhysicalRepo{db: db} }

// SetTx upserts the physical state of a seat.
func (r *PhysicalRepo) SetTx(ctx context.Context, tx *sql.Tx, seatID uint64, status string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO seat_physical_status (seat_id, physical_status, updated_at) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE physical_status = VALUES(physical_status), updated_at = VALUES(updated_at)`,
		seatID, status, at.UTC(),
	)
	return err
}

// ResetAllTx sets every stored physical state back to waiting.
func (r *PhysicalRepo) ResetAllTx(ctx context.Context, tx *sql.Tx, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE seat_physical_status SET physical_status = 'waiting', updated_at = ?`,
		at.UTC(),
	)
	return err
}
