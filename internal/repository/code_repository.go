package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/cinema-seat-access/internal/model"
)

// CodeRepo provides data access to the seat_codes table.  Codes are never
// moved into an "expired" state by the repository; expiry is evaluated by
// callers against expires_at.  All timestamps are stored in UTC.
type CodeRepo struct {
	db *sql.DB
}

// NewCodeRepo returns a new CodeRepo bound to the provided database.
func NewCodeRepo(db *sql.DB) *CodeRepo { return &CodeRepo{db: db} }

// DeactivateBySeatTx turns off every active code of a seat and returns
// how many rows changed.  It is the first step of issuing a new code.
func (r *CodeRepo) DeactivateBySeatTx(ctx context.Context, tx *sql.Tx, seatID uint64) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE seat_codes SET is_active = 0 WHERE seat_id = ? AND is_active = 1`,
		seatID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ActiveValueExistsTx reports whether an active code anywhere holds value.
func (r *CodeRepo) ActiveValueExistsTx(ctx context.Context, tx *sql.Tx, value string) (bool, error) {
	var id uint64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM seat_codes WHERE unique_code = ? AND is_active = 1 LIMIT 1`,
		value,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateTx inserts a new active code and populates its ID and CreatedAt.
func (r *CodeRepo) CreateTx(ctx context.Context, tx *sql.Tx, c *model.AccessCode) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO seat_codes (seat_id, unique_code, is_active, is_used, expires_at, created_at) VALUES (?, ?, 1, 0, ?, ?)`,
		c.SeatID, c.Value, c.ExpiresAt.UTC(), c.CreatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	c.IsActive = true
	return nil
}

// FindActiveForUpdateTx returns the active code of a seat with the given
// value and locks the row.  A second validation of the same code blocks
// here until the first one commits, then observes is_used = 1.
func (r *CodeRepo) FindActiveForUpdateTx(ctx context.Context, tx *sql.Tx, seatID uint64, value string) (*model.AccessCode, error) {
	const q = `SELECT id, seat_id, unique_code, is_active, is_used, expires_at, used_at, created_at
	           FROM seat_codes
	           WHERE seat_id = ? AND unique_code = ? AND is_active = 1
	           ORDER BY id DESC
	           LIMIT 1
	           FOR UPDATE`
	var c model.AccessCode
	var usedAt sql.NullTime
	err := tx.QueryRowContext(ctx, q, seatID, value).Scan(
		&c.ID, &c.SeatID, &c.Value, &c.IsActive, &c.IsUsed, &c.ExpiresAt, &usedAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	if usedAt.Valid {
		t := usedAt.Time
		c.UsedAt = &t
	}
	return &c, nil
}

// MarkUsedTx consumes a code.
func (r *CodeRepo) MarkUsedTx(ctx context.Context, tx *sql.Tx, codeID uint64, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE seat_codes SET is_used = 1, used_at = ? WHERE id = ?`,
		at.UTC(), codeID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(sql.ErrNoRows)
	}
	return nil
}

// DeactivateAllTx turns off every active code in the venue.
func (r *CodeRepo) DeactivateAllTx(ctx context.Context, tx *sql.Tx) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE seat_codes SET is_active = 0 WHERE is_active = 1`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteAllTx removes every code row.  Sessions reference codes, so the
// session rows must be deleted first.
func (r *CodeRepo) DeleteAllTx(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM seat_codes`)
	return err
}
