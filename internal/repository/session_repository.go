package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/cinema-seat-access/internal/model"
)

// SessionRepo provides data access to seat_sessions.  A session row is
// opened by a successful validation and closed by end-session or by the
// venue-wide reset.  All timestamp fields are stored in UTC.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo returns a new SessionRepo bound to the given database.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

// ActiveBySeatForUpdateTx returns the open session of a seat and locks it.
func (r *SessionRepo) ActiveBySeatForUpdateTx(ctx context.Context, tx *sql.Tx, seatID uint64) (*model.Session, error) {
	const q = `SELECT id, seat_id, code_id, COALESCE(user_ip, ''), status, accessed_at
	           FROM seat_sessions
	           WHERE seat_id = ? AND status = 'active'
	           ORDER BY id DESC
	           LIMIT 1
	           FOR UPDATE`
	var s model.Session
	err := tx.QueryRowContext(ctx, q, seatID).Scan(&s.ID, &s.SeatID, &s.CodeID, &s.Origin, &s.Status, &s.StartedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// CreateTx opens a session and populates its ID.
func (r *SessionRepo) CreateTx(ctx context.Context, tx *sql.Tx, s *model.Session) error {
	if s.Status == "" {
		s.Status = model.SessionActive
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO seat_sessions (seat_id, code_id, user_ip, status, accessed_at) VALUES (?, ?, ?, ?, ?)`,
		s.SeatID, s.CodeID, s.Origin, s.Status, s.StartedAt.UTC(),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

// CloseTx moves a session to status and stamps session_end.
func (r *SessionRepo) CloseTx(ctx context.Context, tx *sql.Tx, sessionID uint64, status string, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE seat_sessions SET status = ?, session_end = ? WHERE id = ?`,
		status, at.UTC(), sessionID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(sql.ErrNoRows)
	}
	return nil
}

// CloseAllTx closes every active session and returns how many were open.
func (r *SessionRepo) CloseAllTx(ctx context.Context, tx *sql.Tx, status string, at time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE seat_sessions SET status = ?, session_end = ? WHERE status = 'active'`,
		status, at.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteAllTx removes every session row.
func (r *SessionRepo) DeleteAllTx(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM seat_sessions`)
	return err
}

// History lists the sessions of a seat, newest first, joined with the
// code that admitted each of them.
func (r *SessionRepo) History(ctx context.Context, seatID uint64, limit int) ([]model.SessionRecord, error) {
	const q = `SELECT ss.id, ss.seat_id, ss.code_id, COALESCE(ss.user_ip, ''), ss.status,
	                  ss.accessed_at, ss.session_end, sc.unique_code
	           FROM seat_sessions ss
	           INNER JOIN seat_codes sc ON sc.id = ss.code_id
	           WHERE ss.seat_id = ?
	           ORDER BY ss.accessed_at DESC, ss.id DESC
	           LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, seatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.SessionRecord{}
	for rows.Next() {
		var rec model.SessionRecord
		var end sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.SeatID, &rec.CodeID, &rec.Origin, &rec.Status,
			&rec.StartedAt, &end, &rec.CodeValue); err != nil {
			return nil, err
		}
		if end.Valid {
			t := end.Time
			rec.EndedAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
