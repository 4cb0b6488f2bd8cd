package repository // repository defines data access for seats

import (
	"context"      // context allows query cancellation and timeouts
	"database/sql" // sql provides DB primitives
	"time"

	"github.com/iliyamo/cinema-seat-access/internal/model"
)

// SeatRepo provides methods to work with seats in the database.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

const seatColumns = `s.id, s.seat_code, s.row_letter, s.seat_number, s.is_vip, s.created_at`

// Count returns the number of provisioned seats.
func (r *SeatRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM seats`).Scan(&n)
	return n, err
}

// CreateBulk inserts multiple seats in a single statement.
func (r *SeatRepo) CreateBulk(ctx context.Context, seats []model.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	query := `INSERT INTO seats (seat_code, row_letter, seat_number, is_vip) VALUES `
	args := make([]interface{}, 0, len(seats)*4)
	for i, seat := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		args = append(args, seat.Code, seat.RowLetter, seat.SeatNumber, seat.IsVIP)
	}
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

// GetByCode retrieves a seat by its public code.
func (r *SeatRepo) GetByCode(ctx context.Context, code string) (*model.Seat, error) {
	q := `SELECT ` + seatColumns + ` FROM seats s WHERE s.seat_code = ?`
	var s model.Seat
	err := r.db.QueryRowContext(ctx, q, code).
		Scan(&s.ID, &s.Code, &s.RowLetter, &s.SeatNumber, &s.IsVIP, &s.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// GetByCodeForUpdateTx retrieves a seat and locks its row until the
// transaction ends.  Concurrent issuers for the same seat queue up here.
func (r *SeatRepo) GetByCodeForUpdateTx(ctx context.Context, tx *sql.Tx, code string) (*model.Seat, error) {
	q := `SELECT ` + seatColumns + ` FROM seats s WHERE s.seat_code = ? FOR UPDATE`
	var s model.Seat
	err := tx.QueryRowContext(ctx, q, code).
		Scan(&s.ID, &s.Code, &s.RowLetter, &s.SeatNumber, &s.IsVIP, &s.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// ListStates returns seats with their open session, redeemable code and
// physical state.  When code is non-empty only that seat is returned.
// Expiry is compared against now instead of NOW() so the caller's clock
// decides what "expired" means.
func (r *SeatRepo) ListStates(ctx context.Context, code string, now time.Time) ([]model.SeatState, error) {
	q := `SELECT ` + seatColumns + `,
	             ss.id, ss.code_id, ss.user_ip, ss.accessed_at,
	             sc.id, sc.unique_code, sc.expires_at, sc.created_at,
	             COALESCE(sps.physical_status, 'waiting')
	      FROM seats s
	      LEFT JOIN seat_sessions ss ON ss.seat_id = s.id AND ss.status = 'active'
	      LEFT JOIN seat_codes sc ON sc.seat_id = s.id AND sc.is_active = 1 AND sc.is_used = 0 AND sc.expires_at > ?
	      LEFT JOIN seat_physical_status sps ON sps.seat_id = s.id
	      WHERE (? = '' OR s.seat_code = ?)
	      ORDER BY s.row_letter, s.seat_number`
	rows, err := r.db.QueryContext(ctx, q, now, code, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []model.SeatState{}
	for rows.Next() {
		var (
			st                     model.SeatState
			sessID, sessCode       sql.NullInt64
			sessOrigin             sql.NullString
			sessStart              sql.NullTime
			codeID                 sql.NullInt64
			codeValue              sql.NullString
			codeExpires, codeSince sql.NullTime
		)
		if err := rows.Scan(
			&st.Seat.ID, &st.Seat.Code, &st.Seat.RowLetter, &st.Seat.SeatNumber, &st.Seat.IsVIP, &st.Seat.CreatedAt,
			&sessID, &sessCode, &sessOrigin, &sessStart,
			&codeID, &codeValue, &codeExpires, &codeSince,
			&st.Physical,
		); err != nil {
			return nil, err
		}
		if sessID.Valid {
			st.Session = &model.Session{
				ID:        uint64(sessID.Int64),
				SeatID:    st.Seat.ID,
				CodeID:    uint64(sessCode.Int64),
				Origin:    sessOrigin.String,
				Status:    model.SessionActive,
				StartedAt: sessStart.Time,
			}
		}
		if codeID.Valid {
			st.Code = &model.AccessCode{
				ID:        uint64(codeID.Int64),
				SeatID:    st.Seat.ID,
				Value:     codeValue.String,
				IsActive:  true,
				ExpiresAt: codeExpires.Time,
				CreatedAt: codeSince.Time,
			}
		}
		result = append(result, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// PendingExceptTx lists the seats whose physical state is pending, other
// than seatID.
func (r *SeatRepo) PendingExceptTx(ctx context.Context, tx *sql.Tx, seatID uint64) ([]model.Seat, error) {
	q := `SELECT ` + seatColumns + `
	      FROM seats s
	      JOIN seat_physical_status sps ON sps.seat_id = s.id
	      WHERE sps.physical_status = 'pending' AND s.id <> ?
	      ORDER BY s.row_letter, s.seat_number`
	rows, err := tx.QueryContext(ctx, q, seatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []model.Seat
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.ID, &s.Code, &s.RowLetter, &s.SeatNumber, &s.IsVIP, &s.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
