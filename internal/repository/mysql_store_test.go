package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-access/internal/model"
	"github.com/iliyamo/cinema-seat-access/internal/store"
)

func newMock(t *testing.T) (*MySQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewMySQLStore(db), mock
}

func TestInTxConsumesCodeAndOpensSession(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM seat_codes WHERE seat_id = ? AND unique_code = ? AND is_active = 1")).
		WithArgs(3, "Ab3dE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "seat_id", "unique_code", "is_active", "is_used", "expires_at", "used_at", "created_at"}).
			AddRow(11, 3, "Ab3dE", true, false, now.Add(time.Hour), nil, now.Add(-time.Hour)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE seat_codes SET is_used = 1, used_at = ? WHERE id = ?")).
		WithArgs(sqlmock.AnyArg(), 11).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO seat_sessions")).
		WithArgs(3, 11, "10.0.0.7", model.SessionActive, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectCommit()

	var sess model.Session
	err := s.InTx(ctx, func(tx store.Tx) error {
		code, err := tx.LockActiveCode(ctx, 3, "Ab3dE")
		if err != nil {
			return err
		}
		assert.False(t, code.IsUsed)
		assert.Nil(t, code.UsedAt)
		if err := tx.MarkCodeUsed(ctx, code.ID, now); err != nil {
			return err
		}
		sess = model.Session{SeatID: 3, CodeID: code.ID, Origin: "10.0.0.7", StartedAt: now}
		return tx.InsertSession(ctx, &sess)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), sess.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxRollsBackWhenSeatMissing(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM seats s WHERE s.seat_code = ? FOR UPDATE")).
		WithArgs("Z9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "seat_code", "row_letter", "seat_number", "is_vip", "created_at"}))
	mock.ExpectRollback()

	err := s.InTx(ctx, func(tx store.Tx) error {
		_, err := tx.LockSeat(ctx, "Z9")
		return err
	})
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatStatesMapsJoinedRows(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	created := now.Add(-48 * time.Hour)

	cols := []string{
		"id", "seat_code", "row_letter", "seat_number", "is_vip", "created_at",
		"ss_id", "code_id", "user_ip", "accessed_at",
		"sc_id", "unique_code", "expires_at", "sc_created_at",
		"physical_status",
	}
	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN seat_sessions ss")).
		WithArgs(now, "", "").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, "A1", "A", 1, true, created, 7, 5, "10.0.0.1", now.Add(-10*time.Minute), nil, nil, nil, nil, "pending").
			AddRow(2, "A2", "A", 2, true, created, nil, nil, nil, nil, 9, "QwErT", now.Add(time.Hour), now, "waiting").
			AddRow(3, "A3", "A", 3, true, created, nil, nil, nil, nil, nil, nil, nil, nil, "waiting"))

	states, err := s.SeatStates(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, states, 3)

	assert.Equal(t, model.StatusOccupied, states[0].Status(now))
	assert.Equal(t, "10.0.0.1", states[0].Session.Origin)
	assert.Equal(t, model.PhysicalPending, states[0].Physical)

	assert.Equal(t, model.StatusPurchased, states[1].Status(now))
	assert.Equal(t, "QwErT", states[1].Code.Value)

	assert.Equal(t, model.StatusAvailable, states[2].Status(now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryScansNullableEnd(t *testing.T) {
	s, mock := newMock(t)
	start := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	end := start.Add(45 * time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta("FROM seat_sessions ss")).
		WithArgs(4, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "seat_id", "code_id", "user_ip", "status", "accessed_at", "session_end", "unique_code"}).
			AddRow(2, 4, 8, "", "active", start.Add(time.Hour), nil, "bbbbb").
			AddRow(1, 4, 6, "10.0.0.2", "completed", start, end, "aaaaa"))

	hist, err := s.History(context.Background(), 4, 50)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Nil(t, hist[0].EndedAt)
	require.NotNil(t, hist[1].EndedAt)
	assert.Equal(t, int64(45), hist[1].DurationMinutes(start.Add(10*time.Hour)))
	assert.NoError(t, mock.ExpectationsWereMet())
}
