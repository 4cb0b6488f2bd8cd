package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-access/internal/model"
)

func testSeats() []model.Seat {
	return []model.Seat{
		{Code: "B1", RowLetter: "B", SeatNumber: 1},
		{Code: "A2", RowLetter: "A", SeatNumber: 2},
		{Code: "A1", RowLetter: "A", SeatNumber: 1, IsVIP: true},
	}
}

func TestMemorySeatStatesOrdered(t *testing.T) {
	m := NewMemory(testSeats())
	states, err := m.SeatStates(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, states, 3)
	assert.Equal(t, "A1", states[0].Seat.Code)
	assert.Equal(t, "A2", states[1].Seat.Code)
	assert.Equal(t, "B1", states[2].Seat.Code)
	for _, st := range states {
		assert.Equal(t, model.PhysicalWaiting, st.Physical)
	}
}

func TestMemoryInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(testSeats())
	now := time.Now().UTC()
	boom := errors.New("boom")

	err := m.InTx(ctx, func(tx Tx) error {
		seat, err := tx.LockSeat(ctx, "A1")
		require.NoError(t, err)
		require.NoError(t, tx.InsertCode(ctx, &model.AccessCode{SeatID: seat.ID, Value: "abcde", IsActive: true, ExpiresAt: now.Add(time.Hour)}))
		require.NoError(t, tx.SetPhysical(ctx, seat.ID, model.PhysicalPending, now))
		return boom
	})
	require.ErrorIs(t, err, boom)

	st, err := m.SeatState(ctx, "A1", now)
	require.NoError(t, err)
	assert.Nil(t, st.Code)
	assert.Equal(t, model.PhysicalWaiting, st.Physical)
}

func TestMemoryHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(testSeats())
	start := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

	require.NoError(t, m.InTx(ctx, func(tx Tx) error {
		for i, v := range []string{"aaaaa", "bbbbb", "ccccc"} {
			c := &model.AccessCode{SeatID: 1, Value: v, IsActive: true, ExpiresAt: start.Add(5 * time.Hour)}
			if err := tx.InsertCode(ctx, c); err != nil {
				return err
			}
			s := &model.Session{SeatID: 1, CodeID: c.ID, StartedAt: start.Add(time.Duration(i) * time.Hour)}
			if err := tx.InsertSession(ctx, s); err != nil {
				return err
			}
			if err := tx.CloseSession(ctx, s.ID, model.SessionCompleted, s.StartedAt.Add(30*time.Minute)); err != nil {
				return err
			}
		}
		return nil
	}))

	hist, err := m.History(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "ccccc", hist[0].CodeValue)
	assert.Equal(t, "bbbbb", hist[1].CodeValue)
	assert.Equal(t, model.SessionCompleted, hist[0].Status)
}

func TestMemorySeatByCodeUnknown(t *testing.T) {
	m := NewMemory(testSeats())
	_, err := m.SeatByCode(context.Background(), "Z9")
	assert.ErrorIs(t, err, ErrNotFound)
}
