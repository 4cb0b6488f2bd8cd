package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-access/internal/broadcast"
	"github.com/iliyamo/cinema-seat-access/internal/hardware"
	"github.com/iliyamo/cinema-seat-access/internal/logger"
	"github.com/iliyamo/cinema-seat-access/internal/model"
	"github.com/iliyamo/cinema-seat-access/internal/store"
	"github.com/iliyamo/cinema-seat-access/internal/utils"
)

func TestIssueValidateAndReuse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	issued, err := f.seats.IssueCode(ctx, "A1")
	require.NoError(t, err)
	assert.True(t, utils.IsAccessCode(issued.Code))
	assert.Equal(t, "A1", issued.SeatID)
	assert.Equal(t, f.clock.Now().Add(2*time.Hour), issued.ExpiresAt)
	assert.Equal(t, model.StatusPurchased, f.seatState(t, "A1").Status(f.clock.Now()))

	require.NoError(t, f.seats.ValidateCode(ctx, "A1", issued.Code, "10.0.0.7"))
	assert.Equal(t, model.StatusOccupied, f.seatState(t, "A1").Status(f.clock.Now()))

	err = f.seats.ValidateCode(ctx, "A1", issued.Code, "10.0.0.8")
	assert.ErrorIs(t, err, ErrAlreadyUsed)

	codeEvents := f.events.ofType(broadcast.CodeIssued)
	require.Len(t, codeEvents, 1)
	assert.Equal(t, issued.Code, codeEvents[0].Code)
	assert.Equal(t, model.StatusPurchased, codeEvents[0].Status)
	occupied := f.events.ofType(broadcast.SeatOccupied)
	require.Len(t, occupied, 1)
	assert.Equal(t, "A1", occupied[0].SeatID)
	assert.Equal(t, model.StatusOccupied, occupied[0].Status)
}

func TestReissueInvalidatesPreviousCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{GenerateCode: sequence("Abc12", "Xyz34")})

	first, err := f.seats.IssueCode(ctx, "B3")
	require.NoError(t, err)
	second, err := f.seats.IssueCode(ctx, "B3")
	require.NoError(t, err)
	assert.NotEqual(t, first.Code, second.Code)

	assert.ErrorIs(t, f.seats.ValidateCode(ctx, "B3", first.Code, ""), ErrInvalidCode)
	require.NoError(t, f.seats.ValidateCode(ctx, "B3", second.Code, ""))
}

func TestIssueSkipsValuesHeldByActiveCodes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{GenerateCode: sequence("AAAAA", "AAAAA", "BBBBB")})

	a, err := f.seats.IssueCode(ctx, "A1")
	require.NoError(t, err)
	b, err := f.seats.IssueCode(ctx, "A2")
	require.NoError(t, err)
	assert.Equal(t, "AAAAA", a.Code)
	assert.Equal(t, "BBBBB", b.Code)
}

func TestIssueGivesUpAfterRepeatedCollisions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{GenerateCode: sequence("AAAAA")})

	_, err := f.seats.IssueCode(ctx, "A1")
	require.NoError(t, err)
	_, err = f.seats.IssueCode(ctx, "A2")
	assert.ErrorIs(t, err, ErrStorage)
	assert.Nil(t, f.seatState(t, "A2").Code)
}

func TestIssueUnknownSeat(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.seats.IssueCode(context.Background(), "Z9")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.events.ofType(broadcast.CodeIssued))
}

func TestConcurrentIssueLeavesOneRedeemableCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	const n = 16
	codes := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			issued, err := f.seats.IssueCode(ctx, "C5")
			if assert.NoError(t, err) {
				codes[i] = issued.Code
			}
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, c := range codes {
		err := f.seats.ValidateCode(ctx, "C5", c, "")
		if err == nil {
			accepted++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidCode)
	}
	assert.Equal(t, 1, accepted)
}

func TestConcurrentValidationAdmitsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	issued, err := f.seats.IssueCode(ctx, "D4")
	require.NoError(t, err)

	const n = 10
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.seats.ValidateCode(ctx, "D4", issued.Code, "")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyUsed)
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, f.events.ofType(broadcast.SeatOccupied), 1)
}

func TestValidateExpiredCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	issued, err := f.seats.IssueCode(ctx, "A3")
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	assert.ErrorIs(t, f.seats.ValidateCode(ctx, "A3", issued.Code, ""), ErrExpired)
	assert.Equal(t, model.StatusAvailable, f.seatState(t, "A3").Status(f.clock.Now()))
}

func TestValidateWrongSeatOrCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	issued, err := f.seats.IssueCode(ctx, "A1")
	require.NoError(t, err)

	assert.ErrorIs(t, f.seats.ValidateCode(ctx, "A2", issued.Code, ""), ErrInvalidCode)
	assert.ErrorIs(t, f.seats.ValidateCode(ctx, "Z9", issued.Code, ""), ErrInvalidCode)
	assert.ErrorIs(t, f.seats.ValidateCode(ctx, "A1", "zzzzz", ""), ErrInvalidCode)
}

func TestValidateWhileOccupiedConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.occupy(t, "B1")

	next, err := f.seats.IssueCode(ctx, "B1")
	require.NoError(t, err)
	assert.ErrorIs(t, f.seats.ValidateCode(ctx, "B1", next.Code, ""), ErrConflict)

	// the rejected code is still redeemable once the seat is released
	require.NoError(t, f.seats.EndSession(ctx, "B1"))
	require.NoError(t, f.seats.ValidateCode(ctx, "B1", next.Code, ""))
}

func TestEndSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	assert.ErrorIs(t, f.seats.EndSession(ctx, "A1"), ErrNoActiveSession)
	assert.ErrorIs(t, f.seats.EndSession(ctx, "Z9"), ErrNotFound)

	code := f.occupy(t, "A1")
	f.clock.Advance(90 * time.Minute)
	require.NoError(t, f.seats.EndSession(ctx, "A1"))
	assert.Equal(t, model.StatusAvailable, f.seatState(t, "A1").Status(f.clock.Now()))
	assert.ErrorIs(t, f.seats.EndSession(ctx, "A1"), ErrNoActiveSession)

	released := f.events.ofType(broadcast.SeatReleased)
	require.Len(t, released, 1)
	assert.Equal(t, model.StatusAvailable, released[0].Status)

	hist, err := f.seats.History(ctx, "A1")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, code, hist[0].Code)
	assert.Equal(t, model.SessionCompleted, hist[0].Status)
	assert.Equal(t, "10.0.0.1", hist[0].Origin)
	assert.Equal(t, int64(90), hist[0].DurationMinutes)
	require.NotNil(t, hist[0].EndedAt)
}

func TestEndSessionReportsPurchasedWhenNewCodeWaiting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.occupy(t, "C1")
	_, err := f.seats.IssueCode(ctx, "C1")
	require.NoError(t, err)

	require.NoError(t, f.seats.EndSession(ctx, "C1"))
	released := f.events.ofType(broadcast.SeatReleased)
	require.Len(t, released, 1)
	assert.Equal(t, model.StatusPurchased, released[0].Status)
}

func TestEndAllSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{PurgeOnEndAll: false})
	f.occupy(t, "A1")
	f.occupy(t, "B3")
	_, err := f.seats.IssueCode(ctx, "C1")
	require.NoError(t, err)
	require.NoError(t, f.store.InTx(ctx, func(tx store.Tx) error {
		seat, err := tx.LockSeat(ctx, "D2")
		if err != nil {
			return err
		}
		return tx.SetPhysical(ctx, seat.ID, model.PhysicalPending, f.clock.Now())
	}))

	res, err := f.seats.EndAllSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.SessionsEnded)
	assert.Equal(t, int64(3), res.CodesDeactivated)
	assert.False(t, res.Purged)

	seats, err := f.seats.ListSeats(ctx)
	require.NoError(t, err)
	for _, s := range seats {
		assert.Equal(t, model.StatusAvailable, s.LogicalStatus, s.ID)
		assert.Equal(t, model.PhysicalWaiting, s.PhysicalStatus, s.ID)
	}

	bulk := f.events.ofType(broadcast.AllSessionsEnded)
	require.Len(t, bulk, 1)
	assert.Equal(t, int64(2), bulk[0].Data["sessionsEnded"])
	assert.Empty(t, f.events.ofType(broadcast.SeatReleased))

	hist, err := f.seats.History(ctx, "A1")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, model.SessionEnded, hist[0].Status)
}

func TestEndAllSessionsPurges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{PurgeOnEndAll: true})
	f.occupy(t, "A1")

	res, err := f.seats.EndAllSessions(ctx)
	require.NoError(t, err)
	assert.True(t, res.Purged)

	hist, err := f.seats.History(ctx, "A1")
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestHistoryNewestFirstAndLimited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{HistoryLimit: 2})
	var codes []string
	for i := 0; i < 3; i++ {
		codes = append(codes, f.occupy(t, "E10"))
		f.clock.Advance(10 * time.Minute)
		require.NoError(t, f.seats.EndSession(ctx, "E10"))
		f.clock.Advance(time.Minute)
	}

	hist, err := f.seats.History(ctx, "E10")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, codes[2], hist[0].Code)
	assert.Equal(t, codes[1], hist[1].Code)
	assert.Equal(t, int64(10), hist[0].DurationMinutes)

	_, err = f.seats.History(ctx, "Z9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListSeats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	issued, err := f.seats.IssueCode(ctx, "A2")
	require.NoError(t, err)
	f.occupy(t, "B1")

	seats, err := f.seats.ListSeats(ctx)
	require.NoError(t, err)
	require.Len(t, seats, 50)

	byID := map[string]SeatView{}
	for _, s := range seats {
		byID[s.ID] = s
	}
	assert.Equal(t, "A1", seats[0].ID)
	assert.True(t, byID["A1"].VIP)
	assert.False(t, byID["A6"].VIP)

	a2 := byID["A2"]
	assert.Equal(t, model.StatusPurchased, a2.LogicalStatus)
	assert.Equal(t, issued.Code, a2.ActiveCode)
	require.NotNil(t, a2.ExpiresAt)
	assert.Nil(t, a2.SessionStart)

	b1 := byID["B1"]
	assert.Equal(t, model.StatusOccupied, b1.LogicalStatus)
	assert.Empty(t, b1.ActiveCode)
	require.NotNil(t, b1.SessionStart)

	assert.Equal(t, model.StatusAvailable, byID["E10"].LogicalStatus)
	assert.Equal(t, model.PhysicalWaiting, byID["E10"].PhysicalStatus)
}

func TestStateChangesAreMirrored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	mirror := &fakeMirror{}
	f.seats = NewSeatService(f.store, f.events, mirror, logger.Discard(), Options{Now: f.clock.Now})

	f.occupy(t, "A1")
	require.NoError(t, f.seats.EndSession(ctx, "A1"))
	_, err := f.seats.EndAllSessions(ctx)
	require.NoError(t, err)

	assert.Equal(t, []mirrorCall{
		{"A1", hardware.StateOccupied},
		{"A1", hardware.StateAvailable},
		{"*", hardware.StateAvailable},
	}, mirror.calls)
}

func TestStorageErrorWrapping(t *testing.T) {
	boom := errors.New("connection reset")
	err := storageError("issue code", boom)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "issue code")

	assert.Equal(t, ErrExpired, storageError("validate", ErrExpired))
	assert.NoError(t, storageError("noop", nil))
}
