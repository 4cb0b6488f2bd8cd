// Package store defines the persistence seam used by the seat service.
// Every read-modify-write operation of the service runs inside InTx so the
// "check, then write" steps of code issuance and validation are a single
// unit against the backing store.  The MySQL implementation lives in the
// repository package; Memory is a process-local implementation used by
// tests and by the memory store driver.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/cinema-seat-access/internal/model"
)

// ErrNotFound is returned when a lookup yields no rows.  The service
// translates it into the domain error of the calling operation.
var ErrNotFound = errors.New("store: not found")

// Store is the read side plus the transaction entry point.
type Store interface {
	// InTx runs fn inside a transaction.  The transaction is committed
	// when fn returns nil and rolled back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// SeatByCode looks up a seat by its public code.
	SeatByCode(ctx context.Context, code string) (*model.Seat, error)
	// SeatStates returns every seat ordered by row then number, each with
	// its open session, newest redeemable code at now and physical state.
	SeatStates(ctx context.Context, now time.Time) ([]model.SeatState, error)
	// SeatState is SeatStates restricted to one seat.
	SeatState(ctx context.Context, code string, now time.Time) (*model.SeatState, error)
	// History returns up to limit sessions of a seat, most recent first.
	History(ctx context.Context, seatID uint64, limit int) ([]model.SessionRecord, error)
}

// Tx is the set of writes (and locking reads) the service performs
// atomically.
type Tx interface {
	// LockSeat looks up a seat by code and locks it for the rest of the
	// transaction.
	LockSeat(ctx context.Context, code string) (*model.Seat, error)

	// DeactivateSeatCodes flips is_active off for every active code of
	// the seat and returns the number of codes affected.
	DeactivateSeatCodes(ctx context.Context, seatID uint64) (int64, error)
	// CodeValueActive reports whether any active code currently holds value.
	CodeValueActive(ctx context.Context, value string) (bool, error)
	// InsertCode stores a new code and populates its ID.
	InsertCode(ctx context.Context, c *model.AccessCode) error
	// LockActiveCode finds the active code of a seat with the given value
	// and locks it.  Used and expired codes are returned as well; the
	// caller decides what they mean.
	LockActiveCode(ctx context.Context, seatID uint64, value string) (*model.AccessCode, error)
	// MarkCodeUsed consumes a code.
	MarkCodeUsed(ctx context.Context, codeID uint64, at time.Time) error

	// LockActiveSession returns the open session of a seat, locked.
	LockActiveSession(ctx context.Context, seatID uint64) (*model.Session, error)
	// InsertSession opens a session and populates its ID.
	InsertSession(ctx context.Context, s *model.Session) error
	// CloseSession moves one session to status and stamps its end.
	CloseSession(ctx context.Context, sessionID uint64, status string, at time.Time) error

	// CloseAllSessions closes every active session with status.
	CloseAllSessions(ctx context.Context, status string, at time.Time) (int64, error)
	// DeactivateAllCodes flips is_active off for every active code.
	DeactivateAllCodes(ctx context.Context) (int64, error)
	// ResetAllPhysical sets every seat's physical state to waiting.
	ResetAllPhysical(ctx context.Context, at time.Time) error
	// PurgeHistory deletes every session and code row.
	PurgeHistory(ctx context.Context) error

	// SetPhysical records the physical state of a seat.
	SetPhysical(ctx context.Context, seatID uint64, status string, at time.Time) error
	// PendingSeatsExcept lists seats whose physical state is pending,
	// excluding seatID.
	PendingSeatsExcept(ctx context.Context, seatID uint64) ([]model.Seat, error)
}
