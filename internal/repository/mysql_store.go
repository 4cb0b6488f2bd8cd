package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/cinema-seat-access/internal/model"
	"github.com/iliyamo/cinema-seat-access/internal/store"
)

// MySQLStore implements store.Store on top of the table repositories.
type MySQLStore struct {
	db       *sql.DB
	Seats    *SeatRepo
	Codes    *CodeRepo
	Sessions *SessionRepo
	Physical *PhysicalRepo
}

// NewMySQLStore wires the repositories around one connection pool.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{
		db:       db,
		Seats:    NewSeatRepo(db),
		Codes:    NewCodeRepo(db),
		Sessions: NewSessionRepo(db),
		Physical: NewPhysicalRepo(db),
	}
}

// DB exposes the underlying handle for health checks.
func (s *MySQLStore) DB() *sql.DB { return s.db }

// InTx implements store.Store.  Rows that must not change underneath the
// transaction are locked with SELECT … FOR UPDATE by the Tx methods.
func (s *MySQLStore) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&mysqlTx{s: s, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// SeatByCode implements store.Store.
func (s *MySQLStore) SeatByCode(ctx context.Context, code string) (*model.Seat, error) {
	return s.Seats.GetByCode(ctx, code)
}

// SeatStates implements store.Store.
func (s *MySQLStore) SeatStates(ctx context.Context, now time.Time) ([]model.SeatState, error) {
	return s.Seats.ListStates(ctx, "", now)
}

// SeatState implements store.Store.
func (s *MySQLStore) SeatState(ctx context.Context, code string, now time.Time) (*model.SeatState, error) {
	if code == "" {
		return nil, store.ErrNotFound
	}
	states, err := s.Seats.ListStates(ctx, code, now)
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, store.ErrNotFound
	}
	return &states[0], nil
}

// History implements store.Store.
func (s *MySQLStore) History(ctx context.Context, seatID uint64, limit int) ([]model.SessionRecord, error) {
	return s.Sessions.History(ctx, seatID, limit)
}

type mysqlTx struct {
	s  *MySQLStore
	tx *sql.Tx
}

func (t *mysqlTx) LockSeat(ctx context.Context, code string) (*model.Seat, error) {
	return t.s.Seats.GetByCodeForUpdateTx(ctx, t.tx, code)
}

func (t *mysqlTx) DeactivateSeatCodes(ctx context.Context, seatID uint64) (int64, error) {
	return t.s.Codes.DeactivateBySeatTx(ctx, t.tx, seatID)
}

func (t *mysqlTx) CodeValueActive(ctx context.Context, value string) (bool, error) {
	return t.s.Codes.ActiveValueExistsTx(ctx, t.tx, value)
}

func (t *mysqlTx) InsertCode(ctx context.Context, c *model.AccessCode) error {
	return t.s.Codes.CreateTx(ctx, t.tx, c)
}

func (t *mysqlTx) LockActiveCode(ctx context.Context, seatID uint64, value string) (*model.AccessCode, error) {
	return t.s.Codes.FindActiveForUpdateTx(ctx, t.tx, seatID, value)
}

func (t *mysqlTx) MarkCodeUsed(ctx context.Context, codeID uint64, at time.Time) error {
	return t.s.Codes.MarkUsedTx(ctx, t.tx, codeID, at)
}

func (t *mysqlTx) LockActiveSession(ctx context.Context, seatID uint64) (*model.Session, error) {
	return t.s.Sessions.ActiveBySeatForUpdateTx(ctx, t.tx, seatID)
}

func (t *mysqlTx) InsertSession(ctx context.Context, sess *model.Session) error {
	return t.s.Sessions.CreateTx(ctx, t.tx, sess)
}

func (t *mysqlTx) CloseSession(ctx context.Context, sessionID uint64, status string, at time.Time) error {
	return t.s.Sessions.CloseTx(ctx, t.tx, sessionID, status, at)
}

func (t *mysqlTx) CloseAllSessions(ctx context.Context, status string, at time.Time) (int64, error) {
	return t.s.Sessions.CloseAllTx(ctx, t.tx, status, at)
}

func (t *mysqlTx) DeactivateAllCodes(ctx context.Context) (int64, error) {
	return t.s.Codes.DeactivateAllTx(ctx, t.tx)
}

func (t *mysqlTx) ResetAllPhysical(ctx context.Context, at time.Time) error {
	return t.s.Physical.ResetAllTx(ctx, t.tx, at)
}

func (t *mysqlTx) PurgeHistory(ctx context.Context) error {
	if err := t.s.Sessions.DeleteAllTx(ctx, t.tx); err != nil {
		return err
	}
	return t.s.Codes.DeleteAllTx(ctx, t.tx)
}

func (t *mysqlTx) SetPhysical(ctx context.Context, seatID uint64, status string, at time.Time) error {
	return t.s.Physical.SetTx(ctx, t.tx, seatID, status, at)
}

func (t *mysqlTx) PendingSeatsExcept(ctx context.Context, seatID uint64) ([]model.Seat, error) {
	return t.s.Seats.PendingExceptTx(ctx, t.tx, seatID)
}

var _ store.Store = (*MySQLStore)(nil)
