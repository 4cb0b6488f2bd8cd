// Package service implements the seat-code lifecycle and the arbitration
// of the single physical controller.  Every state change is committed to
// the store first and broadcast afterwards; device writes never undo a
// committed change.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/cinema-seat-access/internal/broadcast"
	"github.com/iliyamo/cinema-seat-access/internal/hardware"
	"github.com/iliyamo/cinema-seat-access/internal/logger"
	"github.com/iliyamo/cinema-seat-access/internal/model"
	"github.com/iliyamo/cinema-seat-access/internal/store"
	"github.com/iliyamo/cinema-seat-access/internal/utils"
)

// maxCodeAttempts bounds the search for a value no active code holds.
const maxCodeAttempts = 32

// DeviceMirror shows committed seat changes on the controller board.
// Controller implements it; both methods are no-ops for unbound seats.
type DeviceMirror interface {
	MirrorSeat(seatID, state string)
	MirrorBound(state string)
}

// Options tunes a SeatService.  Zero values fall back to the defaults.
type Options struct {
	CodeExpiry    time.Duration
	HistoryLimit  int
	PurgeOnEndAll bool
	Now           func() time.Time
	GenerateCode  func() (string, error)
}

// SeatService issues and validates access codes and manages occupancy
// sessions.
type SeatService struct {
	store    store.Store
	events   broadcast.Publisher
	device   DeviceMirror
	log      *logger.Logger
	now      func() time.Time
	generate func() (string, error)

	expiry       time.Duration
	historyLimit int
	purge        bool
}

// NewSeatService wires the service.  device may be nil when no
// controller is configured.
func NewSeatService(st store.Store, events broadcast.Publisher, device DeviceMirror, log *logger.Logger, opts Options) *SeatService {
	if opts.CodeExpiry <= 0 {
		opts.CodeExpiry = 2 * time.Hour
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.GenerateCode == nil {
		opts.GenerateCode = utils.GenerateAccessCode
	}
	if events == nil {
		events = broadcast.NewFanout()
	}
	return &SeatService{
		store:        st,
		events:       events,
		device:       device,
		log:          log.Component("seats"),
		now:          opts.Now,
		generate:     opts.GenerateCode,
		expiry:       opts.CodeExpiry,
		historyLimit: opts.HistoryLimit,
		purge:        opts.PurgeOnEndAll,
	}
}

// IssuedCode is the result of IssueCode.
type IssuedCode struct {
	Code      string    `json:"code"`
	SeatID    string    `json:"seatId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IssueCode replaces any outstanding code of the seat with a fresh one.
func (s *SeatService) IssueCode(ctx context.Context, seatID string) (*IssuedCode, error) {
	now := s.now()
	var issued IssuedCode
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		seat, err := tx.LockSeat(ctx, seatID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if _, err := tx.DeactivateSeatCodes(ctx, seat.ID); err != nil {
			return err
		}
		value, err := s.uniqueValue(ctx, tx)
		if err != nil {
			return err
		}
		code := &model.AccessCode{
			SeatID:    seat.ID,
			Value:     value,
			IsActive:  true,
			ExpiresAt: now.Add(s.expiry),
			CreatedAt: now,
		}
		if err := tx.InsertCode(ctx, code); err != nil {
			return err
		}
		issued = IssuedCode{Code: code.Value, SeatID: seat.Code, ExpiresAt: code.ExpiresAt}
		return nil
	})
	if err != nil {
		return nil, storageError("issue code", err)
	}

	s.log.WithSeat(issued.SeatID).Info("code issued", "expires_at", issued.ExpiresAt)
	ev := broadcast.NewEvent(broadcast.CodeIssued, issued.SeatID)
	ev.Status = model.StatusPurchased
	ev.Code = issued.Code
	expires := issued.ExpiresAt
	ev.ExpiresAt = &expires
	s.events.Publish(ctx, ev)
	return &issued, nil
}

func (s *SeatService) uniqueValue(ctx context.Context, tx store.Tx) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		v, err := s.generate()
		if err != nil {
			return "", err
		}
		taken, err := tx.CodeValueActive(ctx, v)
		if err != nil {
			return "", err
		}
		if !taken {
			return v, nil
		}
	}
	return "", errors.New("no free code value after retries")
}

// ValidateCode consumes a code and opens an occupancy session for the
// seat.  origin identifies the admitting client.
func (s *SeatService) ValidateCode(ctx context.Context, seatID, code, origin string) error {
	now := s.now()
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		seat, err := tx.LockSeat(ctx, seatID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidCode
			}
			return err
		}
		ac, err := tx.LockActiveCode(ctx, seat.ID, code)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidCode
			}
			return err
		}
		if ac.IsUsed {
			return ErrAlreadyUsed
		}
		if ac.Expired(now) {
			return ErrExpired
		}
		if _, err := tx.LockActiveSession(ctx, seat.ID); err == nil {
			return ErrConflict
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := tx.MarkCodeUsed(ctx, ac.ID, now); err != nil {
			return err
		}
		return tx.InsertSession(ctx, &model.Session{
			SeatID:    seat.ID,
			CodeID:    ac.ID,
			Origin:    origin,
			Status:    model.SessionActive,
			StartedAt: now,
		})
	})
	if err != nil {
		return storageError("validate code", err)
	}

	s.log.WithSeat(seatID).Info("seat occupied", "origin", origin)
	ev := broadcast.NewEvent(broadcast.SeatOccupied, seatID)
	ev.Status = model.StatusOccupied
	s.events.Publish(ctx, ev)
	if s.device != nil {
		s.device.MirrorSeat(seatID, hardware.StateOccupied)
	}
	return nil
}

// EndSession closes the open session of a seat.
func (s *SeatService) EndSession(ctx context.Context, seatID string) error {
	now := s.now()
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		seat, err := tx.LockSeat(ctx, seatID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		sess, err := tx.LockActiveSession(ctx, seat.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNoActiveSession
			}
			return err
		}
		return tx.CloseSession(ctx, sess.ID, model.SessionCompleted, now)
	})
	if err != nil {
		return storageError("end session", err)
	}

	// A code issued during the session makes the seat purchased again.
	status := model.StatusAvailable
	if st, err := s.store.SeatState(ctx, seatID, now); err == nil {
		status = st.Status(now)
	} else {
		s.log.WithSeat(seatID).WithError(err).Warn("reading seat after release failed")
	}

	s.log.WithSeat(seatID).Info("session ended")
	ev := broadcast.NewEvent(broadcast.SeatReleased, seatID)
	ev.Status = status
	s.events.Publish(ctx, ev)
	if s.device != nil {
		s.device.MirrorSeat(seatID, hardware.StateAvailable)
	}
	return nil
}

// EndAllResult reports what EndAllSessions changed.
type EndAllResult struct {
	SessionsEnded    int64 `json:"sessionsEnded"`
	CodesDeactivated int64 `json:"codesDeactivated"`
	Purged           bool  `json:"purged"`
}

// EndAllSessions resets the venue: every session is closed, every code
// deactivated and every button state returned to waiting.  With purging
// enabled the code and session rows are deleted afterwards.
func (s *SeatService) EndAllSessions(ctx context.Context) (*EndAllResult, error) {
	now := s.now()
	var res EndAllResult
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if res.SessionsEnded, err = tx.CloseAllSessions(ctx, model.SessionEnded, now); err != nil {
			return err
		}
		if res.CodesDeactivated, err = tx.DeactivateAllCodes(ctx); err != nil {
			return err
		}
		if err := tx.ResetAllPhysical(ctx, now); err != nil {
			return err
		}
		if s.purge {
			if err := tx.PurgeHistory(ctx); err != nil {
				return err
			}
			res.Purged = true
		}
		return nil
	})
	if err != nil {
		return nil, storageError("end all sessions", err)
	}

	s.log.Info("all sessions ended",
		"sessions", res.SessionsEnded, "codes", res.CodesDeactivated, "purged", res.Purged)
	ev := broadcast.NewEvent(broadcast.AllSessionsEnded, "")
	ev.Status = model.StatusAvailable
	ev.PhysicalStatus = model.PhysicalWaiting
	ev.Data = map[string]any{
		"sessionsEnded":    res.SessionsEnded,
		"codesDeactivated": res.CodesDeactivated,
		"purged":           res.Purged,
	}
	s.events.Publish(ctx, ev)
	if s.device != nil {
		s.device.MirrorBound(hardware.StateAvailable)
	}
	return &res, nil
}

// HistoryEntry is one past or current session of a seat.
type HistoryEntry struct {
	SessionID       uint64     `json:"sessionId"`
	Code            string     `json:"code"`
	Origin          string     `json:"originIdentity"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"startedAt"`
	EndedAt         *time.Time `json:"endedAt"`
	DurationMinutes int64      `json:"durationMinutes"`
}

// History returns the most recent sessions of a seat, newest first.
func (s *SeatService) History(ctx context.Context, seatID string) ([]HistoryEntry, error) {
	seat, err := s.store.SeatByCode(ctx, seatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageError("history", err)
	}
	records, err := s.store.History(ctx, seat.ID, s.historyLimit)
	if err != nil {
		return nil, storageError("history", err)
	}
	now := s.now()
	out := make([]HistoryEntry, 0, len(records))
	for _, r := range records {
		out = append(out, HistoryEntry{
			SessionID:       r.ID,
			Code:            r.CodeValue,
			Origin:          r.Origin,
			Status:          r.Status,
			StartedAt:       r.StartedAt,
			EndedAt:         r.EndedAt,
			DurationMinutes: r.DurationMinutes(now),
		})
	}
	return out, nil
}

// SeatView is the public read model of one seat.
type SeatView struct {
	ID             string     `json:"id"`
	Row            string     `json:"row"`
	Number         uint32     `json:"number"`
	VIP            bool       `json:"vip"`
	LogicalStatus  string     `json:"logicalStatus"`
	PhysicalStatus string     `json:"physicalStatus"`
	ActiveCode     string     `json:"activeCode,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	SessionStart   *time.Time `json:"sessionStart,omitempty"`
}

// ListSeats returns every seat ordered by row then number.
func (s *SeatService) ListSeats(ctx context.Context) ([]SeatView, error) {
	now := s.now()
	states, err := s.store.SeatStates(ctx, now)
	if err != nil {
		return nil, storageError("list seats", err)
	}
	out := make([]SeatView, 0, len(states))
	for _, st := range states {
		out = append(out, viewOf(st, now))
	}
	return out, nil
}

func viewOf(st model.SeatState, now time.Time) SeatView {
	v := SeatView{
		ID:             st.Seat.Code,
		Row:            st.Seat.RowLetter,
		Number:         st.Seat.SeatNumber,
		VIP:            st.Seat.IsVIP,
		LogicalStatus:  st.Status(now),
		PhysicalStatus: st.Physical,
	}
	switch v.LogicalStatus {
	case model.StatusPurchased:
		v.ActiveCode = st.Code.Value
		expires := st.Code.ExpiresAt
		v.ExpiresAt = &expires
	case model.StatusOccupied:
		start := st.Session.StartedAt
		v.SessionStart = &start
	}
	return v
}
