package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/cinema-seat-access/internal/model"
)

// Memory keeps seats, codes, sessions and physical states in process
// memory.  Transactions are serialized by a single mutex and rolled back
// by restoring a snapshot taken when they start.
type Memory struct {
	mu       sync.RWMutex
	seats    []model.Seat
	codes    []model.AccessCode
	sessions []model.Session
	physical map[uint64]model.PhysicalState
	nextCode uint64
	nextSess uint64
}

// NewMemory returns a store provisioned with the given seats.  Seat IDs
// are assigned in order when they are zero.
func NewMemory(seats []model.Seat) *Memory {
	m := &Memory{physical: make(map[uint64]model.PhysicalState)}
	for i, s := range seats {
		if s.ID == 0 {
			s.ID = uint64(i + 1)
		}
		m.seats = append(m.seats, s)
		m.physical[s.ID] = model.PhysicalState{SeatID: s.ID, Status: model.PhysicalWaiting}
	}
	sort.SliceStable(m.seats, func(i, j int) bool {
		if m.seats[i].RowLetter != m.seats[j].RowLetter {
			return m.seats[i].RowLetter < m.seats[j].RowLetter
		}
		return m.seats[i].SeatNumber < m.seats[j].SeatNumber
	})
	return m
}

type memorySnapshot struct {
	codes    []model.AccessCode
	sessions []model.Session
	physical map[uint64]model.PhysicalState
	nextCode uint64
	nextSess uint64
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		codes:    append([]model.AccessCode(nil), m.codes...),
		sessions: append([]model.Session(nil), m.sessions...),
		physical: make(map[uint64]model.PhysicalState, len(m.physical)),
		nextCode: m.nextCode,
		nextSess: m.nextSess,
	}
	for k, v := range m.physical {
		s.physical[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.codes = s.codes
	m.sessions = s.sessions
	m.physical = s.physical
	m.nextCode = s.nextCode
	m.nextSess = s.nextSess
}

// InTx implements Store.
func (m *Memory) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	if err := fn(memoryTx{m: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// SeatByCode implements Store.
func (m *Memory) SeatByCode(_ context.Context, code string) (*model.Seat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seatByCode(code)
}

func (m *Memory) seatByCode(code string) (*model.Seat, error) {
	for i := range m.seats {
		if m.seats[i].Code == code {
			s := m.seats[i]
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

// SeatStates implements Store.
func (m *Memory) SeatStates(_ context.Context, now time.Time) ([]model.SeatState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.SeatState, 0, len(m.seats))
	for _, s := range m.seats {
		out = append(out, m.stateOf(s, now))
	}
	return out, nil
}

// SeatState implements Store.
func (m *Memory) SeatState(_ context.Context, code string, now time.Time) (*model.SeatState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seat, err := m.seatByCode(code)
	if err != nil {
		return nil, err
	}
	st := m.stateOf(*seat, now)
	return &st, nil
}

func (m *Memory) stateOf(seat model.Seat, now time.Time) model.SeatState {
	st := model.SeatState{Seat: seat, Physical: model.PhysicalWaiting}
	for i := range m.sessions {
		if m.sessions[i].SeatID == seat.ID && m.sessions[i].Active() {
			s := m.sessions[i]
			st.Session = &s
			break
		}
	}
	for i := len(m.codes) - 1; i >= 0; i-- {
		if m.codes[i].SeatID == seat.ID && m.codes[i].Redeemable(now) {
			c := m.codes[i]
			st.Code = &c
			break
		}
	}
	if p, ok := m.physical[seat.ID]; ok {
		st.Physical = p.Status
	}
	return st
}

// History implements Store.
func (m *Memory) History(_ context.Context, seatID uint64, limit int) ([]model.SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.SessionRecord{}
	for _, s := range m.sessions {
		if s.SeatID != seatID {
			continue
		}
		rec := model.SessionRecord{Session: s}
		for _, c := range m.codes {
			if c.ID == s.CodeID {
				rec.CodeValue = c.Value
				break
			}
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memoryTx operates on the store while InTx holds the write lock.
type memoryTx struct {
	m *Memory
}

func (t memoryTx) LockSeat(_ context.Context, code string) (*model.Seat, error) {
	return t.m.seatByCode(code)
}

func (t memoryTx) DeactivateSeatCodes(_ context.Context, seatID uint64) (int64, error) {
	var n int64
	for i := range t.m.codes {
		if t.m.codes[i].SeatID == seatID && t.m.codes[i].IsActive {
			t.m.codes[i].IsActive = false
			n++
		}
	}
	return n, nil
}

func (t memoryTx) CodeValueActive(_ context.Context, value string) (bool, error) {
	for _, c := range t.m.codes {
		if c.IsActive && c.Value == value {
			return true, nil
		}
	}
	return false, nil
}

func (t memoryTx) InsertCode(_ context.Context, c *model.AccessCode) error {
	t.m.nextCode++
	c.ID = t.m.nextCode
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	t.m.codes = append(t.m.codes, *c)
	return nil
}

func (t memoryTx) LockActiveCode(_ context.Context, seatID uint64, value string) (*model.AccessCode, error) {
	for i := len(t.m.codes) - 1; i >= 0; i-- {
		c := t.m.codes[i]
		if c.SeatID == seatID && c.Value == value && c.IsActive {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (t memoryTx) MarkCodeUsed(_ context.Context, codeID uint64, at time.Time) error {
	for i := range t.m.codes {
		if t.m.codes[i].ID == codeID {
			used := at
			t.m.codes[i].IsUsed = true
			t.m.codes[i].UsedAt = &used
			return nil
		}
	}
	return ErrNotFound
}

func (t memoryTx) LockActiveSession(_ context.Context, seatID uint64) (*model.Session, error) {
	for i := range t.m.sessions {
		if t.m.sessions[i].SeatID == seatID && t.m.sessions[i].Active() {
			s := t.m.sessions[i]
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

func (t memoryTx) InsertSession(_ context.Context, s *model.Session) error {
	t.m.nextSess++
	s.ID = t.m.nextSess
	if s.Status == "" {
		s.Status = model.SessionActive
	}
	t.m.sessions = append(t.m.sessions, *s)
	return nil
}

func (t memoryTx) CloseSession(_ context.Context, sessionID uint64, status string, at time.Time) error {
	for i := range t.m.sessions {
		if t.m.sessions[i].ID == sessionID {
			end := at
			t.m.sessions[i].Status = status
			t.m.sessions[i].EndedAt = &end
			return nil
		}
	}
	return ErrNotFound
}

func (t memoryTx) CloseAllSessions(_ context.Context, status string, at time.Time) (int64, error) {
	var n int64
	for i := range t.m.sessions {
		if t.m.sessions[i].Active() {
			end := at
			t.m.sessions[i].Status = status
			t.m.sessions[i].EndedAt = &end
			n++
		}
	}
	return n, nil
}

func (t memoryTx) DeactivateAllCodes(_ context.Context) (int64, error) {
	var n int64
	for i := range t.m.codes {
		if t.m.codes[i].IsActive {
			t.m.codes[i].IsActive = false
			n++
		}
	}
	return n, nil
}

func (t memoryTx) ResetAllPhysical(_ context.Context, at time.Time) error {
	for id := range t.m.physical {
		t.m.physical[id] = model.PhysicalState{SeatID: id, Status: model.PhysicalWaiting, UpdatedAt: at}
	}
	return nil
}

func (t memoryTx) PurgeHistory(_ context.Context) error {
	t.m.codes = nil
	t.m.sessions = nil
	return nil
}

func (t memoryTx) SetPhysical(_ context.Context, seatID uint64, status string, at time.Time) error {
	t.m.physical[seatID] = model.PhysicalState{SeatID: seatID, Status: status, UpdatedAt: at}
	return nil
}

func (t memoryTx) PendingSeatsExcept(_ context.Context, seatID uint64) ([]model.Seat, error) {
	var out []model.Seat
	for _, s := range t.m.seats {
		if s.ID == seatID {
			continue
		}
		if p, ok := t.m.physical[s.ID]; ok && p.Status == model.PhysicalPending {
			out = append(out, s)
		}
	}
	return out, nil
}

var _ Store = (*Memory)(nil)
