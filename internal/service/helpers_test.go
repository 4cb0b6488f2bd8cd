package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-access/internal/broadcast"
	"github.com/iliyamo/cinema-seat-access/internal/database"
	"github.com/iliyamo/cinema-seat-access/internal/logger"
	"github.com/iliyamo/cinema-seat-access/internal/model"
	"github.com/iliyamo/cinema-seat-access/internal/store"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *testClock {
	return &testClock{t: time.Date(2025, 6, 1, 19, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []broadcast.Event
}

func (r *recorder) Publish(_ context.Context, ev broadcast.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) ofType(typ string) []broadcast.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []broadcast.Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type fakeBridge struct {
	mu        sync.Mutex
	connected bool
	sendErr   error
	sent      []string
	onSend    func(line string)
}

func (b *fakeBridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBridge) Send(line string) error {
	b.mu.Lock()
	if b.sendErr != nil {
		b.mu.Unlock()
		return b.sendErr
	}
	b.sent = append(b.sent, line)
	hook := b.onSend
	b.mu.Unlock()
	if hook != nil {
		hook(line)
	}
	return nil
}

func (b *fakeBridge) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sent...)
}

type mirrorCall struct {
	seat  string
	state string
}

type fakeMirror struct {
	mu    sync.Mutex
	calls []mirrorCall
}

func (m *fakeMirror) MirrorSeat(seatID, state string) {
	m.mu.Lock()
	m.calls = append(m.calls, mirrorCall{seatID, state})
	m.mu.Unlock()
}

func (m *fakeMirror) MirrorBound(state string) {
	m.MirrorSeat("*", state)
}

// sequence returns a generator yielding values in order, then repeating
// the last one.
func sequence(values ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		v := values[i]
		if i < len(values)-1 {
			i++
		}
		return v, nil
	}
}

type fixture struct {
	store  *store.Memory
	events *recorder
	clock  *testClock
	seats  *SeatService
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		store:  store.NewMemory(database.DefaultSeats()),
		events: &recorder{},
		clock:  newClock(),
	}
	opts.Now = f.clock.Now
	f.seats = NewSeatService(f.store, f.events, nil, logger.Discard(), opts)
	return f
}

func (f *fixture) seatState(t *testing.T, seatID string) model.SeatState {
	t.Helper()
	st, err := f.store.SeatState(context.Background(), seatID, f.clock.Now())
	require.NoError(t, err)
	return *st
}

func (f *fixture) occupy(t *testing.T, seatID string) string {
	t.Helper()
	ctx := context.Background()
	issued, err := f.seats.IssueCode(ctx, seatID)
	require.NoError(t, err)
	require.NoError(t, f.seats.ValidateCode(ctx, seatID, issued.Code, "10.0.0.1"))
	return issued.Code
}
