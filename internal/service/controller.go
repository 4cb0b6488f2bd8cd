package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iliyamo/cinema-seat-access/internal/broadcast"
	"github.com/iliyamo/cinema-seat-access/internal/hardware"
	"github.com/iliyamo/cinema-seat-access/internal/logger"
	"github.com/iliyamo/cinema-seat-access/internal/model"
	"github.com/iliyamo/cinema-seat-access/internal/store"
)

// Binding states of the controller.
const (
	StateUnbound       = "unbound"
	StateBindRequested = "bind_requested"
	StateBound         = "bound"
)

// Bridge is the link to the controller board.  hardware.Bridge
// implements it.
type Bridge interface {
	Connected() bool
	Send(line string) error
}

// Binding is a snapshot of the controller state.  Confirmed is true once
// the board acknowledged the seat; a bound but unconfirmed binding runs
// in local mode.
type Binding struct {
	SeatID    string `json:"seatId"`
	State     string `json:"state"`
	Confirmed bool   `json:"confirmed"`
}

// ControllerOptions tunes a Controller.
type ControllerOptions struct {
	SettleDelay time.Duration
	AckTimeout  time.Duration
	Now         func() time.Time
}

// Controller arbitrates the single physical controller: one seat at a
// time is bound to the board and only that seat's button events are
// accepted.
type Controller struct {
	store  store.Store
	events broadcast.Publisher
	bridge Bridge
	log    *logger.Logger
	now    func() time.Time
	settle time.Duration
	ackTTL time.Duration

	// physMu serializes the binding check with the physical state write
	// so a rebind cannot interleave with an event for the old seat.
	physMu sync.Mutex

	mu          sync.Mutex
	state       string
	seat        string
	confirmed   bool
	gen         uint64
	ackTimer    *time.Timer
	settleTimer *time.Timer
}

// NewController builds an unbound controller.  bridge may be nil, in
// which case every binding runs in local mode.
func NewController(st store.Store, events broadcast.Publisher, bridge Bridge, log *logger.Logger, opts ControllerOptions) *Controller {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 400 * time.Millisecond
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if events == nil {
		events = broadcast.NewFanout()
	}
	return &Controller{
		store:  st,
		events: events,
		bridge: bridge,
		log:    log.Component("controller"),
		now:    opts.Now,
		settle: opts.SettleDelay,
		ackTTL: opts.AckTimeout,
		state:  StateUnbound,
	}
}

// Current returns the binding.
func (c *Controller) Current() Binding {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bindingLocked()
}

func (c *Controller) bindingLocked() Binding {
	return Binding{SeatID: c.seat, State: c.state, Confirmed: c.confirmed}
}

// Reset drops the binding and cancels pending timers.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimersLocked()
	c.gen++
	c.state = StateUnbound
	c.seat = ""
	c.confirmed = false
}

func (c *Controller) stopTimersLocked() {
	if c.ackTimer != nil {
		c.ackTimer.Stop()
		c.ackTimer = nil
	}
	if c.settleTimer != nil {
		c.settleTimer.Stop()
		c.settleTimer = nil
	}
}

// Bind points the controller at seatID.  Buttons of other seats left in
// pending are reset to waiting.  Without a working board the seat is
// bound immediately in local mode.
func (c *Controller) Bind(ctx context.Context, seatID string) (Binding, error) {
	seat, err := c.store.SeatByCode(ctx, seatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Binding{}, ErrNotFound
		}
		return Binding{}, storageError("bind", err)
	}

	c.physMu.Lock()
	now := c.now()
	var reset []model.Seat
	err = c.store.InTx(ctx, func(tx store.Tx) error {
		pending, err := tx.PendingSeatsExcept(ctx, seat.ID)
		if err != nil {
			return err
		}
		for _, p := range pending {
			if err := tx.SetPhysical(ctx, p.ID, model.PhysicalWaiting, now); err != nil {
				return err
			}
		}
		reset = pending
		return nil
	})
	if err != nil {
		c.physMu.Unlock()
		return Binding{}, storageError("bind", err)
	}

	c.mu.Lock()
	c.stopTimersLocked()
	c.gen++
	gen := c.gen
	c.state = StateBindRequested
	c.seat = seat.Code
	c.confirmed = false
	c.mu.Unlock()
	c.physMu.Unlock()

	for _, p := range reset {
		ev := broadcast.NewEvent(broadcast.PhysicalStateChanged, p.Code)
		ev.PhysicalStatus = model.PhysicalWaiting
		c.events.Publish(ctx, ev)
	}

	if err := c.sendConfig(seat.Code); err != nil {
		c.log.WithSeat(seat.Code).WithError(err).Warn("controller unreachable, binding in local mode")
		return c.bindLocal(ctx, gen), nil
	}

	c.mu.Lock()
	if c.gen == gen && c.state == StateBindRequested {
		c.ackTimer = time.AfterFunc(c.ackTTL, func() { c.ackTimeout(gen) })
	}
	b := c.bindingLocked()
	c.mu.Unlock()
	c.log.WithSeat(seat.Code).Info("bind requested")
	return b, nil
}

func (c *Controller) sendConfig(seatID string) error {
	if c.bridge == nil || !c.bridge.Connected() {
		return ErrHardwareUnavailable
	}
	if err := c.bridge.Send(hardware.ConfigCommand(seatID)); err != nil {
		return fmt.Errorf("%w: %w", ErrHardwareUnavailable, err)
	}
	return nil
}

// bindLocal completes binding generation gen without the board.
func (c *Controller) bindLocal(ctx context.Context, gen uint64) Binding {
	c.mu.Lock()
	if c.gen != gen || c.state != StateBindRequested {
		b := c.bindingLocked()
		c.mu.Unlock()
		return b
	}
	c.state = StateBound
	c.confirmed = false
	b := c.bindingLocked()
	c.mu.Unlock()

	c.publishBound(ctx, b)
	return b
}

func (c *Controller) ackTimeout(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateBindRequested {
		c.mu.Unlock()
		return
	}
	c.ackTimer = nil
	seat := c.seat
	c.mu.Unlock()

	c.log.WithSeat(seat).Warn("no acknowledgement from controller, binding in local mode", "timeout", c.ackTTL.String())
	c.bindLocal(context.Background(), gen)
}

func (c *Controller) publishBound(ctx context.Context, b Binding) {
	ev := broadcast.NewEvent(broadcast.ControllerBound, b.SeatID)
	confirmed := b.Confirmed
	ev.Confirmed = &confirmed
	c.events.Publish(ctx, ev)
}

// HandleBridgeLine processes one line received from the board.
func (c *Controller) HandleBridgeLine(line string) {
	msg, err := hardware.ParseLine(line)
	if err != nil {
		c.log.Debug("ignoring controller line", "error", err)
		return
	}
	ctx := context.Background()
	switch msg.Kind {
	case hardware.KindConfigured:
		c.confirm(ctx, msg.SeatID)
	case hardware.KindPressed, hardware.KindReleased:
		if err := c.HandlePhysicalEvent(ctx, msg.SeatID, msg.Kind); err != nil {
			if errors.Is(err, ErrConflict) {
				c.log.WithSeat(msg.SeatID).Debug("dropping event for unbound seat", "kind", msg.Kind)
				return
			}
			c.log.WithSeat(msg.SeatID).WithError(err).Error("physical event failed")
		}
	}
}

// confirm handles a CONFIGURED acknowledgement.  Acks for any seat other
// than the binding target are ignored.
func (c *Controller) confirm(ctx context.Context, seatID string) {
	c.mu.Lock()
	if c.state == StateUnbound || c.seat != seatID || c.confirmed {
		c.mu.Unlock()
		c.log.WithSeat(seatID).Debug("ignoring stale acknowledgement")
		return
	}
	if c.ackTimer != nil {
		c.ackTimer.Stop()
		c.ackTimer = nil
	}
	c.state = StateBound
	c.confirmed = true
	gen := c.gen
	c.settleTimer = time.AfterFunc(c.settle, func() { c.reassert(gen) })
	b := c.bindingLocked()
	c.mu.Unlock()

	c.log.WithSeat(seatID).Info("controller bound")
	c.publishBound(ctx, b)
}

// reassert sends the current state of the bound seat once the board has
// settled after configuration.
func (c *Controller) reassert(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateBound {
		c.mu.Unlock()
		return
	}
	c.settleTimer = nil
	seat := c.seat
	c.mu.Unlock()

	now := c.now()
	st, err := c.store.SeatState(context.Background(), seat, now)
	if err != nil {
		c.log.WithSeat(seat).WithError(err).Warn("reading seat for controller failed")
		return
	}
	c.MirrorSeat(seat, deviceState(*st, now))
}

// deviceState picks what the board should display for a seat.
func deviceState(st model.SeatState, now time.Time) string {
	switch {
	case st.Status(now) == model.StatusOccupied:
		return hardware.StateOccupied
	case st.Physical == model.PhysicalPending:
		return hardware.StatePending
	default:
		return hardware.StateAvailable
	}
}

// HandlePhysicalEvent records a button press or release.  Events for any
// seat other than the binding target return ErrConflict and change
// nothing.
func (c *Controller) HandlePhysicalEvent(ctx context.Context, seatID, kind string) error {
	var status string
	switch kind {
	case hardware.KindPressed:
		status = model.PhysicalPending
	case hardware.KindReleased:
		status = model.PhysicalWaiting
	default:
		return fmt.Errorf("unknown physical event %q", kind)
	}

	c.physMu.Lock()
	c.mu.Lock()
	// the target counts from the bind request on, so a press made while
	// the board is still acknowledging is not lost
	target := c.seat
	bound := c.state != StateUnbound
	c.mu.Unlock()
	if !bound || target != seatID {
		c.physMu.Unlock()
		return ErrConflict
	}

	err := c.store.InTx(ctx, func(tx store.Tx) error {
		seat, err := tx.LockSeat(ctx, seatID)
		if err != nil {
			return err
		}
		return tx.SetPhysical(ctx, seat.ID, status, c.now())
	})
	c.physMu.Unlock()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return storageError("physical event", err)
	}

	c.log.WithSeat(seatID).Info("physical state changed", "status", status)
	ev := broadcast.NewEvent(broadcast.PhysicalStateChanged, seatID)
	ev.PhysicalStatus = status
	c.events.Publish(ctx, ev)
	return nil
}

// MirrorSeat shows state on the board when seatID is the bound seat.
func (c *Controller) MirrorSeat(seatID, state string) {
	c.mu.Lock()
	bound := c.state != StateUnbound && c.seat == seatID
	c.mu.Unlock()
	if bound {
		c.send(seatID, state)
	}
}

// MirrorBound shows state for whichever seat is bound.
func (c *Controller) MirrorBound(state string) {
	c.mu.Lock()
	seat := c.seat
	bound := c.state != StateUnbound
	c.mu.Unlock()
	if bound {
		c.send(seat, state)
	}
}

func (c *Controller) send(seatID, state string) {
	if c.bridge == nil || !c.bridge.Connected() {
		c.log.WithSeat(seatID).Debug("controller offline, state not mirrored", "state", state)
		return
	}
	if err := c.bridge.Send(hardware.StateCommand(seatID, state)); err != nil {
		c.log.WithSeat(seatID).WithError(fmt.Errorf("%w: %w", ErrHardwareUnavailable, err)).Warn("mirroring seat state failed")
	}
}

var _ DeviceMirror = (*Controller)(nil)
