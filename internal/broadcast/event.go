// Package broadcast fans seat events out to connected display clients.
// Delivery is at-most-once and unordered: every event carries the seat
// and its new status so a client can apply it last-write-wins, and a
// client that missed events reconciles by refetching GET /seats.
package broadcast

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types published by the service.
const (
	SeatOccupied         = "SeatOccupied"
	SeatReleased         = "SeatReleased"
	CodeIssued           = "CodeIssued"
	PhysicalStateChanged = "PhysicalStateChanged"
	ControllerBound      = "ControllerBound"
	AllSessionsEnded     = "AllSessionsEnded"
)

// Connection lifecycle and relay events produced by the hub itself.
const (
	Connected    = "Connected"
	ClientJoined = "ClientJoined"
	ClientLeft   = "ClientLeft"
	QRScanned    = "QRScanned"
)

// Event is the wire form of one state change.
type Event struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	SeatID         string         `json:"seatId,omitempty"`
	Status         string         `json:"status,omitempty"`
	PhysicalStatus string         `json:"physicalStatus,omitempty"`
	Code           string         `json:"code,omitempty"`
	ExpiresAt      *time.Time     `json:"expiresAt,omitempty"`
	Confirmed      *bool          `json:"confirmed,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// NewEvent stamps a fresh id and the current time.
func NewEvent(typ, seatID string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		SeatID:    seatID,
		Timestamp: time.Now().UTC(),
	}
}

// Publisher receives events.  Implementations must not block the caller
// for long and must not report delivery failures: broadcasting is best
// effort.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev Event)

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, ev Event) { f(ctx, ev) }

// Fanout forwards every event to each non-nil sink in order.
type Fanout []Publisher

// NewFanout drops nil sinks so optional outputs can be passed directly.
func NewFanout(sinks ...Publisher) Fanout {
	out := make(Fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, ev Event) {
	for _, s := range f {
		s.Publish(ctx, ev)
	}
}
