// Package hardware talks to the seat controller board over a serial line.
// The board mirrors one seat at a time: it reports button presses for
// that seat and shows the seat status on its LEDs.
package hardware

import (
	"errors"
	"fmt"
	"strings"
)

// Inbound message kinds.
const (
	KindPressed    = "PRESSED"
	KindReleased   = "RELEASED"
	KindConfigured = "CONFIGURED"
)

// Seat states the board can display.
const (
	StateOccupied  = "OCCUPIED"
	StateAvailable = "AVAILABLE"
	StatePending   = "PENDING"
	StateWaiting   = "WAITING"
)

// ErrUnknownMessage is returned by ParseLine for lines that are not part
// of the protocol.
var ErrUnknownMessage = errors.New("hardware: unknown message")

// Message is one parsed inbound line.
type Message struct {
	Kind   string
	SeatID string
}

// ParseLine parses "SEAT:<id>:PRESSED", "SEAT:<id>:RELEASED" and
// "CONFIGURED:<id>".  Surrounding whitespace (including the CR that some
// boards send) is ignored.
func ParseLine(line string) (Message, error) {
	line = strings.TrimSpace(line)
	parts := strings.Split(line, ":")
	switch {
	case len(parts) == 3 && parts[0] == "SEAT" && parts[1] != "":
		switch parts[2] {
		case KindPressed, KindReleased:
			return Message{Kind: parts[2], SeatID: parts[1]}, nil
		}
	case len(parts) == 2 && parts[0] == KindConfigured && parts[1] != "":
		return Message{Kind: KindConfigured, SeatID: parts[1]}, nil
	}
	return Message{}, fmt.Errorf("%w: %q", ErrUnknownMessage, line)
}

// ConfigCommand asks the board to mirror seatID.
func ConfigCommand(seatID string) string {
	return "CONFIG:" + seatID
}

// StateCommand asks the board to display state for seatID.
func StateCommand(seatID, state string) string {
	return "SEAT:" + seatID + ":" + state
}
