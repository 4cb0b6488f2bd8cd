package model

import "time"

// Physical button states reported by the seat hardware.
const (
    PhysicalWaiting = "waiting"
    PhysicalPending = "pending"
)

// PhysicalState is the last raw button state reported for a seat.  It
// is independent from the logical status: a pending button does not
// mean the seat was admitted.
type PhysicalState struct {
    SeatID    uint64    // seat_physical_status.seat_id
    Status    string    // seat_physical_status.physical_status
    UpdatedAt time.Time // seat_physical_status.updated_at
}
