package model

import "time"

// Logical seat statuses.  They are never stored; LogicalStatusOf derives
// them from the session and code rows of a seat.
const (
    StatusAvailable = "available"
    StatusPurchased = "purchased"
    StatusOccupied  = "occupied"
)

// SeatState bundles everything known about one seat at a point in time:
// the seat itself, its open session and outstanding code (if any) and
// its physical button state.
type SeatState struct {
    Seat     Seat
    Session  *Session
    Code     *AccessCode
    Physical string
}

// LogicalStatusOf computes the status of a seat from its active session
// and its newest active code.  An active session wins over a code; a
// code only counts while it is redeemable at now.
func LogicalStatusOf(session *Session, code *AccessCode, now time.Time) string {
    if session != nil && session.Active() {
        return StatusOccupied
    }
    if code != nil && code.Redeemable(now) {
        return StatusPurchased
    }
    return StatusAvailable
}

// Status is a shortcut for LogicalStatusOf on the bundled rows.
func (s SeatState) Status(now time.Time) string {
    return LogicalStatusOf(s.Session, s.Code, now)
}
