package model

import "time"

// Session statuses.  Completed is used when a single seat is released,
// Ended when the whole venue is reset at once.
const (
    SessionActive    = "active"
    SessionCompleted = "completed"
    SessionEnded     = "ended"
)

// Session records one admitted occupancy of a seat.  It is opened by a
// successful code validation and closed by end-session or end-all.
// At most one session per seat may be active.
//
// Fields:
//  ID        – primary key identifier.
//  SeatID    – occupied seat.
//  CodeID    – access code that admitted the occupant.
//  Origin    – identity of the admitting client (usually its IP).
//  Status    – active, completed or ended.
//  StartedAt – when the code was validated.
//  EndedAt   – when the session was closed (nil while active).
type Session struct {
    ID        uint64     // seat_sessions.id
    SeatID    uint64     // seat_sessions.seat_id
    CodeID    uint64     // seat_sessions.code_id
    Origin    string     // seat_sessions.user_ip
    Status    string     // seat_sessions.status
    StartedAt time.Time  // seat_sessions.accessed_at
    EndedAt   *time.Time // seat_sessions.session_end (nullable)
}

// Active reports whether the session is still open.
func (s Session) Active() bool { return s.Status == SessionActive }

// DurationMinutes returns the whole minutes between the start of the
// session and its end, or now when the session is still open.
func (s Session) DurationMinutes(now time.Time) int64 {
    end := now
    if s.EndedAt != nil {
        end = *s.EndedAt
    }
    d := end.Sub(s.StartedAt)
    if d < 0 {
        return 0
    }
    return int64(d / time.Minute)
}

// SessionRecord is a history row: a session joined with the value of the
// code that admitted it.
type SessionRecord struct {
    Session
    CodeValue string
}
