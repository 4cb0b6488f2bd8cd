package model

import "time"

// AccessCode is a short-lived, single-use credential that admits one
// occupant to one seat.  A code stops being usable when it is replaced
// (IsActive=false), consumed (IsUsed=true) or when ExpiresAt passes.
// Expiry is never written back to the row; use Expired to evaluate it.
//
// Fields:
//  ID        – primary key identifier.
//  SeatID    – seat the code admits to.
//  Value     – the 5 character code handed to the customer.
//  IsActive  – false once a newer code replaced it or the venue was reset.
//  IsUsed    – true once the code admitted an occupant.
//  ExpiresAt – end of the validity window.
//  UsedAt    – when the code was consumed (nil while unused).
//  CreatedAt – when the code was issued.
type AccessCode struct {
    ID        uint64     // seat_codes.id
    SeatID    uint64     // seat_codes.seat_id
    Value     string     // seat_codes.unique_code
    IsActive  bool       // seat_codes.is_active
    IsUsed    bool       // seat_codes.is_used
    ExpiresAt time.Time  // seat_codes.expires_at
    UsedAt    *time.Time // seat_codes.used_at (nullable)
    CreatedAt time.Time  // seat_codes.created_at
}

// Expired reports whether the code's validity window has passed at now.
func (c AccessCode) Expired(now time.Time) bool {
    return !now.Before(c.ExpiresAt)
}

// Redeemable reports whether the code still counts as the seat's
// outstanding purchase: active, unused and not expired.
func (c AccessCode) Redeemable(now time.Time) bool {
    return c.IsActive && !c.IsUsed && !c.Expired(now)
}
