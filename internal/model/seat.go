package model

import "time"

// Seat describes a physical seat in the venue.  Seats are uniquely
// identified by their code, which is the row letter followed by the
// seat number (e.g. "A1").  Seats are provisioned once and never
// change afterwards.
//
// Fields:
//  ID         – primary key identifier.
//  Code       – public identifier (row letter + number).
//  RowLetter  – letter designating the row.
//  SeatNumber – number of the seat within the row.
//  IsVIP      – whether the seat belongs to the VIP section.
//  CreatedAt  – creation timestamp.
type Seat struct {
    ID         uint64    // seats.id
    Code       string    // seats.seat_code
    RowLetter  string    // seats.row_letter
    SeatNumber uint32    // seats.seat_number
    IsVIP      bool      // seats.is_vip
    CreatedAt  time.Time // seats.created_at
}
