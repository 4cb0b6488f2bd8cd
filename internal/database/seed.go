package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/iliyamo/cinema-seat-access/internal/model"
	"github.com/iliyamo/cinema-seat-access/internal/repository"
)

// Seat map of the venue.
const (
	seatRows     = "ABCDE"
	seatsPerRow  = 10
	vipRow       = 'A'
	vipSeatsUpTo = 5
)

// DefaultSeats returns the venue layout: rows A to E with ten seats each,
// the first five seats of row A being VIP.
func DefaultSeats() []model.Seat {
	seats := make([]model.Seat, 0, len(seatRows)*seatsPerRow)
	for _, row := range seatRows {
		for n := 1; n <= seatsPerRow; n++ {
			seats = append(seats, model.Seat{
				Code:       string(row) + strconv.Itoa(n),
				RowLetter:  string(row),
				SeatNumber: uint32(n),
				IsVIP:      row == vipRow && n <= vipSeatsUpTo,
			})
		}
	}
	return seats
}

// Seed inserts the default seats when the seats table is empty and makes
// sure every seat has a physical state row.  It reports whether seats
// were inserted.
func Seed(ctx context.Context, db *sql.DB) (bool, error) {
	seats := repository.NewSeatRepo(db)
	n, err := seats.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count seats: %w", err)
	}
	inserted := false
	if n == 0 {
		if err := seats.CreateBulk(ctx, DefaultSeats()); err != nil {
			return false, fmt.Errorf("insert seats: %w", err)
		}
		inserted = true
	}
	if _, err := db.ExecContext(ctx, `INSERT IGNORE INTO seat_physical_status (seat_id, physical_status)
		SELECT id, 'waiting' FROM seats`); err != nil {
		return inserted, fmt.Errorf("init physical status: %w", err)
	}
	return inserted, nil
}
