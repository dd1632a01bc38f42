package engine

import "fmt"

// SeatsKey returns the field-addressable hash holding one JSON seat
// record per seat_id for a showtime (spec.md §4.B).
func SeatsKey(showtimeID string) string {
	return fmt.Sprintf("seats:%s", showtimeID)
}

// AvailableKey returns the integer counter of currently available
// seats for a showtime. The counter is a hint; the seats hash is the
// source of truth (spec.md §3).
func AvailableKey(showtimeID string) string {
	return fmt.Sprintf("available:%s", showtimeID)
}
