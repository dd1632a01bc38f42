// Package booking implements the Booking Orchestrator: it validates a
// showtime, reserves seats through internal/engine, and owns the
// durable booking record's lifecycle under the idempotency guard
// (spec.md §4.D).
package booking

import "time"

// Booking statuses, per spec.md §3.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

// MaxSeatsPerBooking bounds how many seats one booking may hold,
// per spec.md §4.D.
const MaxSeatsPerBooking = 10

// Booking is the durable record of a user's intent to buy a set of
// seats for a showtime. Live hold/booked state is never duplicated
// here as authoritative — internal/engine owns that (spec.md §9
// Design Notes); Seats below is a point-in-time snapshot taken at
// hold time for display and payment total purposes.
type Booking struct {
	ID                 uint64
	BookingCode        string
	UserID             uint64
	ShowtimeID         uint64
	Seats              []BookingSeat
	TotalAmountCents   int64
	DiscountCents      int64
	FinalAmountCents   int64
	Currency           string
	Status             string
	HeldAt             time.Time
	HoldExpiresAt      time.Time
	ConfirmedAt        *time.Time
	CancelledAt        *time.Time
	CancellationReason string
	PaymentID          *uint64
	PartiallyConfirmed bool
	IdempotencyKey     string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// BookingSeat is one seat within a booking's seat snapshot.
type BookingSeat struct {
	BookingID  uint64
	SeatID     uint64
	SeatType   string
	PriceCents int64
}
