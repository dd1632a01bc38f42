// Package queue defines message payloads and topology exchanged over
// the message broker: a single topic exchange carrying every booking
// lifecycle transition, distinguished by routing key rather than by a
// field inside the payload, so a consumer can filter by binding
// pattern instead of by unmarshalling every message first.
package queue

// ExchangeName is the topic exchange every booking lifecycle event is
// published to. Bindings select events by routing key, e.g.
// "booking.#" for the audit log, "booking.confirmed" for a narrower
// notification consumer.
const ExchangeName = "seatflash.bookings"

// Routing keys for the booking lifecycle events below.
const (
	RoutingKeyBookingConfirmed = "booking.confirmed"
	RoutingKeyBookingExpired   = "booking.expired"
	RoutingKeyBookingCancelled = "booking.cancelled"
)

// BookingConfirmedEvent is published when a booking is successfully
// confirmed by the payment webhook reconciler. It carries enough
// information for downstream consumers to log, notify, or trigger
// analytics without querying the primary database.
type BookingConfirmedEvent struct {
	BookingID          uint64   `json:"booking_id"`
	BookingCode        string   `json:"booking_code"`
	UserID             uint64   `json:"user_id"`
	ShowtimeID         uint64   `json:"showtime_id"`
	SeatIDs            []string `json:"seat_ids"`
	TotalAmountCents   int64    `json:"total_amount_cents"`
	Currency           string   `json:"currency"`
	PartiallyConfirmed bool     `json:"partially_confirmed"`
	ConfirmedAt        string   `json:"confirmed_at"`
}

// BookingExpiredEvent is published by the Expiry Reaper when a
// pending booking's hold lapses unpaid and its seats are released
// back to the available pool (spec.md §4.F).
type BookingExpiredEvent struct {
	BookingID   uint64   `json:"booking_id"`
	BookingCode string   `json:"booking_code"`
	UserID      uint64   `json:"user_id"`
	ShowtimeID  uint64   `json:"showtime_id"`
	SeatIDs     []string `json:"seat_ids"`
	ExpiredAt   string   `json:"expired_at"`
}

// BookingCancelledEvent is published when a booking leaves the
// pending state without payment succeeding, either because the user
// cancelled it directly or because the payment gateway reported
// failure (spec.md §4.D cancel-booking / release-seats-after-payment-failure).
type BookingCancelledEvent struct {
	BookingID   uint64   `json:"booking_id"`
	BookingCode string   `json:"booking_code"`
	UserID      uint64   `json:"user_id"`
	ShowtimeID  uint64   `json:"showtime_id"`
	SeatIDs     []string `json:"seat_ids"`
	Reason      string   `json:"reason"`
	CancelledAt string   `json:"cancelled_at"`
}
