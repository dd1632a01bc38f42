package booking

import "errors"

// ErrBookingNotFound indicates no booking row matched the lookup.
var ErrBookingNotFound = errors.New("booking: not found")

// ErrBookingCodeExhausted is returned when booking_code generation
// collided against the unique index more times than the bounded
// retry budget allows (spec.md §9 Open Question resolution: 5
// attempts before surfacing BOOKING_CODE_EXHAUSTED).
var ErrBookingCodeExhausted = errors.New("booking: booking_code generation exhausted retries")

// ErrIdempotencyKeyConflict is returned when Create's insert collides
// on the bookings.idempotency_key unique index rather than on
// booking_code — a second request raced past idempotency.Store's own
// check-then-insert window and reached the database first. Retrying
// with a new booking_code would never resolve this, so Create returns
// immediately instead of burning its booking_code retry budget.
var ErrIdempotencyKeyConflict = errors.New("booking: idempotency_key already exists")

const maxBookingCodeAttempts = 5
