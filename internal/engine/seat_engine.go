package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SeatEngine is the sole owner of live seat state for every showtime.
// Durable stores (internal/booking, internal/payment) keep history and
// pricing; they never decide whether a seat is currently available
// (spec.md §9 Design Notes).
type SeatEngine struct {
	rt *Runtime
}

// NewSeatEngine wraps a Runtime with the six seat-reservation operations.
func NewSeatEngine(rt *Runtime) *SeatEngine {
	return &SeatEngine{rt: rt}
}

// Init seeds a showtime's seat hash and available counter. Called once
// when a show is created/published; re-running it against a showtime
// that already has live holds would stomp them, so callers must only
// call it against a freshly scheduled show.
func (e *SeatEngine) Init(ctx context.Context, showtimeID string, seats []SeatSeed, ttl time.Duration) error {
	if len(seats) == 0 {
		return fmt.Errorf("%w: seat list is empty", ErrInvalidInput)
	}
	seatsKey := SeatsKey(showtimeID)
	availKey := AvailableKey(showtimeID)

	pipe := e.rt.rdb.TxPipeline()
	for _, s := range seats {
		rec := seatRecord{Status: "available", SeatType: s.SeatType}
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		pipe.HSet(ctx, seatsKey, s.SeatID, string(raw))
	}
	pipe.Set(ctx, availKey, len(seats), ttl)
	pipe.Expire(ctx, seatsKey, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// BatchReserve atomically holds every seat in the request for the
// given booking, or holds none of them if any one seat is unavailable
// (spec.md §4.B batch-reserve, all-or-nothing semantics).
func (e *SeatEngine) BatchReserve(ctx context.Context, showtimeID, bookingID string, holdFor time.Duration, seats []SeatRequest) (*ReserveResult, error) {
	payload, err := json.Marshal(seats)
	if err != nil {
		return nil, err
	}
	raw, err := e.rt.run(ctx, "batch-reserve", e.rt.batchReserve,
		[]string{SeatsKey(showtimeID), AvailableKey(showtimeID)},
		bookingID, int64(holdFor/time.Second), string(payload))
	if err != nil {
		return nil, err
	}
	var decoded struct {
		invalidInputPayload
		ReserveResult
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, err
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, decoded.Message)
	}
	return &decoded.ReserveResult, nil
}

// ConfirmSeats atomically transitions held seats to booked, failing
// individually (not atomically) per seat so a partial confirmation can
// still succeed for the seats that are still validly held by this
// booking (spec.md §4.B confirm-seats).
func (e *SeatEngine) ConfirmSeats(ctx context.Context, showtimeID, bookingID string, seatIDs []string) (*ConfirmResult, error) {
	payload, err := json.Marshal(seatIDs)
	if err != nil {
		return nil, err
	}
	raw, err := e.rt.run(ctx, "confirm-seats", e.rt.confirmSeats,
		[]string{SeatsKey(showtimeID)}, bookingID, string(payload))
	if err != nil {
		return nil, err
	}
	var out ConfirmResult
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReleaseSeats atomically returns held seats to available, incrementing
// the counter once per seat actually released. reason is stored on the
// seat record for observability (e.g. "PAYMENT_FAILED", "CANCELLED").
func (e *SeatEngine) ReleaseSeats(ctx context.Context, showtimeID, bookingID string, seatIDs []string, reason string) (*ReleaseResult, error) {
	payload, err := json.Marshal(seatIDs)
	if err != nil {
		return nil, err
	}
	raw, err := e.rt.run(ctx, "release-seats", e.rt.releaseSeats,
		[]string{SeatsKey(showtimeID), AvailableKey(showtimeID)}, bookingID, string(payload), reason)
	if err != nil {
		return nil, err
	}
	var out ReleaseResult
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CleanupExpiredHolds scans a showtime's full seat hash and releases
// every hold past its held_until. Nothing in this module calls it on a
// schedule; the reaper releases expired bookings through ReleaseSeats,
// and get-seats-status reaps expired holds lazily per seat.
func (e *SeatEngine) CleanupExpiredHolds(ctx context.Context, showtimeID string) (*CleanupResult, error) {
	raw, err := e.rt.run(ctx, "cleanup-expired-holds", e.rt.cleanupExpiredHolds,
		[]string{SeatsKey(showtimeID), AvailableKey(showtimeID)})
	if err != nil {
		return nil, err
	}
	var out CleanupResult
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSeatsStatus returns the current state of seatIDs (or every seat
// when seatIDs is empty), lazily reaping any hold it notices has
// expired along the way so readers never observe a stale "held" seat
// that has already timed out.
func (e *SeatEngine) GetSeatsStatus(ctx context.Context, showtimeID string, seatIDs []string) (*StatusResult, error) {
	if seatIDs == nil {
		seatIDs = []string{}
	}
	payload, err := json.Marshal(seatIDs)
	if err != nil {
		return nil, err
	}
	raw, err := e.rt.run(ctx, "get-seats-status", e.rt.getSeatsStatus,
		[]string{SeatsKey(showtimeID), AvailableKey(showtimeID)}, string(payload))
	if err != nil {
		return nil, err
	}
	var out StatusResult
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExtendHold pushes held_until further into the future for seats still
// validly held by bookingID (spec.md §4.B extend-hold).
func (e *SeatEngine) ExtendHold(ctx context.Context, showtimeID, bookingID string, seatIDs []string, additional time.Duration) (*ExtendResult, error) {
	payload, err := json.Marshal(seatIDs)
	if err != nil {
		return nil, err
	}
	raw, err := e.rt.run(ctx, "extend-hold", e.rt.extendHold,
		[]string{SeatsKey(showtimeID)}, bookingID, string(payload), int64(additional/time.Second))
	if err != nil {
		return nil, err
	}
	var out ExtendResult
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
