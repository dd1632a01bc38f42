package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/camhoccode/seatflash/internal/apperr"
	"github.com/camhoccode/seatflash/internal/engine"
	"github.com/camhoccode/seatflash/internal/idempotency"
	"github.com/camhoccode/seatflash/internal/queue"
	"github.com/camhoccode/seatflash/internal/repository"
)

// SeatEngine is the subset of *engine.SeatEngine the orchestrator
// needs, narrowed so service tests can fake it (spec.md §4.D calls
// into B).
type SeatEngine interface {
	BatchReserve(ctx context.Context, showtimeID, bookingID string, holdFor time.Duration, seats []engine.SeatRequest) (*engine.ReserveResult, error)
	ConfirmSeats(ctx context.Context, showtimeID, bookingID string, seatIDs []string) (*engine.ConfirmResult, error)
	ReleaseSeats(ctx context.Context, showtimeID, bookingID string, seatIDs []string, reason string) (*engine.ReleaseResult, error)
}

// ShowtimeRepository resolves showtime metadata for hold validation
// (spec.md §4.D step 3). repository.ShowRepo satisfies this.
type ShowtimeRepository interface {
	GetByID(ctx context.Context, id uint64) (*repository.Show, error)
}

// PricingRepository resolves (seat_type, price) for a showtime's
// seats (spec.md §4.D step 4). repository.ShowSeatRepo satisfies this.
type PricingRepository interface {
	GetBySeatIDs(ctx context.Context, showID uint64, seatIDs []uint64) (map[uint64]repository.ShowSeat, error)
}

// EventPublisher notifies downstream consumers once a booking is
// confirmed or cancelled. *service.Publisher (internal/service/queue_publisher.go)
// satisfies this against RabbitMQ; nil disables publishing entirely,
// since it is a notification side effect, not part of the confirm
// transaction's correctness.
type EventPublisher interface {
	PublishBookingConfirmed(ctx context.Context, event queue.BookingConfirmedEvent) error
	PublishBookingCancelled(ctx context.Context, event queue.BookingCancelledEvent) error
}

// Service implements the Booking Orchestrator (spec.md §4.D).
type Service struct {
	repo      Repository
	idem      idempotency.Repository
	engine    SeatEngine
	shows     ShowtimeRepository
	pricing   PricingRepository
	holdFor   time.Duration
	maxSeats  int
	publisher EventPublisher
}

// NewService wires the Booking Orchestrator's collaborators. maxSeats
// of 0 falls back to MaxSeatsPerBooking, the spec.md §9 default.
func NewService(repo Repository, idem idempotency.Repository, eng SeatEngine, shows ShowtimeRepository, pricing PricingRepository, holdFor time.Duration, maxSeats int) *Service {
	if maxSeats <= 0 {
		maxSeats = MaxSeatsPerBooking
	}
	return &Service{repo: repo, idem: idem, engine: eng, shows: shows, pricing: pricing, holdFor: holdFor, maxSeats: maxSeats}
}

// WithPublisher attaches an EventPublisher, enabling the
// booking.confirmed notification fired from ConfirmSeatsAfterPayment
// and the booking.cancelled notification fired from
// ReleaseSeatsAfterPaymentFailure and CancelBooking.
func (s *Service) WithPublisher(p EventPublisher) *Service {
	s.publisher = p
	return s
}

// HoldSeatsRequest is the input to hold-seats.
type HoldSeatsRequest struct {
	ShowtimeID uint64   `json:"showtime_id"`
	SeatIDs    []uint64 `json:"seat_ids"`
}

// HoldSeatsResponse is the response cached under the idempotency key
// and returned to the client (spec.md §6 HoldSeatsResponse).
type HoldSeatsResponse struct {
	BookingID        uint64        `json:"booking_id"`
	BookingCode      string        `json:"booking_code"`
	Status           string        `json:"status"`
	Seats            []BookingSeat `json:"seats"`
	TotalAmountCents int64         `json:"total_amount_cents"`
	FinalAmountCents int64         `json:"final_amount_cents"`
	Currency         string        `json:"currency"`
	HoldExpiresAt    time.Time     `json:"hold_expires_at"`
}

func seatIDStrings(ids []uint64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatUint(id, 10)
	}
	return out
}

// HoldSeats implements spec.md §4.D hold-seats' 10-step sequence.
func (s *Service) HoldSeats(ctx context.Context, userID uint64, idempotencyKey string, req HoldSeatsRequest) (*HoldSeatsResponse, *apperr.AppError) {
	if len(req.SeatIDs) == 0 || len(req.SeatIDs) > s.maxSeats {
		return nil, apperr.Validation("VALIDATION", fmt.Sprintf("seats must contain between 1 and %d entries", s.maxSeats), nil)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperr.Internal("INTERNAL", err.Error())
	}
	hash, err := idempotency.CanonicalHash(body)
	if err != nil {
		return nil, apperr.Internal("INTERNAL", err.Error())
	}

	// Step 1: consult the idempotency cache.
	check, err := s.idem.Check(ctx, idempotencyKey, userID, "/v1/bookings/hold", hash, idempotency.ResourceBooking)
	if err != nil {
		if err == idempotency.ErrKeyReusedDifferentBody {
			return nil, apperr.Validation("KEY_REUSED_DIFFERENT_BODY", "idempotency key reused with a different request body", nil)
		}
		if err == idempotency.ErrRequestInFlight {
			return nil, apperr.Conflict("REQUEST_IN_FLIGHT", "a request with this idempotency key is already in flight", nil)
		}
		return nil, apperr.Internal("INTERNAL", err.Error())
	}
	if !check.New {
		if check.CachedStatus < 400 {
			var cached HoldSeatsResponse
			if jerr := json.Unmarshal(check.CachedBody, &cached); jerr == nil {
				return &cached, nil
			}
		}
		return nil, apperr.As(decodeCachedFailure(check.CachedStatus, check.CachedBody))
	}

	// Step 2: durable cross-check in case the idempotency cache itself
	// was evicted but the booking already exists.
	if existing, err := s.repo.GetByIdempotencyKey(ctx, idempotencyKey); err == nil {
		resp := toHoldResponse(existing)
		return resp, nil
	} else if err != ErrBookingNotFound {
		return nil, apperr.Internal("INTERNAL", err.Error())
	}

	resp, appErr := s.doHold(ctx, userID, idempotencyKey, req)
	if appErr != nil {
		failBody, _ := json.Marshal(appErr)
		_ = s.idem.Fail(ctx, idempotencyKey, userID, appErr.Message, appErr.HTTPStatus, failBody)
		return nil, appErr
	}

	respBody, _ := json.Marshal(resp)
	_ = s.idem.Complete(ctx, idempotencyKey, userID, 201, respBody, strPtr(strconv.FormatUint(resp.BookingID, 10)))
	return resp, nil
}

func (s *Service) doHold(ctx context.Context, userID uint64, idempotencyKey string, req HoldSeatsRequest) (*HoldSeatsResponse, *apperr.AppError) {
	// Step 3: validate showtime.
	show, err := s.shows.GetByID(ctx, req.ShowtimeID)
	if err != nil {
		if err == repository.ErrShowNotFound {
			return nil, apperr.NotFound("SHOWTIME_NOT_FOUND", "showtime not found")
		}
		return nil, apperr.Internal("INTERNAL", err.Error())
	}
	if show.Status != "SCHEDULED" {
		return nil, apperr.Precondition("SHOWTIME_NOT_AVAILABLE", "showtime is not available")
	}
	startsAt, perr := time.Parse("2006-01-02 15:04:05", show.StartsAt)
	if perr == nil && !startsAt.After(time.Now().UTC()) {
		return nil, apperr.Precondition("SHOWTIME_ALREADY_STARTED", "showtime has already started")
	}

	// Step 4: resolve pricing/type for every requested seat.
	priced, err := s.pricing.GetBySeatIDs(ctx, req.ShowtimeID, req.SeatIDs)
	if err != nil {
		return nil, apperr.Internal("INTERNAL", err.Error())
	}
	seats := make([]BookingSeat, 0, len(req.SeatIDs))
	var totalCents int64
	for _, id := range req.SeatIDs {
		ss, ok := priced[id]
		if !ok {
			return nil, apperr.Validation("INVALID_SEAT", "one or more seats are not part of this showtime", map[string]any{"seat_id": id})
		}
		seats = append(seats, BookingSeat{SeatID: id, SeatType: ss.SeatType, PriceCents: int64(ss.PriceCents)})
		totalCents += int64(ss.PriceCents)
	}

	// Step 5: pre-mint booking_id via the eventual MySQL auto-increment
	// is not available before insert, so the engine's booking_id is a
	// synthetic token derived from the idempotency key — stable across
	// retries of this same call, and unique across distinct holds.
	bookingToken := "hold:" + idempotencyKey
	showtimeKey := strconv.FormatUint(req.ShowtimeID, 10)
	engineSeats := make([]engine.SeatRequest, len(seats))
	for i, bs := range seats {
		engineSeats[i] = engine.SeatRequest{SeatID: strconv.FormatUint(bs.SeatID, 10), SeatType: bs.SeatType}
	}

	reserve, err := s.engine.BatchReserve(ctx, showtimeKey, bookingToken, s.holdFor, engineSeats)
	if err != nil {
		return nil, apperr.Internal("INTERNAL", err.Error())
	}
	// Step 6: engine failure surfaces the unavailable list.
	if !reserve.Success {
		return nil, apperr.Conflict("SEATS_NOT_AVAILABLE", "one or more seats are no longer available", reserve.Unavailable)
	}

	// Step 7: compute totals and booking_code (booking_code minted
	// inside Create with its own retry budget).
	now := time.Now().UTC()
	b := &Booking{
		UserID: userID, ShowtimeID: req.ShowtimeID, Seats: seats,
		TotalAmountCents: totalCents, DiscountCents: 0, FinalAmountCents: totalCents,
		Currency: "VND", HeldAt: now, HoldExpiresAt: now.Add(s.holdFor),
		IdempotencyKey: idempotencyKey,
	}

	// Step 8: persist.
	if err := s.repo.Create(ctx, b); err != nil {
		// Step 9: compensate.
		_, _ = s.engine.ReleaseSeats(ctx, showtimeKey, bookingToken, seatIDStrings(req.SeatIDs), "BOOKING_PERSIST_FAILED")
		// A losing race against another request for the same
		// idempotency key (past Check's own window) is a conflict to
		// retry client-side, not a server fault.
		if errors.Is(err, ErrIdempotencyKeyConflict) {
			return nil, apperr.Conflict("REQUEST_IN_FLIGHT", "a request with this idempotency key is already being processed", nil)
		}
		return nil, apperr.Internal("BOOKING_PERSIST_FAILED", err.Error())
	}

	return toHoldResponse(b), nil
}

func toHoldResponse(b *Booking) *HoldSeatsResponse {
	return &HoldSeatsResponse{
		BookingID: b.ID, BookingCode: b.BookingCode, Status: b.Status, Seats: b.Seats,
		TotalAmountCents: b.TotalAmountCents, FinalAmountCents: b.FinalAmountCents,
		Currency: b.Currency, HoldExpiresAt: b.HoldExpiresAt,
	}
}

// bookingToken reconstructs the engine booking_id used at hold time
// from the durable record's idempotency key, so later confirm/release
// calls address the exact same engine-side holds.
func bookingToken(b *Booking) string {
	return "hold:" + b.IdempotencyKey
}

// ConfirmSeatsAfterPayment implements spec.md §4.D
// confirm-seats-after-payment, called by internal/payment on gateway
// success.
func (s *Service) ConfirmSeatsAfterPayment(ctx context.Context, bookingID uint64) error {
	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		if err == ErrBookingNotFound {
			return nil
		}
		return err
	}
	showtimeKey := strconv.FormatUint(b.ShowtimeID, 10)
	seatIDs := make([]string, len(b.Seats))
	for i, bs := range b.Seats {
		seatIDs[i] = strconv.FormatUint(bs.SeatID, 10)
	}
	result, err := s.engine.ConfirmSeats(ctx, showtimeKey, bookingToken(b), seatIDs)
	if err != nil {
		return err
	}
	partial := len(result.Failed) > 0
	if err := s.repo.MarkConfirmed(ctx, b.ID, partial); err != nil {
		return err
	}
	if s.publisher != nil {
		confirmedSeatIDs := seatIDs
		if partial {
			confirmedSeatIDs = result.Confirmed
		}
		_ = s.publisher.PublishBookingConfirmed(ctx, queue.BookingConfirmedEvent{
			BookingID: b.ID, BookingCode: b.BookingCode, UserID: b.UserID, ShowtimeID: b.ShowtimeID,
			SeatIDs: confirmedSeatIDs, TotalAmountCents: b.FinalAmountCents, Currency: b.Currency,
			PartiallyConfirmed: partial, ConfirmedAt: time.Now().UTC().Format(time.RFC3339),
		})
	}
	return nil
}

// ReleaseSeatsAfterPaymentFailure implements spec.md §4.D
// release-seats-after-payment-failure.
func (s *Service) ReleaseSeatsAfterPaymentFailure(ctx context.Context, bookingID uint64) error {
	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		if err == ErrBookingNotFound {
			return nil
		}
		return err
	}
	showtimeKey := strconv.FormatUint(b.ShowtimeID, 10)
	seatIDs := make([]string, len(b.Seats))
	for i, bs := range b.Seats {
		seatIDs[i] = strconv.FormatUint(bs.SeatID, 10)
	}
	if _, err := s.engine.ReleaseSeats(ctx, showtimeKey, bookingToken(b), seatIDs, "PAYMENT_FAILED"); err != nil {
		return err
	}
	if err := s.repo.MarkCancelled(ctx, b.ID, "Payment failed"); err != nil {
		return err
	}
	if s.publisher != nil {
		_ = s.publisher.PublishBookingCancelled(ctx, queue.BookingCancelledEvent{
			BookingID: b.ID, BookingCode: b.BookingCode, UserID: b.UserID, ShowtimeID: b.ShowtimeID,
			SeatIDs: seatIDs, Reason: "Payment failed", CancelledAt: time.Now().UTC().Format(time.RFC3339),
		})
	}
	return nil
}

// CancelBooking implements spec.md §4.D cancel-booking: only allowed
// while pending, only by the owning user.
func (s *Service) CancelBooking(ctx context.Context, bookingID, userID uint64) (*Booking, *apperr.AppError) {
	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		if err == ErrBookingNotFound {
			return nil, apperr.NotFound("BOOKING_NOT_FOUND", "booking not found")
		}
		return nil, apperr.Internal("INTERNAL", err.Error())
	}
	if b.UserID != userID {
		return nil, apperr.Forbidden("BOOKING_NOT_OWNED", "booking does not belong to this user")
	}
	if b.Status != StatusPending {
		return nil, apperr.Precondition("BOOKING_CANNOT_BE_CANCELLED", "only a pending booking can be cancelled")
	}

	showtimeKey := strconv.FormatUint(b.ShowtimeID, 10)
	seatIDs := make([]string, len(b.Seats))
	for i, bs := range b.Seats {
		seatIDs[i] = strconv.FormatUint(bs.SeatID, 10)
	}
	if _, err := s.engine.ReleaseSeats(ctx, showtimeKey, bookingToken(b), seatIDs, "CANCELLED"); err != nil {
		return nil, apperr.Internal("INTERNAL", err.Error())
	}

	if err := s.repo.MarkCancelled(ctx, b.ID, "Cancelled by user"); err != nil {
		return nil, apperr.Internal("INTERNAL", err.Error())
	}
	if s.publisher != nil {
		_ = s.publisher.PublishBookingCancelled(ctx, queue.BookingCancelledEvent{
			BookingID: b.ID, BookingCode: b.BookingCode, UserID: b.UserID, ShowtimeID: b.ShowtimeID,
			SeatIDs: seatIDs, Reason: "Cancelled by user", CancelledAt: time.Now().UTC().Format(time.RFC3339),
		})
	}

	b.Status = StatusCancelled
	return b, nil
}

// GetBooking implements spec.md §4.D get-booking: only the owner may view.
func (s *Service) GetBooking(ctx context.Context, bookingID, userID uint64) (*Booking, *apperr.AppError) {
	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		if err == ErrBookingNotFound {
			return nil, apperr.NotFound("BOOKING_NOT_FOUND", "booking not found")
		}
		return nil, apperr.Internal("INTERNAL", err.Error())
	}
	if b.UserID != userID {
		return nil, apperr.Forbidden("BOOKING_NOT_OWNED", "booking does not belong to this user")
	}
	return b, nil
}

func strPtr(s string) *string { return &s }

func decodeCachedFailure(statusCode int, body []byte) error {
	var e apperr.AppError
	if err := json.Unmarshal(body, &e); err != nil {
		return apperr.Internal("INTERNAL", "failed to decode cached idempotency failure")
	}
	e.HTTPStatus = statusCode
	return &e
}
