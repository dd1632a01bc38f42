// Package reaper implements the Expiry Reaper: a cooperative,
// single-runner-per-process ticker that sweeps bookings whose hold
// has passed and never got paid (spec.md §4.F). Structurally grounded
// on the teacher's queue.StartBookingConsumer reconnect/backoff idiom
// (internal/queue/consumer.go) — a ticker stands in for the AMQP
// consumer, and the same "log and continue" discipline applies to
// per-booking errors so one bad row never stalls the sweep.
package reaper

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/camhoccode/seatflash/internal/booking"
	"github.com/camhoccode/seatflash/internal/engine"
	"github.com/camhoccode/seatflash/internal/queue"
)

// SeatEngine is the subset of *engine.SeatEngine the reaper needs to
// release seats directly, independent of booking.Service (the reaper
// sweeps a potentially large batch and does not go through the
// idempotency-guarded orchestrator entry points).
type SeatEngine interface {
	ReleaseSeats(ctx context.Context, showtimeID, bookingID string, seatIDs []string, reason string) (*engine.ReleaseResult, error)
}

// Repository is the subset of booking.Repository the reaper needs.
type Repository interface {
	ListExpiredPending(ctx context.Context, before time.Time) ([]booking.Booking, error)
	MarkExpired(ctx context.Context, id uint64) error
}

// EventPublisher notifies downstream consumers once a booking's hold
// has expired. *service.Publisher satisfies this; nil disables
// publishing entirely, since it is a notification side effect, not
// part of the sweep's correctness.
type EventPublisher interface {
	PublishBookingExpired(ctx context.Context, event queue.BookingExpiredEvent) error
}

// Reaper sweeps expired pending bookings once per period.
type Reaper struct {
	repo      Repository
	engine    SeatEngine
	period    time.Duration
	log       *zap.Logger
	publisher EventPublisher
}

// New constructs a Reaper.
func New(repo Repository, eng SeatEngine, period time.Duration, log *zap.Logger) *Reaper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reaper{repo: repo, engine: eng, period: period, log: log}
}

// WithPublisher attaches an EventPublisher, enabling the
// booking.expired notification fired from each swept booking.
func (r *Reaper) WithPublisher(p EventPublisher) *Reaper {
	r.publisher = p
	return r
}

// Run ticks every period until ctx is cancelled, sweeping expired
// bookings on each tick. Per-booking errors are logged and the loop
// continues (spec.md §4.F step 3).
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := r.SweepOnce(ctx)
			if err != nil {
				r.log.Error("reaper: sweep failed", zap.Error(err))
				continue
			}
			if swept > 0 {
				r.log.Info("reaper: swept expired bookings", zap.Int("count", swept))
			}
		}
	}
}

// SweepOnce releases and expires every pending booking whose hold has
// passed as of now (spec.md §4.F steps 1-2).
func (r *Reaper) SweepOnce(ctx context.Context) (int, error) {
	expired, err := r.repo.ListExpiredPending(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, b := range expired {
		if err := r.sweepOne(ctx, b); err != nil {
			r.log.Error("reaper: booking sweep failed", zap.Uint64("booking_id", b.ID), zap.Error(err))
			continue
		}
		swept++
	}
	return swept, nil
}

func (r *Reaper) sweepOne(ctx context.Context, b booking.Booking) error {
	showtimeKey := strconv.FormatUint(b.ShowtimeID, 10)
	bookingToken := "hold:" + b.IdempotencyKey
	seatIDs := make([]string, len(b.Seats))
	for i, bs := range b.Seats {
		seatIDs[i] = strconv.FormatUint(bs.SeatID, 10)
	}
	if _, err := r.engine.ReleaseSeats(ctx, showtimeKey, bookingToken, seatIDs, "Hold expired"); err != nil {
		return err
	}
	if err := r.repo.MarkExpired(ctx, b.ID); err != nil {
		return err
	}
	if r.publisher != nil {
		_ = r.publisher.PublishBookingExpired(ctx, queue.BookingExpiredEvent{
			BookingID: b.ID, BookingCode: b.BookingCode, UserID: b.UserID, ShowtimeID: b.ShowtimeID,
			SeatIDs: seatIDs, ExpiredAt: time.Now().UTC().Format(time.RFC3339),
		})
	}
	return nil
}
