package reaper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/camhoccode/seatflash/internal/booking"
	"github.com/camhoccode/seatflash/internal/engine"
)

type fakeRepo struct {
	mu      sync.Mutex
	expired []booking.Booking
	marked  []uint64
	failID  uint64
}

func (f *fakeRepo) ListExpiredPending(ctx context.Context, before time.Time) ([]booking.Booking, error) {
	return f.expired, nil
}

func (f *fakeRepo) MarkExpired(ctx context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == f.failID {
		return assertErr
	}
	f.marked = append(f.marked, id)
	return nil
}

var assertErr = &testError{"mark expired failed"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

var _ Repository = (*fakeRepo)(nil)

type fakeEngine struct {
	mu       sync.Mutex
	released []string
}

func (f *fakeEngine) ReleaseSeats(ctx context.Context, showtimeID, bookingID string, seatIDs []string, reason string) (*engine.ReleaseResult, error) {
	f.mu.Lock()
	f.released = append(f.released, bookingID)
	f.mu.Unlock()
	return &engine.ReleaseResult{Released: seatIDs}, nil
}

var _ SeatEngine = (*fakeEngine)(nil)

func TestSweepOnce_ReleasesAndExpiresAll(t *testing.T) {
	repo := &fakeRepo{expired: []booking.Booking{
		{ID: 1, ShowtimeID: 10, IdempotencyKey: "k1", Seats: []booking.BookingSeat{{SeatID: 101}}},
		{ID: 2, ShowtimeID: 10, IdempotencyKey: "k2", Seats: []booking.BookingSeat{{SeatID: 102}}},
	}}
	eng := &fakeEngine{}
	r := New(repo, eng, time.Minute, zap.NewNop())

	swept, err := r.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, swept)
	assert.ElementsMatch(t, []uint64{1, 2}, repo.marked)
	assert.ElementsMatch(t, []string{"hold:k1", "hold:k2"}, eng.released)
}

func TestSweepOnce_ContinuesPastPerBookingError(t *testing.T) {
	repo := &fakeRepo{failID: 1, expired: []booking.Booking{
		{ID: 1, ShowtimeID: 10, IdempotencyKey: "k1", Seats: []booking.BookingSeat{{SeatID: 101}}},
		{ID: 2, ShowtimeID: 10, IdempotencyKey: "k2", Seats: []booking.BookingSeat{{SeatID: 102}}},
	}}
	eng := &fakeEngine{}
	r := New(repo, eng, time.Minute, zap.NewNop())

	swept, err := r.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, swept)
	assert.Equal(t, []uint64{2}, repo.marked)
}
