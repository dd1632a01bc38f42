package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camhoccode/seatflash/internal/engine"
	"github.com/camhoccode/seatflash/internal/idempotency"
	"github.com/camhoccode/seatflash/internal/repository"
)

// fakeRepo is an in-process Repository used so service tests never
// need a real database.
type fakeRepo struct {
	mu       sync.Mutex
	byID     map[uint64]*Booking
	byIdem   map[string]uint64
	nextID   uint64
	createFn func(*Booking) error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: map[uint64]*Booking{}, byIdem: map[string]uint64{}}
}

func (f *fakeRepo) Create(ctx context.Context, b *Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createFn != nil {
		if err := f.createFn(b); err != nil {
			return err
		}
	}
	f.nextID++
	b.ID = f.nextID
	b.BookingCode = "BK-TESTCODE"
	b.Status = StatusPending
	cp := *b
	f.byID[b.ID] = &cp
	f.byIdem[b.IdempotencyKey] = b.ID
	return nil
}

func (f *fakeRepo) GetByIdempotencyKey(ctx context.Context, key string) (*Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byIdem[key]
	if !ok {
		return nil, ErrBookingNotFound
	}
	cp := *f.byID[id]
	return &cp, nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id uint64) (*Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.byID[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeRepo) MarkConfirmed(ctx context.Context, id uint64, partial bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.byID[id]
	if !ok {
		return ErrBookingNotFound
	}
	b.Status = StatusConfirmed
	b.PartiallyConfirmed = partial
	return nil
}

func (f *fakeRepo) MarkCancelled(ctx context.Context, id uint64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.byID[id]
	if !ok {
		return ErrBookingNotFound
	}
	b.Status = StatusCancelled
	b.CancellationReason = reason
	return nil
}

func (f *fakeRepo) MarkExpired(ctx context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.byID[id]
	if !ok {
		return ErrBookingNotFound
	}
	b.Status = StatusExpired
	return nil
}

func (f *fakeRepo) ListExpiredPending(ctx context.Context, before time.Time) ([]Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Booking
	for _, b := range f.byID {
		if b.Status == StatusPending && b.HoldExpiresAt.Before(before) {
			out = append(out, *b)
		}
	}
	return out, nil
}

var _ Repository = (*fakeRepo)(nil)

// fakeIdem is an in-process idempotency.Repository.
type fakeIdem struct {
	mu      sync.Mutex
	records map[string]*idempotency.CheckResult
}

func newFakeIdem() *fakeIdem {
	return &fakeIdem{records: map[string]*idempotency.CheckResult{}}
}

func (f *fakeIdem) Check(ctx context.Context, key string, userID uint64, path, requestHash, resourceType string) (*idempotency.CheckResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.records[key]; ok {
		return &idempotency.CheckResult{New: false, CachedStatus: r.CachedStatus, CachedBody: r.CachedBody}, nil
	}
	f.records[key] = &idempotency.CheckResult{}
	return &idempotency.CheckResult{New: true}, nil
}

func (f *fakeIdem) Complete(ctx context.Context, key string, userID uint64, statusCode int, body []byte, resourceID *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[key] = &idempotency.CheckResult{New: false, CachedStatus: statusCode, CachedBody: body}
	return nil
}

func (f *fakeIdem) Fail(ctx context.Context, key string, userID uint64, errMsg string, statusCode int, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[key] = &idempotency.CheckResult{New: false, CachedStatus: statusCode, CachedBody: body}
	return nil
}

var _ idempotency.Repository = (*fakeIdem)(nil)

// fakeEngine is an in-process SeatEngine.
type fakeEngine struct {
	mu             sync.Mutex
	unavailable    []engine.UnavailableSeat
	confirmFailed  []engine.FailedSeat
	releaseCalls   []string
	batchReserveFn func(showtimeID, bookingID string, seats []engine.SeatRequest) (*engine.ReserveResult, error)
}

func (f *fakeEngine) BatchReserve(ctx context.Context, showtimeID, bookingID string, holdFor time.Duration, seats []engine.SeatRequest) (*engine.ReserveResult, error) {
	if f.batchReserveFn != nil {
		return f.batchReserveFn(showtimeID, bookingID, seats)
	}
	if len(f.unavailable) > 0 {
		return &engine.ReserveResult{Success: false, Unavailable: f.unavailable}, nil
	}
	return &engine.ReserveResult{Success: true, Reserved: len(seats), ExpiresAt: time.Now().Add(holdFor).Unix()}, nil
}

func (f *fakeEngine) ConfirmSeats(ctx context.Context, showtimeID, bookingID string, seatIDs []string) (*engine.ConfirmResult, error) {
	confirmed := seatIDs
	if len(f.confirmFailed) > 0 {
		confirmed = nil
	}
	return &engine.ConfirmResult{Confirmed: confirmed, Failed: f.confirmFailed}, nil
}

func (f *fakeEngine) ReleaseSeats(ctx context.Context, showtimeID, bookingID string, seatIDs []string, reason string) (*engine.ReleaseResult, error) {
	f.mu.Lock()
	f.releaseCalls = append(f.releaseCalls, reason)
	f.mu.Unlock()
	return &engine.ReleaseResult{Released: seatIDs}, nil
}

var _ SeatEngine = (*fakeEngine)(nil)

// fakeShows is an in-process ShowtimeRepository.
type fakeShows struct {
	show *repository.Show
	err  error
}

func (f *fakeShows) GetByID(ctx context.Context, id uint64) (*repository.Show, error) {
	return f.show, f.err
}

var _ ShowtimeRepository = (*fakeShows)(nil)

// fakePricing is an in-process PricingRepository.
type fakePricing struct {
	seats map[uint64]repository.ShowSeat
}

func (f *fakePricing) GetBySeatIDs(ctx context.Context, showID uint64, seatIDs []uint64) (map[uint64]repository.ShowSeat, error) {
	out := make(map[uint64]repository.ShowSeat)
	for _, id := range seatIDs {
		if ss, ok := f.seats[id]; ok {
			out[id] = ss
		}
	}
	return out, nil
}

var _ PricingRepository = (*fakePricing)(nil)

func newTestService() (*Service, *fakeRepo, *fakeIdem, *fakeEngine) {
	repo := newFakeRepo()
	idem := newFakeIdem()
	eng := &fakeEngine{}
	shows := &fakeShows{show: &repository.Show{ID: 1, Status: "SCHEDULED", StartsAt: "2099-01-01 10:00:00"}}
	pricing := &fakePricing{seats: map[uint64]repository.ShowSeat{
		101: {ShowID: 1, SeatID: 101, SeatType: "standard", PriceCents: 1500},
		102: {ShowID: 1, SeatID: 102, SeatType: "standard", PriceCents: 1500},
	}}
	svc := NewService(repo, idem, eng, shows, pricing, 10*time.Minute, 10)
	return svc, repo, idem, eng
}

func TestHoldSeats_Success(t *testing.T) {
	svc, _, _, _ := newTestService()
	resp, appErr := svc.HoldSeats(context.Background(), 42, "idem-1", HoldSeatsRequest{ShowtimeID: 1, SeatIDs: []uint64{101, 102}})
	require.Nil(t, appErr)
	require.NotNil(t, resp)
	assert.Equal(t, int64(3000), resp.TotalAmountCents)
	assert.Equal(t, StatusPending, resp.Status)
	assert.Len(t, resp.Seats, 2)
}

func TestHoldSeats_Replay_ReturnsCachedResponse(t *testing.T) {
	svc, _, _, eng := newTestService()
	req := HoldSeatsRequest{ShowtimeID: 1, SeatIDs: []uint64{101, 102}}
	first, appErr := svc.HoldSeats(context.Background(), 42, "idem-replay", req)
	require.Nil(t, appErr)

	second, appErr := svc.HoldSeats(context.Background(), 42, "idem-replay", req)
	require.Nil(t, appErr)
	assert.Equal(t, first.BookingID, second.BookingID)
	// A replay must not trigger a compensating release.
	assert.Empty(t, eng.releaseCalls)
}

func TestHoldSeats_TooManySeats(t *testing.T) {
	svc, _, _, _ := newTestService()
	ids := make([]uint64, 11)
	_, appErr := svc.HoldSeats(context.Background(), 42, "idem-2", HoldSeatsRequest{ShowtimeID: 1, SeatIDs: ids})
	require.NotNil(t, appErr)
	assert.Equal(t, "VALIDATION", appErr.Code)
}

func TestHoldSeats_ShowtimeNotFound(t *testing.T) {
	svc, _, _, _ := newTestService()
	svc.shows = &fakeShows{err: repository.ErrShowNotFound}
	_, appErr := svc.HoldSeats(context.Background(), 42, "idem-3", HoldSeatsRequest{ShowtimeID: 99, SeatIDs: []uint64{101}})
	require.NotNil(t, appErr)
	assert.Equal(t, "SHOWTIME_NOT_FOUND", appErr.Code)
}

func TestHoldSeats_InvalidSeat(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, appErr := svc.HoldSeats(context.Background(), 42, "idem-4", HoldSeatsRequest{ShowtimeID: 1, SeatIDs: []uint64{999}})
	require.NotNil(t, appErr)
	assert.Equal(t, "INVALID_SEAT", appErr.Code)
}

func TestHoldSeats_SeatsNotAvailable(t *testing.T) {
	svc, _, _, eng := newTestService()
	eng.unavailable = []engine.UnavailableSeat{{SeatID: "101", Reason: "booked"}}
	_, appErr := svc.HoldSeats(context.Background(), 42, "idem-5", HoldSeatsRequest{ShowtimeID: 1, SeatIDs: []uint64{101, 102}})
	require.NotNil(t, appErr)
	assert.Equal(t, "SEATS_NOT_AVAILABLE", appErr.Code)
}

func TestHoldSeats_IdempotencyKeyRace_ReturnsConflictAndReleasesSeats(t *testing.T) {
	svc, repo, _, eng := newTestService()
	repo.createFn = func(*Booking) error { return ErrIdempotencyKeyConflict }
	_, appErr := svc.HoldSeats(context.Background(), 42, "idem-race", HoldSeatsRequest{ShowtimeID: 1, SeatIDs: []uint64{101, 102}})
	require.NotNil(t, appErr)
	assert.Equal(t, "REQUEST_IN_FLIGHT", appErr.Code)
	assert.Len(t, eng.releaseCalls, 1)
}

func TestConfirmSeatsAfterPayment_FullSuccess(t *testing.T) {
	svc, repo, _, _ := newTestService()
	resp, appErr := svc.HoldSeats(context.Background(), 42, "idem-6", HoldSeatsRequest{ShowtimeID: 1, SeatIDs: []uint64{101}})
	require.Nil(t, appErr)

	require.NoError(t, svc.ConfirmSeatsAfterPayment(context.Background(), resp.BookingID))
	b, err := repo.GetByID(context.Background(), resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, b.Status)
	assert.False(t, b.PartiallyConfirmed)
}

func TestConfirmSeatsAfterPayment_Partial(t *testing.T) {
	svc, repo, _, eng := newTestService()
	resp, appErr := svc.HoldSeats(context.Background(), 42, "idem-7", HoldSeatsRequest{ShowtimeID: 1, SeatIDs: []uint64{101, 102}})
	require.Nil(t, appErr)

	eng.confirmFailed = []engine.FailedSeat{{SeatID: "102", Reason: "HOLD_EXPIRED"}}
	require.NoError(t, svc.ConfirmSeatsAfterPayment(context.Background(), resp.BookingID))
	b, err := repo.GetByID(context.Background(), resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, b.Status)
	assert.True(t, b.PartiallyConfirmed)
}

func TestReleaseSeatsAfterPaymentFailure(t *testing.T) {
	svc, repo, _, eng := newTestService()
	resp, appErr := svc.HoldSeats(context.Background(), 42, "idem-8", HoldSeatsRequest{ShowtimeID: 1, SeatIDs: []uint64{101}})
	require.Nil(t, appErr)

	require.NoError(t, svc.ReleaseSeatsAfterPaymentFailure(context.Background(), resp.BookingID))
	b, err := repo.GetByID(context.Background(), resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, b.Status)
	assert.Contains(t, eng.releaseCalls, "PAYMENT_FAILED")
}

func TestCancelBooking_OwnerCanCancelPending(t *testing.T) {
	svc, _, _, eng := newTestService()
	resp, appErr := svc.HoldSeats(context.Background(), 42, "idem-9", HoldSeatsRequest{ShowtimeID: 1, SeatIDs: []uint64{101}})
	require.Nil(t, appErr)

	b, appErr := svc.CancelBooking(context.Background(), resp.BookingID, 42)
	require.Nil(t, appErr)
	assert.Equal(t, StatusCancelled, b.Status)
	assert.Contains(t, eng.releaseCalls, "CANCELLED")
}

func TestCancelBooking_RejectsNonOwner(t *testing.T) {
	svc, _, _, _ := newTestService()
	resp, appErr := svc.HoldSeats(context.Background(), 42, "idem-10", HoldSeatsRequest{ShowtimeID: 1, SeatIDs: []uint64{101}})
	require.Nil(t, appErr)

	_, appErr = svc.CancelBooking(context.Background(), resp.BookingID, 999)
	require.NotNil(t, appErr)
	assert.Equal(t, "BOOKING_NOT_OWNED", appErr.Code)
}

func TestGetBooking_RejectsNonOwner(t *testing.T) {
	svc, _, _, _ := newTestService()
	resp, appErr := svc.HoldSeats(context.Background(), 42, "idem-11", HoldSeatsRequest{ShowtimeID: 1, SeatIDs: []uint64{101}})
	require.Nil(t, appErr)

	_, appErr = svc.GetBooking(context.Background(), resp.BookingID, 999)
	require.NotNil(t, appErr)
	assert.Equal(t, "BOOKING_NOT_OWNED", appErr.Code)
}
