package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camhoccode/seatflash/internal/booking"
	"github.com/camhoccode/seatflash/internal/gateway"
	"github.com/camhoccode/seatflash/internal/idempotency"
)

type fakeRepo struct {
	mu       sync.Mutex
	byID     map[uint64]*Payment
	byIdem   map[string]uint64
	byTx     map[string]uint64
	byBook   map[uint64][]uint64
	nextID   uint64
	createFn func(*Payment) error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: map[uint64]*Payment{}, byIdem: map[string]uint64{}, byTx: map[string]uint64{}, byBook: map[uint64][]uint64{}}
}

func (f *fakeRepo) Create(ctx context.Context, p *Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createFn != nil {
		if err := f.createFn(p); err != nil {
			return err
		}
	}
	f.nextID++
	p.ID = f.nextID
	p.Status = StatusPending
	p.Version = 1
	cp := *p
	f.byID[p.ID] = &cp
	f.byIdem[p.IdempotencyKey] = p.ID
	f.byBook[p.BookingID] = append(f.byBook[p.BookingID], p.ID)
	return nil
}

func (f *fakeRepo) GetByIdempotencyKey(ctx context.Context, key string) (*Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byIdem[key]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *f.byID[id]
	return &cp, nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id uint64) (*Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeRepo) GetLatestByBookingID(ctx context.Context, bookingID uint64) (*Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.byBook[bookingID]
	if len(ids) == 0 {
		return nil, ErrPaymentNotFound
	}
	cp := *f.byID[ids[len(ids)-1]]
	return &cp, nil
}

func (f *fakeRepo) GetByGatewayTransactionID(ctx context.Context, txID string) (*Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byTx[txID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *f.byID[id]
	return &cp, nil
}

func (f *fakeRepo) MarkProcessing(ctx context.Context, id uint64, gatewayTransactionID, paymentURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return ErrPaymentNotFound
	}
	p.Status = StatusProcessing
	p.GatewayTransactionID = &gatewayTransactionID
	p.PaymentURL = paymentURL
	f.byTx[gatewayTransactionID] = id
	return nil
}

func (f *fakeRepo) CompleteIfNotTerminal(ctx context.Context, gatewayTransactionID string, paidAt time.Time) (bool, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byTx[gatewayTransactionID]
	if !ok {
		return false, 0, ErrPaymentNotFound
	}
	p := f.byID[id]
	if p.Status == StatusCompleted {
		return false, p.BookingID, nil
	}
	p.Status = StatusCompleted
	p.PaidAt = &paidAt
	p.Version++
	return true, p.BookingID, nil
}

func (f *fakeRepo) FailIfNotTerminal(ctx context.Context, gatewayTransactionID string) (bool, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byTx[gatewayTransactionID]
	if !ok {
		return false, 0, ErrPaymentNotFound
	}
	p := f.byID[id]
	if p.Status == StatusCompleted {
		return false, p.BookingID, nil
	}
	p.Status = StatusFailed
	p.Version++
	return true, p.BookingID, nil
}

var _ Repository = (*fakeRepo)(nil)

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

type fakeBookings struct {
	bookings map[uint64]*booking.Booking
}

func (f *fakeBookings) GetByID(ctx context.Context, id uint64) (*booking.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	return b, nil
}

var _ BookingReader = (*fakeBookings)(nil)

type fakeSink struct {
	mu        sync.Mutex
	confirmed []uint64
	released  []uint64
}

func (f *fakeSink) ConfirmSeatsAfterPayment(ctx context.Context, bookingID uint64) error {
	f.mu.Lock()
	f.confirmed = append(f.confirmed, bookingID)
	f.mu.Unlock()
	return nil
}

func (f *fakeSink) ReleaseSeatsAfterPaymentFailure(ctx context.Context, bookingID uint64) error {
	f.mu.Lock()
	f.released = append(f.released, bookingID)
	f.mu.Unlock()
	return nil
}

var _ SeatConfirmSink = (*fakeSink)(nil)

func newTestService(b *booking.Booking) (*Service, *fakeRepo, *fakeSink) {
	repo := newFakeRepo()
	idem := newFakeIdem()
	bookings := &fakeBookings{bookings: map[uint64]*booking.Booking{b.ID: b}}
	sink := &fakeSink{}
	gw := gateway.NewMockGateway(15 * time.Minute)
	svc := NewService(repo, idem, bookings, sink, gw, 15*time.Minute)
	return svc, repo, sink
}

func pendingBooking() *booking.Booking {
	return &booking.Booking{
		ID: 1, UserID: 42, ShowtimeID: 1, Status: booking.StatusPending,
		FinalAmountCents: 3000, Currency: "VND", HoldExpiresAt: time.Now().Add(10 * time.Minute),
	}
}

func TestCreatePayment_Success(t *testing.T) {
	svc, _, _ := newTestService(pendingBooking())
	resp, appErr := svc.CreatePayment(context.Background(), 42, "idem-p1", CreatePaymentRequest{BookingID: 1, PaymentMethod: gateway.ProviderMomo})
	require.Nil(t, appErr)
	assert.Equal(t, StatusProcessing, resp.Status)
	assert.NotEmpty(t, resp.PaymentURL)
}

func TestCreatePayment_UnknownProvider(t *testing.T) {
	svc, _, _ := newTestService(pendingBooking())
	_, appErr := svc.CreatePayment(context.Background(), 42, "idem-p2", CreatePaymentRequest{BookingID: 1, PaymentMethod: "paypal"})
	require.NotNil(t, appErr)
	assert.Equal(t, "VALIDATION", appErr.Code)
}

func TestCreatePayment_BookingNotOwned(t *testing.T) {
	svc, _, _ := newTestService(pendingBooking())
	_, appErr := svc.CreatePayment(context.Background(), 999, "idem-p3", CreatePaymentRequest{BookingID: 1, PaymentMethod: gateway.ProviderMomo})
	require.NotNil(t, appErr)
	assert.Equal(t, "BOOKING_NOT_OWNED", appErr.Code)
}

func TestCreatePayment_HoldExpired(t *testing.T) {
	b := pendingBooking()
	b.HoldExpiresAt = time.Now().Add(-time.Minute)
	svc, _, _ := newTestService(b)
	_, appErr := svc.CreatePayment(context.Background(), 42, "idem-p4", CreatePaymentRequest{BookingID: 1, PaymentMethod: gateway.ProviderMomo})
	require.NotNil(t, appErr)
	assert.Equal(t, "BOOKING_HOLD_EXPIRED", appErr.Code)
}

func TestCreatePayment_Replay_ReturnsCachedResponse(t *testing.T) {
	svc, _, _ := newTestService(pendingBooking())
	req := CreatePaymentRequest{BookingID: 1, PaymentMethod: gateway.ProviderMomo}
	first, appErr := svc.CreatePayment(context.Background(), 42, "idem-p5", req)
	require.Nil(t, appErr)
	second, appErr := svc.CreatePayment(context.Background(), 42, "idem-p5", req)
	require.Nil(t, appErr)
	assert.Equal(t, first.PaymentID, second.PaymentID)
}

func TestCreatePayment_AlreadyPaid(t *testing.T) {
	svc, repo, _ := newTestService(pendingBooking())
	req := CreatePaymentRequest{BookingID: 1, PaymentMethod: gateway.ProviderMomo}
	first, appErr := svc.CreatePayment(context.Background(), 42, "idem-p6", req)
	require.Nil(t, appErr)
	_, _, err := repo.CompleteIfNotTerminal(context.Background(), *repo.byID[first.PaymentID].GatewayTransactionID, time.Now())
	require.NoError(t, err)

	_, appErr = svc.CreatePayment(context.Background(), 42, "idem-p7", req)
	require.NotNil(t, appErr)
	assert.Equal(t, "BOOKING_ALREADY_PAID", appErr.Code)
}

func TestHandleWebhook_Success_ConfirmsSeats(t *testing.T) {
	svc, repo, sink := newTestService(pendingBooking())
	resp, appErr := svc.CreatePayment(context.Background(), 42, "idem-p8", CreatePaymentRequest{BookingID: 1, PaymentMethod: gateway.ProviderMomo})
	require.Nil(t, appErr)
	txID := *repo.byID[resp.PaymentID].GatewayTransactionID

	werr := svc.HandleWebhook(context.Background(), gateway.ProviderMomo, WebhookPayload{TransactionID: txID, Status: "success"})
	require.Nil(t, werr)
	assert.Contains(t, sink.confirmed, uint64(1))

	// Redelivery is a no-op.
	werr = svc.HandleWebhook(context.Background(), gateway.ProviderMomo, WebhookPayload{TransactionID: txID, Status: "success"})
	require.Nil(t, werr)
	assert.Len(t, sink.confirmed, 1)
}

func TestHandleWebhook_Failed_ReleasesSeats(t *testing.T) {
	svc, repo, sink := newTestService(pendingBooking())
	resp, appErr := svc.CreatePayment(context.Background(), 42, "idem-p9", CreatePaymentRequest{BookingID: 1, PaymentMethod: gateway.ProviderMomo})
	require.Nil(t, appErr)
	txID := *repo.byID[resp.PaymentID].GatewayTransactionID

	werr := svc.HandleWebhook(context.Background(), gateway.ProviderMomo, WebhookPayload{TransactionID: txID, Status: "failed"})
	require.Nil(t, werr)
	assert.Contains(t, sink.released, uint64(1))

	werr = svc.HandleWebhook(context.Background(), gateway.ProviderMomo, WebhookPayload{TransactionID: txID, Status: "failed"})
	require.Nil(t, werr)
	assert.Len(t, sink.released, 1)
}

func TestHandleWebhook_UnknownTransaction(t *testing.T) {
	svc, _, _ := newTestService(pendingBooking())
	werr := svc.HandleWebhook(context.Background(), gateway.ProviderMomo, WebhookPayload{TransactionID: "nope", Status: "success"})
	require.NotNil(t, werr)
	assert.Equal(t, "PAYMENT_NOT_FOUND", werr.Code)
}

func TestHandleWebhook_BadProvider(t *testing.T) {
	svc, _, _ := newTestService(pendingBooking())
	werr := svc.HandleWebhook(context.Background(), "paypal", WebhookPayload{TransactionID: "tx", Status: "success"})
	require.NotNil(t, werr)
	assert.Equal(t, "BAD_PROVIDER", werr.Code)
}
