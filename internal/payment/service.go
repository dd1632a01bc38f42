package payment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/camhoccode/seatflash/internal/apperr"
	"github.com/camhoccode/seatflash/internal/booking"
	"github.com/camhoccode/seatflash/internal/gateway"
	"github.com/camhoccode/seatflash/internal/idempotency"
)

// SeatConfirmSink is the narrow interface the Payment Orchestrator
// drives on webhook outcomes, resolving the D/E circular dependency
// per spec.md §9 Design Notes: E depends only on this, never reaching
// back into D for anything else. *booking.Service satisfies it
// structurally.
type SeatConfirmSink interface {
	ConfirmSeatsAfterPayment(ctx context.Context, bookingID uint64) error
	ReleaseSeatsAfterPaymentFailure(ctx context.Context, bookingID uint64) error
}

// BookingReader resolves the referenced booking for validation
// (spec.md §4.E create-payment step 2).
type BookingReader interface {
	GetByID(ctx context.Context, id uint64) (*booking.Booking, error)
}

// Service implements the Payment Orchestrator + Webhook Reconciler
// (spec.md §4.E).
type Service struct {
	repo     Repository
	idem     idempotency.Repository
	bookings BookingReader
	sink     SeatConfirmSink
	gw       gateway.Gateway
	expiry   time.Duration
}

// NewService wires the Payment Orchestrator's collaborators.
func NewService(repo Repository, idem idempotency.Repository, bookings BookingReader, sink SeatConfirmSink, gw gateway.Gateway, expiry time.Duration) *Service {
	return &Service{repo: repo, idem: idem, bookings: bookings, sink: sink, gw: gw, expiry: expiry}
}

// CreatePaymentRequest is the input to create-payment.
type CreatePaymentRequest struct {
	BookingID     uint64 `json:"booking_id"`
	PaymentMethod string `json:"payment_method"`
	ReturnURL     string `json:"return_url,omitempty"`
}

// CreatePaymentResponse is the response cached under the idempotency
// key and returned to the client.
type CreatePaymentResponse struct {
	PaymentID   uint64    `json:"payment_id"`
	BookingID   uint64    `json:"booking_id"`
	Status      string    `json:"status"`
	PaymentURL  string    `json:"payment_url"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func toCreateResponse(p *Payment) *CreatePaymentResponse {
	return &CreatePaymentResponse{
		PaymentID: p.ID, BookingID: p.BookingID, Status: p.Status, PaymentURL: p.PaymentURL,
		AmountCents: p.AmountCents, Currency: p.Currency, ExpiresAt: p.ExpiresAt,
	}
}

// CreatePayment implements spec.md §4.E create-payment's 7-step sequence.
func (s *Service) CreatePayment(ctx context.Context, userID uint64, idempotencyKey string, req CreatePaymentRequest) (*CreatePaymentResponse, *apperr.AppError) {
	if !gateway.ValidProvider(req.PaymentMethod) {
		return nil, apperr.Validation("VALIDATION", "unknown payment_method", nil)
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
	check, err := s.idem.Check(ctx, idempotencyKey, userID, "/v1/payments", hash, idempotency.ResourcePayment)
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
			var cached CreatePaymentResponse
			if jerr := json.Unmarshal(check.CachedBody, &cached); jerr == nil {
				return &cached, nil
			}
		}
		return nil, apperr.As(decodeCachedFailure(check.CachedStatus, check.CachedBody))
	}

	resp, appErr := s.doCreate(ctx, userID, idempotencyKey, req)
	if appErr != nil {
		failBody, _ := json.Marshal(appErr)
		_ = s.idem.Fail(ctx, idempotencyKey, userID, appErr.Message, appErr.HTTPStatus, failBody)
		return nil, appErr
	}

	respBody, _ := json.Marshal(resp)
	statusCode := 201
	if resp.Status != StatusProcessing {
		statusCode = 200
	}
	_ = s.idem.Complete(ctx, idempotencyKey, userID, statusCode, respBody, nil)
	return resp, nil
}

func (s *Service) doCreate(ctx context.Context, userID uint64, idempotencyKey string, req CreatePaymentRequest) (*CreatePaymentResponse, *apperr.AppError) {
	// Step 2: validate the referenced booking.
	b, err := s.bookings.GetByID(ctx, req.BookingID)
	if err != nil {
		if err == booking.ErrBookingNotFound {
			return nil, apperr.NotFound("BOOKING_NOT_FOUND", "booking not found")
		}
		return nil, apperr.Internal("INTERNAL", err.Error())
	}
	if b.UserID != userID {
		return nil, apperr.Forbidden("BOOKING_NOT_OWNED", "booking does not belong to this user")
	}
	if b.Status != booking.StatusPending {
		return nil, apperr.Precondition("BOOKING_HOLD_EXPIRED", "booking is not pending")
	}
	if time.Now().UTC().After(b.HoldExpiresAt) {
		return nil, apperr.Precondition("BOOKING_HOLD_EXPIRED", "booking hold has expired")
	}

	// Step 3: look for an existing non-terminal/terminal payment.
	if existing, err := s.repo.GetLatestByBookingID(ctx, req.BookingID); err == nil {
		switch existing.Status {
		case StatusCompleted:
			return nil, apperr.Conflict("BOOKING_ALREADY_PAID", "booking already has a completed payment", nil)
		case StatusPending, StatusProcessing:
			return toCreateResponse(existing), nil
		}
	} else if err != ErrPaymentNotFound {
		return nil, apperr.Internal("INTERNAL", err.Error())
	}

	// Step 4: create the payment record; on idempotency_key collision
	// with a concurrent winner, read back and return it.
	p := &Payment{
		BookingID: req.BookingID, UserID: userID, IdempotencyKey: idempotencyKey,
		AmountCents: b.FinalAmountCents, Currency: b.Currency, PaymentMethod: req.PaymentMethod,
		ExpiresAt: time.Now().UTC().Add(s.expiry),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if isDuplicateKey(err) {
			winner, rerr := s.repo.GetByIdempotencyKey(ctx, idempotencyKey)
			if rerr != nil {
				return nil, apperr.Internal("INTERNAL", rerr.Error())
			}
			return toCreateResponse(winner), nil
		}
		return nil, apperr.Internal("INTERNAL", err.Error())
	}

	// Step 5: invoke the gateway collaborator.
	intent, err := s.gw.CreateIntent(ctx, req.PaymentMethod, p.AmountCents, p.Currency, p.ID)
	if err != nil {
		return nil, apperr.Internal("GATEWAY_ERROR", err.Error())
	}
	if err := s.repo.MarkProcessing(ctx, p.ID, intent.TransactionID, intent.PaymentURL); err != nil {
		return nil, apperr.Internal("INTERNAL", err.Error())
	}
	p.Status = StatusProcessing
	p.GatewayTransactionID = &intent.TransactionID
	p.PaymentURL = intent.PaymentURL

	return toCreateResponse(p), nil
}

// WebhookPayload is the gateway callback body (spec.md §4.E
// handle-webhook).
type WebhookPayload struct {
	TransactionID string         `json:"transaction_id"`
	Status        string         `json:"status"`
	AmountCents   int64          `json:"amount"`
	PaidAt        *time.Time     `json:"paid_at,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// HandleWebhook implements spec.md §4.E handle-webhook's 4-step branch.
func (s *Service) HandleWebhook(ctx context.Context, provider string, payload WebhookPayload) *apperr.AppError {
	// Step 1: validate provider and payload presence.
	if !gateway.ValidProvider(provider) {
		return apperr.Validation("BAD_PROVIDER", "unknown payment provider", nil)
	}
	if payload.TransactionID == "" || payload.Status == "" {
		return apperr.Validation("VALIDATION", "transaction_id and status are required", nil)
	}

	// Step 2: look up payment by gateway_transaction_id.
	p, err := s.repo.GetByGatewayTransactionID(ctx, payload.TransactionID)
	if err != nil {
		if err == ErrPaymentNotFound {
			return apperr.NotFound("PAYMENT_NOT_FOUND", "payment not found for transaction_id")
		}
		return apperr.Internal("INTERNAL", err.Error())
	}

	// Step 3: already-completed payments are an idempotent no-op, and so
	// is a repeated "failed" delivery for a payment already marked failed.
	if p.Status == StatusCompleted {
		return nil
	}
	if p.Status == StatusFailed && payload.Status == "failed" {
		return nil
	}

	// Step 4: branch on payload.status.
	switch payload.Status {
	case "failed":
		modified, bookingID, err := s.repo.FailIfNotTerminal(ctx, payload.TransactionID)
		if err != nil {
			return apperr.Internal("INTERNAL", err.Error())
		}
		if modified {
			if err := s.sink.ReleaseSeatsAfterPaymentFailure(ctx, bookingID); err != nil {
				return apperr.Internal("INTERNAL", err.Error())
			}
		}
	case "success":
		paidAt := time.Now().UTC()
		if payload.PaidAt != nil {
			paidAt = *payload.PaidAt
		}
		modified, bookingID, err := s.repo.CompleteIfNotTerminal(ctx, payload.TransactionID, paidAt)
		if err != nil {
			return apperr.Internal("INTERNAL", err.Error())
		}
		if modified {
			if err := s.sink.ConfirmSeatsAfterPayment(ctx, bookingID); err != nil {
				return apperr.Internal("INTERNAL", err.Error())
			}
		}
	case "pending":
		// Recorded implicitly by the lookup above; no lifecycle action.
	default:
		return apperr.Validation("VALIDATION", "unknown webhook status", nil)
	}
	return nil
}

// GetPayment implements get-payment: only the owner may view.
func (s *Service) GetPayment(ctx context.Context, paymentID, userID uint64) (*Payment, *apperr.AppError) {
	p, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		if err == ErrPaymentNotFound {
			return nil, apperr.NotFound("PAYMENT_NOT_FOUND", "payment not found")
		}
		return nil, apperr.Internal("INTERNAL", err.Error())
	}
	if p.UserID != userID {
		return nil, apperr.Forbidden("PAYMENT_NOT_OWNED", "payment does not belong to this user")
	}
	return p, nil
}

func decodeCachedFailure(statusCode int, body []byte) error {
	var e apperr.AppError
	if err := json.Unmarshal(body, &e); err != nil {
		return apperr.Internal("INTERNAL", "failed to decode cached idempotency failure")
	}
	e.HTTPStatus = statusCode
	return &e
}

var _ SeatConfirmSink = (*booking.Service)(nil)
