// Package payment implements the Payment Orchestrator + Webhook
// Reconciler: issuing a payment intent for a pending booking under
// idempotency, and reconciling the provider's asynchronous callback
// into a booking confirm/release decision (spec.md §4.E).
package payment

import "time"

// Payment statuses, per spec.md §3.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusRefunded   = "refunded"
)

// Payment is the durable intent and outcome of charging a user for a
// booking via a gateway.
type Payment struct {
	ID                   uint64
	BookingID            uint64
	UserID               uint64
	IdempotencyKey       string
	AmountCents          int64
	Currency             string
	PaymentMethod        string
	Status               string
	GatewayTransactionID *string
	PaymentURL           string
	ExpiresAt            time.Time
	AttemptCount         int
	Version              int64
	PaidAt               *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
