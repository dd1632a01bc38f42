// Package gateway models the payment provider collaborator boundary:
// creating a payment intent and verifying inbound webhook signatures.
// Neither concern is core reconciliation logic — both are boundary
// gating a real deployment would ship, per spec.md §6/§9.
package gateway

import (
	"context"
	"errors"
	"time"
)

// Providers this service accepts webhooks and create-intent calls for.
const (
	ProviderMomo    = "momo"
	ProviderVNPay   = "vnpay"
	ProviderZalopay = "zalopay"
	ProviderCard    = "card"
)

// ErrUnknownProvider indicates a payment_method/provider outside the
// accepted set (spec.md §4.E handle-webhook step 1, §6 BAD_PROVIDER).
var ErrUnknownProvider = errors.New("gateway: unknown provider")

// ValidProvider reports whether name is one of the accepted providers.
func ValidProvider(name string) bool {
	switch name {
	case ProviderMomo, ProviderVNPay, ProviderZalopay, ProviderCard:
		return true
	default:
		return false
	}
}

// Intent is what a Gateway returns after CreateIntent (spec.md §6
// gateway collaborator: "{success, transaction_id, payment_url,
// expires_at}").
type Intent struct {
	Success       bool
	TransactionID string
	PaymentURL    string
	ExpiresAt     time.Time
}

// Gateway is the payment provider collaborator interface. Implementations
// issue a payment intent against a provider for a given booking/amount.
type Gateway interface {
	CreateIntent(ctx context.Context, provider string, amountCents int64, currency string, paymentID uint64) (*Intent, error)
}
