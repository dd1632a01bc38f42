package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// MockGateway is a deterministic, always-succeeding Gateway for tests
// and local runs — no real provider is part of the core (spec.md §6
// "simulated by a stub at boundary").
type MockGateway struct {
	IntentTTL time.Duration
}

// NewMockGateway constructs a MockGateway whose intents expire after ttl.
func NewMockGateway(ttl time.Duration) *MockGateway {
	return &MockGateway{IntentTTL: ttl}
}

// CreateIntent always succeeds, returning a random transaction_id and
// a synthetic checkout URL a real provider SDK would otherwise mint.
func (g *MockGateway) CreateIntent(ctx context.Context, provider string, amountCents int64, currency string, paymentID uint64) (*Intent, error) {
	if !ValidProvider(provider) {
		return nil, ErrUnknownProvider
	}
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	txID := hex.EncodeToString(buf)
	return &Intent{
		Success:       true,
		TransactionID: txID,
		PaymentURL:    fmt.Sprintf("https://pay.example.test/%s/%s", provider, txID),
		ExpiresAt:     time.Now().UTC().Add(g.IntentTTL),
	}, nil
}

var _ Gateway = (*MockGateway)(nil)
