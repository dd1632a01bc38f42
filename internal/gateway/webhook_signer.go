package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// WebhookSigner verifies a provider's HMAC signature on an inbound
// webhook body, refusing unsigned or malformed signatures at the
// collaborator boundary (spec.md §4.E/§9), the way JWTAuth gates a
// protected route by rejecting anything it cannot verify before the
// handler ever sees the request.
type WebhookSigner struct {
	secrets map[string]string
}

// NewWebhookSigner builds a signer keyed by provider name, each with
// its own shared secret.
func NewWebhookSigner(secrets map[string]string) *WebhookSigner {
	return &WebhookSigner{secrets: secrets}
}

// Verify checks that signature is the hex-encoded HMAC-SHA256 of body
// under the provider's configured secret. A provider with no
// configured secret always fails closed.
func (s *WebhookSigner) Verify(provider string, body []byte, signature string) bool {
	secret, ok := s.secrets[provider]
	if !ok || secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
