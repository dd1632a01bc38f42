package payment

import "errors"

// ErrPaymentNotFound indicates no payment row matched the lookup.
var ErrPaymentNotFound = errors.New("payment: not found")
