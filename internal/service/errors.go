package service

import (
	"errors"
	"fmt"

	"shop-backend/internal/gateway"
)

// Error taxonomy of the checkout core. Handlers map these to HTTP statuses;
// everything else is an internal error.
var (
	// ErrNotFound covers missing carts, products, users and orders.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a duplicate idempotency key in a context that
	// expected a first write. Normally absorbed as a no-op, not surfaced.
	ErrConflict = errors.New("conflict")

	// ErrInvalidSignature rejects webhook events that fail verification.
	// Fatal for the event; no side effects are allowed past it.
	ErrInvalidSignature = gateway.ErrInvalidSignature

	// ErrInsufficientStock is surfaced at cart-mutation time. Stock is not
	// re-validated at decrement time.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrValidation covers malformed shipping addresses and line items.
	ErrValidation = errors.New("validation failed")

	// ErrForbidden rejects operations on resources the caller does not own.
	ErrForbidden = errors.New("forbidden")
)

// GatewayError wraps payment-provider failures during session creation.
// Retried by the caller, never automatically.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsGatewayError reports whether err is a payment-provider failure.
func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}
