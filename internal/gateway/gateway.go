package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Event types emitted by the payment provider that the webhook processor
// cares about. Anything else is acknowledged and ignored.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventPaymentIntentSucceeded   = "payment_intent.succeeded"
	EventPaymentIntentFailed      = "payment_intent.payment_failed"
)

// ErrInvalidSignature is returned when a webhook payload cannot be verified
// against the signing secret. Events failing verification must never reach
// the state machine.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// LineItem is one priced line of a checkout session.
type LineItem struct {
	Name       string
	UnitAmount int64
	Quantity   int
}

// CreateSessionParams describes a hosted payment session to create.
// Metadata is echoed back verbatim on webhook events, which is how the
// processor reconstructs the order without re-reading the cart.
type CreateSessionParams struct {
	LineItems     []LineItem
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
	Metadata      map[string]string
}

// Session is the provider's handle for a hosted payment flow.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CheckoutSession is the event payload for checkout.session.completed.
type CheckoutSession struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	CustomerEmail string            `json:"customer_email"`
	AmountTotal   int64             `json:"amount_total"`
	Metadata      map[string]string `json:"metadata"`
}

// PaymentIntent is the event payload for payment_intent.* events.
type PaymentIntent struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

// Event is a verified webhook notification.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Raw json.RawMessage `json:"object"`
	} `json:"data"`
}

// CheckoutSession decodes the event payload as a checkout session.
func (e *Event) CheckoutSession() (*CheckoutSession, error) {
	var cs CheckoutSession
	if err := json.Unmarshal(e.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session payload: %w", err)
	}
	return &cs, nil
}

// PaymentIntent decodes the event payload as a payment intent.
func (e *Event) PaymentIntent() (*PaymentIntent, error) {
	var pi PaymentIntent
	if err := json.Unmarshal(e.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("failed to decode payment intent payload: %w", err)
	}
	return &pi, nil
}

// Gateway is the narrow capability surface the checkout core needs from a
// payment provider. Implementations are selected at process startup and
// injected; the state machine never branches on provider identity.
type Gateway interface {
	// CreateSession creates a hosted payment session and returns its
	// redirect URL and provider-assigned session ID.
	CreateSession(ctx context.Context, params CreateSessionParams) (*Session, error)

	// ConstructEvent verifies the raw webhook body against the signature
	// header and parses it. Returns ErrInvalidSignature on verification
	// failure.
	ConstructEvent(payload []byte, sigHeader string) (*Event, error)

	// RetrievePaymentStatus fetches the current status of a payment by its
	// provider transaction reference.
	RetrievePaymentStatus(ctx context.Context, paymentID string) (string, error)
}
