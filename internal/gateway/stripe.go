package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const stripeAPIBase = "https://api.stripe.com/v1"

// StripeClient talks to the Stripe HTTP API directly. It is constructed once
// at startup and injected wherever a Gateway is needed.
type StripeClient struct {
	secretKey     string
	webhookSecret string
	currency      string
	baseURL       string
	httpClient    *http.Client
}

// NewStripeClient creates a Stripe-backed gateway client.
func NewStripeClient(secretKey, webhookSecret, currency string) *StripeClient {
	return &StripeClient{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		currency:      currency,
		baseURL:       stripeAPIBase,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
	}
}

// stripeError mirrors the error envelope of the Stripe API.
type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateSession creates a hosted checkout session in payment mode.
func (c *StripeClient) CreateSession(ctx context.Context, params CreateSessionParams) (*Session, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_method_types[0]", "card")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	if params.CustomerEmail != "" {
		form.Set("customer_email", params.CustomerEmail)
	}

	for i, item := range params.LineItems {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[price_data][currency]", c.currency)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(item.UnitAmount, 10))
		form.Set(prefix+"[price_data][product_data][name]", item.Name)
		form.Set(prefix+"[quantity]", strconv.Itoa(item.Quantity))
	}

	for k, v := range params.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var session Session
	if err := c.do(ctx, "POST", "/checkout/sessions", form, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ConstructEvent verifies and parses a raw webhook payload.
func (c *StripeClient) ConstructEvent(payload []byte, sigHeader string) (*Event, error) {
	if err := VerifySignature(payload, sigHeader, c.webhookSecret, DefaultTolerance, time.Now()); err != nil {
		return nil, err
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse webhook event: %w", err)
	}
	return &event, nil
}

// RetrievePaymentStatus fetches the status of a payment intent.
func (c *StripeClient) RetrievePaymentStatus(ctx context.Context, paymentID string) (string, error) {
	var pi PaymentIntent
	if err := c.do(ctx, "GET", "/payment_intents/"+paymentID, nil, &pi); err != nil {
		return "", err
	}
	return pi.Status, nil
}

func (c *StripeClient) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stripe request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read stripe response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr stripeError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("stripe api error (%s): %s", apiErr.Error.Type, apiErr.Error.Message)
		}
		return fmt.Errorf("stripe api error: status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode stripe response: %w", err)
		}
	}
	return nil
}
