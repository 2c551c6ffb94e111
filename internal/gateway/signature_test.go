package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test_secret"

func TestVerifySignatureAcceptsValid(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	now := time.Now()
	header := SignPayload(payload, testSecret, now)

	assert.NoError(t, VerifySignature(payload, header, testSecret, DefaultTolerance, now))
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := SignPayload(payload, "whsec_other", now)

	err := VerifySignature(payload, header, testSecret, DefaultTolerance, now)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifySignatureRejectsTamperedPayload(t *testing.T) {
	payload := []byte(`{"amount":100}`)
	now := time.Now()
	header := SignPayload(payload, testSecret, now)

	err := VerifySignature([]byte(`{"amount":999}`), header, testSecret, DefaultTolerance, now)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifySignatureRejectsStaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := SignPayload(payload, testSecret, now.Add(-10*time.Minute))

	err := VerifySignature(payload, header, testSecret, DefaultTolerance, now)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifySignatureRejectsFutureTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := SignPayload(payload, testSecret, now.Add(10*time.Minute))

	err := VerifySignature(payload, header, testSecret, DefaultTolerance, now)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifySignatureWithinTolerance(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := SignPayload(payload, testSecret, now.Add(-4*time.Minute))

	assert.NoError(t, VerifySignature(payload, header, testSecret, DefaultTolerance, now))
}

func TestVerifySignatureMalformedHeaders(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()

	for _, header := range []string{
		"",
		"garbage",
		"t=123",
		"v1=deadbeef",
		"t=notanumber,v1=deadbeef",
		"t=123,v1=nothex!!",
	} {
		err := VerifySignature(payload, header, testSecret, DefaultTolerance, now)
		assert.ErrorIs(t, err, ErrInvalidSignature, "header %q", header)
	}
}

func TestVerifySignatureAcceptsAnyMatchingV1(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	valid := SignPayload(payload, testSecret, now)

	// Rotated-secret headers carry multiple v1 entries; one match suffices.
	header := valid + ",v1=" + "00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff"
	assert.NoError(t, VerifySignature(payload, header, testSecret, DefaultTolerance, now))
}

func TestConstructEventParsesVerifiedPayload(t *testing.T) {
	client := NewStripeClient("sk_test", testSecret, "usd")
	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_1", "payment_intent": "pi_1", "metadata": {"userId": "7"}}}
	}`)

	event, err := client.ConstructEvent(payload, SignPayload(payload, testSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, EventCheckoutSessionCompleted, event.Type)

	cs, err := event.CheckoutSession()
	require.NoError(t, err)
	assert.Equal(t, "cs_1", cs.ID)
	assert.Equal(t, "pi_1", cs.PaymentIntent)
	assert.Equal(t, "7", cs.Metadata["userId"])
}

func TestConstructEventRejectsBadSignature(t *testing.T) {
	client := NewStripeClient("sk_test", testSecret, "usd")
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)

	_, err := client.ConstructEvent(payload, SignPayload(payload, "whsec_wrong", time.Now()))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
