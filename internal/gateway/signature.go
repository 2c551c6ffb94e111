package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is the maximum accepted age of a signed webhook payload.
const DefaultTolerance = 5 * time.Minute

// VerifySignature checks a Stripe-style signature header
// ("t=<unix>,v1=<hex>") against the payload and signing secret. The signed
// message is "<t>.<payload>" with HMAC-SHA256. Any parse failure, timestamp
// outside the tolerance window, or signature mismatch yields
// ErrInvalidSignature.
func VerifySignature(payload []byte, sigHeader, secret string, tolerance time.Duration, now time.Time) error {
	var timestamp int64 = -1
	var signatures [][]byte

	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			timestamp = ts
		case "v1":
			sig, err := hex.DecodeString(kv[1])
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}

	if timestamp < 0 || len(signatures) == 0 {
		return fmt.Errorf("%w: missing timestamp or signature", ErrInvalidSignature)
	}

	if tolerance > 0 {
		age := now.Sub(time.Unix(timestamp, 0))
		if age > tolerance || age < -tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
		}
	}

	expected := computeSignature(payload, secret, timestamp)
	for _, sig := range signatures {
		if hmac.Equal(sig, expected) {
			return nil
		}
	}

	return fmt.Errorf("%w: no matching v1 signature", ErrInvalidSignature)
}

func computeSignature(payload []byte, secret string, timestamp int64) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return mac.Sum(nil)
}

// SignPayload produces a signature header for a payload. Used by tests and
// local tooling to forge deliverable webhook payloads.
func SignPayload(payload []byte, secret string, timestamp time.Time) string {
	sig := computeSignature(payload, secret, timestamp.Unix())
	return fmt.Sprintf("t=%d,v1=%s", timestamp.Unix(), hex.EncodeToString(sig))
}
