package clients

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/apperrors"
)

// SignatureHeader carries the processor signature on webhook deliveries.
const SignatureHeader = "Stripe-Signature"

const signatureScheme = "v1"

// DefaultTolerance bounds how old a signed timestamp may be.
const DefaultTolerance = 5 * time.Minute

// WebhookVerifier checks processor signatures of the form
// "t=<unix>,v1=<hex hmac-sha256 of t.payload>".
type WebhookVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewWebhookVerifier(secret string, tolerance time.Duration) *WebhookVerifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &WebhookVerifier{
		secret:    []byte(secret),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// WithClock replaces the time source.
func (v *WebhookVerifier) WithClock(now func() time.Time) *WebhookVerifier {
	v.now = now
	return v
}

// Verify authenticates payload, which must be the raw request body exactly as received.
func (v *WebhookVerifier) Verify(payload []byte, header string) error {
	if len(v.secret) == 0 {
		return apperrors.SignatureInvalid("webhook signing secret is not configured")
	}
	if header == "" {
		return apperrors.SignatureInvalid("missing %s header", SignatureHeader)
	}

	h, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	age := v.now().Sub(time.Unix(h.timestamp, 0))
	if age > v.tolerance || age < -v.tolerance {
		return apperrors.SignatureInvalid("signature timestamp outside the %s tolerance", v.tolerance)
	}

	// The MAC covers the timestamp exactly as sent, not its parsed value.
	expected := computeMAC(v.secret, h.rawTimestamp, payload)
	for _, sig := range h.signatures {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return apperrors.SignatureInvalid("no signature matches the payload")
}

type signatureHeader struct {
	rawTimestamp string
	timestamp    int64
	signatures   [][]byte
}

func parseSignatureHeader(header string) (*signatureHeader, error) {
	var (
		h        signatureHeader
		haveTime bool
	)

	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, apperrors.SignatureInvalid("malformed signature timestamp")
			}
			h.rawTimestamp, h.timestamp, haveTime = value, ts, true
		case signatureScheme:
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			h.signatures = append(h.signatures, sig)
		}
	}

	if !haveTime {
		return nil, apperrors.SignatureInvalid("signature header has no timestamp")
	}
	if len(h.signatures) == 0 {
		return nil, apperrors.SignatureInvalid("signature header has no %s signature", signatureScheme)
	}
	return &h, nil
}

func computeMAC(secret []byte, timestamp string, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// SignPayload builds a signature header value for payload at ts. It is used
// by tests and local tooling that replay processor deliveries.
func SignPayload(secret string, ts time.Time, payload []byte) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	sig := hex.EncodeToString(computeMAC([]byte(secret), unix, payload))
	return "t=" + unix + "," + signatureScheme + "=" + sig
}
