package orders

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tixgate/internal/shared/apperrors"
)

// Webhook headers set by the payment gateway.
const (
	HeaderWebhookID        = "webhook-id"
	HeaderWebhookTimestamp = "webhook-timestamp"
	HeaderWebhookSignature = "webhook-signature"

	webhookSecretPrefix  = "whsec_"
	signatureVersionized = "v1,"
)

// WebhookVerifier checks gateway webhook authenticity. The signed content is
// "{id}.{timestamp}.{payload}" and the signature is HMAC-SHA256 under the
// base64-decoded shared secret.
type WebhookVerifier struct {
	secret    []byte
	tolerance time.Duration
}

func NewWebhookVerifier(secret string, tolerance time.Duration) (*WebhookVerifier, error) {
	raw := strings.TrimPrefix(secret, webhookSecretPrefix)
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook secret encoding: %w", err)
	}
	return &WebhookVerifier{
		secret:    decoded,
		tolerance: tolerance,
	}, nil
}

// Verify checks the timestamp freshness and any of the v1 signatures in the
// header. Returns ErrWebhookSignatureInvalid on any failure so callers cannot
// distinguish why verification failed.
func (v *WebhookVerifier) Verify(id, timestamp, signatureHeader string, payload []byte) error {
	if id == "" || timestamp == "" || signatureHeader == "" {
		return fmt.Errorf("missing webhook headers: %w", apperrors.ErrWebhookSignatureInvalid)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("bad webhook timestamp: %w", apperrors.ErrWebhookSignatureInvalid)
	}

	now := time.Now()
	sent := time.Unix(ts, 0)
	if sent.Before(now.Add(-v.tolerance)) || sent.After(now.Add(v.tolerance)) {
		return fmt.Errorf("webhook timestamp outside tolerance: %w", apperrors.ErrWebhookSignatureInvalid)
	}

	expected := v.sign(id, timestamp, payload)

	// The header may carry several space-separated signatures during secret
	// rotation; any valid v1 entry passes.
	for _, part := range strings.Fields(signatureHeader) {
		if !strings.HasPrefix(part, signatureVersionized) {
			continue
		}
		candidate, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(part, signatureVersionized))
		if err != nil {
			continue
		}
		if subtle.ConstantTimeCompare(candidate, expected) == 1 {
			return nil
		}
	}

	return apperrors.ErrWebhookSignatureInvalid
}

func (v *WebhookVerifier) sign(id, timestamp string, payload []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%s.%s.", id, timestamp)
	mac.Write(payload)
	return mac.Sum(nil)
}
