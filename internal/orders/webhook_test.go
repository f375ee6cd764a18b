package orders

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"testing"
	"time"

	"tixgate/internal/shared/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_dGVzdC13ZWJob29rLXNlY3JldC1rZXk=" // "test-webhook-secret-key"

func signPayload(t *testing.T, id, timestamp string, payload []byte) string {
	t.Helper()

	key, err := base64.StdEncoding.DecodeString("dGVzdC13ZWJob29rLXNlY3JldC1rZXk=")
	require.NoError(t, err)

	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s.%s.%s", id, timestamp, payload)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestWebhookVerify_ValidSignature(t *testing.T) {
	verifier, err := NewWebhookVerifier(testWebhookSecret, 5*time.Minute)
	require.NoError(t, err)

	payload := []byte(`{"type":"Transaction.Paid","data":{"paymentId":"pay-1"}}`)
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signature := signPayload(t, "wh-1", timestamp, payload)

	assert.NoError(t, verifier.Verify("wh-1", timestamp, signature, payload))
}

func TestWebhookVerify_MultipleSignatures(t *testing.T) {
	verifier, err := NewWebhookVerifier(testWebhookSecret, 5*time.Minute)
	require.NoError(t, err)

	payload := []byte(`{"type":"Transaction.Paid"}`)
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	good := signPayload(t, "wh-2", timestamp, payload)
	stale := "v1," + base64.StdEncoding.EncodeToString([]byte("rotated-out-signature"))

	// Any valid entry in the rotation list passes.
	assert.NoError(t, verifier.Verify("wh-2", timestamp, stale+" "+good, payload))
}

func TestWebhookVerify_TamperedPayload(t *testing.T) {
	verifier, err := NewWebhookVerifier(testWebhookSecret, 5*time.Minute)
	require.NoError(t, err)

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signature := signPayload(t, "wh-3", timestamp, []byte(`{"amount":100}`))

	err = verifier.Verify("wh-3", timestamp, signature, []byte(`{"amount":999}`))
	assert.ErrorIs(t, err, apperrors.ErrWebhookSignatureInvalid)
}

func TestWebhookVerify_StaleTimestamp(t *testing.T) {
	verifier, err := NewWebhookVerifier(testWebhookSecret, 5*time.Minute)
	require.NoError(t, err)

	payload := []byte(`{}`)
	timestamp := strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10)
	signature := signPayload(t, "wh-4", timestamp, payload)

	err = verifier.Verify("wh-4", timestamp, signature, payload)
	assert.ErrorIs(t, err, apperrors.ErrWebhookSignatureInvalid)
}

func TestWebhookVerify_MissingHeaders(t *testing.T) {
	verifier, err := NewWebhookVerifier(testWebhookSecret, 5*time.Minute)
	require.NoError(t, err)

	err = verifier.Verify("", "", "", []byte(`{}`))
	assert.ErrorIs(t, err, apperrors.ErrWebhookSignatureInvalid)
}

func TestNewWebhookVerifier_BadSecret(t *testing.T) {
	_, err := NewWebhookVerifier("whsec_!!!not-base64!!!", 5*time.Minute)
	assert.Error(t, err)
}
