package finbridge

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/moneywise/bank_sync/internal/apperrors"
	"github.com/moneywise/bank_sync/internal/core/ports/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test_0123456789"

func testAdapter() *Adapter {
	return New(Config{
		BaseURL:       "https://sandbox.finbridge.test",
		ClientID:      "client-id",
		ClientSecret:  "client-secret",
		WebhookSecret: testWebhookSecret,
	})
}

func signHMAC(t *testing.T, body []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func signJWT(t *testing.T, body []byte, secret string) string {
	t.Helper()
	hash := sha256.Sum256(body)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		bodyHashClaim: hex.EncodeToString(hash[:]),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyWebhookSignature_ValidHMAC(t *testing.T) {
	adapter := testAdapter()
	body := []byte(`{"webhook_id":"wh-1","event_type":"transactions.sync_updates_available","item_id":"item-9"}`)
	headers := http.Header{}
	headers.Set(signatureHeader, signHMAC(t, body))

	envelope, err := adapter.VerifyWebhookSignature(body, headers)

	require.NoError(t, err)
	assert.Equal(t, ProviderName, envelope.Provider)
	assert.Equal(t, "wh-1", envelope.EventID)
	assert.Equal(t, providers.EventTransactionsUpdated, envelope.EventType)
	assert.Equal(t, "item-9", envelope.ExternalItemID)
}

func TestVerifyWebhookSignature_TamperedBody(t *testing.T) {
	adapter := testAdapter()
	body := []byte(`{"webhook_id":"wh-1","event_type":"transactions.posted","item_id":"item-9"}`)
	headers := http.Header{}
	headers.Set(signatureHeader, signHMAC(t, body))

	tampered := append([]byte(nil), body...)
	tampered[len(tampered)-2] = 'X'

	_, err := adapter.VerifyWebhookSignature(tampered, headers)
	assert.ErrorIs(t, err, apperrors.ErrSignatureInvalid)
}

func TestVerifyWebhookSignature_NonHexSignature(t *testing.T) {
	adapter := testAdapter()
	body := []byte(`{"webhook_id":"wh-1","event_type":"info","item_id":"item-9"}`)
	headers := http.Header{}
	headers.Set(signatureHeader, "not-hex-at-all")

	_, err := adapter.VerifyWebhookSignature(body, headers)
	assert.ErrorIs(t, err, apperrors.ErrSignatureInvalid)
}

func TestVerifyWebhookSignature_NoHeaders(t *testing.T) {
	adapter := testAdapter()
	body := []byte(`{"webhook_id":"wh-1","event_type":"info","item_id":"item-9"}`)

	_, err := adapter.VerifyWebhookSignature(body, http.Header{})
	assert.ErrorIs(t, err, apperrors.ErrSignatureInvalid)
}

func TestVerifyWebhookSignature_NoSecretConfigured(t *testing.T) {
	adapter := New(Config{BaseURL: "https://sandbox.finbridge.test"})
	body := []byte(`{"webhook_id":"wh-1","event_type":"info","item_id":"item-9"}`)
	headers := http.Header{}
	headers.Set(signatureHeader, signHMAC(t, body))

	_, err := adapter.VerifyWebhookSignature(body, headers)
	assert.ErrorIs(t, err, apperrors.ErrSignatureInvalid)
}

func TestVerifyWebhookSignature_ValidJWT(t *testing.T) {
	adapter := testAdapter()
	body := []byte(`{"webhook_id":"wh-2","event_type":"item.login_required","item_id":"item-9"}`)
	headers := http.Header{}
	headers.Set(verificationHeader, signJWT(t, body, testWebhookSecret))

	envelope, err := adapter.VerifyWebhookSignature(body, headers)

	require.NoError(t, err)
	assert.Equal(t, providers.EventReauthRequired, envelope.EventType)
}

func TestVerifyWebhookSignature_JWTWrongSecret(t *testing.T) {
	adapter := testAdapter()
	body := []byte(`{"webhook_id":"wh-2","event_type":"item.login_required","item_id":"item-9"}`)
	headers := http.Header{}
	headers.Set(verificationHeader, signJWT(t, body, "some-other-secret"))

	_, err := adapter.VerifyWebhookSignature(body, headers)
	assert.ErrorIs(t, err, apperrors.ErrSignatureInvalid)
}

func TestVerifyWebhookSignature_JWTBodyMismatch(t *testing.T) {
	adapter := testAdapter()
	signedBody := []byte(`{"webhook_id":"wh-2","event_type":"info","item_id":"item-9"}`)
	deliveredBody := []byte(`{"webhook_id":"wh-2","event_type":"item.access_revoked","item_id":"item-9"}`)
	headers := http.Header{}
	headers.Set(verificationHeader, signJWT(t, signedBody, testWebhookSecret))

	_, err := adapter.VerifyWebhookSignature(deliveredBody, headers)
	assert.ErrorIs(t, err, apperrors.ErrSignatureInvalid)
}

func TestVerifyWebhookSignature_MissingIdentifiers(t *testing.T) {
	adapter := testAdapter()
	body := []byte(`{"event_type":"transactions.posted"}`)
	headers := http.Header{}
	headers.Set(signatureHeader, signHMAC(t, body))

	_, err := adapter.VerifyWebhookSignature(body, headers)
	assert.ErrorIs(t, err, apperrors.ErrSignatureInvalid)
}

func TestMapEventType(t *testing.T) {
	cases := map[string]string{
		"transactions.sync_updates_available": providers.EventTransactionsUpdated,
		"transactions.posted":                 providers.EventTransactionsUpdated,
		"item.login_required":                 providers.EventReauthRequired,
		"item.access_revoked":                 providers.EventReauthRequired,
		"item.pending_expiration":             providers.EventReauthRequired,
		"item.webhook_update_acknowledged":    providers.EventInfo,
		"":                                    providers.EventInfo,
	}
	for wire, want := range cases {
		assert.Equal(t, want, mapEventType(wire), "event type %q", wire)
	}
}
