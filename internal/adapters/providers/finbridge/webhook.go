package finbridge

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/moneywise/bank_sync/internal/apperrors"
	"github.com/moneywise/bank_sync/internal/core/ports/providers"
)

// Finbridge signs webhooks one of two ways: a raw HMAC-SHA256 of the body in
// X-Finbridge-Signature (current), or an HS256 JWT in Finbridge-Verification
// carrying the body's SHA-256 (legacy deliveries). Either must verify before
// a single byte of the payload is trusted.
const (
	signatureHeader    = "X-Finbridge-Signature"
	verificationHeader = "Finbridge-Verification"
	bodyHashClaim      = "request_body_sha256"
)

type webhookPayload struct {
	WebhookID string `json:"webhook_id"`
	EventType string `json:"event_type"`
	ItemID    string `json:"item_id"`
}

func (a *Adapter) VerifyWebhookSignature(rawBody []byte, headers http.Header) (*providers.EventEnvelope, error) {
	if len(a.webhookSecret) == 0 {
		return nil, fmt.Errorf("%w: no webhook secret configured", apperrors.ErrSignatureInvalid)
	}

	switch {
	case headers.Get(signatureHeader) != "":
		if err := a.verifyHMAC(rawBody, headers.Get(signatureHeader)); err != nil {
			return nil, err
		}
	case headers.Get(verificationHeader) != "":
		if err := a.verifyJWT(rawBody, headers.Get(verificationHeader)); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: no signature header present", apperrors.ErrSignatureInvalid)
	}

	var payload webhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, fmt.Errorf("%w: unparseable webhook body", apperrors.ErrSignatureInvalid)
	}
	if payload.WebhookID == "" || payload.ItemID == "" {
		return nil, fmt.Errorf("%w: webhook body missing identifiers", apperrors.ErrSignatureInvalid)
	}

	return &providers.EventEnvelope{
		Provider:       ProviderName,
		EventID:        payload.WebhookID,
		EventType:      mapEventType(payload.EventType),
		ExternalItemID: payload.ItemID,
	}, nil
}

func (a *Adapter) verifyHMAC(rawBody []byte, signature string) error {
	claimed, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: signature is not hex", apperrors.ErrSignatureInvalid)
	}

	mac := hmac.New(sha256.New, a.webhookSecret)
	mac.Write(rawBody)
	if !hmac.Equal(claimed, mac.Sum(nil)) {
		return apperrors.ErrSignatureInvalid
	}
	return nil
}

func (a *Adapter) verifyJWT(rawBody []byte, tokenString string) error {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.webhookSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return apperrors.ErrSignatureInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return apperrors.ErrSignatureInvalid
	}
	claimedHash, _ := claims[bodyHashClaim].(string)
	claimed, err := hex.DecodeString(claimedHash)
	if err != nil {
		return apperrors.ErrSignatureInvalid
	}

	actual := sha256.Sum256(rawBody)
	// The token binds the secret; the hash binds the body to the token.
	if !hmac.Equal(claimed, actual[:]) {
		return apperrors.ErrSignatureInvalid
	}
	return nil
}

// mapEventType folds Finbridge event names into the engine's routing keys.
// Unknown names route as informational, never as an error.
func mapEventType(eventType string) string {
	switch eventType {
	case "transactions.sync_updates_available", "transactions.posted":
		return providers.EventTransactionsUpdated
	case "item.login_required", "item.access_revoked", "item.pending_expiration":
		return providers.EventReauthRequired
	default:
		return providers.EventInfo
	}
}
