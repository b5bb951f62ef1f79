package services

import (
	"context"
	"net/http"
)

// WebhookProcessorSvc verifies, deduplicates and routes inbound provider
// events. Processing is bounded: routing only enqueues work, it never waits
// on a sync.
type WebhookProcessorSvc interface {
	// Process handles one delivery. Returns apperrors.ErrSignatureInvalid for
	// unverifiable payloads and nil for replays of already-recorded events.
	Process(ctx context.Context, provider string, rawBody []byte, headers http.Header) error
}
