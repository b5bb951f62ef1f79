package domain

import "time"

// WebhookEvent records one inbound provider delivery for idempotency.
// An event id from a given provider is processed at most once, even under
// at-least-once redelivery.
type WebhookEvent struct {
	Provider   string    `json:"provider"`
	EventID    string    `json:"eventID"`
	ReceivedAt time.Time `json:"receivedAt"`
	Processed  bool      `json:"processed"`
}
