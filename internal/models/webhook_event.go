package models

import "time"

// WebhookEvent is one recorded inbound delivery. (provider, event_id) is
// unique so duplicate deliveries short-circuit before routing.
type WebhookEvent struct {
	Provider   string    `db:"provider"`
	EventID    string    `db:"event_id"`
	ReceivedAt time.Time `db:"received_at"`
	Processed  bool      `db:"processed"`
}
