package models

import "time"

// SyncState is the per-connection sync bookkeeping row. in_progress doubles as
// the serialization guard: transitions away from 'none' are compare-and-set.
type SyncState struct {
	ConnectionID string     `db:"connection_id"`
	Cursor       string     `db:"sync_cursor"`
	InProgress   string     `db:"in_progress"`
	StartedAt    *time.Time `db:"started_at"` // Nullable
	RetryCount   int        `db:"retry_count"`
}
