package models

import "time"

// ConnectionStatus mirrors domain.ConnectionStatus for storage.
type ConnectionStatus string

// Connection is the persisted form of a provider link.
// Uniqueness: one non-revoked row per (user_id, provider, institution_id,
// external_item_id), enforced by a partial unique index.
type Connection struct {
	ConnectionID    string           `db:"connection_id"`
	UserID          string           `db:"user_id"`
	Provider        string           `db:"provider"`
	InstitutionID   string           `db:"institution_id"`
	InstitutionName string           `db:"institution_name"`
	ExternalItemID  string           `db:"external_item_id"`
	Status          ConnectionStatus `db:"status"`
	LastSyncedAt    *time.Time       `db:"last_synced_at"` // Nullable
	FailureCount    int              `db:"failure_count"`
	AuditFields
}
