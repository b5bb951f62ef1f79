package domain

import "time"

// ConnectionStatus tracks the lifecycle of a provider link.
type ConnectionStatus string

const (
	ConnectionActive      ConnectionStatus = "active"
	ConnectionNeedsReauth ConnectionStatus = "needs_reauth"
	ConnectionError       ConnectionStatus = "error"
	ConnectionRevoked     ConnectionStatus = "revoked"
)

// Connection represents one user's authorized link to one institution via one
// provider. Exactly one non-revoked Connection may exist per
// (user, provider, institution, external item id) tuple.
type Connection struct {
	ConnectionID    string           `json:"connectionID"`
	UserID          string           `json:"userID"`
	Provider        string           `json:"provider"`
	InstitutionID   string           `json:"institutionID"`
	InstitutionName string           `json:"institutionName"`
	ExternalItemID  string           `json:"externalItemID"`
	Status          ConnectionStatus `json:"status"`
	LastSyncedAt    *time.Time       `json:"lastSyncedAt,omitempty"`
	FailureCount    int              `json:"failureCount"`
	AuditFields
}

// IsSyncable reports whether the connection may be synced at all.
// Connections in needs_reauth, error or revoked require user or operator
// action first.
func (c Connection) IsSyncable() bool {
	return c.Status == ConnectionActive
}
