package dto

import (
	"time"

	"github.com/moneywise/bank_sync/internal/core/domain"
)

// ConnectionResponse is the API shape of a connection. Status lets the
// presentation layer distinguish active links from ones needing attention.
type ConnectionResponse struct {
	ConnectionID    string     `json:"connectionID"`
	Provider        string     `json:"provider"`
	InstitutionID   string     `json:"institutionID"`
	InstitutionName string     `json:"institutionName"`
	Status          string     `json:"status"`
	LastSyncedAt    *time.Time `json:"lastSyncedAt,omitempty"`
	FailureCount    int        `json:"failureCount"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// ToConnectionResponse converts a domain connection to its API shape.
func ToConnectionResponse(c *domain.Connection) ConnectionResponse {
	return ConnectionResponse{
		ConnectionID:    c.ConnectionID,
		Provider:        c.Provider,
		InstitutionID:   c.InstitutionID,
		InstitutionName: c.InstitutionName,
		Status:          string(c.Status),
		LastSyncedAt:    c.LastSyncedAt,
		FailureCount:    c.FailureCount,
		CreatedAt:       c.CreatedAt,
	}
}

// ToConnectionResponses converts a slice of domain connections.
func ToConnectionResponses(cs []domain.Connection) []ConnectionResponse {
	out := make([]ConnectionResponse, len(cs))
	for i := range cs {
		out[i] = ToConnectionResponse(&cs[i])
	}
	return out
}
