package dto

import (
	"time"

	"github.com/moneywise/bank_sync/internal/core/ports/providers"
)

// CreateLinkSessionRequest asks for a provider-side link session.
type CreateLinkSessionRequest struct {
	Provider string `json:"provider" binding:"required"`
}

// LinkSessionResponse carries the time-boxed session handle back to the client.
type LinkSessionResponse struct {
	SessionToken string    `json:"sessionToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// ToLinkSessionResponse converts a provider link session to its API shape.
func ToLinkSessionResponse(s *providers.LinkSession) LinkSessionResponse {
	return LinkSessionResponse{
		SessionToken: s.SessionToken,
		ExpiresAt:    s.ExpiresAt,
	}
}

// CompleteLinkRequest exchanges the client-side ephemeral token for a
// long-lived connection. Safe to retry: the same token yields the same
// connection.
type CompleteLinkRequest struct {
	Provider        string `json:"provider" binding:"required"`
	EphemeralToken  string `json:"ephemeralToken" binding:"required"`
	InstitutionID   string `json:"institutionID" binding:"required"`
	InstitutionName string `json:"institutionName"`
}

// DisconnectMode selects soft (revoke, keep data) or hard (delete) disconnect.
type DisconnectMode string

const (
	DisconnectSoft DisconnectMode = "soft"
	DisconnectHard DisconnectMode = "hard"
)
