package services

import (
	"context"

	"github.com/moneywise/bank_sync/internal/core/domain"
	"github.com/moneywise/bank_sync/internal/core/ports/providers"
	"github.com/moneywise/bank_sync/internal/dto"
)

// LinkSvcFacade is the control surface the presentation layer uses to create
// and tear down provider connections.
type LinkSvcFacade interface {
	// CreateLinkSession requests a provider-side link session for the user.
	CreateLinkSession(ctx context.Context, userID, provider string) (*providers.LinkSession, error)

	// CompleteLink exchanges the ephemeral token for a connection. Idempotent
	// under client retry: re-exchanging the same token returns the existing
	// connection instead of creating a duplicate.
	CompleteLink(ctx context.Context, userID string, req dto.CompleteLinkRequest) (*domain.Connection, error)

	// ListConnections returns the user's non-revoked connections.
	ListConnections(ctx context.Context, userID string) ([]domain.Connection, error)

	// ListAccounts returns active accounts across the user's connections.
	ListAccounts(ctx context.Context, userID string) ([]domain.Account, error)

	// Disconnect revokes (soft) or deletes (hard) a connection. Hard fails
	// with apperrors.ErrHasDependentRecords while transactions reference it.
	Disconnect(ctx context.Context, connectionID string, mode dto.DisconnectMode, userID string) error
}
