package repositories

import (
	"context"
	"time"

	"github.com/moneywise/bank_sync/internal/core/domain"
)

// ConnectionReader defines read operations for connection data.
type ConnectionReader interface {
	// FindConnectionByID retrieves a connection by its unique identifier.
	FindConnectionByID(ctx context.Context, connectionID string) (*domain.Connection, error)

	// FindConnectionByExternalItem retrieves the non-revoked connection for the
	// natural key. This is the lookup that makes credential exchange idempotent.
	FindConnectionByExternalItem(ctx context.Context, userID, provider, institutionID, externalItemID string) (*domain.Connection, error)

	// FindConnectionByProviderItem retrieves the non-revoked connection a
	// webhook refers to (webhooks carry the provider's item id, not a user id).
	FindConnectionByProviderItem(ctx context.Context, provider, externalItemID string) (*domain.Connection, error)

	// ListConnectionsByUser returns all non-revoked connections owned by a user.
	ListConnectionsByUser(ctx context.Context, userID string) ([]domain.Connection, error)

	// ListSyncableConnections returns active connections whose last successful
	// sync is older than the given instant, for the daily scheduler.
	ListSyncableConnections(ctx context.Context, lastSyncedBefore time.Time) ([]domain.Connection, error)
}

// ConnectionWriter defines write operations for connection data.
type ConnectionWriter interface {
	// SaveConnection persists a new connection.
	SaveConnection(ctx context.Context, connection domain.Connection) error

	// UpdateConnectionStatus transitions the connection's status.
	UpdateConnectionStatus(ctx context.Context, connectionID string, status domain.ConnectionStatus, now time.Time) error

	// MarkConnectionSynced records a successful sync: sets last_synced_at,
	// resets the failure counter and restores active status.
	MarkConnectionSynced(ctx context.Context, connectionID string, now time.Time) error

	// IncrementConnectionFailure bumps the consecutive-failure counter and
	// returns the new count.
	IncrementConnectionFailure(ctx context.Context, connectionID string, now time.Time) (int, error)

	// RevokeConnection soft-revokes the connection (status revoked, row kept).
	RevokeConnection(ctx context.Context, connectionID string, now time.Time) error

	// DeleteConnection hard-deletes the connection, its accounts, credential
	// and sync state. Callers must verify no transactions reference it first.
	DeleteConnection(ctx context.Context, connectionID string) error
}

// ConnectionRepositoryFacade combines all connection repository interfaces.
type ConnectionRepositoryFacade interface {
	ConnectionReader
	ConnectionWriter
}
