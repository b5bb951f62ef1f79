package pgsql

import (
	"github.com/jackc/pgx/v5/pgxpool"
	portsrepo "github.com/moneywise/bank_sync/internal/core/ports/repositories"
)

// NewRepositoryProvider wires every pgx-backed repository over one shared
// pool.
func NewRepositoryProvider(pool *pgxpool.Pool) *portsrepo.RepositoryProvider {
	return &portsrepo.RepositoryProvider{
		ConnectionRepo:   newPgxConnectionRepository(pool),
		AccountRepo:      newPgxAccountRepository(pool),
		TransactionRepo:  newPgxTransactionRepository(pool),
		SyncStateRepo:    newPgxSyncStateRepository(pool),
		WebhookEventRepo: newPgxWebhookEventRepository(pool),
		CredentialRepo:   newPgxCredentialRepository(pool),
	}
}
