package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/moneywise/bank_sync/internal/core/domain"
	"github.com/shopspring/decimal"
)

// TransactionReader defines read operations for transaction data.
type TransactionReader interface {
	// FindTransactionsByAccount retrieves a paginated transaction list, newest
	// first.
	FindTransactionsByAccount(ctx context.Context, accountID string, limit, offset int) ([]domain.Transaction, error)

	// CountTransactionsByConnection counts transactions across all of a
	// connection's accounts. Used to refuse hard disconnects.
	CountTransactionsByConnection(ctx context.Context, connectionID string) (int64, error)
}

// TransactionBatchSupport defines the in-transaction operations the reconciler
// uses so a partially-applied batch never becomes visible.
type TransactionBatchSupport interface {
	// FindTransactionsByProviderIDsInTx retrieves existing rows for the dedup
	// key set, keyed by provider transaction id.
	FindTransactionsByProviderIDsInTx(ctx context.Context, tx pgx.Tx, accountID string, providerTxIDs []string) (map[string]domain.Transaction, error)

	// SaveTransactionsInTx batch-inserts new rows.
	SaveTransactionsInTx(ctx context.Context, tx pgx.Tx, transactions []domain.Transaction) error

	// UpdateTransactionInTx updates a row in place, preserving created_at.
	UpdateTransactionInTx(ctx context.Context, tx pgx.Tx, transaction domain.Transaction) error

	// SumSettledAmountInTx sums all non-pending amounts for the account.
	SumSettledAmountInTx(ctx context.Context, tx pgx.Tx, accountID string) (decimal.Decimal, error)
}

// TransactionManager exposes the transactional boundary around reconciler
// batches.
type TransactionManager interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Commit(ctx context.Context, tx pgx.Tx) error
	Rollback(ctx context.Context, tx pgx.Tx) error
}

// TransactionRepositoryFacade combines all transaction repository interfaces.
type TransactionRepositoryFacade interface {
	TransactionReader
	TransactionBatchSupport
	TransactionManager
}
