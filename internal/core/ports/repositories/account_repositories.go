package repositories

import (
	"context"
	"time"

	"github.com/moneywise/bank_sync/internal/core/domain"
	"github.com/shopspring/decimal"
)

// AccountReader defines read operations for account data.
type AccountReader interface {
	// FindAccountByID retrieves a specific account by its unique identifier.
	FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error)

	// FindAccountsByConnection retrieves all accounts under a connection,
	// active or not.
	FindAccountsByConnection(ctx context.Context, connectionID string) ([]domain.Account, error)

	// ListAccountsByUser retrieves active accounts across all of a user's
	// non-revoked connections.
	ListAccountsByUser(ctx context.Context, userID string) ([]domain.Account, error)
}

// AccountWriter defines write operations for account data.
type AccountWriter interface {
	// UpsertAccount inserts or updates by the (connection_id,
	// provider_account_id) natural key and returns the stored row. Currency is
	// immutable after creation: updates never touch currency_code.
	UpsertAccount(ctx context.Context, account domain.Account) (*domain.Account, error)

	// UpdateAccountBalances persists provider-reported balances.
	UpdateAccountBalances(ctx context.Context, accountID string, current, available decimal.Decimal, now time.Time) error

	// SetBalanceBaseline persists the reconciliation baseline established at
	// the end of the initial import.
	SetBalanceBaseline(ctx context.Context, accountID string, baseline decimal.Decimal, now time.Time) error

	// DeactivateMissingAccounts marks accounts the provider stopped reporting
	// as inactive (never deleted). seenProviderIDs is the current snapshot.
	DeactivateMissingAccounts(ctx context.Context, connectionID string, seenProviderIDs []string, now time.Time) error
}

// AccountRepositoryFacade combines all account repository interfaces.
type AccountRepositoryFacade interface {
	AccountReader
	AccountWriter
}
