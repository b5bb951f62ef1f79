package pgsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/moneywise/bank_sync/internal/apperrors"
	"github.com/moneywise/bank_sync/internal/core/domain"
	portsrepo "github.com/moneywise/bank_sync/internal/core/ports/repositories"
	"github.com/moneywise/bank_sync/internal/models"
	"github.com/shopspring/decimal"
)

type PgxAccountRepository struct {
	pool *pgxpool.Pool
}

// newPgxAccountRepository creates a new repository for account data.
func newPgxAccountRepository(pool *pgxpool.Pool) portsrepo.AccountRepositoryFacade {
	return &PgxAccountRepository{pool: pool}
}

var _ portsrepo.AccountRepositoryFacade = (*PgxAccountRepository)(nil)

const accountColumns = `account_id, connection_id, provider_account_id, name, account_type, currency_code, current_balance, available_balance, balance_baseline, balance_refreshed_at, is_active, created_at, last_updated_at`

func toDomainAccount(m models.Account) domain.Account {
	return domain.Account{
		AccountID:          m.AccountID,
		ConnectionID:       m.ConnectionID,
		ProviderAccountID:  m.ProviderAccountID,
		Name:               m.Name,
		AccountType:        domain.AccountType(m.AccountType),
		CurrencyCode:       m.CurrencyCode,
		CurrentBalance:     m.CurrentBalance,
		AvailableBalance:   m.AvailableBalance,
		BalanceBaseline:    m.BalanceBaseline,
		BalanceRefreshedAt: m.BalanceRefreshedAt,
		IsActive:           m.IsActive,
		AuditFields: domain.AuditFields{
			CreatedAt:     m.CreatedAt,
			LastUpdatedAt: m.LastUpdatedAt,
		},
	}
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var m models.Account
	err := row.Scan(
		&m.AccountID,
		&m.ConnectionID,
		&m.ProviderAccountID,
		&m.Name,
		&m.AccountType,
		&m.CurrencyCode,
		&m.CurrentBalance,
		&m.AvailableBalance,
		&m.BalanceBaseline,
		&m.BalanceRefreshedAt,
		&m.IsActive,
		&m.CreatedAt,
		&m.LastUpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	d := toDomainAccount(m)
	return &d, nil
}

func (r *PgxAccountRepository) FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_id = $1;`
	account, err := scanAccount(r.pool.QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: account %s", apperrors.ErrNotFound, accountID)
		}
		return nil, fmt.Errorf("failed to find account %s: %w", accountID, err)
	}
	return account, nil
}

func (r *PgxAccountRepository) FindAccountsByConnection(ctx context.Context, connectionID string) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE connection_id = $1 ORDER BY provider_account_id;`
	rows, err := r.pool.Query(ctx, query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts for connection %s: %w", connectionID, err)
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func (r *PgxAccountRepository) ListAccountsByUser(ctx context.Context, userID string) ([]domain.Account, error) {
	query := `
		SELECT a.account_id, a.connection_id, a.provider_account_id, a.name, a.account_type, a.currency_code, a.current_balance, a.available_balance, a.balance_baseline, a.balance_refreshed_at, a.is_active, a.created_at, a.last_updated_at
		FROM accounts a
		JOIN connections c ON c.connection_id = a.connection_id
		WHERE c.user_id = $1 AND c.status != 'revoked' AND a.is_active
		ORDER BY c.created_at, a.provider_account_id;`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts for user %s: %w", userID, err)
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func collectAccounts(rows pgx.Rows) ([]domain.Account, error) {
	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

// UpsertAccount inserts or refreshes by the (connection_id,
// provider_account_id) natural key. currency_code and balance_baseline are
// never touched on the update path: currency is immutable and the baseline
// belongs to the reconciler.
func (r *PgxAccountRepository) UpsertAccount(ctx context.Context, account domain.Account) (*domain.Account, error) {
	if account.AccountID == "" {
		account.AccountID = uuid.NewString()
	}
	query := `
		INSERT INTO accounts (account_id, connection_id, provider_account_id, name, account_type, currency_code, current_balance, available_balance, balance_baseline, balance_refreshed_at, is_active, created_at, last_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10, $11, $12)
		ON CONFLICT (connection_id, provider_account_id) DO UPDATE SET
			name = EXCLUDED.name,
			account_type = EXCLUDED.account_type,
			current_balance = EXCLUDED.current_balance,
			available_balance = EXCLUDED.available_balance,
			balance_refreshed_at = EXCLUDED.balance_refreshed_at,
			is_active = TRUE,
			last_updated_at = EXCLUDED.last_updated_at
		RETURNING ` + accountColumns + `;`
	stored, err := scanAccount(r.pool.QueryRow(ctx, query,
		account.AccountID,
		account.ConnectionID,
		account.ProviderAccountID,
		account.Name,
		account.AccountType,
		account.CurrencyCode,
		account.CurrentBalance,
		account.AvailableBalance,
		account.LastUpdatedAt,
		account.IsActive,
		account.CreatedAt,
		account.LastUpdatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert account %s for connection %s: %w", account.ProviderAccountID, account.ConnectionID, err)
	}
	return stored, nil
}

func (r *PgxAccountRepository) UpdateAccountBalances(ctx context.Context, accountID string, current, available decimal.Decimal, now time.Time) error {
	query := `
		UPDATE accounts
		SET current_balance = $2, available_balance = $3, balance_refreshed_at = $4, last_updated_at = $4
		WHERE account_id = $1;`
	tag, err := r.pool.Exec(ctx, query, accountID, current, available, now)
	if err != nil {
		return fmt.Errorf("failed to update balances for account %s: %w", accountID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %s", apperrors.ErrNotFound, accountID)
	}
	return nil
}

func (r *PgxAccountRepository) SetBalanceBaseline(ctx context.Context, accountID string, baseline decimal.Decimal, now time.Time) error {
	query := `UPDATE accounts SET balance_baseline = $2, last_updated_at = $3 WHERE account_id = $1;`
	tag, err := r.pool.Exec(ctx, query, accountID, baseline, now)
	if err != nil {
		return fmt.Errorf("failed to set balance baseline for account %s: %w", accountID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %s", apperrors.ErrNotFound, accountID)
	}
	return nil
}

// DeactivateMissingAccounts marks accounts absent from the provider's latest
// snapshot as inactive. Rows are never deleted; their transaction history
// stays queryable.
func (r *PgxAccountRepository) DeactivateMissingAccounts(ctx context.Context, connectionID string, seenProviderIDs []string, now time.Time) error {
	query := `
		UPDATE accounts
		SET is_active = FALSE, last_updated_at = $3
		WHERE connection_id = $1 AND is_active AND NOT (provider_account_id = ANY($2));`
	if _, err := r.pool.Exec(ctx, query, connectionID, seenProviderIDs, now); err != nil {
		return fmt.Errorf("failed to deactivate missing accounts for connection %s: %w", connectionID, err)
	}
	return nil
}
