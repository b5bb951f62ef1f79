package pgsql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/moneywise/bank_sync/internal/apperrors"
	"github.com/moneywise/bank_sync/internal/core/domain"
	portsrepo "github.com/moneywise/bank_sync/internal/core/ports/repositories"
	"github.com/moneywise/bank_sync/internal/models"
	"github.com/shopspring/decimal"
)

type PgxTransactionRepository struct {
	pool *pgxpool.Pool
}

// newPgxTransactionRepository creates a new repository for transaction data.
func newPgxTransactionRepository(pool *pgxpool.Pool) portsrepo.TransactionRepositoryFacade {
	return &PgxTransactionRepository{pool: pool}
}

var _ portsrepo.TransactionRepositoryFacade = (*PgxTransactionRepository)(nil)

const transactionColumns = `transaction_id, account_id, provider_transaction_id, amount, currency_code, description, merchant_name, occurred_on, pending, created_at, last_updated_at`

func toDomainTransaction(m models.Transaction) domain.Transaction {
	return domain.Transaction{
		TransactionID:         m.TransactionID,
		AccountID:             m.AccountID,
		ProviderTransactionID: m.ProviderTransactionID,
		Amount:                m.Amount,
		CurrencyCode:          m.CurrencyCode,
		Description:           m.Description,
		MerchantName:          m.MerchantName,
		OccurredOn:            m.OccurredOn,
		Pending:               m.Pending,
		AuditFields: domain.AuditFields{
			CreatedAt:     m.CreatedAt,
			LastUpdatedAt: m.LastUpdatedAt,
		},
	}
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var m models.Transaction
	var providerTxID, merchantName sql.NullString
	err := row.Scan(
		&m.TransactionID,
		&m.AccountID,
		&providerTxID,
		&m.Amount,
		&m.CurrencyCode,
		&m.Description,
		&merchantName,
		&m.OccurredOn,
		&m.Pending,
		&m.CreatedAt,
		&m.LastUpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	m.ProviderTransactionID = providerTxID.String
	m.MerchantName = merchantName.String
	d := toDomainTransaction(m)
	return &d, nil
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Begin starts the database transaction a reconciler batch runs inside.
func (r *PgxTransactionRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

func (r *PgxTransactionRepository) Commit(ctx context.Context, tx pgx.Tx) error {
	return tx.Commit(ctx)
}

func (r *PgxTransactionRepository) Rollback(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func (r *PgxTransactionRepository) FindTransactionsByAccount(ctx context.Context, accountID string, limit, offset int) ([]domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1
		ORDER BY occurred_on DESC, created_at DESC
		LIMIT $2 OFFSET $3;`
	rows, err := r.pool.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *txn)
	}
	return transactions, rows.Err()
}

func (r *PgxTransactionRepository) CountTransactionsByConnection(ctx context.Context, connectionID string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM transactions t
		JOIN accounts a ON a.account_id = t.account_id
		WHERE a.connection_id = $1;`
	var count int64
	if err := r.pool.QueryRow(ctx, query, connectionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions for connection %s: %w", connectionID, err)
	}
	return count, nil
}

func (r *PgxTransactionRepository) FindTransactionsByProviderIDsInTx(ctx context.Context, tx pgx.Tx, accountID string, providerTxIDs []string) (map[string]domain.Transaction, error) {
	existing := make(map[string]domain.Transaction, len(providerTxIDs))
	if len(providerTxIDs) == 0 {
		return existing, nil
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1 AND provider_transaction_id = ANY($2);`
	rows, err := tx.Query(ctx, query, accountID, providerTxIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions by provider ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		existing[txn.ProviderTransactionID] = *txn
	}
	return existing, rows.Err()
}

// SaveTransactionsInTx batch-inserts using a pgx batch so one page of new rows
// costs one round trip.
func (r *PgxTransactionRepository) SaveTransactionsInTx(ctx context.Context, tx pgx.Tx, transactions []domain.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}

	query := `
		INSERT INTO transactions (transaction_id, account_id, provider_transaction_id, amount, currency_code, description, merchant_name, occurred_on, pending, created_at, last_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);`

	batch := &pgx.Batch{}
	for _, txn := range transactions {
		batch.Queue(query,
			txn.TransactionID,
			txn.AccountID,
			nullable(txn.ProviderTransactionID),
			txn.Amount,
			txn.CurrencyCode,
			txn.Description,
			nullable(txn.MerchantName),
			txn.OccurredOn,
			txn.Pending,
			txn.CreatedAt,
			txn.LastUpdatedAt,
		)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for range transactions {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert transaction batch: %w", err)
		}
	}
	return nil
}

// UpdateTransactionInTx rewrites provider-supplied fields in place. created_at
// is deliberately absent from the SET list.
func (r *PgxTransactionRepository) UpdateTransactionInTx(ctx context.Context, tx pgx.Tx, transaction domain.Transaction) error {
	query := `
		UPDATE transactions
		SET amount = $2, description = $3, merchant_name = $4, occurred_on = $5, pending = $6, last_updated_at = $7
		WHERE transaction_id = $1;`
	tag, err := tx.Exec(ctx, query,
		transaction.TransactionID,
		transaction.Amount,
		transaction.Description,
		nullable(transaction.MerchantName),
		transaction.OccurredOn,
		transaction.Pending,
		transaction.LastUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", transaction.TransactionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: transaction %s", apperrors.ErrNotFound, transaction.TransactionID)
	}
	return nil
}

func (r *PgxTransactionRepository) SumSettledAmountInTx(ctx context.Context, tx pgx.Tx, accountID string) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE account_id = $1 AND NOT pending;`
	var sum decimal.Decimal
	if err := tx.QueryRow(ctx, query, accountID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum settled transactions for account %s: %w", accountID, err)
	}
	return sum, nil
}
