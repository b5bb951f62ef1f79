package pgsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/moneywise/bank_sync/internal/apperrors"
	"github.com/moneywise/bank_sync/internal/core/domain"
	portsrepo "github.com/moneywise/bank_sync/internal/core/ports/repositories"
	"github.com/moneywise/bank_sync/internal/models"
)

type PgxConnectionRepository struct {
	pool *pgxpool.Pool
}

// newPgxConnectionRepository creates a new repository for connection data.
func newPgxConnectionRepository(pool *pgxpool.Pool) portsrepo.ConnectionRepositoryFacade {
	return &PgxConnectionRepository{pool: pool}
}

var _ portsrepo.ConnectionRepositoryFacade = (*PgxConnectionRepository)(nil)

const connectionColumns = `connection_id, user_id, provider, institution_id, institution_name, external_item_id, status, last_synced_at, failure_count, created_at, last_updated_at`

func toDomainConnection(m models.Connection) domain.Connection {
	return domain.Connection{
		ConnectionID:    m.ConnectionID,
		UserID:          m.UserID,
		Provider:        m.Provider,
		InstitutionID:   m.InstitutionID,
		InstitutionName: m.InstitutionName,
		ExternalItemID:  m.ExternalItemID,
		Status:          domain.ConnectionStatus(m.Status),
		LastSyncedAt:    m.LastSyncedAt,
		FailureCount:    m.FailureCount,
		AuditFields: domain.AuditFields{
			CreatedAt:     m.CreatedAt,
			LastUpdatedAt: m.LastUpdatedAt,
		},
	}
}

func scanConnection(row pgx.Row) (*domain.Connection, error) {
	var m models.Connection
	err := row.Scan(
		&m.ConnectionID,
		&m.UserID,
		&m.Provider,
		&m.InstitutionID,
		&m.InstitutionName,
		&m.ExternalItemID,
		&m.Status,
		&m.LastSyncedAt,
		&m.FailureCount,
		&m.CreatedAt,
		&m.LastUpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	d := toDomainConnection(m)
	return &d, nil
}

func (r *PgxConnectionRepository) FindConnectionByID(ctx context.Context, connectionID string) (*domain.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE connection_id = $1;`
	conn, err := scanConnection(r.pool.QueryRow(ctx, query, connectionID))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: connection %s", apperrors.ErrNotFound, connectionID)
		}
		return nil, fmt.Errorf("failed to find connection %s: %w", connectionID, err)
	}
	return conn, nil
}

func (r *PgxConnectionRepository) FindConnectionByExternalItem(ctx context.Context, userID, provider, institutionID, externalItemID string) (*domain.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE user_id = $1 AND provider = $2 AND institution_id = $3 AND external_item_id = $4 AND status != 'revoked';`
	conn, err := scanConnection(r.pool.QueryRow(ctx, query, userID, provider, institutionID, externalItemID))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: no connection for item %s", apperrors.ErrNotFound, externalItemID)
		}
		return nil, fmt.Errorf("failed to find connection by external item: %w", err)
	}
	return conn, nil
}

func (r *PgxConnectionRepository) FindConnectionByProviderItem(ctx context.Context, provider, externalItemID string) (*domain.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE provider = $1 AND external_item_id = $2 AND status != 'revoked';`
	conn, err := scanConnection(r.pool.QueryRow(ctx, query, provider, externalItemID))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: no connection for item %s", apperrors.ErrNotFound, externalItemID)
		}
		return nil, fmt.Errorf("failed to find connection by provider item: %w", err)
	}
	return conn, nil
}

func (r *PgxConnectionRepository) ListConnectionsByUser(ctx context.Context, userID string) ([]domain.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE user_id = $1 AND status != 'revoked'
		ORDER BY created_at;`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections for user %s: %w", userID, err)
	}
	defer rows.Close()
	return collectConnections(rows)
}

func (r *PgxConnectionRepository) ListSyncableConnections(ctx context.Context, lastSyncedBefore time.Time) ([]domain.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE status = 'active' AND (last_synced_at IS NULL OR last_synced_at < $1)
		ORDER BY last_synced_at NULLS FIRST;`
	rows, err := r.pool.Query(ctx, query, lastSyncedBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to list syncable connections: %w", err)
	}
	defer rows.Close()
	return collectConnections(rows)
}

func collectConnections(rows pgx.Rows) ([]domain.Connection, error) {
	var connections []domain.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		connections = append(connections, *conn)
	}
	return connections, rows.Err()
}

func (r *PgxConnectionRepository) SaveConnection(ctx context.Context, connection domain.Connection) error {
	query := `
		INSERT INTO connections (connection_id, user_id, provider, institution_id, institution_name, external_item_id, status, last_synced_at, failure_count, created_at, last_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);`
	_, err := r.pool.Exec(ctx, query,
		connection.ConnectionID,
		connection.UserID,
		connection.Provider,
		connection.InstitutionID,
		connection.InstitutionName,
		connection.ExternalItemID,
		connection.Status,
		connection.LastSyncedAt,
		connection.FailureCount,
		connection.CreatedAt,
		connection.LastUpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // Unique violation
			return fmt.Errorf("%w: connection for item %s already exists", apperrors.ErrDuplicate, connection.ExternalItemID)
		}
		return fmt.Errorf("failed to save connection %s: %w", connection.ConnectionID, err)
	}
	return nil
}

func (r *PgxConnectionRepository) UpdateConnectionStatus(ctx context.Context, connectionID string, status domain.ConnectionStatus, now time.Time) error {
	query := `UPDATE connections SET status = $2, last_updated_at = $3 WHERE connection_id = $1;`
	tag, err := r.pool.Exec(ctx, query, connectionID, status, now)
	if err != nil {
		return fmt.Errorf("failed to update status for connection %s: %w", connectionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: connection %s", apperrors.ErrNotFound, connectionID)
	}
	return nil
}

func (r *PgxConnectionRepository) MarkConnectionSynced(ctx context.Context, connectionID string, now time.Time) error {
	query := `
		UPDATE connections
		SET last_synced_at = $2, failure_count = 0, status = 'active', last_updated_at = $2
		WHERE connection_id = $1;`
	tag, err := r.pool.Exec(ctx, query, connectionID, now)
	if err != nil {
		return fmt.Errorf("failed to mark connection %s synced: %w", connectionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: connection %s", apperrors.ErrNotFound, connectionID)
	}
	return nil
}

func (r *PgxConnectionRepository) IncrementConnectionFailure(ctx context.Context, connectionID string, now time.Time) (int, error) {
	query := `
		UPDATE connections
		SET failure_count = failure_count + 1, last_updated_at = $2
		WHERE connection_id = $1
		RETURNING failure_count;`
	var count int
	err := r.pool.QueryRow(ctx, query, connectionID, now).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: connection %s", apperrors.ErrNotFound, connectionID)
		}
		return 0, fmt.Errorf("failed to increment failure count for connection %s: %w", connectionID, err)
	}
	return count, nil
}

func (r *PgxConnectionRepository) RevokeConnection(ctx context.Context, connectionID string, now time.Time) error {
	return r.UpdateConnectionStatus(ctx, connectionID, domain.ConnectionRevoked, now)
}

// DeleteConnection removes the connection row along with its credential,
// accounts and sync bookkeeping in one transaction. The caller has already
// verified no transactions remain.
func (r *PgxConnectionRepository) DeleteConnection(ctx context.Context, connectionID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // Rollback after commit is a no-op

	for _, query := range []string{
		`DELETE FROM credentials WHERE connection_id = $1;`,
		`DELETE FROM sync_states WHERE connection_id = $1;`,
		`DELETE FROM accounts WHERE connection_id = $1;`,
	} {
		if _, err := tx.Exec(ctx, query, connectionID); err != nil {
			return fmt.Errorf("failed to delete dependents of connection %s: %w", connectionID, err)
		}
	}

	tag, err := tx.Exec(ctx, `DELETE FROM connections WHERE connection_id = $1;`, connectionID)
	if err != nil {
		return fmt.Errorf("failed to delete connection %s: %w", connectionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: connection %s", apperrors.ErrNotFound, connectionID)
	}

	return tx.Commit(ctx)
}
