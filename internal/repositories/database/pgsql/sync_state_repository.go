package pgsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/moneywise/bank_sync/internal/apperrors"
	"github.com/moneywise/bank_sync/internal/core/domain"
	portsrepo "github.com/moneywise/bank_sync/internal/core/ports/repositories"
	"github.com/moneywise/bank_sync/internal/models"
)

type PgxSyncStateRepository struct {
	pool *pgxpool.Pool
}

// newPgxSyncStateRepository creates a new repository for sync bookkeeping.
func newPgxSyncStateRepository(pool *pgxpool.Pool) portsrepo.SyncStateRepository {
	return &PgxSyncStateRepository{pool: pool}
}

var _ portsrepo.SyncStateRepository = (*PgxSyncStateRepository)(nil)

func (r *PgxSyncStateRepository) GetSyncState(ctx context.Context, connectionID string) (*domain.SyncState, error) {
	query := `SELECT connection_id, sync_cursor, in_progress, started_at, retry_count FROM sync_states WHERE connection_id = $1;`
	var m models.SyncState
	err := r.pool.QueryRow(ctx, query, connectionID).Scan(
		&m.ConnectionID,
		&m.Cursor,
		&m.InProgress,
		&m.StartedAt,
		&m.RetryCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no sync state for connection %s", apperrors.ErrNotFound, connectionID)
		}
		return nil, fmt.Errorf("failed to get sync state for connection %s: %w", connectionID, err)
	}
	return &domain.SyncState{
		ConnectionID: m.ConnectionID,
		Cursor:       m.Cursor,
		InProgress:   domain.SyncType(m.InProgress),
		StartedAt:    m.StartedAt,
		RetryCount:   m.RetryCount,
	}, nil
}

// TryBeginSync takes the per-connection guard in a single round trip. The
// upsert's WHERE clause makes the transition conditional: when another sync
// holds the guard the update matches nothing and RowsAffected is zero. The
// cursor is left untouched so interrupted imports resume.
func (r *PgxSyncStateRepository) TryBeginSync(ctx context.Context, connectionID string, syncType domain.SyncType, now time.Time) (bool, error) {
	query := `
		INSERT INTO sync_states (connection_id, sync_cursor, in_progress, started_at, retry_count)
		VALUES ($1, '', $2, $3, 0)
		ON CONFLICT (connection_id) DO UPDATE
		SET in_progress = EXCLUDED.in_progress, started_at = EXCLUDED.started_at, retry_count = 0
		WHERE sync_states.in_progress = 'none';`
	tag, err := r.pool.Exec(ctx, query, connectionID, syncType, now)
	if err != nil {
		return false, fmt.Errorf("failed to acquire sync guard for connection %s: %w", connectionID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgxSyncStateRepository) SaveCursor(ctx context.Context, connectionID, cursor string) error {
	query := `UPDATE sync_states SET sync_cursor = $2 WHERE connection_id = $1;`
	tag, err := r.pool.Exec(ctx, query, connectionID, cursor)
	if err != nil {
		return fmt.Errorf("failed to save cursor for connection %s: %w", connectionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: no sync state for connection %s", apperrors.ErrNotFound, connectionID)
	}
	return nil
}

func (r *PgxSyncStateRepository) EndSync(ctx context.Context, connectionID string, clearCursor bool) error {
	query := `
		UPDATE sync_states
		SET in_progress = 'none',
		    started_at = NULL,
		    retry_count = 0,
		    sync_cursor = CASE WHEN $2 THEN '' ELSE sync_cursor END
		WHERE connection_id = $1;`
	if _, err := r.pool.Exec(ctx, query, connectionID, clearCursor); err != nil {
		return fmt.Errorf("failed to end sync for connection %s: %w", connectionID, err)
	}
	return nil
}

func (r *PgxSyncStateRepository) SetRetryCount(ctx context.Context, connectionID string, count int) error {
	query := `UPDATE sync_states SET retry_count = $2 WHERE connection_id = $1;`
	if _, err := r.pool.Exec(ctx, query, connectionID, count); err != nil {
		return fmt.Errorf("failed to set retry count for connection %s: %w", connectionID, err)
	}
	return nil
}
