package repositories

import (
	"context"
	"time"

	"github.com/moneywise/bank_sync/internal/core/domain"
)

// SyncStateRepository defines persistence for per-connection sync bookkeeping.
type SyncStateRepository interface {
	// GetSyncState retrieves the row, or ErrNotFound if no sync ever ran.
	GetSyncState(ctx context.Context, connectionID string) (*domain.SyncState, error)

	// TryBeginSync atomically transitions in_progress from none to syncType,
	// creating the row if absent. Returns false when another sync holds the
	// guard. Single round trip; never read-then-write.
	TryBeginSync(ctx context.Context, connectionID string, syncType domain.SyncType, now time.Time) (bool, error)

	// SaveCursor persists the continuation checkpoint after each page so a
	// crash mid-import resumes instead of restarting.
	SaveCursor(ctx context.Context, connectionID, cursor string) error

	// EndSync releases the guard (in_progress back to none), optionally
	// clearing the cursor on a completed run. Also used as the force-reset
	// path when a sync overruns its deadline.
	EndSync(ctx context.Context, connectionID string, clearCursor bool) error

	// SetRetryCount records how many transient-failure retries the current
	// attempt has consumed.
	SetRetryCount(ctx context.Context, connectionID string, count int) error
}
