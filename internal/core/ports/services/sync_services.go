package services

import (
	"context"
	"time"

	"github.com/moneywise/bank_sync/internal/core/domain"
)

// SyncOrchestratorSvc sequences quota checks, provider fetches and
// reconciliation for one connection at a time. All three entry points are
// serialized per connection: a second caller gets
// apperrors.ErrSyncAlreadyInProgress instead of being queued silently.
type SyncOrchestratorSvc interface {
	// RunInitialImport performs the full-history import for a fresh
	// connection, checkpointing the cursor per page so a crash resumes.
	RunInitialImport(ctx context.Context, connectionID string) error

	// RunIncrementalSync fetches changes since the last checkpoint. Quota
	// denial is not an error: the job is rescheduled and nil is returned.
	RunIncrementalSync(ctx context.Context, connectionID string) error

	// RunManualRefresh is an incremental sync on user demand. It fails fast on
	// a non-active connection and surfaces quota denial to the caller.
	RunManualRefresh(ctx context.Context, connectionID, requestingUserID string) error
}

// SyncSchedulerSvc owns the worker pool and the daily schedule. Enqueue is
// fire-and-forget: it never blocks the caller.
type SyncSchedulerSvc interface {
	// Start launches the workers and the daily scheduler tick.
	Start(ctx context.Context)

	// Enqueue hands a job to the pool. Returns false when the queue is full;
	// the next scheduled run picks the connection up again.
	Enqueue(job domain.SyncJob) bool

	// EnqueueAfter enqueues once the delay elapses (quota/rate-limit retries).
	EnqueueAfter(job domain.SyncJob, delay time.Duration)
}
