package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/moneywise/bank_sync/internal/apperrors"
	"github.com/moneywise/bank_sync/internal/core/domain"
	portsrepo "github.com/moneywise/bank_sync/internal/core/ports/repositories"
	portssvc "github.com/moneywise/bank_sync/internal/core/ports/services"
)

// SyncRunner is the slice of the orchestrator the workers need. The scheduler
// is constructed before the orchestrator (the orchestrator wants a scheduler
// for quota retries), so the runner is attached afterwards via SetRunner.
type SyncRunner interface {
	RunInitialImport(ctx context.Context, connectionID string) error
	RunIncrementalSync(ctx context.Context, connectionID string) error
}

// syncScheduler owns the job queue, the worker pool draining it, and the
// periodic tick that sweeps every active connection into the queue.
type syncScheduler struct {
	BaseService
	connRepo portsrepo.ConnectionReader
	jobs     chan domain.SyncJob
	workers  int
	interval time.Duration

	mu     sync.RWMutex
	runner SyncRunner
}

// NewSyncScheduler creates the scheduler with a bounded queue. Jobs beyond the
// queue capacity are dropped at enqueue time; the next tick re-discovers them.
func NewSyncScheduler(connRepo portsrepo.ConnectionReader, workers, queueSize int, interval time.Duration) *syncScheduler {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &syncScheduler{
		connRepo: connRepo,
		jobs:     make(chan domain.SyncJob, queueSize),
		workers:  workers,
		interval: interval,
	}
}

var _ portssvc.SyncSchedulerSvc = (*syncScheduler)(nil)

// SetRunner attaches the orchestrator. Must be called before Start.
func (s *syncScheduler) SetRunner(runner SyncRunner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runner = runner
}

func (s *syncScheduler) Start(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		go s.worker(ctx, i)
	}
	if s.interval > 0 {
		go s.tickLoop(ctx)
	}
	s.LogInfo(ctx, "Sync scheduler started",
		slog.Int("workers", s.workers),
		slog.Int("queue_size", cap(s.jobs)),
		slog.Duration("interval", s.interval))
}

func (s *syncScheduler) Enqueue(job domain.SyncJob) bool {
	select {
	case s.jobs <- job:
		return true
	default:
		return false
	}
}

func (s *syncScheduler) EnqueueAfter(job domain.SyncJob, delay time.Duration) {
	if delay <= 0 {
		s.Enqueue(job)
		return
	}
	time.AfterFunc(delay, func() {
		// Dropped on a full queue; the next tick covers the connection.
		s.Enqueue(job)
	})
}

func (s *syncScheduler) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.jobs:
			s.process(ctx, id, job)
		}
	}
}

func (s *syncScheduler) process(ctx context.Context, workerID int, job domain.SyncJob) {
	s.mu.RLock()
	runner := s.runner
	s.mu.RUnlock()
	if runner == nil {
		s.LogError(ctx, errors.New("no sync runner attached"), "Dropping sync job",
			slog.String("connection_id", job.ConnectionID))
		return
	}

	var err error
	switch job.Type {
	case domain.SyncInitial:
		err = runner.RunInitialImport(ctx, job.ConnectionID)
	default:
		err = runner.RunIncrementalSync(ctx, job.ConnectionID)
	}

	if err != nil {
		// Guard contention is routine: a webhook-triggered sync and the daily
		// tick racing for the same connection. The loser just goes away.
		if errors.Is(err, apperrors.ErrSyncAlreadyInProgress) {
			s.LogDebug(ctx, "Sync job skipped, already in progress",
				slog.String("connection_id", job.ConnectionID))
			return
		}
		s.LogError(ctx, err, "Sync job failed",
			slog.Int("worker", workerID),
			slog.String("connection_id", job.ConnectionID),
			slog.String("sync_type", string(job.Type)))
	}
}

func (s *syncScheduler) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep enqueues every active connection whose last success predates the
// current interval. Queue overflow is fine: whatever does not fit now is still
// stale on the next tick.
func (s *syncScheduler) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.interval)
	connections, err := s.connRepo.ListSyncableConnections(ctx, cutoff)
	if err != nil {
		s.LogError(ctx, err, "Scheduled sweep failed to list connections")
		return
	}

	enqueued := 0
	for _, conn := range connections {
		if s.Enqueue(domain.SyncJob{ConnectionID: conn.ConnectionID, Type: domain.SyncIncremental}) {
			enqueued++
		}
	}
	s.LogInfo(ctx, "Scheduled sweep enqueued syncs",
		slog.Int("due", len(connections)),
		slog.Int("enqueued", enqueued))
}
