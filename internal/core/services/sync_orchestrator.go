package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/moneywise/bank_sync/internal/apperrors"
	"github.com/moneywise/bank_sync/internal/core/domain"
	"github.com/moneywise/bank_sync/internal/core/ports/providers"
	portsrepo "github.com/moneywise/bank_sync/internal/core/ports/repositories"
	portssvc "github.com/moneywise/bank_sync/internal/core/ports/services"
)

// Consecutive sync failures before a connection is parked in error status and
// dropped from the daily schedule.
const failureStatusThreshold = 3

// TierResolver maps a connection owner to their quota tier. Plan data lives
// outside this engine, so the billing lookup is injected.
type TierResolver func(ctx context.Context, userID string) domain.QuotaTier

// syncOrchestrator runs one sync end to end: admission, per-connection guard,
// credential retrieval, account refresh, paged transaction fetch with
// checkpointing, reconciliation and balance verification.
type syncOrchestrator struct {
	BaseService
	registry    *providers.Registry
	connRepo    portsrepo.ConnectionRepositoryFacade
	accountRepo portsrepo.AccountRepositoryFacade
	syncRepo    portsrepo.SyncStateRepository
	vault       portssvc.TokenVaultSvc
	quota       portssvc.QuotaManagerSvc
	reconciler  portssvc.TransactionReconcilerSvc
	scheduler   portssvc.SyncSchedulerSvc
	resolveTier TierResolver

	lookbackMonths int
	deadline       time.Duration
	retryMax       int
	retryBaseDelay time.Duration
}

// SyncOrchestratorOption customizes orchestrator construction.
type SyncOrchestratorOption func(*syncOrchestrator)

// WithRetryScheduler wires the scheduler used to requeue quota-denied
// background jobs. Without it, denied jobs wait for the next daily tick.
func WithRetryScheduler(scheduler portssvc.SyncSchedulerSvc) SyncOrchestratorOption {
	return func(o *syncOrchestrator) { o.scheduler = scheduler }
}

// WithTierResolver overrides the default everyone-is-free tier lookup.
func WithTierResolver(resolver TierResolver) SyncOrchestratorOption {
	return func(o *syncOrchestrator) { o.resolveTier = resolver }
}

// WithSyncTuning overrides lookback window, deadline and retry policy.
func WithSyncTuning(lookbackMonths int, deadline time.Duration, retryMax int, retryBaseDelay time.Duration) SyncOrchestratorOption {
	return func(o *syncOrchestrator) {
		o.lookbackMonths = lookbackMonths
		o.deadline = deadline
		o.retryMax = retryMax
		o.retryBaseDelay = retryBaseDelay
	}
}

// NewSyncOrchestrator creates the sync orchestrator service.
func NewSyncOrchestrator(
	registry *providers.Registry,
	connRepo portsrepo.ConnectionRepositoryFacade,
	accountRepo portsrepo.AccountRepositoryFacade,
	syncRepo portsrepo.SyncStateRepository,
	vault portssvc.TokenVaultSvc,
	quota portssvc.QuotaManagerSvc,
	reconciler portssvc.TransactionReconcilerSvc,
	opts ...SyncOrchestratorOption,
) portssvc.SyncOrchestratorSvc {
	o := &syncOrchestrator{
		registry:    registry,
		connRepo:    connRepo,
		accountRepo: accountRepo,
		syncRepo:    syncRepo,
		vault:       vault,
		quota:       quota,
		reconciler:  reconciler,
		resolveTier: func(context.Context, string) domain.QuotaTier { return domain.TierFree },

		lookbackMonths: 24,
		deadline:       10 * time.Minute,
		retryMax:       3,
		retryBaseDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

var _ portssvc.SyncOrchestratorSvc = (*syncOrchestrator)(nil)

func (o *syncOrchestrator) RunInitialImport(ctx context.Context, connectionID string) error {
	return o.run(ctx, connectionID, domain.SyncInitial, false)
}

func (o *syncOrchestrator) RunIncrementalSync(ctx context.Context, connectionID string) error {
	return o.run(ctx, connectionID, domain.SyncIncremental, false)
}

func (o *syncOrchestrator) RunManualRefresh(ctx context.Context, connectionID, requestingUserID string) error {
	connection, err := o.connRepo.FindConnectionByID(ctx, connectionID)
	if err != nil {
		return err
	}
	if connection.UserID != requestingUserID {
		return apperrors.ErrNotFound
	}
	if !connection.IsSyncable() {
		return fmt.Errorf("%w: connection %s is %s, not active", apperrors.ErrValidation, connectionID, connection.Status)
	}
	return o.run(ctx, connectionID, domain.SyncManual, true)
}

// run executes one sync. Background callers (interactive=false) absorb quota
// denial by rescheduling; interactive callers get the denial back so the API
// can answer 429.
func (o *syncOrchestrator) run(ctx context.Context, connectionID string, syncType domain.SyncType, interactive bool) error {
	connection, err := o.connRepo.FindConnectionByID(ctx, connectionID)
	if err != nil {
		return err
	}
	if !connection.IsSyncable() {
		if interactive {
			return fmt.Errorf("%w: connection %s is %s, not active", apperrors.ErrValidation, connectionID, connection.Status)
		}
		// Parked connections drop out of background syncing until repaired.
		o.LogInfo(ctx, "Skipping sync for non-active connection",
			slog.String("connection_id", connectionID),
			slog.String("status", string(connection.Status)))
		return nil
	}

	grant, err := o.quota.TryAcquire(ctx, connectionID, o.resolveTier(ctx, connection.UserID))
	if err != nil {
		return err
	}
	if !grant.Allowed {
		if interactive {
			return apperrors.NewQuotaDenied(grant.RetryAfter)
		}
		if o.scheduler != nil {
			o.scheduler.EnqueueAfter(domain.SyncJob{ConnectionID: connectionID, Type: syncType}, grant.RetryAfter)
		}
		o.LogInfo(ctx, "Sync deferred by quota",
			slog.String("connection_id", connectionID),
			slog.Duration("retry_after", grant.RetryAfter))
		return nil
	}

	now := time.Now()
	acquired, err := o.syncRepo.TryBeginSync(ctx, connectionID, syncType, now)
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("%w: connection %s", apperrors.ErrSyncAlreadyInProgress, connectionID)
	}

	completed := false
	// Release the guard even when the caller's context is already dead; the
	// cursor survives a failed run so the next attempt resumes.
	defer func() {
		if err := o.syncRepo.EndSync(context.WithoutCancel(ctx), connectionID, completed); err != nil {
			o.LogError(ctx, err, "Failed to release sync guard",
				slog.String("connection_id", connectionID))
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	if err := o.sync(runCtx, connection, syncType); err != nil {
		return o.handleFailure(ctx, connection, syncType, err)
	}

	if err := o.connRepo.MarkConnectionSynced(ctx, connectionID, time.Now()); err != nil {
		return err
	}
	completed = true

	o.LogInfo(ctx, "Sync completed",
		slog.String("connection_id", connectionID),
		slog.String("sync_type", string(syncType)))
	return nil
}

func (o *syncOrchestrator) sync(ctx context.Context, connection *domain.Connection, syncType domain.SyncType) error {
	adapter, err := o.registry.Get(connection.Provider)
	if err != nil {
		return err
	}

	token, err := o.vault.Retrieve(ctx, connection.ConnectionID)
	if err != nil {
		return err
	}

	// Accounts before transactions: every transaction row needs its account.
	var snapshots []providers.AccountSnapshot
	err = o.withRetry(ctx, connection.ConnectionID, func() error {
		var ferr error
		snapshots, ferr = adapter.FetchAccounts(ctx, token)
		return ferr
	})
	if err != nil {
		return err
	}

	now := time.Now()
	accounts := make([]domain.Account, 0, len(snapshots))
	seenProviderIDs := make([]string, 0, len(snapshots))
	balances := make(map[string]providers.AccountSnapshot, len(snapshots))
	for _, snap := range snapshots {
		stored, err := o.accountRepo.UpsertAccount(ctx, domain.Account{
			ConnectionID:      connection.ConnectionID,
			ProviderAccountID: snap.ProviderAccountID,
			Name:              snap.Name,
			AccountType:       snap.Type,
			CurrencyCode:      snap.CurrencyCode,
			CurrentBalance:    snap.CurrentBalance,
			AvailableBalance:  snap.AvailableBalance,
			IsActive:          true,
			AuditFields: domain.AuditFields{
				CreatedAt:     now,
				LastUpdatedAt: now,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to upsert account %s: %w", snap.ProviderAccountID, err)
		}
		accounts = append(accounts, *stored)
		seenProviderIDs = append(seenProviderIDs, snap.ProviderAccountID)
		balances[snap.ProviderAccountID] = snap
	}

	if err := o.accountRepo.DeactivateMissingAccounts(ctx, connection.ConnectionID, seenProviderIDs, now); err != nil {
		return err
	}

	// Deterministic order so a checkpoint identifies how far the run got.
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].ProviderAccountID < accounts[j].ProviderAccountID
	})

	since := o.sinceFor(connection, syncType, now)
	resumeAccountID, resumeCursor := o.loadCheckpoint(ctx, connection.ConnectionID)

	for _, account := range accounts {
		if resumeAccountID != "" && account.ProviderAccountID < resumeAccountID {
			// Fully imported before the interruption.
			continue
		}
		cursor := ""
		if account.ProviderAccountID == resumeAccountID {
			cursor = resumeCursor
		}

		if err := o.syncAccountTransactions(ctx, adapter, token, connection.ConnectionID, account, since, cursor); err != nil {
			return err
		}
	}

	// Balance pass after all pages landed. The initial import pins the
	// baseline; later runs verify and refresh.
	for _, account := range accounts {
		snap := balances[account.ProviderAccountID]
		if syncType == domain.SyncInitial {
			if err := o.reconciler.EstablishBaseline(ctx, account, snap.CurrentBalance, time.Now()); err != nil {
				return err
			}
			continue
		}
		if err := o.reconciler.CheckBalance(ctx, account, snap.CurrentBalance, snap.AvailableBalance, time.Now()); err != nil {
			return err
		}
	}

	return nil
}

func (o *syncOrchestrator) syncAccountTransactions(ctx context.Context, adapter providers.ProviderAdapter, token, connectionID string, account domain.Account, since time.Time, cursor string) error {
	for {
		var page *providers.TransactionPage
		err := o.withRetry(ctx, connectionID, func() error {
			var ferr error
			page, ferr = adapter.FetchTransactions(ctx, token, account.ProviderAccountID, since, cursor)
			return ferr
		})
		if err != nil {
			return err
		}

		if _, err := o.reconciler.ReconcileBatch(ctx, account, page.Transactions, time.Now()); err != nil {
			return err
		}

		// Checkpoint only after the page is durably reconciled. Replaying the
		// same page after a crash is safe; skipping one is not.
		if err := o.syncRepo.SaveCursor(ctx, connectionID, encodeCheckpoint(account.ProviderAccountID, page.NextCursor)); err != nil {
			return err
		}

		if !page.HasMore {
			return nil
		}
		cursor = page.NextCursor
	}
}

// withRetry retries transient provider failures with exponential backoff,
// honoring a provider retry-after hint when it exceeds the backoff step.
// Re-auth failures are never retried.
func (o *syncOrchestrator) withRetry(ctx context.Context, connectionID string, fn func() error) error {
	delay := o.retryBaseDelay
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				_ = o.syncRepo.SetRetryCount(ctx, connectionID, 0)
			}
			return nil
		}
		if !isTransient(err) || attempt >= o.retryMax {
			return err
		}

		wait := delay
		var rateErr *apperrors.RateLimitedError
		if errors.As(err, &rateErr) && rateErr.RetryAfter > wait {
			wait = rateErr.RetryAfter
		}

		if serr := o.syncRepo.SetRetryCount(ctx, connectionID, attempt+1); serr != nil {
			o.LogWarn(ctx, "Failed to record retry count",
				slog.String("connection_id", connectionID),
				slog.String("error", serr.Error()))
		}
		o.LogWarn(ctx, "Transient provider failure, backing off",
			slog.String("connection_id", connectionID),
			slog.Int("attempt", attempt+1),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
	}
}

func isTransient(err error) bool {
	var providerErr *apperrors.ProviderError
	return errors.Is(err, apperrors.ErrRateLimited) ||
		errors.Is(err, apperrors.ErrProviderUnavailable) ||
		errors.As(err, &providerErr)
}

// handleFailure classifies a failed run. Credential rejection parks the
// connection for user re-auth; anything else counts against the consecutive
// failure budget.
func (o *syncOrchestrator) handleFailure(ctx context.Context, connection *domain.Connection, syncType domain.SyncType, syncErr error) error {
	now := time.Now()

	if errors.Is(syncErr, apperrors.ErrReauthRequired) {
		if err := o.connRepo.UpdateConnectionStatus(ctx, connection.ConnectionID, domain.ConnectionNeedsReauth, now); err != nil {
			o.LogError(ctx, err, "Failed to park connection for re-auth",
				slog.String("connection_id", connection.ConnectionID))
		}
		o.LogWarn(ctx, "Sync halted, re-authentication required",
			slog.String("connection_id", connection.ConnectionID))
		return syncErr
	}

	count, err := o.connRepo.IncrementConnectionFailure(ctx, connection.ConnectionID, now)
	if err != nil {
		o.LogError(ctx, err, "Failed to record sync failure",
			slog.String("connection_id", connection.ConnectionID))
	} else if count >= failureStatusThreshold {
		if err := o.connRepo.UpdateConnectionStatus(ctx, connection.ConnectionID, domain.ConnectionError, now); err != nil {
			o.LogError(ctx, err, "Failed to park connection after repeated failures",
				slog.String("connection_id", connection.ConnectionID))
		}
	}

	o.LogError(ctx, syncErr, "Sync failed",
		slog.String("connection_id", connection.ConnectionID),
		slog.String("sync_type", string(syncType)),
		slog.Int("consecutive_failures", count))
	return syncErr
}

// sinceFor picks the fetch window start: full lookback for an initial import,
// last successful sync (with the lookback as floor) afterwards.
func (o *syncOrchestrator) sinceFor(connection *domain.Connection, syncType domain.SyncType, now time.Time) time.Time {
	lookback := now.AddDate(0, -o.lookbackMonths, 0)
	if syncType == domain.SyncInitial || connection.LastSyncedAt == nil {
		return lookback
	}
	return *connection.LastSyncedAt
}

func (o *syncOrchestrator) loadCheckpoint(ctx context.Context, connectionID string) (accountID, cursor string) {
	state, err := o.syncRepo.GetSyncState(ctx, connectionID)
	if err != nil || state.Cursor == "" {
		return "", ""
	}
	return decodeCheckpoint(state.Cursor)
}

// Checkpoints are stored as "<providerAccountID>:<cursor>" so a resumed run
// knows both which account was in flight and where within its stream.
func encodeCheckpoint(providerAccountID, cursor string) string {
	return providerAccountID + ":" + cursor
}

func decodeCheckpoint(checkpoint string) (accountID, cursor string) {
	accountID, cursor, found := strings.Cut(checkpoint, ":")
	if !found {
		return "", ""
	}
	return accountID, cursor
}
