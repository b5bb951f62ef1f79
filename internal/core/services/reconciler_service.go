package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/moneywise/bank_sync/internal/apperrors"
	"github.com/moneywise/bank_sync/internal/core/domain"
	"github.com/moneywise/bank_sync/internal/core/ports/providers"
	portsrepo "github.com/moneywise/bank_sync/internal/core/ports/repositories"
	portssvc "github.com/moneywise/bank_sync/internal/core/ports/services"
	"github.com/shopspring/decimal"
)

// balanceEpsilon is the tolerated gap between the recomputed balance and the
// provider-reported one before a reconciliation warning is logged.
var balanceEpsilon = decimal.NewFromFloat(0.01)

// transactionReconciler merges provider snapshots into persisted state. Naive
// upsert-and-overwrite would mask provider-side corrections as ordinary
// updates; the settle/anomaly split below keeps those visible.
type transactionReconciler struct {
	BaseService
	txRepo      portsrepo.TransactionRepositoryFacade
	accountRepo portsrepo.AccountRepositoryFacade
}

// NewTransactionReconciler creates the reconciler service.
func NewTransactionReconciler(txRepo portsrepo.TransactionRepositoryFacade, accountRepo portsrepo.AccountRepositoryFacade) portssvc.TransactionReconcilerSvc {
	return &transactionReconciler{txRepo: txRepo, accountRepo: accountRepo}
}

var _ portssvc.TransactionReconcilerSvc = (*transactionReconciler)(nil)

func (r *transactionReconciler) ReconcileBatch(ctx context.Context, account domain.Account, snapshots []providers.TransactionSnapshot, now time.Time) (*portssvc.ReconcileResult, error) {
	result := &portssvc.ReconcileResult{}
	if len(snapshots) == 0 {
		return result, nil
	}

	tx, err := r.txRepo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	// Rollback is a no-op after commit.
	defer func() { _ = r.txRepo.Rollback(ctx, tx) }()

	providerIDs := make([]string, 0, len(snapshots))
	for _, snap := range snapshots {
		if snap.ProviderTransactionID != "" {
			providerIDs = append(providerIDs, snap.ProviderTransactionID)
		}
	}

	existing, err := r.txRepo.FindTransactionsByProviderIDsInTx(ctx, tx, account.AccountID, providerIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing transactions for account %s: %w", account.AccountID, err)
	}

	var inserts []domain.Transaction
	for _, snap := range snapshots {
		stored, found := existing[snap.ProviderTransactionID]
		if snap.ProviderTransactionID == "" || !found {
			inserts = append(inserts, domain.Transaction{
				TransactionID:         uuid.NewString(),
				AccountID:             account.AccountID,
				ProviderTransactionID: snap.ProviderTransactionID,
				Amount:                snap.Amount,
				CurrencyCode:          snap.CurrencyCode,
				Description:           snap.Description,
				MerchantName:          snap.MerchantName,
				OccurredOn:            snap.OccurredOn,
				Pending:               snap.Pending,
				AuditFields: domain.AuditFields{
					CreatedAt:     now,
					LastUpdatedAt: now,
				},
			})
			result.Inserted++
			continue
		}

		switch {
		case stored.Pending && !snap.Pending:
			// Settle in place; created_at is preserved by the update.
			updated := r.applySnapshot(stored, snap, now)
			if err := r.txRepo.UpdateTransactionInTx(ctx, tx, updated); err != nil {
				return nil, fmt.Errorf("failed to settle transaction %s: %w", stored.TransactionID, err)
			}
			result.Settled++

		case stored.Pending && !stored.Amount.Equal(snap.Amount):
			// Pending rows are still mutable upstream; a corrected amount is an
			// ordinary update, not an anomaly.
			updated := r.applySnapshot(stored, snap, now)
			if err := r.txRepo.UpdateTransactionInTx(ctx, tx, updated); err != nil {
				return nil, fmt.Errorf("failed to update transaction %s: %w", stored.TransactionID, err)
			}
			result.Updated++

		case !stored.Pending && !stored.Amount.Equal(snap.Amount):
			// Settled amounts should not change. Surface, never overwrite.
			r.LogWarn(ctx, "Reconciliation anomaly: settled amount changed",
				slog.String("account_id", account.AccountID),
				slog.String("provider_transaction_id", snap.ProviderTransactionID),
				slog.String("stored_amount", stored.Amount.String()),
				slog.String("incoming_amount", snap.Amount.String()),
				slog.String("error", apperrors.ErrReconciliationAnomaly.Error()))
			result.Anomalies = append(result.Anomalies, snap.ProviderTransactionID)

		case stored.Description != snap.Description || stored.MerchantName != snap.MerchantName:
			// Cosmetic correction only.
			updated := stored
			updated.Description = snap.Description
			updated.MerchantName = snap.MerchantName
			updated.LastUpdatedAt = now
			if err := r.txRepo.UpdateTransactionInTx(ctx, tx, updated); err != nil {
				return nil, fmt.Errorf("failed to update transaction %s: %w", stored.TransactionID, err)
			}
			result.Updated++
		}
	}

	if len(inserts) > 0 {
		if err := r.txRepo.SaveTransactionsInTx(ctx, tx, inserts); err != nil {
			return nil, fmt.Errorf("failed to insert transaction batch for account %s: %w", account.AccountID, err)
		}
	}

	if err := r.txRepo.Commit(ctx, tx); err != nil {
		return nil, err
	}

	r.LogDebug(ctx, "Reconciled transaction batch",
		slog.String("account_id", account.AccountID),
		slog.Int("inserted", result.Inserted),
		slog.Int("settled", result.Settled),
		slog.Int("updated", result.Updated),
		slog.Int("anomalies", len(result.Anomalies)))
	return result, nil
}

// applySnapshot carries provider fields onto the stored row while keeping
// identity and creation time.
func (r *transactionReconciler) applySnapshot(stored domain.Transaction, snap providers.TransactionSnapshot, now time.Time) domain.Transaction {
	stored.Amount = snap.Amount
	stored.Description = snap.Description
	stored.MerchantName = snap.MerchantName
	stored.OccurredOn = snap.OccurredOn
	stored.Pending = snap.Pending
	stored.LastUpdatedAt = now
	return stored
}

func (r *transactionReconciler) CheckBalance(ctx context.Context, account domain.Account, providerCurrent, providerAvailable decimal.Decimal, now time.Time) error {
	tx, err := r.txRepo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = r.txRepo.Rollback(ctx, tx) }()

	settled, err := r.txRepo.SumSettledAmountInTx(ctx, tx, account.AccountID)
	if err != nil {
		return fmt.Errorf("failed to sum settled transactions for account %s: %w", account.AccountID, err)
	}
	if err := r.txRepo.Commit(ctx, tx); err != nil {
		return err
	}

	computed := account.BalanceBaseline.Add(settled)
	if drift := computed.Sub(providerCurrent).Abs(); drift.GreaterThan(balanceEpsilon) {
		// Provider balance is authoritative and wins; this is visibility only.
		r.LogWarn(ctx, "Balance reconciliation drift",
			slog.String("account_id", account.AccountID),
			slog.String("computed", computed.String()),
			slog.String("provider", providerCurrent.String()),
			slog.String("drift", drift.String()))
	}

	return r.accountRepo.UpdateAccountBalances(ctx, account.AccountID, providerCurrent, providerAvailable, now)
}

func (r *transactionReconciler) EstablishBaseline(ctx context.Context, account domain.Account, providerCurrent decimal.Decimal, now time.Time) error {
	tx, err := r.txRepo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = r.txRepo.Rollback(ctx, tx) }()

	settled, err := r.txRepo.SumSettledAmountInTx(ctx, tx, account.AccountID)
	if err != nil {
		return fmt.Errorf("failed to sum settled transactions for account %s: %w", account.AccountID, err)
	}
	if err := r.txRepo.Commit(ctx, tx); err != nil {
		return err
	}

	// The baseline is the balance attributable to history outside the imported
	// window: provider balance minus what the import brought in.
	baseline := providerCurrent.Sub(settled)
	return r.accountRepo.SetBalanceBaseline(ctx, account.AccountID, baseline, now)
}
