package services

import (
	"context"
	"time"

	"github.com/moneywise/bank_sync/internal/core/domain"
	"github.com/moneywise/bank_sync/internal/core/ports/providers"
	"github.com/shopspring/decimal"
)

// ReconcileResult summarizes one merged batch.
type ReconcileResult struct {
	Inserted int
	Settled  int
	Updated  int
	// Anomalies lists provider transaction ids whose settled amount changed.
	// Surfaced for review; the batch still commits.
	Anomalies []string
}

// TransactionReconcilerSvc merges provider snapshots into persisted state
// without duplicates and without losing pending-to-settled transitions. Each
// batch runs inside one database transaction.
type TransactionReconcilerSvc interface {
	// ReconcileBatch merges one page of snapshots into the account.
	ReconcileBatch(ctx context.Context, account domain.Account, snapshots []providers.TransactionSnapshot, now time.Time) (*ReconcileResult, error)

	// CheckBalance recomputes baseline + settled sum and compares it with the
	// provider-reported balance. Drift beyond the epsilon logs a warning; the
	// provider balance is authoritative and is persisted either way.
	CheckBalance(ctx context.Context, account domain.Account, providerCurrent, providerAvailable decimal.Decimal, now time.Time) error

	// EstablishBaseline pins the account's reconciliation baseline after the
	// initial import: provider balance minus the imported settled sum.
	EstablishBaseline(ctx context.Context, account domain.Account, providerCurrent decimal.Decimal, now time.Time) error
}
