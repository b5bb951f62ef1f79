package services

import (
	"context"

	"github.com/moneywise/bank_sync/internal/core/domain"
)

// QuotaManagerSvc is the admission gate in front of every provider sync.
// Acquiring and incrementing is a single atomic operation in the counter
// store, so concurrent callers cannot over-admit.
type QuotaManagerSvc interface {
	// TryAcquire consumes one sync from the connection's daily budget.
	// Denial comes back as a grant value, never an error.
	TryAcquire(ctx context.Context, connectionID string, tier domain.QuotaTier) (domain.QuotaGrant, error)
}
