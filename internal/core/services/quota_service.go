package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/moneywise/bank_sync/internal/core/domain"
	portssvc "github.com/moneywise/bank_sync/internal/core/ports/services"
	"github.com/ulule/limiter/v3"
)

// quotaManagerService enforces the product's per-connection daily sync budget
// on top of ulule/limiter. The limiter store performs the increment-and-check
// in a single atomic operation, so concurrent acquisitions for the same
// connection cannot over-admit.
type quotaManagerService struct {
	BaseService
	limiters  map[domain.QuotaTier]*limiter.Limiter
	unmetered map[domain.QuotaTier]bool
}

// NewQuotaManagerService builds one windowed limiter per tier over a shared
// counter store. A non-positive limit marks the tier unmetered: every
// acquisition for it is admitted.
func NewQuotaManagerService(store limiter.Store, tierLimits map[domain.QuotaTier]int64) portssvc.QuotaManagerSvc {
	limiters := make(map[domain.QuotaTier]*limiter.Limiter, len(tierLimits))
	unmetered := make(map[domain.QuotaTier]bool)
	for tier, limit := range tierLimits {
		if limit <= 0 {
			unmetered[tier] = true
			continue
		}
		limiters[tier] = limiter.New(store, limiter.Rate{
			Period: 24 * time.Hour,
			Limit:  limit,
		})
	}
	return &quotaManagerService{limiters: limiters, unmetered: unmetered}
}

var _ portssvc.QuotaManagerSvc = (*quotaManagerService)(nil)

func (s *quotaManagerService) TryAcquire(ctx context.Context, connectionID string, tier domain.QuotaTier) (domain.QuotaGrant, error) {
	if s.unmetered[tier] {
		return domain.QuotaGrant{Allowed: true}, nil
	}

	lim, metered := s.limiters[tier]
	if !metered {
		// Unknown tiers fall back to the free budget rather than a free pass.
		if s.unmetered[domain.TierFree] {
			return domain.QuotaGrant{Allowed: true}, nil
		}
		if lim, metered = s.limiters[domain.TierFree]; !metered {
			return domain.QuotaGrant{Allowed: true}, nil
		}
	}

	lctx, err := lim.Get(ctx, quotaKey(connectionID))
	if err != nil {
		return domain.QuotaGrant{}, fmt.Errorf("quota counter store failed for connection %s: %w", connectionID, err)
	}

	if lctx.Reached {
		retryAfter := time.Until(time.Unix(lctx.Reset, 0))
		if retryAfter < 0 {
			retryAfter = 0
		}
		s.LogDebug(ctx, "Sync quota denied",
			slog.String("connection_id", connectionID),
			slog.String("tier", string(tier)),
			slog.Duration("retry_after", retryAfter))
		return domain.QuotaGrant{Allowed: false, RetryAfter: retryAfter}, nil
	}

	return domain.QuotaGrant{Allowed: true, Remaining: lctx.Remaining}, nil
}

func quotaKey(connectionID string) string {
	return "sync:" + connectionID
}
