package repositories

import (
	"context"

	"github.com/moneywise/bank_sync/internal/core/domain"
)

// WebhookEventRepository is the idempotency table shared by concurrent webhook
// deliveries. Recording must be a single atomic insert-if-absent, never a
// read-then-write pair.
type WebhookEventRepository interface {
	// RecordEventOnce inserts the event keyed on (provider, event id) and
	// returns true, or returns false when the pair was already recorded.
	RecordEventOnce(ctx context.Context, event domain.WebhookEvent) (bool, error)

	// MarkEventProcessed flags the event after its routing completed.
	MarkEventProcessed(ctx context.Context, provider, eventID string) error
}
