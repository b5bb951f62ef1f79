package pgsql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/moneywise/bank_sync/internal/core/domain"
	portsrepo "github.com/moneywise/bank_sync/internal/core/ports/repositories"
	"github.com/moneywise/bank_sync/internal/models"
)

type PgxWebhookEventRepository struct {
	pool *pgxpool.Pool
}

// newPgxWebhookEventRepository creates a new repository for webhook dedup.
func newPgxWebhookEventRepository(pool *pgxpool.Pool) portsrepo.WebhookEventRepository {
	return &PgxWebhookEventRepository{pool: pool}
}

var _ portsrepo.WebhookEventRepository = (*PgxWebhookEventRepository)(nil)

func toModelWebhookEvent(d domain.WebhookEvent) models.WebhookEvent {
	return models.WebhookEvent{
		Provider:   d.Provider,
		EventID:    d.EventID,
		ReceivedAt: d.ReceivedAt,
		Processed:  d.Processed,
	}
}

// RecordEventOnce is the atomic insert-if-absent backing webhook idempotency.
// ON CONFLICT DO NOTHING keeps it a single round trip under concurrent
// redelivery: exactly one caller sees RowsAffected of one.
func (r *PgxWebhookEventRepository) RecordEventOnce(ctx context.Context, event domain.WebhookEvent) (bool, error) {
	m := toModelWebhookEvent(event)
	query := `
		INSERT INTO webhook_events (provider, event_id, received_at, processed)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, event_id) DO NOTHING;`
	tag, err := r.pool.Exec(ctx, query, m.Provider, m.EventID, m.ReceivedAt, m.Processed)
	if err != nil {
		return false, fmt.Errorf("failed to record webhook event %s/%s: %w", m.Provider, m.EventID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgxWebhookEventRepository) MarkEventProcessed(ctx context.Context, provider, eventID string) error {
	query := `UPDATE webhook_events SET processed = TRUE WHERE provider = $1 AND event_id = $2;`
	if _, err := r.pool.Exec(ctx, query, provider, eventID); err != nil {
		return fmt.Errorf("failed to mark webhook event %s/%s processed: %w", provider, eventID, err)
	}
	return nil
}
