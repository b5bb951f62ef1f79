package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/moneywise/bank_sync/internal/apperrors"
	"github.com/moneywise/bank_sync/internal/core/domain"
	"github.com/moneywise/bank_sync/internal/core/ports/providers"
	portsrepo "github.com/moneywise/bank_sync/internal/core/ports/repositories"
	portssvc "github.com/moneywise/bank_sync/internal/core/ports/services"
)

// webhookProcessorService drives each delivery through
// received -> verified -> routed -> processed. Verification failures reject
// with no detail; duplicate event ids short-circuit before routing; routing
// only enqueues sync work so the request path never waits on a provider.
type webhookProcessorService struct {
	BaseService
	registry  *providers.Registry
	eventRepo portsrepo.WebhookEventRepository
	connRepo  portsrepo.ConnectionRepositoryFacade
	scheduler portssvc.SyncSchedulerSvc
}

// NewWebhookProcessorService creates the webhook processor.
func NewWebhookProcessorService(registry *providers.Registry, eventRepo portsrepo.WebhookEventRepository, connRepo portsrepo.ConnectionRepositoryFacade, scheduler portssvc.SyncSchedulerSvc) portssvc.WebhookProcessorSvc {
	return &webhookProcessorService{
		registry:  registry,
		eventRepo: eventRepo,
		connRepo:  connRepo,
		scheduler: scheduler,
	}
}

var _ portssvc.WebhookProcessorSvc = (*webhookProcessorService)(nil)

func (s *webhookProcessorService) Process(ctx context.Context, provider string, rawBody []byte, headers http.Header) error {
	adapter, err := s.registry.Get(provider)
	if err != nil {
		return err
	}

	envelope, err := adapter.VerifyWebhookSignature(rawBody, headers)
	if err != nil {
		// Log the cause for operators; the caller only learns "invalid".
		s.LogWarn(ctx, "Webhook signature verification failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()))
		return apperrors.ErrSignatureInvalid
	}

	fresh, err := s.eventRepo.RecordEventOnce(ctx, domain.WebhookEvent{
		Provider:   provider,
		EventID:    envelope.EventID,
		ReceivedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to record webhook event %s/%s: %w", provider, envelope.EventID, err)
	}
	if !fresh {
		// At-least-once redelivery; the first delivery owns the routing.
		s.LogDebug(ctx, "Webhook event replayed, skipping",
			slog.String("provider", provider),
			slog.String("event_id", envelope.EventID))
		return nil
	}

	if err := s.route(ctx, envelope); err != nil {
		// Terminal failure: the event stays recorded so provider redelivery
		// does not re-run the handler.
		s.LogError(ctx, err, "Webhook routing failed",
			slog.String("provider", provider),
			slog.String("event_id", envelope.EventID),
			slog.String("event_type", envelope.EventType))
		return err
	}

	if err := s.eventRepo.MarkEventProcessed(ctx, provider, envelope.EventID); err != nil {
		s.LogError(ctx, err, "Failed to mark webhook event processed",
			slog.String("provider", provider),
			slog.String("event_id", envelope.EventID))
	}

	return nil
}

func (s *webhookProcessorService) route(ctx context.Context, envelope *providers.EventEnvelope) error {
	switch envelope.EventType {
	case providers.EventTransactionsUpdated:
		conn, err := s.connRepo.FindConnectionByProviderItem(ctx, envelope.Provider, envelope.ExternalItemID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				// The item was disconnected on our side; nothing to sync.
				s.LogDebug(ctx, "Webhook for unknown item",
					slog.String("provider", envelope.Provider),
					slog.String("external_item_id", envelope.ExternalItemID))
				return nil
			}
			return err
		}
		if !s.scheduler.Enqueue(domain.SyncJob{ConnectionID: conn.ConnectionID, Type: domain.SyncIncremental}) {
			// Queue saturated; the daily schedule picks the connection up.
			s.LogWarn(ctx, "Sync queue full, webhook-triggered sync deferred",
				slog.String("connection_id", conn.ConnectionID))
		}
		return nil

	case providers.EventReauthRequired:
		conn, err := s.connRepo.FindConnectionByProviderItem(ctx, envelope.Provider, envelope.ExternalItemID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil
			}
			return err
		}
		return s.connRepo.UpdateConnectionStatus(ctx, conn.ConnectionID, domain.ConnectionNeedsReauth, time.Now())

	default:
		// Informational events acknowledge without side effects.
		s.LogDebug(ctx, "Informational webhook event",
			slog.String("provider", envelope.Provider),
			slog.String("event_type", envelope.EventType))
		return nil
	}
}
