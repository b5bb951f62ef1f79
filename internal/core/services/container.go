package services

import (
	"github.com/moneywise/bank_sync/internal/core/domain"
	"github.com/moneywise/bank_sync/internal/core/ports/providers"
	portsrepo "github.com/moneywise/bank_sync/internal/core/ports/repositories"
	portssvc "github.com/moneywise/bank_sync/internal/core/ports/services"
	"github.com/moneywise/bank_sync/internal/platform/config"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// NewServiceContainer wires every engine service. The scheduler is built
// first and the orchestrator attached to it afterwards, since each needs the
// other (the scheduler runs sync jobs, the orchestrator requeues
// quota-denied ones).
func NewServiceContainer(cfg *config.Config, repos *portsrepo.RepositoryProvider, registry *providers.Registry) (*portssvc.ServiceContainer, error) {
	vault, err := NewTokenVaultService(repos.CredentialRepo, cfg.VaultKeys, cfg.VaultActiveVersion)
	if err != nil {
		return nil, err
	}

	quota := NewQuotaManagerService(memory.NewStore(), map[domain.QuotaTier]int64{
		domain.TierFree:    cfg.FreeTierDailySyncs,
		domain.TierPremium: cfg.PremiumTierDailySyncs,
	})

	reconciler := NewTransactionReconciler(repos.TransactionRepo, repos.AccountRepo)

	scheduler := NewSyncScheduler(repos.ConnectionRepo, cfg.SyncWorkerCount, cfg.SyncQueueSize, cfg.SchedulerInterval)

	orchestrator := NewSyncOrchestrator(
		registry,
		repos.ConnectionRepo,
		repos.AccountRepo,
		repos.SyncStateRepo,
		vault,
		quota,
		reconciler,
		WithRetryScheduler(scheduler),
		WithSyncTuning(cfg.InitialLookbackMonths, cfg.SyncDeadline, cfg.SyncRetryMax, cfg.SyncRetryBaseDelay),
	)
	scheduler.SetRunner(orchestrator)

	link := NewLinkService(registry, repos.ConnectionRepo, repos.AccountRepo, repos.TransactionRepo, vault, scheduler)
	webhook := NewWebhookProcessorService(registry, repos.WebhookEventRepo, repos.ConnectionRepo, scheduler)

	return &portssvc.ServiceContainer{
		Link:       link,
		Sync:       orchestrator,
		Scheduler:  scheduler,
		Webhook:    webhook,
		Vault:      vault,
		Quota:      quota,
		Reconciler: reconciler,
	}, nil
}
