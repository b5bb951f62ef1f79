package services

// ServiceContainer holds instances of all the engine services. This is the
// main entry point for accessing service functionality and is what the
// handlers are wired against.
type ServiceContainer struct {
	Link       LinkSvcFacade
	Sync       SyncOrchestratorSvc
	Scheduler  SyncSchedulerSvc
	Webhook    WebhookProcessorSvc
	Vault      TokenVaultSvc
	Quota      QuotaManagerSvc
	Reconciler TransactionReconcilerSvc
}
