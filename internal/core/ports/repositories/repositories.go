package repositories

// RepositoryProvider holds instances of all repositories, wired once at
// startup and handed to the service container.
type RepositoryProvider struct {
	ConnectionRepo   ConnectionRepositoryFacade
	AccountRepo      AccountRepositoryFacade
	TransactionRepo  TransactionRepositoryFacade
	SyncStateRepo    SyncStateRepository
	WebhookEventRepo WebhookEventRepository
	CredentialRepo   CredentialRepository
}
