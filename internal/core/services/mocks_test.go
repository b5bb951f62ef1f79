package services_test

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/moneywise/bank_sync/internal/core/domain"
	"github.com/moneywise/bank_sync/internal/core/ports/providers"
	portsrepo "github.com/moneywise/bank_sync/internal/core/ports/repositories"
	portssvc "github.com/moneywise/bank_sync/internal/core/ports/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// --- Mock ConnectionRepository ---
type MockConnectionRepo struct {
	mock.Mock
}

var _ portsrepo.ConnectionRepositoryFacade = (*MockConnectionRepo)(nil)

func (m *MockConnectionRepo) FindConnectionByID(ctx context.Context, connectionID string) (*domain.Connection, error) {
	args := m.Called(ctx, connectionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Connection), args.Error(1)
}

func (m *MockConnectionRepo) FindConnectionByExternalItem(ctx context.Context, userID, provider, institutionID, externalItemID string) (*domain.Connection, error) {
	args := m.Called(ctx, userID, provider, institutionID, externalItemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Connection), args.Error(1)
}

func (m *MockConnectionRepo) FindConnectionByProviderItem(ctx context.Context, provider, externalItemID string) (*domain.Connection, error) {
	args := m.Called(ctx, provider, externalItemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Connection), args.Error(1)
}

func (m *MockConnectionRepo) ListConnectionsByUser(ctx context.Context, userID string) ([]domain.Connection, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Connection), args.Error(1)
}

func (m *MockConnectionRepo) ListSyncableConnections(ctx context.Context, lastSyncedBefore time.Time) ([]domain.Connection, error) {
	args := m.Called(ctx, lastSyncedBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Connection), args.Error(1)
}

func (m *MockConnectionRepo) SaveConnection(ctx context.Context, connection domain.Connection) error {
	args := m.Called(ctx, connection)
	return args.Error(0)
}

func (m *MockConnectionRepo) UpdateConnectionStatus(ctx context.Context, connectionID string, status domain.ConnectionStatus, now time.Time) error {
	args := m.Called(ctx, connectionID, status, now)
	return args.Error(0)
}

func (m *MockConnectionRepo) MarkConnectionSynced(ctx context.Context, connectionID string, now time.Time) error {
	args := m.Called(ctx, connectionID, now)
	return args.Error(0)
}

func (m *MockConnectionRepo) IncrementConnectionFailure(ctx context.Context, connectionID string, now time.Time) (int, error) {
	args := m.Called(ctx, connectionID, now)
	return args.Int(0), args.Error(1)
}

func (m *MockConnectionRepo) RevokeConnection(ctx context.Context, connectionID string, now time.Time) error {
	args := m.Called(ctx, connectionID, now)
	return args.Error(0)
}

func (m *MockConnectionRepo) DeleteConnection(ctx context.Context, connectionID string) error {
	args := m.Called(ctx, connectionID)
	return args.Error(0)
}

// --- Mock AccountRepository ---
type MockAccountRepo struct {
	mock.Mock
}

var _ portsrepo.AccountRepositoryFacade = (*MockAccountRepo)(nil)

func (m *MockAccountRepo) FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountRepo) FindAccountsByConnection(ctx context.Context, connectionID string) ([]domain.Account, error) {
	args := m.Called(ctx, connectionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Account), args.Error(1)
}

func (m *MockAccountRepo) ListAccountsByUser(ctx context.Context, userID string) ([]domain.Account, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Account), args.Error(1)
}

func (m *MockAccountRepo) UpsertAccount(ctx context.Context, account domain.Account) (*domain.Account, error) {
	args := m.Called(ctx, account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountRepo) UpdateAccountBalances(ctx context.Context, accountID string, current, available decimal.Decimal, now time.Time) error {
	args := m.Called(ctx, accountID, current, available, now)
	return args.Error(0)
}

func (m *MockAccountRepo) SetBalanceBaseline(ctx context.Context, accountID string, baseline decimal.Decimal, now time.Time) error {
	args := m.Called(ctx, accountID, baseline, now)
	return args.Error(0)
}

func (m *MockAccountRepo) DeactivateMissingAccounts(ctx context.Context, connectionID string, seenProviderIDs []string, now time.Time) error {
	args := m.Called(ctx, connectionID, seenProviderIDs, now)
	return args.Error(0)
}

// --- Mock TransactionRepository ---
type MockTransactionRepo struct {
	mock.Mock
}

var _ portsrepo.TransactionRepositoryFacade = (*MockTransactionRepo)(nil)

func (m *MockTransactionRepo) FindTransactionsByAccount(ctx context.Context, accountID string, limit, offset int) ([]domain.Transaction, error) {
	args := m.Called(ctx, accountID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepo) CountTransactionsByConnection(ctx context.Context, connectionID string) (int64, error) {
	args := m.Called(ctx, connectionID)
	return args.Get(0).(int64), args.Error(1)
}

// The reconciler only threads the pgx.Tx through; tests pass a nil Tx.
func (m *MockTransactionRepo) Begin(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	return nil, args.Error(1)
}

func (m *MockTransactionRepo) Commit(ctx context.Context, tx pgx.Tx) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockTransactionRepo) Rollback(ctx context.Context, tx pgx.Tx) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockTransactionRepo) FindTransactionsByProviderIDsInTx(ctx context.Context, tx pgx.Tx, accountID string, providerTxIDs []string) (map[string]domain.Transaction, error) {
	args := m.Called(ctx, tx, accountID, providerTxIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepo) SaveTransactionsInTx(ctx context.Context, tx pgx.Tx, transactions []domain.Transaction) error {
	args := m.Called(ctx, tx, transactions)
	return args.Error(0)
}

func (m *MockTransactionRepo) UpdateTransactionInTx(ctx context.Context, tx pgx.Tx, transaction domain.Transaction) error {
	args := m.Called(ctx, tx, transaction)
	return args.Error(0)
}

func (m *MockTransactionRepo) SumSettledAmountInTx(ctx context.Context, tx pgx.Tx, accountID string) (decimal.Decimal, error) {
	args := m.Called(ctx, tx, accountID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// --- Mock SyncStateRepository ---
type MockSyncStateRepo struct {
	mock.Mock
}

var _ portsrepo.SyncStateRepository = (*MockSyncStateRepo)(nil)

func (m *MockSyncStateRepo) GetSyncState(ctx context.Context, connectionID string) (*domain.SyncState, error) {
	args := m.Called(ctx, connectionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SyncState), args.Error(1)
}

func (m *MockSyncStateRepo) TryBeginSync(ctx context.Context, connectionID string, syncType domain.SyncType, now time.Time) (bool, error) {
	args := m.Called(ctx, connectionID, syncType, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockSyncStateRepo) SaveCursor(ctx context.Context, connectionID, cursor string) error {
	args := m.Called(ctx, connectionID, cursor)
	return args.Error(0)
}

func (m *MockSyncStateRepo) EndSync(ctx context.Context, connectionID string, clearCursor bool) error {
	args := m.Called(ctx, connectionID, clearCursor)
	return args.Error(0)
}

func (m *MockSyncStateRepo) SetRetryCount(ctx context.Context, connectionID string, count int) error {
	args := m.Called(ctx, connectionID, count)
	return args.Error(0)
}

// --- Mock WebhookEventRepository ---
type MockWebhookEventRepo struct {
	mock.Mock
}

var _ portsrepo.WebhookEventRepository = (*MockWebhookEventRepo)(nil)

func (m *MockWebhookEventRepo) RecordEventOnce(ctx context.Context, event domain.WebhookEvent) (bool, error) {
	args := m.Called(ctx, event)
	return args.Bool(0), args.Error(1)
}

func (m *MockWebhookEventRepo) MarkEventProcessed(ctx context.Context, provider, eventID string) error {
	args := m.Called(ctx, provider, eventID)
	return args.Error(0)
}

// --- Mock CredentialRepository ---
type MockCredentialRepo struct {
	mock.Mock
}

var _ portsrepo.CredentialRepository = (*MockCredentialRepo)(nil)

func (m *MockCredentialRepo) SaveCredential(ctx context.Context, credential domain.EncryptedCredential) error {
	args := m.Called(ctx, credential)
	return args.Error(0)
}

func (m *MockCredentialRepo) FindCredentialByConnection(ctx context.Context, connectionID string) (*domain.EncryptedCredential, error) {
	args := m.Called(ctx, connectionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EncryptedCredential), args.Error(1)
}

func (m *MockCredentialRepo) ListCredentialsByKeyVersion(ctx context.Context, keyVersion int, limit int) ([]domain.EncryptedCredential, error) {
	args := m.Called(ctx, keyVersion, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.EncryptedCredential), args.Error(1)
}

// --- Mock SyncScheduler ---
type MockScheduler struct {
	mock.Mock
}

var _ portssvc.SyncSchedulerSvc = (*MockScheduler)(nil)

func (m *MockScheduler) Start(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockScheduler) Enqueue(job domain.SyncJob) bool {
	args := m.Called(job)
	return args.Bool(0)
}

func (m *MockScheduler) EnqueueAfter(job domain.SyncJob, delay time.Duration) {
	m.Called(job, delay)
}

// --- Mock TokenVault ---
type MockVault struct {
	mock.Mock
}

var _ portssvc.TokenVaultSvc = (*MockVault)(nil)

func (m *MockVault) Store(ctx context.Context, connectionID, plaintext string) error {
	args := m.Called(ctx, connectionID, plaintext)
	return args.Error(0)
}

func (m *MockVault) Retrieve(ctx context.Context, connectionID string) (string, error) {
	args := m.Called(ctx, connectionID)
	return args.String(0), args.Error(1)
}

func (m *MockVault) RotateKey(ctx context.Context, oldVersion, newVersion int) (int, error) {
	args := m.Called(ctx, oldVersion, newVersion)
	return args.Int(0), args.Error(1)
}

// --- Mock QuotaManager ---
type MockQuota struct {
	mock.Mock
}

var _ portssvc.QuotaManagerSvc = (*MockQuota)(nil)

func (m *MockQuota) TryAcquire(ctx context.Context, connectionID string, tier domain.QuotaTier) (domain.QuotaGrant, error) {
	args := m.Called(ctx, connectionID, tier)
	return args.Get(0).(domain.QuotaGrant), args.Error(1)
}

// --- Mock TransactionReconciler ---
type MockReconciler struct {
	mock.Mock
}

var _ portssvc.TransactionReconcilerSvc = (*MockReconciler)(nil)

func (m *MockReconciler) ReconcileBatch(ctx context.Context, account domain.Account, snapshots []providers.TransactionSnapshot, now time.Time) (*portssvc.ReconcileResult, error) {
	args := m.Called(ctx, account, snapshots, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*portssvc.ReconcileResult), args.Error(1)
}

func (m *MockReconciler) CheckBalance(ctx context.Context, account domain.Account, providerCurrent, providerAvailable decimal.Decimal, now time.Time) error {
	args := m.Called(ctx, account, providerCurrent, providerAvailable, now)
	return args.Error(0)
}

func (m *MockReconciler) EstablishBaseline(ctx context.Context, account domain.Account, providerCurrent decimal.Decimal, now time.Time) error {
	args := m.Called(ctx, account, providerCurrent, now)
	return args.Error(0)
}

// --- Fake ProviderAdapter ---
// fakeAdapter is a programmable provider used by the orchestrator, link and
// webhook tests. Function fields override per-test behavior.
type fakeAdapter struct {
	name            string
	createSession   func(ctx context.Context, userID string) (*providers.LinkSession, error)
	exchange        func(ctx context.Context, ephemeralToken string, metadata providers.LinkMetadata) (*providers.Credential, error)
	fetchAccounts   func(ctx context.Context, accessToken string) ([]providers.AccountSnapshot, error)
	fetchTxns       func(ctx context.Context, accessToken, providerAccountID string, since time.Time, cursor string) (*providers.TransactionPage, error)
	verifySignature func(rawBody []byte, headers http.Header) (*providers.EventEnvelope, error)
}

var _ providers.ProviderAdapter = (*fakeAdapter)(nil)

func (f *fakeAdapter) Name() string {
	if f.name == "" {
		return "fakebank"
	}
	return f.name
}

func (f *fakeAdapter) CreateLinkSession(ctx context.Context, userID string) (*providers.LinkSession, error) {
	return f.createSession(ctx, userID)
}

func (f *fakeAdapter) ExchangeCredential(ctx context.Context, ephemeralToken string, metadata providers.LinkMetadata) (*providers.Credential, error) {
	return f.exchange(ctx, ephemeralToken, metadata)
}

func (f *fakeAdapter) FetchAccounts(ctx context.Context, accessToken string) ([]providers.AccountSnapshot, error) {
	return f.fetchAccounts(ctx, accessToken)
}

func (f *fakeAdapter) FetchTransactions(ctx context.Context, accessToken, providerAccountID string, since time.Time, cursor string) (*providers.TransactionPage, error) {
	return f.fetchTxns(ctx, accessToken, providerAccountID, since, cursor)
}

func (f *fakeAdapter) VerifyWebhookSignature(rawBody []byte, headers http.Header) (*providers.EventEnvelope, error) {
	return f.verifySignature(rawBody, headers)
}
