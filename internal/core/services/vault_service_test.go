package services_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/moneywise/bank_sync/internal/apperrors"
	"github.com/moneywise/bank_sync/internal/core/domain"
	portsrepo "github.com/moneywise/bank_sync/internal/core/ports/repositories"
	"github.com/moneywise/bank_sync/internal/core/services"
	"github.com/moneywise/bank_sync/internal/middleware"
	"github.com/stretchr/testify/suite"
)

// 32-byte keys, hex encoded.
var (
	testKeyV1 = strings.Repeat("11", 32)
	testKeyV2 = strings.Repeat("22", 32)
)

// fakeCredentialStore is an in-memory CredentialRepository. The vault tests
// need real read-your-writes behavior (round trips, lazy migration, rotation
// batches), which is simpler with a map than with expectation mocks.
type fakeCredentialStore struct {
	creds map[string]domain.EncryptedCredential
}

var _ portsrepo.CredentialRepository = (*fakeCredentialStore)(nil)

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{creds: map[string]domain.EncryptedCredential{}}
}

func (f *fakeCredentialStore) SaveCredential(_ context.Context, credential domain.EncryptedCredential) error {
	f.creds[credential.ConnectionID] = credential
	return nil
}

func (f *fakeCredentialStore) FindCredentialByConnection(_ context.Context, connectionID string) (*domain.EncryptedCredential, error) {
	cred, ok := f.creds[connectionID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &cred, nil
}

func (f *fakeCredentialStore) ListCredentialsByKeyVersion(_ context.Context, keyVersion int, limit int) ([]domain.EncryptedCredential, error) {
	var batch []domain.EncryptedCredential
	for _, cred := range f.creds {
		if cred.KeyVersion == keyVersion && len(batch) < limit {
			batch = append(batch, cred)
		}
	}
	return batch, nil
}

type VaultServiceTestSuite struct {
	suite.Suite
	store *fakeCredentialStore
}

func (suite *VaultServiceTestSuite) SetupTest() {
	suite.store = newFakeCredentialStore()
}

func (suite *VaultServiceTestSuite) TestStoreRetrieve_RoundTrip() {
	vault, err := services.NewTokenVaultService(suite.store, map[int]string{1: testKeyV1}, 1)
	suite.Require().NoError(err)

	ctx := context.Background()
	connectionID := uuid.NewString()
	plaintext := "access-token-sandbox-abc123"

	suite.Require().NoError(vault.Store(ctx, connectionID, plaintext))

	cred := suite.store.creds[connectionID]
	suite.Equal(1, cred.KeyVersion)
	suite.NotContains(string(cred.Ciphertext), plaintext)

	got, err := vault.Retrieve(ctx, connectionID)
	suite.Require().NoError(err)
	suite.Equal(plaintext, got)
}

func (suite *VaultServiceTestSuite) TestStore_FreshNoncePerWrite() {
	vault, err := services.NewTokenVaultService(suite.store, map[int]string{1: testKeyV1}, 1)
	suite.Require().NoError(err)

	ctx := context.Background()
	connectionID := uuid.NewString()

	suite.Require().NoError(vault.Store(ctx, connectionID, "same-secret"))
	first := suite.store.creds[connectionID]

	suite.Require().NoError(vault.Store(ctx, connectionID, "same-secret"))
	second := suite.store.creds[connectionID]

	suite.NotEqual(first.Nonce, second.Nonce)
	suite.NotEqual(first.Ciphertext, second.Ciphertext)
}

func (suite *VaultServiceTestSuite) TestRetrieve_TamperedCiphertext() {
	vault, err := services.NewTokenVaultService(suite.store, map[int]string{1: testKeyV1}, 1)
	suite.Require().NoError(err)

	ctx := context.Background()
	connectionID := uuid.NewString()
	suite.Require().NoError(vault.Store(ctx, connectionID, "secret"))

	cred := suite.store.creds[connectionID]
	cred.Ciphertext[0] ^= 0xFF
	suite.store.creds[connectionID] = cred

	_, err = vault.Retrieve(ctx, connectionID)
	suite.Require().Error(err)
	suite.ErrorIs(err, apperrors.ErrVaultError)
}

func (suite *VaultServiceTestSuite) TestRetrieve_CiphertextBoundToConnection() {
	vault, err := services.NewTokenVaultService(suite.store, map[int]string{1: testKeyV1}, 1)
	suite.Require().NoError(err)

	ctx := context.Background()
	source := uuid.NewString()
	target := uuid.NewString()
	suite.Require().NoError(vault.Store(ctx, source, "secret"))

	// Replay the sealed blob onto another connection's row.
	moved := suite.store.creds[source]
	moved.ConnectionID = target
	suite.store.creds[target] = moved

	_, err = vault.Retrieve(ctx, target)
	suite.Require().Error(err)
	suite.ErrorIs(err, apperrors.ErrVaultError)
}

func (suite *VaultServiceTestSuite) TestRetrieve_RetiredKeyVersion() {
	sealVault, err := services.NewTokenVaultService(suite.store, map[int]string{1: testKeyV1}, 1)
	suite.Require().NoError(err)

	ctx := context.Background()
	connectionID := uuid.NewString()
	suite.Require().NoError(sealVault.Store(ctx, connectionID, "secret"))

	// A vault booted without key 1 cannot open the record and must say so.
	retiredVault, err := services.NewTokenVaultService(suite.store, map[int]string{2: testKeyV2}, 2)
	suite.Require().NoError(err)

	_, err = retiredVault.Retrieve(ctx, connectionID)
	suite.Require().Error(err)
	suite.ErrorIs(err, apperrors.ErrVaultError)
}

func (suite *VaultServiceTestSuite) TestRetrieve_LazyReencryption() {
	oldVault, err := services.NewTokenVaultService(suite.store, map[int]string{1: testKeyV1}, 1)
	suite.Require().NoError(err)

	var logBuf bytes.Buffer
	ctx := middleware.WithLogger(context.Background(), slog.New(slog.NewJSONHandler(&logBuf, nil)))
	connectionID := uuid.NewString()
	suite.Require().NoError(oldVault.Store(ctx, connectionID, "secret"))
	suite.Equal(1, suite.store.creds[connectionID].KeyVersion)

	// Both keys known, version 2 active: the next read migrates the record.
	newVault, err := services.NewTokenVaultService(suite.store, map[int]string{1: testKeyV1, 2: testKeyV2}, 2)
	suite.Require().NoError(err)

	logBuf.Reset()
	got, err := newVault.Retrieve(ctx, connectionID)
	suite.Require().NoError(err)
	suite.Equal("secret", got)
	suite.Equal(2, suite.store.creds[connectionID].KeyVersion)

	// The version-changing rewrite leaves its own audit entry next to the
	// read's, and neither carries the plaintext.
	trail := logBuf.String()
	suite.Contains(trail, `"operation":"re-encrypt"`)
	suite.Contains(trail, `"operation":"retrieve"`)
	suite.NotContains(trail, "secret")

	// And it still opens after migration.
	got, err = newVault.Retrieve(ctx, connectionID)
	suite.Require().NoError(err)
	suite.Equal("secret", got)
}

func (suite *VaultServiceTestSuite) TestRotateKey_MigratesAllRecords() {
	oldVault, err := services.NewTokenVaultService(suite.store, map[int]string{1: testKeyV1}, 1)
	suite.Require().NoError(err)

	ctx := context.Background()
	connA := uuid.NewString()
	connB := uuid.NewString()
	suite.Require().NoError(oldVault.Store(ctx, connA, "token-a"))
	suite.Require().NoError(oldVault.Store(ctx, connB, "token-b"))

	vault, err := services.NewTokenVaultService(suite.store, map[int]string{1: testKeyV1, 2: testKeyV2}, 2)
	suite.Require().NoError(err)

	migrated, err := vault.RotateKey(ctx, 1, 2)
	suite.Require().NoError(err)
	suite.Equal(2, migrated)
	suite.Equal(2, suite.store.creds[connA].KeyVersion)
	suite.Equal(2, suite.store.creds[connB].KeyVersion)

	got, err := vault.Retrieve(ctx, connA)
	suite.Require().NoError(err)
	suite.Equal("token-a", got)

	// Idempotent: a second pass finds nothing left to migrate.
	migrated, err = vault.RotateKey(ctx, 1, 2)
	suite.Require().NoError(err)
	suite.Equal(0, migrated)
}

func (suite *VaultServiceTestSuite) TestRotateKey_UnknownVersions() {
	vault, err := services.NewTokenVaultService(suite.store, map[int]string{1: testKeyV1}, 1)
	suite.Require().NoError(err)

	_, err = vault.RotateKey(context.Background(), 7, 1)
	suite.ErrorIs(err, apperrors.ErrVaultError)

	_, err = vault.RotateKey(context.Background(), 1, 7)
	suite.ErrorIs(err, apperrors.ErrVaultError)
}

func (suite *VaultServiceTestSuite) TestNew_RejectsBadKeyMaterial() {
	_, err := services.NewTokenVaultService(suite.store, map[int]string{1: "not-hex"}, 1)
	suite.ErrorIs(err, apperrors.ErrVaultError)

	_, err = services.NewTokenVaultService(suite.store, map[int]string{1: testKeyV1}, 9)
	suite.ErrorIs(err, apperrors.ErrVaultError)
}

func TestVaultServiceTestSuite(t *testing.T) {
	suite.Run(t, new(VaultServiceTestSuite))
}
