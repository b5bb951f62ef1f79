package repositories

import (
	"context"

	"github.com/moneywise/bank_sync/internal/core/domain"
)

// CredentialRepository stores AEAD-sealed provider credentials for the vault.
type CredentialRepository interface {
	// SaveCredential upserts the single credential row for a connection.
	SaveCredential(ctx context.Context, credential domain.EncryptedCredential) error

	// FindCredentialByConnection retrieves the sealed credential.
	FindCredentialByConnection(ctx context.Context, connectionID string) (*domain.EncryptedCredential, error)

	// ListCredentialsByKeyVersion pages through rows still sealed under a key
	// version, for resumable rotation.
	//
	// There is no delete here: a hard disconnect removes the credential row
	// together with the connection in one transaction, on the connection
	// repository side.
	ListCredentialsByKeyVersion(ctx context.Context, keyVersion int, limit int) ([]domain.EncryptedCredential, error)
}
