package services

import "context"

// TokenVaultSvc encrypts, stores and retrieves provider credentials. Every
// store and retrieve is audit-logged without the plaintext.
type TokenVaultSvc interface {
	// Store seals the credential under the active key version with a fresh
	// per-record nonce.
	Store(ctx context.Context, connectionID, plaintext string) error

	// Retrieve opens the stored credential. Fails with apperrors.ErrVaultError
	// when the record's key version has been retired with no migration path.
	// Records sealed under an older, still-known key are lazily re-encrypted.
	Retrieve(ctx context.Context, connectionID string) (string, error)

	// RotateKey re-encrypts records still tagged with oldVersion under
	// newVersion. Idempotent per record and safe to interrupt and resume.
	// Returns the number of records migrated.
	RotateKey(ctx context.Context, oldVersion, newVersion int) (int, error)
}
