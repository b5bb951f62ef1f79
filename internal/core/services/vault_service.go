package services

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/moneywise/bank_sync/internal/apperrors"
	"github.com/moneywise/bank_sync/internal/core/domain"
	portsrepo "github.com/moneywise/bank_sync/internal/core/ports/repositories"
	portssvc "github.com/moneywise/bank_sync/internal/core/ports/services"
	"github.com/moneywise/bank_sync/internal/middleware"
	"golang.org/x/crypto/chacha20poly1305"
)

const rotateBatchSize = 100

// tokenVaultService seals provider credentials with ChaCha20-Poly1305. The
// connection id doubles as associated data so a ciphertext cannot be replayed
// onto another connection's row.
type tokenVaultService struct {
	BaseService
	credRepo      portsrepo.CredentialRepository
	keys          map[int]cipher.AEAD
	activeVersion int
}

// NewTokenVaultService builds the vault from hex key material keyed by
// version. Keys must be 32 bytes; the active version must be present.
func NewTokenVaultService(credRepo portsrepo.CredentialRepository, keyMaterial map[int]string, activeVersion int) (portssvc.TokenVaultSvc, error) {
	keys := make(map[int]cipher.AEAD, len(keyMaterial))
	for version, hexKey := range keyMaterial {
		raw, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("%w: key version %d is not valid hex", apperrors.ErrVaultError, version)
		}
		aead, err := chacha20poly1305.New(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: key version %d: %v", apperrors.ErrVaultError, version, err)
		}
		keys[version] = aead
	}
	if _, ok := keys[activeVersion]; !ok {
		return nil, fmt.Errorf("%w: active key version %d has no material", apperrors.ErrVaultError, activeVersion)
	}
	return &tokenVaultService{
		credRepo:      credRepo,
		keys:          keys,
		activeVersion: activeVersion,
	}, nil
}

var _ portssvc.TokenVaultSvc = (*tokenVaultService)(nil)

func (s *tokenVaultService) Store(ctx context.Context, connectionID, plaintext string) error {
	err := s.storeWithVersion(ctx, connectionID, plaintext, s.activeVersion)
	s.audit(ctx, "store", connectionID, err)
	return err
}

func (s *tokenVaultService) storeWithVersion(ctx context.Context, connectionID, plaintext string, version int) error {
	aead, ok := s.keys[version]
	if !ok {
		return fmt.Errorf("%w: no key material for version %d", apperrors.ErrVaultError, version)
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("%w: failed to generate nonce: %v", apperrors.ErrVaultError, err)
	}

	ciphertext := aead.Seal(nil, nonce, []byte(plaintext), []byte(connectionID))

	now := time.Now()
	return s.credRepo.SaveCredential(ctx, domain.EncryptedCredential{
		ConnectionID:  connectionID,
		Ciphertext:    ciphertext,
		Nonce:         nonce,
		KeyVersion:    version,
		CreatedAt:     now,
		LastUpdatedAt: now,
	})
}

func (s *tokenVaultService) Retrieve(ctx context.Context, connectionID string) (string, error) {
	plaintext, err := s.retrieve(ctx, connectionID)
	s.audit(ctx, "retrieve", connectionID, err)
	return plaintext, err
}

func (s *tokenVaultService) retrieve(ctx context.Context, connectionID string) (string, error) {
	cred, err := s.credRepo.FindCredentialByConnection(ctx, connectionID)
	if err != nil {
		return "", err
	}

	aead, ok := s.keys[cred.KeyVersion]
	if !ok {
		// The record is sealed under a retired key with no migration path.
		// Operator intervention is required; this must never be papered over.
		return "", fmt.Errorf("%w: key version %d retired for connection %s", apperrors.ErrVaultError, cred.KeyVersion, connectionID)
	}

	plaintext, err := aead.Open(nil, cred.Nonce, cred.Ciphertext, []byte(connectionID))
	if err != nil {
		return "", fmt.Errorf("%w: failed to open credential for connection %s", apperrors.ErrVaultError, connectionID)
	}

	// Lazy migration: records sealed under an older known key move to the
	// active version on the next touch rather than in a stop-the-world pass.
	if cred.KeyVersion != s.activeVersion {
		err := s.storeWithVersion(ctx, connectionID, string(plaintext), s.activeVersion)
		// The migration rewrites the row, so it leaves its own trail entry.
		s.audit(ctx, "re-encrypt", connectionID, err)
		if err != nil {
			s.LogWarn(ctx, "Lazy credential re-encryption failed",
				slog.String("connection_id", connectionID),
				slog.Int("from_version", cred.KeyVersion),
				slog.String("error", err.Error()))
		}
	}

	return string(plaintext), nil
}

func (s *tokenVaultService) RotateKey(ctx context.Context, oldVersion, newVersion int) (int, error) {
	if _, ok := s.keys[oldVersion]; !ok {
		return 0, fmt.Errorf("%w: cannot rotate from unknown version %d", apperrors.ErrVaultError, oldVersion)
	}
	if _, ok := s.keys[newVersion]; !ok {
		return 0, fmt.Errorf("%w: cannot rotate to unknown version %d", apperrors.ErrVaultError, newVersion)
	}

	migrated := 0
	for {
		if err := ctx.Err(); err != nil {
			// Interrupted; already-migrated records are tagged with the new
			// version, so the next run resumes where this one stopped.
			return migrated, err
		}

		batch, err := s.credRepo.ListCredentialsByKeyVersion(ctx, oldVersion, rotateBatchSize)
		if err != nil {
			return migrated, err
		}
		if len(batch) == 0 {
			break
		}

		for _, cred := range batch {
			aead := s.keys[cred.KeyVersion]
			plaintext, err := aead.Open(nil, cred.Nonce, cred.Ciphertext, []byte(cred.ConnectionID))
			if err != nil {
				return migrated, fmt.Errorf("%w: failed to open credential for connection %s during rotation", apperrors.ErrVaultError, cred.ConnectionID)
			}
			if err := s.storeWithVersion(ctx, cred.ConnectionID, string(plaintext), newVersion); err != nil {
				return migrated, err
			}
			migrated++
		}
	}

	s.LogInfo(ctx, "Key rotation pass completed",
		slog.Int("from_version", oldVersion),
		slog.Int("to_version", newVersion),
		slog.Int("migrated", migrated))
	return migrated, nil
}

// audit writes the access trail for every store/retrieve. Plaintext never
// appears here.
func (s *tokenVaultService) audit(ctx context.Context, operation, connectionID string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	actor := middleware.GetUserIDFromCtx(ctx)
	if actor == "" {
		actor = "system"
	}
	s.LogInfo(ctx, "Vault access",
		slog.String("operation", operation),
		slog.String("connection_id", connectionID),
		slog.String("actor", actor),
		slog.String("outcome", outcome))
	if err != nil && errors.Is(err, apperrors.ErrVaultError) {
		s.LogError(ctx, err, "Vault operation failed",
			slog.String("operation", operation),
			slog.String("connection_id", connectionID))
	}
}
