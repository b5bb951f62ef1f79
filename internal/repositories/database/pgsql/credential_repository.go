package pgsql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/moneywise/bank_sync/internal/apperrors"
	"github.com/moneywise/bank_sync/internal/core/domain"
	portsrepo "github.com/moneywise/bank_sync/internal/core/ports/repositories"
	"github.com/moneywise/bank_sync/internal/models"
)

type PgxCredentialRepository struct {
	pool *pgxpool.Pool
}

// newPgxCredentialRepository creates a new repository for sealed credentials.
func newPgxCredentialRepository(pool *pgxpool.Pool) portsrepo.CredentialRepository {
	return &PgxCredentialRepository{pool: pool}
}

var _ portsrepo.CredentialRepository = (*PgxCredentialRepository)(nil)

func toDomainCredential(m models.Credential) domain.EncryptedCredential {
	return domain.EncryptedCredential{
		ConnectionID:  m.ConnectionID,
		Ciphertext:    m.Ciphertext,
		Nonce:         m.Nonce,
		KeyVersion:    m.KeyVersion,
		CreatedAt:     m.CreatedAt,
		LastUpdatedAt: m.LastUpdatedAt,
	}
}

// SaveCredential upserts the single row per connection. Re-linking and lazy
// re-encryption both land here, so the write replaces ciphertext, nonce and
// key version together.
func (r *PgxCredentialRepository) SaveCredential(ctx context.Context, credential domain.EncryptedCredential) error {
	query := `
		INSERT INTO credentials (connection_id, ciphertext, nonce, key_version, created_at, last_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (connection_id) DO UPDATE SET
			ciphertext = EXCLUDED.ciphertext,
			nonce = EXCLUDED.nonce,
			key_version = EXCLUDED.key_version,
			last_updated_at = EXCLUDED.last_updated_at;`
	_, err := r.pool.Exec(ctx, query,
		credential.ConnectionID,
		credential.Ciphertext,
		credential.Nonce,
		credential.KeyVersion,
		credential.CreatedAt,
		credential.LastUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save credential for connection %s: %w", credential.ConnectionID, err)
	}
	return nil
}

func (r *PgxCredentialRepository) FindCredentialByConnection(ctx context.Context, connectionID string) (*domain.EncryptedCredential, error) {
	query := `SELECT connection_id, ciphertext, nonce, key_version, created_at, last_updated_at FROM credentials WHERE connection_id = $1;`
	var m models.Credential
	err := r.pool.QueryRow(ctx, query, connectionID).Scan(
		&m.ConnectionID,
		&m.Ciphertext,
		&m.Nonce,
		&m.KeyVersion,
		&m.CreatedAt,
		&m.LastUpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no credential for connection %s", apperrors.ErrNotFound, connectionID)
		}
		return nil, fmt.Errorf("failed to find credential for connection %s: %w", connectionID, err)
	}
	cred := toDomainCredential(m)
	return &cred, nil
}

func (r *PgxCredentialRepository) ListCredentialsByKeyVersion(ctx context.Context, keyVersion int, limit int) ([]domain.EncryptedCredential, error) {
	query := `
		SELECT connection_id, ciphertext, nonce, key_version, created_at, last_updated_at
		FROM credentials
		WHERE key_version = $1
		ORDER BY connection_id
		LIMIT $2;`
	rows, err := r.pool.Query(ctx, query, keyVersion, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials by key version %d: %w", keyVersion, err)
	}
	defer rows.Close()

	var credentials []domain.EncryptedCredential
	for rows.Next() {
		var m models.Credential
		if err := rows.Scan(&m.ConnectionID, &m.Ciphertext, &m.Nonce, &m.KeyVersion, &m.CreatedAt, &m.LastUpdatedAt); err != nil {
			return nil, err
		}
		credentials = append(credentials, toDomainCredential(m))
	}
	return credentials, rows.Err()
}
