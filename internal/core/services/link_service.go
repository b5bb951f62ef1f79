package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/moneywise/bank_sync/internal/apperrors"
	"github.com/moneywise/bank_sync/internal/core/domain"
	"github.com/moneywise/bank_sync/internal/core/ports/providers"
	portsrepo "github.com/moneywise/bank_sync/internal/core/ports/repositories"
	portssvc "github.com/moneywise/bank_sync/internal/core/ports/services"
	"github.com/moneywise/bank_sync/internal/dto"
)

// linkServiceImpl owns the connection lifecycle: link session creation,
// credential exchange, listing and disconnect.
type linkServiceImpl struct {
	BaseService
	registry    *providers.Registry
	connRepo    portsrepo.ConnectionRepositoryFacade
	accountRepo portsrepo.AccountRepositoryFacade
	txRepo      portsrepo.TransactionReader
	vault       portssvc.TokenVaultSvc
	scheduler   portssvc.SyncSchedulerSvc
}

// NewLinkService creates the link service.
func NewLinkService(
	registry *providers.Registry,
	connRepo portsrepo.ConnectionRepositoryFacade,
	accountRepo portsrepo.AccountRepositoryFacade,
	txRepo portsrepo.TransactionReader,
	vault portssvc.TokenVaultSvc,
	scheduler portssvc.SyncSchedulerSvc,
) portssvc.LinkSvcFacade {
	return &linkServiceImpl{
		registry:    registry,
		connRepo:    connRepo,
		accountRepo: accountRepo,
		txRepo:      txRepo,
		vault:       vault,
		scheduler:   scheduler,
	}
}

var _ portssvc.LinkSvcFacade = (*linkServiceImpl)(nil)

func (s *linkServiceImpl) CreateLinkSession(ctx context.Context, userID, provider string) (*providers.LinkSession, error) {
	adapter, err := s.registry.Get(provider)
	if err != nil {
		return nil, err
	}

	session, err := adapter.CreateLinkSession(ctx, userID)
	if err != nil {
		s.LogError(ctx, err, "Failed to create link session",
			slog.String("provider", provider),
			slog.String("user_id", userID))
		return nil, err
	}

	s.LogInfo(ctx, "Link session created",
		slog.String("provider", provider),
		slog.String("user_id", userID))
	return session, nil
}

func (s *linkServiceImpl) CompleteLink(ctx context.Context, userID string, req dto.CompleteLinkRequest) (*domain.Connection, error) {
	adapter, err := s.registry.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	cred, err := adapter.ExchangeCredential(ctx, req.EphemeralToken, providers.LinkMetadata{
		InstitutionID:   req.InstitutionID,
		InstitutionName: req.InstitutionName,
	})
	if err != nil {
		s.LogError(ctx, err, "Credential exchange failed",
			slog.String("provider", req.Provider),
			slog.String("user_id", userID))
		return nil, err
	}

	// Idempotency under client retry: the provider returns the same item for a
	// re-exchanged token, and exactly one non-revoked connection may exist per
	// (user, provider, institution, item). Refresh the stored credential and
	// hand back the existing connection instead of creating a duplicate.
	existing, err := s.connRepo.FindConnectionByExternalItem(ctx, userID, req.Provider, req.InstitutionID, cred.ItemID)
	if err == nil {
		if err := s.vault.Store(ctx, existing.ConnectionID, cred.AccessToken); err != nil {
			return nil, err
		}
		s.LogInfo(ctx, "Credential exchange returned existing connection",
			slog.String("connection_id", existing.ConnectionID))
		return existing, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	connection := domain.Connection{
		ConnectionID:    uuid.NewString(),
		UserID:          userID,
		Provider:        req.Provider,
		InstitutionID:   req.InstitutionID,
		InstitutionName: req.InstitutionName,
		ExternalItemID:  cred.ItemID,
		Status:          domain.ConnectionActive,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			LastUpdatedAt: now,
		},
	}

	if err := s.connRepo.SaveConnection(ctx, connection); err != nil {
		// A concurrent retry may have won the insert race; surface the winner.
		if errors.Is(err, apperrors.ErrDuplicate) {
			return s.connRepo.FindConnectionByExternalItem(ctx, userID, req.Provider, req.InstitutionID, cred.ItemID)
		}
		return nil, err
	}

	if err := s.vault.Store(ctx, connection.ConnectionID, cred.AccessToken); err != nil {
		return nil, err
	}

	if !s.scheduler.Enqueue(domain.SyncJob{ConnectionID: connection.ConnectionID, Type: domain.SyncInitial}) {
		s.LogWarn(ctx, "Sync queue full, initial import deferred",
			slog.String("connection_id", connection.ConnectionID))
	}

	s.LogInfo(ctx, "Connection created",
		slog.String("connection_id", connection.ConnectionID),
		slog.String("provider", req.Provider),
		slog.String("institution_id", req.InstitutionID))
	return &connection, nil
}

func (s *linkServiceImpl) ListConnections(ctx context.Context, userID string) ([]domain.Connection, error) {
	connections, err := s.connRepo.ListConnectionsByUser(ctx, userID)
	if err != nil {
		s.LogError(ctx, err, "Failed to list connections", slog.String("user_id", userID))
		return nil, err
	}
	if connections == nil {
		connections = []domain.Connection{}
	}
	return connections, nil
}

func (s *linkServiceImpl) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	accounts, err := s.accountRepo.ListAccountsByUser(ctx, userID)
	if err != nil {
		s.LogError(ctx, err, "Failed to list accounts", slog.String("user_id", userID))
		return nil, err
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	return accounts, nil
}

func (s *linkServiceImpl) Disconnect(ctx context.Context, connectionID string, mode dto.DisconnectMode, userID string) error {
	connection, err := s.connRepo.FindConnectionByID(ctx, connectionID)
	if err != nil {
		return err
	}
	if connection.UserID != userID {
		// Obscure existence from non-owners.
		return apperrors.ErrNotFound
	}

	switch mode {
	case dto.DisconnectSoft:
		if err := s.connRepo.RevokeConnection(ctx, connectionID, time.Now()); err != nil {
			return err
		}
		s.LogInfo(ctx, "Connection revoked", slog.String("connection_id", connectionID))
		return nil

	case dto.DisconnectHard:
		count, err := s.txRepo.CountTransactionsByConnection(ctx, connectionID)
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %d transactions still reference connection %s", apperrors.ErrHasDependentRecords, count, connectionID)
		}
		if err := s.connRepo.DeleteConnection(ctx, connectionID); err != nil {
			return err
		}
		s.LogInfo(ctx, "Connection hard-deleted", slog.String("connection_id", connectionID))
		return nil

	default:
		return fmt.Errorf("%w: unknown disconnect mode %q", apperrors.ErrValidation, mode)
	}
}
