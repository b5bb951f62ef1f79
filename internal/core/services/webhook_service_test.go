package services_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/moneywise/bank_sync/internal/apperrors"
	"github.com/moneywise/bank_sync/internal/core/domain"
	"github.com/moneywise/bank_sync/internal/core/ports/providers"
	portssvc "github.com/moneywise/bank_sync/internal/core/ports/services"
	"github.com/moneywise/bank_sync/internal/core/services"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type WebhookServiceTestSuite struct {
	suite.Suite
	mockEventRepo *MockWebhookEventRepo
	mockConnRepo  *MockConnectionRepo
	mockScheduler *MockScheduler
	adapter       *fakeAdapter
	processor     portssvc.WebhookProcessorSvc
}

func (suite *WebhookServiceTestSuite) SetupTest() {
	suite.mockEventRepo = new(MockWebhookEventRepo)
	suite.mockConnRepo = new(MockConnectionRepo)
	suite.mockScheduler = new(MockScheduler)
	suite.adapter = &fakeAdapter{}
	registry := providers.NewRegistry(suite.adapter)
	suite.processor = services.NewWebhookProcessorService(registry, suite.mockEventRepo, suite.mockConnRepo, suite.mockScheduler)
}

func (suite *WebhookServiceTestSuite) envelope(eventType, itemID string) *providers.EventEnvelope {
	return &providers.EventEnvelope{
		Provider:       suite.adapter.Name(),
		EventID:        uuid.NewString(),
		EventType:      eventType,
		ExternalItemID: itemID,
	}
}

func (suite *WebhookServiceTestSuite) TestProcess_UnknownProvider() {
	err := suite.processor.Process(context.Background(), "no-such-provider", []byte(`{}`), http.Header{})
	suite.ErrorIs(err, apperrors.ErrNotFound)
}

func (suite *WebhookServiceTestSuite) TestProcess_InvalidSignature() {
	suite.adapter.verifySignature = func([]byte, http.Header) (*providers.EventEnvelope, error) {
		return nil, errors.New("hmac mismatch")
	}

	err := suite.processor.Process(context.Background(), suite.adapter.Name(), []byte(`{}`), http.Header{})

	// The caller sees only the generic sentinel, never the underlying cause.
	suite.ErrorIs(err, apperrors.ErrSignatureInvalid)
	suite.NotContains(err.Error(), "hmac")
	suite.mockEventRepo.AssertNotCalled(suite.T(), "RecordEventOnce", mock.Anything, mock.Anything)
}

func (suite *WebhookServiceTestSuite) TestProcess_ReplayedEventShortCircuits() {
	env := suite.envelope(providers.EventTransactionsUpdated, "item-1")
	suite.adapter.verifySignature = func([]byte, http.Header) (*providers.EventEnvelope, error) {
		return env, nil
	}
	suite.mockEventRepo.On("RecordEventOnce", mock.Anything, mock.MatchedBy(func(e domain.WebhookEvent) bool {
		return e.Provider == env.Provider && e.EventID == env.EventID && !e.Processed
	})).
		Return(false, nil).Once()

	err := suite.processor.Process(context.Background(), env.Provider, []byte(`{}`), http.Header{})

	suite.Require().NoError(err)
	suite.mockConnRepo.AssertNotCalled(suite.T(), "FindConnectionByProviderItem", mock.Anything, mock.Anything, mock.Anything)
	suite.mockScheduler.AssertNotCalled(suite.T(), "Enqueue", mock.Anything)
	suite.mockEventRepo.AssertNotCalled(suite.T(), "MarkEventProcessed", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *WebhookServiceTestSuite) TestProcess_TransactionsUpdatedEnqueuesSync() {
	env := suite.envelope(providers.EventTransactionsUpdated, "item-1")
	suite.adapter.verifySignature = func([]byte, http.Header) (*providers.EventEnvelope, error) {
		return env, nil
	}
	conn := &domain.Connection{ConnectionID: uuid.NewString(), Provider: env.Provider}

	suite.mockEventRepo.On("RecordEventOnce", mock.Anything, mock.MatchedBy(func(e domain.WebhookEvent) bool {
		return e.Provider == env.Provider && e.EventID == env.EventID && !e.Processed
	})).
		Return(true, nil).Once()
	suite.mockConnRepo.On("FindConnectionByProviderItem", mock.Anything, env.Provider, "item-1").
		Return(conn, nil).Once()
	suite.mockScheduler.On("Enqueue", domain.SyncJob{ConnectionID: conn.ConnectionID, Type: domain.SyncIncremental}).
		Return(true).Once()
	suite.mockEventRepo.On("MarkEventProcessed", mock.Anything, env.Provider, env.EventID).
		Return(nil).Once()

	err := suite.processor.Process(context.Background(), env.Provider, []byte(`{}`), http.Header{})

	suite.Require().NoError(err)
	suite.mockScheduler.AssertExpectations(suite.T())
	suite.mockEventRepo.AssertExpectations(suite.T())
}

func (suite *WebhookServiceTestSuite) TestProcess_QueueFullStillSucceeds() {
	env := suite.envelope(providers.EventTransactionsUpdated, "item-1")
	suite.adapter.verifySignature = func([]byte, http.Header) (*providers.EventEnvelope, error) {
		return env, nil
	}
	conn := &domain.Connection{ConnectionID: uuid.NewString(), Provider: env.Provider}

	suite.mockEventRepo.On("RecordEventOnce", mock.Anything, mock.MatchedBy(func(e domain.WebhookEvent) bool {
		return e.Provider == env.Provider && e.EventID == env.EventID && !e.Processed
	})).
		Return(true, nil).Once()
	suite.mockConnRepo.On("FindConnectionByProviderItem", mock.Anything, env.Provider, "item-1").
		Return(conn, nil).Once()
	suite.mockScheduler.On("Enqueue", mock.Anything).Return(false).Once()
	suite.mockEventRepo.On("MarkEventProcessed", mock.Anything, env.Provider, env.EventID).
		Return(nil).Once()

	// The scheduled sweep covers the deferred sync; the delivery is still
	// acknowledged.
	err := suite.processor.Process(context.Background(), env.Provider, []byte(`{}`), http.Header{})
	suite.Require().NoError(err)
}

func (suite *WebhookServiceTestSuite) TestProcess_ReauthRequiredFlagsConnection() {
	env := suite.envelope(providers.EventReauthRequired, "item-2")
	suite.adapter.verifySignature = func([]byte, http.Header) (*providers.EventEnvelope, error) {
		return env, nil
	}
	conn := &domain.Connection{ConnectionID: uuid.NewString(), Provider: env.Provider}

	suite.mockEventRepo.On("RecordEventOnce", mock.Anything, mock.MatchedBy(func(e domain.WebhookEvent) bool {
		return e.Provider == env.Provider && e.EventID == env.EventID && !e.Processed
	})).
		Return(true, nil).Once()
	suite.mockConnRepo.On("FindConnectionByProviderItem", mock.Anything, env.Provider, "item-2").
		Return(conn, nil).Once()
	suite.mockConnRepo.On("UpdateConnectionStatus", mock.Anything, conn.ConnectionID, domain.ConnectionNeedsReauth, mock.Anything).
		Return(nil).Once()
	suite.mockEventRepo.On("MarkEventProcessed", mock.Anything, env.Provider, env.EventID).
		Return(nil).Once()

	err := suite.processor.Process(context.Background(), env.Provider, []byte(`{}`), http.Header{})

	suite.Require().NoError(err)
	suite.mockConnRepo.AssertExpectations(suite.T())
	suite.mockScheduler.AssertNotCalled(suite.T(), "Enqueue", mock.Anything)
}

func (suite *WebhookServiceTestSuite) TestProcess_UnknownItemIsAcknowledged() {
	env := suite.envelope(providers.EventTransactionsUpdated, "item-gone")
	suite.adapter.verifySignature = func([]byte, http.Header) (*providers.EventEnvelope, error) {
		return env, nil
	}

	suite.mockEventRepo.On("RecordEventOnce", mock.Anything, mock.MatchedBy(func(e domain.WebhookEvent) bool {
		return e.Provider == env.Provider && e.EventID == env.EventID && !e.Processed
	})).
		Return(true, nil).Once()
	suite.mockConnRepo.On("FindConnectionByProviderItem", mock.Anything, env.Provider, "item-gone").
		Return(nil, apperrors.ErrNotFound).Once()
	suite.mockEventRepo.On("MarkEventProcessed", mock.Anything, env.Provider, env.EventID).
		Return(nil).Once()

	err := suite.processor.Process(context.Background(), env.Provider, []byte(`{}`), http.Header{})

	suite.Require().NoError(err)
	suite.mockScheduler.AssertNotCalled(suite.T(), "Enqueue", mock.Anything)
}

func (suite *WebhookServiceTestSuite) TestProcess_InformationalEventNoSideEffects() {
	env := suite.envelope(providers.EventInfo, "")
	suite.adapter.verifySignature = func([]byte, http.Header) (*providers.EventEnvelope, error) {
		return env, nil
	}

	suite.mockEventRepo.On("RecordEventOnce", mock.Anything, mock.MatchedBy(func(e domain.WebhookEvent) bool {
		return e.Provider == env.Provider && e.EventID == env.EventID && !e.Processed
	})).
		Return(true, nil).Once()
	suite.mockEventRepo.On("MarkEventProcessed", mock.Anything, env.Provider, env.EventID).
		Return(nil).Once()

	err := suite.processor.Process(context.Background(), env.Provider, []byte(`{}`), http.Header{})

	suite.Require().NoError(err)
	suite.mockConnRepo.AssertNotCalled(suite.T(), "FindConnectionByProviderItem", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *WebhookServiceTestSuite) TestProcess_RoutingFailureSurfacesError() {
	env := suite.envelope(providers.EventTransactionsUpdated, "item-1")
	suite.adapter.verifySignature = func([]byte, http.Header) (*providers.EventEnvelope, error) {
		return env, nil
	}
	dbErr := errors.New("connection lookup timed out")

	suite.mockEventRepo.On("RecordEventOnce", mock.Anything, mock.MatchedBy(func(e domain.WebhookEvent) bool {
		return e.Provider == env.Provider && e.EventID == env.EventID && !e.Processed
	})).
		Return(true, nil).Once()
	suite.mockConnRepo.On("FindConnectionByProviderItem", mock.Anything, env.Provider, "item-1").
		Return(nil, dbErr).Once()

	err := suite.processor.Process(context.Background(), env.Provider, []byte(`{}`), http.Header{})

	suite.ErrorIs(err, dbErr)
	// The event stays recorded but is never marked processed.
	suite.mockEventRepo.AssertNotCalled(suite.T(), "MarkEventProcessed", mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookServiceTestSuite(t *testing.T) {
	suite.Run(t, new(WebhookServiceTestSuite))
}
