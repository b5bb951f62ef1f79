package providers

import (
	"context"
	"net/http"
	"time"

	"github.com/moneywise/bank_sync/internal/core/domain"
	"github.com/shopspring/decimal"
)

// Well-known webhook event types routed by the webhook processor. Adapters
// translate provider-native event names into these.
const (
	EventTransactionsUpdated = "transactions.updated"
	EventReauthRequired      = "connection.reauth_required"
	EventInfo                = "info"
)

// LinkSession is a provider-side, time-boxed handle the client uses to
// authenticate the end user with their institution. Callers must respect
// ExpiresAt.
type LinkSession struct {
	SessionToken string
	ExpiresAt    time.Time
}

// LinkMetadata carries institution selection captured during the client-side
// link flow.
type LinkMetadata struct {
	InstitutionID   string
	InstitutionName string
}

// Credential is the long-lived provider credential obtained by exchanging a
// short-lived client token. ItemID is the provider's identifier for the link
// and anchors connection dedup.
type Credential struct {
	ItemID      string
	AccessToken string
}

// AccountSnapshot is the provider's current view of one account.
type AccountSnapshot struct {
	ProviderAccountID string
	Name              string
	Type              domain.AccountType
	CurrencyCode      string
	CurrentBalance    decimal.Decimal
	AvailableBalance  decimal.Decimal
}

// TransactionSnapshot is one provider transaction record.
type TransactionSnapshot struct {
	ProviderTransactionID string
	Amount                decimal.Decimal
	CurrencyCode          string
	Description           string
	MerchantName          string
	OccurredOn            time.Time
	Pending               bool
}

// TransactionPage is one page of a restartable transaction stream. The caller
// persists NextCursor so the stream resumes after a crash without re-fetching
// completed pages.
type TransactionPage struct {
	Transactions []TransactionSnapshot
	NextCursor   string
	HasMore      bool
}

// EventEnvelope is a verified, provider-agnostic webhook event.
type EventEnvelope struct {
	Provider       string
	EventID        string
	EventType      string
	ExternalItemID string
}

// ProviderAdapter isolates all provider-specific quirks (auth flow shape,
// pagination cursor format, webhook signing scheme) so the orchestrator,
// reconciler and quota manager stay provider-agnostic. One implementation per
// external data source.
type ProviderAdapter interface {
	// Name returns the provider tag stored on connections.
	Name() string

	// CreateLinkSession requests a time-boxed client link session.
	// Fails with apperrors.ErrProviderUnavailable on transport errors.
	CreateLinkSession(ctx context.Context, userID string) (*LinkSession, error)

	// ExchangeCredential converts a short-lived client token into a long-lived
	// provider credential. Providers return the same item for a re-exchanged
	// token; the orchestrator keys connection dedup on that item id.
	ExchangeCredential(ctx context.Context, ephemeralToken string, metadata LinkMetadata) (*Credential, error)

	// FetchAccounts returns the current account list and balances.
	// Fails with apperrors.ErrReauthRequired, apperrors.RateLimitedError or
	// apperrors.ProviderError.
	FetchAccounts(ctx context.Context, accessToken string) ([]AccountSnapshot, error)

	// FetchTransactions returns one page of transactions for the account from
	// since to now. Pass an empty cursor to start; pass a persisted cursor to
	// resume.
	FetchTransactions(ctx context.Context, accessToken, providerAccountID string, since time.Time, cursor string) (*TransactionPage, error)

	// VerifyWebhookSignature validates transport authenticity before any part
	// of the payload is trusted. Comparison must be timing-safe; failures
	// return apperrors.ErrSignatureInvalid without detail.
	VerifyWebhookSignature(rawBody []byte, headers http.Header) (*EventEnvelope, error)
}
