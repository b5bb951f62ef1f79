// Package finbridge implements the provider adapter for the Finbridge
// aggregation API. All Finbridge-specific wire shapes, auth flow details and
// webhook signing rules live here and nowhere else.
package finbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/moneywise/bank_sync/internal/apperrors"
	"github.com/moneywise/bank_sync/internal/core/domain"
	"github.com/moneywise/bank_sync/internal/core/ports/providers"
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
)

// ProviderName is the tag stored on connections backed by Finbridge.
const ProviderName = "finbridge"

const (
	defaultTimeout  = 30 * time.Second
	transactionPage = 500
)

// Config carries the credentials and endpoints for one Finbridge environment.
type Config struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	WebhookSecret string

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Adapter talks to the Finbridge REST API.
type Adapter struct {
	httpClient    *http.Client
	baseURL       string
	clientID      string
	clientSecret  string
	webhookSecret []byte
	oauth         *oauth2.Config
}

// New creates a Finbridge adapter.
func New(cfg Config) *Adapter {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Adapter{
		httpClient:    client,
		baseURL:       cfg.BaseURL,
		clientID:      cfg.ClientID,
		clientSecret:  cfg.ClientSecret,
		webhookSecret: []byte(cfg.WebhookSecret),
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.BaseURL + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

var _ providers.ProviderAdapter = (*Adapter)(nil)

func (a *Adapter) Name() string { return ProviderName }

type linkSessionRequest struct {
	ClientID string `json:"client_id"`
	Secret   string `json:"secret"`
	UserID   string `json:"user_id"`
}

type linkSessionResponse struct {
	LinkToken string    `json:"link_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *Adapter) CreateLinkSession(ctx context.Context, userID string) (*providers.LinkSession, error) {
	var resp linkSessionResponse
	err := a.post(ctx, "/link/sessions", linkSessionRequest{
		ClientID: a.clientID,
		Secret:   a.clientSecret,
		UserID:   userID,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &providers.LinkSession{
		SessionToken: resp.LinkToken,
		ExpiresAt:    resp.ExpiresAt,
	}, nil
}

func (a *Adapter) ExchangeCredential(ctx context.Context, ephemeralToken string, _ providers.LinkMetadata) (*providers.Credential, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	token, err := a.oauth.Exchange(ctx, ephemeralToken)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return nil, mapStatus(retrieveErr.Response.StatusCode, retrieveErr.Response.Header, retrieveErr.ErrorCode)
		}
		return nil, fmt.Errorf("%w: token exchange: %v", apperrors.ErrProviderUnavailable, err)
	}

	itemID, _ := token.Extra("item_id").(string)
	if itemID == "" {
		return nil, &apperrors.ProviderError{Code: "missing_item_id", Err: fmt.Errorf("token exchange response lacks item_id")}
	}

	return &providers.Credential{
		ItemID:      itemID,
		AccessToken: token.AccessToken,
	}, nil
}

type accountsRequest struct {
	AccessToken string `json:"access_token"`
}

type accountsResponse struct {
	Accounts []wireAccount `json:"accounts"`
}

type wireAccount struct {
	AccountID        string          `json:"account_id"`
	Name             string          `json:"name"`
	Type             string          `json:"type"`
	CurrencyCode     string          `json:"iso_currency_code"`
	CurrentBalance   decimal.Decimal `json:"current_balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
}

func (a *Adapter) FetchAccounts(ctx context.Context, accessToken string) ([]providers.AccountSnapshot, error) {
	var resp accountsResponse
	if err := a.post(ctx, "/accounts/get", accountsRequest{AccessToken: accessToken}, &resp); err != nil {
		return nil, err
	}

	snapshots := make([]providers.AccountSnapshot, 0, len(resp.Accounts))
	for _, acct := range resp.Accounts {
		snapshots = append(snapshots, providers.AccountSnapshot{
			ProviderAccountID: acct.AccountID,
			Name:              acct.Name,
			Type:              mapAccountType(acct.Type),
			CurrencyCode:      acct.CurrencyCode,
			CurrentBalance:    acct.CurrentBalance,
			AvailableBalance:  acct.AvailableBalance,
		})
	}
	return snapshots, nil
}

type transactionsRequest struct {
	AccessToken string `json:"access_token"`
	AccountID   string `json:"account_id"`
	StartDate   string `json:"start_date"`
	Cursor      string `json:"cursor,omitempty"`
	Count       int    `json:"count"`
}

type transactionsResponse struct {
	Transactions []wireTransaction `json:"transactions"`
	NextCursor   string            `json:"next_cursor"`
	HasMore      bool              `json:"has_more"`
}

type wireTransaction struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	CurrencyCode  string          `json:"iso_currency_code"`
	Description   string          `json:"description"`
	MerchantName  string          `json:"merchant_name"`
	Date          string          `json:"date"`
	Pending       bool            `json:"pending"`
}

func (a *Adapter) FetchTransactions(ctx context.Context, accessToken, providerAccountID string, since time.Time, cursor string) (*providers.TransactionPage, error) {
	var resp transactionsResponse
	err := a.post(ctx, "/transactions/get", transactionsRequest{
		AccessToken: accessToken,
		AccountID:   providerAccountID,
		StartDate:   since.Format("2006-01-02"),
		Cursor:      cursor,
		Count:       transactionPage,
	}, &resp)
	if err != nil {
		return nil, err
	}

	page := &providers.TransactionPage{
		Transactions: make([]providers.TransactionSnapshot, 0, len(resp.Transactions)),
		NextCursor:   resp.NextCursor,
		HasMore:      resp.HasMore,
	}
	for _, tx := range resp.Transactions {
		occurred, err := time.Parse("2006-01-02", tx.Date)
		if err != nil {
			return nil, &apperrors.ProviderError{Code: "bad_transaction_date", Err: err}
		}
		page.Transactions = append(page.Transactions, providers.TransactionSnapshot{
			ProviderTransactionID: tx.TransactionID,
			Amount:                tx.Amount,
			CurrencyCode:          tx.CurrencyCode,
			Description:           tx.Description,
			MerchantName:          tx.MerchantName,
			OccurredOn:            occurred,
			Pending:               tx.Pending,
		})
	}
	return page, nil
}

type errorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// post sends a JSON request and decodes the JSON response, translating
// Finbridge failure statuses into the engine's error taxonomy.
func (a *Adapter) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", apperrors.ErrProviderUnavailable, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(raw, &apiErr)
		return mapStatus(resp.StatusCode, resp.Header, apiErr.ErrorCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &apperrors.ProviderError{Code: "bad_response_body", Err: err}
	}
	return nil
}

// mapStatus converts a Finbridge HTTP failure into the engine taxonomy:
// 401 means the stored credential is dead, 429 is a throttle with a hint,
// everything 5xx is a provider fault worth retrying.
func mapStatus(status int, headers http.Header, errorCode string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: finbridge rejected credential (%s)", apperrors.ErrReauthRequired, errorCode)
	case status == http.StatusTooManyRequests:
		retryAfter := 60 * time.Second
		if secs, err := strconv.Atoi(headers.Get("Retry-After")); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
		return apperrors.NewRateLimited(retryAfter)
	case status >= 500:
		if errorCode == "" {
			errorCode = strconv.Itoa(status)
		}
		return &apperrors.ProviderError{Code: errorCode, Err: fmt.Errorf("finbridge returned status %d", status)}
	default:
		if errorCode == "" {
			errorCode = strconv.Itoa(status)
		}
		return &apperrors.ProviderError{Code: errorCode, Err: fmt.Errorf("finbridge returned status %d", status)}
	}
}

func mapAccountType(wire string) domain.AccountType {
	switch wire {
	case "depository.checking", "checking":
		return domain.AccountChecking
	case "depository.savings", "savings":
		return domain.AccountSavings
	case "credit":
		return domain.AccountCredit
	case "loan":
		return domain.AccountLoan
	case "investment":
		return domain.AccountInvestment
	default:
		return domain.AccountChecking
	}
}
