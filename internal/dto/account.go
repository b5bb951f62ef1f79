package dto

import (
	"time"

	"github.com/moneywise/bank_sync/internal/core/domain"
)

// AccountResponse is the API shape of a synced account. Balances are strings
// to keep decimal precision across the wire.
type AccountResponse struct {
	AccountID          string     `json:"accountID"`
	ConnectionID       string     `json:"connectionID"`
	Name               string     `json:"name"`
	AccountType        string     `json:"accountType"`
	CurrencyCode       string     `json:"currencyCode"`
	CurrentBalance     string     `json:"currentBalance"`
	AvailableBalance   string     `json:"availableBalance"`
	BalanceRefreshedAt *time.Time `json:"balanceRefreshedAt,omitempty"`
	IsActive           bool       `json:"isActive"`
}

// ToAccountResponse converts a domain account to its API shape.
func ToAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		AccountID:          a.AccountID,
		ConnectionID:       a.ConnectionID,
		Name:               a.Name,
		AccountType:        string(a.AccountType),
		CurrencyCode:       a.CurrencyCode,
		CurrentBalance:     a.CurrentBalance.String(),
		AvailableBalance:   a.AvailableBalance.String(),
		BalanceRefreshedAt: a.BalanceRefreshedAt,
		IsActive:           a.IsActive,
	}
}

// ToAccountResponses converts a slice of domain accounts.
func ToAccountResponses(as []domain.Account) []AccountResponse {
	out := make([]AccountResponse, len(as))
	for i := range as {
		out[i] = ToAccountResponse(&as[i])
	}
	return out
}
