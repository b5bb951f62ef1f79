package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies a financial account surfaced by a connection.
type AccountType string

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCredit     AccountType = "credit"
	AccountLoan       AccountType = "loan"
	AccountInvestment AccountType = "investment"
)

// Account is a financial account surfaced by a Connection.
// (ConnectionID, ProviderAccountID) is unique; CurrencyCode never changes
// after creation.
type Account struct {
	AccountID          string          `json:"accountID"`
	ConnectionID       string          `json:"connectionID"`
	ProviderAccountID  string          `json:"providerAccountID"`
	Name               string          `json:"name"`
	AccountType        AccountType     `json:"accountType"`
	CurrencyCode       string          `json:"currencyCode"`
	CurrentBalance     decimal.Decimal `json:"currentBalance"`
	AvailableBalance   decimal.Decimal `json:"availableBalance"`
	BalanceBaseline    decimal.Decimal `json:"balanceBaseline"`
	BalanceRefreshedAt *time.Time      `json:"balanceRefreshedAt,omitempty"`
	IsActive           bool            `json:"isActive"`
	AuditFields
}
