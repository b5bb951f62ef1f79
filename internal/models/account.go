package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType mirrors domain.AccountType for storage.
type AccountType string

// Account is the persisted form of a provider-surfaced financial account.
// (connection_id, provider_account_id) is unique. balance_baseline is the
// provider balance attributable to history outside the imported window; the
// reconciler uses it to cross-check running balances.
type Account struct {
	AccountID          string          `db:"account_id"`
	ConnectionID       string          `db:"connection_id"`
	ProviderAccountID  string          `db:"provider_account_id"`
	Name               string          `db:"name"`
	AccountType        AccountType     `db:"account_type"`
	CurrencyCode       string          `db:"currency_code"`
	CurrentBalance     decimal.Decimal `db:"current_balance"`
	AvailableBalance   decimal.Decimal `db:"available_balance"`
	BalanceBaseline    decimal.Decimal `db:"balance_baseline"`
	BalanceRefreshedAt *time.Time      `db:"balance_refreshed_at"` // Nullable
	IsActive           bool            `db:"is_active"`
	AuditFields
}
