package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the persisted form of a financial movement.
// (account_id, provider_transaction_id) is unique when the provider id is
// present; provider_transaction_id is NULL for manually entered rows.
type Transaction struct {
	TransactionID         string          `db:"transaction_id"`
	AccountID             string          `db:"account_id"`
	ProviderTransactionID string          `db:"provider_transaction_id"` // Nullable
	Amount                decimal.Decimal `db:"amount"`
	CurrencyCode          string          `db:"currency_code"`
	Description           string          `db:"description"`
	MerchantName          string          `db:"merchant_name"` // Nullable
	OccurredOn            time.Time       `db:"occurred_on"`
	Pending               bool            `db:"pending"`
	AuditFields
}
