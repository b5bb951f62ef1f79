package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a financial movement on an Account.
// (AccountID, ProviderTransactionID) is the sole deduplication key when the
// provider id is present; it is empty for manually entered records.
// Sync never deletes transactions.
type Transaction struct {
	TransactionID         string          `json:"transactionID"`
	AccountID             string          `json:"accountID"`
	ProviderTransactionID string          `json:"providerTransactionID,omitempty"`
	Amount                decimal.Decimal `json:"amount"` // signed, minor-unit precision
	CurrencyCode          string          `json:"currencyCode"`
	Description           string          `json:"description"`
	MerchantName          string          `json:"merchantName,omitempty"`
	OccurredOn            time.Time       `json:"occurredOn"`
	Pending               bool            `json:"pending"`
	AuditFields
}
