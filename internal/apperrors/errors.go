package apperrors

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrDuplicate indicates that an attempt was made to create a resource that already exists.
var ErrDuplicate = errors.New("resource already exists")

// ErrReauthRequired indicates the provider rejected the stored credential and
// the end user must re-authenticate. Syncs halt and are not retried.
var ErrReauthRequired = errors.New("provider requires re-authentication")

// ErrRateLimited indicates a provider-imposed throttle. Use NewRateLimited to
// carry the retry hint.
var ErrRateLimited = errors.New("rate limited by provider")

// ErrQuotaDenied indicates a product-imposed sync budget was exhausted.
var ErrQuotaDenied = errors.New("sync quota exhausted")

// ErrProviderUnavailable indicates a transient transport failure talking to a provider.
var ErrProviderUnavailable = errors.New("provider unavailable")

// ErrSignatureInvalid indicates an inbound webhook failed authenticity verification.
var ErrSignatureInvalid = errors.New("webhook signature invalid")

// ErrReconciliationAnomaly indicates a settled transaction amount changed on
// the provider side. Surfaced for review; the sync itself still completes.
var ErrReconciliationAnomaly = errors.New("reconciliation anomaly")

// ErrVaultError indicates credential material could not be decrypted, most
// likely because its key version has been retired. Requires operator
// intervention; never silently ignored.
var ErrVaultError = errors.New("credential vault error")

// ErrSyncAlreadyInProgress indicates another sync holds the per-connection guard.
var ErrSyncAlreadyInProgress = errors.New("sync already in progress")

// ErrHasDependentRecords indicates a hard delete would orphan rows that still
// reference the resource.
var ErrHasDependentRecords = errors.New("resource has dependent records")

// RateLimitedError carries the provider's retry-after hint.
// errors.Is(err, ErrRateLimited) matches it.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by provider, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// NewRateLimited builds a provider throttle error with a retry hint.
func NewRateLimited(retryAfter time.Duration) error {
	return &RateLimitedError{RetryAfter: retryAfter}
}

// QuotaDeniedError carries the quota window reset hint.
// errors.Is(err, ErrQuotaDenied) matches it.
type QuotaDeniedError struct {
	RetryAfter time.Duration
}

func (e *QuotaDeniedError) Error() string {
	return fmt.Sprintf("sync quota exhausted, retry after %s", e.RetryAfter)
}

func (e *QuotaDeniedError) Unwrap() error { return ErrQuotaDenied }

// NewQuotaDenied builds a quota denial with the window reset hint.
func NewQuotaDenied(retryAfter time.Duration) error {
	return &QuotaDeniedError{RetryAfter: retryAfter}
}

// ProviderError carries a provider-reported error code for a non-transport
// failure. The orchestrator's retry policy treats it as transient.
type ProviderError struct {
	Code string
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider error %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("provider error %s", e.Code)
}

func (e *ProviderError) Unwrap() error { return e.Err }
