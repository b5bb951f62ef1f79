package domain

import "time"

// QuotaTier selects the per-day sync budget applied to a connection.
type QuotaTier string

const (
	TierFree    QuotaTier = "free"
	TierPremium QuotaTier = "premium"
)

// QuotaGrant is the outcome of an admission check. Denial is a control-flow
// signal, never an error: the orchestrator reschedules at RetryAfter.
type QuotaGrant struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}
