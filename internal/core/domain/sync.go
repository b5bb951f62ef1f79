package domain

import "time"

// SyncType identifies the kind of sync holding the per-connection guard.
type SyncType string

const (
	SyncNone        SyncType = "none"
	SyncInitial     SyncType = "initial"
	SyncIncremental SyncType = "incremental"
	SyncManual      SyncType = "manual"
)

// SyncState is the per-connection bookkeeping row for incremental sync.
// At most one in-progress sync per connection at any time.
type SyncState struct {
	ConnectionID string     `json:"connectionID"`
	Cursor       string     `json:"cursor"`
	InProgress   SyncType   `json:"inProgress"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	RetryCount   int        `json:"retryCount"`
}

// SyncJob is a unit of work for the sync worker pool.
type SyncJob struct {
	ConnectionID string
	Type         SyncType
}
