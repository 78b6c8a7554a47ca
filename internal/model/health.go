package model

import "github.com/worldline-go/types"

// ProviderHealth is the result of a provider's health_check(). Probing
// health must never mutate the cache.
type ProviderHealth struct {
	IsHealthy  bool                   `json:"is_healthy"`
	Message    string                 `json:"message,omitempty"`
	LastSync   types.Null[types.Time] `json:"last_sync,omitempty"`
	ErrorCount int                    `json:"error_count"`
}

// SyncResult is what a provider returns from one sync() invocation.
type SyncResult struct {
	Success      bool     `json:"success"`
	ItemsAdded   int      `json:"items_added"`
	ItemsUpdated int      `json:"items_updated"`
	ItemsRemoved int      `json:"items_removed"`
	Errors       []string `json:"errors,omitempty"`
	DurationMS   int64    `json:"duration_ms"`

	// Streams and Items are the entities produced by this sync cycle, to be
	// merged into the cache by internal/store. Excluded from the wire
	// counts; see internal/provider.Provider.Sync.
	Streams []Stream `json:"-"`
	Items   []Item   `json:"-"`
}

// ProviderSyncState is the scheduler's externally observable snapshot for
// one provider, sampled at the instant sync.status is served. There is no
// cross-provider snapshot guarantee.
type ProviderSyncState struct {
	ProviderID      string                 `json:"provider_id"`
	IsSyncing       bool                   `json:"is_syncing"`
	LastSync        types.Null[types.Time] `json:"last_sync,omitempty"`
	LastSuccess     types.Null[types.Time] `json:"last_success,omitempty"`
	LastError       string                 `json:"last_error,omitempty"`
	ItemsSynced     int64                  `json:"items_synced"`
	NextSync        types.Null[types.Time] `json:"next_sync,omitempty"`
	ConsecutiveFail int                    `json:"consecutive_failures"`
	Healthy         bool                   `json:"healthy"`
}
