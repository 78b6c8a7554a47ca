// Package provider defines the capability contract every information
// source implements: a mandatory base and five optional facets, probed
// at runtime through type assertion rather than structural reflection.
package provider

import (
	"context"

	"github.com/scryforge/hub/internal/model"
)

// Capabilities is the plain record a provider returns describing which
// facets it implements. It exists so the registry and RPC layer can
// answer "does P support X" without holding a live facet handle.
type Capabilities struct {
	HasFeeds       bool `json:"has_feeds"`
	HasCollections bool `json:"has_collections"`
	HasSavedItems  bool `json:"has_saved_items"`
	HasCommunities bool `json:"has_communities"`
	HasTasks       bool `json:"has_tasks"`
}

// Provider is the mandatory base capability every source implements
// regardless of which facets it declares.
type Provider interface {
	// ID returns the provider's unique, kebab-case identifier.
	ID() string
	// Name returns the provider's display name.
	Name() string

	// HealthCheck probes connectivity. It must never mutate the cache.
	HealthCheck(ctx context.Context) (model.ProviderHealth, error)

	// Sync performs one incremental synchronization cycle, returning the
	// streams/items it produced alongside summary counts.
	Sync(ctx context.Context) (model.SyncResult, error)

	Capabilities() Capabilities

	// AvailableActions lists the actions currently permitted on an item.
	AvailableActions(ctx context.Context, item model.Item) ([]Action, error)

	// ExecuteAction runs an action. MarkRead/MarkUnread/Save/Unsave/Archive
	// are fulfilled by the core before delegation reaches here; a
	// provider only sees ExecuteAction for actions that demand external
	// state change.
	ExecuteAction(ctx context.Context, item model.Item, action Action) (ActionResult, error)
}

// HasFeeds is implemented by providers that expose feed-shaped streams.
type HasFeeds interface {
	ListFeeds(ctx context.Context) ([]model.Stream, error)
	// GetFeedItems lists items in feed, honoring the options; returning
	// an empty slice (not an error) when Limit == 0.
	GetFeedItems(ctx context.Context, feedID model.StreamID, opts FeedItemsOptions) ([]model.Item, error)
}

// FeedItemsOptions bounds a feed item listing.
type FeedItemsOptions struct {
	Limit       int
	Offset      int
	Since       *model.Date
	IncludeRead bool
}

// HasCollections is implemented by providers that expose named, ordered
// item groupings. Mutating methods are only meaningful when the target
// collection reports IsEditable == true.
type HasCollections interface {
	ListCollections(ctx context.Context) ([]model.Collection, error)
	// GetCollectionItems returns items in collection order, which is part
	// of the observable contract and must be preserved verbatim.
	GetCollectionItems(ctx context.Context, id model.CollectionID) ([]model.Item, error)
	AddToCollection(ctx context.Context, id model.CollectionID, itemID model.ItemID) error
	RemoveFromCollection(ctx context.Context, id model.CollectionID, itemID model.ItemID) error
	CreateCollection(ctx context.Context, name string) (model.Collection, error)
}

// HasSavedItems is implemented by providers with a native "saved" concept
// distinct from the core's own is_saved flag (e.g. a bookmarking service).
type HasSavedItems interface {
	GetSavedItems(ctx context.Context, opts SavedItemsOptions) ([]model.Item, error)
	IsSaved(ctx context.Context, itemID model.ItemID) (bool, error)
	SaveItem(ctx context.Context, itemID model.ItemID) error
	UnsaveItem(ctx context.Context, itemID model.ItemID) error
}

// SavedItemsOptions bounds a saved-items listing.
type SavedItemsOptions struct {
	Limit    int
	Offset   int
	Category string
}

// HasCommunities is implemented by providers backed by a forum/community
// concept (subreddits, mailing lists, chat rooms treated as read sources).
type HasCommunities interface {
	ListCommunities(ctx context.Context) ([]model.Stream, error)
	GetCommunity(ctx context.Context, id model.StreamID) (model.Stream, error)
}

// HasTasks is implemented by providers backed by a task/todo service.
type HasTasks interface {
	CompleteTask(ctx context.Context, taskID model.ItemID) error
	UncompleteTask(ctx context.Context, taskID model.ItemID) error
}

// ActionKind is the closed set of action kinds a Provider can advertise.
type ActionKind string

const (
	ActionOpen                 ActionKind = "open"
	ActionOpenInBrowser        ActionKind = "open_in_browser"
	ActionCopyLink             ActionKind = "copy_link"
	ActionPreview              ActionKind = "preview"
	ActionMarkRead             ActionKind = "mark_read"
	ActionMarkUnread           ActionKind = "mark_unread"
	ActionSave                 ActionKind = "save"
	ActionUnsave               ActionKind = "unsave"
	ActionArchive              ActionKind = "archive"
	ActionTag                  ActionKind = "tag"
	ActionAddToCollection      ActionKind = "add_to_collection"
	ActionRemoveFromCollection ActionKind = "remove_from_collection"
	ActionExecuteCustom        ActionKind = "execute_custom"
)

// Action describes one operation an item currently permits.
type Action struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Kind        ActionKind `json:"kind"`
	CustomTag   string     `json:"custom_tag,omitempty"` // set when Kind == ActionExecuteCustom
	KeyHint     string     `json:"key_hint,omitempty"`
}

// ActionResult is returned by ExecuteAction.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
