// Package store defines the durable cache contract: streams, items,
// collections, and per-provider sync state, with two interchangeable
// backends (sqlite3, postgres) built on goqu queries and muz migrations.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/scryforge/hub/internal/config"
	"github.com/scryforge/hub/internal/model"
	"github.com/scryforge/hub/internal/store/postgres"
	"github.com/scryforge/hub/internal/store/sqlite3"
)

// ListOptions and SearchFilter are aliased from internal/model, which is
// where they are actually defined (to avoid an import cycle: this package
// imports the sqlite3/postgres backends, so the backends cannot import
// this package back just to reference these two parameter types).
type ListOptions = model.ListOptions
type SearchFilter = model.SearchFilter

// Store is the durable cache contract every backend implements.
type Store interface {
	Close()

	// UpsertStreams is a single-transaction upsert. Owner prefixes must
	// match provider ids, unread counts never exceed totals, and a
	// stream's last_updated never regresses.
	UpsertStreams(ctx context.Context, streams []model.Stream) error
	// UpsertItems is a single-transaction upsert: content fields are
	// overwritten, read/saved/archived flags preserved, tags and metadata
	// merged. Each touched stream is then pruned to MaxItemsPerStream.
	UpsertItems(ctx context.Context, items []model.Item) error

	GetStreams(ctx context.Context) ([]model.Stream, error)
	GetStream(ctx context.Context, id model.StreamID) (*model.Stream, error)
	GetItems(ctx context.Context, streamID model.StreamID, opts ListOptions) ([]model.Item, error)
	GetItem(ctx context.Context, id model.ItemID) (*model.Item, error)

	// Search returns at most 100 items matching query (FTS residue) and
	// filter, ordered by rank then published DESC.
	Search(ctx context.Context, query string, filter SearchFilter) ([]model.Item, error)

	MarkRead(ctx context.Context, id model.ItemID) error
	MarkUnread(ctx context.Context, id model.ItemID) error
	MarkSaved(ctx context.Context, id model.ItemID) error
	MarkUnsaved(ctx context.Context, id model.ItemID) error
	MarkArchived(ctx context.Context, id model.ItemID) error
	Unarchive(ctx context.Context, id model.ItemID) error

	// RemoveProvider cascades the delete of every stream and item owned
	// by providerID.
	RemoveProvider(ctx context.Context, providerID string) error

	ListCollections(ctx context.Context) ([]model.Collection, error)
	GetCollection(ctx context.Context, id model.CollectionID) (*model.Collection, error)
	GetCollectionItems(ctx context.Context, id model.CollectionID) ([]model.Item, error)
	CreateCollection(ctx context.Context, name string) (model.Collection, error)
	AddToCollection(ctx context.Context, id model.CollectionID, itemID model.ItemID) error
	RemoveFromCollection(ctx context.Context, id model.CollectionID, itemID model.ItemID) error
	UpsertCollections(ctx context.Context, providerID string, collections []model.Collection, itemIDsByCollection map[model.CollectionID][]model.ItemID) error

	GetSyncState(ctx context.Context, providerID string) (*model.ProviderSyncState, error)
	SetSyncState(ctx context.Context, state model.ProviderSyncState) error
	ListSyncStates(ctx context.Context) (map[string]model.ProviderSyncState, error)
}

// New constructs a Store from configuration: SQLite when cfg.SQLite is
// set (the default, embedded backend), otherwise Postgres when
// cfg.Postgres is set (optional multi-reader backend). The embedded
// backend wins when both are set, since the default deployment has no
// Postgres.
func New(ctx context.Context, cfg config.Store) (Store, error) {
	switch {
	case cfg.SQLite != nil:
		s, err := sqlite3.New(ctx, cfg.SQLite, cfg.MaxItemsPerStream)
		if err != nil {
			return nil, fmt.Errorf("store: open sqlite: %w", err)
		}
		return s, nil
	case cfg.Postgres != nil:
		s, err := postgres.New(ctx, cfg.Postgres, cfg.MaxItemsPerStream)
		if err != nil {
			return nil, fmt.Errorf("store: open postgres: %w", err)
		}
		return s, nil
	default:
		return nil, errors.New("store: no backend configured")
	}
}
