package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/scryforge/hub/internal/model"
)

// Unified view stream ids: synthetic, read-only, computed at request
// time and never persisted.
const (
	UnifiedFeedsID       model.StreamID = "unified:feed:feeds"
	UnifiedSavedID       model.StreamID = "unified:saved_items:saved"
	UnifiedCollectionsID model.StreamID = "unified:collection:collections"
)

// IsUnifiedStream reports whether id names one of the synthetic views
// rather than a real, provider-owned stream.
func IsUnifiedStream(id model.StreamID) bool {
	switch id {
	case UnifiedFeedsID, UnifiedSavedID:
		return true
	default:
		return false
	}
}

// UnifiedStreamDescriptors returns the virtual Stream entries for the two
// item-bearing synthetic views (feeds and saved), for use alongside
// store.GetStreams() results in streams.list responses. The collections
// view has no entry here and IsUnifiedStream reports false for
// UnifiedCollectionsID; it is served only through UnifiedCollections.
func UnifiedStreamDescriptors() []model.Stream {
	return []model.Stream{
		{ID: UnifiedFeedsID, Name: "All Feeds", ProviderID: model.OwnerUnified, Kind: model.StreamKindFeed},
		{ID: UnifiedSavedID, Name: "All Saved", ProviderID: model.OwnerUnified, Kind: model.StreamKindSavedItems},
	}
}

// ResolveUnifiedItems computes the contents of id, one of UnifiedFeedsID
// or UnifiedSavedID. Callers must check IsUnifiedStream(id) first.
func ResolveUnifiedItems(ctx context.Context, st Store, id model.StreamID, opts model.ListOptions) ([]model.Item, error) {
	switch id {
	case UnifiedFeedsID:
		return unifiedFeeds(ctx, st, opts)
	case UnifiedSavedID:
		return unifiedSaved(ctx, st, opts)
	default:
		return nil, fmt.Errorf("search: %q is not a unified stream", id)
	}
}

// unifiedFeeds concatenates items across every Feed-kind stream, ordered
// published DESC then id ASC for stable pagination (same ordering rule
// internal/store uses for a single stream).
func unifiedFeeds(ctx context.Context, st Store, opts model.ListOptions) ([]model.Item, error) {
	streams, err := st.GetStreams(ctx)
	if err != nil {
		return nil, fmt.Errorf("search: unified:feeds: list streams: %w", err)
	}

	var all []model.Item
	for _, s := range streams {
		if s.Kind != model.StreamKindFeed {
			continue
		}
		items, err := st.GetItems(ctx, s.ID, model.ListOptions{IsRead: opts.IsRead, IsSaved: opts.IsSaved})
		if err != nil {
			return nil, fmt.Errorf("search: unified:feeds: items for %q: %w", s.ID, err)
		}
		all = append(all, items...)
	}

	sortItemsNewestFirst(all)
	return paginate(all, opts), nil
}

// unifiedSaved gathers every item with IsSaved across every stream.
func unifiedSaved(ctx context.Context, st Store, opts model.ListOptions) ([]model.Item, error) {
	streams, err := st.GetStreams(ctx)
	if err != nil {
		return nil, fmt.Errorf("search: unified:saved: list streams: %w", err)
	}

	saved := true
	var all []model.Item
	for _, s := range streams {
		items, err := st.GetItems(ctx, s.ID, model.ListOptions{IsSaved: &saved})
		if err != nil {
			return nil, fmt.Errorf("search: unified:saved: items for %q: %w", s.ID, err)
		}
		all = append(all, items...)
	}

	sortItemsNewestFirst(all)
	return paginate(all, opts), nil
}

// UnifiedCollections returns every Collection across every provider.
// Since internal/store.ListCollections already spans every
// provider, this is a pass-through kept as its own entry point so
// callers have one uniform "resolve a unified view" surface to reach for.
func UnifiedCollections(ctx context.Context, st Store) ([]model.Collection, error) {
	return st.ListCollections(ctx)
}

func sortItemsNewestFirst(items []model.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		pi, pj := items[i].Published, items[j].Published
		switch {
		case pi.Valid && pj.Valid && !pi.V.Time.Equal(pj.V.Time):
			return pi.V.Time.After(pj.V.Time)
		case pi.Valid != pj.Valid:
			return pi.Valid
		default:
			return items[i].ID < items[j].ID
		}
	})
}

func paginate(items []model.Item, opts model.ListOptions) []model.Item {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}
