package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/scryforge/hub/internal/model"
)

// Store is the subset of internal/store.Store this package needs: kept
// narrow and local (rather than importing internal/store directly) so
// search stays a leaf package with no dependency on the store's backend
// wiring.
type Store interface {
	GetStreams(ctx context.Context) ([]model.Stream, error)
	GetItems(ctx context.Context, streamID model.StreamID, opts model.ListOptions) ([]model.Item, error)
	Search(ctx context.Context, query string, filter model.SearchFilter) ([]model.Item, error)
	ListCollections(ctx context.Context) ([]model.Collection, error)
}

// ExplicitFilters mirrors the "filters" positional argument of
// search.query: RPC-supplied constraints layered on top of
// whatever ParseQuery extracted from the query string, with explicit
// filters winning on conflict.
type ExplicitFilters struct {
	StreamID    model.StreamID
	ContentType model.ContentType
	IsRead      *bool
	IsSaved     *bool
}

// Query resolves raw (the human query string) plus explicit against the
// live stream list, then delegates to Store.Search, capped at 100 results
// by the store itself.
func Query(ctx context.Context, st Store, raw string, explicit ExplicitFilters) ([]model.Item, error) {
	residue, parsed := ParseQuery(raw)

	streamID := explicit.StreamID
	if streamID == "" && parsed.StreamRef != "" {
		resolved, err := resolveStreamRef(ctx, st, parsed.StreamRef)
		if err != nil {
			return nil, err
		}
		streamID = resolved
	}

	filter := parsed.ToStoreFilter(streamID)
	if explicit.ContentType != "" {
		filter.ContentType = explicit.ContentType
	}
	if explicit.IsRead != nil {
		filter.IsRead = explicit.IsRead
	}
	if explicit.IsSaved != nil {
		filter.IsSaved = explicit.IsSaved
	}

	return st.Search(ctx, residue, filter)
}

// resolveStreamRef matches ref against a stream's id (exact, or its local
// segment) or name (case-insensitive substring), serving "in:<stream>" /
// "stream:<stream>" constraints. Ambiguous or no match returns an empty id,
// which Store.Search treats as "no stream constraint" rather than an
// error: an unresolvable stream reference degrades to an unfiltered
// search instead of failing the whole query.
func resolveStreamRef(ctx context.Context, st Store, ref string) (model.StreamID, error) {
	streams, err := st.GetStreams(ctx)
	if err != nil {
		return "", fmt.Errorf("search: resolve stream ref %q: %w", ref, err)
	}

	lowerRef := strings.ToLower(ref)
	for _, s := range streams {
		if string(s.ID) == ref {
			return s.ID, nil
		}
	}
	var match model.StreamID
	for _, s := range streams {
		local := string(s.ID)[strings.LastIndex(string(s.ID), ":")+1:]
		if strings.EqualFold(local, ref) || strings.Contains(strings.ToLower(s.Name), lowerRef) {
			if match != "" {
				return "", nil // ambiguous
			}
			match = s.ID
		}
	}
	return match, nil
}
