package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/scryforge/hub/internal/model"
	"github.com/scryforge/hub/internal/provider"
	"github.com/scryforge/hub/internal/search"
)

// dispatch routes one decoded request to its handler. Every handler
// returns a fully-formed Response (including
// its id) so the caller doesn't need to special-case notifications here;
// handleSingle drops the response for those.
func (s *Server) dispatch(ctx context.Context, req Request) Response {
	switch req.Method {
	case "streams.list":
		return s.streamsList(ctx, req)
	case "items.list":
		return s.itemsList(ctx, req)
	case "items.mark_read":
		return s.markItem(ctx, req, provider.ActionMarkRead)
	case "items.mark_unread":
		return s.markItem(ctx, req, provider.ActionMarkUnread)
	case "items.save":
		return s.markItem(ctx, req, provider.ActionSave)
	case "items.unsave":
		return s.markItem(ctx, req, provider.ActionUnsave)
	case "items.archive":
		return s.markItem(ctx, req, provider.ActionArchive)
	case "search.query":
		return s.searchQuery(ctx, req)
	case "collections.list":
		return s.collectionsList(ctx, req)
	case "collections.items":
		return s.collectionsItems(ctx, req)
	case "collections.add_item":
		return s.collectionsAddItem(ctx, req)
	case "collections.remove_item":
		return s.collectionsRemoveItem(ctx, req)
	case "collections.create":
		return s.collectionsCreate(ctx, req)
	case "sync.status":
		return s.syncStatus(ctx, req)
	case "sync.trigger":
		return s.syncTrigger(ctx, req)
	default:
		return errResponse(req.ID, CodeMethodNotFound, "method not found: "+req.Method)
	}
}

// decodeArgs unmarshals params as a JSON-RPC positional argument array
// into dest. Trailing optional
// arguments may be omitted from params entirely; dest beyond len(params)
// is simply left at its zero value.
func decodeArgs(params json.RawMessage, dest ...any) error {
	if len(dest) == 0 {
		return nil
	}
	if len(params) == 0 {
		return fmt.Errorf("missing required arguments")
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(params, &arr); err != nil {
		return fmt.Errorf("params must be a positional array: %w", err)
	}
	if len(arr) > len(dest) {
		arr = arr[:len(dest)]
	}
	for i, raw := range arr {
		if err := json.Unmarshal(raw, dest[i]); err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
	}
	return nil
}

func (s *Server) streamsList(ctx context.Context, req Request) Response {
	streams, err := s.store.GetStreams(ctx)
	if err != nil {
		return errResponse(req.ID, CodeInternal, translateError(err).Message)
	}
	streams = append(streams, search.UnifiedStreamDescriptors()...)
	return okResponse(req.ID, streams)
}

func (s *Server) itemsList(ctx context.Context, req Request) Response {
	var rawStreamID string
	if err := decodeArgs(req.Params, &rawStreamID); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	streamID := model.StreamID(rawStreamID)

	var (
		items []model.Item
		err   error
	)
	if search.IsUnifiedStream(streamID) {
		items, err = search.ResolveUnifiedItems(ctx, s.store, streamID, model.ListOptions{})
	} else {
		// A removed provider's streams no longer exist in the store, so
		// items.list on one of its former stream ids must surface
		// NotFound rather than silently returning an empty list.
		st, gerr := s.store.GetStream(ctx, streamID)
		if gerr != nil {
			te := translateError(gerr)
			return errResponse(req.ID, te.Code, te.Message)
		}
		if st == nil {
			return errResponse(req.ID, CodeNotFound, fmt.Sprintf("stream %q not found", streamID))
		}
		items, err = s.store.GetItems(ctx, streamID, model.ListOptions{})
	}
	if err != nil {
		te := translateError(err)
		return errResponse(req.ID, te.Code, te.Message)
	}
	return okResponse(req.ID, items)
}

// markItem fulfills one of items.mark_read/mark_unread/save/unsave/archive.
// Local state changes immediately against the store; provider propagation
// for providers that support the matching action is a best-effort,
// asynchronous follow-up. The call returns as soon as the local write
// commits.
func (s *Server) markItem(ctx context.Context, req Request, action provider.ActionKind) Response {
	var rawItemID string
	if err := decodeArgs(req.Params, &rawItemID); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	itemID := model.ItemID(rawItemID)

	ownerID, err := itemID.Owner()
	if err != nil {
		te := translateError(err)
		return errResponse(req.ID, te.Code, te.Message)
	}

	if err := s.applyLocalMark(ctx, itemID, action); err != nil {
		te := translateError(err)
		return errResponse(req.ID, te.Code, te.Message)
	}

	s.propagateAsync(ownerID, itemID, action)
	return okResponse(req.ID, nil)
}

func (s *Server) applyLocalMark(ctx context.Context, id model.ItemID, action provider.ActionKind) error {
	switch action {
	case provider.ActionMarkRead:
		return s.store.MarkRead(ctx, id)
	case provider.ActionMarkUnread:
		return s.store.MarkUnread(ctx, id)
	case provider.ActionSave:
		return s.store.MarkSaved(ctx, id)
	case provider.ActionUnsave:
		return s.store.MarkUnsaved(ctx, id)
	case provider.ActionArchive:
		return s.store.MarkArchived(ctx, id)
	default:
		return fmt.Errorf("rpc: unsupported mark action %q", action)
	}
}

// propagateAsync fires the matching provider action in the background
// once the local write has already succeeded. Errors are logged, never
// surfaced: the RPC call has already returned success to the caller.
func (s *Server) propagateAsync(providerID string, itemID model.ItemID, action provider.ActionKind) {
	p, ok := s.registry.Get(providerID)
	if !ok {
		return
	}

	go func() {
		ctx := context.Background()
		item, err := s.store.GetItem(ctx, itemID)
		if err != nil || item == nil {
			return
		}

		actions, err := p.AvailableActions(ctx, *item)
		if err != nil {
			return
		}
		var target *provider.Action
		for i := range actions {
			if actions[i].Kind == action {
				target = &actions[i]
				break
			}
		}
		if target == nil {
			return
		}

		if _, err := p.ExecuteAction(ctx, *item, *target); err != nil {
			slog.Warn("rpc: provider action propagation failed",
				"provider", providerID, "item", itemID, "action", action, "error", err)
		}
	}()
}

func (s *Server) searchQuery(ctx context.Context, req Request) Response {
	var (
		query   string
		filters searchFiltersParam
	)
	if err := decodeArgs(req.Params, &query, &filters); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}

	items, err := search.Query(ctx, s.store, query, filters.toExplicit())
	if err != nil {
		te := translateError(err)
		return errResponse(req.ID, te.Code, te.Message)
	}
	return okResponse(req.ID, items)
}

// searchFiltersParam is the wire shape of search.query's second
// (optional) positional argument.
type searchFiltersParam struct {
	StreamID    string `json:"stream_id"`
	ContentType string `json:"content_type"`
	IsRead      *bool  `json:"is_read"`
	IsSaved     *bool  `json:"is_saved"`
}

func (f searchFiltersParam) toExplicit() search.ExplicitFilters {
	return search.ExplicitFilters{
		StreamID:    model.StreamID(f.StreamID),
		ContentType: model.ContentType(f.ContentType),
		IsRead:      f.IsRead,
		IsSaved:     f.IsSaved,
	}
}

func (s *Server) collectionsList(ctx context.Context, req Request) Response {
	cols, err := s.store.ListCollections(ctx)
	if err != nil {
		te := translateError(err)
		return errResponse(req.ID, te.Code, te.Message)
	}
	return okResponse(req.ID, cols)
}

func (s *Server) collectionsItems(ctx context.Context, req Request) Response {
	var rawID string
	if err := decodeArgs(req.Params, &rawID); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}

	items, err := s.store.GetCollectionItems(ctx, model.CollectionID(rawID))
	if err != nil {
		te := translateError(err)
		return errResponse(req.ID, te.Code, te.Message)
	}
	return okResponse(req.ID, items)
}

func (s *Server) collectionsAddItem(ctx context.Context, req Request) Response {
	return s.mutateCollectionMembership(ctx, req, true)
}

func (s *Server) collectionsRemoveItem(ctx context.Context, req Request) Response {
	return s.mutateCollectionMembership(ctx, req, false)
}

// mutateCollectionMembership implements collections.add_item and
// collections.remove_item. A "local"-owned collection is mutated
// directly; a provider-owned one is delegated to that provider's
// HasCollections facet (the provider is the source of truth for its own
// editable collections) and then mirrored into the store so an
// immediately following collections.items reflects the change without
// waiting for the next sync cycle.
func (s *Server) mutateCollectionMembership(ctx context.Context, req Request, add bool) Response {
	var rawCollectionID, rawItemID string
	if err := decodeArgs(req.Params, &rawCollectionID, &rawItemID); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	collectionID := model.CollectionID(rawCollectionID)
	itemID := model.ItemID(rawItemID)

	owner, err := collectionID.Owner()
	if err != nil {
		te := translateError(err)
		return errResponse(req.ID, te.Code, te.Message)
	}

	if owner != model.OwnerLocal {
		facet, err := s.registry.Collections(owner)
		if err != nil {
			te := translateError(err)
			return errResponse(req.ID, te.Code, te.Message)
		}
		if add {
			err = facet.AddToCollection(ctx, collectionID, itemID)
		} else {
			err = facet.RemoveFromCollection(ctx, collectionID, itemID)
		}
		if err != nil {
			te := translateError(err)
			return errResponse(req.ID, te.Code, te.Message)
		}
	}

	if add {
		err = s.store.AddToCollection(ctx, collectionID, itemID)
	} else {
		err = s.store.RemoveFromCollection(ctx, collectionID, itemID)
	}
	if err != nil {
		te := translateError(err)
		return errResponse(req.ID, te.Code, te.Message)
	}
	return okResponse(req.ID, nil)
}

func (s *Server) collectionsCreate(ctx context.Context, req Request) Response {
	var name string
	if err := decodeArgs(req.Params, &name); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}

	col, err := s.store.CreateCollection(ctx, name)
	if err != nil {
		te := translateError(err)
		return errResponse(req.ID, te.Code, te.Message)
	}
	return okResponse(req.ID, col)
}

func (s *Server) syncStatus(_ context.Context, req Request) Response {
	return okResponse(req.ID, s.scheduler.Status())
}

func (s *Server) syncTrigger(_ context.Context, req Request) Response {
	var providerID string
	if err := decodeArgs(req.Params, &providerID); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}

	if _, ok := s.registry.Get(providerID); !ok {
		return errResponse(req.ID, CodeNotFound, fmt.Sprintf("provider %q not found", providerID))
	}

	if err := s.scheduler.Trigger(providerID); err != nil {
		te := translateError(err)
		return errResponse(req.ID, te.Code, te.Message)
	}
	return okResponse(req.ID, nil)
}
