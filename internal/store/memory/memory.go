// Package memory is an in-memory Store implementation used by the rest of
// the hub's test suites as a fast, dependency-free test double; data never
// survives process restart. sync.RWMutex-guarded maps; reads return
// entities by value, but an item's Tags slice and Metadata map are shared
// with the stored copy, not cloned.
package memory

import (
	"context"
	"database/sql/driver"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/scryforge/hub/internal/model"
)

// extractTime pulls a comparable time.Time out of one of the worldline-go
// nullable time wrappers via the driver.Valuer interface they expose for use
// as SQL bind parameters (the store backends bind them directly into
// goqu.Record values). It never reaches into the wrapper's internal fields.
func extractTime(v driver.Valuer) (time.Time, bool) {
	raw, err := v.Value()
	if err != nil || raw == nil {
		return time.Time{}, false
	}
	switch t := raw.(type) {
	case time.Time:
		return t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

type Memory struct {
	mu sync.RWMutex

	streams     map[model.StreamID]model.Stream
	items       map[model.ItemID]model.Item
	collections map[model.CollectionID]model.Collection
	collItems   map[model.CollectionID][]model.ItemID
	syncState   map[string]model.ProviderSyncState

	maxItemsPerStream int
}

func New(maxItemsPerStream int) *Memory {
	if maxItemsPerStream <= 0 {
		maxItemsPerStream = 1000
	}
	return &Memory{
		streams:           make(map[model.StreamID]model.Stream),
		items:             make(map[model.ItemID]model.Item),
		collections:       make(map[model.CollectionID]model.Collection),
		collItems:         make(map[model.CollectionID][]model.ItemID),
		syncState:         make(map[string]model.ProviderSyncState),
		maxItemsPerStream: maxItemsPerStream,
	}
}

func (m *Memory) Close() {}

func (m *Memory) UpsertStreams(_ context.Context, streams []model.Stream) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, st := range streams {
		if err := st.Validate(); err != nil {
			return fmt.Errorf("upsert stream %q: %w", st.ID, err)
		}
		if existing, ok := m.streams[st.ID]; ok {
			prevT, prevOK := extractTime(existing.LastUpdated)
			nextT, nextOK := extractTime(st.LastUpdated)
			if prevOK && nextOK && nextT.Before(prevT) {
				st.LastUpdated = existing.LastUpdated
			}
		}
		m.streams[st.ID] = st
	}
	return nil
}

func (m *Memory) UpsertItems(_ context.Context, items []model.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	touched := make(map[model.StreamID]struct{})

	for _, it := range items {
		if err := it.Validate(); err != nil {
			return fmt.Errorf("upsert item %q: %w", it.ID, err)
		}
		touched[it.StreamID] = struct{}{}

		if existing, ok := m.items[it.ID]; ok {
			it.IsRead = existing.IsRead
			it.IsSaved = existing.IsSaved
			it.IsArchived = existing.IsArchived
			it.Tags, it.Metadata = model.MergeTagsAndMetadata(existing.Tags, it.Tags, existing.Metadata, it.Metadata)
		}
		m.items[it.ID] = it
	}

	for streamID := range touched {
		m.pruneLocked(streamID)
	}
	return nil
}

// pruneLocked enforces retention: at most maxItemsPerStream items survive
// per stream, oldest (by published, falling back to created_at) discarded
// first. Saved or archived items are never pruned: they're excluded
// from the candidate set entirely, so they don't count against the cap and
// are never themselves deleted.
func (m *Memory) pruneLocked(streamID model.StreamID) {
	var ids []model.ItemID
	for id, it := range m.items {
		if it.StreamID == streamID && !it.IsSaved && !it.IsArchived {
			ids = append(ids, id)
		}
	}
	if len(ids) <= m.maxItemsPerStream {
		return
	}
	slices.SortFunc(ids, func(a, b model.ItemID) int {
		ia, ib := m.items[a], m.items[b]
		ta, tb := publishedOrCreated(ia), publishedOrCreated(ib)
		if ta.After(tb) {
			return -1
		}
		if ta.Before(tb) {
			return 1
		}
		return 0
	})
	for _, id := range ids[m.maxItemsPerStream:] {
		delete(m.items, id)
	}
}

func publishedOrCreated(it model.Item) time.Time {
	if t, ok := extractTime(it.Published); ok {
		return t
	}
	if t, ok := extractTime(it.CreatedAt); ok {
		return t
	}
	return time.Time{}
}

func (m *Memory) GetStreams(_ context.Context) ([]model.Stream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Stream, 0, len(m.streams))
	for _, st := range m.streams {
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b model.Stream) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return out, nil
}

func (m *Memory) GetStream(_ context.Context, id model.StreamID) (*model.Stream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.streams[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *Memory) GetItems(_ context.Context, streamID model.StreamID, opts model.ListOptions) ([]model.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Item
	for _, it := range m.items {
		if it.StreamID != streamID {
			continue
		}
		if opts.IsRead != nil && it.IsRead != *opts.IsRead {
			continue
		}
		if opts.IsSaved != nil && it.IsSaved != *opts.IsSaved {
			continue
		}
		out = append(out, it)
	}
	slices.SortFunc(out, func(a, b model.Item) int {
		ta, tb := publishedOrCreated(a), publishedOrCreated(b)
		if ta.After(tb) {
			return -1
		}
		if ta.Before(tb) {
			return 1
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *Memory) GetItem(_ context.Context, id model.ItemID) (*model.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	return &it, nil
}

// Search is a naive case-insensitive substring match over the title only,
// sufficient for a test double; it does not replicate FTS5/tsvector
// ranking semantics.
func (m *Memory) Search(_ context.Context, query string, filter model.SearchFilter) ([]model.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Item
	for _, it := range m.items {
		if !matchesFilter(it, filter) {
			continue
		}
		if query != "" && !containsFold(it.Title, query) {
			continue
		}
		out = append(out, it)
	}
	slices.SortFunc(out, func(a, b model.Item) int {
		ta, tb := publishedOrCreated(a), publishedOrCreated(b)
		if ta.After(tb) {
			return -1
		}
		if ta.Before(tb) {
			return 1
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	if len(out) > 100 {
		out = out[:100]
	}
	return out, nil
}

func matchesFilter(it model.Item, filter model.SearchFilter) bool {
	if filter.StreamID != "" && it.StreamID != filter.StreamID {
		return false
	}
	if filter.ContentType != "" && it.Content.Type() != filter.ContentType {
		return false
	}
	if filter.IsRead != nil && it.IsRead != *filter.IsRead {
		return false
	}
	if filter.IsSaved != nil && it.IsSaved != *filter.IsSaved {
		return false
	}
	owner := model.MustOwner(string(it.ID))
	if len(filter.Providers) > 0 && !slices.Contains(filter.Providers, owner) {
		return false
	}
	if len(filter.ExcludeProv) > 0 && slices.Contains(filter.ExcludeProv, owner) {
		return false
	}
	if filter.SinceUnix > 0 || filter.UntilUnix > 0 {
		t, ok := extractTime(it.Published)
		if !ok {
			return false
		}
		if filter.SinceUnix > 0 && t.Unix() < filter.SinceUnix {
			return false
		}
		if filter.UntilUnix > 0 && t.Unix() > filter.UntilUnix {
			return false
		}
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func (m *Memory) setFlag(id model.ItemID, set func(*model.Item)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok {
		return fmt.Errorf("memory: item %q: %w", id, model.ErrNotFound)
	}
	set(&it)
	m.items[id] = it
	return nil
}

func (m *Memory) MarkRead(_ context.Context, id model.ItemID) error {
	return m.setFlag(id, func(it *model.Item) { it.IsRead = true })
}

func (m *Memory) MarkUnread(_ context.Context, id model.ItemID) error {
	return m.setFlag(id, func(it *model.Item) { it.IsRead = false })
}

func (m *Memory) MarkSaved(_ context.Context, id model.ItemID) error {
	return m.setFlag(id, func(it *model.Item) { it.IsSaved = true })
}

func (m *Memory) MarkUnsaved(_ context.Context, id model.ItemID) error {
	return m.setFlag(id, func(it *model.Item) { it.IsSaved = false })
}

func (m *Memory) MarkArchived(_ context.Context, id model.ItemID) error {
	return m.setFlag(id, func(it *model.Item) { it.IsArchived = true })
}

func (m *Memory) Unarchive(_ context.Context, id model.ItemID) error {
	return m.setFlag(id, func(it *model.Item) { it.IsArchived = false })
}

func (m *Memory) RemoveProvider(_ context.Context, providerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, st := range m.streams {
		if st.ProviderID == providerID {
			delete(m.streams, id)
		}
	}
	for id, it := range m.items {
		if model.MustOwner(string(it.ID)) == providerID {
			delete(m.items, id)
		}
	}
	for id, c := range m.collections {
		if c.Owner == providerID {
			delete(m.collections, id)
			delete(m.collItems, id)
		}
	}
	delete(m.syncState, providerID)
	return nil
}

func (m *Memory) ListCollections(_ context.Context) ([]model.Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Collection, 0, len(m.collections))
	for id, c := range m.collections {
		c.ItemCount = len(m.collItems[id])
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b model.Collection) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return out, nil
}

func (m *Memory) GetCollection(_ context.Context, id model.CollectionID) (*model.Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[id]
	if !ok {
		return nil, nil
	}
	c.ItemCount = len(m.collItems[id])
	return &c, nil
}

func (m *Memory) GetCollectionItems(_ context.Context, id model.CollectionID) ([]model.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Item
	for _, itemID := range m.collItems[id] {
		if it, ok := m.items[itemID]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *Memory) CreateCollection(_ context.Context, name string) (model.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := model.NewCollectionID(model.OwnerLocal, ulid.Make().String())
	c := model.Collection{ID: id, Name: name, IsEditable: true, Owner: model.OwnerLocal}
	m.collections[id] = c
	return c, nil
}

func (m *Memory) AddToCollection(_ context.Context, id model.CollectionID, itemID model.ItemID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(m.collItems[id], itemID) {
		m.collItems[id] = append(m.collItems[id], itemID)
	}
	return nil
}

func (m *Memory) RemoveFromCollection(_ context.Context, id model.CollectionID, itemID model.ItemID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.collItems[id] = slices.DeleteFunc(m.collItems[id], func(existing model.ItemID) bool {
		return existing == itemID
	})
	return nil
}

func (m *Memory) UpsertCollections(_ context.Context, providerID string, collections []model.Collection, itemIDsByCollection map[model.CollectionID][]model.ItemID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range collections {
		c.Owner = providerID
		m.collections[c.ID] = c
		m.collItems[c.ID] = append([]model.ItemID(nil), itemIDsByCollection[c.ID]...)
	}
	return nil
}

func (m *Memory) GetSyncState(_ context.Context, providerID string) (*model.ProviderSyncState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.syncState[providerID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *Memory) SetSyncState(_ context.Context, state model.ProviderSyncState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.syncState[state.ProviderID] = state
	return nil
}

func (m *Memory) ListSyncStates(_ context.Context) (map[string]model.ProviderSyncState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]model.ProviderSyncState, len(m.syncState))
	for k, v := range m.syncState {
		out[k] = v
	}
	return out, nil
}
