package rpc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scryforge/hub/internal/model"
	"github.com/scryforge/hub/internal/provider/builtin/memoryfeed"
	"github.com/scryforge/hub/internal/registry"
	"github.com/scryforge/hub/internal/store/memory"
	"github.com/scryforge/hub/internal/sync"
)

// harness wires a real registry, scheduler, and memory store together so
// dispatch can be exercised exactly as cmd/scryforgehub wires internal/hub,
// without opening a socket or an on-disk database.
type harness struct {
	t    *testing.T
	st   *memory.Memory
	reg  *registry.Registry
	sch  *sync.Scheduler
	serv *Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := memory.New(0)
	reg := registry.New()
	sch := sync.New(reg, st, 5*time.Millisecond, 4)
	reg.SetQuiescer(sch)

	ctx, cancel := context.WithCancel(context.Background())
	sch.Start(ctx)
	t.Cleanup(func() {
		cancel()
		sch.Stop()
	})

	return &harness{
		t:    t,
		st:   st,
		reg:  reg,
		sch:  sch,
		serv: New(st, sch, reg),
	}
}

func (h *harness) call(method string, params ...any) Response {
	h.t.Helper()
	var raw json.RawMessage
	if len(params) > 0 {
		b, err := json.Marshal(params)
		require.NoError(h.t, err)
		raw = b
	}
	return h.serv.dispatch(context.Background(), Request{JSONRPC: "2.0", ID: float64(1), Method: method, Params: raw})
}

func unmarshalResult[T any](t *testing.T, resp Response) T {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected error: %+v", resp.Error)
	b, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

// Register a provider whose sync produces one Stream and two
// Items; trigger sync; streams.list returns one stream and items.list
// returns the items ordered published DESC.
func TestSyncThenList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	feeds := memoryfeed.New("dummy", []memoryfeed.Feed{
		{
			Slug: "inbox",
			Name: "Inbox",
			Items: []memoryfeed.SeedItem{
				{LocalID: "a", Title: "A", Published: mustParse("2025-01-01T00:00:00Z")},
				{LocalID: "b", Title: "B", Published: mustParse("2025-01-02T00:00:00Z")},
			},
		},
	})
	require.NoError(t, h.reg.Register(ctx, feeds))
	h.sch.Register("dummy", true, time.Hour)
	require.NoError(t, h.sch.Trigger("dummy"))
	waitForSync(t, h.st, "dummy")

	streams := unmarshalResult[[]model.Stream](t, h.call("streams.list"))
	var nonUnified []model.Stream
	for _, s := range streams {
		if s.ProviderID == "dummy" {
			nonUnified = append(nonUnified, s)
		}
	}
	require.Len(t, nonUnified, 1)
	assert.Equal(t, model.NewStreamID("dummy", "feed", "inbox"), nonUnified[0].ID)

	items := unmarshalResult[[]model.Item](t, h.call("items.list", "dummy:feed:inbox"))
	require.Len(t, items, 2)
	assert.Equal(t, model.NewItemID("dummy", "b"), items[0].ID)
	assert.Equal(t, model.NewItemID("dummy", "a"), items[1].ID)
}

// Marking an item read survives a subsequent re-sync of identical
// upstream data.
func TestMarkReadSurvivesResync(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	feeds := memoryfeed.New("dummy", []memoryfeed.Feed{
		{Slug: "inbox", Name: "Inbox", Items: []memoryfeed.SeedItem{
			{LocalID: "a", Title: "A", Published: mustParse("2025-01-01T00:00:00Z")},
		}},
	})
	require.NoError(t, h.reg.Register(ctx, feeds))
	h.sch.Register("dummy", true, time.Hour)
	require.NoError(t, h.sch.Trigger("dummy"))
	waitForSync(t, h.st, "dummy")

	resp := h.call("items.mark_read", "dummy:a")
	require.Nil(t, resp.Error)

	items := unmarshalResult[[]model.Item](t, h.call("items.list", "dummy:feed:inbox"))
	require.Len(t, items, 1)
	assert.True(t, items[0].IsRead)

	require.NoError(t, h.sch.Trigger("dummy"))
	require.Eventually(t, func() bool {
		states, err := h.st.ListSyncStates(context.Background())
		require.NoError(t, err)
		st, ok := states["dummy"]
		return ok && st.LastSuccess.Valid && !st.IsSyncing
	}, time.Second, 5*time.Millisecond)

	items = unmarshalResult[[]model.Item](t, h.call("items.list", "dummy:feed:inbox"))
	require.Len(t, items, 1)
	assert.True(t, items[0].IsRead, "is_read must survive re-sync of identical upstream data")
}

// Create a collection, add an item, list it, remove it.
func TestCollectionLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.st.UpsertStreams(ctx, []model.Stream{
		{ID: model.NewStreamID("dummy", "feed", "inbox"), Name: "Inbox", ProviderID: "dummy", Kind: model.StreamKindFeed},
	}))
	require.NoError(t, h.st.UpsertItems(ctx, []model.Item{
		{ID: model.NewItemID("dummy", "a"), StreamID: model.NewStreamID("dummy", "feed", "inbox"), Title: "A"},
	}))

	col := unmarshalResult[model.Collection](t, h.call("collections.create", "Reading"))
	require.Contains(t, string(col.ID), "local:")

	resp := h.call("collections.add_item", string(col.ID), "dummy:a")
	require.Nil(t, resp.Error)

	items := unmarshalResult[[]model.Item](t, h.call("collections.items", string(col.ID)))
	require.Len(t, items, 1)
	assert.Equal(t, model.NewItemID("dummy", "a"), items[0].ID)

	resp = h.call("collections.remove_item", string(col.ID), "dummy:a")
	require.Nil(t, resp.Error)

	items = unmarshalResult[[]model.Item](t, h.call("collections.items", string(col.ID)))
	assert.Empty(t, items)
}

// search.query field constraints and boolean filters.
func TestSearchFiltersAndFreeText(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.st.UpsertStreams(ctx, []model.Stream{
		{ID: model.NewStreamID("dummy", "feed", "inbox"), Name: "Inbox", ProviderID: "dummy", Kind: model.StreamKindFeed},
	}))
	require.NoError(t, h.st.UpsertItems(ctx, []model.Item{
		{ID: model.NewItemID("dummy", "a"), StreamID: model.NewStreamID("dummy", "feed", "inbox"), Title: "inbox roundup", IsSaved: true},
		{ID: model.NewItemID("dummy", "b"), StreamID: model.NewStreamID("dummy", "feed", "inbox"), Title: "inbox roundup", IsSaved: false},
	}))

	resp := h.call("search.query", "inbox title:unknownword", json.RawMessage(`{}`))
	items := unmarshalResult[[]model.Item](t, resp)
	assert.Empty(t, items)

	resp = h.call("search.query", "", json.RawMessage(`{"is_saved": true}`))
	items = unmarshalResult[[]model.Item](t, resp)
	require.Len(t, items, 1)
	assert.True(t, items[0].IsSaved)
}

func TestSyncTriggerUnknownProviderReturnsNotFound(t *testing.T) {
	h := newHarness(t)
	resp := h.call("sync.trigger", "p1")
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNotFound, resp.Error.Code, "p1 has no registered provider instance")
}

func TestSyncStatusReflectsRegisteredProviders(t *testing.T) {
	h := newHarness(t)
	h.sch.Register("p1", true, time.Hour)

	status := unmarshalResult[map[string]model.ProviderSyncState](t, h.call("sync.status"))
	require.Contains(t, status, "p1")
	assert.False(t, status["p1"].IsSyncing)
}

// Removing a provider's streams from the store and then listing one
// of its former stream ids must return NotFound, not an empty list.
func TestItemsListOnRemovedProviderStreamReturnsNotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.st.UpsertStreams(ctx, []model.Stream{
		{ID: model.NewStreamID("dummy", "feed", "inbox"), Name: "Inbox", ProviderID: "dummy", Kind: model.StreamKindFeed},
	}))
	require.NoError(t, h.st.UpsertItems(ctx, []model.Item{
		{ID: model.NewItemID("dummy", "a"), StreamID: model.NewStreamID("dummy", "feed", "inbox"), Title: "A"},
	}))

	items := unmarshalResult[[]model.Item](t, h.call("items.list", "dummy:feed:inbox"))
	require.Len(t, items, 1)

	require.NoError(t, h.st.RemoveProvider(ctx, "dummy"))

	resp := h.call("items.list", "dummy:feed:inbox")
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNotFound, resp.Error.Code)
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	h := newHarness(t)
	resp := h.call("bogus.method")
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestMarkReadOnMissingItemReturnsNotFound(t *testing.T) {
	h := newHarness(t)
	resp := h.call("items.mark_read", "dummy:missing")
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNotFound, resp.Error.Code)
}

func mustParse(s string) time.Time {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return ts
}

func waitForSync(t *testing.T, st *memory.Memory, providerID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		states, err := st.ListSyncStates(context.Background())
		require.NoError(t, err)
		state, ok := states[providerID]
		return ok && state.LastSuccess.Valid && !state.IsSyncing
	}, time.Second, 5*time.Millisecond)
}
