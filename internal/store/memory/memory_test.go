package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worldline-go/types"

	"github.com/scryforge/hub/internal/model"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func newItem(t *testing.T, local, published string) model.Item {
	return model.Item{
		ID:        model.NewItemID("dummy", local),
		StreamID:  model.NewStreamID("dummy", "feed", "inbox"),
		Title:     local,
		Published: types.NewNull(types.NewTime(mustParse(t, published))),
	}
}

// Retention caps a stream at maxItemsPerStream, discarding the
// oldest items first, but a saved or archived item is never a deletion
// candidate regardless of age.
func TestPruneExemptsSavedAndArchivedItems(t *testing.T) {
	ctx := context.Background()
	m := New(2)

	require.NoError(t, m.UpsertStreams(ctx, []model.Stream{
		{ID: model.NewStreamID("dummy", "feed", "inbox"), Name: "Inbox", ProviderID: "dummy", Kind: model.StreamKindFeed},
	}))

	oldest := newItem(t, "oldest", "2025-01-01T00:00:00Z")
	oldest.IsSaved = true
	middle := newItem(t, "middle", "2025-01-02T00:00:00Z")
	newer1 := newItem(t, "newer1", "2025-01-03T00:00:00Z")
	newer2 := newItem(t, "newer2", "2025-01-04T00:00:00Z")

	require.NoError(t, m.UpsertItems(ctx, []model.Item{oldest, middle, newer1, newer2}))

	items, err := m.GetItems(ctx, model.NewStreamID("dummy", "feed", "inbox"), model.ListOptions{})
	require.NoError(t, err)

	ids := make(map[model.ItemID]bool, len(items))
	for _, it := range items {
		ids[it.ID] = true
	}

	assert.True(t, ids[oldest.ID], "saved item must survive pruning despite being the oldest")
	assert.True(t, ids[newer1.ID])
	assert.True(t, ids[newer2.ID])
	assert.False(t, ids[middle.ID], "non-exempt item beyond the cap must be pruned")
	assert.Len(t, items, 3)
}

func TestPruneExemptsArchivedItems(t *testing.T) {
	ctx := context.Background()
	m := New(1)

	require.NoError(t, m.UpsertStreams(ctx, []model.Stream{
		{ID: model.NewStreamID("dummy", "feed", "inbox"), Name: "Inbox", ProviderID: "dummy", Kind: model.StreamKindFeed},
	}))

	archived := newItem(t, "archived", "2025-01-01T00:00:00Z")
	archived.IsArchived = true
	newest := newItem(t, "newest", "2025-01-02T00:00:00Z")

	require.NoError(t, m.UpsertItems(ctx, []model.Item{archived, newest}))

	items, err := m.GetItems(ctx, model.NewStreamID("dummy", "feed", "inbox"), model.ListOptions{})
	require.NoError(t, err)
	require.Len(t, items, 2, "archived item must survive even though the cap is 1")
}

func TestPruneDiscardsOldestBeyondCap(t *testing.T) {
	ctx := context.Background()
	m := New(1)

	require.NoError(t, m.UpsertStreams(ctx, []model.Stream{
		{ID: model.NewStreamID("dummy", "feed", "inbox"), Name: "Inbox", ProviderID: "dummy", Kind: model.StreamKindFeed},
	}))

	older := newItem(t, "older", "2025-01-01T00:00:00Z")
	newer := newItem(t, "newer", "2025-01-02T00:00:00Z")
	require.NoError(t, m.UpsertItems(ctx, []model.Item{older, newer}))

	items, err := m.GetItems(ctx, model.NewStreamID("dummy", "feed", "inbox"), model.ListOptions{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, newer.ID, items[0].ID)
}
