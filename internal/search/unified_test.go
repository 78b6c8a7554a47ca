package search

import (
	"context"
	"testing"
	"time"

	"github.com/scryforge/hub/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worldline-go/types"
)

func itemWithPublished(id model.ItemID, stream model.StreamID, published time.Time) model.Item {
	return model.Item{ID: id, StreamID: stream, Published: types.NewNull(types.NewTime(published))}
}

func TestIsUnifiedStream(t *testing.T) {
	assert.True(t, IsUnifiedStream(UnifiedFeedsID))
	assert.True(t, IsUnifiedStream(UnifiedSavedID))
	assert.False(t, IsUnifiedStream(UnifiedCollectionsID))
	assert.False(t, IsUnifiedStream(model.StreamID("hn:feed:top")))
}

func TestResolveUnifiedFeedsAggregatesAcrossStreams(t *testing.T) {
	streamA := model.NewStreamID("hn", "feed", "top")
	streamB := model.NewStreamID("rss", "feed", "tech")
	now := time.Now().UTC()

	st := &fakeStore{
		streams: []model.Stream{
			{ID: streamA, Kind: model.StreamKindFeed},
			{ID: streamB, Kind: model.StreamKindFeed},
			{ID: model.NewStreamID("local", "collection", "x"), Kind: model.StreamKindCollection}, // non-feed, excluded
		},
		items: map[model.StreamID][]model.Item{
			streamA: {itemWithPublished(model.NewItemID("hn", "1"), streamA, now.Add(-time.Hour))},
			streamB: {itemWithPublished(model.NewItemID("rss", "1"), streamB, now)},
		},
	}

	items, err := ResolveUnifiedItems(context.Background(), st, UnifiedFeedsID, model.ListOptions{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	// Newest first.
	assert.Equal(t, model.NewItemID("rss", "1"), items[0].ID)
	assert.Equal(t, model.NewItemID("hn", "1"), items[1].ID)
}

func TestResolveUnifiedSavedFiltersBySavedFlag(t *testing.T) {
	streamA := model.NewStreamID("hn", "feed", "top")
	saved := itemWithPublished(model.NewItemID("hn", "1"), streamA, time.Now())
	saved.IsSaved = true
	unsaved := itemWithPublished(model.NewItemID("hn", "2"), streamA, time.Now())

	st := &fakeStore{
		streams: []model.Stream{{ID: streamA, Kind: model.StreamKindFeed}},
		items:   map[model.StreamID][]model.Item{streamA: {saved, unsaved}},
	}

	items, err := ResolveUnifiedItems(context.Background(), st, UnifiedSavedID, model.ListOptions{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.NewItemID("hn", "1"), items[0].ID)
}

func TestResolveUnifiedItemsRejectsNonUnifiedID(t *testing.T) {
	_, err := ResolveUnifiedItems(context.Background(), &fakeStore{}, model.StreamID("hn:feed:top"), model.ListOptions{})
	assert.Error(t, err)
}

func TestUnifiedCollectionsPassesThrough(t *testing.T) {
	st := &fakeStore{collections: []model.Collection{{ID: model.NewCollectionID("local", "x"), Name: "x"}}}
	cols, err := UnifiedCollections(context.Background(), st)
	require.NoError(t, err)
	assert.Len(t, cols, 1)
}

func TestPaginateOffsetAndLimit(t *testing.T) {
	items := []model.Item{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	out := paginate(items, model.ListOptions{Offset: 1, Limit: 1})
	require.Len(t, out, 1)
	assert.Equal(t, model.ItemID("b"), out[0].ID)
}

func TestPaginateOffsetBeyondLengthReturnsEmpty(t *testing.T) {
	items := []model.Item{{ID: "a"}}
	out := paginate(items, model.ListOptions{Offset: 5})
	assert.Empty(t, out)
}
