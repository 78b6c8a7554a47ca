package search

import (
	"context"
	"testing"

	"github.com/scryforge/hub/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	streams     []model.Stream
	items       map[model.StreamID][]model.Item
	collections []model.Collection

	lastQuery  string
	lastFilter model.SearchFilter
	searchOut  []model.Item
}

func (f *fakeStore) GetStreams(context.Context) ([]model.Stream, error) { return f.streams, nil }

func (f *fakeStore) GetItems(_ context.Context, id model.StreamID, opts model.ListOptions) ([]model.Item, error) {
	items := f.items[id]
	if opts.IsSaved != nil {
		var out []model.Item
		for _, it := range items {
			if it.IsSaved == *opts.IsSaved {
				out = append(out, it)
			}
		}
		return out, nil
	}
	return items, nil
}

func (f *fakeStore) Search(_ context.Context, query string, filter model.SearchFilter) ([]model.Item, error) {
	f.lastQuery = query
	f.lastFilter = filter
	return f.searchOut, nil
}

func (f *fakeStore) ListCollections(context.Context) ([]model.Collection, error) {
	return f.collections, nil
}

func TestQueryResolvesStreamRefByName(t *testing.T) {
	st := &fakeStore{
		streams: []model.Stream{
			{ID: model.NewStreamID("hn", "feed", "top"), Name: "Hacker News"},
		},
	}

	_, err := Query(context.Background(), st, "in:Hacker News golang", ExplicitFilters{})
	require.NoError(t, err)
	assert.Equal(t, model.NewStreamID("hn", "feed", "top"), st.lastFilter.StreamID)
}

func TestQueryUnresolvableStreamRefDegradesToUnfiltered(t *testing.T) {
	st := &fakeStore{}
	_, err := Query(context.Background(), st, "in:nonexistent", ExplicitFilters{})
	require.NoError(t, err)
	assert.Empty(t, st.lastFilter.StreamID)
}

func TestQueryExplicitFiltersWinOverParsed(t *testing.T) {
	st := &fakeStore{}
	isRead := false
	_, err := Query(context.Background(), st, "is:read", ExplicitFilters{IsRead: &isRead})
	require.NoError(t, err)
	require.NotNil(t, st.lastFilter.IsRead)
	assert.False(t, *st.lastFilter.IsRead)
}

func TestResolveStreamRefExactID(t *testing.T) {
	id := model.NewStreamID("hn", "feed", "top")
	st := &fakeStore{streams: []model.Stream{{ID: id, Name: "Hacker News"}}}

	resolved, err := resolveStreamRef(context.Background(), st, string(id))
	require.NoError(t, err)
	assert.Equal(t, id, resolved)
}
