package memoryfeed

import (
	"context"
	"testing"
	"time"

	"github.com/scryforge/hub/internal/model"
	"github.com/scryforge/hub/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFeeds() []Feed {
	return []Feed{
		{
			Slug: "inbox",
			Name: "Inbox",
			Items: []SeedItem{
				{LocalID: "old", Title: "Old", Published: time.Now().Add(-48 * time.Hour)},
				{LocalID: "new", Title: "New", Published: time.Now()},
			},
		},
	}
}

func TestListFeeds(t *testing.T) {
	p := New("memoryfeed", testFeeds())
	streams, err := p.ListFeeds(context.Background())
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Equal(t, model.NewStreamID("memoryfeed", "feed", "inbox"), streams[0].ID)
	assert.Equal(t, model.StreamKindFeed, streams[0].Kind)
}

func TestGetFeedItemsHonorsLimitAndOffset(t *testing.T) {
	p := New("memoryfeed", testFeeds())
	feedID := model.NewStreamID("memoryfeed", "feed", "inbox")

	items, err := p.GetFeedItems(context.Background(), feedID, provider.FeedItemsOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)

	items, err = p.GetFeedItems(context.Background(), feedID, provider.FeedItemsOptions{Limit: 10, Offset: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.NewItemID("memoryfeed", "new"), items[0].ID)
}

func TestGetFeedItemsLimitZeroReturnsEmpty(t *testing.T) {
	p := New("memoryfeed", testFeeds())
	feedID := model.NewStreamID("memoryfeed", "feed", "inbox")

	items, err := p.GetFeedItems(context.Background(), feedID, provider.FeedItemsOptions{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestGetFeedItemsUnknownFeed(t *testing.T) {
	p := New("memoryfeed", testFeeds())
	_, err := p.GetFeedItems(context.Background(), model.NewStreamID("memoryfeed", "feed", "ghost"), provider.FeedItemsOptions{Limit: 10})

	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, provider.ErrKindStreamNotFound, perr.Kind)
}

func TestGetFeedItemsSinceFilter(t *testing.T) {
	p := New("memoryfeed", testFeeds())
	feedID := model.NewStreamID("memoryfeed", "feed", "inbox")
	since := model.NewDate(time.Now().Add(-time.Hour))

	items, err := p.GetFeedItems(context.Background(), feedID, provider.FeedItemsOptions{Limit: 10, Since: &since})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.NewItemID("memoryfeed", "new"), items[0].ID)
}

func TestSyncProducesStreamsAndItems(t *testing.T) {
	p := New("memoryfeed", testFeeds())
	result, err := p.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.Streams, 1)
	assert.Len(t, result.Items, 2)
}

func TestHealthCheckReflectsLastSync(t *testing.T) {
	p := New("memoryfeed", testFeeds())
	health, err := p.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, health.IsHealthy)
	assert.False(t, health.LastSync.Valid)

	_, err = p.Sync(context.Background())
	require.NoError(t, err)

	health, err = p.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, health.LastSync.Valid)
}

func TestAvailableActionsTogglesReadState(t *testing.T) {
	p := New("memoryfeed", testFeeds())
	unread := model.Item{ID: model.NewItemID("memoryfeed", "new"), IsRead: false}
	actions, err := p.AvailableActions(context.Background(), unread)
	require.NoError(t, err)
	var kinds []provider.ActionKind
	for _, a := range actions {
		kinds = append(kinds, a.Kind)
	}
	assert.Contains(t, kinds, provider.ActionMarkRead)

	read := unread
	read.IsRead = true
	actions, err = p.AvailableActions(context.Background(), read)
	require.NoError(t, err)
	kinds = nil
	for _, a := range actions {
		kinds = append(kinds, a.Kind)
	}
	assert.Contains(t, kinds, provider.ActionMarkUnread)
}

func TestExecuteActionUnsupportedKind(t *testing.T) {
	p := New("memoryfeed", testFeeds())
	_, err := p.ExecuteAction(context.Background(), model.Item{}, provider.Action{Kind: provider.ActionTag})

	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, provider.ErrKindNotSupported, perr.Kind)
}
