package registry

import (
	"context"
	"testing"

	"github.com/scryforge/hub/internal/model"
	"github.com/scryforge/hub/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	id       string
	hasFeeds bool
}

func (s *stubProvider) ID() string   { return s.id }
func (s *stubProvider) Name() string { return s.id }
func (s *stubProvider) HealthCheck(context.Context) (model.ProviderHealth, error) {
	return model.ProviderHealth{IsHealthy: true}, nil
}
func (s *stubProvider) Capabilities() provider.Capabilities {
	return provider.Capabilities{HasFeeds: s.hasFeeds}
}
func (s *stubProvider) AvailableActions(context.Context, model.Item) ([]provider.Action, error) {
	return nil, nil
}
func (s *stubProvider) ExecuteAction(context.Context, model.Item, provider.Action) (provider.ActionResult, error) {
	return provider.ActionResult{}, nil
}
func (s *stubProvider) Sync(context.Context) (model.SyncResult, error) {
	return model.SyncResult{}, nil
}

// feedProvider additionally implements HasFeeds so facet probing has
// something real to find.
type feedProvider struct{ stubProvider }

func (f *feedProvider) ListFeeds(context.Context) ([]model.Stream, error) { return nil, nil }
func (f *feedProvider) GetFeedItems(context.Context, model.StreamID, provider.FeedItemsOptions) ([]model.Item, error) {
	return nil, nil
}

type fakeQuiescer struct {
	quiesced []string
	err      error
}

func (q *fakeQuiescer) Quiesce(_ context.Context, id string) error {
	q.quiesced = append(q.quiesced, id)
	return q.err
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := New()
	p := &stubProvider{id: "hn"}
	require.NoError(t, r.Register(context.Background(), p))

	got, ok := r.Get("hn")
	assert.True(t, ok)
	assert.Same(t, provider.Provider(p), got)

	_, ok = r.Get("ghost")
	assert.False(t, ok)
}

func TestRegistryReplaceQuiescesOldEntry(t *testing.T) {
	r := New()
	q := &fakeQuiescer{}
	r.SetQuiescer(q)

	require.NoError(t, r.Register(context.Background(), &stubProvider{id: "hn"}))
	require.NoError(t, r.Register(context.Background(), &stubProvider{id: "hn"}))

	assert.Equal(t, []string{"hn", "hn"}, q.quiesced)
}

func TestRegistryRemoveQuiesces(t *testing.T) {
	r := New()
	q := &fakeQuiescer{}
	r.SetQuiescer(q)
	require.NoError(t, r.Register(context.Background(), &stubProvider{id: "hn"}))

	require.NoError(t, r.Remove(context.Background(), "hn"))
	_, ok := r.Get("hn")
	assert.False(t, ok)
	assert.Contains(t, q.quiesced, "hn")
}

func TestRegistryFeedsFacetProbe(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(context.Background(), &feedProvider{stubProvider{id: "hn", hasFeeds: true}}))
	require.NoError(t, r.Register(context.Background(), &stubProvider{id: "plain"}))

	_, err := r.Feeds("hn")
	assert.NoError(t, err)

	_, err = r.Feeds("plain")
	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, provider.ErrKindNotSupported, perr.Kind)

	_, err = r.Feeds("ghost")
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestRegistryIDsAndClear(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(context.Background(), &stubProvider{id: "a"}))
	require.NoError(t, r.Register(context.Background(), &stubProvider{id: "b"}))

	assert.ElementsMatch(t, []string{"a", "b"}, r.IDs())

	require.NoError(t, r.Clear(context.Background()))
	assert.Empty(t, r.IDs())
}
