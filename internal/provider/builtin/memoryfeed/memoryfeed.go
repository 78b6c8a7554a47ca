// Package memoryfeed is a small in-process HasFeeds provider seeded from a
// fixed catalog of feeds and items, with no outbound network calls. It
// exists to give the rest of the hub a real Provider to exercise in tests
// without standing up a live external service.
package memoryfeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/scryforge/hub/internal/model"
	"github.com/scryforge/hub/internal/provider"
	"github.com/worldline-go/types"
)

// MaxConsecutiveFailures mirrors the catalog's exclusion threshold: a feed
// that fails this many fetches in a row is dropped from the next sync's
// stream set until it recovers. Mentioned here rather than enforced,
// since this provider's seeded feeds never actually fail.
const MaxConsecutiveFailures = 3

// Feed is one seeded, always-healthy feed.
type Feed struct {
	Slug  string
	Name  string
	Items []SeedItem
}

// SeedItem is the fixed content of one feed entry.
type SeedItem struct {
	LocalID   string
	Title     string
	Body      string
	URL       string
	Published time.Time
}

// Provider implements provider.Provider and provider.HasFeeds over a
// fixed, in-memory catalog of feeds supplied at construction.
type Provider struct {
	id    string
	feeds []Feed

	mu         sync.Mutex
	lastSync   time.Time
	syncCount  int
	errorCount int
}

var (
	_ provider.Provider = (*Provider)(nil)
	_ provider.HasFeeds = (*Provider)(nil)
)

// New constructs a memoryfeed provider registered under id, serving feeds.
func New(id string, feeds []Feed) *Provider {
	return &Provider{id: id, feeds: feeds}
}

func (p *Provider) ID() string   { return p.id }
func (p *Provider) Name() string { return "In-Memory Feeds" }

func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{HasFeeds: true}
}

func (p *Provider) HealthCheck(_ context.Context) (model.ProviderHealth, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	health := model.ProviderHealth{IsHealthy: true, ErrorCount: p.errorCount}
	if !p.lastSync.IsZero() {
		health.LastSync = types.NewNull(types.NewTime(p.lastSync))
	}
	return health, nil
}

// Sync rebuilds every seeded feed's Stream and Item set from scratch.
// Since the catalog is fixed, every cycle reports every seeded item as
// added and none as updated; flag preservation and tag merging happen in the
// store, not by this provider regenerating different content each tick.
func (p *Provider) Sync(ctx context.Context) (model.SyncResult, error) {
	start := time.Now()

	streams, err := p.ListFeeds(ctx)
	if err != nil {
		return model.SyncResult{}, err
	}

	var items []model.Item
	for _, f := range p.feeds {
		streamID := model.NewStreamID(p.id, "feed", f.Slug)
		for _, seed := range f.Items {
			items = append(items, p.toItem(streamID, seed))
		}
	}

	p.mu.Lock()
	p.lastSync = time.Now()
	p.syncCount++
	p.mu.Unlock()

	return model.SyncResult{
		Success:    true,
		ItemsAdded: len(items),
		DurationMS: time.Since(start).Milliseconds(),
		Streams:    streams,
		Items:      items,
	}, nil
}

func (p *Provider) ListFeeds(_ context.Context) ([]model.Stream, error) {
	now := types.NewNull(types.NewTime(time.Now().UTC()))
	streams := make([]model.Stream, 0, len(p.feeds))
	for _, f := range p.feeds {
		count := len(f.Items)
		streams = append(streams, model.Stream{
			ID:          model.NewStreamID(p.id, "feed", f.Slug),
			Name:        f.Name,
			ProviderID:  p.id,
			Kind:        model.StreamKindFeed,
			TotalCount:  &count,
			LastUpdated: now,
		})
	}
	return streams, nil
}

func (p *Provider) GetFeedItems(ctx context.Context, feedID model.StreamID, opts provider.FeedItemsOptions) ([]model.Item, error) {
	for _, f := range p.feeds {
		if model.NewStreamID(p.id, "feed", f.Slug) != feedID {
			continue
		}
		if opts.Limit == 0 {
			return []model.Item{}, nil
		}

		var out []model.Item
		for _, seed := range f.Items {
			if opts.Since != nil && seed.Published.Before(opts.Since.Time) {
				continue
			}
			out = append(out, p.toItem(feedID, seed))
		}
		if opts.Offset > 0 && opts.Offset < len(out) {
			out = out[opts.Offset:]
		}
		if opts.Limit > 0 && opts.Limit < len(out) {
			out = out[:opts.Limit]
		}
		return out, nil
	}
	return nil, provider.StreamNotFound(feedID)
}

func (p *Provider) toItem(streamID model.StreamID, seed SeedItem) model.Item {
	return model.Item{
		ID:        model.NewItemID(p.id, seed.LocalID),
		StreamID:  streamID,
		Title:     seed.Title,
		Content:   model.ArticleContent{Summary: seed.Body},
		URL:       seed.URL,
		Published: types.NewNull(types.NewTime(seed.Published)),
	}
}

func (p *Provider) AvailableActions(_ context.Context, item model.Item) ([]provider.Action, error) {
	actions := []provider.Action{
		{ID: "open_in_browser", Name: "Open in Browser", Kind: provider.ActionOpenInBrowser},
	}
	if !item.IsRead {
		actions = append(actions, provider.Action{ID: "mark_read", Name: "Mark Read", Kind: provider.ActionMarkRead})
	} else {
		actions = append(actions, provider.Action{ID: "mark_unread", Name: "Mark Unread", Kind: provider.ActionMarkUnread})
	}
	return actions, nil
}

// ExecuteAction has nothing to do for this provider: mark_read/unread are
// already fulfilled locally by the core before delegation reaches here,
// and there is no external service to notify.
func (p *Provider) ExecuteAction(_ context.Context, _ model.Item, action provider.Action) (provider.ActionResult, error) {
	switch action.Kind {
	case provider.ActionMarkRead, provider.ActionMarkUnread, provider.ActionOpenInBrowser:
		return provider.ActionResult{Success: true}, nil
	default:
		return provider.ActionResult{}, provider.NotSupported(fmt.Sprintf("memoryfeed: %s", action.Kind))
	}
}
