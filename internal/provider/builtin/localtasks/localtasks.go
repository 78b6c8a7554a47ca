// Package localtasks is a small in-process HasTasks+HasCollections
// provider: a fixed todo list grouped into one or more named, editable
// lists. It exists alongside memoryfeed so the registry, scheduler, and
// RPC layer have a real provider exercising the task and collection
// facets, not just HasFeeds.
package localtasks

import (
	"context"
	"sync"
	"time"

	"github.com/scryforge/hub/internal/model"
	"github.com/scryforge/hub/internal/provider"
	"github.com/worldline-go/types"
)

// Task is one seeded todo item.
type Task struct {
	LocalID string
	Body    string
	DueDate *time.Time
}

// List is a named, ordered group of tasks, mirrored as a provider-owned
// editable Collection.
type List struct {
	Slug  string
	Name  string
	Tasks []Task
}

// Provider implements provider.Provider, provider.HasTasks, and
// provider.HasCollections over a fixed set of in-memory task lists.
type Provider struct {
	id string

	mu        sync.Mutex
	lists     []List
	completed map[model.ItemID]bool
	lastSync  time.Time
}

var (
	_ provider.Provider       = (*Provider)(nil)
	_ provider.HasTasks       = (*Provider)(nil)
	_ provider.HasCollections = (*Provider)(nil)
)

// New constructs a localtasks provider registered under id, seeded with
// the given lists.
func New(id string, lists []List) *Provider {
	return &Provider{id: id, lists: lists, completed: make(map[model.ItemID]bool)}
}

func (p *Provider) ID() string   { return p.id }
func (p *Provider) Name() string { return "Local Tasks" }

func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{HasTasks: true, HasCollections: true}
}

func (p *Provider) HealthCheck(_ context.Context) (model.ProviderHealth, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	health := model.ProviderHealth{IsHealthy: true}
	if !p.lastSync.IsZero() {
		health.LastSync = types.NewNull(types.NewTime(p.lastSync))
	}
	return health, nil
}

func (p *Provider) Sync(ctx context.Context) (model.SyncResult, error) {
	start := time.Now()

	var items []model.Item
	for _, l := range p.lists {
		colItems, err := p.GetCollectionItems(ctx, model.NewCollectionID(p.id, l.Slug))
		if err != nil {
			return model.SyncResult{}, err
		}
		items = append(items, colItems...)
	}

	p.mu.Lock()
	p.lastSync = time.Now()
	p.mu.Unlock()

	return model.SyncResult{
		Success:    true,
		ItemsAdded: len(items),
		DurationMS: time.Since(start).Milliseconds(),
		Items:      items,
	}, nil
}

func (p *Provider) ListCollections(_ context.Context) ([]model.Collection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]model.Collection, 0, len(p.lists))
	for _, l := range p.lists {
		out = append(out, model.Collection{
			ID:         model.NewCollectionID(p.id, l.Slug),
			Name:       l.Name,
			ItemCount:  len(l.Tasks),
			IsEditable: true,
			Owner:      p.id,
		})
	}
	return out, nil
}

func (p *Provider) GetCollectionItems(_ context.Context, id model.CollectionID) ([]model.Item, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.findList(id)
	if !ok {
		return nil, provider.NotSupported("localtasks: unknown collection " + string(id))
	}

	items := make([]model.Item, 0, len(l.Tasks))
	for _, t := range l.Tasks {
		items = append(items, p.toItem(id, t))
	}
	return items, nil
}

func (p *Provider) AddToCollection(_ context.Context, id model.CollectionID, itemID model.ItemID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.findListIndex(id)
	if !ok {
		return provider.NotSupported("localtasks: unknown collection " + string(id))
	}
	local := localID(itemID)
	for _, t := range p.lists[idx].Tasks {
		if t.LocalID == local {
			return nil // already present
		}
	}
	p.lists[idx].Tasks = append(p.lists[idx].Tasks, Task{LocalID: local, Body: local})
	return nil
}

func (p *Provider) RemoveFromCollection(_ context.Context, id model.CollectionID, itemID model.ItemID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.findListIndex(id)
	if !ok {
		return provider.NotSupported("localtasks: unknown collection " + string(id))
	}
	local := localID(itemID)
	tasks := p.lists[idx].Tasks
	for i, t := range tasks {
		if t.LocalID == local {
			p.lists[idx].Tasks = append(tasks[:i], tasks[i+1:]...)
			return nil
		}
	}
	return nil
}

func (p *Provider) CreateCollection(_ context.Context, name string) (model.Collection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	slug := name
	p.lists = append(p.lists, List{Slug: slug, Name: name})
	return model.Collection{
		ID:         model.NewCollectionID(p.id, slug),
		Name:       name,
		IsEditable: true,
		Owner:      p.id,
	}, nil
}

func (p *Provider) CompleteTask(_ context.Context, taskID model.ItemID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed[taskID] = true
	return nil
}

func (p *Provider) UncompleteTask(_ context.Context, taskID model.ItemID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.completed, taskID)
	return nil
}

func (p *Provider) findList(id model.CollectionID) (List, bool) {
	idx, ok := p.findListIndex(id)
	if !ok {
		return List{}, false
	}
	return p.lists[idx], true
}

func (p *Provider) findListIndex(id model.CollectionID) (int, bool) {
	for i, l := range p.lists {
		if model.NewCollectionID(p.id, l.Slug) == id {
			return i, true
		}
	}
	return 0, false
}

func (p *Provider) toItem(collectionID model.CollectionID, t Task) model.Item {
	itemID := model.NewItemID(p.id, t.LocalID)
	stream := model.NewStreamID(p.id, "collection", localID(model.ItemID(string(collectionID))))

	var due *model.Date
	if t.DueDate != nil {
		d := model.NewDate(*t.DueDate)
		due = &d
	}

	return model.Item{
		ID:       itemID,
		StreamID: stream,
		Title:    t.Body,
		Content: model.TaskContent{
			Body:        t.Body,
			DueDate:     due,
			IsCompleted: p.completed[itemID],
		},
		IsRead: true, // tasks have no unread concept; never surfaced as unread noise
	}
}

func localID(id model.ItemID) string {
	s := string(id)
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[i+1:]
		}
	}
	return s
}

func (p *Provider) AvailableActions(_ context.Context, item model.Item) ([]provider.Action, error) {
	if item.IsArchived {
		return nil, nil
	}
	var tc model.TaskContent
	if t, ok := item.Content.(model.TaskContent); ok {
		tc = t
	}
	if tc.IsCompleted {
		return []provider.Action{{ID: "uncomplete", Name: "Mark Incomplete", Kind: provider.ActionMarkUnread}}, nil
	}
	return []provider.Action{{ID: "complete", Name: "Complete", Kind: provider.ActionMarkRead}}, nil
}

func (p *Provider) ExecuteAction(ctx context.Context, item model.Item, action provider.Action) (provider.ActionResult, error) {
	switch action.Kind {
	case provider.ActionMarkRead:
		return provider.ActionResult{Success: true}, p.CompleteTask(ctx, item.ID)
	case provider.ActionMarkUnread:
		return provider.ActionResult{Success: true}, p.UncompleteTask(ctx, item.ID)
	default:
		return provider.ActionResult{}, provider.NotSupported("localtasks: " + string(action.Kind))
	}
}
