// Package registry owns the in-process lifetime of provider instances:
// registration, lookup, capability probing, and safe removal.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/scryforge/hub/internal/provider"
)

// Quiescer lets the registry drain a provider's in-flight sync before a
// mutating operation (replace-on-register, remove) proceeds. The scheduler
// (internal/sync) implements this; it is optional so the registry can be
// used standalone in tests.
type Quiescer interface {
	Quiesce(ctx context.Context, providerID string) error
}

// Registry is a thread-safe map from provider id to provider instance.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]provider.Provider

	quiesceMu sync.RWMutex
	quiescer  Quiescer
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{providers: make(map[string]provider.Provider)}
}

// SetQuiescer wires the scheduler's drain hook. Safe to call once during
// startup, before any Register/Remove calls are expected to race it.
func (r *Registry) SetQuiescer(q Quiescer) {
	r.quiesceMu.Lock()
	r.quiescer = q
	r.quiesceMu.Unlock()
}

func (r *Registry) quiesce(ctx context.Context, id string) error {
	r.quiesceMu.RLock()
	q := r.quiescer
	r.quiesceMu.RUnlock()
	if q == nil {
		return nil
	}
	return q.Quiesce(ctx, id)
}

// Register adds p under its own ID, replacing any existing entry with the
// same id. Replacement first quiesces the old entry's in-flight sync.
func (r *Registry) Register(ctx context.Context, p provider.Provider) error {
	id := p.ID()
	if err := r.quiesce(ctx, id); err != nil {
		return fmt.Errorf("registry: quiesce %q before register: %w", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[id] = p
	return nil
}

// Get returns the provider registered under id, or (nil, false).
func (r *Registry) Get(id string) (provider.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// List returns a snapshot of every registered provider. Order is not
// guaranteed; callers that need determinism sort by ID themselves.
func (r *Registry) List() []provider.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]provider.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	return out
}

// IDs returns the set of currently registered provider ids.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for id := range r.providers {
		out = append(out, id)
	}
	return out
}

// Remove quiesces id's in-flight sync, then deletes it from the registry.
// Removing an id that isn't present is a no-op.
func (r *Registry) Remove(ctx context.Context, id string) error {
	if err := r.quiesce(ctx, id); err != nil {
		return fmt.Errorf("registry: quiesce %q before remove: %w", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, id)
	return nil
}

// Clear quiesces and removes every provider.
func (r *Registry) Clear(ctx context.Context) error {
	for _, id := range r.IDs() {
		if err := r.Remove(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Feeds returns id's HasFeeds facet, or a NotSupported *provider.Error if absent.
func (r *Registry) Feeds(id string) (provider.HasFeeds, error) {
	p, ok := r.Get(id)
	if !ok {
		return nil, ErrProviderNotFound
	}
	f, ok := p.(provider.HasFeeds)
	if !ok {
		return nil, provider.NotSupported("has_feeds")
	}
	return f, nil
}

// Collections returns id's HasCollections facet, or a NotSupported *provider.Error if absent.
func (r *Registry) Collections(id string) (provider.HasCollections, error) {
	p, ok := r.Get(id)
	if !ok {
		return nil, ErrProviderNotFound
	}
	f, ok := p.(provider.HasCollections)
	if !ok {
		return nil, provider.NotSupported("has_collections")
	}
	return f, nil
}

// SavedItems returns id's HasSavedItems facet, or a NotSupported *provider.Error if absent.
func (r *Registry) SavedItems(id string) (provider.HasSavedItems, error) {
	p, ok := r.Get(id)
	if !ok {
		return nil, ErrProviderNotFound
	}
	f, ok := p.(provider.HasSavedItems)
	if !ok {
		return nil, provider.NotSupported("has_saved_items")
	}
	return f, nil
}

// Communities returns id's HasCommunities facet, or a NotSupported *provider.Error if absent.
func (r *Registry) Communities(id string) (provider.HasCommunities, error) {
	p, ok := r.Get(id)
	if !ok {
		return nil, ErrProviderNotFound
	}
	f, ok := p.(provider.HasCommunities)
	if !ok {
		return nil, provider.NotSupported("has_communities")
	}
	return f, nil
}

// Tasks returns id's HasTasks facet, or a NotSupported *provider.Error if absent.
func (r *Registry) Tasks(id string) (provider.HasTasks, error) {
	p, ok := r.Get(id)
	if !ok {
		return nil, ErrProviderNotFound
	}
	f, ok := p.(provider.HasTasks)
	if !ok {
		return nil, provider.NotSupported("has_tasks")
	}
	return f, nil
}

// ErrProviderNotFound is returned by the facet probes when id is not
// registered at all (distinct from NotSupported, which means the id
// exists but lacks the facet).
var ErrProviderNotFound = &notFoundError{}

type notFoundError struct{}

func (*notFoundError) Error() string { return "registry: provider not found" }
