package plugin

import (
	"context"

	"github.com/scryforge/hub/internal/model"
	"github.com/scryforge/hub/internal/provider"
)

// Adapter presents a loaded plugin as a provider.Provider so the registry
// always holds a uniform interface regardless of whether a provider is
// native or bytecode-backed. Since the bytecode instruction set is not
// interpreted here, every operation that would require running the VM
// fails uniformly with NotSupported; health_check reports unhealthy.
type Adapter struct {
	manifest  *Manifest
	lifecycle *Lifecycle
}

// NewAdapter wraps a plugin whose lifecycle has already reached
// StateLoaded (or StateFailed, in which case health checks report why).
func NewAdapter(m *Manifest, lc *Lifecycle) *Adapter {
	return &Adapter{manifest: m, lifecycle: lc}
}

var _ provider.Provider = (*Adapter)(nil)

func (a *Adapter) ID() string   { return a.manifest.Provider.ID }
func (a *Adapter) Name() string { return a.manifest.Provider.DisplayName }

func (a *Adapter) HealthCheck(ctx context.Context) (model.ProviderHealth, error) {
	msg := "plugin bytecode VM not implemented: " + string(a.lifecycle.State())
	if reason := a.lifecycle.Reason(); reason != "" {
		msg += ": " + reason
	}
	return model.ProviderHealth{IsHealthy: false, Message: msg}, nil
}

func (a *Adapter) Sync(ctx context.Context) (model.SyncResult, error) {
	return model.SyncResult{}, provider.NotSupported("sync: plugin bytecode VM not implemented")
}

// Capabilities reflects what the manifest declares, even though no facet
// interface is actually implemented below; a registry facet probe still
// correctly returns NotSupported via the type assertion miss, since the
// VM that would back these facets doesn't exist.
func (a *Adapter) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		HasFeeds:       a.manifest.Provider.HasFeeds,
		HasCollections: a.manifest.Provider.HasCollections,
		HasSavedItems:  a.manifest.Provider.HasSavedItems,
		HasCommunities: a.manifest.Provider.HasCommunities,
	}
}

func (a *Adapter) AvailableActions(ctx context.Context, item model.Item) ([]provider.Action, error) {
	return nil, nil
}

func (a *Adapter) ExecuteAction(ctx context.Context, item model.Item, action provider.Action) (provider.ActionResult, error) {
	return provider.ActionResult{}, provider.NotSupported("execute_action: plugin bytecode VM not implemented")
}
