// Package hub wires every component into the running daemon and owns its
// startup/shutdown order: open cache, construct token fetcher, construct
// registry, parse manifests and register providers, start scheduler, open
// RPC listener. Shutdown reverses that order and quiesces in-flight syncs
// with a configurable grace timeout before forcing cancellation.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/rakunlabs/ada"

	"github.com/scryforge/hub/internal/config"
	"github.com/scryforge/hub/internal/credential"
	"github.com/scryforge/hub/internal/plugin"
	"github.com/scryforge/hub/internal/provider"
	"github.com/scryforge/hub/internal/registry"
	"github.com/scryforge/hub/internal/rpc"
	"github.com/scryforge/hub/internal/store"
	"github.com/scryforge/hub/internal/sync"
)

// ShutdownGrace is the default window given to in-flight syncs to finish
// before Stop forces cancellation.
const ShutdownGrace = 10 * time.Second

// tickInterval is the scheduler's base tick cadence; per-provider
// intervals (config.Provider.SyncIntervalMinutes) are multiples of it.
const tickInterval = 30 * time.Second

// maxInFlightSyncs bounds concurrent provider syncs across the whole
// registry.
const maxInFlightSyncs = 4

// Hub owns every long-lived component and the order they start/stop in.
type Hub struct {
	cfg *config.Config

	store      store.Store
	credential *credential.Cache
	registry   *registry.Registry
	scheduler  *sync.Scheduler
	rpcServer  *rpc.Server
	listener   net.Listener
	debugMux   *ada.Server

	shutdownGrace time.Duration
}

// New constructs every component in startup order but does not yet start
// the scheduler or accept RPC connections; call Run for that.
func New(ctx context.Context, cfg *config.Config) (*Hub, error) {
	st, err := store.New(ctx, cfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("hub: open cache: %w", err)
	}

	fetcher := credential.NewUnixSocket(resolveCredentialSocket())
	tokenCache := credential.NewCache(fetcher)

	reg := registry.New()

	sched := sync.New(reg, st, tickInterval, maxInFlightSyncs)
	reg.SetQuiescer(sched)

	h := &Hub{
		cfg:           cfg,
		store:         st,
		credential:    tokenCache,
		registry:      reg,
		scheduler:     sched,
		shutdownGrace: ShutdownGrace,
	}

	if err := h.loadProviders(ctx); err != nil {
		st.Close()
		return nil, err
	}

	h.rpcServer = rpc.New(st, sched, reg)

	return h, nil
}

// loadProviders creates scheduler state for every enabled configured
// provider id (the native providers themselves are registered through
// RegisterNative) and discovers
// plugin-backed ones from the configured search roots,
// running each discovered plugin's manifest through
// Discovered→ManifestParsed→Validated→Loaded before registering it as a
// provider.Provider via plugin.Adapter. A plugin that fails any step is
// logged and skipped rather than aborting startup.
func (h *Hub) loadProviders(ctx context.Context) error {
	for id, pc := range h.cfg.Providers {
		if !pc.Enabled {
			continue
		}
		h.scheduler.Register(id, true, time.Duration(pc.SyncIntervalMinutes)*time.Minute)
	}

	for _, root := range config.PluginSearchRoots() {
		dirs, err := plugin.Discover(root)
		if err != nil {
			return fmt.Errorf("hub: discover plugins in %q: %w", root, err)
		}
		for _, dir := range dirs {
			h.loadPlugin(ctx, dir)
		}
	}

	return nil
}

func (h *Hub) loadPlugin(ctx context.Context, dir string) {
	lc := plugin.NewLifecycle(dir)

	m, err := plugin.ParseManifestFile(dir)
	if err := lc.Advance(plugin.StateManifestParsed, err); err != nil {
		slog.Warn("hub: plugin manifest parse failed", "dir", dir, "error", err)
		return
	}

	if err := lc.Advance(plugin.StateValidated, plugin.ValidateCapabilities(m.Capabilities)); err != nil {
		slog.Warn("hub: plugin capability validation failed", "dir", dir, "plugin", m.Plugin.ID, "error", err)
		return
	}

	bcPath := filepath.Join(dir, m.Plugin.EntryPoint)
	f, err := os.Open(bcPath)
	if err != nil {
		lc.Advance(plugin.StateLoaded, fmt.Errorf("hub: open bytecode %q: %w", bcPath, err))
		slog.Warn("hub: plugin bytecode open failed", "dir", dir, "plugin", m.Plugin.ID, "error", err)
		return
	}
	defer f.Close()

	_, err = plugin.ParseBytecodeHeader(f, m.Plugin.ID)
	if err := lc.Advance(plugin.StateLoaded, err); err != nil {
		slog.Warn("hub: plugin bytecode header invalid", "dir", dir, "plugin", m.Plugin.ID, "error", err)
		return
	}

	if err := lc.Advance(plugin.StateActive, nil); err != nil {
		slog.Warn("hub: plugin activation failed", "dir", dir, "plugin", m.Plugin.ID, "error", err)
		return
	}

	adapter := plugin.NewAdapter(m, lc)
	if err := h.registry.Register(ctx, adapter); err != nil {
		slog.Warn("hub: plugin registration failed", "plugin", m.Plugin.ID, "error", err)
		return
	}
	h.scheduler.Register(m.Plugin.ID, true, tickInterval)
	slog.Info("hub: plugin active", "plugin", m.Plugin.ID, "dir", dir)
}

// RegisterNative adds a native (non-plugin) provider built directly into
// this binary, used by cmd/scryforgehub to wire the builtin reference
// providers (memoryfeed, localtasks) before Run starts the scheduler.
func (h *Hub) RegisterNative(ctx context.Context, p provider.Provider, intervalMinutes int) error {
	if err := h.registry.Register(ctx, p); err != nil {
		return fmt.Errorf("hub: register provider %q: %w", p.ID(), err)
	}
	interval := time.Duration(intervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	h.scheduler.Register(p.ID(), true, interval)
	return nil
}

// Run starts the scheduler and RPC listener and blocks until ctx is
// cancelled, then shuts everything down in reverse order.
func (h *Hub) Run(ctx context.Context) error {
	h.healthCheckAll(ctx)

	h.scheduler.Start(ctx)

	network, address, err := rpc.ParseBindAddress(h.cfg.Daemon.BindAddress)
	if err != nil {
		return fmt.Errorf("hub: %w", err)
	}
	ln, err := rpc.Listen(network, address)
	if err != nil {
		return fmt.Errorf("hub: open RPC listener: %w", err)
	}
	h.listener = ln

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	go h.credential.Run(sweepCtx, 10*time.Minute)

	if h.cfg.Daemon.DebugBindAddress != "" {
		h.debugMux = h.newDebugMux()
		go func() {
			if err := h.debugMux.StartWithContext(ctx, h.cfg.Daemon.DebugBindAddress); err != nil {
				slog.Warn("hub: debug mux stopped", "error", err)
			}
		}()
		slog.Info("hub: debug mux listening", "address", h.cfg.Daemon.DebugBindAddress)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- h.rpcServer.Serve(ctx, ln)
	}()

	slog.Info("hub: listening", "network", network, "address", address)

	select {
	case <-ctx.Done():
		return h.shutdown()
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("hub: rpc server: %w", err)
		}
		return nil
	}
}

func (h *Hub) healthCheckAll(ctx context.Context) {
	for _, p := range h.registry.List() {
		health, err := p.HealthCheck(ctx)
		if err != nil {
			slog.Warn("hub: startup health check failed", "provider", p.ID(), "error", err)
			continue
		}
		if !health.IsHealthy {
			slog.Warn("hub: provider unhealthy at startup", "provider", p.ID(), "message", health.Message)
		}
	}
}

// shutdown quiesces every in-flight sync with h.shutdownGrace before
// forcing cancellation, then waits for in-flight RPC connections and
// closes the store.
func (h *Hub) shutdown() error {
	graceCtx, cancel := context.WithTimeout(context.Background(), h.shutdownGrace)
	defer cancel()

	var errs []error
	for _, id := range h.registry.IDs() {
		if err := h.scheduler.Quiesce(graceCtx, id); err != nil {
			errs = append(errs, fmt.Errorf("quiesce %q: %w", id, err))
		}
	}
	h.scheduler.Stop()

	if h.rpcServer != nil {
		h.rpcServer.Wait()
	}
	if h.listener != nil {
		_ = h.listener.Close()
	}

	h.store.Close()

	slog.Info("hub: shutdown complete")
	return errors.Join(errs...)
}

// resolveCredentialSocket locates the external credential daemon's
// listening socket: SCRYFORGE_CREDENTIAL_SOCKET if set, otherwise
// $XDG_RUNTIME_DIR/scryforge-credential.sock, falling back to /tmp. The
// daemon's absence is not fatal: UnixSocket.FetchToken simply
// fails lazily on first use, which providers surface as AuthRequired.
func resolveCredentialSocket() string {
	if v := os.Getenv("SCRYFORGE_CREDENTIAL_SOCKET"); v != "" {
		return v
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "scryforge-credential.sock")
	}
	return "/tmp/scryforge-credential.sock"
}
