package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rakunlabs/into"
	"github.com/rakunlabs/logi"

	"github.com/scryforge/hub/internal/config"
	"github.com/scryforge/hub/internal/hub"
	"github.com/scryforge/hub/internal/provider/builtin/localtasks"
	"github.com/scryforge/hub/internal/provider/builtin/memoryfeed"
)

var (
	name    = "scryforgehub"
	version = "v0.0.0"
)

func main() {
	config.Service = name + "/" + version

	into.Init(run,
		into.WithLogger(logi.InitializeLog(logi.WithCaller(false))),
		into.WithMsgf("%s [%s]", name, version),
	)
}

func run(ctx context.Context) error {
	path, err := config.EnsureDefaultFile()
	if err != nil {
		return fmt.Errorf("failed to resolve config file: %w", err)
	}

	cfg, err := config.Load(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	h, err := hub.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build hub: %w", err)
	}

	if err := registerBuiltins(ctx, h); err != nil {
		return fmt.Errorf("failed to register builtin providers: %w", err)
	}

	return h.Run(ctx)
}

// registerBuiltins wires the two in-process reference providers
// (memoryfeed, localtasks) so a fresh install has something to sync and
// query against without any plugin directory configured.
func registerBuiltins(ctx context.Context, h *hub.Hub) error {
	feeds := memoryfeed.New("memoryfeed", []memoryfeed.Feed{
		{
			Slug: "inbox",
			Name: "Inbox",
			Items: []memoryfeed.SeedItem{
				{LocalID: "welcome", Title: "Welcome to Scryforge", Body: "Your hub is running.", Published: time.Now().Add(-time.Hour)},
			},
		},
	})
	if err := h.RegisterNative(ctx, feeds, 15); err != nil {
		return err
	}

	tasks := localtasks.New("localtasks", []localtasks.List{
		{Slug: "inbox", Name: "Inbox"},
	})
	return h.RegisterNative(ctx, tasks, 15)
}
