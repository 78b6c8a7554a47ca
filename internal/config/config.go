// Package config loads the daemon's TOML configuration through
// github.com/rakunlabs/chu with an env-var override loader, applying the
// logging level immediately after load.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rakunlabs/chu"
	"github.com/rakunlabs/chu/loader/loaderenv"
	"github.com/rakunlabs/logi"
	"github.com/rakunlabs/tell"
)

// Service identifies this build for logging/telemetry, set from main.go.
var Service = ""

// Config is the root of $XDG_CONFIG_HOME/scryforge/config.toml.
type Config struct {
	Daemon    Daemon              `cfg:"daemon"`
	Cache     Cache               `cfg:"cache"`
	Providers map[string]Provider `cfg:"providers"`
	Telemetry tell.Config         `cfg:"telemetry,noprefix"`
}

// Daemon configures the RPC listener and process-wide log level.
type Daemon struct {
	// BindAddress is either "unix://<path>" or "tcp://host:port". Empty
	// resolves to the default Unix socket path at load time.
	BindAddress string `cfg:"bind_address"`
	LogLevel    string `cfg:"log_level" default:"info"`

	// DebugBindAddress optionally starts a plain HTTP mux (GET
	// /debug/health, GET /debug/sync) for operators without a JSON-RPC
	// client at hand. Empty (the default) disables it entirely.
	DebugBindAddress string `cfg:"debug_bind_address"`
}

// Cache configures the durable store.
type Cache struct {
	// Path is the SQLite database file. Empty resolves to
	// $XDG_DATA_HOME/scryforge/cache.db at load time.
	Path              string         `cfg:"path"`
	MaxItemsPerStream int            `cfg:"max_items_per_stream" default:"1000"`
	Postgres          *StorePostgres `cfg:"postgres"`
}

// Provider configures one entry under [providers.<id>].
type Provider struct {
	Enabled             bool           `cfg:"enabled" default:"true"`
	SyncIntervalMinutes int            `cfg:"sync_interval_minutes" default:"15"`
	Settings            map[string]any `cfg:"settings"`
}

// Store is the resolved (defaults-applied) backend configuration
// internal/store.New consumes.
type Store struct {
	SQLite            *StoreSQLite
	Postgres          *StorePostgres
	MaxItemsPerStream int
}

type StorePostgres struct {
	TablePrefix     *string        `cfg:"table_prefix"`
	Datasource      string         `cfg:"datasource" log:"-"`
	Schema          string         `cfg:"schema"`
	ConnMaxLifetime *time.Duration `cfg:"conn_max_lifetime"`
	MaxIdleConns    *int           `cfg:"max_idle_conns"`
	MaxOpenConns    *int           `cfg:"max_open_conns"`

	Migrate Migrate `cfg:"migrate"`
}

type StoreSQLite struct {
	TablePrefix *string `cfg:"table_prefix"`
	Datasource  string  `cfg:"datasource"`

	Migrate Migrate `cfg:"migrate"`
}

type Migrate struct {
	Datasource string            `cfg:"datasource" log:"-"`
	Schema     string            `cfg:"schema"`
	Table      string            `cfg:"table"`
	Values     map[string]string `cfg:"values"`
}

// Load reads the config file at path, applies env overrides under the
// SCRYFORGE_ prefix, sets the process log level, and resolves
// XDG-relative defaults (cache path, bind address). Callers that want
// the default file written on first run go through EnsureDefaultFile
// first.
func Load(ctx context.Context, path string) (*Config, error) {
	var cfg Config
	if err := chu.Load(ctx, path, &cfg, chu.WithLoaderOption(loaderenv.New(loaderenv.WithPrefix("SCRYFORGE_")))); err != nil {
		return nil, err
	}

	if err := logi.SetLogLevel(cfg.Daemon.LogLevel); err != nil {
		return nil, fmt.Errorf("set log level %s: %w", cfg.Daemon.LogLevel, err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, fmt.Errorf("apply config defaults: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	slog.Info("loaded configuration", "config", chu.MarshalMap(cfg))

	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Daemon.BindAddress == "" {
		sock, err := DefaultSocketPath()
		if err != nil {
			return err
		}
		c.Daemon.BindAddress = "unix://" + sock
	}
	if c.Cache.Path == "" {
		p, err := DefaultCachePath()
		if err != nil {
			return err
		}
		c.Cache.Path = p
	}
	if c.Cache.MaxItemsPerStream <= 0 {
		c.Cache.MaxItemsPerStream = 1000
	}
	return nil
}

// Validate enforces bind_address parseable,
// log_level in the known set, max_items_per_stream positive,
// sync_interval_minutes positive for every configured provider.
func (c *Config) Validate() error {
	if err := ValidateBindAddress(c.Daemon.BindAddress); err != nil {
		return err
	}
	switch c.Daemon.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q not in {trace,debug,info,warn,error}", c.Daemon.LogLevel)
	}
	if c.Cache.MaxItemsPerStream <= 0 {
		return fmt.Errorf("cache.max_items_per_stream must be > 0")
	}
	for id, p := range c.Providers {
		if p.SyncIntervalMinutes <= 0 {
			return fmt.Errorf("providers.%s.sync_interval_minutes must be > 0", id)
		}
	}
	return nil
}

// defaultFileContent is written on first run so a fresh install has a
// config file to edit rather than an empty directory.
const defaultFileContent = `[daemon]
log_level = "info"

[cache]
max_items_per_stream = 1000

# [providers.example]
# enabled = true
# sync_interval_minutes = 15
`

// EnsureDefaultFile resolves the default config path and writes a
// commented starter file there when none exists yet. Returns the path
// for Load.
func EnsureDefaultFile() (string, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("stat config %q: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultFileContent), 0o644); err != nil {
		return "", fmt.Errorf("write default config: %w", err)
	}
	slog.Info("wrote default configuration", "path", path)
	return path, nil
}

// StoreConfig derives the internal/store.New configuration from Cache,
// defaulting to the embedded SQLite backend unless Cache.Postgres is set.
func (c *Config) StoreConfig() Store {
	if c.Cache.Postgres != nil {
		return Store{Postgres: c.Cache.Postgres, MaxItemsPerStream: c.Cache.MaxItemsPerStream}
	}
	return Store{
		SQLite:            &StoreSQLite{Datasource: c.Cache.Path},
		MaxItemsPerStream: c.Cache.MaxItemsPerStream,
	}
}
