// Package plugin discovers, parses, and validates directory-packaged
// providers: a declarative TOML manifest plus an opaque FZB-prefixed
// bytecode file. The instruction set inside the bytecode is never
// interpreted; this package validates the container header only.
package plugin

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// PluginType is the closed set of plugin roles a manifest can declare.
type PluginType string

const (
	PluginTypeProvider  PluginType = "provider"
	PluginTypeAction    PluginType = "action"
	PluginTypeTheme     PluginType = "theme"
	PluginTypeExtension PluginType = "extension"
)

// Manifest is the parsed `plugin.toml` of a plugin directory.
type Manifest struct {
	Plugin       PluginSection    `toml:"plugin"`
	Provider     ProviderSection  `toml:"provider"`
	Capabilities []string         `toml:"capabilities"`
	RateLimit    RateLimitSection `toml:"rate_limit"`
	Config       map[string]any   `toml:"config"`
}

type PluginSection struct {
	ID             string     `toml:"id"`
	Name           string     `toml:"name"`
	Version        string     `toml:"version"`
	Description    string     `toml:"description"`
	Authors        []string   `toml:"authors"`
	License        string     `toml:"license"`
	Homepage       string     `toml:"homepage"`
	Repository     string     `toml:"repository"`
	PluginType     PluginType `toml:"plugin_type"`
	EntryPoint     string     `toml:"entry_point"`
	MinCoreVersion string     `toml:"min_core_version"`
}

type ProviderSection struct {
	ID             string `toml:"id"`
	DisplayName    string `toml:"display_name"`
	Icon           string `toml:"icon"`
	HasFeeds       bool   `toml:"has_feeds"`
	HasCollections bool   `toml:"has_collections"`
	HasSavedItems  bool   `toml:"has_saved_items"`
	HasCommunities bool   `toml:"has_communities"`
	OAuthProvider  string `toml:"oauth_provider"`
}

type RateLimitSection struct {
	RequestsPerSecond *float64 `toml:"requests_per_second"`
	MaxConcurrent     *int     `toml:"max_concurrent"`
	RetryDelayMS      *int     `toml:"retry_delay_ms"`
}

const manifestFileName = "plugin.toml"

const defaultEntryPoint = "plugin.fzb"

// ParseManifestFile reads and decodes dir/plugin.toml.
func ParseManifestFile(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFileName))
	if err != nil {
		return nil, fmt.Errorf("plugin: read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes manifest TOML bytes, applying the documented
// default for plugin.entry_point.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("plugin: decode manifest: %w", err)
	}
	if m.Plugin.EntryPoint == "" {
		m.Plugin.EntryPoint = defaultEntryPoint
	}
	if m.Plugin.ID == "" {
		return nil, fmt.Errorf("plugin: manifest missing plugin.id")
	}
	if m.Provider.ID == "" {
		m.Provider.ID = m.Plugin.ID
	}
	return &m, nil
}

// Discover lists plugin subdirectories (ones containing plugin.toml)
// under root. A missing root yields an empty list, not an error.
func Discover(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("plugin: discover %q: %w", root, err)
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if _, err := os.Stat(filepath.Join(dir, manifestFileName)); err == nil {
			dirs = append(dirs, dir)
		}
	}
	return dirs, nil
}
