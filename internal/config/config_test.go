package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBindAddress(t *testing.T) {
	assert.NoError(t, ValidateBindAddress("unix:///run/user/1000/scryforge.sock"))
	assert.NoError(t, ValidateBindAddress("tcp://127.0.0.1:3030"))

	assert.Error(t, ValidateBindAddress("unix://"))
	assert.Error(t, ValidateBindAddress("tcp://localhost"))
	assert.Error(t, ValidateBindAddress("http://127.0.0.1:3030"))
	assert.Error(t, ValidateBindAddress("/tmp/scryforge.sock"))
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := Config{
		Daemon: Daemon{BindAddress: "tcp://127.0.0.1:3030", LogLevel: "info"},
		Cache:  Cache{MaxItemsPerStream: 1000},
	}
	assert.NoError(t, base.Validate())

	badLevel := base
	badLevel.Daemon.LogLevel = "loud"
	assert.Error(t, badLevel.Validate())

	badCap := base
	badCap.Cache.MaxItemsPerStream = 0
	assert.Error(t, badCap.Validate())

	badInterval := base
	badInterval.Providers = map[string]Provider{"hn": {Enabled: true, SyncIntervalMinutes: 0}}
	assert.Error(t, badInterval.Validate())
}

func TestEnsureDefaultFileWritesOnce(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	path, err := EnsureDefaultFile()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "scryforge", "config.toml"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[daemon]")

	// A second call leaves an edited file alone.
	require.NoError(t, os.WriteFile(path, []byte("[daemon]\nlog_level = \"debug\"\n"), 0o644))
	again, err := EnsureDefaultFile()
	require.NoError(t, err)
	assert.Equal(t, path, again)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "debug")
}

func TestPluginSearchRootsUserFirst(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")

	roots := PluginSearchRoots()
	require.Len(t, roots, 2)
	assert.Equal(t, "/custom/data/scryforge/plugins", roots[0])
	assert.Equal(t, "/usr/share/scryforge/plugins", roots[1])
}
