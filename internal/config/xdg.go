package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// XDG base-directory resolution for the three variables the daemon
// consults.

func xdgConfigHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config")
}

func xdgDataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share")
}

func xdgRuntimeDir() string {
	return os.Getenv("XDG_RUNTIME_DIR")
}

// DefaultConfigPath is $XDG_CONFIG_HOME/scryforge/config.toml.
func DefaultConfigPath() (string, error) {
	base := xdgConfigHome()
	if base == "" {
		return "", fmt.Errorf("config: cannot resolve XDG_CONFIG_HOME or home directory")
	}
	return filepath.Join(base, "scryforge", "config.toml"), nil
}

// DefaultCachePath is $XDG_DATA_HOME/scryforge/cache.db.
func DefaultCachePath() (string, error) {
	base := xdgDataHome()
	if base == "" {
		return "", fmt.Errorf("config: cannot resolve XDG_DATA_HOME or home directory")
	}
	return filepath.Join(base, "scryforge", "cache.db"), nil
}

// DefaultSocketPath is $XDG_RUNTIME_DIR/scryforge.sock, falling back to
// /tmp/scryforge.sock when XDG_RUNTIME_DIR is unset.
func DefaultSocketPath() (string, error) {
	if dir := xdgRuntimeDir(); dir != "" {
		return filepath.Join(dir, "scryforge.sock"), nil
	}
	return "/tmp/scryforge.sock", nil
}

// PluginSearchRoots returns the user and system plugin directories, user
// first.
func PluginSearchRoots() []string {
	roots := []string{"/usr/share/scryforge/plugins"}
	if base := xdgDataHome(); base != "" {
		roots = append([]string{filepath.Join(base, "scryforge", "plugins")}, roots...)
	}
	return roots
}

// ValidateBindAddress checks that addr parses as "unix://<path>" or
// "tcp://<host:port>".
func ValidateBindAddress(addr string) error {
	switch {
	case strings.HasPrefix(addr, "unix://"):
		if strings.TrimPrefix(addr, "unix://") == "" {
			return fmt.Errorf("bind_address %q missing unix socket path", addr)
		}
		return nil
	case strings.HasPrefix(addr, "tcp://"):
		rest := strings.TrimPrefix(addr, "tcp://")
		if !strings.Contains(rest, ":") {
			return fmt.Errorf("bind_address %q missing port", addr)
		}
		return nil
	default:
		return fmt.Errorf("bind_address %q must start with unix:// or tcp://", addr)
	}
}
