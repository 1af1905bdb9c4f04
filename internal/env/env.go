// Package env resolves the process-wide locations and toggles paketkoll
// reads from the environment: the config directory, the cache directory and
// the log filter. Inspect the resolved values with the (external) CLI's
// `env` subcommand.
package env

import (
	"os"
	"path/filepath"
)

// ConfigDir is the directory holding main, unsorted and files/, honouring
// XDG_CONFIG_HOME before falling back to ~/.config/paketkoll.
var ConfigDir = findConfigDir()

// CacheDir is the directory holding the disk cache (C6): content blobs plus
// index.pb. Safe to delete; paketkoll repopulates it on demand.
var CacheDir = findCacheDir()

// LogFilter is the verbosity filter read from PAKETKOLL_LOG (e.g. "debug",
// "info", "warn"). Empty means the default (warn-and-above) filter.
var LogFilter = os.Getenv("PAKETKOLL_LOG")

func findConfigDir() string {
	if v := os.Getenv("PAKETKOLL_CONFIG_DIR"); v != "" {
		return v
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "paketkoll")
	}
	return os.ExpandEnv(filepath.Join("$HOME", ".config", "paketkoll"))
}

func findCacheDir() string {
	if v := os.Getenv("PAKETKOLL_CACHE_DIR"); v != "" {
		return v
	}
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "paketkoll")
	}
	return os.ExpandEnv(filepath.Join("$HOME", ".cache", "paketkoll"))
}
