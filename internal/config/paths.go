// Package config provides configuration loading, merging, and path
// management for Remi.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths contains the standard XDG-style paths for Remi's own data.
type Paths struct {
	Data   string // ~/.local/share/remi
	Config string // ~/.config/remi
	Cache  string // ~/.cache/remi
	State  string // ~/.local/state/remi
}

// GetPaths returns the standard paths for Remi data.
func GetPaths() *Paths {
	return &Paths{
		Data:   filepath.Join(getEnvOrDefault("XDG_DATA_HOME", defaultDataHome()), "remi"),
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "remi"),
		Cache:  filepath.Join(getEnvOrDefault("XDG_CACHE_HOME", defaultCacheHome()), "remi"),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), "remi"),
	}
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.Cache, p.State, p.ArchiveDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// DBPath returns the path to the single SQLite store file.
func (p *Paths) DBPath() string {
	return filepath.Join(p.Data, "remi.db")
}

// ArchiveDir returns the root directory under which executed archive
// runs write their bundles (one subdirectory per run id).
func (p *Paths) ArchiveDir() string {
	return filepath.Join(p.Data, "archive")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultDataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultCacheHome() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "cache")
	}
	return filepath.Join(os.Getenv("HOME"), ".cache")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(GetPaths().Config, "remi.json")
}

// ProjectConfigPath returns the path to a project-local config file.
func ProjectConfigPath(directory string) string {
	return filepath.Join(directory, ".remi", "remi.json")
}
