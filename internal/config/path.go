// Package config provides configuration utilities for the application.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// DataDir is where nourish keeps its database and trained bundle unless
// configured otherwise.
const DataDir = "$HOME/.local/share/nourish"

// ExpandPath expands ~ and environment variables in a file path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}

// DefaultDatabasePath is the prediction history database location.
func DefaultDatabasePath() string {
	return ExpandPath(filepath.Join(DataDir, "nourish.db"))
}

// DefaultArtifactsDir is the trained bundle location.
func DefaultArtifactsDir() string {
	return ExpandPath(filepath.Join(DataDir, "model"))
}
