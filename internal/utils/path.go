package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AppName is the directory name used under every XDG base directory
const AppName = "gomarks"

// ExpandPath expands environment variables and a leading ~ in path
//   - "~/data/gomarks.db" -> "/home/user/data/gomarks.db"
//   - "$XDG_DATA_HOME/gomarks" -> "/home/user/.local/share/gomarks"
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	path = os.ExpandEnv(path)
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// AppDir returns $<xdgEnv>/gomarks, or ~/<fallback>/gomarks when the variable is unset.
// AppDir("XDG_STATE_HOME", ".local/state") is the state directory, for example.
func AppDir(xdgEnv, fallback string) (string, error) {
	if base := os.Getenv(xdgEnv); base != "" {
		return filepath.Join(base, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, fallback, AppName), nil
}
