package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gomarks/internal/utils"
)

// MaxAge is how long cached names are used before the store is read again.
// Pulls from the authority do not invalidate the cache, so it must stay short.
const MaxAge = 5 * time.Minute

// Names holds collection and tag names for shell completion
type Names struct {
	Collections []string `json:"collections"`
	Tags        []string `json:"tags"`
	Timestamp   int64    `json:"timestamp"`
}

// Fresh reports whether n was saved less than maxAge before now
func (n *Names) Fresh(now time.Time, maxAge time.Duration) bool {
	return now.Sub(time.Unix(n.Timestamp, 0)) < maxAge
}

// GetCacheDir returns the XDG-compliant cache directory path
func GetCacheDir() (string, error) {
	dir, err := utils.AppDir("XDG_CACHE_HOME", ".cache")
	if err != nil {
		return "", err
	}
	return dir, os.MkdirAll(dir, 0755)
}

// GetCacheFile returns the names cache file for ownerID
func GetCacheFile(ownerID string) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("owner id is required")
	}
	dir, err := GetCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "names-"+ownerID+".json"), nil
}

// Load reads the cached names for ownerID
func Load(ownerID string) (*Names, error) {
	file, err := GetCacheFile(ownerID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	var names Names
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, err
	}
	return &names, nil
}

// Save writes names for ownerID, stamping them with the current time
func Save(ownerID string, names Names) error {
	file, err := GetCacheFile(ownerID)
	if err != nil {
		return err
	}
	names.Timestamp = time.Now().Unix()

	data, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(file, data, 0644)
}

// Invalidate drops the cached names for ownerID. A missing cache is not an error.
func Invalidate(ownerID string) error {
	if ownerID == "" {
		return nil
	}
	dir, err := utils.AppDir("XDG_CACHE_HOME", ".cache")
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(dir, "names-"+ownerID+".json")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// LoadWithFallback returns fresh cached names, or calls fetch and caches its result
func LoadWithFallback(ownerID string, fetch func() (*Names, error)) (*Names, error) {
	if names, err := Load(ownerID); err == nil && names.Fresh(time.Now(), MaxAge) {
		return names, nil
	}

	names, err := fetch()
	if err != nil {
		return nil, err
	}
	_ = Save(ownerID, *names)
	return names, nil
}
