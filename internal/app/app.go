// Package app holds the state shared by CLI commands: configuration, the
// local store and the hooks that keep it in sync.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gomarks/backend"
	"gomarks/backend/sqlite"
	"gomarks/internal/cache"
	"gomarks/internal/config"
	gsync "gomarks/internal/sync"
	"gomarks/internal/utils"
)

// App holds the application state
type App struct {
	config     *config.Config
	configPath string
	store      *sqlite.Store
	engine     *gsync.Engine

	// spawn starts a detached sync; replaced in tests
	spawn func(configPath string) error
}

// New opens the configured local store
func New(cfg *config.Config, configPath string) (*App, error) {
	store, err := gsync.OpenStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	return NewWithStore(cfg, configPath, store), nil
}

// NewWithStore creates an App around an already opened store
func NewWithStore(cfg *config.Config, configPath string, store *sqlite.Store) *App {
	return &App{
		config:     cfg,
		configPath: configPath,
		store:      store,
		spawn:      gsync.SpawnBackgroundSync,
	}
}

// Config returns the loaded configuration
func (a *App) Config() *config.Config {
	return a.config
}

// Store returns the local store
func (a *App) Store() *sqlite.Store {
	return a.store
}

// Engine returns the sync engine, connecting it on first use
func (a *App) Engine() (*gsync.Engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}
	engine, err := gsync.NewEngine(a.config, a.store)
	if err != nil {
		return nil, err
	}
	a.engine = engine
	return engine, nil
}

// AfterWrite drops cached completion names and kicks off a background sync
// when auto-sync is on. Failing to spawn only delays the change until the next sync.
func (a *App) AfterWrite() {
	if err := cache.Invalidate(a.config.OwnerID); err != nil {
		utils.Debugf("failed to invalidate name cache: %v", err)
	}
	if !a.config.Sync.Enabled || !a.config.Sync.AutoSync || a.spawn == nil {
		return
	}
	if err := a.spawn(a.configPath); err != nil {
		utils.Debugf("failed to spawn background sync: %v", err)
	}
}

// ResolveItem finds a live item by id or unique id prefix
func (a *App) ResolveItem(ctx context.Context, ref string) (*backend.Item, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, utils.ErrItemNotFound(ref, backend.ErrInvalidInput)
	}
	if it, err := a.store.GetItem(ctx, ref); err == nil {
		return it, nil
	} else if !errors.Is(err, backend.ErrNotFound) {
		return nil, err
	}

	items, err := a.store.ListItems(ctx, sqlite.ItemFilter{})
	if err != nil {
		return nil, err
	}
	var matches []backend.Item
	for _, it := range items {
		if strings.HasPrefix(it.ID, ref) {
			matches = append(matches, it)
		}
	}
	switch len(matches) {
	case 0:
		return nil, utils.ErrItemNotFound(ref, backend.ErrNotFound)
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("%w: id prefix %q matches %d items", backend.ErrInvalidInput, ref, len(matches))
	}
}

// ResolveCollection finds a live collection by name (case-insensitive), id or id prefix
func (a *App) ResolveCollection(ctx context.Context, ref string) (*backend.Collection, error) {
	ref = strings.TrimSpace(ref)
	collections, err := a.store.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	for i := range collections {
		if strings.EqualFold(collections[i].Name, ref) || collections[i].ID == ref {
			return &collections[i], nil
		}
	}
	var match *backend.Collection
	for i := range collections {
		if ref != "" && strings.HasPrefix(collections[i].ID, ref) {
			if match != nil {
				return nil, fmt.Errorf("%w: id prefix %q matches several collections", backend.ErrInvalidInput, ref)
			}
			match = &collections[i]
		}
	}
	if match == nil {
		return nil, utils.ErrCollectionNotFound(ref, backend.ErrNotFound)
	}
	return match, nil
}

// ResolveTag finds a live tag by name or id
func (a *App) ResolveTag(ctx context.Context, ref string) (*backend.Tag, error) {
	if tg, err := a.store.FindTag(ctx, ref); err == nil {
		return tg, nil
	}
	tg, err := a.store.GetTag(ctx, strings.TrimSpace(ref))
	if err != nil {
		return nil, utils.ErrTagNotFound(ref, err)
	}
	return tg, nil
}

// CollectionNames lists collection names for shell completion
func (a *App) CollectionNames() ([]string, error) {
	collections, err := a.store.ListCollections(context.Background())
	if err != nil {
		return nil, err
	}
	names := make([]string, len(collections))
	for i, c := range collections {
		names[i] = c.Name
	}
	return names, nil
}

// TagNames lists tag names for shell completion
func (a *App) TagNames() ([]string, error) {
	tags, err := a.store.ListTags(context.Background())
	if err != nil {
		return nil, err
	}
	names := make([]string, len(tags))
	for i, tg := range tags {
		names[i] = tg.Name
	}
	return names, nil
}

// Shutdown closes the local store
func (a *App) Shutdown() {
	a.ShutdownWithTimeout(5 * time.Second)
}

// ShutdownWithTimeout waits up to timeout for an in-flight sync before closing the store
func (a *App) ShutdownWithTimeout(timeout time.Duration) {
	if a.engine != nil {
		deadline := time.Now().Add(timeout)
		for a.engine.Manager.IsSyncing() && time.Now().Before(deadline) {
			time.Sleep(50 * time.Millisecond)
		}
	}
	if err := a.store.Close(); err != nil {
		utils.Warnf("failed to close local store: %v", err)
	}
}
