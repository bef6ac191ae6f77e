package sync

import (
	"errors"
	"fmt"

	"gomarks/backend/remote"
	"gomarks/backend/sqlite"
	backendsync "gomarks/backend/sync"
	"gomarks/internal/config"
	"gomarks/internal/credentials"
	"gomarks/internal/utils"
)

// Engine bundles everything a sync cycle needs, built from the configuration
type Engine struct {
	Store   *sqlite.Store
	Client  *remote.Client
	Manager *backendsync.SyncManager
}

// OpenStore opens the local store configured in cfg
func OpenStore(cfg *config.Config) (*sqlite.Store, error) {
	path, err := cfg.DatabasePath()
	if err != nil {
		return nil, err
	}
	return sqlite.Open(path, cfg.OwnerID)
}

// OpenEngine opens the local store and connects it to the configured authority.
// Closing the engine closes the store.
func OpenEngine(cfg *config.Config) (*Engine, error) {
	if !cfg.Sync.Enabled {
		return nil, utils.ErrSyncNotEnabled()
	}
	store, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	engine, err := NewEngine(cfg, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	return engine, nil
}

// NewEngine connects an open store to the configured authority.
// A missing token is not an error: the authority may not require one.
func NewEngine(cfg *config.Config, store *sqlite.Store) (*Engine, error) {
	if !cfg.Sync.Enabled {
		return nil, utils.ErrSyncNotEnabled()
	}

	creds, err := credentials.NewResolver().Resolve(cfg.Remote.BaseURL, cfg.OwnerID)
	if err != nil {
		if !errors.Is(err, credentials.ErrNotFound) {
			return nil, err
		}
		utils.Debugf("no token for %s, connecting without one", cfg.Remote.BaseURL)
	} else {
		utils.Debugf("using token from %s", creds.Source)
	}

	client, err := remote.NewClient(remote.Config{
		BaseURL:           cfg.Remote.BaseURL,
		Token:             creds.Token,
		OwnerID:           cfg.OwnerID,
		Timeout:           cfg.Remote.Timeout(),
		RequestsPerSecond: cfg.Remote.RequestsPerSecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create remote client: %w", err)
	}

	manager := backendsync.NewSyncManager(store, client, backendsync.Config{
		ChunkSize:      cfg.Sync.ChunkSize,
		MaxRetries:     cfg.Sync.MaxRetries,
		BaseRetryDelay: cfg.Sync.BaseRetryDelay(),
	})
	manager.AddObserver(NewMetricsObserver(store))

	return &Engine{Store: store, Client: client, Manager: manager}, nil
}

// Close closes the local store
func (e *Engine) Close() error {
	return e.Store.Close()
}
