package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gomarks/backend"
	"gomarks/backend/sqlite"
	"gomarks/internal/cache"
	"gomarks/internal/config"
)

func createTestApp(t *testing.T) *App {
	t.Helper()
	cfg := config.Defaults()
	cfg.OwnerID = "owner-1"
	cfg.Database.Path = filepath.Join(t.TempDir(), "gomarks.db")

	a, err := New(&cfg, "")
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}
	t.Cleanup(a.Shutdown)
	return a
}

func mustCreateItem(t *testing.T, a *App, url string) *backend.Item {
	t.Helper()
	it, err := a.Store().CreateItem(context.Background(), sqlite.ItemInput{Kind: backend.KindBookmark, URL: url})
	if err != nil {
		t.Fatalf("Failed to create item: %v", err)
	}
	return it
}

func TestResolveItem(t *testing.T) {
	a := createTestApp(t)
	ctx := context.Background()
	it := mustCreateItem(t, a, "https://go.dev")

	got, err := a.ResolveItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, it.ID, got.ID)

	got, err = a.ResolveItem(ctx, it.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, it.ID, got.ID)

	_, err = a.ResolveItem(ctx, "does-not-exist")
	assert.ErrorIs(t, err, backend.ErrNotFound)

	_, err = a.ResolveItem(ctx, "")
	assert.ErrorIs(t, err, backend.ErrInvalidInput)
}

func TestResolveItemAmbiguousPrefix(t *testing.T) {
	a := createTestApp(t)
	for i := 0; i < 40; i++ {
		mustCreateItem(t, a, "https://example.com")
	}
	// forty random uuids share at least one leading hex digit
	items, err := a.Store().ListItems(context.Background(), sqlite.ItemFilter{})
	require.NoError(t, err)
	seen := map[byte]bool{}
	var prefix string
	for _, it := range items {
		if seen[it.ID[0]] {
			prefix = it.ID[:1]
			break
		}
		seen[it.ID[0]] = true
	}
	require.NotEmpty(t, prefix)

	_, err = a.ResolveItem(context.Background(), prefix)
	assert.ErrorIs(t, err, backend.ErrInvalidInput)
}

func TestResolveCollection(t *testing.T) {
	a := createTestApp(t)
	ctx := context.Background()
	work, err := a.Store().CreateCollection(ctx, "Work")
	require.NoError(t, err)

	for _, ref := range []string{"Work", "work", work.ID, work.ID[:6]} {
		got, err := a.ResolveCollection(ctx, ref)
		require.NoError(t, err, ref)
		assert.Equal(t, work.ID, got.ID)
	}

	def, err := a.ResolveCollection(ctx, "unsorted")
	require.NoError(t, err)
	assert.True(t, def.IsDefault)

	_, err = a.ResolveCollection(ctx, "Nope")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestResolveTag(t *testing.T) {
	a := createTestApp(t)
	ctx := context.Background()
	tg, err := a.Store().CreateTag(ctx, "Go Lang")
	require.NoError(t, err)

	got, err := a.ResolveTag(ctx, "go lang")
	require.NoError(t, err)
	assert.Equal(t, tg.ID, got.ID)

	got, err = a.ResolveTag(ctx, tg.ID)
	require.NoError(t, err)
	assert.Equal(t, tg.ID, got.ID)

	_, err = a.ResolveTag(ctx, "missing")
	assert.Error(t, err)

	names, err := a.TagNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"Go Lang"}, names)
}

func TestAfterWrite(t *testing.T) {
	a := createTestApp(t)
	var spawned []string
	a.spawn = func(path string) error {
		spawned = append(spawned, path)
		return errors.New("spawn failures are only logged")
	}
	a.configPath = "/tmp/gomarks.yaml"

	a.AfterWrite()
	assert.Empty(t, spawned, "auto-sync is off by default")

	a.config.Sync.Enabled = true
	a.AfterWrite()
	assert.Empty(t, spawned, "sync enabled alone does not spawn")

	a.config.Sync.AutoSync = true
	a.AfterWrite()
	assert.Equal(t, []string{"/tmp/gomarks.yaml"}, spawned)
}

func TestAfterWriteInvalidatesNameCache(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	a := createTestApp(t)

	require.NoError(t, cache.Save("owner-1", cache.Names{Collections: []string{"Unsorted"}}))
	a.AfterWrite()
	_, err := cache.Load("owner-1")
	assert.Error(t, err)
}

func TestEngineRequiresSync(t *testing.T) {
	a := createTestApp(t)
	_, err := a.Engine()
	assert.Error(t, err)
}
