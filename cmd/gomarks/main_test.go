package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"gomarks/backend/authority"
	"gomarks/internal/config"
	"gomarks/internal/credentials"
	gsync "gomarks/internal/sync"
)

func createTestConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg := config.Defaults()
	cfg.OwnerID = "owner-1"
	cfg.Database.Path = filepath.Join(t.TempDir(), "gomarks.db")
	return &cfg
}

// runCommand executes the CLI with args against cfg and returns its output
func runCommand(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(func() (*config.Config, error) { return cfg, nil })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, cfg *config.Config, args ...string) string {
	t.Helper()
	out, err := runCommand(t, cfg, args...)
	if err != nil {
		t.Fatalf("Failed to run %v: %v\n%s", args, err, out)
	}
	return out
}

func TestItemLifecycle(t *testing.T) {
	cfg := createTestConfig(t)

	mustRun(t, cfg, "collection", "add", "Reading")
	out := mustRun(t, cfg, "item", "add", "bookmark", "https://go.dev", "--title", "Go", "-c", "reading", "--tag", "lang", "-o", "json")

	var added map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	id, _ := added["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "Reading", added["collectionName"])

	out = mustRun(t, cfg, "item", "edit", id[:8], "--title", "The Go website", "-o", "json")
	assert.Contains(t, out, `"title": "The Go website"`)

	out = mustRun(t, cfg, "item", "list", "--tag", "lang", "-o", "json")
	var listed []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, id, listed[0]["id"])

	out = mustRun(t, cfg, "item", "move", id, "Unsorted")
	assert.Contains(t, out, "Moved "+id)

	out = mustRun(t, cfg, "item", "rm", id)
	assert.Contains(t, out, "Removed "+id)

	_, err := runCommand(t, cfg, "item", "show", id)
	assert.Error(t, err)
}

func TestItemAddRejectsUnknownKind(t *testing.T) {
	cfg := createTestConfig(t)
	_, err := runCommand(t, cfg, "item", "add", "video", "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "video")
}

func TestCollectionAndTagCommands(t *testing.T) {
	cfg := createTestConfig(t)

	mustRun(t, cfg, "collection", "add", "Work")
	mustRun(t, cfg, "collection", "rename", "work", "Office")
	out := mustRun(t, cfg, "collection", "list", "-o", "json")
	assert.Contains(t, out, `"name": "Office"`)
	assert.Contains(t, out, `"name": "Unsorted"`)

	_, err := runCommand(t, cfg, "collection", "rm", "Unsorted")
	assert.Error(t, err)

	out = mustRun(t, cfg, "tag", "add", "Go Lang")
	assert.Contains(t, out, "go-lang")
	mustRun(t, cfg, "tag", "rename", "go-lang", "golang")
	mustRun(t, cfg, "tag", "rm", "golang")
	out = mustRun(t, cfg, "tag", "list", "-o", "json")
	assert.NotContains(t, out, "golang")
}

func TestSyncRequiresEnabled(t *testing.T) {
	cfg := createTestConfig(t)
	_, err := runCommand(t, cfg, "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync")

	out := mustRun(t, cfg, "sync", "status", "-o", "json")
	assert.Contains(t, out, `"retryQueue": 0`)
}

func TestSyncAgainstAuthority(t *testing.T) {
	keyring.MockInit()
	t.Setenv(credentials.EnvToken, "")
	testChdir(t, t.TempDir())

	store, err := authority.OpenStore("", nil)
	if err != nil {
		t.Fatalf("Failed to open authority store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	server := httptest.NewServer(authority.NewServer(authority.NewService(store, nil), "secret", nil))
	t.Cleanup(server.Close)

	cfg := createTestConfig(t)
	cfg.Sync.Enabled = true
	cfg.Remote.BaseURL = server.URL

	out := mustRun(t, cfg, "credentials", "get")
	assert.Contains(t, out, "No token found")

	mustRun(t, cfg, "credentials", "set", "secret")
	out = mustRun(t, cfg, "credentials", "get")
	assert.Contains(t, out, string(credentials.SourceKeyring))

	mustRun(t, cfg, "item", "add", "text", "remember the milk", "--tag", "todo")

	out = mustRun(t, cfg, "sync", "-o", "json")
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, true, result["success"])
	assert.EqualValues(t, 1, result["itemsSynced"])

	out = mustRun(t, cfg, "sync", "status", "--probe", "-o", "json")
	assert.Contains(t, out, `"online": true`)

	out = mustRun(t, cfg, "sync", "queue", "clear")
	assert.Contains(t, out, "Cleared 0")

	mustRun(t, cfg, "credentials", "delete", "--force")
	_, err = credentials.Get(server.URL, "owner-1")
	assert.ErrorIs(t, err, credentials.ErrNotFound)
}

func TestBackgroundCommandIsHidden(t *testing.T) {
	root := newRootCmd(defaultLoadConfig)
	cmd, _, err := root.Find([]string{gsync.BackgroundCommand})
	require.NoError(t, err)
	assert.True(t, cmd.Hidden)
}
