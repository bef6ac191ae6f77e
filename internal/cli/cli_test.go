package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"gomarks/backend"
	"gomarks/backend/sqlite"
	backendsync "gomarks/backend/sync"
)

func TestItemLabel(t *testing.T) {
	tests := []struct {
		name string
		item backend.Item
		want string
	}{
		{"title wins", backend.Item{Title: "Go", URL: "https://go.dev"}, "Go"},
		{"url fallback", backend.Item{URL: "https://go.dev"}, "https://go.dev"},
		{"color", backend.Item{Kind: backend.KindColor, Color: "#ff0000"}, "#ff0000"},
		{"content flattened", backend.Item{Kind: backend.KindText, Content: "line one\nline two"}, "line one line two"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ItemLabel(tt.item))
		})
	}

	long := strings.Repeat("x", 80)
	assert.Equal(t, 50, len([]rune(ItemLabel(backend.Item{Content: long}))))
}

func TestPlural(t *testing.T) {
	assert.Equal(t, "1 item", plural(1, "item"))
	assert.Equal(t, "3 items", plural(3, "item"))
	assert.Equal(t, "2 entries", plural(2, "entry"))
	assert.Equal(t, "0 entities", plural(0, "entity"))
}

func TestShowItems(t *testing.T) {
	var buf bytes.Buffer
	ShowItems(&buf, nil, nil, nil)
	assert.Contains(t, buf.String(), "No items.")

	buf.Reset()
	items := []backend.Item{{
		ID: "0123456789abcdef", CollectionID: "c1", Kind: backend.KindBookmark,
		Title: "Go", URL: "https://go.dev",
		SyncMeta: backend.SyncMeta{SyncStatus: backend.StatusError, SyncError: "gave up after 3 retries"},
	}}
	tags := map[string][]backend.Tag{"0123456789abcdef": {{Slug: "lang"}}}
	ShowItems(&buf, items, map[string]string{"c1": "Reading"}, tags)

	out := buf.String()
	assert.Contains(t, out, "Items (1)")
	assert.Contains(t, out, "01234567")
	assert.Contains(t, out, "Reading")
	assert.Contains(t, out, "#lang")
	assert.Contains(t, out, "gave up after 3 retries")
}

func TestShowCollections(t *testing.T) {
	var buf bytes.Buffer
	ShowCollections(&buf, []backend.Collection{
		{ID: "c1", Name: "Unsorted", IsDefault: true},
		{ID: "c2", Name: "Work"},
	}, map[string]int{"c1": 2})

	out := buf.String()
	assert.Contains(t, out, "Unsorted")
	assert.Contains(t, out, "(default)")
	assert.Contains(t, out, "2 items")
	assert.Contains(t, out, "Work")
}

func TestShowSyncResult(t *testing.T) {
	var buf bytes.Buffer
	ShowSyncResult(&buf, &backendsync.SyncResult{
		Success:        false,
		ItemsSynced:    4,
		Chunks:         3,
		FailedChunks:   1,
		RetriesDropped: 1,
		Warnings:       []string{"pull failed: offline"},
		Errors:         []error{errors.New("chunk 2 failed")},
		Duration:       1500 * time.Millisecond,
	})

	out := buf.String()
	assert.Contains(t, out, "with failures")
	assert.Contains(t, out, "Items pushed")
	assert.Contains(t, out, "2/3")
	assert.Contains(t, out, "parked in error")
	assert.Contains(t, out, "pull failed: offline")
	assert.Contains(t, out, "chunk 2 failed")
	assert.NotContains(t, out, "Tags pushed", "zero rows are omitted")
}

func TestShowSyncStats(t *testing.T) {
	var buf bytes.Buffer
	online := false
	ShowSyncStats(&buf, &sqlite.SyncStats{
		Items:      sqlite.StatusCounts{backend.StatusSynced: 3, backend.StatusPending: 1},
		RetryQueue: 2,
		Parked:     1,
	}, &online)

	out := buf.String()
	assert.Contains(t, out, "offline")
	assert.Contains(t, out, "never")
	assert.Contains(t, out, "3 synced, 1 pending")
	assert.Contains(t, out, "2 entries")
	assert.Contains(t, out, "1 entity")
}

func TestShowRetryQueue(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ShowRetryQueue(&buf, []backend.RetryQueueEntry{{
		ID: "retry-1", EntityKind: backend.EntityItem, Payload: []byte(`{"items":[{"id":"a"}]}`),
		RetryCount: 1, MaxRetries: 3, NextRetryAt: now.Add(2 * time.Second), LastError: "timeout",
	}}, now)

	out := buf.String()
	assert.Contains(t, out, "Retry queue (1)")
	assert.Contains(t, out, "1 entity")
	assert.Contains(t, out, "attempt 1/3")
	assert.Contains(t, out, "in 2s")
	assert.Contains(t, out, "timeout")
}

func TestMatchPrefix(t *testing.T) {
	names := []string{"Reading", "recipes", "Work"}
	assert.Equal(t, []string{"Reading", "recipes"}, MatchPrefix(names, "re"))
	assert.Equal(t, names, MatchPrefix(names, ""))
	assert.Empty(t, MatchPrefix(names, "zzz"))
}

func TestWatchModel(t *testing.T) {
	triggered := 0
	m := NewWatchModel(30*time.Second, func() bool { return true }, func() { triggered++ })
	assert.NotNil(t, m.Init())

	updated, _ := m.Update(tickMsg(time.Now()))
	m = updated.(WatchModel)
	assert.True(t, m.isOnline)

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	m = updated.(WatchModel)
	assert.Equal(t, 1, triggered)

	for i := 0; i < historySize+2; i++ {
		updated, _ = m.Update(ResultMsg{Result: &backendsync.SyncResult{Success: true, ItemsSynced: i}})
		m = updated.(WatchModel)
	}
	assert.Equal(t, historySize+2, m.Cycles())
	assert.Len(t, m.history, historySize)
	assert.Contains(t, m.View(), "Last cycle succeeded")
	assert.Contains(t, m.View(), "online")

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = updated.(WatchModel)
	assert.NotNil(t, cmd)
	assert.Equal(t, "", m.View())
}
