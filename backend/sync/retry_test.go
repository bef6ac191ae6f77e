package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gomarks/backend"
)

// TestBackoffDelay tests the exponential schedule
func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		count int
		want  time.Duration
	}{
		{-1, time.Second},
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{5, 32 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BackoffDelay(time.Second, tt.count), "count %d", tt.count)
	}
}

// TestRetryBackoffSchedule tests that a failed chunk is held, released on schedule and settled
func TestRetryBackoffSchedule(t *testing.T) {
	dev, auth := createTestEnv(t, Config{})
	ctx := context.Background()
	mustCreateItem(t, dev.store, bookmark("https://flaky.example"))
	dev.remote.set(func(f *fakeRemote) { f.failPushes = 2 })

	// First attempt fails and queues the chunk
	result := mustSync(t, dev.sm)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.FailedChunks)
	entries, err := dev.store.RetryEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 0, entries[0].RetryCount)
	assert.True(t, auth.clock.Now().Add(time.Second).Equal(entries[0].NextRetryAt))

	stats, err := dev.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Items[backend.StatusError])

	// Not due yet: nothing is transmitted
	pushes := dev.remote.pushCount()
	result = mustSync(t, dev.sm)
	assert.True(t, result.Success)
	assert.Zero(t, result.Chunks)
	assert.Equal(t, pushes, dev.remote.pushCount())

	// Due: released, fails again, keeps one entry
	auth.clock.Advance(time.Second)
	result = mustSync(t, dev.sm)
	assert.Equal(t, 1, result.RetriesReleased)
	assert.Equal(t, 1, result.FailedChunks)
	entries, err = dev.store.RetryEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].RetryCount)
	assert.True(t, auth.clock.Now().Add(2*time.Second).Equal(entries[0].NextRetryAt))

	// Due again: succeeds and the entry is settled
	auth.clock.Advance(2 * time.Second)
	result = mustSync(t, dev.sm)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.ItemsSynced)
	entries, err = dev.store.RetryEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestRetryExhaustionParksEntities tests that entities stop syncing once retries run out
func TestRetryExhaustionParksEntities(t *testing.T) {
	dev, auth := createTestEnv(t, Config{MaxRetries: 1})
	ctx := context.Background()
	it := mustCreateItem(t, dev.store, bookmark("https://down.example"))
	dev.remote.set(func(f *fakeRemote) { f.failPushes = -1 })

	mustSync(t, dev.sm)
	auth.clock.Advance(time.Second)
	mustSync(t, dev.sm)

	auth.clock.Advance(2 * time.Second)
	result := mustSync(t, dev.sm)
	assert.Equal(t, 1, result.RetriesDropped)
	assert.Zero(t, result.Chunks)
	require.NotEmpty(t, result.Errors)

	entries, err := dev.store.RetryEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	stats, err := dev.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Parked, "item and default collection")

	got, err := dev.store.GetItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, backend.StatusError, got.SyncStatus)
	assert.Contains(t, got.SyncError, "gave up")

	// A local edit brings the item back once the authority recovers
	dev.remote.set(func(f *fakeRemote) { f.failPushes = 0 })
	_, err = dev.store.UpdateItem(ctx, it.ID, titleUpdate("retry me"))
	require.NoError(t, err)
	auth.clock.Advance(time.Second)
	result = mustSync(t, dev.sm)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.ItemsSynced)
}

// TestRetryRecordFailureMergesCoveredEntities tests that an entity is never queued twice
func TestRetryRecordFailureMergesCoveredEntities(t *testing.T) {
	dev, _ := createTestEnv(t, Config{})
	ctx := context.Background()
	sched := NewRetryScheduler(dev.store, 3, time.Second)

	first := &backend.SyncBatch{Items: []backend.Item{{ID: "i-1"}}}
	second := &backend.SyncBatch{Items: []backend.Item{{ID: "i-1"}, {ID: "i-2"}}}

	require.NoError(t, sched.RecordFailure(ctx, first, errUnreachable))
	require.NoError(t, sched.RecordFailure(ctx, second, errUnreachable))

	entries, err := dev.store.RetryEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	seen := make(map[string]int)
	for _, e := range entries {
		chunk, err := e.Chunk()
		require.NoError(t, err)
		for _, key := range chunk.Refs().Keys() {
			seen[key]++
		}
	}
	assert.Equal(t, 1, seen[backend.RefKey(backend.EntityItem, "i-1")])
	assert.Equal(t, 1, seen[backend.RefKey(backend.EntityItem, "i-2")])
}
