package sync

import (
	"context"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gomarks/backend"
	"gomarks/backend/sqlite"
)

// TestSyncPushesPendingEntities tests a first cycle against an empty authority
func TestSyncPushesPendingEntities(t *testing.T) {
	dev, auth := createTestEnv(t, Config{})
	ctx := context.Background()

	it := mustCreateItem(t, dev.store, bookmark("https://go.dev"))
	_, err := dev.store.TagItem(ctx, it.ID, "Go")
	require.NoError(t, err)

	result := mustSync(t, dev.sm)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.ItemsSynced)
	assert.Equal(t, 1, result.CollectionsSynced)
	assert.Equal(t, 1, result.TagsSynced)
	assert.Equal(t, 1, result.ItemTagsSynced)
	assert.Empty(t, result.Errors)

	stats, err := dev.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Items[backend.StatusSynced])
	assert.Equal(t, 1, stats.Tags[backend.StatusSynced])
	assert.Equal(t, 1, stats.ItemTags[backend.StatusSynced])
	assert.NotNil(t, stats.LastSync)

	counts, err := auth.svc.Counts(testOwner)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["item"])
	assert.Equal(t, 1, counts["link"])
}

// TestSyncPushRoundTrip tests that the authority stores what was pushed, field for field
func TestSyncPushRoundTrip(t *testing.T) {
	dev, auth := createTestEnv(t, Config{})
	ctx := context.Background()
	it := mustCreateItem(t, dev.store, sqlite.ItemInput{Kind: backend.KindColor, Color: "#336699", Title: "slate"})

	result := mustSync(t, dev.sm)
	require.True(t, result.Success)

	local, err := dev.store.GetItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, backend.StatusSynced, local.SyncStatus)
	require.NotNil(t, local.LastSyncedAt)

	changes, err := auth.svc.Changes(ctx, testOwner, nil)
	require.NoError(t, err)
	var stored *backend.Item
	for i := range changes.Items {
		if changes.Items[i].ID == it.ID {
			stored = &changes.Items[i]
		}
	}
	require.NotNil(t, stored, "authority does not have the item")
	assert.Equal(t, it.Kind, stored.Kind)
	assert.Equal(t, it.Title, stored.Title)
	assert.Equal(t, it.Color, stored.Color)
	assert.Equal(t, it.CollectionID, stored.CollectionID)
	assert.True(t, it.UpdatedAt.Equal(stored.UpdatedAt))
}

// TestSyncIsIdempotent tests that a second cycle with no changes pushes nothing
func TestSyncIsIdempotent(t *testing.T) {
	dev, auth := createTestEnv(t, Config{})
	mustCreateItem(t, dev.store, bookmark("https://a.example"))
	mustSync(t, dev.sm)
	pushes := dev.remote.pushCount()

	auth.clock.Advance(time.Minute)
	result := mustSync(t, dev.sm)
	assert.True(t, result.Success)
	assert.Zero(t, result.Pushed())
	assert.Zero(t, result.Chunks)
	assert.Equal(t, pushes, dev.remote.pushCount())
	assert.Zero(t, result.Pulled)
}

// TestSyncChunksLargeBatches tests that a batch over the limit goes out in several chunks
func TestSyncChunksLargeBatches(t *testing.T) {
	dev, auth := createTestEnv(t, Config{ChunkSize: 5})
	for i := 0; i < 12; i++ {
		mustCreateItem(t, dev.store, sqlite.ItemInput{Kind: backend.KindText, Content: "note"})
	}

	result := mustSync(t, dev.sm)
	assert.True(t, result.Success)
	assert.GreaterOrEqual(t, result.Chunks, 3)
	assert.Equal(t, result.Chunks, dev.remote.pushCount())
	assert.Equal(t, 12, result.ItemsSynced)

	counts, err := auth.svc.Counts(testOwner)
	require.NoError(t, err)
	assert.Equal(t, 12, counts["item"])
}

// TestSyncPropagatesDeletions tests that acknowledged deletions are purged locally
func TestSyncPropagatesDeletions(t *testing.T) {
	dev, auth := createTestEnv(t, Config{})
	ctx := context.Background()

	it := mustCreateItem(t, dev.store, bookmark("https://doomed.example"))
	_, err := dev.store.TagItem(ctx, it.ID, "doomed")
	require.NoError(t, err)
	mustSync(t, dev.sm)

	require.NoError(t, dev.store.DeleteItem(ctx, it.ID))
	auth.clock.Advance(time.Minute)
	result := mustSync(t, dev.sm)
	assert.Equal(t, 1, result.ItemsDeleted)

	stats, err := dev.store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Items.Total(), "tombstone should be purged")

	counts, err := auth.svc.Counts(testOwner)
	require.NoError(t, err)
	assert.Zero(t, counts["item"])
	assert.Zero(t, counts["link"])
}

// TestSyncSecondDeviceAdoptsDefault tests that two replicas converge on one default collection
func TestSyncSecondDeviceAdoptsDefault(t *testing.T) {
	auth := createTestAuthority(t, newTestClock())
	a := createTestDevice(t, auth, Config{})
	b := createTestDevice(t, auth, Config{})
	ctx := context.Background()

	mustCreateItem(t, a.store, bookmark("https://from-a.example"))
	mustSync(t, a.sm)
	defA, err := a.store.DefaultCollection(ctx)
	require.NoError(t, err)

	auth.clock.Advance(time.Minute)
	mustCreateItem(t, b.store, bookmark("https://from-b.example"))
	mustSync(t, b.sm)

	defB, err := b.store.DefaultCollection(ctx)
	require.NoError(t, err)
	assert.Equal(t, defA.ID, defB.ID)

	defaults := 0
	cols, err := b.store.ListCollections(ctx)
	require.NoError(t, err)
	for _, c := range cols {
		if c.IsDefault {
			defaults++
		}
	}
	assert.Equal(t, 1, defaults)

	items, err := b.store.ListItems(ctx, sqlite.ItemFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

// TestSyncLastWriteWins tests that the newer edit survives on both replicas
func TestSyncLastWriteWins(t *testing.T) {
	auth := createTestAuthority(t, newTestClock())
	a := createTestDevice(t, auth, Config{})
	b := createTestDevice(t, auth, Config{})
	ctx := context.Background()

	it := mustCreateItem(t, a.store, bookmark("https://shared.example"))
	mustSync(t, a.sm)
	auth.clock.Advance(time.Minute)
	mustSync(t, b.sm)

	auth.clock.Advance(time.Minute)
	_, err := b.store.UpdateItem(ctx, it.ID, titleUpdate("older edit"))
	require.NoError(t, err)
	auth.clock.Advance(time.Minute)
	_, err = a.store.UpdateItem(ctx, it.ID, titleUpdate("newer edit"))
	require.NoError(t, err)

	auth.clock.Advance(time.Minute)
	mustSync(t, a.sm)

	auth.clock.Advance(time.Minute)
	result := mustSync(t, b.sm)
	assert.Zero(t, result.ItemsSynced, "stale edit must not be accepted")
	assert.NotEmpty(t, result.Warnings)

	got, err := b.store.GetItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, "newer edit", got.Title)
	assert.Equal(t, backend.StatusSynced, got.SyncStatus)
}

// TestSyncPullFailureIsWarning tests that a failed pull does not fail the cycle
func TestSyncPullFailureIsWarning(t *testing.T) {
	dev, _ := createTestEnv(t, Config{})
	mustCreateItem(t, dev.store, bookmark("https://a.example"))
	dev.remote.set(func(f *fakeRemote) { f.failPull = true })

	result := mustSync(t, dev.sm)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.ItemsSynced)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[len(result.Warnings)-1], "pull failed")
}

// TestSyncRejectsConcurrentCycles tests that only one cycle runs at a time
func TestSyncRejectsConcurrentCycles(t *testing.T) {
	dev, _ := createTestEnv(t, Config{})
	mustCreateItem(t, dev.store, bookmark("https://a.example"))

	started := make(chan struct{})
	release := make(chan struct{})
	var once stdsync.Once
	dev.remote.set(func(f *fakeRemote) {
		f.beforePush = func() {
			once.Do(func() { close(started) })
			<-release
		}
	})

	done := make(chan *SyncResult, 1)
	go func() {
		result, err := dev.sm.Sync(context.Background())
		if err != nil {
			t.Errorf("background sync failed: %v", err)
		}
		done <- result
	}()

	<-started
	assert.True(t, dev.sm.IsSyncing())
	before, err := dev.store.Stats(context.Background())
	require.NoError(t, err)
	_, err = dev.sm.Sync(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)
	after, err := dev.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, after, "a rejected call must not change any state")

	close(release)
	result := <-done
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.False(t, dev.sm.IsSyncing())
	assert.Same(t, result, dev.sm.LastResult())
}

// TestSyncRejectsCycleOnSameDatabase tests that a second process sharing the
// database file cannot start a cycle while one is running
func TestSyncRejectsCycleOnSameDatabase(t *testing.T) {
	dev, auth := createTestEnv(t, Config{})
	ctx := context.Background()
	mustCreateItem(t, dev.store, bookmark("https://a.example"))

	other, err := sqlite.Open(dev.store.DB().Path(), testOwner)
	require.NoError(t, err)
	t.Cleanup(func() { other.Close() })
	other.SetClock(auth.clock.Now)
	otherSM := NewSyncManager(other, dev.remote, Config{})

	started := make(chan struct{})
	release := make(chan struct{})
	var once stdsync.Once
	dev.remote.set(func(f *fakeRemote) {
		f.beforePush = func() {
			once.Do(func() { close(started) })
			<-release
		}
	})

	done := make(chan *SyncResult, 1)
	go func() {
		result, err := dev.sm.Sync(context.Background())
		if err != nil {
			t.Errorf("background sync failed: %v", err)
		}
		done <- result
	}()

	<-started
	before, err := other.Stats(ctx)
	require.NoError(t, err)
	_, err = otherSM.Sync(ctx)
	assert.ErrorIs(t, err, ErrSyncInProgress)
	assert.False(t, otherSM.IsSyncing())
	after, err := other.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	close(release)
	result := <-done
	require.NotNil(t, result)
	assert.True(t, result.Success)

	// the lock is free again once the first cycle is done
	auth.clock.Advance(time.Minute)
	result = mustSync(t, otherSM)
	assert.True(t, result.Success)
	assert.Zero(t, result.Pushed())
}

// TestSyncRecoversUnfinishedCycle tests that entities left in flight by a cycle
// that never finished are pushed by the next one
func TestSyncRecoversUnfinishedCycle(t *testing.T) {
	dev, _ := createTestEnv(t, Config{})
	ctx := context.Background()
	it := mustCreateItem(t, dev.store, bookmark("https://stranded.example"))
	_, err := dev.store.TagItem(ctx, it.ID, "stranded")
	require.NoError(t, err)

	// the process died after marking the batch in flight
	batch, err := NewCollector(dev.store).Collect(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, NewReconciler(dev.store).MarkInFlight(ctx, batch))

	_, err = dev.store.UpdateItem(ctx, it.ID, titleUpdate("edited after the crash"))
	require.NoError(t, err)
	got, err := dev.store.GetItem(ctx, it.ID)
	require.NoError(t, err)
	require.Equal(t, backend.StatusSyncing, got.SyncStatus)

	result := mustSync(t, dev.sm)
	assert.True(t, result.Success)
	assert.Equal(t, 4, result.Recovered)
	assert.Equal(t, 1, result.ItemsSynced)
	assert.Equal(t, 1, result.TagsSynced)
	assert.Equal(t, 1, result.ItemTagsSynced)

	got, err = dev.store.GetItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, backend.StatusSynced, got.SyncStatus)
	assert.Equal(t, "edited after the crash", got.Title)

	stats, err := dev.store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Items[backend.StatusSyncing])
	assert.Zero(t, stats.Collections[backend.StatusSyncing])
	assert.Zero(t, stats.Tags[backend.StatusSyncing])
	assert.Zero(t, stats.ItemTags[backend.StatusSyncing])
}

// TestSyncSameTagNameOnTwoDevicesSettles tests that a tag created under the same
// name on two devices converges on the authority's tag
func TestSyncSameTagNameOnTwoDevicesSettles(t *testing.T) {
	auth := createTestAuthority(t, newTestClock())
	a := createTestDevice(t, auth, Config{})
	b := createTestDevice(t, auth, Config{})
	ctx := context.Background()

	itA := mustCreateItem(t, a.store, bookmark("https://from-a.example"))
	tagA, err := a.store.TagItem(ctx, itA.ID, "Go")
	require.NoError(t, err)
	mustSync(t, a.sm)

	itB := mustCreateItem(t, b.store, bookmark("https://from-b.example"))
	tagB, err := b.store.TagItem(ctx, itB.ID, "go")
	require.NoError(t, err)
	require.NotEqual(t, tagA.ID, tagB.ID)

	for i := 0; i < 3; i++ {
		auth.clock.Advance(time.Minute)
		mustSync(t, b.sm)
	}
	auth.clock.Advance(time.Minute)
	result := mustSync(t, b.sm)
	assert.Zero(t, result.Pushed())
	assert.Zero(t, result.Chunks)
	assert.Empty(t, result.Warnings)

	tags, err := b.store.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, tagA.ID, tags[0].ID)

	linked, err := b.store.TagsForItem(ctx, itB.ID)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, tagA.ID, linked[0].ID)

	counts, err := auth.svc.Counts(testOwner)
	require.NoError(t, err)
	assert.Equal(t, 2, counts["item"])
	assert.Equal(t, 2, counts["link"])
}

// TestSyncEditDuringFlight tests that an entity edited while in flight is pushed again
func TestSyncEditDuringFlight(t *testing.T) {
	dev, _ := createTestEnv(t, Config{})
	ctx := context.Background()
	it := mustCreateItem(t, dev.store, bookmark("https://moving.example"))

	var once stdsync.Once
	dev.remote.set(func(f *fakeRemote) {
		f.beforePush = func() {
			once.Do(func() {
				if _, err := dev.store.UpdateItem(ctx, it.ID, titleUpdate("edited in flight")); err != nil {
					t.Errorf("Failed to edit item: %v", err)
				}
			})
		}
	})

	result := mustSync(t, dev.sm)
	assert.Equal(t, 1, result.Requeued)

	got, err := dev.store.GetItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, backend.StatusPending, got.SyncStatus)

	result = mustSync(t, dev.sm)
	assert.Equal(t, 1, result.ItemsSynced)
	got, err = dev.store.GetItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, backend.StatusSynced, got.SyncStatus)
}

// TestSyncIgnoresCancellation tests that a started cycle completes with a cancelled context
func TestSyncIgnoresCancellation(t *testing.T) {
	dev, _ := createTestEnv(t, Config{})
	mustCreateItem(t, dev.store, bookmark("https://a.example"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := dev.sm.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.ItemsSynced)
}

type recordingObserver struct {
	mu      stdsync.Mutex
	results []*SyncResult
}

func (o *recordingObserver) ObserveSync(r *SyncResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, r)
}

// TestSyncNotifiesObservers tests that observers see every cycle
func TestSyncNotifiesObservers(t *testing.T) {
	dev, _ := createTestEnv(t, Config{})
	obs := &recordingObserver{}
	dev.sm.AddObserver(obs)

	mustSync(t, dev.sm)
	mustSync(t, dev.sm)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Len(t, obs.results, 2)
	assert.Contains(t, obs.results[0].Summary(), "pushed")
}
