package authority

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gomarks/backend"
)

const testOwner = "owner-a"

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// createTestService opens an in-memory authority with a fixed clock
func createTestService(t *testing.T) *Service {
	t.Helper()
	store, err := OpenStore("", nil)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	svc := NewService(store, nil)
	svc.SetClock(func() time.Time { return epoch })
	return svc
}

func meta(updated time.Time) backend.SyncMeta {
	return backend.SyncMeta{CreatedAt: epoch, UpdatedAt: updated}
}

func collection(id string, def bool, updated time.Time) backend.Collection {
	name := "Reading"
	if def {
		name = DefaultCollectionName
	}
	return backend.Collection{ID: id, OwnerID: testOwner, Name: name, IsDefault: def, SyncMeta: meta(updated)}
}

func bookmark(id, collectionID string, updated time.Time) backend.Item {
	return backend.Item{
		ID: id, OwnerID: testOwner, CollectionID: collectionID,
		Kind: backend.KindBookmark, Title: id, URL: "https://example.com/" + id,
		SyncMeta: meta(updated),
	}
}

func tag(id, name string, updated time.Time) backend.Tag {
	return backend.Tag{ID: id, OwnerID: testOwner, Name: name, Slug: backend.Slugify(name), SyncMeta: meta(updated)}
}

func apply(t *testing.T, svc *Service, chunk *backend.SyncBatch) *backend.Ack {
	t.Helper()
	chunk.Normalize()
	ack, err := svc.Apply(context.Background(), testOwner, chunk)
	require.NoError(t, err)
	require.True(t, ack.Success)
	return ack
}

func changes(t *testing.T, svc *Service, since *time.Time) *backend.SyncBatch {
	t.Helper()
	batch, err := svc.Changes(context.Background(), testOwner, since)
	require.NoError(t, err)
	return batch
}

// TestApplyUpsertsAndAcks tests that accepted entities are listed in the ack and stored
func TestApplyUpsertsAndAcks(t *testing.T) {
	svc := createTestService(t)

	ack := apply(t, svc, &backend.SyncBatch{
		Collections: []backend.Collection{collection("c-def", true, epoch)},
		Tags:        []backend.Tag{tag("t-go", "Go", epoch)},
		Items:       []backend.Item{bookmark("i-1", "c-def", epoch)},
		ItemTags:    []backend.ItemTag{{ItemID: "i-1", TagID: "t-go"}},
	})

	assert.Equal(t, []string{"c-def"}, ack.Synced.Collections)
	assert.Equal(t, []string{"t-go"}, ack.Synced.Tags)
	assert.Equal(t, []string{"i-1"}, ack.Synced.Items)
	assert.Equal(t, []backend.ItemTag{{ItemID: "i-1", TagID: "t-go"}}, ack.Synced.ItemTags)
	assert.Empty(t, ack.Conflicts)

	all := changes(t, svc, nil)
	assert.Len(t, all.Collections, 1)
	assert.Len(t, all.Tags, 1)
	assert.Len(t, all.Items, 1)
	assert.Len(t, all.ItemTags, 1)
	assert.Empty(t, all.Items[0].SyncStatus)
}

// TestApplyIsIdempotent tests that replaying a chunk changes nothing and acks the same ids
func TestApplyIsIdempotent(t *testing.T) {
	svc := createTestService(t)
	chunk := &backend.SyncBatch{
		Collections: []backend.Collection{collection("c-def", true, epoch)},
		Items:       []backend.Item{bookmark("i-1", "c-def", epoch)},
		Deletions:   backend.Deletions{ItemIDs: []string{"gone"}},
	}

	first := apply(t, svc, chunk)
	second := apply(t, svc, chunk)

	assert.Equal(t, first.Synced, second.Synced)
	assert.Equal(t, first.Deleted, second.Deleted)
	assert.Equal(t, []string{"gone"}, second.Deleted.Items)

	counts, err := svc.Counts(testOwner)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[kindItem])
	assert.Equal(t, 1, counts[kindCollection])
}

// TestApplyLastWriteWins tests that an older push is reported as a conflict
func TestApplyLastWriteWins(t *testing.T) {
	svc := createTestService(t)
	apply(t, svc, &backend.SyncBatch{Collections: []backend.Collection{collection("c-def", true, epoch)}})

	newer := bookmark("i-1", "c-def", epoch.Add(time.Minute))
	newer.Title = "newer"
	apply(t, svc, &backend.SyncBatch{Items: []backend.Item{newer}})

	older := bookmark("i-1", "c-def", epoch)
	older.Title = "older"
	ack := apply(t, svc, &backend.SyncBatch{Items: []backend.Item{older}})

	assert.Empty(t, ack.Synced.Items)
	require.Len(t, ack.Conflicts, 1)
	assert.Equal(t, backend.EntityItem, ack.Conflicts[0].Entity)
	assert.Equal(t, "i-1", ack.Conflicts[0].EntityID)

	all := changes(t, svc, nil)
	require.Len(t, all.Items, 1)
	assert.Equal(t, "newer", all.Items[0].Title)
}

// TestApplySecondDefaultIsCoerced tests that an owner never ends up with two defaults
func TestApplySecondDefaultIsCoerced(t *testing.T) {
	svc := createTestService(t)
	apply(t, svc, &backend.SyncBatch{Collections: []backend.Collection{collection("c-1", true, epoch)}})

	ack := apply(t, svc, &backend.SyncBatch{Collections: []backend.Collection{collection("c-2", true, epoch)}})
	assert.Equal(t, []string{"c-2"}, ack.Synced.Collections)
	require.Len(t, ack.Conflicts, 1)
	assert.Equal(t, "c-2", ack.Conflicts[0].EntityID)

	defaults := 0
	for _, c := range changes(t, svc, nil).Collections {
		if c.IsDefault {
			defaults++
			assert.Equal(t, "c-1", c.ID)
		}
	}
	assert.Equal(t, 1, defaults)
}

// TestApplyUnknownCollection tests that items are refiled under the default collection
func TestApplyUnknownCollection(t *testing.T) {
	svc := createTestService(t)

	ack := apply(t, svc, &backend.SyncBatch{Items: []backend.Item{bookmark("i-1", "missing", epoch)}})
	assert.Equal(t, []string{"i-1"}, ack.Synced.Items)
	require.Len(t, ack.Conflicts, 1)

	all := changes(t, svc, nil)
	require.Len(t, all.Collections, 1)
	assert.True(t, all.Collections[0].IsDefault)
	require.Len(t, all.Items, 1)
	assert.Equal(t, all.Collections[0].ID, all.Items[0].CollectionID)
	assert.True(t, all.Items[0].UpdatedAt.After(epoch))
}

// TestApplyTagSlugClash tests that two live tags cannot share a slug
func TestApplyTagSlugClash(t *testing.T) {
	svc := createTestService(t)
	apply(t, svc, &backend.SyncBatch{Tags: []backend.Tag{tag("t-1", "Go Lang", epoch)}})

	ack := apply(t, svc, &backend.SyncBatch{Tags: []backend.Tag{tag("t-2", "go-lang", epoch)}})
	assert.Empty(t, ack.Synced.Tags)
	require.Len(t, ack.Conflicts, 1)
	assert.Equal(t, backend.EntityTag, ack.Conflicts[0].Entity)
}

// TestApplyReplacesLinkSet tests that an accepted item's links are exactly those pushed with it
func TestApplyReplacesLinkSet(t *testing.T) {
	svc := createTestService(t)
	apply(t, svc, &backend.SyncBatch{
		Collections: []backend.Collection{collection("c-def", true, epoch)},
		Tags:        []backend.Tag{tag("t-1", "one", epoch), tag("t-2", "two", epoch)},
		Items:       []backend.Item{bookmark("i-1", "c-def", epoch)},
		ItemTags:    []backend.ItemTag{{ItemID: "i-1", TagID: "t-1"}, {ItemID: "i-1", TagID: "t-2"}},
	})

	ack := apply(t, svc, &backend.SyncBatch{
		Items:    []backend.Item{bookmark("i-1", "c-def", epoch.Add(time.Second))},
		ItemTags: []backend.ItemTag{{ItemID: "i-1", TagID: "t-2"}},
	})
	assert.Equal(t, []backend.ItemTag{{ItemID: "i-1", TagID: "t-2"}}, ack.Synced.ItemTags)

	all := changes(t, svc, nil)
	assert.Equal(t, []backend.ItemTag{{ItemID: "i-1", TagID: "t-2"}}, all.ItemTags)
}

// TestApplyDanglingLink tests that links to unknown entities are not acknowledged
func TestApplyDanglingLink(t *testing.T) {
	svc := createTestService(t)
	ack := apply(t, svc, &backend.SyncBatch{ItemTags: []backend.ItemTag{{ItemID: "nope", TagID: "nada"}}})
	assert.Empty(t, ack.Synced.ItemTags)
	assert.Empty(t, changes(t, svc, nil).ItemTags)
}

// TestApplyDeletions tests item, tag and collection deletion
func TestApplyDeletions(t *testing.T) {
	svc := createTestService(t)
	apply(t, svc, &backend.SyncBatch{
		Collections: []backend.Collection{collection("c-def", true, epoch), collection("c-2", false, epoch)},
		Tags:        []backend.Tag{tag("t-1", "one", epoch)},
		Items:       []backend.Item{bookmark("i-1", "c-2", epoch), bookmark("i-2", "c-2", epoch)},
		ItemTags:    []backend.ItemTag{{ItemID: "i-1", TagID: "t-1"}, {ItemID: "i-2", TagID: "t-1"}},
	})

	ack := apply(t, svc, &backend.SyncBatch{Deletions: backend.Deletions{
		ItemIDs:       []string{"i-1"},
		TagIDs:        []string{"t-1"},
		CollectionIDs: []string{"c-2", "c-def"},
	}})

	assert.Equal(t, []string{"i-1"}, ack.Deleted.Items)
	assert.Equal(t, []string{"t-1"}, ack.Deleted.Tags)
	assert.Equal(t, []string{"c-2"}, ack.Deleted.Collections)
	require.Len(t, ack.Conflicts, 1)
	assert.Equal(t, "c-def", ack.Conflicts[0].EntityID)

	all := changes(t, svc, nil)
	require.Len(t, all.Items, 1)
	assert.Equal(t, "c-def", all.Items[0].CollectionID)
	assert.Empty(t, all.ItemTags)
	assert.Empty(t, all.Tags)
	require.Len(t, all.Collections, 1)
	assert.Equal(t, "c-def", all.Collections[0].ID)
}

// TestChangesSince tests the pull watermark filter
func TestChangesSince(t *testing.T) {
	svc := createTestService(t)
	now := epoch
	svc.SetClock(func() time.Time { return now })

	apply(t, svc, &backend.SyncBatch{Collections: []backend.Collection{collection("c-def", true, epoch)}})
	mark := now
	now = now.Add(time.Minute)
	apply(t, svc, &backend.SyncBatch{Items: []backend.Item{bookmark("i-1", "c-def", epoch)}})

	later := changes(t, svc, &mark)
	assert.Empty(t, later.Collections)
	require.Len(t, later.Items, 1)
	assert.NotNil(t, later.Tags)

	assert.Len(t, changes(t, svc, nil).Collections, 1)
}

// TestOwnerIsolation tests that owners never see each other's records
func TestOwnerIsolation(t *testing.T) {
	svc := createTestService(t)
	apply(t, svc, &backend.SyncBatch{Collections: []backend.Collection{collection("c-def", true, epoch)}})

	other, err := svc.Changes(context.Background(), "owner-b", nil)
	require.NoError(t, err)
	assert.Empty(t, other.Collections)
}
