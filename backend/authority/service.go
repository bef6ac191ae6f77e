package authority

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gomarks/backend"
)

// DefaultCollectionName names a default collection the authority has to create itself
const DefaultCollectionName = "Unsorted"

// Service applies pushed chunks and serves changes. Writes are serialized.
type Service struct {
	store  *Store
	logger *slog.Logger
	clock  func() time.Time

	mu   sync.Mutex
	last int64 // last change stamp handed out, unix ms
}

// NewService creates a Service over store
func NewService(store *Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, clock: time.Now}
}

// SetClock replaces the time source; used by tests
func (s *Service) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// stamp returns a change time strictly after every previous one
func (s *Service) stamp() int64 {
	now := s.clock().UnixMilli()
	if now <= s.last {
		now = s.last + 1
	}
	s.last = now
	return now
}

// applyState carries one chunk through its phases
type applyState struct {
	t        *ownerTxn
	ack      *backend.Ack
	accepted map[string]bool // item ids whose upsert was taken
	now      time.Time
	def      *backend.Collection
}

func (a *applyState) conflict(kind backend.EntityKind, id, reason string) {
	a.ack.Conflicts = append(a.ack.Conflicts, backend.Conflict{Entity: kind, EntityID: id, Reason: reason})
}

// Apply upserts and deletes the contents of one chunk for owner and returns the acknowledgement.
// Upserts are last-write-wins on updatedAt; a replay with the same updatedAt is acknowledged
// without rewriting. Deletions are idempotent.
func (s *Service) Apply(_ context.Context, owner string, chunk *backend.SyncBatch) (*backend.Ack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changedAt := s.stamp()
	ack := backend.NewAck()

	err := s.store.update(owner, changedAt, func(t *ownerTxn) error {
		st := &applyState{t: t, ack: ack, accepted: make(map[string]bool), now: time.UnixMilli(changedAt).UTC()}

		for _, c := range chunk.Collections {
			if err := st.upsertCollection(owner, c); err != nil {
				return err
			}
		}
		for _, tg := range chunk.Tags {
			if err := st.upsertTag(owner, tg); err != nil {
				return err
			}
		}
		for _, it := range chunk.Items {
			if err := st.upsertItem(owner, it); err != nil {
				return err
			}
		}
		if err := st.applyLinks(chunk); err != nil {
			return err
		}
		return st.applyDeletions(owner, chunk.Deletions)
	})
	if err != nil {
		return nil, fmt.Errorf("apply chunk: %w", err)
	}

	s.logger.Debug("chunk applied",
		"owner_id", owner,
		"synced_items", len(ack.Synced.Items),
		"synced_collections", len(ack.Synced.Collections),
		"synced_tags", len(ack.Synced.Tags),
		"synced_links", len(ack.Synced.ItemTags),
		"conflicts", len(ack.Conflicts),
	)
	return ack, nil
}

// stale reports whether stored is strictly newer than incoming
func stale(stored, incoming time.Time) bool {
	return stored.After(incoming)
}

func (a *applyState) defaultCollection() (*backend.Collection, error) {
	if a.def != nil {
		return a.def, nil
	}
	var found *backend.Collection
	err := a.t.scan(kindCollection, func(_ string, env envelope) error {
		var c backend.Collection
		if err := decodeValue(env, &c); err != nil {
			return err
		}
		if c.IsDefault {
			found = &c
		}
		return nil
	})
	a.def = found
	return found, err
}

// ensureDefault returns the owner's default collection, creating one if none exists
func (a *applyState) ensureDefault(owner string) (*backend.Collection, error) {
	def, err := a.defaultCollection()
	if err != nil || def != nil {
		return def, err
	}
	def = &backend.Collection{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		Name:      DefaultCollectionName,
		IsDefault: true,
		SyncMeta:  backend.SyncMeta{CreatedAt: a.now, UpdatedAt: a.now},
	}
	if err := a.t.put(kindCollection, def.ID, def); err != nil {
		return nil, err
	}
	a.def = def
	return def, nil
}

func (a *applyState) upsertCollection(owner string, c backend.Collection) error {
	var stored backend.Collection
	found, err := a.t.get(kindCollection, c.ID, &stored)
	if err != nil {
		return err
	}
	if found && stale(stored.UpdatedAt, c.UpdatedAt) {
		a.conflict(backend.EntityCollection, c.ID, "authority has a newer version")
		return nil
	}
	if found && stored.UpdatedAt.Equal(c.UpdatedAt) {
		a.ack.Synced.Collections = append(a.ack.Synced.Collections, c.ID)
		return nil
	}

	if c.IsDefault {
		def, err := a.defaultCollection()
		if err != nil {
			return err
		}
		if def != nil && def.ID != c.ID {
			c.IsDefault = false
			c.UpdatedAt = bump(c.UpdatedAt, a.now)
			a.conflict(backend.EntityCollection, c.ID, "owner already has default collection "+def.ID)
		}
	} else if found && stored.IsDefault {
		// The default cannot be demoted by a push
		c.IsDefault = true
		c.UpdatedAt = bump(c.UpdatedAt, a.now)
		a.conflict(backend.EntityCollection, c.ID, "collection is the owner's default")
	}

	c.OwnerID = owner
	c.SyncMeta = wireMeta(c.SyncMeta)
	if err := a.t.put(kindCollection, c.ID, c); err != nil {
		return err
	}
	if c.IsDefault {
		a.def = &c
	}
	a.ack.Synced.Collections = append(a.ack.Synced.Collections, c.ID)
	return nil
}

func (a *applyState) upsertTag(owner string, tg backend.Tag) error {
	var stored backend.Tag
	found, err := a.t.get(kindTag, tg.ID, &stored)
	if err != nil {
		return err
	}
	if found && stale(stored.UpdatedAt, tg.UpdatedAt) {
		a.conflict(backend.EntityTag, tg.ID, "authority has a newer version")
		return nil
	}
	if found && stored.UpdatedAt.Equal(tg.UpdatedAt) {
		a.ack.Synced.Tags = append(a.ack.Synced.Tags, tg.ID)
		return nil
	}

	tg.Slug = backend.Slugify(tg.Name)
	if tg.Slug == "" {
		a.conflict(backend.EntityTag, tg.ID, "tag name has no letters or digits")
		return nil
	}
	var clash string
	err = a.t.scan(kindTag, func(id string, env envelope) error {
		var other backend.Tag
		if err := decodeValue(env, &other); err != nil {
			return err
		}
		if id != tg.ID && other.Slug == tg.Slug {
			clash = id
		}
		return nil
	})
	if err != nil {
		return err
	}
	if clash != "" {
		a.conflict(backend.EntityTag, tg.ID, fmt.Sprintf("slug %q is taken by tag %s", tg.Slug, clash))
		return nil
	}

	tg.OwnerID = owner
	tg.SyncMeta = wireMeta(tg.SyncMeta)
	if err := a.t.put(kindTag, tg.ID, tg); err != nil {
		return err
	}
	a.ack.Synced.Tags = append(a.ack.Synced.Tags, tg.ID)
	return nil
}

func (a *applyState) upsertItem(owner string, it backend.Item) error {
	var stored backend.Item
	found, err := a.t.get(kindItem, it.ID, &stored)
	if err != nil {
		return err
	}
	if found && stale(stored.UpdatedAt, it.UpdatedAt) {
		a.conflict(backend.EntityItem, it.ID, "authority has a newer version")
		return nil
	}
	if found && stored.UpdatedAt.Equal(it.UpdatedAt) {
		a.accepted[it.ID] = true
		a.ack.Synced.Items = append(a.ack.Synced.Items, it.ID)
		return nil
	}

	var col backend.Collection
	ok, err := a.t.get(kindCollection, it.CollectionID, &col)
	if err != nil {
		return err
	}
	if !ok {
		def, err := a.ensureDefault(owner)
		if err != nil {
			return err
		}
		a.conflict(backend.EntityItem, it.ID,
			fmt.Sprintf("collection %s not found; filed under default collection %s", it.CollectionID, def.ID))
		it.CollectionID = def.ID
		it.UpdatedAt = bump(it.UpdatedAt, a.now)
	}

	it.OwnerID = owner
	it.SyncMeta = wireMeta(it.SyncMeta)
	if err := a.t.put(kindItem, it.ID, it); err != nil {
		return err
	}
	a.accepted[it.ID] = true
	a.ack.Synced.Items = append(a.ack.Synced.Items, it.ID)
	return nil
}

// applyLinks replaces the link set of every accepted item with the links in the chunk
// and adds links of items that were not part of it. Links whose item or tag is unknown are dropped.
func (a *applyState) applyLinks(chunk *backend.SyncBatch) error {
	incoming := make(map[string]bool, len(chunk.ItemTags))
	for _, l := range chunk.ItemTags {
		incoming[l.Key()] = true
	}

	dropped, err := a.t.linkIDs(func(itemID, tagID string) bool {
		return a.accepted[itemID] && !incoming[itemID+":"+tagID]
	})
	if err != nil {
		return err
	}
	for _, id := range dropped {
		if err := a.t.del(kindLink, id); err != nil {
			return err
		}
	}

	inChunk := make(map[string]bool, len(chunk.Items))
	for _, it := range chunk.Items {
		inChunk[it.ID] = true
	}
	for _, l := range chunk.ItemTags {
		if inChunk[l.ItemID] && !a.accepted[l.ItemID] {
			continue
		}
		var it backend.Item
		var tg backend.Tag
		hasItem, err := a.t.get(kindItem, l.ItemID, &it)
		if err != nil {
			return err
		}
		hasTag, err := a.t.get(kindTag, l.TagID, &tg)
		if err != nil {
			return err
		}
		if !hasItem || !hasTag {
			continue
		}
		var existing backend.ItemTag
		present, err := a.t.get(kindLink, l.Key(), &existing)
		if err != nil {
			return err
		}
		if !present {
			if err := a.t.put(kindLink, l.Key(), backend.ItemTag{ItemID: l.ItemID, TagID: l.TagID}); err != nil {
				return err
			}
		}
		a.ack.Synced.ItemTags = append(a.ack.Synced.ItemTags, backend.ItemTag{ItemID: l.ItemID, TagID: l.TagID})
	}
	return nil
}

func (a *applyState) applyDeletions(owner string, d backend.Deletions) error {
	for _, id := range d.ItemIDs {
		links, err := a.t.linkIDs(func(itemID, _ string) bool { return itemID == id })
		if err != nil {
			return err
		}
		for _, l := range links {
			if err := a.t.del(kindLink, l); err != nil {
				return err
			}
		}
		if err := a.t.del(kindItem, id); err != nil {
			return err
		}
		a.ack.Deleted.Items = append(a.ack.Deleted.Items, id)
	}

	for _, id := range d.TagIDs {
		links, err := a.t.linkIDs(func(_, tagID string) bool { return tagID == id })
		if err != nil {
			return err
		}
		for _, l := range links {
			if err := a.t.del(kindLink, l); err != nil {
				return err
			}
		}
		if err := a.t.del(kindTag, id); err != nil {
			return err
		}
		a.ack.Deleted.Tags = append(a.ack.Deleted.Tags, id)
	}

	for _, id := range d.CollectionIDs {
		var c backend.Collection
		found, err := a.t.get(kindCollection, id, &c)
		if err != nil {
			return err
		}
		if found && c.IsDefault {
			a.conflict(backend.EntityCollection, id, "the default collection cannot be deleted")
			continue
		}
		if found {
			if err := a.reassignItems(owner, id); err != nil {
				return err
			}
			if err := a.t.del(kindCollection, id); err != nil {
				return err
			}
		}
		a.ack.Deleted.Collections = append(a.ack.Deleted.Collections, id)
	}
	return nil
}

// reassignItems files every item of collection id under the default collection
func (a *applyState) reassignItems(owner, id string) error {
	var moved []backend.Item
	err := a.t.scan(kindItem, func(_ string, env envelope) error {
		var it backend.Item
		if err := decodeValue(env, &it); err != nil {
			return err
		}
		if it.CollectionID == id {
			moved = append(moved, it)
		}
		return nil
	})
	if err != nil || len(moved) == 0 {
		return err
	}
	def, err := a.ensureDefault(owner)
	if err != nil {
		return err
	}
	for _, it := range moved {
		it.CollectionID = def.ID
		it.UpdatedAt = bump(it.UpdatedAt, a.now)
		if err := a.t.put(kindItem, it.ID, it); err != nil {
			return err
		}
	}
	return nil
}

// Changes returns every record of owner changed after since (all records when since is nil)
func (s *Service) Changes(_ context.Context, owner string, since *time.Time) (*backend.SyncBatch, error) {
	var after int64 = -1
	if since != nil {
		after = since.UnixMilli()
	}

	batch := &backend.SyncBatch{}
	err := s.store.view(owner, func(t *ownerTxn) error {
		if err := t.scan(kindCollection, func(_ string, env envelope) error {
			if env.ChangedAt <= after {
				return nil
			}
			var c backend.Collection
			if err := decodeValue(env, &c); err != nil {
				return err
			}
			batch.Collections = append(batch.Collections, c)
			return nil
		}); err != nil {
			return err
		}
		if err := t.scan(kindTag, func(_ string, env envelope) error {
			if env.ChangedAt <= after {
				return nil
			}
			var tg backend.Tag
			if err := decodeValue(env, &tg); err != nil {
				return err
			}
			batch.Tags = append(batch.Tags, tg)
			return nil
		}); err != nil {
			return err
		}
		if err := t.scan(kindItem, func(_ string, env envelope) error {
			if env.ChangedAt <= after {
				return nil
			}
			var it backend.Item
			if err := decodeValue(env, &it); err != nil {
				return err
			}
			batch.Items = append(batch.Items, it)
			return nil
		}); err != nil {
			return err
		}
		return t.scan(kindLink, func(id string, env envelope) error {
			if env.ChangedAt <= after {
				return nil
			}
			itemID, tagID, _ := strings.Cut(id, ":")
			batch.ItemTags = append(batch.ItemTags, backend.ItemTag{ItemID: itemID, TagID: tagID})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	batch.Normalize()
	return batch, nil
}

// Counts returns how many records of each kind owner has
func (s *Service) Counts(owner string) (map[string]int, error) {
	counts := make(map[string]int)
	err := s.store.view(owner, func(t *ownerTxn) error {
		for _, kind := range []string{kindCollection, kindTag, kindItem, kindLink} {
			if err := t.scan(kind, func(string, envelope) error {
				counts[kind]++
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return counts, err
}

// bump moves updatedAt past both its previous value and now
func bump(updatedAt, now time.Time) time.Time {
	next := updatedAt.Add(time.Millisecond)
	if now.After(next) {
		return now
	}
	return next
}

// wireMeta strips local bookkeeping before a record is stored
func wireMeta(m backend.SyncMeta) backend.SyncMeta {
	return backend.SyncMeta{
		IsDeleted: m.IsDeleted,
		DeletedAt: m.DeletedAt,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

func decodeValue(env envelope, v any) error {
	return json.Unmarshal(env.Value, v)
}
