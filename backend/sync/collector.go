package sync

import (
	"context"
	"fmt"

	"gomarks/backend"
	"gomarks/backend/sqlite"
)

// Collector gathers local entities waiting for the authority
type Collector struct {
	store *sqlite.Store
}

// NewCollector creates a Collector over store
func NewCollector(store *sqlite.Store) *Collector {
	return &Collector{store: store}
}

// Collect returns every pending or errored entity, split into upserts and deletions.
// Entities whose ref key is in held are waiting on a retry entry and are left out.
// Each collected live item carries its full link set, since the authority replaces
// an item's links with whatever the push contains.
func (c *Collector) Collect(ctx context.Context, held map[string]bool) (*backend.SyncBatch, error) {
	batch := &backend.SyncBatch{}
	skip := func(kind backend.EntityKind, id string) bool {
		return held[backend.RefKey(kind, id)]
	}

	collections, err := c.store.PendingCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect collections: %w", err)
	}
	for _, col := range collections {
		if skip(backend.EntityCollection, col.ID) {
			continue
		}
		if col.IsDeleted {
			batch.Deletions.CollectionIDs = append(batch.Deletions.CollectionIDs, col.ID)
			continue
		}
		batch.Collections = append(batch.Collections, col)
	}

	tags, err := c.store.PendingTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect tags: %w", err)
	}
	for _, tg := range tags {
		if skip(backend.EntityTag, tg.ID) {
			continue
		}
		if tg.IsDeleted {
			batch.Deletions.TagIDs = append(batch.Deletions.TagIDs, tg.ID)
			continue
		}
		batch.Tags = append(batch.Tags, tg)
	}

	items, err := c.store.PendingItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect items: %w", err)
	}
	var liveIDs []string
	for _, it := range items {
		if skip(backend.EntityItem, it.ID) {
			continue
		}
		if it.IsDeleted {
			batch.Deletions.ItemIDs = append(batch.Deletions.ItemIDs, it.ID)
			continue
		}
		batch.Items = append(batch.Items, it)
		liveIDs = append(liveIDs, it.ID)
	}

	seen := make(map[string]bool)
	full, err := c.store.ItemTagsFor(ctx, liveIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to collect item links: %w", err)
	}
	for _, l := range full {
		seen[l.Key()] = true
		batch.ItemTags = append(batch.ItemTags, l)
	}

	pendingLinks, err := c.store.PendingItemTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect pending links: %w", err)
	}
	for _, l := range pendingLinks {
		if seen[l.Key()] || skip(backend.EntityItemTag, l.Key()) {
			continue
		}
		seen[l.Key()] = true
		batch.ItemTags = append(batch.ItemTags, l)
	}

	return batch, nil
}
