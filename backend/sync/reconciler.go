package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gomarks/backend"
	"gomarks/backend/sqlite"
	"gomarks/internal/utils"
)

// Reconciler applies authority responses to the local store
type Reconciler struct {
	store *sqlite.Store
}

// NewReconciler creates a Reconciler over store
func NewReconciler(store *sqlite.Store) *Reconciler {
	return &Reconciler{store: store}
}

// AckStats counts what one acknowledgement settled
type AckStats struct {
	ItemsSynced        int
	CollectionsSynced  int
	TagsSynced         int
	ItemTagsSynced     int
	ItemsDeleted       int
	CollectionsDeleted int
	TagsDeleted        int
	Requeued           int
	Warnings           []string
}

// MergeStats counts what one pull changed locally
type MergeStats struct {
	Collections int
	Tags        int
	Items       int
	ItemTags    int
	KeptLocal   int
	Warnings    []string
}

// Total returns the number of entities written by the merge
func (m *MergeStats) Total() int {
	return m.Collections + m.Tags + m.Items + m.ItemTags
}

// MarkInFlight flags every entity of chunk as syncing before it is transmitted
func (r *Reconciler) MarkInFlight(ctx context.Context, chunk *backend.SyncBatch) error {
	return r.store.Update(ctx, func(tx *sqlite.Tx) error {
		return tx.MarkSyncing(chunk.Refs())
	})
}

// Release returns the entities of chunk that are still in flight to pending
func (r *Reconciler) Release(ctx context.Context, chunk *backend.SyncBatch) error {
	return r.store.Update(ctx, func(tx *sqlite.Tx) error {
		return tx.ReleaseSyncing(chunk.Refs())
	})
}

// RecoverInFlight returns entities left syncing by an unfinished cycle to pending
func (r *Reconciler) RecoverInFlight(ctx context.Context) (int, error) {
	var n int
	err := r.store.Update(ctx, func(tx *sqlite.Tx) error {
		var err error
		n, err = tx.RecoverInFlight()
		return err
	})
	return n, err
}

// RecordFailure moves the entities of a failed chunk to error
func (r *Reconciler) RecordFailure(ctx context.Context, chunk *backend.SyncBatch, cause error) error {
	return r.store.Update(ctx, func(tx *sqlite.Tx) error {
		return tx.MarkFailed(chunk.Refs(), cause.Error())
	})
}

// ApplyAck settles a transmitted chunk in one transaction. Only ids that were in
// the chunk are honoured; synced rows must still carry the version that was sent.
func (r *Reconciler) ApplyAck(ctx context.Context, chunk *backend.SyncBatch, ack *backend.Ack) (*AckStats, error) {
	stats := &AckStats{}

	versions := make(map[string]time.Time)
	for _, it := range chunk.Items {
		versions[backend.RefKey(backend.EntityItem, it.ID)] = it.UpdatedAt
	}
	for _, c := range chunk.Collections {
		versions[backend.RefKey(backend.EntityCollection, c.ID)] = c.UpdatedAt
	}
	for _, tg := range chunk.Tags {
		versions[backend.RefKey(backend.EntityTag, tg.ID)] = tg.UpdatedAt
	}
	sentLinks := make(map[string]bool, len(chunk.ItemTags))
	for _, l := range chunk.ItemTags {
		sentLinks[l.Key()] = true
	}
	sentDeletes := make(map[string]bool)
	for _, id := range chunk.Deletions.ItemIDs {
		sentDeletes[backend.RefKey(backend.EntityItem, id)] = true
	}
	for _, id := range chunk.Deletions.CollectionIDs {
		sentDeletes[backend.RefKey(backend.EntityCollection, id)] = true
	}
	for _, id := range chunk.Deletions.TagIDs {
		sentDeletes[backend.RefKey(backend.EntityTag, id)] = true
	}

	err := r.store.Update(ctx, func(tx *sqlite.Tx) error {
		markSynced := func(kind backend.EntityKind, ids []string, counter *int) error {
			for _, id := range ids {
				version, ok := versions[backend.RefKey(kind, id)]
				if !ok {
					utils.Debugf("ack lists %s %s which was not in the chunk", kind, id)
					continue
				}
				synced, err := tx.MarkSynced(kind, id, version)
				if err != nil {
					return err
				}
				if synced {
					*counter++
				} else {
					stats.Requeued++
				}
			}
			return nil
		}
		if err := markSynced(backend.EntityCollection, ack.Synced.Collections, &stats.CollectionsSynced); err != nil {
			return err
		}
		if err := markSynced(backend.EntityTag, ack.Synced.Tags, &stats.TagsSynced); err != nil {
			return err
		}
		if err := markSynced(backend.EntityItem, ack.Synced.Items, &stats.ItemsSynced); err != nil {
			return err
		}
		for _, l := range ack.Synced.ItemTags {
			if !sentLinks[l.Key()] {
				continue
			}
			ok, err := tx.MarkLinkSynced(l)
			if err != nil {
				return err
			}
			if ok {
				stats.ItemTagsSynced++
			}
		}

		purge := func(kind backend.EntityKind, ids []string, counter *int) error {
			for _, id := range ids {
				if !sentDeletes[backend.RefKey(kind, id)] {
					continue
				}
				ok, err := tx.Purge(kind, id)
				if err != nil {
					return err
				}
				if ok {
					*counter++
				}
			}
			return nil
		}
		if err := purge(backend.EntityItem, ack.Deleted.Items, &stats.ItemsDeleted); err != nil {
			return err
		}
		if err := purge(backend.EntityTag, ack.Deleted.Tags, &stats.TagsDeleted); err != nil {
			return err
		}
		if err := purge(backend.EntityCollection, ack.Deleted.Collections, &stats.CollectionsDeleted); err != nil {
			return err
		}

		for _, c := range ack.Conflicts {
			stats.Warnings = append(stats.Warnings, "conflict: "+c.String())
			if err := tx.MarkConflict(c.Entity, c.EntityID, c.Reason); err != nil {
				return err
			}
		}

		// Anything the authority neither synced nor rejected goes out again next cycle
		return tx.ReleaseSyncing(chunk.Refs())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply acknowledgement: %w", err)
	}
	return stats, nil
}

// Merge applies pulled authority state in one transaction: collections, then tags,
// then items, then links. A remote copy replaces the local one only when its
// updatedAt is strictly newer.
func (r *Reconciler) Merge(ctx context.Context, remote *backend.SyncBatch) (*MergeStats, error) {
	stats := &MergeStats{}
	warn := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		utils.Warnf("merge: %s", msg)
		stats.Warnings = append(stats.Warnings, msg)
	}

	err := r.store.Update(ctx, func(tx *sqlite.Tx) error {
		for _, c := range remote.Collections {
			c.OwnerID = tx.OwnerID()
			local, err := existing(tx.Collection(c.ID))
			if err != nil {
				return err
			}
			if local != nil && !c.UpdatedAt.After(local.UpdatedAt) {
				stats.KeptLocal++
				continue
			}
			if c.IsDefault {
				demoted, err := tx.DemoteDefault(c.ID)
				if err != nil {
					return err
				}
				if demoted != "" {
					warn("collection %s is no longer the default; the authority's default is %s", demoted, c.ID)
				}
			}
			if err := tx.PutRemoteCollection(c); err != nil {
				return err
			}
			stats.Collections++
		}
		if _, err := tx.EnsureDefaultCollection(); err != nil {
			return err
		}

		for _, tg := range remote.Tags {
			tg.OwnerID = tx.OwnerID()
			local, err := existing(tx.Tag(tg.ID))
			if err != nil {
				return err
			}
			if local != nil && !tg.UpdatedAt.After(local.UpdatedAt) {
				stats.KeptLocal++
				continue
			}
			if !tg.IsDeleted {
				clash, err := existing(tx.TagBySlug(tg.Slug))
				if err != nil {
					return err
				}
				if clash != nil && clash.ID != tg.ID {
					if clash.LastSyncedAt != nil {
						warn("tag %s skipped: slug %q is used by local tag %s", tg.ID, tg.Slug, clash.ID)
						continue
					}
					// the local tag never reached the authority, which already has this name
					moved, err := tx.AdoptTag(clash.ID, tg)
					if err != nil {
						return err
					}
					utils.Infof("merge: local tag %s replaced by %s (slug %q), %d items re-queued", clash.ID, tg.ID, tg.Slug, moved)
					stats.Tags++
					continue
				}
			}
			if err := tx.PutRemoteTag(tg); err != nil {
				return err
			}
			stats.Tags++
		}

		for _, it := range remote.Items {
			it.OwnerID = tx.OwnerID()
			local, err := existing(tx.Item(it.ID))
			if err != nil {
				return err
			}
			if local != nil && !it.UpdatedAt.After(local.UpdatedAt) {
				stats.KeptLocal++
				continue
			}
			if !tx.LiveCollectionExists(it.CollectionID) {
				def, err := tx.EnsureDefaultCollection()
				if err != nil {
					return err
				}
				warn("item %s refers to unknown collection %s; filed under %s", it.ID, it.CollectionID, def.ID)
				it.CollectionID = def.ID
			}
			if err := tx.PutRemoteItem(it); err != nil {
				return err
			}
			stats.Items++
		}

		for _, l := range remote.ItemTags {
			added, err := tx.PutRemoteItemTag(l)
			if err != nil {
				return err
			}
			if added {
				stats.ItemTags++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to merge remote changes: %w", err)
	}
	return stats, nil
}

// existing turns a not-found lookup into a nil result
func existing[T any](v *T, err error) (*T, error) {
	if errors.Is(err, backend.ErrNotFound) {
		return nil, nil
	}
	return v, err
}
