package sqlite

import (
	"fmt"

	"gomarks/backend"
)

// Writes in this file apply authority state. They never go through touchSQL:
// the row lands as synced with the remote updatedAt.

// LiveCollectionExists reports whether a non-deleted collection with id exists
func (t *Tx) LiveCollectionExists(id string) bool {
	c, err := t.Collection(id)
	return err == nil && !c.IsDeleted
}

// PutRemoteCollection inserts or overwrites a collection with the authority's copy
func (t *Tx) PutRemoteCollection(c backend.Collection) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO collections (id, owner_id, name, is_default, is_deleted, deleted_at,
		                         sync_status, last_synced_at, sync_error, sync_parked, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'synced', ?, '', 0, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			is_default = excluded.is_default,
			is_deleted = excluded.is_deleted,
			deleted_at = excluded.deleted_at,
			sync_status = 'synced',
			last_synced_at = excluded.last_synced_at,
			sync_error = '',
			sync_parked = 0,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`, c.ID, t.ownerID, c.Name, boolInt(c.IsDefault), boolInt(c.IsDeleted), toNullMillis(c.DeletedAt),
		toMillis(t.now), toMillis(c.CreatedAt), toMillis(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to store remote collection %s: %w", c.ID, err)
	}
	return nil
}

// DemoteDefault clears the default flag of the local default collection unless it is keepID.
// The demoted collection is re-queued so the authority learns it is no longer default.
func (t *Tx) DemoteDefault(keepID string) (string, error) {
	def, err := defaultCollection(t.ctx, t.tx, t.ownerID)
	if err != nil || def.ID == keepID {
		return "", nil
	}
	_, err = t.tx.ExecContext(t.ctx,
		"UPDATE collections SET is_default = 0, "+touchSQL+" WHERE owner_id = ? AND id = ?",
		toMillis(t.now), t.ownerID, def.ID)
	if err != nil {
		return "", fmt.Errorf("failed to demote default collection %s: %w", def.ID, err)
	}
	return def.ID, nil
}

// PutRemoteTag inserts or overwrites a tag with the authority's copy
func (t *Tx) PutRemoteTag(tg backend.Tag) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO tags (id, owner_id, name, slug, is_deleted, deleted_at,
		                  sync_status, last_synced_at, sync_error, sync_parked, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'synced', ?, '', 0, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			slug = excluded.slug,
			is_deleted = excluded.is_deleted,
			deleted_at = excluded.deleted_at,
			sync_status = 'synced',
			last_synced_at = excluded.last_synced_at,
			sync_error = '',
			sync_parked = 0,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`, tg.ID, t.ownerID, tg.Name, tg.Slug, boolInt(tg.IsDeleted), toNullMillis(tg.DeletedAt),
		toMillis(t.now), toMillis(tg.CreatedAt), toMillis(tg.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to store remote tag %s: %w", tg.ID, err)
	}
	return nil
}

// AdoptTag replaces the never-synced local tag localID with the authority's tag
// carrying the same slug. Its links move to the authority's tag and the linked
// items are re-queued so the authority learns the new link set. Returns the
// number of items re-queued.
func (t *Tx) AdoptTag(localID string, remote backend.Tag) (int, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT l.item_id FROM item_tags l JOIN items i ON i.id = l.item_id
		WHERE l.tag_id = ? AND i.is_deleted = 0`, localID)
	if err != nil {
		return 0, fmt.Errorf("failed to query links of tag %s: %w", localID, err)
	}
	var itemIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		itemIDs = append(itemIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	// links go with the row
	if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM tags WHERE owner_id = ? AND id = ?", t.ownerID, localID); err != nil {
		return 0, fmt.Errorf("failed to drop local tag %s: %w", localID, err)
	}
	if err := t.PutRemoteTag(remote); err != nil {
		return 0, err
	}
	if len(itemIDs) == 0 {
		return 0, nil
	}

	for _, id := range itemIDs {
		_, err := t.tx.ExecContext(t.ctx, `
			INSERT INTO item_tags (item_id, tag_id, sync_status) VALUES (?, ?, 'pending')
			ON CONFLICT(item_id, tag_id) DO NOTHING`, id, remote.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to move link of item %s to tag %s: %w", id, remote.ID, err)
		}
	}
	in, args := inClause(itemIDs)
	if err := t.touchItems("id IN "+in, args...); err != nil {
		return 0, err
	}
	return len(itemIDs), nil
}

// PutRemoteItem inserts or overwrites an item with the authority's copy
func (t *Tx) PutRemoteItem(it backend.Item) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO items (id, owner_id, collection_id, kind, title, url, content, color, is_deleted, deleted_at,
		                   sync_status, last_synced_at, sync_error, sync_parked, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'synced', ?, '', 0, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			collection_id = excluded.collection_id,
			kind = excluded.kind,
			title = excluded.title,
			url = excluded.url,
			content = excluded.content,
			color = excluded.color,
			is_deleted = excluded.is_deleted,
			deleted_at = excluded.deleted_at,
			sync_status = 'synced',
			last_synced_at = excluded.last_synced_at,
			sync_error = '',
			sync_parked = 0,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`, it.ID, t.ownerID, it.CollectionID, string(it.Kind), it.Title, it.URL, it.Content, it.Color,
		boolInt(it.IsDeleted), toNullMillis(it.DeletedAt), toMillis(t.now), toMillis(it.CreatedAt), toMillis(it.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to store remote item %s: %w", it.ID, err)
	}
	return nil
}

// PutRemoteItemTag inserts a link if both ends exist and are live. Existing links are left alone.
func (t *Tx) PutRemoteItemTag(l backend.ItemTag) (bool, error) {
	res, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO item_tags (item_id, tag_id, sync_status)
		SELECT i.id, g.id, 'synced'
		FROM items i, tags g
		WHERE i.id = ? AND g.id = ? AND i.owner_id = ? AND g.owner_id = ?
		  AND i.is_deleted = 0 AND g.is_deleted = 0
		ON CONFLICT(item_id, tag_id) DO NOTHING
	`, l.ItemID, l.TagID, t.ownerID, t.ownerID)
	if err != nil {
		return false, fmt.Errorf("failed to store remote link %s: %w", l.Key(), err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
