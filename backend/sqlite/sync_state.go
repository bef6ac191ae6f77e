package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gomarks/backend"
)

const pendingWhere = "owner_id = ? AND sync_status IN ('pending', 'error') AND sync_parked = 0"

// PendingItems returns items waiting to be pushed, including soft-deleted ones
func (s *Store) PendingItems(ctx context.Context) ([]backend.Item, error) {
	return queryItems(ctx, s.db, pendingWhere+" ORDER BY updated_at, id", s.ownerID)
}

// PendingCollections returns collections waiting to be pushed, including soft-deleted ones
func (s *Store) PendingCollections(ctx context.Context) ([]backend.Collection, error) {
	return queryCollections(ctx, s.db, pendingWhere+" ORDER BY updated_at, id", s.ownerID)
}

// PendingTags returns tags waiting to be pushed, including soft-deleted ones
func (s *Store) PendingTags(ctx context.Context) ([]backend.Tag, error) {
	return queryTags(ctx, s.db, pendingWhere+" ORDER BY updated_at, id", s.ownerID)
}

func queryLinks(ctx context.Context, q querier, where string, args ...any) ([]backend.ItemTag, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT l.item_id, l.tag_id, l.sync_status
		FROM item_tags l JOIN items i ON i.id = l.item_id
		WHERE i.owner_id = ? AND `+where+` ORDER BY l.item_id, l.tag_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query item tags: %w", err)
	}
	defer rows.Close()

	var out []backend.ItemTag
	for rows.Next() {
		var l backend.ItemTag
		var status string
		if err := rows.Scan(&l.ItemID, &l.TagID, &status); err != nil {
			return nil, fmt.Errorf("failed to scan item tag: %w", err)
		}
		l.SyncStatus = backend.SyncStatus(status)
		out = append(out, l)
	}
	return out, rows.Err()
}

// PendingItemTags returns links waiting to be pushed. Links of parked items wait with them.
func (s *Store) PendingItemTags(ctx context.Context) ([]backend.ItemTag, error) {
	return queryLinks(ctx, s.db, "l.sync_status IN ('pending', 'error') AND i.sync_parked = 0", s.ownerID)
}

// ItemTagsFor returns every link of the given items
func (s *Store) ItemTagsFor(ctx context.Context, itemIDs []string) ([]backend.ItemTag, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	in, args := inClause(itemIDs)
	return queryLinks(ctx, s.db, "l.item_id IN "+in, append([]any{s.ownerID}, args...)...)
}

// KnownTagIDs returns live tags the authority has acknowledged at least once
func (s *Store) KnownTagIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM tags WHERE owner_id = ? AND is_deleted = 0 AND last_synced_at IS NOT NULL", s.ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query synced tags: %w", err)
	}
	defer rows.Close()

	known := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		known[id] = true
	}
	return known, rows.Err()
}

// Watermark returns the latest lastSyncedAt across items, collections and tags, or nil if never synced
func (s *Store) Watermark(ctx context.Context) (*time.Time, error) {
	var ms sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(m) FROM (
			SELECT MAX(last_synced_at) AS m FROM items WHERE owner_id = ?
			UNION ALL SELECT MAX(last_synced_at) FROM collections WHERE owner_id = ?
			UNION ALL SELECT MAX(last_synced_at) FROM tags WHERE owner_id = ?
		)`, s.ownerID, s.ownerID, s.ownerID).Scan(&ms)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync watermark: %w", err)
	}
	return fromNullMillis(ms), nil
}

// tableFor maps an entity kind to its table
func tableFor(kind backend.EntityKind) (string, error) {
	switch kind {
	case backend.EntityItem:
		return "items", nil
	case backend.EntityCollection:
		return "collections", nil
	case backend.EntityTag:
		return "tags", nil
	}
	return "", fmt.Errorf("no table for entity kind %q", kind)
}

// setStatus updates the state of the referenced rows that currently have one of fromStatuses
func (t *Tx) setStatus(refs backend.EntityRefs, to backend.SyncStatus, syncErr string, fromStatuses ...backend.SyncStatus) error {
	from := make([]string, len(fromStatuses))
	for i, st := range fromStatuses {
		from[i] = string(st)
	}
	fromIn, fromArgs := inClause(from)

	groups := map[backend.EntityKind][]string{
		backend.EntityItem:       refs.ItemIDs,
		backend.EntityCollection: refs.CollectionIDs,
		backend.EntityTag:        refs.TagIDs,
	}
	for kind, ids := range groups {
		if len(ids) == 0 {
			continue
		}
		table, _ := tableFor(kind)
		idIn, idArgs := inClause(ids)
		args := append([]any{string(to), syncErr, t.ownerID}, idArgs...)
		args = append(args, fromArgs...)
		_, err := t.tx.ExecContext(t.ctx,
			"UPDATE "+table+" SET sync_status = ?, sync_error = ? WHERE owner_id = ? AND id IN "+idIn+" AND sync_status IN "+fromIn,
			args...)
		if err != nil {
			return fmt.Errorf("failed to set %s state to %s: %w", table, to, err)
		}
	}

	for _, l := range refs.ItemTags {
		args := append([]any{string(to), l.ItemID, l.TagID}, fromArgs...)
		_, err := t.tx.ExecContext(t.ctx,
			"UPDATE item_tags SET sync_status = ? WHERE item_id = ? AND tag_id = ? AND sync_status IN "+fromIn,
			args...)
		if err != nil {
			return fmt.Errorf("failed to set link state to %s: %w", to, err)
		}
	}
	return nil
}

// MarkSyncing flags the referenced entities as in flight
func (t *Tx) MarkSyncing(refs backend.EntityRefs) error {
	return t.setStatus(refs, backend.StatusSyncing, "", backend.StatusPending, backend.StatusError, backend.StatusSynced)
}

// MarkFailed moves in-flight entities to error with the given message
func (t *Tx) MarkFailed(refs backend.EntityRefs, msg string) error {
	return t.setStatus(refs, backend.StatusError, msg, backend.StatusSyncing)
}

// ReleaseSyncing returns entities still in flight to pending
func (t *Tx) ReleaseSyncing(refs backend.EntityRefs) error {
	return t.setStatus(refs, backend.StatusPending, "", backend.StatusSyncing)
}

// RecoverInFlight returns every row still marked syncing to pending. Only a cycle
// that stopped between transmission and acknowledgement leaves such rows behind.
func (t *Tx) RecoverInFlight() (int, error) {
	total := 0
	for _, table := range []string{"items", "collections", "tags"} {
		res, err := t.tx.ExecContext(t.ctx,
			"UPDATE "+table+" SET sync_status = 'pending' WHERE owner_id = ? AND sync_status = 'syncing'", t.ownerID)
		if err != nil {
			return 0, fmt.Errorf("failed to recover in-flight %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE item_tags SET sync_status = 'pending'
		WHERE sync_status = 'syncing' AND item_id IN (SELECT id FROM items WHERE owner_id = ?)`, t.ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to recover in-flight links: %w", err)
	}
	n, _ := res.RowsAffected()
	return total + int(n), nil
}

// MarkSynced records an acknowledged upsert. The row only becomes synced if it still
// carries the transmitted version; otherwise it was edited in flight and goes back to pending.
func (t *Tx) MarkSynced(kind backend.EntityKind, id string, transmitted time.Time) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE "+table+" SET sync_status = 'synced', last_synced_at = ?, sync_error = '', sync_parked = 0"+
			" WHERE owner_id = ? AND id = ? AND updated_at = ?",
		toMillis(t.now), t.ownerID, id, toMillis(transmitted))
	if err != nil {
		return false, fmt.Errorf("failed to mark %s %s synced: %w", kind, id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}

	_, err = t.tx.ExecContext(t.ctx,
		"UPDATE "+table+" SET sync_status = 'pending', last_synced_at = ? WHERE owner_id = ? AND id = ? AND sync_status = 'syncing'",
		toMillis(t.now), t.ownerID, id)
	if err != nil {
		return false, fmt.Errorf("failed to re-queue %s %s: %w", kind, id, err)
	}
	return false, nil
}

// MarkLinkSynced records an acknowledged link
func (t *Tx) MarkLinkSynced(l backend.ItemTag) (bool, error) {
	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE item_tags SET sync_status = 'synced' WHERE item_id = ? AND tag_id = ?", l.ItemID, l.TagID)
	if err != nil {
		return false, fmt.Errorf("failed to mark link %s synced: %w", l.Key(), err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkConflict flags an entity the authority refused
func (t *Tx) MarkConflict(kind backend.EntityKind, id, reason string) error {
	if kind == backend.EntityItemTag {
		itemID, tagID, _ := strings.Cut(id, ":")
		return t.setStatus(backend.EntityRefs{ItemTags: []backend.ItemTag{{ItemID: itemID, TagID: tagID}}},
			backend.StatusError, reason, backend.StatusSyncing)
	}
	refs := backend.EntityRefs{}
	switch kind {
	case backend.EntityItem:
		refs.ItemIDs = []string{id}
	case backend.EntityCollection:
		refs.CollectionIDs = []string{id}
	case backend.EntityTag:
		refs.TagIDs = []string{id}
	default:
		return fmt.Errorf("unknown conflict entity kind %q", kind)
	}
	return t.setStatus(refs, backend.StatusError, reason, backend.StatusSyncing)
}

// Purge hard-deletes a soft-deleted entity after the authority confirmed the deletion.
// Live rows and the default collection are never purged.
func (t *Tx) Purge(kind backend.EntityKind, id string) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	query := "DELETE FROM " + table + " WHERE owner_id = ? AND id = ? AND is_deleted = 1"
	if kind == backend.EntityCollection {
		query += " AND is_default = 0"
	}
	res, err := t.tx.ExecContext(t.ctx, query, t.ownerID, id)
	if err != nil {
		return false, fmt.Errorf("failed to purge %s %s: %w", kind, id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Park takes entities out of automatic sync after their retries ran out.
// They keep the error state until the next local change clears the flag.
func (t *Tx) Park(refs backend.EntityRefs, msg string) error {
	groups := map[string][]string{
		"items":       refs.ItemIDs,
		"collections": refs.CollectionIDs,
		"tags":        refs.TagIDs,
	}
	for table, ids := range groups {
		if len(ids) == 0 {
			continue
		}
		in, args := inClause(ids)
		_, err := t.tx.ExecContext(t.ctx,
			"UPDATE "+table+" SET sync_status = 'error', sync_error = ?, sync_parked = 1"+
				" WHERE owner_id = ? AND id IN "+in+" AND sync_status IN ('pending', 'error')",
			append([]any{msg, t.ownerID}, args...)...)
		if err != nil {
			return fmt.Errorf("failed to park %s: %w", table, err)
		}
	}
	for _, l := range refs.ItemTags {
		_, err := t.tx.ExecContext(t.ctx,
			"UPDATE item_tags SET sync_status = 'error' WHERE item_id = ? AND tag_id = ? AND sync_status IN ('pending', 'error')",
			l.ItemID, l.TagID)
		if err != nil {
			return fmt.Errorf("failed to park link: %w", err)
		}
	}
	return nil
}

// Unsettled returns which of refs are still waiting for the authority (pending, error or syncing)
func (s *Store) Unsettled(ctx context.Context, refs backend.EntityRefs) (backend.EntityRefs, error) {
	var out backend.EntityRefs
	pick := func(table string, ids []string) ([]string, error) {
		if len(ids) == 0 {
			return nil, nil
		}
		in, args := inClause(ids)
		rows, err := s.db.QueryContext(ctx,
			"SELECT id FROM "+table+" WHERE owner_id = ? AND sync_status != 'synced' AND id IN "+in,
			append([]any{s.ownerID}, args...)...)
		if err != nil {
			return nil, fmt.Errorf("failed to query unsettled %s: %w", table, err)
		}
		defer rows.Close()
		var keep []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return nil, err
			}
			keep = append(keep, id)
		}
		return keep, rows.Err()
	}

	var err error
	if out.ItemIDs, err = pick("items", refs.ItemIDs); err != nil {
		return out, err
	}
	if out.CollectionIDs, err = pick("collections", refs.CollectionIDs); err != nil {
		return out, err
	}
	if out.TagIDs, err = pick("tags", refs.TagIDs); err != nil {
		return out, err
	}
	for _, l := range refs.ItemTags {
		var status string
		err := s.db.QueryRowContext(ctx,
			"SELECT sync_status FROM item_tags WHERE item_id = ? AND tag_id = ?", l.ItemID, l.TagID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return out, fmt.Errorf("failed to query link state: %w", err)
		}
		if status != string(backend.StatusSynced) {
			out.ItemTags = append(out.ItemTags, l)
		}
	}
	return out, nil
}

// StatusCounts tallies entities per sync state
type StatusCounts map[backend.SyncStatus]int

// Total returns the number of counted entities
func (c StatusCounts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// SyncStats summarizes local sync state for display
type SyncStats struct {
	Items       StatusCounts `json:"items"`
	Collections StatusCounts `json:"collections"`
	Tags        StatusCounts `json:"tags"`
	ItemTags    StatusCounts `json:"itemTags"`
	Parked      int          `json:"parked"`
	RetryQueue  int          `json:"retryQueue"`
	LastSync    *time.Time   `json:"lastSync,omitempty"`
}

// Stats returns a summary of sync state for this owner
func (s *Store) Stats(ctx context.Context) (*SyncStats, error) {
	stats := &SyncStats{}
	count := func(query string) (StatusCounts, error) {
		rows, err := s.db.QueryContext(ctx, query, s.ownerID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		counts := StatusCounts{}
		for rows.Next() {
			var status string
			var n int
			if err := rows.Scan(&status, &n); err != nil {
				return nil, err
			}
			counts[backend.SyncStatus(status)] = n
		}
		return counts, rows.Err()
	}

	var err error
	if stats.Items, err = count("SELECT sync_status, COUNT(*) FROM items WHERE owner_id = ? GROUP BY sync_status"); err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}
	if stats.Collections, err = count("SELECT sync_status, COUNT(*) FROM collections WHERE owner_id = ? GROUP BY sync_status"); err != nil {
		return nil, fmt.Errorf("failed to count collections: %w", err)
	}
	if stats.Tags, err = count("SELECT sync_status, COUNT(*) FROM tags WHERE owner_id = ? GROUP BY sync_status"); err != nil {
		return nil, fmt.Errorf("failed to count tags: %w", err)
	}
	if stats.ItemTags, err = count(`SELECT l.sync_status, COUNT(*) FROM item_tags l JOIN items i ON i.id = l.item_id
		WHERE i.owner_id = ? GROUP BY l.sync_status`); err != nil {
		return nil, fmt.Errorf("failed to count links: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM items WHERE owner_id = ?1 AND sync_parked = 1) +
		(SELECT COUNT(*) FROM collections WHERE owner_id = ?1 AND sync_parked = 1) +
		(SELECT COUNT(*) FROM tags WHERE owner_id = ?1 AND sync_parked = 1)`, s.ownerID).Scan(&stats.Parked)
	if err != nil {
		return nil, fmt.Errorf("failed to count parked entities: %w", err)
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM retry_queue WHERE owner_id = ?", s.ownerID).Scan(&stats.RetryQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to count retry queue: %w", err)
	}

	if stats.LastSync, err = s.Watermark(ctx); err != nil {
		return nil, err
	}
	return stats, nil
}
