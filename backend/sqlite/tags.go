package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"gomarks/backend"
)

const tagColumns = `id, owner_id, name, slug, ` + metaColumns

func scanTag(row scanner) (*backend.Tag, error) {
	var tg backend.Tag
	var m metaScan
	dest := append([]any{&tg.ID, &tg.OwnerID, &tg.Name, &tg.Slug}, m.dest()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	tg.SyncMeta = m.meta()
	return &tg, nil
}

func queryTags(ctx context.Context, q querier, where string, args ...any) ([]backend.Tag, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+tagColumns+" FROM tags WHERE "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var out []backend.Tag
	for rows.Next() {
		tg, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		out = append(out, *tg)
	}
	return out, rows.Err()
}

func tag(ctx context.Context, q querier, ownerID, id string) (*backend.Tag, error) {
	row := q.QueryRowContext(ctx, "SELECT "+tagColumns+" FROM tags WHERE owner_id = ? AND id = ?", ownerID, id)
	tg, err := scanTag(row)
	if err != nil {
		return nil, notFound(err, "tag", id)
	}
	return tg, nil
}

func tagBySlug(ctx context.Context, q querier, ownerID, slug string) (*backend.Tag, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+tagColumns+" FROM tags WHERE owner_id = ? AND slug = ? AND is_deleted = 0", ownerID, slug)
	tg, err := scanTag(row)
	if err != nil {
		return nil, notFound(err, "tag", slug)
	}
	return tg, nil
}

// Tag returns a tag by id including soft-deleted ones
func (t *Tx) Tag(id string) (*backend.Tag, error) {
	return tag(t.ctx, t.tx, t.ownerID, id)
}

// TagBySlug returns the live tag with the given slug
func (t *Tx) TagBySlug(slug string) (*backend.Tag, error) {
	return tagBySlug(t.ctx, t.tx, t.ownerID, slug)
}

func (t *Tx) liveTag(id string) (*backend.Tag, error) {
	tg, err := t.Tag(id)
	if err != nil {
		return nil, err
	}
	if tg.IsDeleted {
		return nil, fmt.Errorf("tag %s: %w", id, backend.ErrNotFound)
	}
	return tg, nil
}

func tagSlug(name string) (string, string, error) {
	name = strings.TrimSpace(name)
	slug := backend.Slugify(name)
	if slug == "" {
		return "", "", fmt.Errorf("%w: tag name %q has no letters or digits", backend.ErrInvalidInput, name)
	}
	return name, slug, nil
}

// CreateTag adds a tag. A live tag with the same slug yields ErrTagExists.
func (t *Tx) CreateTag(name string) (*backend.Tag, error) {
	name, slug, err := tagSlug(name)
	if err != nil {
		return nil, err
	}
	if _, err := t.TagBySlug(slug); err == nil {
		return nil, fmt.Errorf("%w: %s", backend.ErrTagExists, slug)
	} else if !errors.Is(err, backend.ErrNotFound) {
		return nil, err
	}

	id := uuid.NewString()
	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO tags (id, owner_id, name, slug, sync_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'pending', ?, ?)
	`, id, t.ownerID, name, slug, toMillis(t.now), toMillis(t.now))
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: %s", backend.ErrTagExists, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create tag: %w", err)
	}
	return t.Tag(id)
}

// EnsureTag returns the live tag for name, creating it if needed
func (t *Tx) EnsureTag(name string) (*backend.Tag, error) {
	_, slug, err := tagSlug(name)
	if err != nil {
		return nil, err
	}
	if tg, err := t.TagBySlug(slug); err == nil {
		return tg, nil
	}
	return t.CreateTag(name)
}

// RenameTag changes a tag's name and slug
func (t *Tx) RenameTag(id, name string) (*backend.Tag, error) {
	if _, err := t.liveTag(id); err != nil {
		return nil, err
	}
	name, slug, err := tagSlug(name)
	if err != nil {
		return nil, err
	}
	if other, err := t.TagBySlug(slug); err == nil && other.ID != id {
		return nil, fmt.Errorf("%w: %s", backend.ErrTagExists, slug)
	}
	_, err = t.tx.ExecContext(t.ctx,
		"UPDATE tags SET name = ?, slug = ?, "+touchSQL+" WHERE owner_id = ? AND id = ?",
		name, slug, toMillis(t.now), t.ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to rename tag %s: %w", id, err)
	}
	return t.Tag(id)
}

// DeleteTag soft-deletes a tag, unlinks it and re-queues the items that carried it
func (t *Tx) DeleteTag(id string) error {
	if _, err := t.liveTag(id); err != nil {
		return err
	}
	if err := t.touchItems("id IN (SELECT item_id FROM item_tags WHERE tag_id = ?)", id); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM item_tags WHERE tag_id = ?", id); err != nil {
		return fmt.Errorf("failed to remove links of tag %s: %w", id, err)
	}
	_, err := t.tx.ExecContext(t.ctx,
		"UPDATE tags SET is_deleted = 1, deleted_at = ?, "+touchSQL+" WHERE owner_id = ? AND id = ?",
		toMillis(t.now), toMillis(t.now), t.ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to delete tag %s: %w", id, err)
	}
	return nil
}

// TagItem links a live item to a live tag. Linking twice is a no-op.
func (t *Tx) TagItem(itemID, tagID string) error {
	if _, err := t.liveItem(itemID); err != nil {
		return err
	}
	if _, err := t.liveTag(tagID); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO item_tags (item_id, tag_id, sync_status) VALUES (?, ?, 'pending')
		ON CONFLICT(item_id, tag_id) DO NOTHING
	`, itemID, tagID)
	if err != nil {
		return fmt.Errorf("failed to tag item %s: %w", itemID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	return t.touchItems("id = ?", itemID)
}

// UntagItem removes a link; the item is re-queued so the authority sees its new link set
func (t *Tx) UntagItem(itemID, tagID string) error {
	if _, err := t.liveItem(itemID); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(t.ctx, "DELETE FROM item_tags WHERE item_id = ? AND tag_id = ?", itemID, tagID)
	if err != nil {
		return fmt.Errorf("failed to untag item %s: %w", itemID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("link %s:%s: %w", itemID, tagID, backend.ErrNotFound)
	}
	return t.touchItems("id = ?", itemID)
}

// CreateTag adds a tag
func (s *Store) CreateTag(ctx context.Context, name string) (*backend.Tag, error) {
	var out *backend.Tag
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.CreateTag(name)
		return err
	})
	return out, err
}

// RenameTag changes a tag's name
func (s *Store) RenameTag(ctx context.Context, id, name string) (*backend.Tag, error) {
	var out *backend.Tag
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.RenameTag(id, name)
		return err
	})
	return out, err
}

// DeleteTag soft-deletes a tag
func (s *Store) DeleteTag(ctx context.Context, id string) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.DeleteTag(id)
	})
}

// TagItem links an item to a tag, creating the tag by name if it does not exist
func (s *Store) TagItem(ctx context.Context, itemID, tagName string) (*backend.Tag, error) {
	var out *backend.Tag
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		if out, err = tx.EnsureTag(tagName); err != nil {
			return err
		}
		return tx.TagItem(itemID, out.ID)
	})
	return out, err
}

// UntagItem removes the link between an item and the named tag
func (s *Store) UntagItem(ctx context.Context, itemID, tagName string) error {
	return s.Update(ctx, func(tx *Tx) error {
		_, slug, err := tagSlug(tagName)
		if err != nil {
			return err
		}
		tg, err := tx.TagBySlug(slug)
		if err != nil {
			return err
		}
		return tx.UntagItem(itemID, tg.ID)
	})
}

// GetTag returns a live tag by id
func (s *Store) GetTag(ctx context.Context, id string) (*backend.Tag, error) {
	tg, err := tag(ctx, s.db, s.ownerID, id)
	if err != nil {
		return nil, err
	}
	if tg.IsDeleted {
		return nil, fmt.Errorf("tag %s: %w", id, backend.ErrNotFound)
	}
	return tg, nil
}

// FindTag returns the live tag whose slug matches name
func (s *Store) FindTag(ctx context.Context, name string) (*backend.Tag, error) {
	_, slug, err := tagSlug(name)
	if err != nil {
		return nil, err
	}
	return tagBySlug(ctx, s.db, s.ownerID, slug)
}

// ListTags returns live tags ordered by slug
func (s *Store) ListTags(ctx context.Context) ([]backend.Tag, error) {
	return queryTags(ctx, s.db, "owner_id = ? AND is_deleted = 0 ORDER BY slug", s.ownerID)
}

// TagsForItem returns the live tags linked to an item
func (s *Store) TagsForItem(ctx context.Context, itemID string) ([]backend.Tag, error) {
	return queryTags(ctx, s.db,
		"owner_id = ? AND is_deleted = 0 AND id IN (SELECT tag_id FROM item_tags WHERE item_id = ?) ORDER BY slug",
		s.ownerID, itemID)
}
