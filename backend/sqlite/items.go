package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"gomarks/backend"
)

const itemColumns = `id, owner_id, collection_id, kind, title, url, content, color, ` + metaColumns

// ItemInput holds the user-supplied fields of a new item
type ItemInput struct {
	CollectionID string // empty means the default collection
	Kind         backend.ItemKind
	Title        string
	URL          string
	Content      string
	Color        string
}

// ItemUpdate changes the fields that are non-nil
type ItemUpdate struct {
	Title   *string
	URL     *string
	Content *string
	Color   *string
}

// ItemFilter narrows ListItems
type ItemFilter struct {
	CollectionID string
	TagID        string
	Kind         backend.ItemKind
}

func scanItem(row scanner) (*backend.Item, error) {
	var it backend.Item
	var m metaScan
	var kind string
	dest := append([]any{&it.ID, &it.OwnerID, &it.CollectionID, &kind,
		&it.Title, &it.URL, &it.Content, &it.Color}, m.dest()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	it.Kind = backend.ItemKind(kind)
	it.SyncMeta = m.meta()
	return &it, nil
}

func queryItems(ctx context.Context, q querier, where string, args ...any) ([]backend.Item, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+itemColumns+" FROM items WHERE "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var out []backend.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

func item(ctx context.Context, q querier, ownerID, id string) (*backend.Item, error) {
	row := q.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM items WHERE owner_id = ? AND id = ?", ownerID, id)
	it, err := scanItem(row)
	if err != nil {
		return nil, notFound(err, "item", id)
	}
	return it, nil
}

// Item returns an item by id including soft-deleted ones
func (t *Tx) Item(id string) (*backend.Item, error) {
	return item(t.ctx, t.tx, t.ownerID, id)
}

func (t *Tx) liveItem(id string) (*backend.Item, error) {
	it, err := t.Item(id)
	if err != nil {
		return nil, err
	}
	if it.IsDeleted {
		return nil, fmt.Errorf("item %s: %w", id, backend.ErrNotFound)
	}
	return it, nil
}

// resolveCollection returns the live collection id to file an item under
func (t *Tx) resolveCollection(id string) (string, error) {
	if id == "" {
		def, err := t.EnsureDefaultCollection()
		if err != nil {
			return "", err
		}
		return def.ID, nil
	}
	c, err := t.liveCollection(id)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// CreateItem inserts a new pending item
func (t *Tx) CreateItem(in ItemInput) (*backend.Item, error) {
	if _, err := backend.ParseItemKind(string(in.Kind)); err != nil {
		return nil, err
	}
	if err := validateItemFields(in.Kind, in.URL, in.Content, in.Color); err != nil {
		return nil, err
	}
	collectionID, err := t.resolveCollection(in.CollectionID)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO items (id, owner_id, collection_id, kind, title, url, content, color,
		                   sync_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)
	`, id, t.ownerID, collectionID, string(in.Kind), strings.TrimSpace(in.Title), strings.TrimSpace(in.URL),
		in.Content, strings.TrimSpace(in.Color), toMillis(t.now), toMillis(t.now))
	if err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}
	return t.Item(id)
}

// UpdateItem changes an item's display fields
func (t *Tx) UpdateItem(id string, upd ItemUpdate) (*backend.Item, error) {
	it, err := t.liveItem(id)
	if err != nil {
		return nil, err
	}
	if upd.Title != nil {
		it.Title = strings.TrimSpace(*upd.Title)
	}
	if upd.URL != nil {
		it.URL = strings.TrimSpace(*upd.URL)
	}
	if upd.Content != nil {
		it.Content = *upd.Content
	}
	if upd.Color != nil {
		it.Color = strings.TrimSpace(*upd.Color)
	}
	if err := validateItemFields(it.Kind, it.URL, it.Content, it.Color); err != nil {
		return nil, err
	}

	_, err = t.tx.ExecContext(t.ctx,
		"UPDATE items SET title = ?, url = ?, content = ?, color = ?, "+touchSQL+" WHERE owner_id = ? AND id = ?",
		it.Title, it.URL, it.Content, it.Color, toMillis(t.now), t.ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update item %s: %w", id, err)
	}
	return t.Item(id)
}

// MoveItem files an item under another live collection
func (t *Tx) MoveItem(id, collectionID string) (*backend.Item, error) {
	if _, err := t.liveItem(id); err != nil {
		return nil, err
	}
	target, err := t.resolveCollection(collectionID)
	if err != nil {
		return nil, err
	}
	_, err = t.tx.ExecContext(t.ctx,
		"UPDATE items SET collection_id = ?, "+touchSQL+" WHERE owner_id = ? AND id = ?",
		target, toMillis(t.now), t.ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to move item %s: %w", id, err)
	}
	return t.Item(id)
}

// DeleteItem soft-deletes an item and drops its tag links
func (t *Tx) DeleteItem(id string) error {
	if _, err := t.liveItem(id); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM item_tags WHERE item_id = ?", id); err != nil {
		return fmt.Errorf("failed to remove links of item %s: %w", id, err)
	}
	_, err := t.tx.ExecContext(t.ctx,
		"UPDATE items SET is_deleted = 1, deleted_at = ?, "+touchSQL+" WHERE owner_id = ? AND id = ?",
		toMillis(t.now), toMillis(t.now), t.ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to delete item %s: %w", id, err)
	}
	return nil
}

// touchItems re-queues items after a change to something they reference
func (t *Tx) touchItems(where string, args ...any) error {
	all := append([]any{toMillis(t.now), t.ownerID}, args...)
	_, err := t.tx.ExecContext(t.ctx,
		"UPDATE items SET "+touchSQL+" WHERE owner_id = ? AND is_deleted = 0 AND "+where, all...)
	if err != nil {
		return fmt.Errorf("failed to re-queue items: %w", err)
	}
	return nil
}

func validateItemFields(kind backend.ItemKind, url, content, color string) error {
	switch kind {
	case backend.KindBookmark:
		if url == "" {
			return fmt.Errorf("%w: a bookmark needs a url", backend.ErrInvalidInput)
		}
	case backend.KindColor:
		if color == "" {
			return fmt.Errorf("%w: a color item needs a color value", backend.ErrInvalidInput)
		}
	case backend.KindText:
		if strings.TrimSpace(content) == "" {
			return fmt.Errorf("%w: a text item needs content", backend.ErrInvalidInput)
		}
	}
	return nil
}

// CreateItem inserts a new item
func (s *Store) CreateItem(ctx context.Context, in ItemInput) (*backend.Item, error) {
	var out *backend.Item
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.CreateItem(in)
		return err
	})
	return out, err
}

// UpdateItem changes an item's display fields
func (s *Store) UpdateItem(ctx context.Context, id string, upd ItemUpdate) (*backend.Item, error) {
	var out *backend.Item
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.UpdateItem(id, upd)
		return err
	})
	return out, err
}

// MoveItem files an item under another collection
func (s *Store) MoveItem(ctx context.Context, id, collectionID string) (*backend.Item, error) {
	var out *backend.Item
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.MoveItem(id, collectionID)
		return err
	})
	return out, err
}

// DeleteItem soft-deletes an item
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.DeleteItem(id)
	})
}

// GetItem returns a live item by id
func (s *Store) GetItem(ctx context.Context, id string) (*backend.Item, error) {
	it, err := item(ctx, s.db, s.ownerID, id)
	if err != nil {
		return nil, err
	}
	if it.IsDeleted {
		return nil, fmt.Errorf("item %s: %w", id, backend.ErrNotFound)
	}
	return it, nil
}

// ListItems returns live items matching the filter, newest first
func (s *Store) ListItems(ctx context.Context, f ItemFilter) ([]backend.Item, error) {
	where := []string{"owner_id = ?", "is_deleted = 0"}
	args := []any{s.ownerID}
	if f.CollectionID != "" {
		where = append(where, "collection_id = ?")
		args = append(args, f.CollectionID)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.TagID != "" {
		where = append(where, "id IN (SELECT item_id FROM item_tags WHERE tag_id = ?)")
		args = append(args, f.TagID)
	}
	return queryItems(ctx, s.db, strings.Join(where, " AND ")+" ORDER BY updated_at DESC, id", args...)
}
