package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"gomarks/backend"
)

// DefaultCollectionName is the name given to a freshly created default collection
const DefaultCollectionName = "Unsorted"

const collectionColumns = `id, owner_id, name, is_default, ` + metaColumns

func scanCollection(row scanner) (*backend.Collection, error) {
	var c backend.Collection
	var m metaScan
	dest := append([]any{&c.ID, &c.OwnerID, &c.Name, &c.IsDefault}, m.dest()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	c.SyncMeta = m.meta()
	return &c, nil
}

func queryCollections(ctx context.Context, q querier, where string, args ...any) ([]backend.Collection, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+collectionColumns+" FROM collections WHERE "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query collections: %w", err)
	}
	defer rows.Close()

	var out []backend.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// collection returns a collection by id, deleted or not
func collection(ctx context.Context, q querier, ownerID, id string) (*backend.Collection, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+collectionColumns+" FROM collections WHERE owner_id = ? AND id = ?", ownerID, id)
	c, err := scanCollection(row)
	if err != nil {
		return nil, notFound(err, "collection", id)
	}
	return c, nil
}

func defaultCollection(ctx context.Context, q querier, ownerID string) (*backend.Collection, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+collectionColumns+" FROM collections WHERE owner_id = ? AND is_default = 1", ownerID)
	c, err := scanCollection(row)
	if err != nil {
		return nil, notFound(err, "default collection for", ownerID)
	}
	return c, nil
}

// EnsureDefaultCollection returns the owner's default collection, creating it if absent
func (t *Tx) EnsureDefaultCollection() (*backend.Collection, error) {
	// The partial unique index turns a concurrent second insert into a no-op
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO collections (id, owner_id, name, is_default, sync_status, created_at, updated_at)
		VALUES (?, ?, ?, 1, 'pending', ?, ?)
		ON CONFLICT DO NOTHING
	`, uuid.NewString(), t.ownerID, DefaultCollectionName, toMillis(t.now), toMillis(t.now))
	if err != nil {
		return nil, fmt.Errorf("failed to create default collection: %w", err)
	}
	return defaultCollection(t.ctx, t.tx, t.ownerID)
}

// Collection returns a collection by id including soft-deleted ones
func (t *Tx) Collection(id string) (*backend.Collection, error) {
	return collection(t.ctx, t.tx, t.ownerID, id)
}

// CreateCollection adds a new non-default collection
func (t *Tx) CreateCollection(name string) (*backend.Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: collection name is required", backend.ErrInvalidInput)
	}
	id := uuid.NewString()
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO collections (id, owner_id, name, is_default, sync_status, created_at, updated_at)
		VALUES (?, ?, ?, 0, 'pending', ?, ?)
	`, id, t.ownerID, name, toMillis(t.now), toMillis(t.now))
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	return t.Collection(id)
}

// RenameCollection changes a collection's name. The default collection keeps its name.
func (t *Tx) RenameCollection(id, name string) (*backend.Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: collection name is required", backend.ErrInvalidInput)
	}
	c, err := t.liveCollection(id)
	if err != nil {
		return nil, err
	}
	if c.IsDefault {
		return nil, backend.ErrDefaultCollection
	}
	_, err = t.tx.ExecContext(t.ctx,
		"UPDATE collections SET name = ?, "+touchSQL+" WHERE owner_id = ? AND id = ?",
		name, toMillis(t.now), t.ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to rename collection: %w", err)
	}
	return t.Collection(id)
}

// DeleteCollection soft-deletes a collection and moves its items to the default collection
func (t *Tx) DeleteCollection(id string) error {
	c, err := t.liveCollection(id)
	if err != nil {
		return err
	}
	if c.IsDefault {
		return backend.ErrDefaultCollection
	}
	def, err := t.EnsureDefaultCollection()
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(t.ctx,
		"UPDATE items SET collection_id = ?, "+touchSQL+" WHERE owner_id = ? AND collection_id = ?",
		def.ID, toMillis(t.now), t.ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to reassign items of collection %s: %w", id, err)
	}

	_, err = t.tx.ExecContext(t.ctx,
		"UPDATE collections SET is_deleted = 1, deleted_at = ?, "+touchSQL+" WHERE owner_id = ? AND id = ?",
		toMillis(t.now), toMillis(t.now), t.ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", id, err)
	}
	return nil
}

// liveCollection returns a collection that is not soft-deleted
func (t *Tx) liveCollection(id string) (*backend.Collection, error) {
	c, err := t.Collection(id)
	if err != nil {
		return nil, err
	}
	if c.IsDeleted {
		return nil, fmt.Errorf("collection %s: %w", id, backend.ErrNotFound)
	}
	return c, nil
}

// EnsureDefaultCollection returns the owner's default collection, creating it if absent
func (s *Store) EnsureDefaultCollection(ctx context.Context) (*backend.Collection, error) {
	var out *backend.Collection
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.EnsureDefaultCollection()
		return err
	})
	return out, err
}

// CreateCollection adds a new collection
func (s *Store) CreateCollection(ctx context.Context, name string) (*backend.Collection, error) {
	var out *backend.Collection
	err := s.Update(ctx, func(tx *Tx) error {
		if _, err := tx.EnsureDefaultCollection(); err != nil {
			return err
		}
		var err error
		out, err = tx.CreateCollection(name)
		return err
	})
	return out, err
}

// RenameCollection renames a non-default collection
func (s *Store) RenameCollection(ctx context.Context, id, name string) (*backend.Collection, error) {
	var out *backend.Collection
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.RenameCollection(id, name)
		return err
	})
	return out, err
}

// DeleteCollection soft-deletes a non-default collection, reassigning its items
func (s *Store) DeleteCollection(ctx context.Context, id string) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.DeleteCollection(id)
	})
}

// GetCollection returns a live collection by id
func (s *Store) GetCollection(ctx context.Context, id string) (*backend.Collection, error) {
	c, err := collection(ctx, s.db, s.ownerID, id)
	if err != nil {
		return nil, err
	}
	if c.IsDeleted {
		return nil, fmt.Errorf("collection %s: %w", id, backend.ErrNotFound)
	}
	return c, nil
}

// DefaultCollection returns the owner's default collection without creating one
func (s *Store) DefaultCollection(ctx context.Context) (*backend.Collection, error) {
	return defaultCollection(ctx, s.db, s.ownerID)
}

// ListCollections returns live collections, default first
func (s *Store) ListCollections(ctx context.Context) ([]backend.Collection, error) {
	return queryCollections(ctx, s.db,
		"owner_id = ? AND is_deleted = 0 ORDER BY is_default DESC, name COLLATE NOCASE", s.ownerID)
}
