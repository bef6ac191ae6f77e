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

// Store is the local entity store for one owner. Every read and write is scoped
// to that owner; a different owner means a different Store.
type Store struct {
	db      *Database
	ownerID string
	clock   func() time.Time
	ownsDB  bool
}

// Open opens the database at path and binds a Store to ownerID
func Open(path, ownerID string) (*Store, error) {
	db, err := OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	s, err := New(db, ownerID)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// New binds a Store to an already opened database
func New(db *Database, ownerID string) (*Store, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner id is required", backend.ErrInvalidInput)
	}
	return &Store{db: db, ownerID: ownerID, clock: time.Now}, nil
}

// Close closes the underlying database if the Store opened it
func (s *Store) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// OwnerID returns the owner this store is bound to
func (s *Store) OwnerID() string {
	return s.ownerID
}

// DB returns the underlying database handle
func (s *Store) DB() *Database {
	return s.db
}

// SetClock replaces the time source; used by tests
func (s *Store) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Now returns the store's current time at millisecond precision
func (s *Store) Now() time.Time {
	return s.clock().UTC().Truncate(time.Millisecond)
}

// Tx is a write transaction scoped to the store's owner
type Tx struct {
	ctx     context.Context
	tx      *sql.Tx
	ownerID string
	now     time.Time
}

// Now returns the timestamp shared by every write in the transaction
func (t *Tx) Now() time.Time {
	return t.now
}

// OwnerID returns the owner the transaction is scoped to
func (t *Tx) OwnerID() string {
	return t.ownerID
}

// Update runs fn inside one transaction and commits if fn returns nil
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	tx := &Tx{ctx: ctx, tx: sqlTx, ownerID: s.ownerID, now: s.Now()}
	if err := fn(tx); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// querier is the subset of *sql.DB and *sql.Tx the read helpers need
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// touchSQL marks a row as locally modified. A row in flight stays syncing;
// the updated_at bump makes the pending ack's version check fail so it is re-pushed.
const touchSQL = `sync_status = CASE WHEN sync_status = 'syncing' THEN 'syncing' ELSE 'pending' END,
	sync_parked = 0,
	updated_at = MAX(updated_at + 1, ?)`

const metaColumns = `is_deleted, deleted_at, sync_status, last_synced_at, sync_error, created_at, updated_at`

// metaScan collects the lifecycle columns of a row
type metaScan struct {
	isDeleted    bool
	deletedAt    sql.NullInt64
	status       string
	lastSyncedAt sql.NullInt64
	syncError    string
	createdAt    int64
	updatedAt    int64
}

func (m *metaScan) dest() []any {
	return []any{&m.isDeleted, &m.deletedAt, &m.status, &m.lastSyncedAt, &m.syncError, &m.createdAt, &m.updatedAt}
}

func (m *metaScan) meta() backend.SyncMeta {
	return backend.SyncMeta{
		IsDeleted:    m.isDeleted,
		DeletedAt:    fromNullMillis(m.deletedAt),
		SyncStatus:   backend.SyncStatus(m.status),
		LastSyncedAt: fromNullMillis(m.lastSyncedAt),
		SyncError:    m.syncError,
		CreatedAt:    fromMillis(m.createdAt),
		UpdatedAt:    fromMillis(m.updatedAt),
	}
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func toNullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// inClause returns "(?, ?, ...)" and the matching args
func inClause(ids []string) (string, []any) {
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return "(" + strings.Join(marks, ", ") + ")", args
}

// notFound converts sql.ErrNoRows into backend.ErrNotFound
func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, backend.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s %s: %w", what, id, err)
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
