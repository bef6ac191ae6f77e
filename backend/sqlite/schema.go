package sqlite

// Schema version for migration management
const SchemaVersion = 1

// SQL statements for database schema creation. All timestamps are unix milliseconds.

// CollectionsTableSQL creates the collections table
const CollectionsTableSQL = `
CREATE TABLE IF NOT EXISTS collections (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    name TEXT NOT NULL,
    is_default INTEGER NOT NULL DEFAULT 0,

    is_deleted INTEGER NOT NULL DEFAULT 0,
    deleted_at INTEGER,
    sync_status TEXT NOT NULL DEFAULT 'pending'
        CHECK(sync_status IN ('pending', 'syncing', 'synced', 'error')),
    last_synced_at INTEGER,
    sync_error TEXT NOT NULL DEFAULT '',
    sync_parked INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// ItemsTableSQL creates the items table
const ItemsTableSQL = `
CREATE TABLE IF NOT EXISTS items (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    collection_id TEXT NOT NULL,
    kind TEXT NOT NULL CHECK(kind IN ('bookmark', 'color', 'text')),
    title TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT '',
    color TEXT NOT NULL DEFAULT '',

    is_deleted INTEGER NOT NULL DEFAULT 0,
    deleted_at INTEGER,
    sync_status TEXT NOT NULL DEFAULT 'pending'
        CHECK(sync_status IN ('pending', 'syncing', 'synced', 'error')),
    last_synced_at INTEGER,
    sync_error TEXT NOT NULL DEFAULT '',
    sync_parked INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// TagsTableSQL creates the tags table
const TagsTableSQL = `
CREATE TABLE IF NOT EXISTS tags (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    name TEXT NOT NULL,
    slug TEXT NOT NULL,

    is_deleted INTEGER NOT NULL DEFAULT 0,
    deleted_at INTEGER,
    sync_status TEXT NOT NULL DEFAULT 'pending'
        CHECK(sync_status IN ('pending', 'syncing', 'synced', 'error')),
    last_synced_at INTEGER,
    sync_error TEXT NOT NULL DEFAULT '',
    sync_parked INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// ItemTagsTableSQL creates the item/tag link table. Links die with either end.
const ItemTagsTableSQL = `
CREATE TABLE IF NOT EXISTS item_tags (
    item_id TEXT NOT NULL,
    tag_id TEXT NOT NULL,
    sync_status TEXT NOT NULL DEFAULT 'pending'
        CHECK(sync_status IN ('pending', 'syncing', 'synced', 'error')),

    PRIMARY KEY(item_id, tag_id),
    FOREIGN KEY(item_id) REFERENCES items(id) ON DELETE CASCADE,
    FOREIGN KEY(tag_id) REFERENCES tags(id) ON DELETE CASCADE
);
`

// RetryQueueTableSQL creates the queue of failed chunks awaiting retransmission
const RetryQueueTableSQL = `
CREATE TABLE IF NOT EXISTS retry_queue (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    operation TEXT NOT NULL CHECK(operation IN ('push')),
    entity_kind TEXT NOT NULL,
    payload TEXT NOT NULL,
    retry_count INTEGER NOT NULL DEFAULT 0,
    max_retries INTEGER NOT NULL,
    next_retry_at INTEGER NOT NULL,
    last_error TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);
`

// SchemaVersionTableSQL creates the schema version tracking table
const SchemaVersionTableSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at INTEGER NOT NULL
);
`

// Indexes for query performance and uniqueness
const (
	// Exactly one default collection per owner
	IdxCollectionsDefaultSQL = `CREATE UNIQUE INDEX IF NOT EXISTS idx_collections_default ON collections(owner_id) WHERE is_default = 1;`

	IdxCollectionsSyncSQL = `CREATE INDEX IF NOT EXISTS idx_collections_sync ON collections(owner_id, sync_status);`
	IdxItemsCollectionSQL = `CREATE INDEX IF NOT EXISTS idx_items_collection ON items(collection_id);`
	IdxItemsSyncSQL       = `CREATE INDEX IF NOT EXISTS idx_items_sync ON items(owner_id, sync_status);`

	// Tag names are unique per owner by slug, ignoring deleted tags
	IdxTagsSlugSQL = `CREATE UNIQUE INDEX IF NOT EXISTS idx_tags_slug ON tags(owner_id, slug) WHERE is_deleted = 0;`

	IdxTagsSyncSQL      = `CREATE INDEX IF NOT EXISTS idx_tags_sync ON tags(owner_id, sync_status);`
	IdxItemTagsTagSQL   = `CREATE INDEX IF NOT EXISTS idx_item_tags_tag ON item_tags(tag_id);`
	IdxRetryQueueDueSQL = `CREATE INDEX IF NOT EXISTS idx_retry_queue_due ON retry_queue(owner_id, next_retry_at);`
)

// AllTableSchemas returns all table creation statements in order
func AllTableSchemas() []string {
	return []string{
		CollectionsTableSQL,
		ItemsTableSQL,
		TagsTableSQL,
		ItemTagsTableSQL,
		RetryQueueTableSQL,
		SchemaVersionTableSQL,
	}
}

// AllIndexes returns all index creation statements
func AllIndexes() []string {
	return []string{
		IdxCollectionsDefaultSQL,
		IdxCollectionsSyncSQL,
		IdxItemsCollectionSQL,
		IdxItemsSyncSQL,
		IdxTagsSlugSQL,
		IdxTagsSyncSQL,
		IdxItemTagsTagSQL,
		IdxRetryQueueDueSQL,
	}
}

// PragmaStatements returns PRAGMA statements for optimal SQLite configuration
func PragmaStatements() []string {
	return []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",   // Write-Ahead Logging for better concurrency
		"PRAGMA synchronous = NORMAL", // Balance between safety and performance
		"PRAGMA busy_timeout = 5000",
	}
}
