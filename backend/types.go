package backend

import (
	"encoding/json"
	"fmt"
	"time"
)

// SyncStatus is the per-entity synchronization state
type SyncStatus string

const (
	StatusPending SyncStatus = "pending"
	StatusSyncing SyncStatus = "syncing"
	StatusSynced  SyncStatus = "synced"
	StatusError   SyncStatus = "error"
)

// Valid reports whether s is one of the four known states
func (s SyncStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSyncing, StatusSynced, StatusError:
		return true
	}
	return false
}

// NeedsSync reports whether an entity in this state is selected for push
func (s SyncStatus) NeedsSync() bool {
	return s == StatusPending || s == StatusError
}

// ItemKind classifies what an Item holds
type ItemKind string

const (
	KindBookmark ItemKind = "bookmark"
	KindColor    ItemKind = "color"
	KindText     ItemKind = "text"
)

// ParseItemKind converts user input into an ItemKind
func ParseItemKind(s string) (ItemKind, error) {
	switch k := ItemKind(s); k {
	case KindBookmark, KindColor, KindText:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown item kind %q (want bookmark, color or text)", ErrInvalidInput, s)
}

// EntityKind names a synchronized record type
type EntityKind string

const (
	EntityItem       EntityKind = "item"
	EntityCollection EntityKind = "collection"
	EntityTag        EntityKind = "tag"
	EntityItemTag    EntityKind = "itemTag"
	EntityBatch      EntityKind = "batch"
)

// SyncMeta holds the lifecycle fields shared by Items, Collections and Tags
type SyncMeta struct {
	IsDeleted    bool       `json:"isDeleted"`
	DeletedAt    *time.Time `json:"deletedAt,omitempty"`
	SyncStatus   SyncStatus `json:"syncStatus,omitempty"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
	SyncError    string     `json:"syncError,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Item is a bookmark, color swatch or text note
type Item struct {
	ID           string   `json:"id"`
	OwnerID      string   `json:"ownerId"`
	CollectionID string   `json:"collectionId"`
	Kind         ItemKind `json:"kind"`
	Title        string   `json:"title,omitempty"`
	URL          string   `json:"url,omitempty"`
	Content      string   `json:"content,omitempty"`
	Color        string   `json:"color,omitempty"`
	SyncMeta
}

// Collection groups Items; each owner has exactly one default Collection
type Collection struct {
	ID        string `json:"id"`
	OwnerID   string `json:"ownerId"`
	Name      string `json:"name"`
	IsDefault bool   `json:"isDefault"`
	SyncMeta
}

// Tag labels Items. Slug is unique per owner among live tags
type Tag struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	SyncMeta
}

// ItemTag links an Item to a Tag
type ItemTag struct {
	ItemID     string     `json:"itemId"`
	TagID      string     `json:"tagId"`
	SyncStatus SyncStatus `json:"syncStatus,omitempty"`
}

// Key returns the link's identity
func (l ItemTag) Key() string {
	return l.ItemID + ":" + l.TagID
}

// Deletions lists soft-deleted entity ids to propagate
type Deletions struct {
	ItemIDs       []string `json:"itemIds"`
	CollectionIDs []string `json:"collectionIds"`
	TagIDs        []string `json:"tagIds"`
}

// Len returns the number of ids
func (d Deletions) Len() int {
	return len(d.ItemIDs) + len(d.CollectionIDs) + len(d.TagIDs)
}

// SyncBatch is the push/pull payload
type SyncBatch struct {
	Items       []Item       `json:"items"`
	Collections []Collection `json:"collections"`
	Tags        []Tag        `json:"tags"`
	ItemTags    []ItemTag    `json:"itemTags"`
	Deletions   Deletions    `json:"deletions"`
}

// Size counts the active entities a chunk threshold applies to
func (b *SyncBatch) Size() int {
	return len(b.Items) + len(b.Collections) + len(b.Tags) + len(b.ItemTags)
}

// IsEmpty reports whether there is nothing to transmit
func (b *SyncBatch) IsEmpty() bool {
	return b.Size() == 0 && b.Deletions.Len() == 0
}

// Normalize replaces nil slices with empty ones so the wire form always carries arrays
func (b *SyncBatch) Normalize() {
	if b.Items == nil {
		b.Items = []Item{}
	}
	if b.Collections == nil {
		b.Collections = []Collection{}
	}
	if b.Tags == nil {
		b.Tags = []Tag{}
	}
	if b.ItemTags == nil {
		b.ItemTags = []ItemTag{}
	}
	if b.Deletions.ItemIDs == nil {
		b.Deletions.ItemIDs = []string{}
	}
	if b.Deletions.CollectionIDs == nil {
		b.Deletions.CollectionIDs = []string{}
	}
	if b.Deletions.TagIDs == nil {
		b.Deletions.TagIDs = []string{}
	}
}

// Kind returns the single entity kind carried by the batch, or EntityBatch when mixed
func (b *SyncBatch) Kind() EntityKind {
	var kinds []EntityKind
	if len(b.Items) > 0 || len(b.Deletions.ItemIDs) > 0 {
		kinds = append(kinds, EntityItem)
	}
	if len(b.Collections) > 0 || len(b.Deletions.CollectionIDs) > 0 {
		kinds = append(kinds, EntityCollection)
	}
	if len(b.Tags) > 0 || len(b.Deletions.TagIDs) > 0 {
		kinds = append(kinds, EntityTag)
	}
	if len(b.ItemTags) > 0 {
		kinds = append(kinds, EntityItemTag)
	}
	if len(kinds) == 1 {
		return kinds[0]
	}
	return EntityBatch
}

// Refs returns the identities of every entity in the batch
func (b *SyncBatch) Refs() EntityRefs {
	refs := EntityRefs{}
	for _, it := range b.Items {
		refs.ItemIDs = append(refs.ItemIDs, it.ID)
	}
	refs.ItemIDs = append(refs.ItemIDs, b.Deletions.ItemIDs...)
	for _, c := range b.Collections {
		refs.CollectionIDs = append(refs.CollectionIDs, c.ID)
	}
	refs.CollectionIDs = append(refs.CollectionIDs, b.Deletions.CollectionIDs...)
	for _, t := range b.Tags {
		refs.TagIDs = append(refs.TagIDs, t.ID)
	}
	refs.TagIDs = append(refs.TagIDs, b.Deletions.TagIDs...)
	refs.ItemTags = append(refs.ItemTags, b.ItemTags...)
	return refs
}

// EntityRefs identifies a set of entities without their contents
type EntityRefs struct {
	ItemIDs       []string  `json:"itemIds,omitempty"`
	CollectionIDs []string  `json:"collectionIds,omitempty"`
	TagIDs        []string  `json:"tagIds,omitempty"`
	ItemTags      []ItemTag `json:"itemTags,omitempty"`
}

// Len returns the number of referenced entities
func (r EntityRefs) Len() int {
	return len(r.ItemIDs) + len(r.CollectionIDs) + len(r.TagIDs) + len(r.ItemTags)
}

// Keys returns "kind:id" strings for every referenced entity
func (r EntityRefs) Keys() []string {
	keys := make([]string, 0, r.Len())
	for _, id := range r.ItemIDs {
		keys = append(keys, RefKey(EntityItem, id))
	}
	for _, id := range r.CollectionIDs {
		keys = append(keys, RefKey(EntityCollection, id))
	}
	for _, id := range r.TagIDs {
		keys = append(keys, RefKey(EntityTag, id))
	}
	for _, l := range r.ItemTags {
		keys = append(keys, RefKey(EntityItemTag, l.Key()))
	}
	return keys
}

// RefKey builds the identity string used by EntityRefs.Keys
func RefKey(kind EntityKind, id string) string {
	return string(kind) + ":" + id
}

// SyncedSet is the synced partition of an Ack
type SyncedSet struct {
	Items       []string  `json:"items"`
	Collections []string  `json:"collections"`
	Tags        []string  `json:"tags"`
	ItemTags    []ItemTag `json:"itemTags"`
}

// DeletedSet is the deleted partition of an Ack
type DeletedSet struct {
	Items       []string `json:"items"`
	Collections []string `json:"collections"`
	Tags        []string `json:"tags"`
}

// Conflict describes an entity the authority rejected or rewrote
type Conflict struct {
	Entity   EntityKind `json:"entity"`
	EntityID string     `json:"entityId"`
	Reason   string     `json:"reason"`
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s %s: %s", c.Entity, c.EntityID, c.Reason)
}

// Ack is the authority's acknowledgement of a pushed chunk
type Ack struct {
	Success   bool       `json:"success"`
	Synced    SyncedSet  `json:"synced"`
	Deleted   DeletedSet `json:"deleted"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
}

// NewAck returns a successful, empty acknowledgement with all arrays present
func NewAck() *Ack {
	return &Ack{
		Success: true,
		Synced: SyncedSet{
			Items:       []string{},
			Collections: []string{},
			Tags:        []string{},
			ItemTags:    []ItemTag{},
		},
		Deleted: DeletedSet{
			Items:       []string{},
			Collections: []string{},
			Tags:        []string{},
		},
	}
}

// RetryOperation names what a retry entry re-attempts
type RetryOperation string

const OpPush RetryOperation = "push"

// RetryQueueEntry records a failed chunk awaiting retransmission
type RetryQueueEntry struct {
	ID          string          `json:"id"`
	Operation   RetryOperation  `json:"operation"`
	EntityKind  EntityKind      `json:"entityKind"`
	Payload     json.RawMessage `json:"payload"`
	RetryCount  int             `json:"retryCount"`
	MaxRetries  int             `json:"maxRetries"`
	NextRetryAt time.Time       `json:"nextRetryAt"`
	LastError   string          `json:"lastError,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Chunk decodes the payload back into the batch that failed
func (e *RetryQueueEntry) Chunk() (*SyncBatch, error) {
	var b SyncBatch
	if err := json.Unmarshal(e.Payload, &b); err != nil {
		return nil, fmt.Errorf("failed to decode retry payload %s: %w", e.ID, err)
	}
	return &b, nil
}

// Exhausted reports whether the entry has used up its retries
func (e *RetryQueueEntry) Exhausted() bool {
	return e.RetryCount >= e.MaxRetries
}
