package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gomarks/backend"
	"gomarks/backend/sqlite"
	"gomarks/internal/utils"
)

const (
	DefaultMaxRetries     = 3
	DefaultBaseRetryDelay = time.Second
)

// RetryScheduler owns the retry queue: it records failed chunks, releases
// due entries back into collection and gives up on exhausted ones.
type RetryScheduler struct {
	store      *sqlite.Store
	maxRetries int
	baseDelay  time.Duration
}

// NewRetryScheduler creates a RetryScheduler
func NewRetryScheduler(store *sqlite.Store, maxRetries int, baseDelay time.Duration) *RetryScheduler {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseRetryDelay
	}
	return &RetryScheduler{store: store, maxRetries: maxRetries, baseDelay: baseDelay}
}

// BackoffDelay returns baseDelay * 2^retryCount
func BackoffDelay(base time.Duration, retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	return base * time.Duration(1<<uint(retryCount))
}

// RetryPlan is the outcome of draining the queue at the start of a cycle
type RetryPlan struct {
	Held     map[string]bool // ref keys of entries that are not due yet
	Released int
	Dropped  int
	Errors   []string
}

// Prepare walks the queue. Entries not yet due hold their entities back from
// collection. Due entries past their limit are dropped and their entities parked
// in error; the others are bumped and their entities become eligible again.
func (r *RetryScheduler) Prepare(ctx context.Context) (*RetryPlan, error) {
	plan := &RetryPlan{Held: make(map[string]bool)}

	entries, err := r.store.RetryEntries(ctx)
	if err != nil {
		return nil, err
	}
	now := r.store.Now()

	err = r.store.Update(ctx, func(tx *sqlite.Tx) error {
		for i := range entries {
			e := &entries[i]
			chunk, err := e.Chunk()
			if err != nil {
				utils.Errorf("dropping unreadable retry entry %s: %v", e.ID, err)
				if err := tx.DeleteRetry(e.ID); err != nil {
					return err
				}
				continue
			}
			refs := chunk.Refs()

			if e.NextRetryAt.After(now) {
				for _, key := range refs.Keys() {
					plan.Held[key] = true
				}
				continue
			}

			if e.Exhausted() {
				msg := fmt.Sprintf("gave up after %d retries: %s", e.RetryCount, e.LastError)
				utils.Errorf("retry entry %s (%s, %d entities) %s", e.ID, e.EntityKind, refs.Len(), msg)
				if err := tx.Park(refs, msg); err != nil {
					return err
				}
				if err := tx.DeleteRetry(e.ID); err != nil {
					return err
				}
				plan.Dropped++
				plan.Errors = append(plan.Errors, fmt.Sprintf("retry %s dropped: %s", e.ID, msg))
				continue
			}

			e.RetryCount++
			e.NextRetryAt = now.Add(BackoffDelay(r.baseDelay, e.RetryCount))
			if err := tx.UpdateRetry(e); err != nil {
				return err
			}
			utils.Debugf("retry entry %s released (attempt %d/%d, next at %s)",
				e.ID, e.RetryCount, e.MaxRetries, e.NextRetryAt.Format(time.RFC3339))
			plan.Released++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to process retry queue: %w", err)
	}
	return plan, nil
}

// RecordFailure queues a failed chunk. Entities already covered by an entry only
// refresh that entry's error; the rest get a new entry with retryCount 0.
func (r *RetryScheduler) RecordFailure(ctx context.Context, chunk *backend.SyncBatch, cause error) error {
	entries, err := r.store.RetryEntries(ctx)
	if err != nil {
		return err
	}

	covered := make(map[string]bool)
	var touched []*backend.RetryQueueEntry
	chunkKeys := make(map[string]bool)
	for _, key := range chunk.Refs().Keys() {
		chunkKeys[key] = true
	}
	for i := range entries {
		e := &entries[i]
		prev, err := e.Chunk()
		if err != nil {
			continue
		}
		hit := false
		for _, key := range prev.Refs().Keys() {
			if chunkKeys[key] {
				covered[key] = true
				hit = true
			}
		}
		if hit {
			touched = append(touched, e)
		}
	}

	rest := subset(chunk, func(key string) bool { return !covered[key] })

	return r.store.Update(ctx, func(tx *sqlite.Tx) error {
		for _, e := range touched {
			e.LastError = cause.Error()
			if err := tx.UpdateRetry(e); err != nil {
				return err
			}
		}
		if rest.IsEmpty() {
			return nil
		}
		payload, err := json.Marshal(rest)
		if err != nil {
			return fmt.Errorf("failed to encode retry payload: %w", err)
		}
		entry := &backend.RetryQueueEntry{
			Operation:   backend.OpPush,
			EntityKind:  rest.Kind(),
			Payload:     payload,
			RetryCount:  0,
			MaxRetries:  r.maxRetries,
			NextRetryAt: tx.Now().Add(r.baseDelay),
			LastError:   cause.Error(),
		}
		if err := tx.AddRetry(entry); err != nil {
			return err
		}
		utils.Infof("queued %d entities for retry at %s", rest.Size()+rest.Deletions.Len(),
			entry.NextRetryAt.Format(time.RFC3339))
		return nil
	})
}

// Settle removes entries whose entities no longer wait for the authority
func (r *RetryScheduler) Settle(ctx context.Context) (int, error) {
	entries, err := r.store.RetryEntries(ctx)
	if err != nil {
		return 0, err
	}

	var done []string
	for i := range entries {
		chunk, err := entries[i].Chunk()
		if err != nil {
			continue
		}
		left, err := r.store.Unsettled(ctx, chunk.Refs())
		if err != nil {
			return 0, err
		}
		if left.Len() == 0 {
			done = append(done, entries[i].ID)
		}
	}
	if len(done) == 0 {
		return 0, nil
	}

	err = r.store.Update(ctx, func(tx *sqlite.Tx) error {
		for _, id := range done {
			if err := tx.DeleteRetry(id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(done), nil
}

// subset copies the entities of b whose ref key passes keep
func subset(b *backend.SyncBatch, keep func(key string) bool) *backend.SyncBatch {
	out := &backend.SyncBatch{}
	for _, it := range b.Items {
		if keep(backend.RefKey(backend.EntityItem, it.ID)) {
			out.Items = append(out.Items, it)
		}
	}
	for _, c := range b.Collections {
		if keep(backend.RefKey(backend.EntityCollection, c.ID)) {
			out.Collections = append(out.Collections, c)
		}
	}
	for _, tg := range b.Tags {
		if keep(backend.RefKey(backend.EntityTag, tg.ID)) {
			out.Tags = append(out.Tags, tg)
		}
	}
	for _, l := range b.ItemTags {
		if keep(backend.RefKey(backend.EntityItemTag, l.Key())) {
			out.ItemTags = append(out.ItemTags, l)
		}
	}
	for _, id := range b.Deletions.ItemIDs {
		if keep(backend.RefKey(backend.EntityItem, id)) {
			out.Deletions.ItemIDs = append(out.Deletions.ItemIDs, id)
		}
	}
	for _, id := range b.Deletions.CollectionIDs {
		if keep(backend.RefKey(backend.EntityCollection, id)) {
			out.Deletions.CollectionIDs = append(out.Deletions.CollectionIDs, id)
		}
	}
	for _, id := range b.Deletions.TagIDs {
		if keep(backend.RefKey(backend.EntityTag, id)) {
			out.Deletions.TagIDs = append(out.Deletions.TagIDs, id)
		}
	}
	return out
}
