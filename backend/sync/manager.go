// Package sync runs push/pull cycles between the local store and the remote authority.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	stdsync "sync"
	"sync/atomic"
	"time"

	"gomarks/backend"
	"gomarks/backend/sqlite"
	"gomarks/internal/utils"
)

// ErrSyncInProgress is returned when a cycle is requested while one is running
var ErrSyncInProgress = errors.New("sync already in progress")

// Remote is the authority as seen by a sync cycle
type Remote interface {
	Push(ctx context.Context, chunk *backend.SyncBatch) (*backend.Ack, error)
	Pull(ctx context.Context, since *time.Time) (*backend.SyncBatch, error)
}

// Observer is told about every finished cycle
type Observer interface {
	ObserveSync(result *SyncResult)
}

// Config tunes a SyncManager
type Config struct {
	ChunkSize      int
	MaxRetries     int
	BaseRetryDelay time.Duration
}

// SyncManager coordinates synchronization between the local store and the remote authority
type SyncManager struct {
	store      *sqlite.Store
	remote     Remote
	cfg        Config
	collector  *Collector
	reconciler *Reconciler
	retries    *RetryScheduler
	lock       *sqlite.SyncLock

	syncing atomic.Bool

	mu        stdsync.RWMutex
	observers []Observer
	last      *SyncResult
}

// NewSyncManager creates a new sync manager
func NewSyncManager(store *sqlite.Store, remote Remote, cfg Config) *SyncManager {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = DefaultBaseRetryDelay
	}
	return &SyncManager{
		store:      store,
		remote:     remote,
		cfg:        cfg,
		collector:  NewCollector(store),
		reconciler: NewReconciler(store),
		retries:    NewRetryScheduler(store, cfg.MaxRetries, cfg.BaseRetryDelay),
		lock:       store.DB().SyncLock(),
	}
}

// AddObserver registers o for cycle results
func (sm *SyncManager) AddObserver(o Observer) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.observers = append(sm.observers, o)
}

// IsSyncing reports whether a cycle is running
func (sm *SyncManager) IsSyncing() bool {
	return sm.syncing.Load()
}

// LastResult returns the result of the most recent cycle, or nil
func (sm *SyncManager) LastResult() *SyncResult {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.last
}

// SyncResult summarizes one cycle
type SyncResult struct {
	Success bool

	ItemsSynced        int
	CollectionsSynced  int
	TagsSynced         int
	ItemTagsSynced     int
	ItemsDeleted       int
	CollectionsDeleted int
	TagsDeleted        int
	Requeued           int
	Recovered          int

	Pulled      int
	PullSkipped int

	Chunks          int
	FailedChunks    int
	RetriesReleased int
	RetriesDropped  int

	Errors   []error
	Warnings []string

	StartedAt time.Time
	Duration  time.Duration
}

// Pushed returns the number of entities the authority accepted this cycle
func (r *SyncResult) Pushed() int {
	return r.ItemsSynced + r.CollectionsSynced + r.TagsSynced + r.ItemTagsSynced +
		r.ItemsDeleted + r.CollectionsDeleted + r.TagsDeleted
}

// Summary returns a one-line description of the cycle
func (r *SyncResult) Summary() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("pushed %d", r.Pushed()))
	parts = append(parts, fmt.Sprintf("pulled %d", r.Pulled))
	if r.FailedChunks > 0 {
		parts = append(parts, fmt.Sprintf("%d/%d chunks failed", r.FailedChunks, r.Chunks))
	}
	if r.RetriesDropped > 0 {
		parts = append(parts, fmt.Sprintf("%d retries abandoned", r.RetriesDropped))
	}
	if len(r.Warnings) > 0 {
		parts = append(parts, fmt.Sprintf("%d warnings", len(r.Warnings)))
	}
	return strings.Join(parts, ", ") + fmt.Sprintf(" in %s", r.Duration.Round(time.Millisecond))
}

// Sync runs one full cycle: retry queue, collect, split, push each chunk, settle, pull.
// Only one cycle runs at a time per database file, across processes; a concurrent
// call fails with ErrSyncInProgress and changes nothing. Once started the cycle
// runs to completion even if ctx is cancelled.
func (sm *SyncManager) Sync(ctx context.Context) (*SyncResult, error) {
	if !sm.syncing.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer sm.syncing.Store(false)

	locked, err := sm.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to take sync lock: %w", err)
	}
	if !locked {
		return nil, ErrSyncInProgress
	}
	defer func() {
		if err := sm.lock.Unlock(); err != nil {
			utils.Warnf("sync: failed to release sync lock: %v", err)
		}
	}()

	ctx = context.WithoutCancel(ctx)
	result := &SyncResult{StartedAt: time.Now()}
	defer func() {
		result.Duration = time.Since(result.StartedAt)
		sm.finish(result)
	}()

	// Phase 0: sample the pull watermark before anything moves it
	watermark, err := sm.store.Watermark(ctx)
	if err != nil {
		return result, err
	}
	if _, err := sm.store.EnsureDefaultCollection(ctx); err != nil {
		return result, err
	}
	// Nothing else can be in flight while the lock is held
	if result.Recovered, err = sm.reconciler.RecoverInFlight(ctx); err != nil {
		return result, err
	}
	if result.Recovered > 0 {
		utils.Warnf("sync: %d entities left in flight by an unfinished cycle are pending again", result.Recovered)
	}

	// Phase 1: retry queue
	plan, err := sm.retries.Prepare(ctx)
	if err != nil {
		return result, err
	}
	result.RetriesReleased = plan.Released
	result.RetriesDropped = plan.Dropped
	for _, msg := range plan.Errors {
		result.Errors = append(result.Errors, errors.New(msg))
	}

	// Phase 2: push
	if err := sm.push(ctx, plan, result); err != nil {
		return result, err
	}
	if _, err := sm.retries.Settle(ctx); err != nil {
		return result, err
	}

	// Phase 3: pull. Failures here never fail the cycle.
	sm.pull(ctx, watermark, result)

	result.Success = result.FailedChunks == 0
	return result, nil
}

// push collects, splits and transmits local changes chunk by chunk
func (sm *SyncManager) push(ctx context.Context, plan *RetryPlan, result *SyncResult) error {
	batch, err := sm.collector.Collect(ctx, plan.Held)
	if err != nil {
		return err
	}
	if batch.IsEmpty() {
		utils.Debugf("sync: nothing to push")
		return nil
	}

	known, err := sm.store.KnownTagIDs(ctx)
	if err != nil {
		return err
	}
	chunks := Split(batch, sm.cfg.ChunkSize, known)
	result.Chunks = len(chunks)
	utils.Debugf("sync: pushing %d entities in %d chunks", batch.Size()+batch.Deletions.Len(), len(chunks))

	for i, chunk := range chunks {
		if err := sm.reconciler.MarkInFlight(ctx, chunk); err != nil {
			return err
		}
		// abort leaves nothing of this chunk syncing when the store fails mid-chunk
		abort := func(err error) error {
			if rerr := sm.reconciler.Release(ctx, chunk); rerr != nil {
				utils.Errorf("sync: failed to release chunk %d/%d: %v", i+1, len(chunks), rerr)
			}
			return err
		}

		ack, err := sm.remote.Push(ctx, chunk)
		if err != nil {
			utils.Warnf("sync: chunk %d/%d failed: %v", i+1, len(chunks), err)
			result.FailedChunks++
			result.Errors = append(result.Errors, err)
			if err := sm.reconciler.RecordFailure(ctx, chunk, err); err != nil {
				return abort(err)
			}
			if err := sm.retries.RecordFailure(ctx, chunk, err); err != nil {
				return abort(err)
			}
			continue
		}

		stats, err := sm.reconciler.ApplyAck(ctx, chunk, ack)
		if err != nil {
			return abort(err)
		}
		result.ItemsSynced += stats.ItemsSynced
		result.CollectionsSynced += stats.CollectionsSynced
		result.TagsSynced += stats.TagsSynced
		result.ItemTagsSynced += stats.ItemTagsSynced
		result.ItemsDeleted += stats.ItemsDeleted
		result.CollectionsDeleted += stats.CollectionsDeleted
		result.TagsDeleted += stats.TagsDeleted
		result.Requeued += stats.Requeued
		result.Warnings = append(result.Warnings, stats.Warnings...)
	}
	return nil
}

// pull fetches and merges remote changes since watermark
func (sm *SyncManager) pull(ctx context.Context, watermark *time.Time, result *SyncResult) {
	remote, err := sm.remote.Pull(ctx, watermark)
	if err != nil {
		utils.Warnf("sync: pull failed: %v", err)
		result.Warnings = append(result.Warnings, fmt.Sprintf("pull failed: %v", err))
		return
	}

	stats, err := sm.reconciler.Merge(ctx, remote)
	if err != nil {
		utils.Errorf("sync: %v", err)
		result.Warnings = append(result.Warnings, err.Error())
		return
	}
	result.Pulled = stats.Total()
	result.PullSkipped = stats.KeptLocal
	result.Warnings = append(result.Warnings, stats.Warnings...)
}

func (sm *SyncManager) finish(result *SyncResult) {
	sm.mu.Lock()
	sm.last = result
	observers := append([]Observer(nil), sm.observers...)
	sm.mu.Unlock()

	utils.Infof("sync: %s", result.Summary())
	for _, o := range observers {
		o.ObserveSync(result)
	}
}
