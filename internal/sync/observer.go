package sync

import (
	"context"

	"gomarks/backend"
	"gomarks/backend/sqlite"
	backendsync "gomarks/backend/sync"
	"gomarks/internal/metrics"
	"gomarks/internal/utils"
)

// MetricsObserver publishes every finished cycle to the Prometheus collectors
type MetricsObserver struct {
	store *sqlite.Store
}

// NewMetricsObserver creates an observer that samples pending counts from store.
// A nil store leaves the pending gauge at zero.
func NewMetricsObserver(store *sqlite.Store) *MetricsObserver {
	return &MetricsObserver{store: store}
}

// ObserveSync implements backendsync.Observer
func (o *MetricsObserver) ObserveSync(r *backendsync.SyncResult) {
	metrics.RecordCycle(CycleMetrics(r, o.pending()))
}

func (o *MetricsObserver) pending() int {
	if o.store == nil {
		return 0
	}
	stats, err := o.store.Stats(context.Background())
	if err != nil {
		utils.Debugf("metrics: failed to read sync stats: %v", err)
		return 0
	}
	return PendingCount(stats)
}

// CycleMetrics converts a cycle result into its metrics record
func CycleMetrics(r *backendsync.SyncResult, pending int) metrics.Cycle {
	return metrics.Cycle{
		Success:  r.Success,
		Duration: r.Duration,
		Pushed: map[string]int{
			string(backend.EntityItem):       r.ItemsSynced + r.ItemsDeleted,
			string(backend.EntityCollection): r.CollectionsSynced + r.CollectionsDeleted,
			string(backend.EntityTag):        r.TagsSynced + r.TagsDeleted,
			string(backend.EntityItemTag):    r.ItemTagsSynced,
		},
		Pulled:       r.Pulled,
		FailedChunks: r.FailedChunks,
		Dropped:      r.RetriesDropped,
		Pending:      pending,
	}
}

// PendingCount returns the entities still waiting for the authority
func PendingCount(stats *sqlite.SyncStats) int {
	n := 0
	for _, counts := range []sqlite.StatusCounts{stats.Items, stats.Collections, stats.Tags, stats.ItemTags} {
		for status, c := range counts {
			if status != backend.StatusSynced {
				n += c
			}
		}
	}
	return n
}
