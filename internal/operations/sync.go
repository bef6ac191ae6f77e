package operations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"gomarks/backend"
	"gomarks/backend/sqlite"
	backendsync "gomarks/backend/sync"
	"gomarks/internal/app"
	"gomarks/internal/cli"
	"gomarks/internal/utils"
)

// probeTimeout bounds the reachability check before a manual sync
const probeTimeout = 3 * time.Second

// StatusView is the output of 'sync status'
type StatusView struct {
	*sqlite.SyncStats
	Online *bool `json:"online,omitempty"`
}

// RunSync runs one cycle now. An unreachable authority is reported as an
// offline error with a suggestion; local changes stay queued.
func RunSync(ctx context.Context, a *app.App) (*backendsync.SyncResult, error) {
	engine, err := a.Engine()
	if err != nil {
		return nil, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	err = engine.Client.Ping(probeCtx)
	cancel()
	if err != nil {
		return nil, utils.ErrRemoteOffline(a.Config().Remote.BaseURL, err.Error())
	}

	result, err := engine.Manager.Sync(ctx)
	if err != nil {
		if errors.Is(err, backendsync.ErrSyncInProgress) {
			return nil, utils.WrapWithSuggestion(err, "Another sync is running; try again in a moment")
		}
		return nil, fmt.Errorf("sync failed: %w", err)
	}
	if unauthorized(result) {
		return result, utils.ErrAuthenticationFailed(a.Config().Remote.BaseURL)
	}
	return result, nil
}

func unauthorized(r *backendsync.SyncResult) bool {
	for _, err := range r.Errors {
		if be, ok := backend.AsBackendError(err); ok && be.IsUnauthorized() {
			return true
		}
	}
	return false
}

// PrintSyncResult writes a cycle result to w in format
func PrintSyncResult(w io.Writer, format string, r *backendsync.SyncResult) error {
	if format != utils.FormatText && format != "" {
		errs := make([]string, len(r.Errors))
		for i, err := range r.Errors {
			errs[i] = err.Error()
		}
		return utils.WriteFormatted(w, format, map[string]any{
			"success":            r.Success,
			"itemsSynced":        r.ItemsSynced,
			"collectionsSynced":  r.CollectionsSynced,
			"tagsSynced":         r.TagsSynced,
			"itemTagsSynced":     r.ItemTagsSynced,
			"itemsDeleted":       r.ItemsDeleted,
			"collectionsDeleted": r.CollectionsDeleted,
			"tagsDeleted":        r.TagsDeleted,
			"requeued":           r.Requeued,
			"pulled":             r.Pulled,
			"pullSkipped":        r.PullSkipped,
			"chunks":             r.Chunks,
			"failedChunks":       r.FailedChunks,
			"retriesReleased":    r.RetriesReleased,
			"retriesDropped":     r.RetriesDropped,
			"errors":             errs,
			"warnings":           r.Warnings,
			"durationMs":         r.Duration.Milliseconds(),
		})
	}
	cli.ShowSyncResult(w, r)
	return nil
}

// Status collects local sync state. With probe set and sync enabled it also
// checks whether the authority is reachable.
func Status(ctx context.Context, a *app.App, probe bool) (*StatusView, error) {
	stats, err := a.Store().Stats(ctx)
	if err != nil {
		return nil, err
	}
	view := &StatusView{SyncStats: stats}
	if !probe || !a.Config().Sync.Enabled {
		return view, nil
	}

	engine, err := a.Engine()
	if err != nil {
		return nil, err
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	online := engine.Client.Ping(probeCtx) == nil
	view.Online = &online
	return view, nil
}

// PrintStatus writes a status view to w in format
func PrintStatus(w io.Writer, format string, v *StatusView) error {
	if format != utils.FormatText && format != "" {
		return utils.WriteFormatted(w, format, v)
	}
	cli.ShowSyncStats(w, v.SyncStats, v.Online)
	return nil
}

// Queue returns the retry queue
func Queue(ctx context.Context, a *app.App) ([]backend.RetryQueueEntry, error) {
	return a.Store().RetryEntries(ctx)
}

// PrintQueue writes retry entries to w in format
func PrintQueue(w io.Writer, format string, entries []backend.RetryQueueEntry, now time.Time) error {
	if format != utils.FormatText && format != "" {
		return utils.WriteFormatted(w, format, entries)
	}
	cli.ShowRetryQueue(w, entries, now)
	return nil
}

// ClearQueue drops every retry entry. Affected entities stay in their current
// state and are collected again on the next sync.
func ClearQueue(ctx context.Context, a *app.App) (int, error) {
	return a.Store().ClearRetries(ctx)
}
