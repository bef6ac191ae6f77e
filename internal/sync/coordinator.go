// Package sync drives automatic sync cycles for the CLI: on a timer and
// whenever the authority becomes reachable again.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	backendsync "gomarks/backend/sync"
)

// probeTimeout bounds a reachability check
const probeTimeout = 3 * time.Second

// Syncer runs one sync cycle
type Syncer interface {
	Sync(ctx context.Context) (*backendsync.SyncResult, error)
}

// Pinger checks whether the authority is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// SyncCoordinator triggers cycles on a timer and on reachability changes.
// At most one triggered cycle runs at a time.
type SyncCoordinator struct {
	syncer   Syncer
	pinger   Pinger
	interval time.Duration

	// Goroutine management
	wg     sync.WaitGroup
	stop   chan struct{}
	once   sync.Once
	notify chan struct{}

	running  atomic.Bool
	online   atomic.Bool
	shutdown atomic.Bool

	logger *log.Logger

	mu      sync.Mutex
	results []func(*backendsync.SyncResult)
}

// NewSyncCoordinator creates a coordinator. A nil logger writes to stderr.
func NewSyncCoordinator(syncer Syncer, pinger Pinger, interval time.Duration, logger *log.Logger) (*SyncCoordinator, error) {
	if syncer == nil || pinger == nil {
		return nil, fmt.Errorf("syncer and pinger are required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("auto-sync interval must be positive, got %s", interval)
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[AutoSync] ", log.LstdFlags)
	}
	return &SyncCoordinator{
		syncer:   syncer,
		pinger:   pinger,
		interval: interval,
		stop:     make(chan struct{}),
		notify:   make(chan struct{}, 1),
		logger:   logger,
	}, nil
}

// OnResult registers fn for every finished triggered cycle
func (sc *SyncCoordinator) OnResult(fn func(*backendsync.SyncResult)) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.results = append(sc.results, fn)
}

// Start runs the scheduling loop until ctx is done or Shutdown is called.
// The first tick happens immediately.
func (sc *SyncCoordinator) Start(ctx context.Context) {
	sc.wg.Add(1)
	go sc.loop(ctx)
}

func (sc *SyncCoordinator) loop(ctx context.Context) {
	defer sc.wg.Done()

	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	sc.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sc.stop:
			return
		case <-ticker.C:
			sc.tick(ctx)
		case <-sc.notify:
			sc.online.Store(true)
			sc.TriggerSync(ctx)
		}
	}
}

// tick probes the authority; a cycle runs only while it is reachable
func (sc *SyncCoordinator) tick(ctx context.Context) {
	up := sc.isOnline(ctx)
	was := sc.online.Swap(up)
	if !up {
		if was {
			sc.logger.Printf("Authority went offline")
		}
		return
	}
	if !was {
		sc.logger.Printf("Authority reachable")
	}
	sc.TriggerSync(ctx)
}

// NotifyOnline signals that connectivity came back. It never blocks.
func (sc *SyncCoordinator) NotifyOnline() {
	if sc.shutdown.Load() {
		return
	}
	select {
	case sc.notify <- struct{}{}:
	default:
	}
}

// IsOnline reports the last observed reachability
func (sc *SyncCoordinator) IsOnline() bool {
	return sc.online.Load()
}

// TriggerSync starts a cycle in the background and returns immediately.
// It does nothing while shutting down or while a triggered cycle runs.
func (sc *SyncCoordinator) TriggerSync(ctx context.Context) {
	if sc.shutdown.Load() {
		return
	}
	if !sc.running.CompareAndSwap(false, true) {
		return
	}
	sc.wg.Add(1)
	go sc.doSync(ctx)
}

func (sc *SyncCoordinator) doSync(ctx context.Context) {
	defer sc.wg.Done()
	defer sc.running.Store(false)

	// Recover from panics
	defer func() {
		if r := recover(); r != nil {
			sc.logger.Printf("Panic in sync: %v", r)
		}
	}()

	result, err := sc.syncer.Sync(ctx)
	if errors.Is(err, backendsync.ErrSyncInProgress) {
		return
	}
	if err != nil {
		sc.logger.Printf("Sync error: %v", err)
		return
	}
	if result.Pushed() > 0 || result.Pulled > 0 || !result.Success {
		sc.logger.Printf("Sync completed: %s", result.Summary())
	}

	sc.mu.Lock()
	fns := append(([]func(*backendsync.SyncResult))(nil), sc.results...)
	sc.mu.Unlock()
	for _, fn := range fns {
		fn(result)
	}
}

// isOnline pings the authority with a short timeout
func (sc *SyncCoordinator) isOnline(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return sc.pinger.Ping(ctx) == nil
}

// Shutdown stops scheduling and waits for an in-flight cycle.
// It returns an error if the cycle did not finish within timeout.
func (sc *SyncCoordinator) Shutdown(timeout time.Duration) error {
	sc.shutdown.Store(true)
	sc.once.Do(func() { close(sc.stop) })

	done := make(chan struct{})
	go func() {
		sc.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for sync to finish after %s", timeout)
	}
}
