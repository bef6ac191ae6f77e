package sync

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"gomarks/backend"
	"gomarks/backend/authority"
	"gomarks/backend/remote"
	"gomarks/backend/sqlite"
)

const testOwner = "owner-1"

type testClock struct {
	mu  stdsync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// testAuthority is an in-memory authority served over HTTP
type testAuthority struct {
	svc    *authority.Service
	server *httptest.Server
	clock  *testClock
}

func createTestAuthority(t *testing.T, clock *testClock) *testAuthority {
	t.Helper()
	store, err := authority.OpenStore("", nil)
	if err != nil {
		t.Fatalf("Failed to open authority store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	svc := authority.NewService(store, nil)
	svc.SetClock(clock.Now)
	server := httptest.NewServer(authority.NewServer(svc, "", nil))
	t.Cleanup(server.Close)
	return &testAuthority{svc: svc, server: server, clock: clock}
}

// device is one local replica syncing against an authority
type device struct {
	store  *sqlite.Store
	remote *fakeRemote
	sm     *SyncManager
}

func createTestDevice(t *testing.T, auth *testAuthority, cfg Config) *device {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "device.db"), testOwner)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	store.SetClock(auth.clock.Now)

	client, err := remote.NewClient(remote.Config{BaseURL: auth.server.URL, OwnerID: testOwner})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	fr := &fakeRemote{inner: client}
	return &device{store: store, remote: fr, sm: NewSyncManager(store, fr, cfg)}
}

// createTestEnv returns one device and the authority it syncs with
func createTestEnv(t *testing.T, cfg Config) (*device, *testAuthority) {
	t.Helper()
	auth := createTestAuthority(t, newTestClock())
	return createTestDevice(t, auth, cfg), auth
}

var errUnreachable = errors.New("authority unreachable")

// fakeRemote wraps a Remote with injectable failures and hooks
type fakeRemote struct {
	inner Remote

	mu         stdsync.Mutex
	failPushes int // remaining pushes to fail; negative fails forever
	failPull   bool
	beforePush func()
	pushes     int
}

func (f *fakeRemote) Push(ctx context.Context, chunk *backend.SyncBatch) (*backend.Ack, error) {
	f.mu.Lock()
	f.pushes++
	hook := f.beforePush
	fail := f.failPushes != 0
	if f.failPushes > 0 {
		f.failPushes--
	}
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if fail {
		return nil, &remote.TransmissionError{Chunk: chunk, Err: errUnreachable}
	}
	return f.inner.Push(ctx, chunk)
}

func (f *fakeRemote) Pull(ctx context.Context, since *time.Time) (*backend.SyncBatch, error) {
	f.mu.Lock()
	fail := f.failPull
	f.mu.Unlock()
	if fail {
		return nil, errUnreachable
	}
	return f.inner.Pull(ctx, since)
}

func (f *fakeRemote) set(fn func(f *fakeRemote)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeRemote) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushes
}

func bookmark(url string) sqlite.ItemInput {
	return sqlite.ItemInput{Kind: backend.KindBookmark, URL: url, Title: url}
}

func mustCreateItem(t *testing.T, store *sqlite.Store, in sqlite.ItemInput) *backend.Item {
	t.Helper()
	it, err := store.CreateItem(context.Background(), in)
	if err != nil {
		t.Fatalf("Failed to create item: %v", err)
	}
	return it
}

func mustSync(t *testing.T, sm *SyncManager) *SyncResult {
	t.Helper()
	result, err := sm.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	return result
}

func titleUpdate(title string) sqlite.ItemUpdate {
	return sqlite.ItemUpdate{Title: &title}
}
