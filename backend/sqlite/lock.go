package sqlite

import (
	"github.com/gofrs/flock"
)

// SyncLock serializes sync cycles across every process that opens the same database file
type SyncLock struct {
	fl *flock.Flock
}

// SyncLock returns the lock guarding sync cycles on this database. It lives next to
// the database as <path>.sync.lock. An in-memory database is private to its process
// and gets a nil lock, which always succeeds.
func (db *Database) SyncLock() *SyncLock {
	if db.path == ":memory:" {
		return nil
	}
	return &SyncLock{fl: flock.New(db.path + ".sync.lock")}
}

// TryLock takes the lock without waiting. False means another holder has it.
func (l *SyncLock) TryLock() (bool, error) {
	if l == nil {
		return true, nil
	}
	return l.fl.TryLock()
}

// Unlock releases the lock
func (l *SyncLock) Unlock() error {
	if l == nil {
		return nil
	}
	return l.fl.Unlock()
}
