// Package authority is a reference implementation of the remote side of the
// sync protocol, backed by Badger.
package authority

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Record kinds as they appear in storage keys
const (
	kindItem       = "item"
	kindCollection = "collection"
	kindTag        = "tag"
	kindLink       = "link"
)

// envelope is the stored form of every record
type envelope struct {
	ChangedAt int64           `json:"changedAt"` // authority clock, unix ms
	Value     json.RawMessage `json:"value"`
}

// Store persists owner-scoped records in Badger
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenStore opens a Badger database in dir. An empty dir keeps everything in memory.
func OpenStore(dir string, logger *slog.Logger) (*Store, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dir)
		opts.SyncWrites = true
		opts.CompactL0OnClose = true
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	if logger != nil {
		logger.Info("authority store opened", "dir", dir, "in_memory", dir == "")
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// update runs fn in a read-write transaction for owner
func (s *Store) update(owner string, changedAt int64, fn func(t *ownerTxn) error) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return fn(&ownerTxn{txn: txn, owner: owner, changedAt: changedAt})
	})
}

// view runs fn in a read-only transaction for owner
func (s *Store) view(owner string, fn func(t *ownerTxn) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&ownerTxn{txn: txn, owner: owner})
	})
}

// ownerTxn scopes key construction to one owner: owner:{owner}:{kind}:{id}
type ownerTxn struct {
	txn       *badger.Txn
	owner     string
	changedAt int64
}

func (t *ownerTxn) prefix(kind string) []byte {
	return fmt.Appendf(nil, "owner:%s:%s:", t.owner, kind)
}

func (t *ownerTxn) key(kind, id string) []byte {
	return append(t.prefix(kind), id...)
}

// get decodes the record into v. It returns false if the key does not exist.
func (t *ownerTxn) get(kind, id string, v any) (bool, error) {
	item, err := t.txn.Get(t.key(kind, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	err = item.Value(func(val []byte) error {
		var env envelope
		if err := json.Unmarshal(val, &env); err != nil {
			return err
		}
		return json.Unmarshal(env.Value, v)
	})
	if err != nil {
		return false, fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	return true, nil
}

// put stores v stamped with the transaction's change time
func (t *ownerTxn) put(kind, id string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s %s: %w", kind, id, err)
	}
	data, err := json.Marshal(envelope{ChangedAt: t.changedAt, Value: raw})
	if err != nil {
		return err
	}
	if err := t.txn.Set(t.key(kind, id), data); err != nil {
		return fmt.Errorf("set %s %s: %w", kind, id, err)
	}
	return nil
}

func (t *ownerTxn) del(kind, id string) error {
	if err := t.txn.Delete(t.key(kind, id)); err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	return nil
}

// scan visits every record of kind for the owner
func (t *ownerTxn) scan(kind string, fn func(id string, env envelope) error) error {
	prefix := t.prefix(kind)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		id := strings.TrimPrefix(string(item.Key()), string(prefix))
		var env envelope
		err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &env)
		})
		if err != nil {
			return fmt.Errorf("decode %s %s: %w", kind, id, err)
		}
		if err := fn(id, env); err != nil {
			return err
		}
	}
	return nil
}

// linkIDs returns the ids ("item:tag") of links matching keep
func (t *ownerTxn) linkIDs(keep func(itemID, tagID string) bool) ([]string, error) {
	var ids []string
	err := t.scan(kindLink, func(id string, _ envelope) error {
		itemID, tagID, _ := strings.Cut(id, ":")
		if keep(itemID, tagID) {
			ids = append(ids, id)
		}
		return nil
	})
	return ids, err
}
