package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Store persists entries beneath the in-memory layer.
type Store interface {
	Get(key string) (*Entry, error)
	Put(e *Entry) error
	Delete(key string) error
	Close() error
}

// memStore is the Store used when no database is configured.
type memStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]*Entry)}
}

func (m *memStore) Get(key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (m *memStore) Put(e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Key] = e
	return nil
}

func (m *memStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *memStore) Close() error { return nil }

const keyPrefix = "verdict/"

// badgerStore keeps json-encoded entries in a badger database.
type badgerStore struct {
	db *badger.DB
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// openBadger opens the database at cfg.Path, or in memory if cfg.InMemory.
func openBadger(cfg Config) (*badgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &badgerStore{db: db}, nil
}

func (b *badgerStore) Get(key string) (*Entry, error) {
	var e Entry
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read verdict %s: %w", key, err)
	}
	return &e, nil
}

func (b *badgerStore) Put(e *Entry) error {
	val, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode verdict %s: %w", e.Key, err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+e.Key), val)
	})
}

func (b *badgerStore) Delete(key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + key))
	})
}

func (b *badgerStore) Close() error {
	return b.db.Close()
}
