package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// ComputeFunc produces the verdict for a key on a miss.
type ComputeFunc func(ctx context.Context) (*Entry, error)

// Cache is safe for concurrent use.
type Cache struct {
	mu     sync.RWMutex
	mem    map[string]*Entry
	store  Store
	closed bool

	group  singleflight.Group
	logger *slog.Logger

	hits, misses, computes, shared, stored, errs atomic.Int64
}

// New returns a memory-only cache.
func New() *Cache {
	c, _ := Open(DefaultConfig())
	return c
}

// Open returns a cache backed by the database cfg names, or memory only when
// cfg names none.
func Open(cfg Config) (*Cache, error) {
	c := &Cache{mem: make(map[string]*Entry), logger: cfg.Logger}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Path == "" && !cfg.InMemory {
		c.store = newMemStore()
		return c, nil
	}
	st, err := openBadger(cfg)
	if err != nil {
		return nil, err
	}
	c.store = st
	return c, nil
}

// NewWithStore returns a cache over an arbitrary Store.
func NewWithStore(st Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{mem: make(map[string]*Entry), store: st, logger: logger}
}

// Get returns the entry for key if there is one.
func (c *Cache) Get(ctx context.Context, key string) (*Entry, bool) {
	e, err := c.lookup(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.errs.Add(1)
			c.logger.Warn("cache lookup failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		c.misses.Add(1)
		recordMiss(ctx)
		return nil, false
	}
	c.hits.Add(1)
	recordHit(ctx)
	return e, true
}

func (c *Cache) lookup(key string) (*Entry, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, ErrClosed
	}
	if e, ok := c.mem[key]; ok {
		c.mu.RUnlock()
		return e, nil
	}
	c.mu.RUnlock()

	e, err := c.store.Get(key)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.mem[key] = e
	c.mu.Unlock()
	return e, nil
}

// Put stores e under e.Key, replacing what was there.
func (c *Cache) Put(ctx context.Context, e *Entry) error {
	if err := e.validate(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mem[e.Key] = e
	c.mu.Unlock()

	if err := c.store.Put(e); err != nil {
		c.errs.Add(1)
		return err
	}
	c.stored.Add(1)
	return nil
}

// Invalidate drops the entry for key.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	delete(c.mem, key)
	c.mu.Unlock()
	return c.store.Delete(key)
}

// GetOrCompute returns the entry for key, calling fn to produce and store it
// on a miss. An entry usable rejects counts as a miss and is replaced. Callers
// that ask for the same key while fn runs wait for its result instead of
// calling fn themselves. The returned flag reports whether the entry came
// from the cache or another caller's computation.
//
// A waiting caller gets the running caller's result as is: that caller's ctx,
// usable and fn decide it, so an Unknown computed under a short timeout is
// handed to a waiter that allowed a longer one. Its next call finds the
// stored entry and can reject it through usable.
func (c *Cache) GetOrCompute(ctx context.Context, key string, usable func(*Entry) bool, fn ComputeFunc) (*Entry, bool, error) {
	ctx, span := startSpan(ctx, "GetOrCompute", key)
	defer span.End()

	if e, ok := c.Get(ctx, key); ok && (usable == nil || usable(e)) {
		return e, true, nil
	}

	ran := false
	v, err, shared := c.group.Do(key, func() (any, error) {
		// another caller may have stored it while we waited
		if e, err := c.lookup(key); err == nil && (usable == nil || usable(e)) {
			return e, nil
		}
		ran = true
		start := time.Now()
		e, err := fn(ctx)
		if err != nil {
			c.errs.Add(1)
			return nil, err
		}
		c.computes.Add(1)
		recordCompute(ctx, time.Since(start), e.Result.String())
		e.Key = key
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now()
		}
		if err := c.Put(ctx, e); err != nil {
			c.logger.Warn("cache store failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return e, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}
	if shared && !ran {
		c.shared.Add(1)
	}
	return v.(*Entry), !ran, nil
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Computes: c.computes.Load(),
		Shared:   c.shared.Load(),
		Stored:   c.stored.Load(),
		Errors:   c.errs.Load(),
	}
}

// Len is the number of entries held in memory.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.mem)
}

// Close releases the backing store. Further operations fail with ErrClosed.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mem = nil
	c.mu.Unlock()
	return c.store.Close()
}
