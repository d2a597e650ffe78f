// Package cache memoizes solver verdicts by the canonical key of the query
// that produced them. Entries live in memory and, optionally, in a badger
// database so verdicts survive between runs. Concurrent requests for the same
// key are collapsed into a single solver call.
package cache

import (
	"errors"
	"log/slog"
	"time"

	"github.com/iti/ccac/smt"
)

var (
	// ErrNotFound is returned by a Store that holds no entry for a key.
	ErrNotFound = errors.New("cache: entry not found")

	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("cache: closed")

	// ErrInvalidEntry is returned when an entry cannot be stored.
	ErrInvalidEntry = errors.New("cache: invalid entry")
)

// Entry is one memoized verdict.
type Entry struct {
	Key    string         `json:"key"`
	Result smt.Result     `json:"result"`
	Model  smt.Assignment `json:"model,omitempty"`
	Core   []string       `json:"core,omitempty"`
	Reason string         `json:"reason,omitempty"`

	// Elapsed is the solver time that produced the verdict, Timeout the
	// budget it was given
	Elapsed time.Duration `json:"elapsed"`
	Timeout time.Duration `json:"timeout"`

	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (e *Entry) validate() error {
	if e == nil || e.Key == "" {
		return ErrInvalidEntry
	}
	if e.Result != smt.Sat && e.Result != smt.Unsat && e.Result != smt.Unknown {
		return ErrInvalidEntry
	}
	return nil
}

// Config configures a cache.
type Config struct {
	// Path is the badger directory. Empty keeps entries in memory only.
	Path string

	// InMemory opens an in-memory badger database, for tests.
	InMemory bool

	// SyncWrites makes each Put durable before it returns.
	SyncWrites bool

	// Logger receives cache and badger log lines; nil discards them.
	Logger *slog.Logger
}

// DefaultConfig keeps entries in memory only.
func DefaultConfig() Config {
	return Config{}
}

// Stats counts cache traffic since the cache was opened.
type Stats struct {
	Hits     int64
	Misses   int64
	Computes int64
	// Shared counts callers that received another caller's computation
	Shared int64
	Stored int64
	Errors int64
}
