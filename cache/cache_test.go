package cache

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iti/ccac/smt"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func satEntry(key string) *Entry {
	return &Entry{
		Key:     key,
		Result:  smt.Sat,
		Model:   smt.Assignment{"x": smt.RealValue(big.NewRat(1, 2)), "b": smt.BoolValue(true)},
		Elapsed: 10 * time.Millisecond,
		Timeout: time.Second,
		RunID:   "run-1",
	}
}

func TestCache_PutGet(t *testing.T) {
	ctx := context.Background()
	c := New()
	defer c.Close()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, satEntry("k")))
	e, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, smt.Sat, e.Result)
	assert.Equal(t, "1/2", e.Model["x"].String())

	st := c.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.Equal(t, int64(1), st.Stored)
}

func TestCache_PutRejectsInvalid(t *testing.T) {
	c := New()
	defer c.Close()
	assert.ErrorIs(t, c.Put(context.Background(), &Entry{Result: smt.Sat}), ErrInvalidEntry)
	assert.ErrorIs(t, c.Put(context.Background(), &Entry{Key: "k", Result: smt.Result(7)}), ErrInvalidEntry)
}

func TestCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	c := New()
	defer c.Close()

	require.NoError(t, c.Put(ctx, satEntry("k")))
	require.NoError(t, c.Invalidate(ctx, "k"))
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestCache_GetOrComputeOnce(t *testing.T) {
	ctx := context.Background()
	c := New()
	defer c.Close()

	var calls atomic.Int32
	fn := func(context.Context) (*Entry, error) {
		calls.Add(1)
		return &Entry{Result: smt.Unsat, Elapsed: time.Millisecond}, nil
	}

	e, cached, err := c.GetOrCompute(ctx, "k", nil, fn)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "k", e.Key)
	assert.False(t, e.CreatedAt.IsZero())

	e2, cached, err := c.GetOrCompute(ctx, "k", nil, fn)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, e.Result, e2.Result)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCache_GetOrComputeDeduplicates(t *testing.T) {
	ctx := context.Background()
	c := New()
	defer c.Close()

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(context.Context) (*Entry, error) {
		calls.Add(1)
		<-release
		return &Entry{Result: smt.Unsat}, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*Entry, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, _, err := c.GetOrCompute(ctx, "same", nil, fn)
			assert.NoError(t, err)
			results[i] = e
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, e := range results {
		require.NotNil(t, e)
		assert.Equal(t, smt.Unsat, e.Result)
	}
}

func TestCache_WaiterSharesRunningResult(t *testing.T) {
	ctx := context.Background()
	c := New()
	defer c.Close()

	release := make(chan struct{})
	short := func(context.Context) (*Entry, error) {
		<-release
		return &Entry{Result: smt.Unknown, Timeout: time.Second}, nil
	}
	var longCalls atomic.Int32
	long := func(context.Context) (*Entry, error) {
		longCalls.Add(1)
		return &Entry{Result: smt.Unsat, Timeout: time.Minute}, nil
	}
	wantsMinute := func(e *Entry) bool { return e.Result != smt.Unknown || e.Timeout >= time.Minute }

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, err := c.GetOrCompute(ctx, "k", nil, short)
		assert.NoError(t, err)
	}()
	time.Sleep(50 * time.Millisecond)

	var waited *Entry
	var shared bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var err error
		waited, shared, err = c.GetOrCompute(ctx, "k", wantsMinute, long)
		assert.NoError(t, err)
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	<-done

	require.NotNil(t, waited)
	assert.True(t, shared)
	assert.Equal(t, smt.Unknown, waited.Result)
	assert.Zero(t, longCalls.Load())

	// asked again, the waiter rejects the stored Unknown and runs its own
	e, cached, err := c.GetOrCompute(ctx, "k", wantsMinute, long)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, smt.Unsat, e.Result)
	assert.EqualValues(t, 1, longCalls.Load())
}

func TestCache_UsableRejectsEntry(t *testing.T) {
	ctx := context.Background()
	c := New()
	defer c.Close()

	require.NoError(t, c.Put(ctx, &Entry{Key: "k", Result: smt.Unknown, Timeout: time.Second}))
	longer := func(e *Entry) bool { return e.Result != smt.Unknown || e.Timeout >= 5*time.Second }

	e, cached, err := c.GetOrCompute(ctx, "k", longer, func(context.Context) (*Entry, error) {
		return &Entry{Result: smt.Sat, Timeout: 5 * time.Second}, nil
	})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, smt.Sat, e.Result)

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, smt.Sat, got.Result)
}

func TestCache_ComputeError(t *testing.T) {
	ctx := context.Background()
	c := New()
	defer c.Close()

	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(ctx, "k", nil, func(context.Context) (*Entry, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Errors)
}

func TestCache_Closed(t *testing.T) {
	ctx := context.Background()
	c := New()
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Put(ctx, satEntry("k")), ErrClosed)
	assert.ErrorIs(t, c.Invalidate(ctx, "k"), ErrClosed)
}

func TestCache_BadgerPersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c, err := Open(Config{Path: dir, SyncWrites: true})
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, satEntry("persisted")))
	require.NoError(t, c.Close())

	c, err = Open(Config{Path: dir})
	require.NoError(t, err)
	defer c.Close()
	e, ok := c.Get(ctx, "persisted")
	require.True(t, ok)
	assert.Equal(t, smt.Sat, e.Result)
	assert.Equal(t, "run-1", e.RunID)
	truth, ok := e.Model.Truth("b")
	require.True(t, ok)
	assert.True(t, truth)
}

func TestCache_BadgerInMemoryInvalidate(t *testing.T) {
	ctx := context.Background()
	c, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Put(ctx, satEntry("k")))
	require.NoError(t, c.Invalidate(ctx, "k"))
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestCollector(t *testing.T) {
	ctx := context.Background()
	c := New()
	defer c.Close()
	require.NoError(t, c.Put(ctx, satEntry("k")))
	c.Get(ctx, "k")

	col := NewCollector(c, "ccac")
	assert.Equal(t, 7, testutil.CollectAndCount(col))
}
