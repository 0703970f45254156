package cache_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/capacity-engine/cache"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(t *testing.T) (*cache.Cache, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return cache.New(cache.Options{Name: t.Name(), Now: clock.Now}), clock
}

// counting returns a compute func that yields value and counts calls.
func counting(calls *int64, value any) cache.ComputeFunc {
	return func(ctx context.Context) (any, error) {
		atomic.AddInt64(calls, 1)
		return value, nil
	}
}

// =============================================================================
// SINGLE-FLIGHT
// =============================================================================

func TestGetOrSet_SingleFlight(t *testing.T) {
	// GIVEN: a slow computation
	c, _ := newTestCache(t)
	release := make(chan struct{})
	var calls int64
	compute := func(ctx context.Context) (any, error) {
		atomic.AddInt64(&calls, 1)
		<-release
		return "matrix", nil
	}

	// WHEN: ten callers ask for the same key at once
	const n = 10
	var wg sync.WaitGroup
	results := make([]any, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrSet(context.Background(), "matrix:virtual", compute, time.Minute)
		}(i)
	}
	require.Eventually(t, func() bool { return c.Waiters() == n }, 2*time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	// THEN: one computation served everyone
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
	for i := 0; i < n; i++ {
		assert.NoError(t, errs[i])
		assert.Equal(t, "matrix", results[i])
	}
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(1), c.Stats().Computes)
}

func TestGetOrSet_HitAfterStore(t *testing.T) {
	c, _ := newTestCache(t)
	var calls int64
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := c.GetOrSet(ctx, "k", counting(&calls, 42), time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	}

	assert.Equal(t, int64(1), calls)
	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

// =============================================================================
// EXPIRY
// =============================================================================

func TestGetOrSet_ExpiresAfterTTL(t *testing.T) {
	c, clock := newTestCache(t)
	var calls int64
	ctx := context.Background()

	_, _ = c.GetOrSet(ctx, "k", counting(&calls, "v"), time.Minute)
	clock.Advance(59 * time.Second)
	_, _ = c.GetOrSet(ctx, "k", counting(&calls, "v"), time.Minute)
	assert.Equal(t, int64(1), calls, "still fresh")

	// Expired exactly at expiresAt.
	clock.Advance(time.Second)
	_, _ = c.GetOrSet(ctx, "k", counting(&calls, "v"), time.Minute)
	assert.Equal(t, int64(2), calls)
}

func TestGetOrSet_ZeroTTLNeverHits(t *testing.T) {
	c, _ := newTestCache(t)
	var calls int64
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.GetOrSet(ctx, "k", counting(&calls, "v"), 0)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), calls)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestSweep(t *testing.T) {
	c, clock := newTestCache(t)
	c.Set("short", 1, time.Second)
	c.Set("long", 2, time.Hour)

	clock.Advance(time.Minute)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, []string{"long"}, c.Keys())
}

// =============================================================================
// FAILURES AND CANCELLATION
// =============================================================================

func TestGetOrSet_ErrorsAreNotCached(t *testing.T) {
	c, _ := newTestCache(t)
	boom := errors.New("store down")
	var calls int64
	failing := func(ctx context.Context) (any, error) {
		atomic.AddInt64(&calls, 1)
		return nil, boom
	}

	_, err := c.GetOrSet(context.Background(), "k", failing, time.Minute)
	assert.ErrorIs(t, err, boom)
	_, err = c.GetOrSet(context.Background(), "k", failing, time.Minute)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, int64(2), calls)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(2), c.Stats().ComputeErrors)
}

func TestGetOrSet_CancelledComputationNotCached(t *testing.T) {
	// GIVEN: a computation that honours its context
	c, _ := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	done := make(chan struct{})
	compute := func(ctx context.Context) (any, error) {
		close(started)
		defer close(done)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	// WHEN: the caller gives up mid-computation
	errCh := make(chan error, 1)
	go func() {
		_, err := c.GetOrSet(ctx, "k", compute, time.Minute)
		errCh <- err
	}()
	<-started
	cancel()

	// THEN: the caller sees the cancellation and nothing is stored
	assert.ErrorIs(t, <-errCh, context.Canceled)
	<-done
	assert.Eventually(t, func() bool { return c.Stats().InFlight == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, c.Len())
}

func TestGetOrSet_WaiterRetriesAfterLeaderCancelled(t *testing.T) {
	// GIVEN: a leader whose context will be cancelled, and a patient waiter
	c, _ := newTestCache(t)
	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	var calls int64
	compute := func(ctx context.Context) (any, error) {
		if atomic.AddInt64(&calls, 1) == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return "fresh", nil
	}

	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrSet(leaderCtx, "k", compute, time.Minute)
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt64(&calls) == 1 }, time.Second, time.Millisecond)

	waiterVal := make(chan any, 1)
	waiterErr := make(chan error, 1)
	go func() {
		v, err := c.GetOrSet(context.Background(), "k", compute, time.Minute)
		waiterVal <- v
		waiterErr <- err
	}()
	require.Eventually(t, func() bool { return c.Waiters() == 2 }, time.Second, time.Millisecond)

	// WHEN: the leader cancels
	cancelLeader()

	// THEN: the leader fails, the waiter gets a value from its own computation
	assert.ErrorIs(t, <-leaderErr, context.Canceled)
	assert.Equal(t, "fresh", <-waiterVal)
	assert.NoError(t, <-waiterErr)
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))

	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "fresh", v)
}

func TestInvalidate_DuringFlightDiscardsResult(t *testing.T) {
	c, _ := newTestCache(t)
	started := make(chan struct{})
	release := make(chan struct{})
	compute := func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return "stale", nil
	}

	got := make(chan any, 1)
	go func() {
		v, _ := c.GetOrSet(context.Background(), "matrix:actual", compute, time.Minute)
		got <- v
	}()
	<-started

	c.Invalidate("matrix:actual")
	close(release)

	assert.Equal(t, "stale", <-got, "the waiting caller still receives the value")
	assert.Equal(t, 0, c.Len(), "but it is not stored")
	assert.Equal(t, int64(1), c.Stats().Discarded)
}

// =============================================================================
// INVALIDATION
// =============================================================================

func TestInvalidatePattern_RemovesOnlyMatches(t *testing.T) {
	// GIVEN: summaries for two clients
	c, _ := newTestCache(t)
	c.Set("client-detail:abc123:{}", "a", time.Minute)
	c.Set("client-detail:xyz789:{}", "x", time.Minute)

	// WHEN
	n := c.InvalidatePattern(regexp.MustCompile(`^client-detail:abc123:`))

	// THEN
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"client-detail:xyz789:{}"}, c.Keys())
}

func TestInvalidateAndClear(t *testing.T) {
	c, _ := newTestCache(t)
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Set("c", 3, time.Minute)

	c.Invalidate("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(3), c.Stats().Invalidations)
}

// =============================================================================
// WARM-UP
// =============================================================================

func TestWarmUp_SkipsFailures(t *testing.T) {
	c, _ := newTestCache(t)
	var calls int64

	loaded := c.WarmUp(context.Background(), []cache.WarmUpEntry{
		{Key: "matrix:virtual", Loader: counting(&calls, "v"), TTL: time.Minute},
		{Key: "matrix:actual", Loader: func(ctx context.Context) (any, error) {
			return nil, errors.New("staff source down")
		}, TTL: time.Minute},
		{Key: "skills", Loader: counting(&calls, []string{"CPA"}), TTL: time.Minute},
	})

	assert.Equal(t, 2, loaded)
	assert.Equal(t, []string{"matrix:virtual", "skills"}, c.Keys())
	assert.Equal(t, int64(1), c.Stats().WarmUpFailures)

	// Warmed values are served as hits.
	v, err := c.GetOrSet(context.Background(), "matrix:virtual", counting(&calls, "other"), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	assert.Equal(t, int64(2), calls)
}

func TestWarmUp_StopsOnCancelledContext(t *testing.T) {
	c, _ := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls int64

	loaded := c.WarmUp(ctx, []cache.WarmUpEntry{{Key: "k", Loader: counting(&calls, 1), TTL: time.Minute}})
	assert.Zero(t, loaded)
	assert.Zero(t, calls)
}

func TestWarmUp_InvalidatedDuringLoadIsNotStored(t *testing.T) {
	// GIVEN: a warm-up whose loader is still running
	c, _ := newTestCache(t)
	c.Set("matrix:actual", "old", time.Minute)
	started := make(chan struct{})
	release := make(chan struct{})
	loader := func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return "stale", nil
	}

	done := make(chan int, 1)
	go func() {
		done <- c.WarmUp(context.Background(), []cache.WarmUpEntry{{Key: "matrix:actual", Loader: loader, TTL: time.Minute}})
	}()
	<-started

	// WHEN: the key is invalidated before the loader returns
	c.Invalidate("matrix:actual")
	close(release)
	<-done

	// THEN: the stale result is not written back
	_, ok := c.Get("matrix:actual")
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Discarded)
}

func TestWarmUp_JoinsRunningComputation(t *testing.T) {
	// GIVEN: a GetOrSet computing the key
	c, _ := newTestCache(t)
	var calls int64
	started := make(chan struct{})
	release := make(chan struct{})
	compute := func(ctx context.Context) (any, error) {
		if atomic.AddInt64(&calls, 1) == 1 {
			close(started)
		}
		<-release
		return "fresh", nil
	}

	got := make(chan any, 1)
	go func() {
		v, _ := c.GetOrSet(context.Background(), "k", compute, time.Minute)
		got <- v
	}()
	<-started

	// WHEN: a warm-up for the same key starts before it finishes
	done := make(chan int, 1)
	go func() {
		done <- c.WarmUp(context.Background(), []cache.WarmUpEntry{{Key: "k", Loader: compute, TTL: time.Minute}})
	}()
	require.Eventually(t, func() bool { return c.Waiters() == 2 }, time.Second, time.Millisecond)
	close(release)

	// THEN: both share one computation
	assert.Equal(t, "fresh", <-got)
	assert.Equal(t, 1, <-done)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "fresh", v)
}

func TestWarmUp_RecoversPanickingLoader(t *testing.T) {
	c, _ := newTestCache(t)
	var calls int64

	loaded := c.WarmUp(context.Background(), []cache.WarmUpEntry{
		{Key: "boom", Loader: func(ctx context.Context) (any, error) { panic("nil skills") }, TTL: time.Minute},
		{Key: "ok", Loader: counting(&calls, "v"), TTL: time.Minute},
	})

	assert.Equal(t, 1, loaded)
	assert.Equal(t, []string{"ok"}, c.Keys())
	assert.Equal(t, int64(1), c.Stats().WarmUpFailures)
	assert.Zero(t, c.Stats().InFlight)
}

func TestWarmUp_ReplacesLiveEntry(t *testing.T) {
	c, _ := newTestCache(t)
	c.Set("k", "old", time.Minute)
	var calls int64

	loaded := c.WarmUp(context.Background(), []cache.WarmUpEntry{{Key: "k", Loader: counting(&calls, "new"), TTL: time.Minute}})

	assert.Equal(t, 1, loaded)
	v, _ := c.Get("k")
	assert.Equal(t, "new", v)
}

// shortLived opts out of storage.
type shortLived string

func (shortLived) CacheTTL(time.Duration) time.Duration { return 0 }

func TestGetOrSet_LifetimeCanSkipStorage(t *testing.T) {
	c, _ := newTestCache(t)
	var calls int64
	compute := func(ctx context.Context) (any, error) {
		atomic.AddInt64(&calls, 1)
		return shortLived("degraded"), nil
	}

	for i := 0; i < 2; i++ {
		v, err := c.GetOrSet(context.Background(), "k", compute, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, shortLived("degraded"), v)
	}

	assert.Equal(t, int64(2), calls)
	assert.Zero(t, c.Len())
}

func TestGetOrSet_PanicBecomesError(t *testing.T) {
	c, _ := newTestCache(t)

	_, err := c.GetOrSet(context.Background(), "k", func(ctx context.Context) (any, error) {
		panic("bad row")
	}, time.Minute)

	assert.ErrorIs(t, err, cache.ErrComputePanic)
	assert.Zero(t, c.Len())
}

// =============================================================================
// TYPED ACCESS AND KEYS
// =============================================================================

func TestTypedGetOrSet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	n, err := cache.GetOrSet(ctx, c, "count", func(ctx context.Context) (int, error) { return 7, nil }, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = cache.GetOrSet(ctx, c, "count", func(ctx context.Context) (string, error) { return "x", nil }, time.Minute)
	assert.ErrorIs(t, err, cache.ErrTypeMismatch)
}

type clientID string

func TestKey(t *testing.T) {
	type filters struct {
		From string `json:"from,omitempty"`
		To   string `json:"to,omitempty"`
	}

	assert.Equal(t, "client-detail:abc123:{}", cache.Key("client-detail", "abc123", filters{}))
	assert.Equal(t, `client-detail:abc123:{"from":"2026-01-01"}`,
		cache.Key("client-detail", clientID("abc123"), filters{From: "2026-01-01"}))
	assert.Equal(t, "matrix:virtual:12:true", cache.Key("matrix", "virtual", 12, true))

	re := cache.PrefixPattern("client-detail", "abc123")
	assert.True(t, re.MatchString("client-detail:abc123:{}"))
	assert.False(t, re.MatchString("client-detail:abc1234:{}"))
}
