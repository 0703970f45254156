/*
Package cache provides the report/result cache used for matrices and
client summaries.

PURPOSE:
  Building a matrix reads every task template and availability record in
  the practice. Dashboards ask for the same matrix many times a minute.
  The cache keeps computed results for a TTL and guarantees at most one
  computation per key is running at a time.

HOW IT WORKS:
  1. GetOrSet checks for a live entry (hit)
  2. On a miss, callers for the same key share one singleflight call
  3. The call re-checks the cache, then runs compute
  4. A successful result is stored with expiresAt = now + ttl

GUARANTEES:
  - Expiry is passive: an entry is dead once now >= expiresAt, so a
    zero TTL is never served from cache
  - Errors are never cached
  - A computation whose context was cancelled is never cached, and
    waiters whose own context is still live retry instead of inheriting
    the cancellation
  - An Invalidate/InvalidatePattern/Clear that lands while a matching
    computation is in flight prevents that result from being stored
  - WarmUp shares the same single-flight path, so a warm-up and a
    GetOrSet for one key never compute it twice at once
  - A value implementing Lifetime may shorten or cancel its own storage

USAGE:
  c := cache.New(cache.Options{Name: "matrix"})
  m, err := cache.GetOrSet(ctx, c, key, func(ctx context.Context) (*matrix.Matrix, error) {
      return gen.Generate(ctx, req)
  }, 5*time.Minute)

  c.InvalidatePattern(regexp.MustCompile(`^client-detail:abc123:`))

SEE ALSO:
  - keys.go: Key builders and prefix patterns
  - metrics.go: Prometheus counters
  - forecast/service.go: Matrix caching on top of this package
*/
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// ComputeFunc produces the value for a key.
type ComputeFunc func(ctx context.Context) (any, error)

// ErrTypeMismatch is returned by the typed GetOrSet when a cached value
// has a different type than requested.
var ErrTypeMismatch = errors.New("cached value has unexpected type")

// ErrComputePanic wraps a panic recovered from a compute function.
var ErrComputePanic = errors.New("cache compute panicked")

// Lifetime is implemented by values that shorten their own TTL. A
// returned TTL <= 0 hands the value to waiters without storing it.
type Lifetime interface {
	CacheTTL(ttl time.Duration) time.Duration
}

// maxRetries bounds how often a waiter re-joins after a cancelled leader.
const maxRetries = 3

// Options configures a Cache.
type Options struct {
	// Name labels metrics and log lines ("matrix", "summary").
	Name string

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

type entry struct {
	value     any
	expiresAt time.Time
}

// flight tracks one running computation so invalidations can mark it stale.
type flight struct {
	stale bool
}

// Cache is a TTL cache with single-flight computation. Safe for concurrent use.
type Cache struct {
	name   string
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	entries  map[string]entry
	inflight map[string]*flight
	group    singleflight.Group

	hits           int64
	misses         int64
	computes       int64
	computeErrors  int64
	discarded      int64
	invalidations  int64
	warmUpLoaded   int64
	warmUpFailures int64
	waiters        int64
}

func New(opts Options) *Cache {
	if opts.Name == "" {
		opts.Name = "default"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Cache{
		name:     opts.Name,
		now:      opts.Now,
		logger:   opts.Logger.With("component", "cache", "cache", opts.Name),
		entries:  make(map[string]entry),
		inflight: make(map[string]*flight),
	}
}

// =============================================================================
// READS
// =============================================================================

// Get returns the live value for key.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *Cache) getLocked(key string) (any, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// GetOrSet returns the cached value for key, computing and storing it on a
// miss. Concurrent callers for the same key share one computation.
func (c *Cache) GetOrSet(ctx context.Context, key string, compute ComputeFunc, ttl time.Duration) (any, error) {
	if v, ok := c.Get(key); ok {
		atomic.AddInt64(&c.hits, 1)
		requestsTotal.WithLabelValues(c.name, "hit").Inc()
		return v, nil
	}
	atomic.AddInt64(&c.misses, 1)
	requestsTotal.WithLabelValues(c.name, "miss").Inc()

	return c.do(ctx, key, func() (any, error) {
		return c.fill(ctx, key, compute, ttl, false)
	})
}

// do joins (or starts) the singleflight call for key and waits for it.
func (c *Cache) do(ctx context.Context, key string, call func() (any, error)) (any, error) {
	for attempt := 0; ; attempt++ {
		ch := c.group.DoChan(key, call)
		atomic.AddInt64(&c.waiters, 1)

		select {
		case <-ctx.Done():
			atomic.AddInt64(&c.waiters, -1)
			return nil, ctx.Err()

		case res := <-ch:
			atomic.AddInt64(&c.waiters, -1)
			if res.Err != nil && isCancellation(res.Err) && ctx.Err() == nil && attempt < maxRetries {
				// Leader gave up; this caller still wants the value.
				continue
			}
			return res.Val, res.Err
		}
	}
}

// fill runs inside the singleflight call. With refresh set it recomputes
// even when a live entry exists.
func (c *Cache) fill(ctx context.Context, key string, compute ComputeFunc, ttl time.Duration, refresh bool) (any, error) {
	f := &flight{}

	c.mu.Lock()
	if !refresh {
		if v, ok := c.getLocked(key); ok {
			c.mu.Unlock()
			return v, nil
		}
	}
	c.inflight[key] = f
	c.mu.Unlock()

	start := time.Now()
	v, err := safeCompute(ctx, key, compute)
	computeDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())
	atomic.AddInt64(&c.computes, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[key] == f {
		delete(c.inflight, key)
	}

	if err == nil {
		if l, ok := v.(Lifetime); ok {
			ttl = l.CacheTTL(ttl)
		}
	}

	switch {
	case err != nil && isCancellation(err):
		computesTotal.WithLabelValues(c.name, "cancelled").Inc()
		return nil, err
	case err != nil:
		atomic.AddInt64(&c.computeErrors, 1)
		computesTotal.WithLabelValues(c.name, "error").Inc()
		return nil, err
	case f.stale:
		// Invalidated mid-flight: hand the result to current waiters only.
		atomic.AddInt64(&c.discarded, 1)
		computesTotal.WithLabelValues(c.name, "discarded").Inc()
		return v, nil
	case ttl <= 0:
		computesTotal.WithLabelValues(c.name, "uncached").Inc()
		return v, nil
	}

	c.entries[key] = entry{value: v, expiresAt: c.now().Add(ttl)}
	computesTotal.WithLabelValues(c.name, "stored").Inc()
	return v, nil
}

// safeCompute turns a panicking compute into an error.
func safeCompute(ctx context.Context, key string, compute ComputeFunc) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, fmt.Errorf("%w: key %q: %v", ErrComputePanic, key, r)
		}
	}()
	return compute(ctx)
}

// GetOrSet is the typed form of Cache.GetOrSet.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, compute func(context.Context) (T, error), ttl time.Duration) (T, error) {
	var zero T
	v, err := c.GetOrSet(ctx, key, func(ctx context.Context) (any, error) {
		return compute(ctx)
	}, ttl)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: key %q holds %T", ErrTypeMismatch, key, v)
	}
	return t, nil
}

// =============================================================================
// WRITES
// =============================================================================

// Set stores value under key for ttl.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
}

// Invalidate removes key. A computation in flight for key will not be stored.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	if f, ok := c.inflight[key]; ok {
		f.stale = true
		delete(c.inflight, key)
	}
	c.mu.Unlock()

	c.group.Forget(key)
	atomic.AddInt64(&c.invalidations, 1)
	invalidationsTotal.WithLabelValues(c.name, "key").Inc()
}

// InvalidatePattern removes every key matching re and returns how many
// stored entries were removed. Matching in-flight computations are
// discarded as well but not counted.
func (c *Cache) InvalidatePattern(re *regexp.Regexp) int {
	c.mu.Lock()
	removed := 0
	for k := range c.entries {
		if re.MatchString(k) {
			delete(c.entries, k)
			removed++
		}
	}
	var forget []string
	for k, f := range c.inflight {
		if re.MatchString(k) {
			f.stale = true
			delete(c.inflight, k)
			forget = append(forget, k)
		}
	}
	c.mu.Unlock()

	for _, k := range forget {
		c.group.Forget(k)
	}
	atomic.AddInt64(&c.invalidations, int64(removed))
	invalidationsTotal.WithLabelValues(c.name, "pattern").Add(float64(removed))

	c.logger.Debug("pattern invalidated", "pattern", re.String(), "removed", removed)
	return removed
}

// Clear removes everything.
func (c *Cache) Clear() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]entry)
	var forget []string
	for k, f := range c.inflight {
		f.stale = true
		forget = append(forget, k)
	}
	c.inflight = make(map[string]*flight)
	c.mu.Unlock()

	for _, k := range forget {
		c.group.Forget(k)
	}
	atomic.AddInt64(&c.invalidations, int64(n))
	invalidationsTotal.WithLabelValues(c.name, "clear").Add(float64(n))
}

// Sweep drops expired entries and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// =============================================================================
// WARM-UP
// =============================================================================

// WarmUpEntry is one value to pre-compute.
type WarmUpEntry struct {
	Key    string
	Loader ComputeFunc
	TTL    time.Duration
}

// WarmUp recomputes each entry and stores the result, replacing any
// existing value. Each entry goes through the same single-flight path as
// GetOrSet: a running computation for the key is joined rather than
// duplicated, and an invalidation during the load keeps the result out of
// the cache. Failing or panicking loaders are logged and skipped. Returns
// the number loaded.
func (c *Cache) WarmUp(ctx context.Context, entries []WarmUpEntry) int {
	loaded := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		e := e
		_, err := c.do(ctx, e.Key, func() (any, error) {
			return c.fill(ctx, e.Key, e.Loader, e.TTL, true)
		})
		if err != nil {
			atomic.AddInt64(&c.warmUpFailures, 1)
			warmUpTotal.WithLabelValues(c.name, "failed").Inc()
			c.logger.Warn("warm-up failed", "key", e.Key, "error", err)
			continue
		}
		loaded++
		atomic.AddInt64(&c.warmUpLoaded, 1)
		warmUpTotal.WithLabelValues(c.name, "loaded").Inc()
	}
	if len(entries) > 0 {
		c.logger.Debug("warm-up finished", "loaded", loaded, "requested", len(entries))
	}
	return loaded
}

// =============================================================================
// INTROSPECTION
// =============================================================================

// Stats is a snapshot of cache counters.
type Stats struct {
	Name           string `json:"name"`
	Entries        int    `json:"entries"`
	InFlight       int    `json:"in_flight"`
	Hits           int64  `json:"hits"`
	Misses         int64  `json:"misses"`
	Computes       int64  `json:"computes"`
	ComputeErrors  int64  `json:"compute_errors"`
	Discarded      int64  `json:"discarded"`
	Invalidations  int64  `json:"invalidations"`
	WarmUpLoaded   int64  `json:"warm_up_loaded"`
	WarmUpFailures int64  `json:"warm_up_failures"`
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entries, inflight := len(c.entries), len(c.inflight)
	c.mu.Unlock()

	return Stats{
		Name:           c.name,
		Entries:        entries,
		InFlight:       inflight,
		Hits:           atomic.LoadInt64(&c.hits),
		Misses:         atomic.LoadInt64(&c.misses),
		Computes:       atomic.LoadInt64(&c.computes),
		ComputeErrors:  atomic.LoadInt64(&c.computeErrors),
		Discarded:      atomic.LoadInt64(&c.discarded),
		Invalidations:  atomic.LoadInt64(&c.invalidations),
		WarmUpLoaded:   atomic.LoadInt64(&c.warmUpLoaded),
		WarmUpFailures: atomic.LoadInt64(&c.warmUpFailures),
	}
}

// Keys returns the stored keys, sorted. Expired entries not yet swept are included.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Waiters returns how many GetOrSet callers are blocked on a computation.
func (c *Cache) Waiters() int {
	return int(atomic.LoadInt64(&c.waiters))
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
