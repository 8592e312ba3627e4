package fieldcrypt

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pocketledger/fieldcrypt/internal/monitoring"
)

// DecryptionCache memoizes decrypted records by model and id for the
// duration of one request. Create one per request and drop it afterwards.
//
// Expired entries are removed lazily: by Get when they are looked up, and
// by the eviction pass at the start of every Set. There is no background
// sweeper.
type DecryptionCache struct {
	mu       sync.Mutex
	entries  map[string]cacheEntry
	maxSize  int
	ttl      time.Duration
	now      func() time.Time
	recorder monitoring.Recorder

	seq    uint64
	hits   uint64
	misses uint64
}

type cacheEntry struct {
	value   any
	created time.Time
	seq     uint64
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Hits    uint64
	Misses  uint64
	Size    int
	HitRate float64
}

// CacheOption configures a DecryptionCache.
type CacheOption func(*DecryptionCache)

// WithMaxSize bounds the number of entries. Values below 1 are ignored.
func WithMaxSize(n int) CacheOption {
	return func(c *DecryptionCache) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithTTL sets how long an entry stays valid after it is set.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *DecryptionCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheClock replaces time.Now.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *DecryptionCache) { c.now = now }
}

func WithCacheRecorder(r Recorder) CacheOption {
	return func(c *DecryptionCache) {
		if r != nil {
			c.recorder = r
		}
	}
}

// NewDecryptionCache creates a cache holding DefaultCacheMaxSize entries for
// DefaultCacheTTL unless overridden.
func NewDecryptionCache(opts ...CacheOption) *DecryptionCache {
	c := &DecryptionCache{
		entries:  make(map[string]cacheEntry),
		maxSize:  DefaultCacheMaxSize,
		ttl:      DefaultCacheTTL,
		now:      time.Now,
		recorder: monitoring.NoOpRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cacheKey(model, id string) string {
	return model + ":" + id
}

// Get returns the entry for model and id. Expired entries count as a miss
// and are deleted.
func (c *DecryptionCache) Get(model, id string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(model, id)
	e, ok := c.entries[key]
	if ok && c.expired(e, c.now()) {
		delete(c.entries, key)
		c.recorder.RecordCacheEviction("expired")
		ok = false
	}
	if !ok {
		c.misses++
		c.recorder.RecordCacheLookup(false)
		return nil, false
	}
	c.hits++
	c.recorder.RecordCacheLookup(true)
	return e.value, true
}

// CacheGet is Get with the value asserted to T. A value of another type is
// reported as absent.
func CacheGet[T any](c *DecryptionCache, model, id string) (T, bool) {
	var zero T
	v, ok := c.Get(model, id)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// Set stores data for model and id with a fresh timestamp. Expired entries
// are evicted first, then the oldest entries while the cache is full.
func (c *DecryptionCache) Set(model, id string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(model, id)
	now := c.now()
	c.evict(now, key)

	c.seq++
	c.entries[key] = cacheEntry{value: data, created: now, seq: c.seq}
}

// evict must be called with mu held. incoming is the key about to be set;
// room is made for it unless it is already present.
func (c *DecryptionCache) evict(now time.Time, incoming string) {
	for k, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, k)
			c.recorder.RecordCacheEviction("expired")
		}
	}

	limit := c.maxSize
	if _, exists := c.entries[incoming]; !exists {
		limit--
	}
	if len(c.entries) <= limit {
		return
	}

	type aged struct {
		key string
		cacheEntry
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{k, e})
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].created.Equal(all[j].created) {
			return all[i].created.Before(all[j].created)
		}
		return all[i].seq < all[j].seq
	})
	for _, a := range all[:len(all)-limit] {
		delete(c.entries, a.key)
		c.recorder.RecordCacheEviction("size")
	}
}

func (c *DecryptionCache) expired(e cacheEntry, now time.Time) bool {
	return now.Sub(e.created) >= c.ttl
}

// Has reports whether a live entry exists. It does not touch the counters.
func (c *DecryptionCache) Has(model, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(model, id)
	e, ok := c.entries[key]
	if ok && c.expired(e, c.now()) {
		delete(c.entries, key)
		return false
	}
	return ok
}

// Delete removes an entry and reports whether it existed.
func (c *DecryptionCache) Delete(model, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(model, id)
	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	return true
}

// Clear removes every entry and resets the counters.
func (c *DecryptionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
	c.hits, c.misses = 0, 0
}

// Len returns the number of stored entries, including expired ones not yet
// evicted.
func (c *DecryptionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *DecryptionCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := CacheStats{Hits: c.hits, Misses: c.misses, Size: len(c.entries)}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// GetOrDecrypt returns the cached value for model and id or computes it
// with fn and caches the result. Errors are not cached. A nil cache always
// computes.
func GetOrDecrypt[T any](ctx context.Context, cache *DecryptionCache, model, id string, fn func(ctx context.Context) (T, error)) (T, error) {
	if cache == nil {
		return fn(ctx)
	}
	if v, ok := CacheGet[T](cache, model, id); ok {
		return v, nil
	}
	v, err := fn(ctx)
	if err != nil {
		return v, err
	}
	cache.Set(model, id, v)
	return v, nil
}

// GetOrDecryptSync is GetOrDecrypt for computations that take no context.
func GetOrDecryptSync[T any](cache *DecryptionCache, model, id string, fn func() (T, error)) (T, error) {
	return GetOrDecrypt(context.Background(), cache, model, id, func(context.Context) (T, error) {
		return fn()
	})
}

// BatchGetOrDecrypt resolves every id through the cache, computing misses
// with fn. The result has the order of ids.
func BatchGetOrDecrypt[T any](ctx context.Context, cache *DecryptionCache, model string, ids []string, fn func(ctx context.Context, id string) (T, error)) ([]T, error) {
	out := make([]T, len(ids))
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := GetOrDecrypt(ctx, cache, model, id, func(ctx context.Context) (T, error) {
			return fn(ctx, id)
		})
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
