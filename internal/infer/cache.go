package infer

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize matches the entry-count sizing of the embedding and
// classifier caches (internal/embed/cached.go,
// internal/search/classifier.go).
const DefaultCacheSize = 1000

// DefaultCacheTTL is how long a cached inference result is served before
// the coordinator re-dispatches.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	result    Result
	expiresAt time.Time
}

// ResultCache is a TTL-bounded LRU over normalized query strings. The
// underlying hashicorp/golang-lru cache (already used throughout the
// codebase for exactly this shape of cache) handles eviction by entry
// count; this wraps it with a per-entry expiry check since the library
// itself is count-based, not time-based.
type ResultCache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, cacheEntry]
	ttl   time.Duration
}

// NewResultCache creates a cache with the given entry-count size and TTL.
// size <= 0 uses DefaultCacheSize; ttl <= 0 uses DefaultCacheTTL.
func NewResultCache(size int, ttl time.Duration) *ResultCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	cache, _ := lru.New[string, cacheEntry](size)
	return &ResultCache{cache: cache, ttl: ttl}
}

// Get returns the cached result for query if present and unexpired.
func (c *ResultCache) Get(query string) (Result, bool) {
	key := normalizeQuery(query)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache.Get(key)
	if !ok {
		return Result{}, false
	}
	if time.Now().After(entry.expiresAt) {
		c.cache.Remove(key)
		return Result{}, false
	}
	entry.result.Cached = true
	return entry.result, true
}

// Set stores result under query's normalized key with the cache's TTL.
func (c *ResultCache) Set(query string, result Result) {
	key := normalizeQuery(query)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Add(key, cacheEntry{result: result, expiresAt: time.Now().Add(c.ttl)})
}

// normalizeQuery collapses whitespace and case so equivalent queries
// ("Tax Document", "tax document", "tax  document") share one cache slot.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
