package smbcore

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// statCacheEntry pairs a cached result with the time it was stored, so
// entries older than the cache's TTL are treated as misses without needing
// a separate expiry goroutine (mirrors the teacher's metadataCache
// invalidation-on-read check, replacing its hand-rolled access-order slice
// with golang-lru/v2's generic Cache).
type statCacheEntry struct {
	rec      StatRecord
	cachedAt time.Time
}

// statCache is a small, short-TTL front for Broker.stat: SMB round trips
// dominate this bridge's latency, and directory listings commonly re-stat
// the same handful of entries (size/mtime checks before a read, permission
// probes right after a stat). It is never the source of truth — a cache
// miss, or an entry older than ttl, always falls through to a live stat.
type statCache struct {
	mu  sync.Mutex
	ttl time.Duration
	c   *lru.Cache[string, statCacheEntry]
}

func newStatCache(capacity int, ttl time.Duration) *statCache {
	c, err := lru.New[string, statCacheEntry](capacity)
	if err != nil {
		// Only returns an error for capacity <= 0; callers always pass a
		// positive constant, so fall back to the smallest valid cache
		// rather than letting a cache failure break stat().
		c, _ = lru.New[string, statCacheEntry](1)
	}
	return &statCache{ttl: ttl, c: c}
}

func statCacheKey(ep Endpoint, path PathRef) string {
	return ep.String() + "\x00" + path.String()
}

func (s *statCache) get(ep Endpoint, path PathRef) (StatRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.c.Get(statCacheKey(ep, path))
	if !ok || time.Since(entry.cachedAt) > s.ttl {
		return StatRecord{}, false
	}
	return entry.rec, true
}

func (s *statCache) put(ep Endpoint, path PathRef, rec StatRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Add(statCacheKey(ep, path), statCacheEntry{rec: rec, cachedAt: time.Now()})
}

// invalidate drops any cached stat for path, and — since mutating path also
// changes its parent directory's listing/mtime — its parent too.
func (s *statCache) invalidate(ep Endpoint, path PathRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Remove(statCacheKey(ep, path))
	if parent, ok := path.Parent(); ok {
		s.c.Remove(statCacheKey(ep, parent))
	}
}
