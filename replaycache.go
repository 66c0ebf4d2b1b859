package saml

import (
	"sync"
	"time"

	"github.com/allegro/bigcache"
)

// ReplayCache is the collaborator the replay-and-freshness rule (C5)
// consults: Check reports true the first time (context, value) is
// seen before expiry elapses, and false on every subsequent call
// within the same window.
type ReplayCache interface {
	Check(context, value string, expiry time.Time) bool
}

// MemoryReplayCache is a process-local ReplayCache backed by a plain
// map. It is the default: adequate for a single process, and for
// tests that fix TimeNow.
type MemoryReplayCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewMemoryReplayCache constructs an empty MemoryReplayCache.
func NewMemoryReplayCache() *MemoryReplayCache {
	return &MemoryReplayCache{entries: make(map[string]time.Time)}
}

func replayKey(context, value string) string {
	return context + "\x00" + value
}

func (c *MemoryReplayCache) Check(context, value string, expiry time.Time) bool {
	key := replayKey(context, value)
	now := TimeNow()

	c.mu.Lock()
	defer c.mu.Unlock()

	if exp, ok := c.entries[key]; ok && now.Before(exp) {
		return false
	}
	c.entries[key] = expiry
	c.gcLocked(now)
	return true
}

// gcLocked drops expired entries opportunistically; callers already
// hold c.mu.
func (c *MemoryReplayCache) gcLocked(now time.Time) {
	for k, exp := range c.entries {
		if !now.Before(exp) {
			delete(c.entries, k)
		}
	}
}

// BigCacheReplayCache is an alternate ReplayCache backed by
// allegro/bigcache, for deployments that see enough replay-check
// traffic that GC pressure from a plain map becomes a problem. It
// implements the same Check contract; bigcache's own per-entry TTL
// bookkeeping is bypassed in favor of storing the expiry alongside
// the value, since bigcache's eviction window is process-wide rather
// than per-key.
type BigCacheReplayCache struct {
	cache *bigcache.BigCache
}

// NewBigCacheReplayCache builds a BigCacheReplayCache sized for
// roughly expectedEntries live replay keys within the lifetime of a
// single eviction window.
func NewBigCacheReplayCache(expectedEntries int) (*BigCacheReplayCache, error) {
	cfg := bigcache.DefaultConfig(10 * time.Minute)
	cfg.Shards = 256
	cfg.MaxEntriesInWindow = expectedEntries
	cache, err := bigcache.NewBigCache(cfg)
	if err != nil {
		return nil, err
	}
	return &BigCacheReplayCache{cache: cache}, nil
}

func (c *BigCacheReplayCache) Check(context, value string, expiry time.Time) bool {
	key := replayKey(context, value)
	now := TimeNow()

	if raw, err := c.cache.Get(key); err == nil {
		if exp, perr := time.Parse(time.RFC3339Nano, string(raw)); perr == nil && now.Before(exp) {
			return false
		}
	}
	_ = c.cache.Set(key, []byte(expiry.UTC().Format(time.RFC3339Nano)))
	return true
}
