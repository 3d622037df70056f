package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// CacheEntry pairs a result with the moment it was stored and its TTL.
type CacheEntry struct {
	Result   *AnalyticsResult
	Mode     SourceMode
	Meta     ResultMeta
	StoredAt time.Time
	TTL      time.Duration
}

// expired reports whether the entry has reached its TTL at time now.
// An entry aged exactly TTL is already stale.
func (e CacheEntry) expired(now time.Time) bool {
	return now.Sub(e.StoredAt) >= e.TTL
}

// TTLCache is a key→entry store with lazy per-entry expiry. Get never returns
// an entry older than its TTL; expired entries are evicted on read. An
// optional Cleanup loop proactively prunes to bound memory.
//
// Writes are serialized by the orchestrator's in-flight dedup, so a plain
// RWMutex around a map is all the coordination required.
type TTLCache struct {
	mu      sync.RWMutex
	entries map[string]CacheEntry
	nowFn   func() time.Time
}

// NewTTLCache creates an empty cache.
func NewTTLCache() *TTLCache {
	return &TTLCache{
		entries: make(map[string]CacheEntry),
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the entry for key, or false if absent or expired.
// Expired entries are evicted as a side effect.
func (c *TTLCache) Get(key string) (CacheEntry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return CacheEntry{}, false
	}
	if entry.expired(c.nowFn()) {
		c.mu.Lock()
		// Re-check under the write lock; a fresher entry may have landed.
		if cur, still := c.entries[key]; still && cur.expired(c.nowFn()) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return CacheEntry{}, false
	}
	return entry, true
}

// Set stores a result under key with the given TTL.
func (c *TTLCache) Set(key string, result *AnalyticsResult, mode SourceMode, meta ResultMeta, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = CacheEntry{
		Result:   result,
		Mode:     mode,
		Meta:     meta,
		StoredAt: c.nowFn(),
		TTL:      ttl,
	}
}

// Delete removes one key, used by manual-refresh bypass.
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries.
func (c *TTLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]CacheEntry)
}

// Len returns the number of stored entries, expired or not.
func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// cleanup prunes all expired entries and returns how many were removed.
func (c *TTLCache) cleanup() int {
	now := c.nowFn()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// RunCleanup prunes expired entries every interval until ctx is cancelled.
// Lazy expiry in Get already guarantees freshness; this loop only bounds
// memory when keys stop being read.
func (c *TTLCache) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := c.cleanup(); removed > 0 {
				slog.Debug("[Cache] Pruned expired entries", "removed", removed, "remaining", c.Len())
			}
		case <-ctx.Done():
			return
		}
	}
}
