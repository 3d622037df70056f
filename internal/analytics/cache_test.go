package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTTLCache_SetGet(t *testing.T) {
	c := NewTTLCache()

	result := EmptyResult()
	result.TotalRequests = 42
	meta := ResultMeta{TimeRange: Range7d}

	c.Set("k1", result, ModePrimary, meta, 30*time.Second)

	entry, ok := c.Get("k1")
	require.True(t, ok)
	require.Equal(t, int64(42), entry.Result.TotalRequests)
	require.Equal(t, ModePrimary, entry.Mode)
	require.Equal(t, Range7d, entry.Meta.TimeRange)
}

func TestTTLCache_GetMissing(t *testing.T) {
	c := NewTTLCache()

	_, ok := c.Get("absent")
	require.False(t, ok)
}

func TestTTLCache_Expiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewTTLCache()
	c.nowFn = func() time.Time { return now }

	c.Set("k1", EmptyResult(), ModePrimary, ResultMeta{}, 30*time.Second)

	// Still fresh inside the TTL.
	now = now.Add(29 * time.Second)
	_, ok := c.Get("k1")
	require.True(t, ok)

	// Expired once age exceeds the TTL; eviction happens on read.
	now = now.Add(2 * time.Second)
	_, ok = c.Get("k1")
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}

func TestTTLCache_ExpiresAtExactTTLBoundary(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewTTLCache()
	c.nowFn = func() time.Time { return now }

	c.Set("k1", EmptyResult(), ModePrimary, ResultMeta{}, 30*time.Second)

	// An entry aged exactly TTL is stale: a read at that instant must miss
	// so the caller initiates a fresh fetch.
	now = now.Add(30 * time.Second)
	_, ok := c.Get("k1")
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}

func TestTTLCache_Delete(t *testing.T) {
	c := NewTTLCache()
	c.Set("k1", EmptyResult(), ModeFallback, ResultMeta{}, time.Minute)

	c.Delete("k1")

	_, ok := c.Get("k1")
	require.False(t, ok)
}

func TestTTLCache_Cleanup(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewTTLCache()
	c.nowFn = func() time.Time { return now }

	c.Set("fresh", EmptyResult(), ModePrimary, ResultMeta{}, time.Hour)
	c.Set("stale", EmptyResult(), ModeFallback, ResultMeta{}, time.Second)

	now = now.Add(time.Minute)
	removed := c.cleanup()

	require.Equal(t, 1, removed)
	require.Equal(t, 1, c.Len())

	_, ok := c.Get("fresh")
	require.True(t, ok)
}
