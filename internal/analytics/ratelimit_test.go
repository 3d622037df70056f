package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AdmitsUpToMax(t *testing.T) {
	l := NewRateLimiter(3, time.Minute)

	require.True(t, l.TryAdmit())
	require.True(t, l.TryAdmit())
	require.True(t, l.TryAdmit())
	require.False(t, l.TryAdmit())
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(2, time.Minute)
	l.nowFn = func() time.Time { return now }

	require.True(t, l.TryAdmit())
	now = now.Add(30 * time.Second)
	require.True(t, l.TryAdmit())
	require.False(t, l.TryAdmit())

	// First admission ages out of the window; one slot frees up.
	now = now.Add(31 * time.Second)
	require.True(t, l.TryAdmit())
	require.False(t, l.TryAdmit())
}

func TestRateLimiter_Remaining(t *testing.T) {
	l := NewRateLimiter(5, time.Minute)
	require.Equal(t, 5, l.Remaining())

	l.TryAdmit()
	l.TryAdmit()
	require.Equal(t, 3, l.Remaining())
}

func TestRateLimiter_UntilNextSlot(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(1, time.Minute)
	l.nowFn = func() time.Time { return now }

	require.Equal(t, time.Duration(0), l.UntilNextSlot())

	require.True(t, l.TryAdmit())
	now = now.Add(20 * time.Second)
	require.Equal(t, 40*time.Second, l.UntilNextSlot())

	now = now.Add(41 * time.Second)
	require.Equal(t, time.Duration(0), l.UntilNextSlot())
}
