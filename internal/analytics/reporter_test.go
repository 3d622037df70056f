package analytics

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey() RequestKey {
	return RequestKey{
		TenantID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		Widget:   WidgetBooking,
		Range:    Range7d,
	}
}

func TestReporter_CountsByCode(t *testing.T) {
	r := NewErrorReporter(8)

	r.Report(testKey(), "corr-1", edgeErrorf(nil, "edge down"))
	r.Report(testKey(), "corr-2", edgeErrorf(nil, "edge still down"))
	r.Report(testKey(), "corr-3", databaseErrorf(nil, "db down"))

	stats := r.Stats()
	require.Equal(t, 2, stats[CodeEdgeFunction])
	require.Equal(t, 1, stats[CodeDatabase])
}

func TestReporter_NilErrorIgnored(t *testing.T) {
	r := NewErrorReporter(8)

	r.Report(testKey(), "corr-1", nil)

	require.Empty(t, r.Stats())
	require.Empty(t, r.Recent())
}

func TestReporter_UntypedErrorIsUnknown(t *testing.T) {
	r := NewErrorReporter(8)

	r.Report(testKey(), "corr-1", fmt.Errorf("something odd"))

	require.Equal(t, 1, r.Stats()[CodeUnknown])
}

func TestReporter_RingOverwritesOldest(t *testing.T) {
	r := NewErrorReporter(3)

	for i := 0; i < 5; i++ {
		r.Report(testKey(), fmt.Sprintf("corr-%d", i), edgeErrorf(nil, "failure %d", i))
	}

	recent := r.Recent()
	require.Len(t, recent, 3)
	require.Equal(t, "corr-2", recent[0].CorrelationID)
	require.Equal(t, "corr-4", recent[2].CorrelationID)

	// Counts are totals, not bounded by the ring.
	require.Equal(t, 5, r.Stats()[CodeEdgeFunction])
}

func TestReporter_RecentOldestFirst(t *testing.T) {
	r := NewErrorReporter(8)

	r.Report(testKey(), "first", edgeErrorf(nil, "a"))
	r.Report(testKey(), "second", edgeErrorf(nil, "b"))

	recent := r.Recent()
	require.Len(t, recent, 2)
	require.Equal(t, "first", recent[0].CorrelationID)
	require.Equal(t, "second", recent[1].CorrelationID)
}
