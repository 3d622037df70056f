package analytics

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// WidgetType identifies which dashboard widget the analytics belong to.
type WidgetType string

const (
	WidgetBooking  WidgetType = "booking"
	WidgetCatering WidgetType = "catering"
)

// Valid reports whether w is a known widget type.
func (w WidgetType) Valid() bool {
	return w == WidgetBooking || w == WidgetCatering
}

// TimeRange is the caller-selected analytics window.
type TimeRange string

const (
	Range1d  TimeRange = "1d"
	Range7d  TimeRange = "7d"
	Range30d TimeRange = "30d"
)

// Valid reports whether r is a supported range.
func (r TimeRange) Valid() bool {
	return r == Range1d || r == Range7d || r == Range30d
}

// Duration returns the window length.
func (r TimeRange) Duration() time.Duration {
	switch r {
	case Range1d:
		return 24 * time.Hour
	case Range7d:
		return 7 * 24 * time.Hour
	case Range30d:
		return 30 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// StartFrom returns the window start for a query ending at now.
func (r TimeRange) StartFrom(now time.Time) time.Time {
	return now.Add(-r.Duration())
}

// RequestKey is the composite identity all dedup and cache operations key on.
// Two logically identical requests must always serialize to the same string.
type RequestKey struct {
	TenantID string     `json:"tenant_id"`
	Widget   WidgetType `json:"widget_type"`
	Range    TimeRange  `json:"time_range"`
}

// String returns the stable serialized form of the key.
func (k RequestKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.TenantID, k.Widget, k.Range)
}

// SourceMode tags which source produced a result so callers can distinguish
// authoritative from approximate data.
type SourceMode string

const (
	ModePrimary  SourceMode = "primary"
	ModeFallback SourceMode = "fallback"
	ModeCached   SourceMode = "cached"
)

// DailyPoint is one bucket of the per-day series.
type DailyPoint struct {
	Date  string `json:"date"` // YYYY-MM-DD, UTC
	Count int64  `json:"count"`
}

// AnalyticsResult is the domain payload. The orchestrator treats it as opaque;
// it is produced by whichever source answered.
//
// The event-tracking block (views, clicks, session duration, traffic sources)
// requires dedicated instrumentation the raw record store does not have. The
// fallback path leaves those fields zero rather than estimating them.
type AnalyticsResult struct {
	TotalRequests  int64            `json:"total_requests"`
	Completed      int64            `json:"completed"`
	Cancelled      int64            `json:"cancelled"`
	CompletionRate decimal.Decimal  `json:"completion_rate"` // 0..1
	AvgPartySize   decimal.Decimal  `json:"avg_party_size"`  // booking widget only
	RevenueTotal   decimal.Decimal  `json:"revenue_total"`   // catering widget only
	Daily          []DailyPoint     `json:"daily"`

	Views             int64            `json:"views"`
	Clicks            int64            `json:"clicks"`
	AvgSessionSeconds int64            `json:"avg_session_seconds"`
	TrafficSources    map[string]int64 `json:"traffic_sources,omitempty"`
}

// EmptyResult returns an all-zero result with decimal fields initialized.
func EmptyResult() *AnalyticsResult {
	return &AnalyticsResult{
		CompletionRate: decimal.Zero,
		AvgPartySize:   decimal.Zero,
		RevenueTotal:   decimal.Zero,
		Daily:          []DailyPoint{},
	}
}

// ResultMeta travels with every result so the UI can flag approximate data.
type ResultMeta struct {
	TimeRange  TimeRange `json:"time_range"`
	Estimation bool      `json:"estimation,omitempty"`
	Empty      bool      `json:"empty,omitempty"`
}

// FetchStatus is the orchestrator's per-key lifecycle state.
type FetchStatus string

const (
	StatusIdle    FetchStatus = "idle"
	StatusLoading FetchStatus = "loading"
	StatusSuccess FetchStatus = "success"
	StatusFailed  FetchStatus = "failed"
)

// FetchState is the caller-facing snapshot for one key. It is exclusively
// mutated by the orchestrator; callers always receive copies.
type FetchState struct {
	Key           RequestKey       `json:"key"`
	Status        FetchStatus      `json:"status"`
	Loading       bool             `json:"loading"`
	Data          *AnalyticsResult `json:"data"`
	Mode          SourceMode       `json:"mode,omitempty"`
	Meta          ResultMeta       `json:"meta"`
	Error         string           `json:"error,omitempty"`
	LastErrorCode Code             `json:"last_error_code,omitempty"`
	LastUpdated   time.Time        `json:"last_updated"`
	CorrelationID string           `json:"correlation_id,omitempty"`

	// RetryAfter is populated on rate-limit rejection so the UI can render
	// a "try again in N seconds" message. Serialized by the HTTP layer in
	// milliseconds rather than through this struct.
	RetryAfter time.Duration `json:"-"`
}