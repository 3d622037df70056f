package analytics

import (
	"context"
	"time"

	v1 "github.com/3sc0rp/blunari-saas-monorepo-sub002/internal/api/v1"
	"github.com/3sc0rp/blunari-saas-monorepo-sub002/internal/core/storage"
	"github.com/shopspring/decimal"
)

const ratePrecision = 4

// RecordsSource computes approximate analytics directly from the raw record
// store. It is the fallback when the aggregation edge is unreachable or the
// tenant is a sandbox.
//
// Only metrics directly derivable from records are computed. Views, clicks,
// session duration and traffic sources need dedicated event tracking and are
// left zero. This source never invents values for data it does not have.
type RecordsSource struct {
	store storage.RecordStore
	nowFn func() time.Time
}

// NewRecordsSource creates a fallback source over store.
func NewRecordsSource(store storage.RecordStore) *RecordsSource {
	return &RecordsSource{
		store: store,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// FetchApprox derives an approximate result for key from records created in
// the [start, now) window. Query errors propagate as database-class errors so
// the orchestrator can decide there is truly nothing to show.
func (s *RecordsSource) FetchApprox(ctx context.Context, key RequestKey) (*AnalyticsResult, ResultMeta, error) {
	now := s.nowFn()
	from := key.Range.StartFrom(now)
	meta := ResultMeta{TimeRange: key.Range, Estimation: true}

	var (
		result *AnalyticsResult
		err    error
	)
	switch key.Widget {
	case WidgetCatering:
		result, err = s.cateringApprox(ctx, key.TenantID, from, now)
	default:
		result, err = s.bookingApprox(ctx, key.TenantID, from, now)
	}
	if err != nil {
		return nil, ResultMeta{}, err
	}
	return result, meta, nil
}

func (s *RecordsSource) bookingApprox(ctx context.Context, tenantID string, from, to time.Time) (*AnalyticsResult, error) {
	records, err := s.store.BookingsInWindow(ctx, tenantID, from, to)
	if err != nil {
		return nil, databaseErrorf(err, "query bookings for tenant %s", tenantID)
	}

	result := EmptyResult()
	daily := make(map[string]int64)
	partySum := int64(0)

	for _, rec := range records {
		result.TotalRequests++
		partySum += int64(rec.PartySize)
		daily[dayKey(rec.CreatedAt)]++

		switch rec.Status {
		case v1.BookingStatusCompleted:
			result.Completed++
		case v1.BookingStatusCancelled, v1.BookingStatusNoShow:
			result.Cancelled++
		}
	}

	if result.TotalRequests > 0 {
		total := decimal.NewFromInt(result.TotalRequests)
		result.CompletionRate = decimal.NewFromInt(result.Completed).DivRound(total, ratePrecision)
		result.AvgPartySize = decimal.NewFromInt(partySum).DivRound(total, 2)
	}
	result.Daily = dailySeries(daily, from, to)

	return result, nil
}

func (s *RecordsSource) cateringApprox(ctx context.Context, tenantID string, from, to time.Time) (*AnalyticsResult, error) {
	records, err := s.store.CateringOrdersInWindow(ctx, tenantID, from, to)
	if err != nil {
		return nil, databaseErrorf(err, "query catering orders for tenant %s", tenantID)
	}

	result := EmptyResult()
	daily := make(map[string]int64)

	for _, rec := range records {
		result.TotalRequests++
		daily[dayKey(rec.CreatedAt)]++

		switch rec.Status {
		case v1.OrderStatusCompleted:
			result.Completed++
			result.RevenueTotal = result.RevenueTotal.Add(rec.TotalAmount)
		case v1.OrderStatusCancelled:
			result.Cancelled++
		}
	}

	if result.TotalRequests > 0 {
		total := decimal.NewFromInt(result.TotalRequests)
		result.CompletionRate = decimal.NewFromInt(result.Completed).DivRound(total, ratePrecision)
	}
	result.Daily = dailySeries(daily, from, to)

	return result, nil
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// dailySeries produces one point per calendar day in [from, to], zero-filled
// so the dashboard chart has a continuous axis.
func dailySeries(counts map[string]int64, from, to time.Time) []DailyPoint {
	var points []DailyPoint
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	for !day.After(to) {
		key := dayKey(day)
		points = append(points, DailyPoint{Date: key, Count: counts[key]})
		day = day.AddDate(0, 0, 1)
	}
	return points
}
