package analytics

import (
	"log/slog"
	"sync"
	"time"
)

const defaultReporterCapacity = 256

// ReportedError is one captured failure with its structured context.
type ReportedError struct {
	Code          Code       `json:"code"`
	Message       string     `json:"message"`
	TenantID      string     `json:"tenant_id"`
	Widget        WidgetType `json:"widget_type"`
	Range         TimeRange  `json:"time_range"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	At            time.Time  `json:"at"`
}

// ErrorReporter is a best-effort, bounded in-memory failure log. It exists
// for observability only: Report never fails, never blocks, and sits on no
// success or failure critical path.
type ErrorReporter struct {
	mu       sync.Mutex
	capacity int
	entries  []ReportedError // ring, oldest first once full
	next     int
	full     bool
	counts   map[Code]int
	nowFn    func() time.Time
}

// NewErrorReporter creates a reporter retaining the last capacity failures.
// capacity <= 0 selects the default.
func NewErrorReporter(capacity int) *ErrorReporter {
	if capacity <= 0 {
		capacity = defaultReporterCapacity
	}
	return &ErrorReporter{
		capacity: capacity,
		entries:  make([]ReportedError, capacity),
		counts:   make(map[Code]int),
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

// Report appends one failure. Oldest entries are overwritten once the ring
// is full; counts keep the complete totals.
func (r *ErrorReporter) Report(key RequestKey, correlationID string, err error) {
	if err == nil {
		return
	}

	code := CodeOf(err)
	entry := ReportedError{
		Code:          code,
		Message:       err.Error(),
		TenantID:      key.TenantID,
		Widget:        key.Widget,
		Range:         key.Range,
		CorrelationID: correlationID,
		At:            r.nowFn(),
	}

	r.mu.Lock()
	r.entries[r.next] = entry
	r.next++
	if r.next == r.capacity {
		r.next = 0
		r.full = true
	}
	r.counts[code]++
	r.mu.Unlock()

	slog.Warn("[Reporter] Analytics failure recorded",
		"code", string(code),
		"tenant_id", key.TenantID,
		"widget_type", string(key.Widget),
		"time_range", string(key.Range),
		"correlation_id", correlationID,
		"error", err,
	)
}

// Stats returns failure counts by code since process start.
func (r *ErrorReporter) Stats() map[Code]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[Code]int, len(r.counts))
	for code, n := range r.counts {
		out[code] = n
	}
	return out
}

// Recent returns the retained failures, oldest first.
func (r *ErrorReporter) Recent() []ReportedError {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]ReportedError, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]ReportedError, 0, r.capacity)
	out = append(out, r.entries[r.next:]...)
	out = append(out, r.entries[:r.next]...)
	return out
}
