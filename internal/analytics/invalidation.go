package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// VisibilitySource reports whether any consumer is actively watching the
// dashboard. While nothing is visible, periodic refresh is suspended; the
// transition back to visible triggers one immediate refresh.
type VisibilitySource interface {
	Visible() bool
}

type alwaysVisible struct{}

func (alwaysVisible) Visible() bool { return true }

// InvalidationBus drives stale-data refresh for the set of watched request
// keys. A key is refreshed when the periodic interval elapses, when a
// records-changed notification arrives for its tenant, or when visibility is
// regained. Triggers for a key already mid-fetch are dropped, not queued.
type InvalidationBus struct {
	orch       *Orchestrator
	interval   time.Duration
	visibility VisibilitySource

	// visibilityPoll bounds how fast a hidden→visible transition is
	// noticed, independent of the refresh interval.
	visibilityPoll time.Duration

	mu      sync.Mutex
	watched map[string]*watchEntry
	changes chan string
}

type watchEntry struct {
	key   RequestKey
	count int
}

// NewInvalidationBus builds a bus over the orchestrator. A nil visibility
// source means always visible. Interval <= 0 selects 30 seconds.
func NewInvalidationBus(orch *Orchestrator, interval time.Duration, visibility VisibilitySource) *InvalidationBus {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if visibility == nil {
		visibility = alwaysVisible{}
	}
	return &InvalidationBus{
		orch:           orch,
		interval:       interval,
		visibility:     visibility,
		visibilityPoll: time.Second,
		watched:        make(map[string]*watchEntry),
		changes:        make(chan string, 64),
	}
}

// Watch registers key for refresh and returns a release function. Watching
// the same key twice reference-counts it; the key leaves the refresh set
// when the last watcher releases.
func (b *InvalidationBus) Watch(key RequestKey) func() {
	keyStr := key.String()

	b.mu.Lock()
	entry, ok := b.watched[keyStr]
	if !ok {
		entry = &watchEntry{key: key}
		b.watched[keyStr] = entry
	}
	entry.count++
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if e, ok := b.watched[keyStr]; ok {
				e.count--
				if e.count <= 0 {
					delete(b.watched, keyStr)
				}
			}
			b.mu.Unlock()
		})
	}
}

// NotifyRecordsChanged signals that a tenant's underlying records changed.
// Never blocks; under burst the channel coalesces into the next drain.
func (b *InvalidationBus) NotifyRecordsChanged(tenantID string) {
	select {
	case b.changes <- tenantID:
	default:
	}
}

// Run processes refresh triggers until ctx is cancelled. Call in a goroutine.
func (b *InvalidationBus) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	visTicker := time.NewTicker(b.visibilityPoll)
	defer visTicker.Stop()

	wasVisible := b.visibility.Visible()

	for {
		select {
		case <-ctx.Done():
			slog.Info("[InvalidationBus] Stopped")
			return

		case tenantID := <-b.changes:
			if !b.visibility.Visible() {
				continue
			}
			b.refreshTenant(ctx, tenantID)

		case <-visTicker.C:
			// Regaining visibility refreshes immediately instead of
			// waiting out the remainder of the refresh interval.
			visible := b.visibility.Visible()
			if visible && !wasVisible {
				slog.Debug("[InvalidationBus] Visibility regained, refreshing watched keys")
				b.refreshAll(ctx)
			}
			wasVisible = visible

		case <-ticker.C:
			if b.visibility.Visible() {
				b.refreshAll(ctx)
			}
		}
	}
}

func (b *InvalidationBus) refreshAll(ctx context.Context) {
	for _, key := range b.snapshot() {
		b.refresh(ctx, key)
	}
}

func (b *InvalidationBus) refreshTenant(ctx context.Context, tenantID string) {
	for _, key := range b.snapshot() {
		if key.TenantID == tenantID {
			b.refresh(ctx, key)
		}
	}
}

func (b *InvalidationBus) refresh(ctx context.Context, key RequestKey) {
	if b.orch.Loading(key) {
		// A fetch is already in flight; this trigger is redundant.
		return
	}
	st := b.orch.Refresh(ctx, key)
	if st.Status == StatusFailed {
		slog.Warn("[InvalidationBus] Background refresh failed",
			"tenant_id", key.TenantID,
			"widget_type", string(key.Widget),
			"error_code", string(st.LastErrorCode))
	}
}

func (b *InvalidationBus) snapshot() []RequestKey {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := make([]RequestKey, 0, len(b.watched))
	for _, e := range b.watched {
		keys = append(keys, e.key)
	}
	return keys
}
