package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubPrimary struct {
	mu      sync.Mutex
	calls   int
	fn      func() (*AnalyticsResult, ResultMeta, error)
	started chan struct{}
	release chan struct{}
}

func (p *stubPrimary) Fetch(_ context.Context, _ RequestKey, _ string) (*AnalyticsResult, ResultMeta, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	if p.started != nil {
		select {
		case p.started <- struct{}{}:
		default:
		}
	}
	if p.release != nil {
		<-p.release
	}
	return p.fn()
}

func (p *stubPrimary) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type stubFallback struct {
	mu    sync.Mutex
	calls int
	fn    func() (*AnalyticsResult, ResultMeta, error)
}

func (f *stubFallback) FetchApprox(_ context.Context, key RequestKey) (*AnalyticsResult, ResultMeta, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn()
}

func (f *stubFallback) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func okResult(total int64) func() (*AnalyticsResult, ResultMeta, error) {
	return func() (*AnalyticsResult, ResultMeta, error) {
		r := EmptyResult()
		r.TotalRequests = total
		return r, ResultMeta{TimeRange: Range7d}, nil
	}
}

func approxResult(total int64) func() (*AnalyticsResult, ResultMeta, error) {
	return func() (*AnalyticsResult, ResultMeta, error) {
		r := EmptyResult()
		r.TotalRequests = total
		return r, ResultMeta{TimeRange: Range7d, Estimation: true}, nil
	}
}

func failWith(err error) func() (*AnalyticsResult, ResultMeta, error) {
	return func() (*AnalyticsResult, ResultMeta, error) {
		return nil, ResultMeta{}, err
	}
}

func newTestOrchestrator(primary PrimarySource, fallback FallbackSource, cfg OrchestratorConfig, limiterMax int) (*Orchestrator, *ErrorReporter) {
	cache := NewTTLCache()
	limiter := NewRateLimiter(limiterMax, time.Minute)
	reporter := NewErrorReporter(32)
	orch := NewOrchestrator(cfg, cache, limiter, primary, fallback, reporter, nil)
	orch.sleepFn = func(context.Context, time.Duration) error { return nil }
	return orch, reporter
}

func TestOrchestrator_PrimarySuccess(t *testing.T) {
	primary := &stubPrimary{fn: okResult(10)}
	fallback := &stubFallback{fn: approxResult(5)}
	orch, _ := newTestOrchestrator(primary, fallback, OrchestratorConfig{}, 10)

	st := orch.Fetch(context.Background(), testKey(), FetchOptions{})

	require.Equal(t, StatusSuccess, st.Status)
	require.Equal(t, ModePrimary, st.Mode)
	require.Equal(t, int64(10), st.Data.TotalRequests)
	require.False(t, st.Meta.Estimation)
	require.NotEmpty(t, st.CorrelationID)
	require.Equal(t, 1, primary.callCount())
	require.Equal(t, 0, fallback.callCount())
}

func TestOrchestrator_CacheHit(t *testing.T) {
	primary := &stubPrimary{fn: okResult(10)}
	fallback := &stubFallback{fn: approxResult(5)}
	orch, _ := newTestOrchestrator(primary, fallback, OrchestratorConfig{}, 10)

	first := orch.Fetch(context.Background(), testKey(), FetchOptions{})
	second := orch.Fetch(context.Background(), testKey(), FetchOptions{})

	require.Equal(t, ModePrimary, first.Mode)
	require.Equal(t, ModeCached, second.Mode)
	require.Equal(t, int64(10), second.Data.TotalRequests)
	require.Equal(t, 1, primary.callCount())
}

func TestOrchestrator_RefreshBypassesCache(t *testing.T) {
	primary := &stubPrimary{fn: okResult(10)}
	fallback := &stubFallback{fn: approxResult(5)}
	orch, _ := newTestOrchestrator(primary, fallback, OrchestratorConfig{}, 10)

	orch.Fetch(context.Background(), testKey(), FetchOptions{})
	st := orch.Refresh(context.Background(), testKey())

	require.Equal(t, StatusSuccess, st.Status)
	require.Equal(t, ModePrimary, st.Mode)
	require.Equal(t, 2, primary.callCount())
}

func TestOrchestrator_RateLimited(t *testing.T) {
	primary := &stubPrimary{fn: okResult(10)}
	fallback := &stubFallback{fn: approxResult(5)}
	orch, reporter := newTestOrchestrator(primary, fallback, OrchestratorConfig{}, 1)

	first := orch.Fetch(context.Background(), testKey(), FetchOptions{})
	require.Equal(t, StatusSuccess, first.Status)

	// Bypass the cache so the second attempt reaches admission control.
	second := orch.Refresh(context.Background(), testKey())

	require.Equal(t, StatusFailed, second.Status)
	require.Equal(t, CodeRateLimited, second.LastErrorCode)
	require.Greater(t, second.RetryAfter, time.Duration(0))
	require.Equal(t, 1, primary.callCount())
	require.Equal(t, 1, reporter.Stats()[CodeRateLimited])

	// Throttling keeps the last good value visible.
	require.NotNil(t, second.Data)
	require.Equal(t, int64(10), second.Data.TotalRequests)
}

func TestOrchestrator_MissingTenant(t *testing.T) {
	primary := &stubPrimary{fn: okResult(10)}
	fallback := &stubFallback{fn: approxResult(5)}
	orch, _ := newTestOrchestrator(primary, fallback, OrchestratorConfig{}, 10)

	key := RequestKey{TenantID: "", Widget: WidgetBooking, Range: Range7d}
	st := orch.Fetch(context.Background(), key, FetchOptions{})

	require.Equal(t, StatusFailed, st.Status)
	require.Equal(t, CodeMissingTenant, st.LastErrorCode)
	require.Equal(t, 0, primary.callCount())
	require.Equal(t, 0, fallback.callCount())
}

func TestOrchestrator_NonUUIDTenantRejected(t *testing.T) {
	primary := &stubPrimary{fn: okResult(10)}
	fallback := &stubFallback{fn: approxResult(5)}
	orch, _ := newTestOrchestrator(primary, fallback, OrchestratorConfig{}, 10)

	key := RequestKey{TenantID: "my-restaurant", Widget: WidgetBooking, Range: Range7d}
	st := orch.Fetch(context.Background(), key, FetchOptions{})

	require.Equal(t, StatusFailed, st.Status)
	require.Equal(t, CodeMissingTenant, st.LastErrorCode)
	require.Equal(t, 0, primary.callCount())
}

func TestOrchestrator_SandboxSkipsPrimary(t *testing.T) {
	primary := &stubPrimary{fn: okResult(10)}
	fallback := &stubFallback{fn: approxResult(5)}
	orch, _ := newTestOrchestrator(primary, fallback, OrchestratorConfig{}, 10)

	key := RequestKey{TenantID: "demo-tenant", Widget: WidgetBooking, Range: Range7d}
	st := orch.Fetch(context.Background(), key, FetchOptions{})

	require.Equal(t, StatusSuccess, st.Status)
	require.Equal(t, ModeFallback, st.Mode)
	require.True(t, st.Meta.Estimation)
	require.Equal(t, 0, primary.callCount())
	require.Equal(t, 1, fallback.callCount())
}

func TestOrchestrator_FallbackAfterPrimaryFailure(t *testing.T) {
	primary := &stubPrimary{fn: failWith(edgeErrorf(nil, "edge unreachable"))}
	fallback := &stubFallback{fn: approxResult(5)}
	orch, reporter := newTestOrchestrator(primary, fallback, OrchestratorConfig{}, 10)

	st := orch.Fetch(context.Background(), testKey(), FetchOptions{})

	require.Equal(t, StatusSuccess, st.Status)
	require.Equal(t, ModeFallback, st.Mode)
	require.Equal(t, int64(5), st.Data.TotalRequests)

	// Three linear-backoff attempts before giving up on the primary.
	require.Equal(t, 3, primary.callCount())

	// Fallback success still records the primary failure.
	require.Equal(t, 1, reporter.Stats()[CodeEdgeFunction])
}

func TestOrchestrator_TestModeSingleAttempt(t *testing.T) {
	primary := &stubPrimary{fn: failWith(edgeErrorf(nil, "edge unreachable"))}
	fallback := &stubFallback{fn: approxResult(5)}
	orch, _ := newTestOrchestrator(primary, fallback, OrchestratorConfig{TestMode: true}, 10)

	st := orch.Fetch(context.Background(), testKey(), FetchOptions{})

	require.Equal(t, StatusSuccess, st.Status)
	require.Equal(t, 1, primary.callCount())
}

func TestOrchestrator_ValidationFailureIsTerminal(t *testing.T) {
	primary := &stubPrimary{fn: failWith(validationErrorf("bad widget shape"))}
	fallback := &stubFallback{fn: approxResult(5)}
	orch, reporter := newTestOrchestrator(primary, fallback, OrchestratorConfig{}, 10)

	st := orch.Fetch(context.Background(), testKey(), FetchOptions{})

	require.Equal(t, StatusFailed, st.Status)
	require.Equal(t, CodeValidation, st.LastErrorCode)
	require.Nil(t, st.Data)

	// No retries, no fallback: the request itself is wrong.
	require.Equal(t, 1, primary.callCount())
	require.Equal(t, 0, fallback.callCount())
	require.Equal(t, 1, reporter.Stats()[CodeValidation])
}

func TestOrchestrator_BothSourcesFail(t *testing.T) {
	primary := &stubPrimary{fn: failWith(edgeErrorf(nil, "edge unreachable"))}
	fallback := &stubFallback{fn: failWith(databaseErrorf(nil, "db unreachable"))}
	orch, reporter := newTestOrchestrator(primary, fallback, OrchestratorConfig{}, 10)

	st := orch.Fetch(context.Background(), testKey(), FetchOptions{})

	require.Equal(t, StatusFailed, st.Status)
	require.Equal(t, CodeDatabase, st.LastErrorCode)
	require.Nil(t, st.Data)

	stats := reporter.Stats()
	require.Equal(t, 1, stats[CodeEdgeFunction])
	require.Equal(t, 1, stats[CodeDatabase])
}

func TestOrchestrator_SandboxForceProduction(t *testing.T) {
	primary := &stubPrimary{fn: okResult(10)}
	fallback := &stubFallback{fn: approxResult(5)}
	orch, _ := newTestOrchestrator(primary, fallback, OrchestratorConfig{}, 10)

	key := RequestKey{TenantID: "demo-tenant", Widget: WidgetBooking, Range: Range7d}
	st := orch.Fetch(context.Background(), key, FetchOptions{ForceProduction: true})

	require.Equal(t, StatusSuccess, st.Status)
	require.Equal(t, ModePrimary, st.Mode)
	require.Equal(t, 1, primary.callCount())
}

func TestOrchestrator_ConcurrentFetchesShareFlight(t *testing.T) {
	primary := &stubPrimary{
		fn:      okResult(10),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	fallback := &stubFallback{fn: approxResult(5)}
	orch, _ := newTestOrchestrator(primary, fallback, OrchestratorConfig{}, 10)

	var ownerState FetchState
	done := make(chan struct{})
	go func() {
		ownerState = orch.Fetch(context.Background(), testKey(), FetchOptions{})
		close(done)
	}()

	// Wait for the flight to be mid-primary, then join it.
	<-primary.started
	joined := make(chan FetchState, 1)
	go func() {
		joined <- orch.Fetch(context.Background(), testKey(), FetchOptions{})
	}()

	// Give the joiner a moment to reach the flight before releasing.
	time.Sleep(50 * time.Millisecond)
	close(primary.release)
	<-done
	joinerState := <-joined

	require.Equal(t, StatusSuccess, ownerState.Status)
	require.Equal(t, StatusSuccess, joinerState.Status)
	require.Equal(t, int64(10), joinerState.Data.TotalRequests)
	require.Equal(t, ModePrimary, ownerState.Mode)
	require.Equal(t, ModeCached, joinerState.Mode)
	require.Equal(t, 1, primary.callCount())
}

func TestOrchestrator_StateAndLoading(t *testing.T) {
	primary := &stubPrimary{fn: okResult(10)}
	fallback := &stubFallback{fn: approxResult(5)}
	orch, _ := newTestOrchestrator(primary, fallback, OrchestratorConfig{}, 10)

	require.Equal(t, StatusIdle, orch.State(testKey()).Status)
	require.False(t, orch.Loading(testKey()))

	orch.Fetch(context.Background(), testKey(), FetchOptions{})

	st := orch.State(testKey())
	require.Equal(t, StatusSuccess, st.Status)
	require.False(t, orch.Loading(testKey()))
}

func TestOrchestrator_SubscribeReceivesSnapshots(t *testing.T) {
	primary := &stubPrimary{fn: okResult(10)}
	fallback := &stubFallback{fn: approxResult(5)}
	orch, _ := newTestOrchestrator(primary, fallback, OrchestratorConfig{}, 10)

	ch, release := orch.Subscribe(testKey())
	defer release()

	orch.Fetch(context.Background(), testKey(), FetchOptions{})

	var statuses []FetchStatus
	for len(ch) > 0 {
		st := <-ch
		statuses = append(statuses, st.Status)
	}
	require.Equal(t, []FetchStatus{StatusLoading, StatusSuccess}, statuses)
}
