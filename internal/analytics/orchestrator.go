package analytics

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// PrimarySource is the remote aggregation endpoint contract.
type PrimarySource interface {
	Fetch(ctx context.Context, key RequestKey, correlationID string) (*AnalyticsResult, ResultMeta, error)
}

// FallbackSource is the raw-record approximation contract.
type FallbackSource interface {
	FetchApprox(ctx context.Context, key RequestKey) (*AnalyticsResult, ResultMeta, error)
}

// OrchestratorConfig is retrieval policy, not wiring. Zero values select the
// defaults below.
type OrchestratorConfig struct {
	// PrimaryTTL caches authoritative edge results. Kept short because the
	// dashboard intent is "live".
	PrimaryTTL time.Duration

	// FallbackTTL caches approximate results. Shorter still, reflecting
	// lower confidence.
	FallbackTTL time.Duration

	// MaxAttempts bounds primary attempts per fetch (linear backoff).
	MaxAttempts int

	// BackoffBase scales the linear backoff: attempt * base.
	BackoffBase time.Duration

	// TestMode short-circuits retries to a single attempt for CI runs.
	TestMode bool
}

func (c OrchestratorConfig) normalized() OrchestratorConfig {
	if c.PrimaryTTL <= 0 {
		c.PrimaryTTL = 30 * time.Second
	}
	if c.FallbackTTL <= 0 {
		c.FallbackTTL = 15 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	return c
}

// FetchOptions modify a single fetch request.
type FetchOptions struct {
	// BypassCache skips and clears the cached entry (manual refresh,
	// invalidation triggers).
	BypassCache bool

	// ForceProduction disables the sandbox short-circuit for this call.
	ForceProduction bool
}

// fetchOutcome is what a flight owner hands to everyone who joined it.
type fetchOutcome struct {
	result  *AnalyticsResult
	mode    SourceMode
	meta    ResultMeta
	ownerID string // correlation ID of the caller that ran the flight
}

// Orchestrator is the retrieval state machine. For each request key it
// decides cache-hit / join-in-flight / rate-limit-reject / primary-then-
// fallback, and publishes the outcome to every caller and subscriber.
//
// Per-key lifecycle: Idle → Loading → {Success, Failed}. Success and Failed
// only transition back to Loading via an explicit trigger; time passing does
// nothing on its own.
type Orchestrator struct {
	cfg      OrchestratorConfig
	cache    *TTLCache
	limiter  *RateLimiter
	primary  PrimarySource
	fallback FallbackSource
	reporter *ErrorReporter
	sandbox  *SandboxPolicy

	flights singleflight.Group
	nowFn   func() time.Time
	sleepFn func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	states map[string]FetchState
	subs   map[string]map[int]chan FetchState
	subSeq int
}

// NewOrchestrator wires the retrieval pipeline. All collaborators are
// process-lifetime singletons injected here, never ambient globals.
func NewOrchestrator(
	cfg OrchestratorConfig,
	cache *TTLCache,
	limiter *RateLimiter,
	primary PrimarySource,
	fallback FallbackSource,
	reporter *ErrorReporter,
	sandbox *SandboxPolicy,
) *Orchestrator {
	if sandbox == nil {
		sandbox = DefaultSandboxPolicy()
	}
	return &Orchestrator{
		cfg:      cfg.normalized(),
		cache:    cache,
		limiter:  limiter,
		primary:  primary,
		fallback: fallback,
		reporter: reporter,
		sandbox:  sandbox,
		nowFn:    func() time.Time { return time.Now().UTC() },
		sleepFn:  sleepContext,
		states:   make(map[string]FetchState),
		subs:     make(map[string]map[int]chan FetchState),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current snapshot for key (Idle if never fetched).
func (o *Orchestrator) State(key RequestKey) FetchState {
	o.mu.Lock()
	defer o.mu.Unlock()

	if st, ok := o.states[key.String()]; ok {
		return st
	}
	return FetchState{Key: key, Status: StatusIdle}
}

// Loading reports whether a fetch for key is currently owned by the
// orchestrator. The invalidation bus uses this to coalesce triggers.
func (o *Orchestrator) Loading(key RequestKey) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.states[key.String()].Status == StatusLoading
}

// Subscribe returns a channel of state snapshots for key and a release
// function. Slow subscribers drop snapshots rather than block publication.
func (o *Orchestrator) Subscribe(key RequestKey) (<-chan FetchState, func()) {
	ch := make(chan FetchState, 8)

	o.mu.Lock()
	o.subSeq++
	id := o.subSeq
	keyStr := key.String()
	if o.subs[keyStr] == nil {
		o.subs[keyStr] = make(map[int]chan FetchState)
	}
	o.subs[keyStr][id] = ch
	o.mu.Unlock()

	release := func() {
		o.mu.Lock()
		if set, ok := o.subs[keyStr]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(o.subs, keyStr)
			}
		}
		o.mu.Unlock()
	}
	return ch, release
}

// RateLimitRemaining exposes the admission slots left in the window.
func (o *Orchestrator) RateLimitRemaining() int {
	return o.limiter.Remaining()
}

// RateLimitReset exposes how long until the next slot frees up.
func (o *Orchestrator) RateLimitReset() time.Duration {
	return o.limiter.UntilNextSlot()
}

// Refresh forces a cache-bypass fetch for key.
func (o *Orchestrator) Refresh(ctx context.Context, key RequestKey) FetchState {
	return o.Fetch(ctx, key, FetchOptions{BypassCache: true})
}

// Fetch resolves analytics for key and returns the published state. All
// concurrent callers for the same key share one underlying source invocation
// and observe the same outcome.
func (o *Orchestrator) Fetch(ctx context.Context, key RequestKey, opts FetchOptions) FetchState {
	keyStr := key.String()
	correlationID := uuid.NewString()

	if opts.BypassCache {
		o.cache.Delete(keyStr)
	} else if entry, ok := o.cache.Get(keyStr); ok {
		return o.publishSuccess(key, correlationID, entry.Result, ModeCached, entry.Meta)
	}

	o.publishLoading(key, correlationID)

	// The flight must outlive any single caller: a dashboard tab closing
	// mid-fetch must not cancel the round trip other callers are sharing.
	flightCtx := context.WithoutCancel(ctx)

	v, err, _ := o.flights.Do(keyStr, func() (interface{}, error) {
		return o.runFetch(flightCtx, key, opts, correlationID)
	})
	if err != nil {
		return o.publishFailure(key, correlationID, err)
	}

	outcome := v.(*fetchOutcome)
	mode := outcome.mode
	if outcome.ownerID != correlationID {
		// Joined another caller's flight: shared, not freshly sourced.
		mode = ModeCached
	}
	return o.publishSuccess(key, correlationID, outcome.result, mode, outcome.meta)
}

// runFetch is the owned portion of a fetch: admission, preconditions, sandbox
// routing, primary retries, fallback. Exactly one runFetch per key is live at
// a time; the singleflight entry is removed when it settles on any path.
func (o *Orchestrator) runFetch(ctx context.Context, key RequestKey, opts FetchOptions, correlationID string) (*fetchOutcome, error) {
	keyStr := key.String()

	if !o.limiter.TryAdmit() {
		retryAfter := o.limiter.UntilNextSlot()
		err := &Error{
			Code:       CodeRateLimited,
			Message:    "analytics refresh throttled",
			RetryAfter: retryAfter,
		}
		o.reporter.Report(key, correlationID, err)
		return nil, err
	}

	if err := o.validateKey(key); err != nil {
		return nil, err
	}

	isSandbox := o.sandbox.IsSandbox(key.TenantID)
	var primaryErr error

	if !isSandbox || opts.ForceProduction {
		result, meta, err := o.fetchPrimary(ctx, key, correlationID)
		if err == nil {
			o.cache.Set(keyStr, result, ModePrimary, meta, o.cfg.PrimaryTTL)
			return &fetchOutcome{result: result, mode: ModePrimary, meta: meta, ownerID: correlationID}, nil
		}
		if CodeOf(err) == CodeValidation {
			// Terminal: no fallback can repair a malformed request.
			o.reporter.Report(key, correlationID, err)
			return nil, err
		}
		primaryErr = err
	} else {
		slog.Debug("[Orchestrator] Sandbox tenant, skipping primary",
			"tenant_id", key.TenantID,
			"widget_type", string(key.Widget))
	}

	result, meta, fbErr := o.fallback.FetchApprox(ctx, key)
	if fbErr == nil {
		// The user sees data, not an error, but a primary failure is
		// still recorded for observability.
		if primaryErr != nil {
			o.reporter.Report(key, correlationID, primaryErr)
		}
		o.cache.Set(keyStr, result, ModeFallback, meta, o.cfg.FallbackTTL)
		return &fetchOutcome{result: result, mode: ModeFallback, meta: meta, ownerID: correlationID}, nil
	}

	if primaryErr != nil {
		o.reporter.Report(key, correlationID, primaryErr)
	}
	o.reporter.Report(key, correlationID, fbErr)
	return nil, fbErr
}

// validateKey enforces the fetch preconditions: both identifiers present and
// the tenant identifier syntactically plausible (a UUID, or a recognized
// sandbox name). No network call happens before this passes.
func (o *Orchestrator) validateKey(key RequestKey) error {
	if key.TenantID == "" || !key.Widget.Valid() || !key.Range.Valid() {
		return &Error{Code: CodeMissingTenant, Message: "tenant and widget identifiers are required"}
	}
	if o.sandbox.IsSandbox(key.TenantID) {
		return nil
	}
	if !looksLikeUUID(key.TenantID) {
		return &Error{Code: CodeMissingTenant, Message: "tenant identifier is not a valid UUID"}
	}
	return nil
}

func looksLikeUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// fetchPrimary attempts the edge with linear backoff: attempt * base delay.
// Test mode short-circuits to a single attempt.
func (o *Orchestrator) fetchPrimary(ctx context.Context, key RequestKey, correlationID string) (*AnalyticsResult, ResultMeta, error) {
	attempts := o.cfg.MaxAttempts
	if o.cfg.TestMode {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, meta, err := o.primary.Fetch(ctx, key, correlationID)
		if err == nil {
			return result, meta, nil
		}
		lastErr = err
		if CodeOf(err) == CodeValidation {
			return nil, ResultMeta{}, err
		}

		if attempt < attempts {
			delay := time.Duration(attempt) * o.cfg.BackoffBase
			slog.Debug("[Orchestrator] Primary attempt failed, backing off",
				"attempt", attempt,
				"delay", delay,
				"tenant_id", key.TenantID,
				"error", err)
			if err := o.sleepFn(ctx, delay); err != nil {
				return nil, ResultMeta{}, lastErr
			}
		}
	}
	return nil, ResultMeta{}, lastErr
}

func (o *Orchestrator) publishLoading(key RequestKey, correlationID string) {
	o.mu.Lock()
	st := o.states[key.String()]
	st.Key = key
	st.Status = StatusLoading
	st.Loading = true
	st.Error = ""
	st.RetryAfter = 0
	st.CorrelationID = correlationID
	o.states[key.String()] = st
	o.mu.Unlock()

	o.notify(key, st)
}

func (o *Orchestrator) publishSuccess(key RequestKey, correlationID string, result *AnalyticsResult, mode SourceMode, meta ResultMeta) FetchState {
	st := FetchState{
		Key:           key,
		Status:        StatusSuccess,
		Data:          result,
		Mode:          mode,
		Meta:          meta,
		LastUpdated:   o.nowFn(),
		CorrelationID: correlationID,
	}

	o.mu.Lock()
	o.states[key.String()] = st
	o.mu.Unlock()

	o.notify(key, st)
	return st
}

func (o *Orchestrator) publishFailure(key RequestKey, correlationID string, err error) FetchState {
	code := CodeOf(err)

	st := FetchState{
		Key:           key,
		Status:        StatusFailed,
		Error:         err.Error(),
		LastErrorCode: code,
		LastUpdated:   o.nowFn(),
		CorrelationID: correlationID,
	}

	var ae *Error
	if errors.As(err, &ae) {
		st.RetryAfter = ae.RetryAfter
	}

	if code == CodeRateLimited {
		// Throttling is not data loss: keep the last good value on screen.
		o.mu.Lock()
		if prev, ok := o.states[key.String()]; ok && prev.Data != nil {
			st.Data = prev.Data
			st.Mode = prev.Mode
			st.Meta = prev.Meta
		}
		o.states[key.String()] = st
		o.mu.Unlock()
	} else {
		// Total failure clears displayed data rather than leaving a
		// misleading last-good value on screen.
		o.mu.Lock()
		o.states[key.String()] = st
		o.mu.Unlock()
	}

	o.notify(key, st)
	return st
}

func (o *Orchestrator) notify(key RequestKey, st FetchState) {
	o.mu.Lock()
	subs := o.subs[key.String()]
	channels := make([]chan FetchState, 0, len(subs))
	for _, ch := range subs {
		channels = append(channels, ch)
	}
	o.mu.Unlock()

	for _, ch := range channels {
		select {
		case ch <- st:
		default:
			// Subscriber is behind; drop rather than block publication.
		}
	}
}
