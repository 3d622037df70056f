package analytics

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	httperr "github.com/3sc0rp/blunari-saas-monorepo-sub002/internal/core/errors"
	"github.com/gin-gonic/gin"
)

const (
	msgUnknownWidget = "Unknown widget type"
	msgUnknownRange  = "Unknown time range"
)

// Service exposes the retrieval pipeline over HTTP.
type Service struct {
	orch     *Orchestrator
	reporter *ErrorReporter
	bus      *InvalidationBus

	mu      sync.Mutex
	watched map[string]struct{}
}

func NewService(orch *Orchestrator, reporter *ErrorReporter, bus *InvalidationBus) *Service {
	if orch == nil {
		panic("analytics: orchestrator must not be nil")
	}
	if reporter == nil {
		panic("analytics: reporter must not be nil")
	}
	return &Service{
		orch:     orch,
		reporter: reporter,
		bus:      bus,
		watched:  make(map[string]struct{}),
	}
}

// RegisterRoutes registers the analytics query routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/analytics/limits", s.LimitsHandler)
	r.GET("/v1/analytics/errors/stats", s.ErrorStatsHandler)
	r.GET("/v1/analytics/:tenant_id/:widget_type", s.FetchHandler)
	r.POST("/v1/analytics/:tenant_id/:widget_type/refresh", s.RefreshHandler)
}

// FetchHandler resolves widget analytics, serving from cache when fresh.
func (s *Service) FetchHandler(c *gin.Context) {
	key, ok := s.parseKey(c)
	if !ok {
		return
	}

	opts := FetchOptions{
		ForceProduction: c.Query("force_production") == "true",
	}

	st := s.orch.Fetch(c.Request.Context(), key, opts)
	if st.Status == StatusFailed {
		writeFailure(c, st)
		return
	}

	// First successful fetch enrolls the key for background refresh.
	s.watch(key)

	writeState(c, st)
}

// RefreshHandler bypasses the cache and re-sources the widget.
func (s *Service) RefreshHandler(c *gin.Context) {
	key, ok := s.parseKey(c)
	if !ok {
		return
	}

	st := s.orch.Refresh(c.Request.Context(), key)
	if st.Status == StatusFailed {
		writeFailure(c, st)
		return
	}

	s.watch(key)

	writeState(c, st)
}

// LimitsHandler reports the caller-visible admission budget.
func (s *Service) LimitsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"remaining":      s.orch.RateLimitRemaining(),
		"reset_after_ms": s.orch.RateLimitReset().Milliseconds(),
	})
}

// ErrorStatsHandler exposes the aggregated error history for diagnostics.
func (s *Service) ErrorStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"counts": s.reporter.Stats(),
		"recent": s.reporter.Recent(),
	})
}

func (s *Service) parseKey(c *gin.Context) (RequestKey, bool) {
	tenantID := c.Param("tenant_id")

	widget := WidgetType(c.Param("widget_type"))
	if !widget.Valid() {
		slog.Warn("Unknown widget type requested", "widget_type", string(widget), "tenant_id", tenantID)
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   msgUnknownWidget,
		})
		return RequestKey{}, false
	}

	rng := TimeRange(c.DefaultQuery("range", string(Range7d)))
	if !rng.Valid() {
		slog.Warn("Unknown time range requested", "range", string(rng), "tenant_id", tenantID)
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   msgUnknownRange,
		})
		return RequestKey{}, false
	}

	return RequestKey{TenantID: tenantID, Widget: widget, Range: rng}, true
}

// watch enrolls a key with the invalidation bus once. Keys stay warm for the
// process lifetime; the bus drives their periodic refresh from here on.
func (s *Service) watch(key RequestKey) {
	if s.bus == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keyStr := key.String()
	if _, ok := s.watched[keyStr]; ok {
		return
	}
	s.watched[keyStr] = struct{}{}
	s.bus.Watch(key)
}

func writeState(c *gin.Context, st FetchState) {
	c.JSON(http.StatusOK, gin.H{
		"data":           st.Data,
		"mode":           string(st.Mode),
		"meta":           st.Meta,
		"last_updated":   st.LastUpdated.Format(time.RFC3339),
		"correlation_id": st.CorrelationID,
	})
}

// writeFailure maps a failed fetch state onto the HTTP error taxonomy.
func writeFailure(c *gin.Context, st FetchState) {
	switch st.LastErrorCode {
	case CodeRateLimited:
		if st.RetryAfter > 0 {
			seconds := int64(st.RetryAfter.Round(time.Second) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.FormatInt(seconds, 10))
		}
		c.JSON(http.StatusTooManyRequests, httperr.ErrorResponse{
			ErrorType:     httperr.HttpRateLimitedError,
			Message:       st.Error,
			CorrelationID: st.CorrelationID,
			Details: map[string]interface{}{
				"retry_after_ms": st.RetryAfter.Milliseconds(),
			},
		})

	case CodeMissingTenant:
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType:     httperr.HttpMissingTenantError,
			Message:       st.Error,
			CorrelationID: st.CorrelationID,
		})

	case CodeValidation:
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType:     httperr.HttpInvalidJsonError,
			Message:       st.Error,
			CorrelationID: st.CorrelationID,
		})

	default:
		c.JSON(http.StatusServiceUnavailable, httperr.ErrorResponse{
			ErrorType:     httperr.HttpUnavailableError,
			Message:       st.Error,
			CorrelationID: st.CorrelationID,
		})
	}
}
