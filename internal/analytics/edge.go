package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// analyticsContractVersion is echoed in every edge request so the endpoint
// can evolve the payload shape without breaking older dashboards.
const analyticsContractVersion = 2

const (
	headerCorrelationID = "X-Correlation-ID"
	headerAPIKey        = "apikey"
)

// CredentialProvider yields the current user session credential. Absence of a
// session is not fatal; requests are downgraded to the shared anonymous key.
type CredentialProvider interface {
	// Token returns the bearer credential and true, or false when no
	// session is available.
	Token(ctx context.Context) (string, bool)
}

// EdgeClient talks to the remote widget-analytics aggregation endpoint.
type EdgeClient struct {
	baseURL    string
	anonKey    string
	creds      CredentialProvider // nil means anonymous-only
	httpClient *http.Client
}

// NewEdgeClient creates a client for the aggregation endpoint at baseURL.
// anonKey is the shared fallback credential sent when no session exists.
func NewEdgeClient(baseURL, anonKey string, timeout time.Duration, creds CredentialProvider) *EdgeClient {
	return &EdgeClient{
		baseURL:    baseURL,
		anonKey:    anonKey,
		creds:      creds,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// edgeRequest is the wire shape of an analytics query.
type edgeRequest struct {
	TenantID   string     `json:"tenant_id"`
	WidgetType WidgetType `json:"widget_type"`
	TimeRange  TimeRange  `json:"time_range"`
	Version    int        `json:"version"`
}

// edgeResponse is the wire shape of the endpoint's reply.
type edgeResponse struct {
	Success   bool             `json:"success"`
	Data      *AnalyticsResult `json:"data"`
	Meta      ResultMeta       `json:"meta"`
	Error     string           `json:"error,omitempty"`
	ErrorType string           `json:"error_type,omitempty"`
}

// Fetch queries the aggregation endpoint for key. The tenant identifier is
// format-checked locally before any network traffic. A 400-class response
// triggers exactly one retry with the anonymous credential, recovering from
// stale session tokens in the Authorization header.
//
// Fetch never fabricates data: after the retry budget it returns an error,
// with one exception: a remote validation-class failure returns an explicit
// zeroed result tagged empty, because "nothing to count" is an answer.
func (c *EdgeClient) Fetch(ctx context.Context, key RequestKey, correlationID string) (*AnalyticsResult, ResultMeta, error) {
	if _, err := uuid.Parse(key.TenantID); err != nil {
		return nil, ResultMeta{}, validationErrorf("malformed tenant identifier %q", key.TenantID)
	}

	credential := c.anonKey
	usedSession := false
	if c.creds != nil {
		if token, ok := c.creds.Token(ctx); ok {
			credential = token
			usedSession = true
		}
	}

	result, meta, err := c.doFetch(ctx, key, correlationID, credential)
	if err == nil {
		return result, meta, nil
	}

	// One anonymous retry on a bad-request-shaped failure, and only when the
	// first attempt carried a session token worth swapping out.
	if usedSession && isClientError(err) {
		slog.Info("[Edge] Client-error response, retrying with anonymous credential",
			"tenant_id", key.TenantID,
			"widget_type", string(key.Widget),
			"correlation_id", correlationID,
		)
		return c.doFetch(ctx, key, correlationID, c.anonKey)
	}

	return nil, ResultMeta{}, err
}

// statusError carries the HTTP status class through the error chain so Fetch
// can distinguish retriable auth mismatches from everything else.
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("edge responded with status %d", e.status)
}

func isClientError(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return false
	}
	return se.status >= 400 && se.status < 500
}

func (c *EdgeClient) doFetch(ctx context.Context, key RequestKey, correlationID, credential string) (*AnalyticsResult, ResultMeta, error) {
	body, err := json.Marshal(edgeRequest{
		TenantID:   key.TenantID,
		WidgetType: key.Widget,
		TimeRange:  key.Range,
		Version:    analyticsContractVersion,
	})
	if err != nil {
		return nil, ResultMeta{}, edgeErrorf(err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/functions/v1/widget-analytics", bytes.NewReader(body))
	if err != nil {
		return nil, ResultMeta{}, edgeErrorf(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set(headerAPIKey, c.anonKey)
	req.Header.Set(headerCorrelationID, correlationID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ResultMeta{}, edgeErrorf(err, "call widget-analytics")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, ResultMeta{}, edgeErrorf(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, ResultMeta{}, edgeErrorf(&statusError{status: resp.StatusCode},
			"widget-analytics request failed")
	}

	var envelope edgeResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, ResultMeta{}, edgeErrorf(err, "decode response")
	}

	if !envelope.Success {
		if envelope.ErrorType == "validation_error" {
			// The endpoint rejected the query shape but the tenant exists:
			// an explicit empty result, tagged as such, not dressed-up zeros.
			meta := ResultMeta{TimeRange: key.Range, Empty: true}
			return EmptyResult(), meta, nil
		}
		return nil, ResultMeta{}, edgeErrorf(nil, "edge reported failure: %s", envelope.Error)
	}

	if envelope.Data == nil {
		return nil, ResultMeta{}, edgeErrorf(nil, "edge returned success with no data")
	}

	meta := envelope.Meta
	meta.TimeRange = key.Range
	return envelope.Data, meta, nil
}
