package errors

const (
	HttpInternalError        = "internal_error"
	HttpInvalidJsonError     = "invalid_json"
	HttpMissingTenantError   = "missing_tenant"
	HttpRateLimitedError     = "rate_limit_exceeded"
	HttpUnavailableError     = "analytics_unavailable"
	HttpDuplicateRecordError = "duplicate_record"
)

// ErrorResponse is the error response body for API errors.
type ErrorResponse struct {
	ErrorType     string      `json:"error_type"`
	Message       string      `json:"message"`
	Details       interface{} `json:"details,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}
