package analytics

import (
	"errors"
	"fmt"
	"time"
)

// Code classifies analytics retrieval failures. Codes, not Go types, are the
// contract with the dashboard and with the error reporter.
type Code string

const (
	CodeEdgeFunction  Code = "EDGE_FUNCTION_ERROR"
	CodeDatabase      Code = "DATABASE_ERROR"
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeRateLimited   Code = "RATE_LIMIT_EXCEEDED"
	CodeMissingTenant Code = "MISSING_TENANT"
	CodeUnknown       Code = "UNKNOWN_ERROR"
)

// Error is the structured failure type for the retrieval pipeline.
type Error struct {
	Code    Code
	Message string

	// RetryAfter is set on rate-limit rejections.
	RetryAfter time.Duration

	// Err is the wrapped cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the Code from any error in the chain, defaulting to
// CodeUnknown for untyped failures.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

func edgeErrorf(cause error, format string, args ...interface{}) *Error {
	return &Error{Code: CodeEdgeFunction, Message: fmt.Sprintf(format, args...), Err: cause}
}

func databaseErrorf(cause error, format string, args ...interface{}) *Error {
	return &Error{Code: CodeDatabase, Message: fmt.Sprintf(format, args...), Err: cause}
}

func validationErrorf(format string, args ...interface{}) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}
