package records

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	v1 "github.com/3sc0rp/blunari-saas-monorepo-sub002/internal/api/v1"
	httperr "github.com/3sc0rp/blunari-saas-monorepo-sub002/internal/core/errors"
	"github.com/3sc0rp/blunari-saas-monorepo-sub002/internal/core/storage"
	"github.com/gin-gonic/gin"
)

const (
	msgReadBodyFailed  = "Failed to read request body"
	msgInvalidJSON     = "Invalid JSON body"
	msgPersistFailed   = "Failed to persist record"
	msgDuplicateRecord = "Record already exists"
)

// recordsError carries the structured HTTP error shape from a helper back to
// the handler. Helpers return this instead of writing to gin.Context
// directly, keeping them decoupled from HTTP.
type recordsError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *recordsError) Error() string {
	return e.message
}

// IngestBookingHandler handles HTTP POST requests for booking records.
func (s *Service) IngestBookingHandler(c *gin.Context) {
	var rec v1.BookingRecord
	payloadSize, err := s.parseRecord(c, &rec)
	if err != nil {
		writeError(c, err)
		return
	}
	rec.CreatedAt = normalizeCreatedAt(rec.CreatedAt)

	if vErr := rec.Validate(); vErr != nil {
		slog.Warn("Booking record validation failed", "error", vErr, "record_id", rec.ID)
		writeError(c, &recordsError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    vErr.Error(),
		})
		return
	}

	slog.Info("Received booking record",
		"record_id", rec.ID,
		"tenant_id", rec.TenantID,
		"status", rec.Status,
		"payload_size", payloadSize)

	if err := s.persist(c.Request.Context(), rec.ID, rec.TenantID, func(ctx context.Context) error {
		return s.store.SaveBooking(ctx, &rec)
	}); err != nil {
		writeError(c, err)
		return
	}

	s.notifier.NotifyRecordsChanged(rec.TenantID)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// IngestCateringOrderHandler handles HTTP POST requests for catering orders.
func (s *Service) IngestCateringOrderHandler(c *gin.Context) {
	var rec v1.CateringOrderRecord
	payloadSize, err := s.parseRecord(c, &rec)
	if err != nil {
		writeError(c, err)
		return
	}
	rec.CreatedAt = normalizeCreatedAt(rec.CreatedAt)

	if vErr := rec.Validate(); vErr != nil {
		slog.Warn("Catering order validation failed", "error", vErr, "record_id", rec.ID)
		writeError(c, &recordsError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    vErr.Error(),
		})
		return
	}

	slog.Info("Received catering order record",
		"record_id", rec.ID,
		"tenant_id", rec.TenantID,
		"status", rec.Status,
		"payload_size", payloadSize)

	if err := s.persist(c.Request.Context(), rec.ID, rec.TenantID, func(ctx context.Context) error {
		return s.store.SaveCateringOrder(ctx, &rec)
	}); err != nil {
		writeError(c, err)
		return
	}

	s.notifier.NotifyRecordsChanged(rec.TenantID)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// parseRecord reads the raw request body and binds it into dst. Returns the
// raw payload size for structured logging upstream.
func (s *Service) parseRecord(c *gin.Context, dst interface{}) (int, *recordsError) {
	// Enforce maximum body size to prevent OOM attacks
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		return 0, &recordsError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return len(bodyBytes), &recordsError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	if err := c.ShouldBindJSON(dst); err != nil {
		slog.Warn("Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return len(bodyBytes), &recordsError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}

	return len(bodyBytes), nil
}

// persist saves the record via save, mapping duplicates to 409.
func (s *Service) persist(ctx context.Context, recordID, tenantID string, save func(context.Context) error) *recordsError {
	if err := save(ctx); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			slog.Info("Duplicate record rejected", "record_id", recordID, "tenant_id", tenantID)
			return &recordsError{
				statusCode: http.StatusConflict,
				errorType:  httperr.HttpDuplicateRecordError,
				message:    msgDuplicateRecord,
			}
		}

		slog.Error("Failed to persist record", "error", err, "record_id", recordID)
		return &recordsError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgPersistFailed,
		}
	}

	return nil
}

// normalizeCreatedAt stamps the ingestion time when the producer omits it.
func normalizeCreatedAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

// writeError serializes a recordsError as the JSON HTTP response.
func writeError(c *gin.Context, err *recordsError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
