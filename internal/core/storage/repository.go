package storage

import (
	"context"
	"errors"
	"time"

	v1 "github.com/3sc0rp/blunari-saas-monorepo-sub002/internal/api/v1"
)

// ErrDuplicate is returned when a record with the same (tenant_id, id) already exists.
var ErrDuplicate = errors.New("record already exists")

// RecordStore is the raw transactional record store: the write path for the
// booking/catering widgets and the read path for fallback analytics.
type RecordStore interface {
	// SaveBooking persists a booking record. Idempotent on (tenant_id, id);
	// replays return ErrDuplicate.
	SaveBooking(ctx context.Context, record *v1.BookingRecord) error

	// SaveCateringOrder persists a catering order record. Idempotent on
	// (tenant_id, id); replays return ErrDuplicate.
	SaveCateringOrder(ctx context.Context, record *v1.CateringOrderRecord) error

	// BookingsInWindow fetches a tenant's bookings created in [from, to),
	// ordered by created_at ASC.
	BookingsInWindow(ctx context.Context, tenantID string, from, to time.Time) ([]*v1.BookingRecord, error)

	// CateringOrdersInWindow fetches a tenant's catering orders created in
	// [from, to), ordered by created_at ASC.
	CateringOrdersInWindow(ctx context.Context, tenantID string, from, to time.Time) ([]*v1.CateringOrderRecord, error)
}
