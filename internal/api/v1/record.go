package v1

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Booking statuses as persisted in the raw record store.
// The fallback analytics path derives completion/cancellation ratios from these.
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCompleted = "completed"
	BookingStatusCancelled = "cancelled"
	BookingStatusNoShow    = "no_show"
)

// Catering order statuses.
const (
	OrderStatusInquiry   = "inquiry"
	OrderStatusQuoted    = "quoted"
	OrderStatusConfirmed = "confirmed"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

// BookingRecord is a raw reservation record written by the booking widget.
// It is the source of truth the fallback analytics path reads when the
// aggregation edge is unreachable.
type BookingRecord struct {
	// ID is the unique immutable identifier provided by the client.
	// It MUST be unique per TenantID to enforce idempotency.
	ID string `json:"id"`

	// TenantID identifies the restaurant tenant that owns this record.
	TenantID string `json:"tenant_id"`

	// Status is one of the BookingStatus* constants.
	Status string `json:"status"`

	// PartySize is the number of guests on the reservation.
	PartySize int `json:"party_size"`

	// BookingTime is when the reservation is for (client-provided).
	BookingTime time.Time `json:"booking_time"`

	// CreatedAt is when the record was written (server-side clock).
	// Time-range analytics windows filter on this field.
	CreatedAt time.Time `json:"created_at"`
}

// Validate ensures the record has all required attributes.
func (r *BookingRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if !validBookingStatus(r.Status) {
		return fmt.Errorf("invalid status %q", r.Status)
	}
	if r.PartySize <= 0 {
		return fmt.Errorf("party_size must be > 0")
	}
	if r.BookingTime.IsZero() {
		return fmt.Errorf("booking_time is required")
	}
	return nil
}

func validBookingStatus(s string) bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCompleted,
		BookingStatusCancelled, BookingStatusNoShow:
		return true
	}
	return false
}

// CateringOrderRecord is a raw catering order written by the catering widget.
type CateringOrderRecord struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`

	// Status is one of the OrderStatus* constants.
	Status string `json:"status"`

	// TotalAmount is the quoted order total in the tenant's currency.
	TotalAmount decimal.Decimal `json:"total_amount"`

	// EventDate is when the catered event takes place.
	EventDate time.Time `json:"event_date"`

	// CreatedAt is when the record was written (server-side clock).
	CreatedAt time.Time `json:"created_at"`
}

// Validate ensures the record has all required attributes.
func (r *CateringOrderRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if !validOrderStatus(r.Status) {
		return fmt.Errorf("invalid status %q", r.Status)
	}
	if r.TotalAmount.IsNegative() {
		return fmt.Errorf("total_amount must be >= 0")
	}
	if r.EventDate.IsZero() {
		return fmt.Errorf("event_date is required")
	}
	return nil
}

func validOrderStatus(s string) bool {
	switch s {
	case OrderStatusInquiry, OrderStatusQuoted, OrderStatusConfirmed,
		OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}
