package records

import (
	"github.com/3sc0rp/blunari-saas-monorepo-sub002/internal/core/storage"
	"github.com/gin-gonic/gin"
)

// ChangeNotifier receives a signal whenever a tenant's records change, so
// downstream caches can be invalidated.
type ChangeNotifier interface {
	NotifyRecordsChanged(tenantID string)
}

type noopNotifier struct{}

func (noopNotifier) NotifyRecordsChanged(string) {}

type Service struct {
	store            storage.RecordStore
	notifier         ChangeNotifier
	maxBodySizeBytes int
}

func NewService(store storage.RecordStore, notifier ChangeNotifier, maxBodySizeMB int) *Service {
	if store == nil {
		panic("records: store must not be nil")
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1 // default to 1MB
	}
	return &Service{
		store:            store,
		notifier:         notifier,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
	}
}

// RegisterRoutes registers the record ingestion routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/records/bookings", s.IngestBookingHandler)
	r.POST("/v1/records/catering-orders", s.IngestCateringOrderHandler)
}
