package notification

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"marketplace/middleware"
	"marketplace/models"
)

// Broadcaster receives vendor order changes for live subscribers.
type Broadcaster interface {
	Publish(change models.VendorOrderChange) int
}

// VendorFeed forwards the vendor order change stream to live vendor views.
type VendorFeed struct {
	hub    Broadcaster
	logger *zap.Logger
}

func NewVendorFeed(hub Broadcaster, logger *zap.Logger) *VendorFeed {
	return &VendorFeed{hub: hub, logger: logger}
}

// HandleChange is a kafka.Handler for the vendor order changes topic.
func (f *VendorFeed) HandleChange(ctx context.Context, key, value []byte) error {
	ctx, span := otel.Tracer("notification-service").Start(ctx, "BroadcastVendorOrderChange")
	defer span.End()

	var change models.VendorOrderChange
	if err := json.Unmarshal(value, &change); err != nil {
		span.RecordError(err)
		f.logger.Error("Dropping malformed vendor order change", zap.Error(err))
		return nil
	}
	if change.VendorID == "" {
		change.VendorID = string(key)
	}

	delivered := f.hub.Publish(change)
	span.SetAttributes(
		attribute.String("vendor.id", change.VendorID),
		attribute.String("change.type", string(change.EventType)),
		attribute.Int("subscribers.notified", delivered),
	)

	if change.EventType == models.ChangeInsert {
		middleware.RecordNotificationSent("vendor_new_order")
	}
	f.logger.Debug("Vendor order change broadcast",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("vendor_id", change.VendorID),
		zap.String("vendor_order_id", change.VendorOrderID()),
		zap.String("event_type", string(change.EventType)),
		zap.Int("delivered", delivered),
	)
	return nil
}
