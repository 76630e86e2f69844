package services

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"marketplace/apperr"
	"marketplace/middleware"
	"marketplace/models"
	"marketplace/repository"
)

// Shown when a sub-order's parent order cannot be read.
const (
	UnknownCustomerName  = "Unknown customer"
	UnknownCustomerEmail = "unknown@example.com"
)

type VendorOrderService struct {
	vendorOrders repository.VendorOrderRepository
	orders       repository.OrderRepository
	publisher    EventPublisher
	topic        string
	logger       *zap.Logger
}

func NewVendorOrderService(
	vendorOrders repository.VendorOrderRepository,
	orders repository.OrderRepository,
	publisher EventPublisher,
	topic string,
	logger *zap.Logger,
) *VendorOrderService {
	return &VendorOrderService{
		vendorOrders: vendorOrders,
		orders:       orders,
		publisher:    publisher,
		topic:        topic,
		logger:       logger,
	}
}

// ListVendorOrders returns the vendor's sub-orders newest first, each joined
// with its parent order's buyer contact. The join never fails the list.
func (s *VendorOrderService) ListVendorOrders(ctx context.Context, vendorID string) ([]models.VendorOrderView, error) {
	ctx, span := otel.Tracer("vendor-service").Start(ctx, "ListVendorOrders")
	defer span.End()

	if vendorID == "" {
		return nil, apperr.Authentication("user not authenticated")
	}

	subOrders, err := s.vendorOrders.ListByVendor(ctx, vendorID)
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Persistence("failed to list vendor orders", err)
	}

	parents := make(map[string]models.Order)
	if len(subOrders) > 0 {
		ids := make([]string, 0, len(subOrders))
		seen := make(map[string]struct{}, len(subOrders))
		for _, vo := range subOrders {
			if _, ok := seen[vo.OrderID]; !ok {
				seen[vo.OrderID] = struct{}{}
				ids = append(ids, vo.OrderID)
			}
		}

		orders, err := s.orders.ListByIDs(ctx, ids)
		if err != nil {
			s.logger.Warn("Failed to load parent orders, using placeholders",
				zap.String("trace_id", middleware.GetTraceID(ctx)),
				zap.String("vendor_id", vendorID),
				zap.Error(err),
			)
		}
		for _, o := range orders {
			parents[o.ID] = o
		}
	}

	views := make([]models.VendorOrderView, 0, len(subOrders))
	for _, vo := range subOrders {
		view := models.VendorOrderView{
			VendorOrder:   vo,
			CustomerName:  UnknownCustomerName,
			CustomerEmail: UnknownCustomerEmail,
		}
		if parent, ok := parents[vo.OrderID]; ok {
			view.CustomerName = parent.CustomerName
			view.CustomerEmail = parent.CustomerEmail
			view.ShippingAddress = parent.ShippingAddress
		}
		views = append(views, view)
	}
	return views, nil
}

// UpdateStatus lets the owning vendor move a sub-order through its lifecycle
// and set shipping details. Each status change is recorded in the history.
func (s *VendorOrderService) UpdateStatus(ctx context.Context, vendorID, subOrderID string, req models.UpdateVendorOrderRequest) (*models.VendorOrder, error) {
	ctx, span := otel.Tracer("vendor-service").Start(ctx, "UpdateVendorOrderStatus")
	defer span.End()
	span.SetAttributes(attribute.String("vendor_order.id", subOrderID))

	if vendorID == "" {
		return nil, apperr.Authentication("user not authenticated")
	}
	next := req.Status
	if !next.Valid() {
		return nil, apperr.ValidationFields("invalid status", map[string]string{"status": fmt.Sprintf("unknown status %q", req.Status)})
	}

	current, err := s.vendorOrders.GetByID(ctx, subOrderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("vendor order not found")
	}
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Persistence("failed to load vendor order", err)
	}
	if current.VendorID != vendorID {
		return nil, apperr.Authorization("vendor order belongs to another vendor")
	}
	if current.Status != next && !current.Status.CanTransitionTo(next) {
		return nil, apperr.ValidationFields("invalid status transition", map[string]string{
			"status": fmt.Sprintf("cannot move from %s to %s", current.Status, next),
		})
	}

	updated, err := s.vendorOrders.UpdateStatus(ctx, repository.StatusUpdate{
		ID:              current.ID,
		VendorID:        vendorID,
		OldStatus:       current.Status,
		NewStatus:       next,
		TrackingNumber:  req.TrackingNumber,
		ShippingCarrier: req.ShippingCarrier,
		Notes:           req.Notes,
		ChangedBy:       vendorID,
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("vendor order not found")
	}
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Persistence("failed to update vendor order", err)
	}

	change := models.VendorOrderChange{EventType: models.ChangeUpdate, VendorID: vendorID, New: updated, Old: current}
	if err := s.publisher.Publish(ctx, s.topic, vendorID, change); err != nil {
		s.logger.Error("Failed to publish vendor order change",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("vendor_order_id", updated.ID),
			zap.Error(err),
		)
	}

	s.logger.Info("Vendor order updated",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("vendor_order_id", updated.ID),
		zap.String("old_status", string(current.Status)),
		zap.String("new_status", string(updated.Status)),
	)
	return updated, nil
}

func (s *VendorOrderService) History(ctx context.Context, vendorID, subOrderID string) ([]models.StatusHistory, error) {
	current, err := s.vendorOrders.GetByID(ctx, subOrderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("vendor order not found")
	}
	if err != nil {
		return nil, apperr.Persistence("failed to load vendor order", err)
	}
	if current.VendorID != vendorID {
		return nil, apperr.Authorization("vendor order belongs to another vendor")
	}

	history, err := s.vendorOrders.ListHistory(ctx, subOrderID)
	if err != nil {
		return nil, apperr.Persistence("failed to load status history", err)
	}
	return history, nil
}

func (s *VendorOrderService) Stats(ctx context.Context, vendorID string) (*models.VendorOrderStats, error) {
	stats, err := s.vendorOrders.Stats(ctx, vendorID)
	if err != nil {
		return nil, apperr.Persistence("failed to compute vendor order stats", err)
	}
	return stats, nil
}
