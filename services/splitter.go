package services

import (
	"context"
	"encoding/json"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"marketplace/apperr"
	"marketplace/middleware"
	"marketplace/models"
	"marketplace/repository"
)

// ActorSystem is recorded as the author of history entries the splitter writes.
const ActorSystem = "system"

type SplitResult struct {
	OrderID        string               `json:"orderId"`
	Created        []models.VendorOrder `json:"created"`
	SkippedVendors []string             `json:"skippedVendors,omitempty"`
	Unassigned     models.LineItems     `json:"unassigned,omitempty"`
}

// Splitter fans an order out into one sub-order per vendor. Running it again
// for the same order creates nothing new.
type Splitter struct {
	orders       repository.OrderRepository
	vendorOrders repository.VendorOrderRepository
	owners       OwnerResolver
	publisher    EventPublisher
	topic        string
	logger       *zap.Logger
}

func NewSplitter(
	orders repository.OrderRepository,
	vendorOrders repository.VendorOrderRepository,
	owners OwnerResolver,
	publisher EventPublisher,
	topic string,
	logger *zap.Logger,
) *Splitter {
	return &Splitter{
		orders:       orders,
		vendorOrders: vendorOrders,
		owners:       owners,
		publisher:    publisher,
		topic:        topic,
		logger:       logger,
	}
}

func (s *Splitter) Split(ctx context.Context, orderID string) (*SplitResult, error) {
	ctx, span := otel.Tracer("vendor-service").Start(ctx, "SplitOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	if orderID == "" {
		return nil, apperr.Validation("order id is required")
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Error("Order not found for vendor split",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("order_id", orderID),
		)
		return nil, apperr.NotFound("order not found")
	}
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Persistence("failed to load order", err)
	}

	owners, err := s.owners.ProductOwners(ctx, order.Items.ProductIDs())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	groups, vendorOrder, unassigned := groupByVendor(order.Items, owners)
	result := &SplitResult{OrderID: order.ID, Created: []models.VendorOrder{}, Unassigned: unassigned}

	if len(unassigned) > 0 {
		middleware.RecordUnassignedItems(len(unassigned))
		s.logger.Warn("Order items without a resolvable vendor were not assigned",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("order_id", order.ID),
			zap.Strings("product_ids", unassigned.ProductIDs()),
		)
	}

	existing, err := s.vendorOrders.ExistingVendorIDs(ctx, order.ID)
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Persistence("failed to load existing sub-orders", err)
	}
	done := make(map[string]struct{}, len(existing))
	for _, v := range existing {
		done[v] = struct{}{}
	}

	drafts := make([]models.VendorOrder, 0, len(vendorOrder))
	for _, vendorID := range vendorOrder {
		if _, ok := done[vendorID]; ok {
			result.SkippedVendors = append(result.SkippedVendors, vendorID)
			continue
		}
		items := groups[vendorID]
		drafts = append(drafts, models.VendorOrder{
			VendorID: vendorID,
			OrderID:  order.ID,
			Items:    items,
			Subtotal: items.Total(),
			Status:   models.VendorOrderStatusPending,
		})
	}
	if len(drafts) == 0 {
		if len(existing) == 0 {
			s.markAttempted(ctx, order.ID)
		}
		return result, nil
	}

	created, err := s.vendorOrders.CreateBatch(ctx, drafts, ActorSystem)
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Persistence("failed to create sub-orders", err)
	}
	result.Created = created

	// Lost a race with a concurrent split for these vendors.
	written := make(map[string]struct{}, len(created))
	for _, vo := range created {
		written[vo.VendorID] = struct{}{}
	}
	for _, d := range drafts {
		if _, ok := written[d.VendorID]; !ok {
			result.SkippedVendors = append(result.SkippedVendors, d.VendorID)
		}
	}

	for i := range created {
		vo := created[i]
		change := models.VendorOrderChange{EventType: models.ChangeInsert, VendorID: vo.VendorID, New: &vo}
		if err := s.publisher.Publish(ctx, s.topic, vo.VendorID, change); err != nil {
			s.logger.Error("Failed to publish vendor order change",
				zap.String("trace_id", middleware.GetTraceID(ctx)),
				zap.String("vendor_order_id", vo.ID),
				zap.Error(err),
			)
		}
	}

	middleware.RecordVendorOrdersSplit(len(created))
	s.logger.Info("Order split into vendor orders",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("order_id", order.ID),
		zap.Int("created", len(created)),
		zap.Int("skipped", len(result.SkippedVendors)),
	)
	return result, nil
}

// markAttempted keeps an order that produced no sub-orders out of later
// reconciler sweeps. A failure only means the order is retried.
func (s *Splitter) markAttempted(ctx context.Context, orderID string) {
	if err := s.orders.MarkSplitAttempted(ctx, orderID); err != nil {
		s.logger.Warn("Failed to record split attempt",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}
}

// HandleOrderEvent is the order_events consumer. Orders that cannot be found
// or are malformed are dropped rather than retried.
func (s *Splitter) HandleOrderEvent(ctx context.Context, key, value []byte) error {
	var event models.OrderEvent
	if err := json.Unmarshal(value, &event); err != nil {
		s.logger.Error("Failed to unmarshal order event",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("key", string(key)),
			zap.Error(err),
		)
		return nil
	}
	if event.EventType != models.EventOrderCreated {
		return nil
	}

	_, err := s.Split(ctx, event.OrderID)
	switch apperr.KindOf(err) {
	case apperr.KindNotFound, apperr.KindValidation:
		return nil
	}
	return err
}

// groupByVendor partitions items by owning vendor, keeping vendors in the
// order they first appear.
func groupByVendor(items models.LineItems, owners map[string]string) (map[string]models.LineItems, []string, models.LineItems) {
	groups := make(map[string]models.LineItems)
	var vendors []string
	var unassigned models.LineItems

	for _, item := range items {
		vendorID := owners[item.ProductID]
		if vendorID == "" {
			unassigned = append(unassigned, item)
			continue
		}
		if _, ok := groups[vendorID]; !ok {
			vendors = append(vendors, vendorID)
		}
		groups[vendorID] = append(groups[vendorID], item)
	}
	return groups, vendors, unassigned
}
