package services

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"marketplace/apperr"
	"marketplace/cache"
	"marketplace/middleware"
	"marketplace/models"
	"marketplace/repository"
)

const productLookupConcurrency = 8

type OrderService struct {
	orders      repository.OrderRepository
	carts       CartStore
	catalog     Catalog
	publisher   EventPublisher
	idempotency IdempotencyStore
	topic       string
	logger      *zap.Logger
}

func NewOrderService(
	orders repository.OrderRepository,
	carts CartStore,
	catalog Catalog,
	publisher EventPublisher,
	idempotency IdempotencyStore,
	topic string,
	logger *zap.Logger,
) *OrderService {
	return &OrderService{
		orders:      orders,
		carts:       carts,
		catalog:     catalog,
		publisher:   publisher,
		idempotency: idempotency,
		topic:       topic,
		logger:      logger,
	}
}

// Checkout turns the buyer's stored cart into an order. A non-empty
// idempotencyKey makes a repeated submission return the first order.
func (s *OrderService) Checkout(ctx context.Context, buyerID string, address models.ShippingAddress, idempotencyKey string) (*models.Order, error) {
	if buyerID == "" {
		return nil, apperr.Validation("buyer must be signed in to place an order")
	}

	if idempotencyKey == "" {
		return s.checkout(ctx, buyerID, address)
	}

	scope := "checkout:" + buyerID
	previous, claimed, err := s.idempotency.Claim(ctx, scope, idempotencyKey)
	if err != nil {
		return nil, apperr.Persistence("failed to record order submission", err)
	}
	if !claimed {
		if previous == cache.InFlight {
			return nil, apperr.Validation("order submission already in progress")
		}
		return s.GetOrder(ctx, buyerID, previous)
	}

	order, err := s.checkout(ctx, buyerID, address)
	if err != nil {
		if relErr := s.idempotency.Release(ctx, scope, idempotencyKey); relErr != nil {
			s.logger.Warn("Failed to release idempotency key",
				zap.String("trace_id", middleware.GetTraceID(ctx)),
				zap.String("customer_id", buyerID),
				zap.Error(relErr),
			)
		}
		return nil, err
	}

	if err := s.idempotency.Complete(ctx, scope, idempotencyKey, order.ID); err != nil {
		s.logger.Warn("Failed to record idempotency result",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}
	return order, nil
}

func (s *OrderService) checkout(ctx context.Context, buyerID string, address models.ShippingAddress) (*models.Order, error) {
	cart, err := s.carts.Items(ctx, buyerID)
	if err != nil {
		return nil, apperr.Persistence("failed to load cart", err)
	}
	return s.CreateOrder(ctx, buyerID, cart, address)
}

// CreateOrder prices the cart against the catalog, stores the order as
// pending and clears the cart. Sub-orders are created asynchronously from
// the order_created event.
func (s *OrderService) CreateOrder(ctx context.Context, buyerID string, cart []models.CartItem, address models.ShippingAddress) (*models.Order, error) {
	ctx, span := otel.Tracer("order-service").Start(ctx, "CreateOrder")
	defer span.End()

	if buyerID == "" {
		return nil, apperr.Validation("buyer must be signed in to place an order")
	}
	if len(cart) == 0 {
		return nil, apperr.Validation("cart is empty")
	}
	address = address.Normalize()
	if fields := address.Validate(); len(fields) > 0 {
		return nil, apperr.ValidationFields("shipping address is incomplete", fields)
	}

	items, err := s.priceCart(ctx, cart)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	order := &models.Order{
		CustomerID:      buyerID,
		CustomerEmail:   address.Email,
		CustomerName:    address.FullName(),
		Items:           items,
		TotalAmount:     items.Total(),
		ShippingAddress: address,
		Status:          models.OrderStatusPending,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		span.RecordError(err)
		return nil, apperr.Persistence("failed to create order", err)
	}
	span.SetAttributes(attribute.String("order.id", order.ID))

	if err := s.carts.Clear(ctx, buyerID); err != nil {
		s.logger.Warn("Failed to clear cart after order",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}

	if err := s.publisher.Publish(ctx, s.topic, order.ID, models.NewOrderEvent(models.EventOrderCreated, order)); err != nil {
		s.logger.Error("Failed to publish order created event",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}

	middleware.RecordOrderCreated()
	s.logger.Info("Order created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("order_id", order.ID),
		zap.String("customer_id", buyerID),
		zap.String("total_amount", order.TotalAmount.String()),
	)
	return order, nil
}

func (s *OrderService) priceCart(ctx context.Context, cart []models.CartItem) (models.LineItems, error) {
	ids := make([]string, 0, len(cart))
	index := make(map[string]int, len(cart))
	for _, item := range cart {
		if item.Quantity < 1 {
			return nil, apperr.Validation(fmt.Sprintf("invalid quantity for product %s", item.ProductID))
		}
		if _, ok := index[item.ProductID]; !ok {
			index[item.ProductID] = len(ids)
			ids = append(ids, item.ProductID)
		}
	}

	products := make([]*models.Product, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(productLookupConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			p, err := s.catalog.GetProduct(gctx, id)
			if errors.Is(err, apperr.ErrNotFound) {
				return apperr.Validation(fmt.Sprintf("product %s is no longer available", id))
			}
			if err != nil {
				return err
			}
			products[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make(models.LineItems, 0, len(cart))
	for _, ci := range cart {
		product := products[index[ci.ProductID]]
		item := models.LineItem{
			ProductID:    product.ID,
			ProductName:  product.Name,
			ProductImage: product.Image(),
			Quantity:     ci.Quantity,
		}

		var variant *models.ProductVariant
		if ci.VariantID != "" {
			v, ok := product.Variant(ci.VariantID)
			if !ok {
				return nil, apperr.Validation(fmt.Sprintf("variant %s of %s is no longer available", ci.VariantID, product.Name))
			}
			variant = &v
			item.Variant = &models.VariantRef{ID: v.ID, Name: v.Name, Value: v.Value}
		}
		item.Price = product.UnitPrice(variant)
		items = append(items, item)
	}
	return items, nil
}

// ListOrders returns the buyer's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, buyerID string) ([]models.Order, error) {
	if buyerID == "" {
		return nil, apperr.Authentication("user not authenticated")
	}
	orders, err := s.orders.ListByCustomer(ctx, buyerID)
	if err != nil {
		return nil, apperr.Persistence("failed to list orders", err)
	}
	return orders, nil
}

// GetOrder hides orders owned by someone else behind NotFound.
func (s *OrderService) GetOrder(ctx context.Context, buyerID, orderID string) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("order not found")
	}
	if err != nil {
		return nil, apperr.Persistence("failed to load order", err)
	}
	if order.CustomerID != buyerID {
		return nil, apperr.NotFound("order not found")
	}
	return order, nil
}

func (s *OrderService) Cart(ctx context.Context, buyerID string) ([]models.CartItem, error) {
	items, err := s.carts.Items(ctx, buyerID)
	if err != nil {
		return nil, apperr.Persistence("failed to load cart", err)
	}
	return items, nil
}

// AddToCart checks the product and variant exist before storing the line.
func (s *OrderService) AddToCart(ctx context.Context, buyerID string, req models.AddCartItemRequest) (models.CartItem, error) {
	if req.Quantity < 1 {
		return models.CartItem{}, apperr.ValidationFields("invalid quantity", map[string]string{"quantity": "quantity must be at least 1"})
	}

	product, err := s.catalog.GetProduct(ctx, req.ProductID)
	if errors.Is(err, apperr.ErrNotFound) {
		return models.CartItem{}, apperr.NotFound("product not found")
	}
	if err != nil {
		return models.CartItem{}, err
	}
	if req.VariantID != "" {
		if _, ok := product.Variant(req.VariantID); !ok {
			return models.CartItem{}, apperr.NotFound("variant not found")
		}
	}

	item, err := s.carts.Add(ctx, buyerID, req.ProductID, req.VariantID, req.Quantity)
	if err != nil {
		return models.CartItem{}, apperr.Persistence("failed to update cart", err)
	}
	return item, nil
}

func (s *OrderService) SetCartQuantity(ctx context.Context, buyerID, key string, quantity int) error {
	if quantity < 1 {
		return apperr.ValidationFields("invalid quantity", map[string]string{"quantity": "quantity must be at least 1"})
	}
	return cartError(s.carts.SetQuantity(ctx, buyerID, key, quantity))
}

func (s *OrderService) RemoveFromCart(ctx context.Context, buyerID, key string) error {
	return cartError(s.carts.Remove(ctx, buyerID, key))
}

func (s *OrderService) ClearCart(ctx context.Context, buyerID string) error {
	return cartError(s.carts.Clear(ctx, buyerID))
}

func cartError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, cache.ErrCartItemNotFound):
		return apperr.NotFound("cart item not found")
	default:
		return apperr.Persistence("failed to update cart", err)
	}
}
