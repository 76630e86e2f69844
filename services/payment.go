package services

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"marketplace/apperr"
	"marketplace/middleware"
	"marketplace/models"
	"marketplace/payment"
	"marketplace/repository"
)

const (
	SourceVerify  = "verify"
	SourceWebhook = "webhook"
)

type SessionResult struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}

type VerifyResult struct {
	Status  string `json:"status"`
	OrderID string `json:"orderId,omitempty"`
}

type PaymentService struct {
	orders        repository.OrderRepository
	carts         CartStore
	provider      payment.Provider
	publisher     EventPublisher
	topic         string
	baseURL       string
	webhookSecret string
	logger        *zap.Logger
}

func NewPaymentService(
	orders repository.OrderRepository,
	carts CartStore,
	provider payment.Provider,
	publisher EventPublisher,
	topic, baseURL, webhookSecret string,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		orders:        orders,
		carts:         carts,
		provider:      provider,
		publisher:     publisher,
		topic:         topic,
		baseURL:       baseURL,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// CreatePaymentSession opens a hosted checkout for the caller's own order
// and moves the order to payment_pending. Provider failures are not retried.
func (s *PaymentService) CreatePaymentSession(ctx context.Context, callerID, orderID, currency, origin string) (*SessionResult, error) {
	ctx, span := otel.Tracer("payment-service").Start(ctx, "CreatePaymentSession")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	if callerID == "" {
		return nil, apperr.Authentication("user not authenticated")
	}
	if orderID == "" {
		return nil, apperr.ValidationFields("orderId is required", map[string]string{"orderId": "orderId is required"})
	}
	currency, err := payment.NormalizeCurrency(currency)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("order not found")
	}
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Persistence("failed to load order", err)
	}
	if order.CustomerID != callerID {
		return nil, apperr.NotFound("order not found")
	}
	switch order.Status {
	case models.OrderStatusPaid:
		return nil, apperr.Validation("order is already paid")
	case models.OrderStatusCancelled:
		return nil, apperr.Validation("order is cancelled")
	}

	if origin == "" {
		origin = s.baseURL
	}
	req, err := payment.BuildCheckoutRequest(order, callerID, currency, origin)
	if err != nil {
		return nil, err
	}

	session, err := s.provider.CreateCheckoutSession(ctx, req)
	if err != nil {
		span.RecordError(err)
		if _, ok := apperr.As(err); !ok {
			err = apperr.Gateway("payment provider unavailable", err)
		}
		return nil, err
	}

	if err := s.orders.MarkPaymentPending(ctx, order.ID, session.ID, currency); err != nil {
		span.RecordError(err)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Validation("order can no longer be paid")
		}
		return nil, apperr.Persistence("failed to update order", err)
	}

	middleware.RecordPaymentSession(currency)
	s.logger.Info("Payment session created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("order_id", order.ID),
		zap.String("session_id", session.ID),
		zap.String("currency", currency),
	)
	return &SessionResult{URL: session.URL, SessionID: session.ID}, nil
}

// VerifyPayment asks the provider for the session status. Only a paid
// session mutates state, and repeating the call is harmless.
func (s *PaymentService) VerifyPayment(ctx context.Context, callerID, sessionID string) (*VerifyResult, error) {
	ctx, span := otel.Tracer("payment-service").Start(ctx, "VerifyPayment")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	if sessionID == "" {
		return nil, apperr.ValidationFields("sessionId is required", map[string]string{"sessionId": "sessionId is required"})
	}

	session, err := s.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		if _, ok := apperr.As(err); !ok {
			err = apperr.Gateway("payment provider unavailable", err)
		}
		return nil, err
	}
	if callerID != "" && session.UserID != "" && session.UserID != callerID {
		return nil, apperr.NotFound("checkout session not found")
	}

	if !session.Paid() {
		middleware.RecordPaymentVerified(session.PaymentStatus, SourceVerify)
		return &VerifyResult{Status: session.PaymentStatus, OrderID: session.OrderID}, nil
	}

	orderID, err := s.finalize(ctx, session, SourceVerify)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &VerifyResult{Status: payment.StatusPaid, OrderID: orderID}, nil
}

// HandleWebhook applies a signed provider event. Unrelated or unpaid events
// are acknowledged without side effects.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ctx, span := otel.Tracer("payment-service").Start(ctx, "HandleWebhook")
	defer span.End()

	event, err := payment.ParseWebhook(payload, signature, s.webhookSecret)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.String("event.type", event.Type))

	if !event.Settles() {
		s.logger.Info("Ignoring webhook event",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
		)
		return nil
	}

	_, err = s.finalize(ctx, event.Session, SourceWebhook)
	return err
}

func (s *PaymentService) finalize(ctx context.Context, session *payment.CheckoutSession, source string) (string, error) {
	var (
		order *models.Order
		err   error
	)
	if session.OrderID != "" {
		order, err = s.orders.GetByID(ctx, session.OrderID)
	} else {
		order, err = s.orders.GetByPaymentSessionID(ctx, session.ID)
	}
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Error("Paid session references unknown order",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("session_id", session.ID),
			zap.String("order_id", session.OrderID),
		)
		return "", apperr.NotFound("order not found")
	}
	if err != nil {
		return "", apperr.Persistence("failed to load order", err)
	}

	transitioned, err := s.orders.MarkPaid(ctx, order.ID)
	if err != nil {
		return "", apperr.Persistence("failed to mark order paid", err)
	}
	middleware.RecordPaymentVerified(payment.StatusPaid, source)
	if !transitioned {
		return order.ID, nil
	}

	order.Status = models.OrderStatusPaid
	if err := s.carts.Clear(ctx, order.CustomerID); err != nil {
		s.logger.Warn("Failed to clear cart after payment",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}

	event := models.NewOrderEvent(models.EventPaymentSuccess, order)
	event.SessionID = session.ID
	if err := s.publisher.Publish(ctx, s.topic, order.ID, event); err != nil {
		s.logger.Error("Failed to publish payment success event",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}

	s.logger.Info("Order paid",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("order_id", order.ID),
		zap.String("session_id", session.ID),
		zap.String("source", source),
	)
	return order.ID, nil
}
