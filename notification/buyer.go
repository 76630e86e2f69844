package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"marketplace/middleware"
	"marketplace/models"
)

type Email struct {
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// LogMailer writes emails to the log instead of delivering them.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, email Email) error {
	m.logger.Info("[EMAIL]",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("to", email.To),
		zap.String("subject", email.Subject),
		zap.String("body", email.Body),
	)
	return nil
}

// BuyerNotifier tells buyers about their orders as order events arrive.
type BuyerNotifier struct {
	mailer Mailer
	logger *zap.Logger
}

func NewBuyerNotifier(mailer Mailer, logger *zap.Logger) *BuyerNotifier {
	return &BuyerNotifier{mailer: mailer, logger: logger}
}

// HandleOrderEvent is a kafka.Handler for the order events topic.
func (n *BuyerNotifier) HandleOrderEvent(ctx context.Context, _, value []byte) error {
	ctx, span := otel.Tracer("notification-service").Start(ctx, "ProcessNotification")
	defer span.End()

	var event models.OrderEvent
	if err := json.Unmarshal(value, &event); err != nil {
		span.RecordError(err)
		n.logger.Error("Dropping malformed order event", zap.Error(err))
		return nil
	}

	span.SetAttributes(
		attribute.String("event.type", event.EventType),
		attribute.String("order.id", event.OrderID),
	)

	switch event.EventType {
	case models.EventOrderCreated:
		return n.orderCreated(ctx, span, event)
	case models.EventPaymentSuccess:
		return n.paymentSuccess(ctx, span, event)
	default:
		n.logger.Debug("Unknown event type", zap.String("event_type", event.EventType))
		return nil
	}
}

func (n *BuyerNotifier) orderCreated(ctx context.Context, span trace.Span, event models.OrderEvent) error {
	message := fmt.Sprintf("Your order #%s totalling %s has been placed. We'll let you know once payment is confirmed.",
		shortID(event.OrderID), event.TotalAmount.StringFixed(2))

	if err := n.send(ctx, span, event, "Order Confirmation", message); err != nil {
		return err
	}

	middleware.RecordNotificationSent(models.EventOrderCreated)
	n.logger.Info("Order notification sent",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("order_id", event.OrderID),
		zap.String("customer_id", event.CustomerID),
		zap.String("message", message),
	)
	return nil
}

func (n *BuyerNotifier) paymentSuccess(ctx context.Context, span trace.Span, event models.OrderEvent) error {
	span.SetAttributes(attribute.String("payment.session_id", event.SessionID))
	message := fmt.Sprintf("Payment for order #%s was successful. Your vendors are preparing your items.",
		shortID(event.OrderID))

	if err := n.send(ctx, span, event, "Payment Successful", message); err != nil {
		return err
	}

	middleware.RecordNotificationSent(models.EventPaymentSuccess)
	n.logger.Info("Payment success notification sent",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("order_id", event.OrderID),
		zap.String("customer_id", event.CustomerID),
		zap.String("session_id", event.SessionID),
		zap.String("message", message),
	)
	return nil
}

func (n *BuyerNotifier) send(ctx context.Context, span trace.Span, event models.OrderEvent, subject, body string) error {
	if event.CustomerEmail == "" {
		n.logger.Warn("Order event has no customer email",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("order_id", event.OrderID),
		)
		return nil
	}
	if err := n.mailer.Send(ctx, Email{To: event.CustomerEmail, Subject: subject, Body: body}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("send %s email: %w", event.EventType, err)
	}
	return nil
}

// shortID is the order reference shown to buyers.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
