package payment

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"marketplace/apperr"
	"marketplace/models"
)

// PaymentStatus values reported by the provider for a checkout session.
const (
	StatusPaid              = "paid"
	StatusUnpaid            = "unpaid"
	StatusNoPaymentRequired = "no_payment_required"
)

const (
	MetadataOrderID = "order_id"
	MetadataUserID  = "user_id"
)

type LineItem struct {
	Name       string
	Image      string
	UnitAmount int64
	Quantity   int64
}

type CheckoutRequest struct {
	OrderID       string
	UserID        string
	CustomerEmail string
	Currency      string
	SuccessURL    string
	CancelURL     string
	Lines         []LineItem
}

type CheckoutSession struct {
	ID            string
	URL           string
	PaymentStatus string
	OrderID       string
	UserID        string
}

func (s *CheckoutSession) Paid() bool {
	return s.PaymentStatus == StatusPaid
}

// Provider is a hosted checkout backend. Implementations must not retry.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
}

// BuildCheckoutRequest prices every order line in currency. One provider line
// is produced per order line.
func BuildCheckoutRequest(order *models.Order, userID, currency, origin string) (CheckoutRequest, error) {
	if len(order.Items) == 0 {
		return CheckoutRequest{}, apperr.Validation("order has no items")
	}

	lines := make([]LineItem, 0, len(order.Items))
	for _, item := range order.Items {
		amount, err := UnitAmount(item.Price, currency)
		if err != nil {
			return CheckoutRequest{}, err
		}
		lines = append(lines, LineItem{
			Name:       lineName(item),
			Image:      item.ProductImage,
			UnitAmount: amount,
			Quantity:   int64(item.Quantity),
		})
	}

	return CheckoutRequest{
		OrderID:       order.ID,
		UserID:        userID,
		CustomerEmail: order.CustomerEmail,
		Currency:      currency,
		SuccessURL:    SuccessURL(origin, order.ID),
		CancelURL:     CancelURL(origin, order.ID),
		Lines:         lines,
	}, nil
}

func lineName(item models.LineItem) string {
	if item.Variant == nil || item.Variant.Value == "" {
		return item.ProductName
	}
	return fmt.Sprintf("%s (%s: %s)", item.ProductName, item.Variant.Name, item.Variant.Value)
}

func SuccessURL(origin, orderID string) string {
	return fmt.Sprintf("%s/order-confirmation/%s?payment=success&session_id={CHECKOUT_SESSION_ID}",
		strings.TrimRight(origin, "/"), url.PathEscape(orderID))
}

func CancelURL(origin, orderID string) string {
	return fmt.Sprintf("%s/checkout?payment=cancelled&order_id=%s",
		strings.TrimRight(origin, "/"), url.QueryEscape(orderID))
}
