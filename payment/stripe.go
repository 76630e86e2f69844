package payment

import (
	"context"
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/customer"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"marketplace/apperr"
	"marketplace/circuitbreaker"
	"marketplace/middleware"
)

type StripeProvider struct {
	sessions  *session.Client
	customers *customer.Client
	breaker   *circuitbreaker.CircuitBreaker
	logger    *zap.Logger
}

func NewStripeProvider(secretKey string, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *StripeProvider {
	return NewStripeProviderWithBackend(secretKey, stripe.GetBackend(stripe.APIBackend), breaker, logger)
}

func NewStripeProviderWithBackend(secretKey string, backend stripe.Backend, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *StripeProvider {
	return &StripeProvider{
		sessions:  &session.Client{B: backend, Key: secretKey},
		customers: &customer.Client{B: backend, Key: secretKey},
		breaker:   breaker,
		logger:    logger,
	}
}

// IsProviderFailure reports whether err should count against the breaker.
// Client-side rejections (4xx other than 429) do not.
func IsProviderFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode >= http.StatusInternalServerError ||
			stripeErr.HTTPStatusCode == http.StatusTooManyRequests ||
			stripeErr.HTTPStatusCode == 0
	}
	return true
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	ctx, span := otel.Tracer("payment-service").Start(ctx, "stripe.CreateCheckoutSession")
	defer span.End()

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.OrderID),
	}
	params.Context = ctx
	params.AddMetadata(MetadataOrderID, req.OrderID)
	params.AddMetadata(MetadataUserID, req.UserID)

	for _, line := range req.Lines {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(line.Name),
		}
		if line.Image != "" {
			product.Images = stripe.StringSlice([]string{line.Image})
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				ProductData: product,
				UnitAmount:  stripe.Int64(line.UnitAmount),
			},
			Quantity: stripe.Int64(line.Quantity),
		})
	}

	var created *stripe.CheckoutSession
	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		customerID, err := p.findCustomer(ctx, req.CustomerEmail)
		if err != nil {
			return err
		}
		if customerID != "" {
			params.Customer = stripe.String(customerID)
		} else if req.CustomerEmail != "" {
			params.CustomerEmail = stripe.String(req.CustomerEmail)
		}

		created, err = p.sessions.New(params)
		return err
	})
	if err != nil {
		span.RecordError(err)
		p.logger.Error("Failed to create checkout session",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("order_id", req.OrderID),
			zap.Error(err),
		)
		return nil, apperr.Gateway("payment provider unavailable", err)
	}

	return toCheckoutSession(created), nil
}

func (p *StripeProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	ctx, span := otel.Tracer("payment-service").Start(ctx, "stripe.GetCheckoutSession")
	defer span.End()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	var found *stripe.CheckoutSession
	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		found, err = p.sessions.Get(sessionID, params)
		return err
	})
	if err != nil {
		span.RecordError(err)
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, apperr.NotFound("checkout session not found")
		}
		p.logger.Error("Failed to retrieve checkout session",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return nil, apperr.Gateway("payment provider unavailable", err)
	}

	return toCheckoutSession(found), nil
}

func (p *StripeProvider) findCustomer(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", nil
	}
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := p.customers.List(params)
	if iter.Next() {
		return iter.Customer().ID, nil
	}
	return "", iter.Err()
}

func toCheckoutSession(s *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:            s.ID,
		URL:           s.URL,
		PaymentStatus: string(s.PaymentStatus),
		OrderID:       s.Metadata[MetadataOrderID],
		UserID:        s.Metadata[MetadataUserID],
	}
	if out.OrderID == "" {
		out.OrderID = s.ClientReferenceID
	}
	return out
}
