package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"marketplace/apperr"
	"marketplace/mocks"
	"marketplace/models"
	"marketplace/payment"
	"marketplace/repository"
)

const testWebhookSecret = "whsec_test"

type paymentDeps struct {
	orders    *mocks.MockOrderRepository
	carts     *mocks.MockCartStore
	provider  *mocks.MockPaymentProvider
	publisher *mocks.MockPublisher
}

func setupPaymentServiceTest(t *testing.T) (*PaymentService, *paymentDeps) {
	deps := &paymentDeps{
		orders:    new(mocks.MockOrderRepository),
		carts:     new(mocks.MockCartStore),
		provider:  new(mocks.MockPaymentProvider),
		publisher: new(mocks.MockPublisher),
	}
	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	svc := NewPaymentService(deps.orders, deps.carts, deps.provider, deps.publisher,
		orderTopic, "http://localhost:5173", testWebhookSecret, logger)
	return svc, deps
}

func pendingOrder() *models.Order {
	return &models.Order{
		ID:            "order-1",
		CustomerID:    "buyer-1",
		CustomerEmail: "jane@example.com",
		Status:        models.OrderStatusPending,
		TotalAmount:   decimal.NewFromInt(55),
		Items: models.LineItems{
			{ProductID: "prod-a", ProductName: "Lamp", Price: decimal.NewFromInt(20), Quantity: 2},
			{ProductID: "prod-b", ProductName: "Shirt", Price: decimal.NewFromInt(15), Quantity: 1},
		},
	}
}

func TestCreatePaymentSession_Success(t *testing.T) {
	svc, deps := setupPaymentServiceTest(t)

	deps.orders.On("GetByID", mock.Anything, "order-1").Return(pendingOrder(), nil)
	deps.provider.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(req payment.CheckoutRequest) bool {
		return req.OrderID == "order-1" &&
			req.UserID == "buyer-1" &&
			req.Currency == "mad" &&
			len(req.Lines) == 2 &&
			req.Lines[0].UnitAmount == 21000 &&
			req.Lines[1].UnitAmount == 15750 &&
			req.SuccessURL == "https://shop.example.com/order-confirmation/order-1?payment=success&session_id={CHECKOUT_SESSION_ID}"
	})).Return(&payment.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/cs_1"}, nil).Once()
	deps.orders.On("MarkPaymentPending", mock.Anything, "order-1", "cs_1", "mad").Return(nil).Once()

	result, err := svc.CreatePaymentSession(context.Background(), "buyer-1", "order-1", "MAD", "https://shop.example.com")
	require.NoError(t, err)

	assert.Equal(t, "cs_1", result.SessionID)
	assert.Equal(t, "https://checkout.stripe.com/cs_1", result.URL)
	deps.provider.AssertExpectations(t)
	deps.orders.AssertExpectations(t)
}

func TestCreatePaymentSession_Errors(t *testing.T) {
	paid := pendingOrder()
	paid.Status = models.OrderStatusPaid

	tests := []struct {
		name     string
		caller   string
		orderID  string
		currency string
		setup    func(d *paymentDeps)
		want     error
	}{
		{name: "no caller", caller: "", orderID: "order-1", want: apperr.ErrAuthentication},
		{name: "missing order id", caller: "buyer-1", orderID: "", want: apperr.ErrValidation},
		{name: "unsupported currency", caller: "buyer-1", orderID: "order-1", currency: "gbp", want: apperr.ErrValidation},
		{
			name: "order missing", caller: "buyer-1", orderID: "order-1",
			setup: func(d *paymentDeps) {
				d.orders.On("GetByID", mock.Anything, "order-1").Return(nil, repository.ErrNotFound)
			},
			want: apperr.ErrNotFound,
		},
		{
			name: "order of another buyer", caller: "buyer-2", orderID: "order-1",
			setup: func(d *paymentDeps) {
				d.orders.On("GetByID", mock.Anything, "order-1").Return(pendingOrder(), nil)
			},
			want: apperr.ErrNotFound,
		},
		{
			name: "already paid", caller: "buyer-1", orderID: "order-1",
			setup: func(d *paymentDeps) {
				d.orders.On("GetByID", mock.Anything, "order-1").Return(paid, nil)
			},
			want: apperr.ErrValidation,
		},
		{
			name: "provider failure", caller: "buyer-1", orderID: "order-1",
			setup: func(d *paymentDeps) {
				d.orders.On("GetByID", mock.Anything, "order-1").Return(pendingOrder(), nil)
				d.provider.On("CreateCheckoutSession", mock.Anything, mock.Anything).
					Return(nil, apperr.Gateway("payment provider unavailable", errors.New("timeout")))
			},
			want: apperr.ErrGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, deps := setupPaymentServiceTest(t)
			if tt.setup != nil {
				tt.setup(deps)
			}

			_, err := svc.CreatePaymentSession(context.Background(), tt.caller, tt.orderID, tt.currency, "")
			assert.ErrorIs(t, err, tt.want)
			deps.orders.AssertNotCalled(t, "MarkPaymentPending", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestVerifyPayment_NotPaidDoesNotMutate(t *testing.T) {
	svc, deps := setupPaymentServiceTest(t)
	deps.provider.On("GetCheckoutSession", mock.Anything, "cs_1").
		Return(&payment.CheckoutSession{ID: "cs_1", PaymentStatus: payment.StatusUnpaid, OrderID: "order-1", UserID: "buyer-1"}, nil)

	result, err := svc.VerifyPayment(context.Background(), "buyer-1", "cs_1")
	require.NoError(t, err)

	assert.Equal(t, payment.StatusUnpaid, result.Status)
	deps.orders.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything)
	deps.carts.AssertNotCalled(t, "Clear", mock.Anything, mock.Anything)
}

func TestVerifyPayment_PaidIsIdempotent(t *testing.T) {
	svc, deps := setupPaymentServiceTest(t)
	ctx := context.Background()

	deps.provider.On("GetCheckoutSession", mock.Anything, "cs_1").
		Return(&payment.CheckoutSession{ID: "cs_1", PaymentStatus: payment.StatusPaid, OrderID: "order-1", UserID: "buyer-1"}, nil)
	deps.orders.On("GetByID", mock.Anything, "order-1").Return(pendingOrder(), nil)
	deps.orders.On("MarkPaid", mock.Anything, "order-1").Return(true, nil).Once()
	deps.orders.On("MarkPaid", mock.Anything, "order-1").Return(false, nil).Once()
	deps.carts.On("Clear", mock.Anything, "buyer-1").Return(nil).Once()
	deps.publisher.On("Publish", mock.Anything, orderTopic, "order-1", mock.MatchedBy(func(e models.OrderEvent) bool {
		return e.EventType == models.EventPaymentSuccess && e.SessionID == "cs_1" && e.Status == models.OrderStatusPaid
	})).Return(nil).Once()

	first, err := svc.VerifyPayment(ctx, "buyer-1", "cs_1")
	require.NoError(t, err)
	second, err := svc.VerifyPayment(ctx, "buyer-1", "cs_1")
	require.NoError(t, err)

	assert.Equal(t, payment.StatusPaid, first.Status)
	assert.Equal(t, payment.StatusPaid, second.Status)
	assert.Equal(t, "order-1", second.OrderID)
	deps.carts.AssertNumberOfCalls(t, "Clear", 1)
	deps.publisher.AssertNumberOfCalls(t, "Publish", 1)
}

func TestVerifyPayment_Errors(t *testing.T) {
	t.Run("gateway failure", func(t *testing.T) {
		svc, deps := setupPaymentServiceTest(t)
		deps.provider.On("GetCheckoutSession", mock.Anything, "cs_1").Return(nil, errors.New("connection reset"))

		_, err := svc.VerifyPayment(context.Background(), "buyer-1", "cs_1")
		assert.ErrorIs(t, err, apperr.ErrGateway)
	})

	t.Run("session of another buyer", func(t *testing.T) {
		svc, deps := setupPaymentServiceTest(t)
		deps.provider.On("GetCheckoutSession", mock.Anything, "cs_1").
			Return(&payment.CheckoutSession{ID: "cs_1", PaymentStatus: payment.StatusPaid, OrderID: "order-1", UserID: "buyer-1"}, nil)

		_, err := svc.VerifyPayment(context.Background(), "buyer-2", "cs_1")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		deps.orders.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything)
	})

	t.Run("missing session id", func(t *testing.T) {
		svc, _ := setupPaymentServiceTest(t)
		_, err := svc.VerifyPayment(context.Background(), "buyer-1", "")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}

func signWebhook(t *testing.T, payload string) (string, []byte) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Header, signed.Payload
}

func TestHandleWebhook_CompletedSessionMarksPaid(t *testing.T) {
	svc, deps := setupPaymentServiceTest(t)
	header, body := signWebhook(t, `{"id":"evt_1","object":"event","type":"checkout.session.completed",
		"data":{"object":{"id":"cs_1","object":"checkout.session","payment_status":"paid",
		"metadata":{"order_id":"order-1","user_id":"buyer-1"}}}}`)

	deps.orders.On("GetByID", mock.Anything, "order-1").Return(pendingOrder(), nil)
	deps.orders.On("MarkPaid", mock.Anything, "order-1").Return(true, nil).Once()
	deps.carts.On("Clear", mock.Anything, "buyer-1").Return(nil).Once()
	deps.publisher.On("Publish", mock.Anything, orderTopic, "order-1", mock.Anything).Return(nil).Once()

	require.NoError(t, svc.HandleWebhook(context.Background(), body, header))
	deps.orders.AssertExpectations(t)
}

func TestHandleWebhook_FallsBackToSessionLookup(t *testing.T) {
	svc, deps := setupPaymentServiceTest(t)
	header, body := signWebhook(t, `{"id":"evt_2","object":"event","type":"checkout.session.async_payment_succeeded",
		"data":{"object":{"id":"cs_9","object":"checkout.session","payment_status":"paid"}}}`)

	deps.orders.On("GetByPaymentSessionID", mock.Anything, "cs_9").Return(pendingOrder(), nil)
	deps.orders.On("MarkPaid", mock.Anything, "order-1").Return(false, nil).Once()

	require.NoError(t, svc.HandleWebhook(context.Background(), body, header))
	deps.carts.AssertNotCalled(t, "Clear", mock.Anything, mock.Anything)
}

func TestHandleWebhook_Rejected(t *testing.T) {
	svc, deps := setupPaymentServiceTest(t)
	_, body := signWebhook(t, `{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{}}}`)

	err := svc.HandleWebhook(context.Background(), body, "t=1,v1=bad")
	assert.ErrorIs(t, err, apperr.ErrAuthentication)
	deps.orders.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything)
}

func TestHandleWebhook_IgnoresOtherEvents(t *testing.T) {
	svc, deps := setupPaymentServiceTest(t)
	header, body := signWebhook(t, `{"id":"evt_3","object":"event","type":"payment_intent.created","data":{"object":{"id":"pi_1","object":"payment_intent"}}}`)

	require.NoError(t, svc.HandleWebhook(context.Background(), body, header))
	deps.orders.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}
