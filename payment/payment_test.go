package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"marketplace/apperr"
	"marketplace/circuitbreaker"
	"marketplace/models"
)

func TestNormalizeCurrency(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: "usd"},
		{in: "EUR", want: "eur"},
		{in: " mad ", want: "mad"},
		{in: "gbp", wantErr: true},
	}

	for _, tt := range tests {
		got, err := NormalizeCurrency(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, apperr.ErrValidation, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestUnitAmount(t *testing.T) {
	tests := []struct {
		price    string
		currency string
		want     int64
	}{
		{price: "25.50", currency: "usd", want: 2550},
		{price: "10", currency: "eur", want: 850},
		{price: "19.99", currency: "eur", want: 1699}, // 1699.15
		{price: "0.01", currency: "mad", want: 11},    // 10.5
		{price: "3.33", currency: "mad", want: 3497},  // 3496.5
	}

	for _, tt := range tests {
		got, err := UnitAmount(decimal.RequireFromString(tt.price), tt.currency)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s %s", tt.price, tt.currency)
	}

	_, err := UnitAmount(decimal.NewFromInt(1), "gbp")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func testOrder() *models.Order {
	return &models.Order{
		ID:            "order-1",
		CustomerID:    "buyer-1",
		CustomerEmail: "jane@example.com",
		Items: models.LineItems{
			{ProductID: "p1", ProductName: "Mug", ProductImage: "https://img/mug.png", Price: decimal.RequireFromString("12.00"), Quantity: 2},
			{ProductID: "p2", ProductName: "Shirt", Price: decimal.RequireFromString("20.00"), Quantity: 1,
				Variant: &models.VariantRef{ID: "v1", Name: "Size", Value: "M"}},
		},
	}
}

func TestBuildCheckoutRequest(t *testing.T) {
	req, err := BuildCheckoutRequest(testOrder(), "buyer-1", "eur", "https://shop.example.com/")
	require.NoError(t, err)

	assert.Equal(t, "order-1", req.OrderID)
	assert.Equal(t, "buyer-1", req.UserID)
	assert.Equal(t, "jane@example.com", req.CustomerEmail)
	assert.Equal(t, "https://shop.example.com/order-confirmation/order-1?payment=success&session_id={CHECKOUT_SESSION_ID}", req.SuccessURL)
	assert.Equal(t, "https://shop.example.com/checkout?payment=cancelled&order_id=order-1", req.CancelURL)

	require.Len(t, req.Lines, 2)
	assert.Equal(t, LineItem{Name: "Mug", Image: "https://img/mug.png", UnitAmount: 1020, Quantity: 2}, req.Lines[0])
	assert.Equal(t, "Shirt (Size: M)", req.Lines[1].Name)
	assert.Equal(t, int64(1700), req.Lines[1].UnitAmount)
}

func TestBuildCheckoutRequest_EmptyOrder(t *testing.T) {
	_, err := BuildCheckoutRequest(&models.Order{ID: "o"}, "u", "usd", "http://x")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

type fakeStripe struct {
	customers    string
	lastCreate   map[string]string
	sessionPaid  bool
	failSessions bool
}

func (f *fakeStripe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/v1/customers":
		fmt.Fprintf(w, `{"object":"list","url":"/v1/customers","has_more":false,"data":[%s]}`, f.customers)
	case f.failSessions:
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"type":"api_error","message":"boom"}}`)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/checkout/sessions":
		_ = r.ParseForm()
		f.lastCreate = map[string]string{}
		for k := range r.PostForm {
			f.lastCreate[k] = r.PostForm.Get(k)
		}
		fmt.Fprint(w, `{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1",
			"payment_status":"unpaid","metadata":{"order_id":"order-1","user_id":"buyer-1"}}`)
	case r.Method == http.MethodGet && r.URL.Path == "/v1/checkout/sessions/cs_test_1":
		status := "unpaid"
		if f.sessionPaid {
			status = "paid"
		}
		fmt.Fprintf(w, `{"id":"cs_test_1","object":"checkout.session","payment_status":%q,
			"metadata":{"order_id":"order-1","user_id":"buyer-1"}}`, status)
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"No such checkout.session"}}`)
	}
}

func setupStripeTest(t *testing.T, fake *fakeStripe) *StripeProvider {
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	breaker := circuitbreaker.NewCircuitBreaker(3, time.Minute, circuitbreaker.WithFailurePredicate(IsProviderFailure))
	return NewStripeProviderWithBackend("sk_test_123", backend, breaker, zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)))
}

func TestStripeProvider_CreateCheckoutSession(t *testing.T) {
	fake := &fakeStripe{}
	provider := setupStripeTest(t, fake)

	req, err := BuildCheckoutRequest(testOrder(), "buyer-1", "usd", "http://localhost:5173")
	require.NoError(t, err)

	sess, err := provider.CreateCheckoutSession(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "cs_test_1", sess.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", sess.URL)
	assert.Equal(t, "order-1", sess.OrderID)

	assert.Equal(t, "payment", fake.lastCreate["mode"])
	assert.Equal(t, "order-1", fake.lastCreate["metadata[order_id]"])
	assert.Equal(t, "buyer-1", fake.lastCreate["metadata[user_id]"])
	assert.Equal(t, "jane@example.com", fake.lastCreate["customer_email"])
	assert.Equal(t, "1200", fake.lastCreate["line_items[0][price_data][unit_amount]"])
	assert.Equal(t, "2", fake.lastCreate["line_items[0][quantity]"])
	assert.Equal(t, "usd", fake.lastCreate["line_items[1][price_data][currency]"])
}

func TestStripeProvider_ReusesExistingCustomer(t *testing.T) {
	fake := &fakeStripe{customers: `{"id":"cus_42","object":"customer","email":"jane@example.com"}`}
	provider := setupStripeTest(t, fake)

	req, err := BuildCheckoutRequest(testOrder(), "buyer-1", "usd", "http://localhost:5173")
	require.NoError(t, err)

	_, err = provider.CreateCheckoutSession(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "cus_42", fake.lastCreate["customer"])
	assert.Empty(t, fake.lastCreate["customer_email"])
}

func TestStripeProvider_GatewayError(t *testing.T) {
	provider := setupStripeTest(t, &fakeStripe{failSessions: true})

	req, err := BuildCheckoutRequest(testOrder(), "buyer-1", "usd", "http://localhost:5173")
	require.NoError(t, err)

	_, err = provider.CreateCheckoutSession(context.Background(), req)
	assert.ErrorIs(t, err, apperr.ErrGateway)
}

func TestStripeProvider_GetCheckoutSession(t *testing.T) {
	fake := &fakeStripe{sessionPaid: true}
	provider := setupStripeTest(t, fake)

	sess, err := provider.GetCheckoutSession(context.Background(), "cs_test_1")
	require.NoError(t, err)
	assert.True(t, sess.Paid())
	assert.Equal(t, "order-1", sess.OrderID)
	assert.Equal(t, "buyer-1", sess.UserID)

	_, err = provider.GetCheckoutSession(context.Background(), "cs_missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestIsProviderFailure(t *testing.T) {
	assert.False(t, IsProviderFailure(nil))
	assert.False(t, IsProviderFailure(context.Canceled))
	assert.False(t, IsProviderFailure(&stripe.Error{HTTPStatusCode: http.StatusBadRequest}))
	assert.True(t, IsProviderFailure(&stripe.Error{HTTPStatusCode: http.StatusTooManyRequests}))
	assert.True(t, IsProviderFailure(&stripe.Error{HTTPStatusCode: http.StatusBadGateway}))
	assert.True(t, IsProviderFailure(errors.New("dial tcp: refused")))
}

const webhookSecret = "whsec_test"

func signedPayload(t *testing.T, payload string) (string, []byte) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Header, signed.Payload
}

func TestParseWebhook_CheckoutCompleted(t *testing.T) {
	header, body := signedPayload(t, `{"id":"evt_1","object":"event","type":"checkout.session.completed",
		"data":{"object":{"id":"cs_test_1","object":"checkout.session","payment_status":"paid",
		"metadata":{"order_id":"order-1","user_id":"buyer-1"}}}}`)

	event, err := ParseWebhook(body, header, webhookSecret)
	require.NoError(t, err)

	assert.Equal(t, EventCheckoutCompleted, event.Type)
	require.NotNil(t, event.Session)
	assert.Equal(t, "cs_test_1", event.Session.ID)
	assert.Equal(t, "order-1", event.Session.OrderID)
	assert.True(t, event.Settles())
}

func TestParseWebhook_UnpaidCompletionDoesNotSettle(t *testing.T) {
	header, body := signedPayload(t, `{"id":"evt_2","object":"event","type":"checkout.session.completed",
		"data":{"object":{"id":"cs_test_2","object":"checkout.session","payment_status":"unpaid","metadata":{"order_id":"order-2"}}}}`)

	event, err := ParseWebhook(body, header, webhookSecret)
	require.NoError(t, err)
	assert.False(t, event.Settles())
}

func TestParseWebhook_OtherEventIgnored(t *testing.T) {
	header, body := signedPayload(t, `{"id":"evt_3","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`)

	event, err := ParseWebhook(body, header, webhookSecret)
	require.NoError(t, err)
	assert.Nil(t, event.Session)
	assert.False(t, event.Settles())
}

func TestParseWebhook_BadSignature(t *testing.T) {
	_, body := signedPayload(t, `{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{}}}`)

	_, err := ParseWebhook(body, "t=1,v1=deadbeef", webhookSecret)
	assert.ErrorIs(t, err, apperr.ErrAuthentication)
}
