package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"marketplace/models"
	"marketplace/realtime"
)

type recordingMailer struct {
	sent []Email
	err  error
}

func (m *recordingMailer) Send(_ context.Context, email Email) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, email)
	return nil
}

func orderEvent(t *testing.T, eventType string) []byte {
	t.Helper()
	body, err := json.Marshal(models.OrderEvent{
		EventType:     eventType,
		OrderID:       "3f2a9c1e-7b1d-4c55-9e1a-2d3c4b5a6978",
		CustomerID:    "buyer-1",
		CustomerEmail: "jane@example.com",
		TotalAmount:   decimal.RequireFromString("55"),
		Status:        models.OrderStatusPending,
		SessionID:     "cs_test_1",
	})
	require.NoError(t, err)
	return body
}

func TestBuyerNotifier_OrderCreated(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	mailer := &recordingMailer{}
	n := NewBuyerNotifier(mailer, zap.New(core))

	require.NoError(t, n.HandleOrderEvent(context.Background(), nil, orderEvent(t, models.EventOrderCreated)))

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "jane@example.com", mailer.sent[0].To)
	assert.Equal(t, "Order Confirmation", mailer.sent[0].Subject)
	assert.Contains(t, mailer.sent[0].Body, "#3f2a9c1e")
	assert.Contains(t, mailer.sent[0].Body, "55.00")
	assert.Equal(t, 1, logs.FilterMessage("Order notification sent").Len())
}

func TestBuyerNotifier_PaymentSuccess(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	mailer := &recordingMailer{}
	n := NewBuyerNotifier(mailer, zap.New(core))

	require.NoError(t, n.HandleOrderEvent(context.Background(), nil, orderEvent(t, models.EventPaymentSuccess)))

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "Payment Successful", mailer.sent[0].Subject)
	entries := logs.FilterMessage("Payment success notification sent").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "cs_test_1", entries[0].ContextMap()["session_id"])
}

func TestBuyerNotifier_IgnoresUnknownAndMalformed(t *testing.T) {
	mailer := &recordingMailer{}
	n := NewBuyerNotifier(mailer, zaptest.NewLogger(t))

	assert.NoError(t, n.HandleOrderEvent(context.Background(), nil, orderEvent(t, "order_shipped")))
	assert.NoError(t, n.HandleOrderEvent(context.Background(), nil, []byte("{not json")))
	assert.Empty(t, mailer.sent)
}

func TestBuyerNotifier_MailerFailureIsRetried(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("smtp unavailable")}
	n := NewBuyerNotifier(mailer, zaptest.NewLogger(t))

	err := n.HandleOrderEvent(context.Background(), nil, orderEvent(t, models.EventOrderCreated))
	assert.ErrorContains(t, err, "smtp unavailable")
}

func TestLogMailer(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := NewLogMailer(zap.New(core))

	require.NoError(t, m.Send(context.Background(), Email{To: "a@b.c", Subject: "Hi", Body: "Body"}))
	entries := logs.FilterMessage("[EMAIL]").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "a@b.c", entries[0].ContextMap()["to"])
}

func TestVendorFeed_ForwardsToHub(t *testing.T) {
	hub := realtime.NewHub(4, zaptest.NewLogger(t))
	sub := hub.Subscribe("vendor-1")
	defer sub.Close()
	feed := NewVendorFeed(hub, zaptest.NewLogger(t))

	body, err := json.Marshal(models.VendorOrderChange{
		EventType: models.ChangeInsert,
		New:       &models.VendorOrder{ID: "vo-1", VendorID: "vendor-1"},
	})
	require.NoError(t, err)

	require.NoError(t, feed.HandleChange(context.Background(), []byte("vendor-1"), body))

	event := <-sub.C
	assert.Equal(t, realtime.EventNewOrder, event.Type)
	assert.Equal(t, "vo-1", event.VendorOrderID)
}

func TestVendorFeed_DropsMalformed(t *testing.T) {
	hub := realtime.NewHub(1, zaptest.NewLogger(t))
	sub := hub.Subscribe("vendor-1")
	defer sub.Close()
	feed := NewVendorFeed(hub, zaptest.NewLogger(t))

	assert.NoError(t, feed.HandleChange(context.Background(), []byte("vendor-1"), []byte("[")))
	select {
	case e := <-sub.C:
		t.Fatalf("unexpected event %+v", e)
	default:
	}
}
