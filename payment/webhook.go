package payment

import (
	"encoding/json"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"marketplace/apperr"
)

const (
	EventCheckoutCompleted             = "checkout.session.completed"
	EventCheckoutAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

type WebhookEvent struct {
	ID      string
	Type    string
	Session *CheckoutSession
}

// Settles reports whether the event carries a paid checkout session.
func (e *WebhookEvent) Settles() bool {
	return e.Session != nil && e.Session.Paid()
}

// ParseWebhook verifies the Stripe-Signature header and decodes checkout
// session events. Other event types come back with a nil Session.
func ParseWebhook(payload []byte, signature, secret string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindAuthentication, Message: "invalid webhook signature", Err: err}
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	switch out.Type {
	case EventCheckoutCompleted, EventCheckoutAsyncPaymentSucceeded:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, apperr.Validation("malformed checkout session payload")
		}
		out.Session = toCheckoutSession(&s)
	}
	return out, nil
}
