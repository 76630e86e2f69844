package models

import "github.com/shopspring/decimal"

const (
	EventOrderCreated   = "order_created"
	EventPaymentSuccess = "payment_success"
)

type OrderEvent struct {
	EventType     string          `json:"event_type"` // order_created, payment_success
	OrderID       string          `json:"order_id"`
	CustomerID    string          `json:"customer_id"`
	CustomerEmail string          `json:"customer_email"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Status        OrderStatus     `json:"status"`
	SessionID     string          `json:"session_id,omitempty"`
}

func NewOrderEvent(eventType string, order *Order) OrderEvent {
	return OrderEvent{
		EventType:     eventType,
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		CustomerEmail: order.CustomerEmail,
		TotalAmount:   order.TotalAmount,
		Status:        order.Status,
	}
}

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// VendorOrderChange mirrors a row-level change on vendor_orders.
type VendorOrderChange struct {
	EventType ChangeType   `json:"eventType"`
	VendorID  string       `json:"vendor_id"`
	New       *VendorOrder `json:"new,omitempty"`
	Old       *VendorOrder `json:"old,omitempty"`
}

// VendorOrderID returns the id of the row the change refers to.
func (c VendorOrderChange) VendorOrderID() string {
	if c.New != nil {
		return c.New.ID
	}
	if c.Old != nil {
		return c.Old.ID
	}
	return ""
}

// SplitTriggerRequest is the order-insert payload accepted by the splitter.
type SplitTriggerRequest struct {
	Record struct {
		ID string `json:"id" binding:"required"`
	} `json:"record"`
}
