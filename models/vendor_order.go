package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type VendorOrderStatus string

const (
	VendorOrderStatusPending    VendorOrderStatus = "pending"
	VendorOrderStatusProcessing VendorOrderStatus = "processing"
	VendorOrderStatusShipped    VendorOrderStatus = "shipped"
	VendorOrderStatusDelivered  VendorOrderStatus = "delivered"
	VendorOrderStatusCancelled  VendorOrderStatus = "cancelled"
)

var vendorOrderFlow = map[VendorOrderStatus][]VendorOrderStatus{
	VendorOrderStatusPending:    {VendorOrderStatusProcessing, VendorOrderStatusCancelled},
	VendorOrderStatusProcessing: {VendorOrderStatusShipped, VendorOrderStatusCancelled},
	VendorOrderStatusShipped:    {VendorOrderStatusDelivered, VendorOrderStatusCancelled},
}

func (s VendorOrderStatus) Valid() bool {
	switch s {
	case VendorOrderStatusPending, VendorOrderStatusProcessing, VendorOrderStatusShipped,
		VendorOrderStatusDelivered, VendorOrderStatusCancelled:
		return true
	}
	return false
}

func (s VendorOrderStatus) Terminal() bool {
	return s == VendorOrderStatusDelivered || s == VendorOrderStatusCancelled
}

// CanTransitionTo reports whether next is one step forward from s, or a
// cancellation of a non-terminal sub-order.
func (s VendorOrderStatus) CanTransitionTo(next VendorOrderStatus) bool {
	for _, allowed := range vendorOrderFlow[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type VendorOrder struct {
	ID              string            `json:"id"`
	VendorID        string            `json:"vendor_id"`
	OrderID         string            `json:"order_id"`
	Items           LineItems         `json:"items"`
	Subtotal        decimal.Decimal   `json:"subtotal"`
	Status          VendorOrderStatus `json:"status"`
	TrackingNumber  *string           `json:"tracking_number,omitempty"`
	ShippingCarrier *string           `json:"shipping_carrier,omitempty"`
	Notes           *string           `json:"notes,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// VendorOrderView is a sub-order joined with the buyer fields of its parent order.
type VendorOrderView struct {
	VendorOrder
	CustomerName    string          `json:"customer_name"`
	CustomerEmail   string          `json:"customer_email"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
}

type StatusHistory struct {
	ID            string             `json:"id"`
	VendorOrderID string             `json:"vendor_order_id"`
	OldStatus     *VendorOrderStatus `json:"old_status"`
	NewStatus     VendorOrderStatus  `json:"new_status"`
	ChangedBy     string             `json:"changed_by"`
	Notes         *string            `json:"notes,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

type VendorOrderStats struct {
	Total    int                       `json:"total"`
	ByStatus map[VendorOrderStatus]int `json:"by_status"`
	Revenue  decimal.Decimal           `json:"revenue"`
}

type UpdateVendorOrderRequest struct {
	Status          VendorOrderStatus `json:"status" binding:"required"`
	TrackingNumber  *string           `json:"trackingNumber"`
	ShippingCarrier *string           `json:"shippingCarrier"`
	Notes           *string           `json:"notes"`
}
