package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusPaymentPending OrderStatus = "payment_pending"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

const DefaultCountry = "France"

type VariantRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// LineItem is one ordered product, priced at order time.
type LineItem struct {
	ProductID    string          `json:"productId"`
	ProductName  string          `json:"productName"`
	ProductImage string          `json:"productImage,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
	Variant      *VariantRef     `json:"variant,omitempty"`
}

func (i LineItem) Total() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type LineItems []LineItem

func (items LineItems) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Total())
	}
	return total
}

// ProductIDs returns the distinct product ids in first-seen order.
func (items LineItems) ProductIDs() []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

func (items LineItems) Value() (driver.Value, error) {
	if items == nil {
		items = LineItems{}
	}
	return json.Marshal(items)
}

func (items *LineItems) Scan(src any) error {
	return scanJSON(src, items)
}

type ShippingAddress struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Normalize trims every field and fills the default country.
func (a ShippingAddress) Normalize() ShippingAddress {
	a.FirstName = strings.TrimSpace(a.FirstName)
	a.LastName = strings.TrimSpace(a.LastName)
	a.Email = strings.TrimSpace(a.Email)
	a.Phone = strings.TrimSpace(a.Phone)
	a.Street = strings.TrimSpace(a.Street)
	a.City = strings.TrimSpace(a.City)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.TrimSpace(a.Country)
	if a.Country == "" {
		a.Country = DefaultCountry
	}
	return a
}

// Validate returns a message per missing or malformed field, keyed by the
// JSON field name. An empty map means the address is complete.
func (a ShippingAddress) Validate() map[string]string {
	fields := make(map[string]string)
	required := []struct {
		name  string
		value string
	}{
		{"firstName", a.FirstName},
		{"lastName", a.LastName},
		{"email", a.Email},
		{"phone", a.Phone},
		{"street", a.Street},
		{"city", a.City},
		{"postalCode", a.PostalCode},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			fields[f.name] = f.name + " is required"
		}
	}
	if _, ok := fields["email"]; !ok && !strings.Contains(a.Email, "@") {
		fields["email"] = "email is invalid"
	}
	return fields
}

func (a ShippingAddress) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

func (a ShippingAddress) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *ShippingAddress) Scan(src any) error {
	return scanJSON(src, a)
}

type Order struct {
	ID               string          `json:"id"`
	CustomerID       string          `json:"customer_id"`
	CustomerEmail    string          `json:"customer_email"`
	CustomerName     string          `json:"customer_name"`
	Items            LineItems       `json:"items"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	ShippingAddress  ShippingAddress `json:"shipping_address"`
	Status           OrderStatus     `json:"status"`
	Currency         *string         `json:"currency,omitempty"`
	PaymentSessionID *string         `json:"payment_session_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type CreateOrderRequest struct {
	ShippingAddress ShippingAddress `json:"shippingAddress"`
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("cannot scan %T into %T", src, dst)
	}
}
