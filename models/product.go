package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string           `json:"id"`
	VendorID    string           `json:"vendor_id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Price       decimal.Decimal  `json:"price"`
	Images      []string         `json:"images"`
	Category    string           `json:"category"`
	Stock       int              `json:"stock"`
	Variants    []ProductVariant `json:"variants,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type ProductVariant struct {
	ID        string           `json:"id"`
	ProductID string           `json:"product_id"`
	Name      string           `json:"name"`
	Value     string           `json:"value"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Stock     int              `json:"stock"`
}

func (p Product) Variant(id string) (ProductVariant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return ProductVariant{}, false
}

// UnitPrice is the variant price when the variant carries one, else the base price.
func (p Product) UnitPrice(v *ProductVariant) decimal.Decimal {
	if v != nil && v.Price != nil {
		return *v.Price
	}
	return p.Price
}

func (p Product) Image() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

type VariantInput struct {
	Name  string           `json:"name" binding:"required"`
	Value string           `json:"value"`
	Price *decimal.Decimal `json:"price"`
	Stock int              `json:"stock" binding:"gte=0"`
}

type CreateProductRequest struct {
	Name        string           `json:"name" binding:"required"`
	Description string           `json:"description"`
	Price       *decimal.Decimal `json:"price" binding:"required"`
	Images      []string         `json:"images"`
	Category    string           `json:"category"`
	Stock       int              `json:"stock" binding:"gte=0"`
	Variants    []VariantInput   `json:"variants" binding:"dive"`
}

type UpdateProductRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Images      []string         `json:"images"`
	Category    *string          `json:"category"`
	Stock       *int             `json:"stock" binding:"omitempty,gte=0"`
}
