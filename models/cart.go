package models

import "strings"

// CartItem references a product; prices are resolved when the order is built.
type CartItem struct {
	Key       string `json:"key"`
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Quantity  int    `json:"quantity"`
}

type AddCartItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity" binding:"required,gte=1"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required,gte=1"`
}

// CartKey identifies a cart line: the same product in two variants is two lines.
func CartKey(productID, variantID string) string {
	if variantID == "" {
		return productID
	}
	return productID + ":" + variantID
}

// ParseCartKey is the inverse of CartKey.
func ParseCartKey(key string) (productID, variantID string) {
	productID, variantID, _ = strings.Cut(key, ":")
	return productID, variantID
}
