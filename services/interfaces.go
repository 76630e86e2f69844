package services

import (
	"context"

	"marketplace/models"
)

// CartStore holds each buyer's cart. Prices are never stored; they are
// resolved against the catalog when the order is built.
type CartStore interface {
	Items(ctx context.Context, buyerID string) ([]models.CartItem, error)
	Add(ctx context.Context, buyerID, productID, variantID string, quantity int) (models.CartItem, error)
	SetQuantity(ctx context.Context, buyerID, key string, quantity int) error
	Remove(ctx context.Context, buyerID, key string) error
	Clear(ctx context.Context, buyerID string) error
}

type Catalog interface {
	GetProduct(ctx context.Context, productID string) (*models.Product, error)
}

type OwnerResolver interface {
	ProductOwners(ctx context.Context, productIDs []string) (map[string]string, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
}

type IdempotencyStore interface {
	Claim(ctx context.Context, scope, key string) (string, bool, error)
	Complete(ctx context.Context, scope, key, result string) error
	Release(ctx context.Context, scope, key string) error
}
