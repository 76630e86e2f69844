package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"marketplace/models"

	"github.com/redis/go-redis/v9"
)

var ErrCartItemNotFound = errors.New("cart item not found")

const cartTTL = 30 * 24 * time.Hour

// CartStore keeps each buyer's cart in a hash: field = cart key, value = quantity.
type CartStore struct {
	rdb redis.Cmdable
}

func NewCartStore(rdb redis.Cmdable) *CartStore {
	return &CartStore{rdb: rdb}
}

func cartKey(buyerID string) string {
	return "cart:" + buyerID
}

func (s *CartStore) Items(ctx context.Context, buyerID string) ([]models.CartItem, error) {
	fields, err := s.rdb.HGetAll(ctx, cartKey(buyerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	items := make([]models.CartItem, 0, len(fields))
	for key, raw := range fields {
		qty, err := strconv.Atoi(raw)
		if err != nil || qty < 1 {
			continue
		}
		productID, variantID := models.ParseCartKey(key)
		items = append(items, models.CartItem{
			Key:       key,
			ProductID: productID,
			VariantID: variantID,
			Quantity:  qty,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items, nil
}

// Add increments the quantity of a line, creating it if needed.
func (s *CartStore) Add(ctx context.Context, buyerID, productID, variantID string, quantity int) (models.CartItem, error) {
	key := models.CartKey(productID, variantID)
	total, err := s.rdb.HIncrBy(ctx, cartKey(buyerID), key, int64(quantity)).Result()
	if err != nil {
		return models.CartItem{}, fmt.Errorf("add cart item: %w", err)
	}
	if err := s.rdb.Expire(ctx, cartKey(buyerID), cartTTL).Err(); err != nil {
		return models.CartItem{}, fmt.Errorf("refresh cart ttl: %w", err)
	}
	return models.CartItem{Key: key, ProductID: productID, VariantID: variantID, Quantity: int(total)}, nil
}

func (s *CartStore) SetQuantity(ctx context.Context, buyerID, key string, quantity int) error {
	exists, err := s.rdb.HExists(ctx, cartKey(buyerID), key).Result()
	if err != nil {
		return fmt.Errorf("check cart item: %w", err)
	}
	if !exists {
		return ErrCartItemNotFound
	}
	if err := s.rdb.HSet(ctx, cartKey(buyerID), key, quantity).Err(); err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	return nil
}

func (s *CartStore) Remove(ctx context.Context, buyerID, key string) error {
	n, err := s.rdb.HDel(ctx, cartKey(buyerID), key).Result()
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	if n == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

// Clear deletes the cart. Clearing an empty cart is not an error.
func (s *CartStore) Clear(ctx context.Context, buyerID string) error {
	if err := s.rdb.Del(ctx, cartKey(buyerID)).Err(); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
