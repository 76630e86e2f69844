package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"marketplace/models"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartStore_Items(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewCartStore(rdb)

	mock.ExpectHGetAll("cart:u1").SetVal(map[string]string{
		"p2":    "1",
		"p1:xl": "2",
		"p3":    "garbage",
	})

	items, err := store.Items(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, models.CartItem{Key: "p1:xl", ProductID: "p1", VariantID: "xl", Quantity: 2}, items[0])
	assert.Equal(t, "p2", items[1].ProductID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartStore_Add(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewCartStore(rdb)

	mock.ExpectHIncrBy("cart:u1", "p1", 2).SetVal(3)
	mock.ExpectExpire("cart:u1", cartTTL).SetVal(true)

	item, err := store.Add(context.Background(), "u1", "p1", "", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, item.Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartStore_SetQuantity_Missing(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewCartStore(rdb)

	mock.ExpectHExists("cart:u1", "p9").SetVal(false)

	err := store.SetQuantity(context.Background(), "u1", "p9", 4)
	assert.ErrorIs(t, err, ErrCartItemNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartStore_SetQuantity(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewCartStore(rdb)

	mock.ExpectHExists("cart:u1", "p1").SetVal(true)
	mock.ExpectHSet("cart:u1", "p1", 4).SetVal(0)

	require.NoError(t, store.SetQuantity(context.Background(), "u1", "p1", 4))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartStore_Remove(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewCartStore(rdb)

	mock.ExpectHDel("cart:u1", "p1").SetVal(1)
	mock.ExpectHDel("cart:u1", "p1").SetVal(0)

	require.NoError(t, store.Remove(context.Background(), "u1", "p1"))
	assert.ErrorIs(t, store.Remove(context.Background(), "u1", "p1"), ErrCartItemNotFound)
}

func TestCartStore_ClearIsIdempotent(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewCartStore(rdb)

	mock.ExpectDel("cart:u1").SetVal(1)
	mock.ExpectDel("cart:u1").SetVal(0)

	require.NoError(t, store.Clear(context.Background(), "u1"))
	require.NoError(t, store.Clear(context.Background(), "u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartStore_ClearError(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewCartStore(rdb)

	mock.ExpectDel("cart:u1").SetErr(errors.New("READONLY"))

	assert.Error(t, store.Clear(context.Background(), "u1"))
}

func TestProductCache_GetSet(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := NewProductCache(rdb, 5*time.Minute)

	p := &models.Product{ID: "p1", VendorID: "v1", Name: "Mug", Price: decimal.NewFromInt(20)}
	data, err := json.Marshal(p)
	require.NoError(t, err)

	mock.ExpectSet("product:p1", data, 5*time.Minute).SetVal("OK")
	mock.ExpectGet("product:p1").SetVal(string(data))
	mock.ExpectGet("product:p2").RedisNil()

	require.NoError(t, c.Set(context.Background(), p))

	cached, err := c.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "v1", cached.VendorID)

	_, err = c.Get(context.Background(), "p2")
	assert.ErrorIs(t, err, redis.Nil)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyStore_Claim(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewIdempotencyStore(rdb, time.Hour)

	mock.ExpectSetNX("idem:u1:k1", InFlight, time.Hour).SetVal(true)
	mock.ExpectSetNX("idem:u1:k1", InFlight, time.Hour).SetVal(false)
	mock.ExpectGet("idem:u1:k1").SetVal("order-123")

	_, claimed, err := store.Claim(context.Background(), "u1", "k1")
	require.NoError(t, err)
	assert.True(t, claimed)

	value, claimed, err := store.Claim(context.Background(), "u1", "k1")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, "order-123", value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyStore_CompleteAndRelease(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewIdempotencyStore(rdb, time.Hour)

	mock.ExpectSet("idem:u1:k1", "order-123", time.Hour).SetVal("OK")
	mock.ExpectDel("idem:u1:k2").SetVal(1)

	require.NoError(t, store.Complete(context.Background(), "u1", "k1", "order-123"))
	require.NoError(t, store.Release(context.Background(), "u1", "k2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
