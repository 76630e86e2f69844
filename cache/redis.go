package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketplace/config"
	"marketplace/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func InitRedis(cfg config.Config, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established")
	return rdb, nil
}

// ProductCache holds serialized products keyed by id.
type ProductCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewProductCache(rdb redis.Cmdable, ttl time.Duration) *ProductCache {
	return &ProductCache{rdb: rdb, ttl: ttl}
}

func productKey(id string) string {
	return "product:" + id
}

// Get returns redis.Nil on a miss.
func (c *ProductCache) Get(ctx context.Context, id string) (*models.Product, error) {
	data, err := c.rdb.Get(ctx, productKey(id)).Bytes()
	if err != nil {
		return nil, err
	}
	var p models.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode cached product %s: %w", id, err)
	}
	return &p, nil
}

func (c *ProductCache) Set(ctx context.Context, p *models.Product) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, productKey(p.ID), data, c.ttl).Err()
}

func (c *ProductCache) Delete(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, productKey(id)).Err()
}
