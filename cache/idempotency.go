package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// InFlight is stored under a claimed key until the request finishes.
const InFlight = "in-flight"

// IdempotencyStore remembers client-supplied submission keys so a replayed
// request resolves to the result of the first one.
type IdempotencyStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewIdempotencyStore(rdb redis.Cmdable, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

func idempotencyKey(scope, key string) string {
	return fmt.Sprintf("idem:%s:%s", scope, key)
}

// Claim reserves key for scope. When the key was already claimed it returns
// claimed=false and the stored value: InFlight, or the recorded result.
func (s *IdempotencyStore) Claim(ctx context.Context, scope, key string) (string, bool, error) {
	ok, err := s.rdb.SetNX(ctx, idempotencyKey(scope, key), InFlight, s.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return "", true, nil
	}

	value, err := s.rdb.Get(ctx, idempotencyKey(scope, key)).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; treat as in flight rather than racing.
		return InFlight, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read idempotency key: %w", err)
	}
	return value, false, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, scope, key, result string) error {
	return s.rdb.Set(ctx, idempotencyKey(scope, key), result, s.ttl).Err()
}

func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	return s.rdb.Del(ctx, idempotencyKey(scope, key)).Err()
}
