package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyPrefix = "idempotency:"

// ResponseCache stores serialized HTTP responses for Idempotency-Key replays.
type ResponseCache struct {
	client *redis.Client
}

// NewResponseCache creates a new ResponseCache.
func NewResponseCache(client *redis.Client) *ResponseCache {
	return &ResponseCache{client: client}
}

// Lookup returns the cached response for key. found is false on a miss.
func (c *ResponseCache) Lookup(ctx context.Context, key string) (data []byte, found bool, err error) {
	data, err = c.client.Get(ctx, idempotencyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Store caches a response for ttl. An existing entry is kept.
func (c *ResponseCache) Store(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return c.client.SetNX(ctx, idempotencyPrefix+key, data, ttl).Err()
}
