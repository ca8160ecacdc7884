package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmptyCacheKey is returned for operations on an empty key.
var ErrEmptyCacheKey = errors.New("key cannot be empty")

// RedisCacheRepo implements core.CacheRepository using Redis.
// Entries are shared by every process pointing at the same Redis, so an
// invalidation issued by one process is observed by all of them.
type RedisCacheRepo struct {
	client    redis.UniversalClient
	keyPrefix string
}

// RedisCacheOptions configures a RedisCacheRepo.
type RedisCacheOptions struct {
	// KeyPrefix namespaces every key, e.g. "pushgate:". Optional.
	KeyPrefix string
}

// NewRedisCacheRepo creates a new RedisCacheRepo with the given Redis client.
func NewRedisCacheRepo(client redis.UniversalClient, opts RedisCacheOptions) *RedisCacheRepo {
	return &RedisCacheRepo{client: client, keyPrefix: opts.KeyPrefix}
}

// Set stores a value in Redis with the given key and TTL.
func (r *RedisCacheRepo) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyCacheKey
	}
	if err := r.client.Set(ctx, r.keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Get retrieves a value from Redis by key. A missing key yields nil, nil.
func (r *RedisCacheRepo) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyCacheKey
	}

	result, err := r.client.Get(ctx, r.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return result, nil
}

// Delete removes a key from Redis.
func (r *RedisCacheRepo) Delete(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyCacheKey
	}

	n, err := r.client.Del(ctx, r.keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n > 0, nil
}

// Health checks the health of the Redis connection.
func (r *RedisCacheRepo) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
