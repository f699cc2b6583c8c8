package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore handles Redis operations: the revoked-token denylist used by
// logout/refresh, and the sliding-window counters behind rate limiting.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for middleware that needs pipelines.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// revokedKey returns the denylist key for a token ID.
func revokedKey(tokenID string) string {
	return fmt.Sprintf("revoked:%s", tokenID)
}

// RevokeToken adds a token ID to the denylist until the token would have
// expired anyway.
func (s *RedisStore) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil // already expired, nothing to deny
	}
	return s.client.Set(ctx, revokedKey(tokenID), "1", ttl).Err()
}

// IsTokenRevoked checks whether a token ID is on the denylist.
func (s *RedisStore) IsTokenRevoked(ctx context.Context, tokenID string) bool {
	exists, _ := s.client.Exists(ctx, revokedKey(tokenID)).Result()
	return exists > 0
}
