package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// RedisPrefix is the key prefix for all ChatXP profile keys.
	RedisPrefix = "chatxp:"

	// RedisTTL bounds how long an unused identifier is kept.
	RedisTTL = 30 * 24 * time.Hour
)

// RedisStore shares the identifier between machines under a profile name.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr, profile string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("store: redis connection failed: %w", err)
	}

	return NewRedisStoreWithClient(client, profile), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, profile string) *RedisStore {
	if profile == "" {
		profile = "default"
	}
	return &RedisStore{client: client, key: RedisPrefix + profile + ":" + KeyUserID}
}

// Load returns the identifier and refreshes its TTL.
func (s *RedisStore) Load(ctx context.Context) (string, error) {
	id, err := s.client.GetEx(ctx, s.key, RedisTTL).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: redis get: %w", err)
	}
	return id, nil
}

func (s *RedisStore) Save(ctx context.Context, userID string) error {
	if err := s.client.Set(ctx, s.key, userID, RedisTTL).Err(); err != nil {
		return fmt.Errorf("store: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("store: redis del: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
