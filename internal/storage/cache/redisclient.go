package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = errors.New("cache miss")

// RedisClient wraps go-redis to satisfy CacheClient. Values are stored as JSON.
type RedisClient struct {
	rdb redis.Cmdable
}

// NewRedisClient connects and pings so a bad address fails at startup.
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisClientFrom(rdb), nil
}

// NewRedisClientFrom wraps an existing client or pipeline.
func NewRedisClientFrom(rdb redis.Cmdable) *RedisClient {
	return &RedisClient{rdb: rdb}
}

func (c *RedisClient) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(val, dest)
}

// Set stores value under key. A zero ttl keeps the key forever.
func (c *RedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	bytes, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, bytes, ttl).Err()
}

func (c *RedisClient) Del(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

func (c *RedisClient) Close() error {
	if closer, ok := c.rdb.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
