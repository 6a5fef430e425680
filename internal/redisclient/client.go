package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// pendingValue marks a key whose order is still being placed.
const pendingValue = "pending"

type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewClient creates a new Redis client. Idempotency keys expire after ttl.
func NewClient(addr, password string, db int, ttl time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb, ttl: ttl}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:order:%s", key)
}

// Reserve claims an idempotency key. It returns false when the key is
// already claimed or completed.
func (c *Client) Reserve(ctx context.Context, key string) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, idempotencyKey(key), pendingValue, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return ok, nil
}

// Lookup returns the order id stored under key. pending is true while the
// first request holding the key is still running.
func (c *Client) Lookup(ctx context.Context, key string) (orderID string, pending bool, err error) {
	val, err := c.rdb.Get(ctx, idempotencyKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if val == pendingValue {
		return "", true, nil
	}
	return val, false, nil
}

// Complete binds key to the order it produced.
func (c *Client) Complete(ctx context.Context, key, orderID string) error {
	if err := c.rdb.Set(ctx, idempotencyKey(key), orderID, c.ttl).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// Release frees a key so the request can be retried.
func (c *Client) Release(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, idempotencyKey(key)).Err()
}
