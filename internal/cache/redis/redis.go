// Package redis is the Redis-backed exam cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pavelanni/examgen/internal/cache"
)

// Client wraps a Redis client with exam cache helpers.
type Client struct {
	rdb *redis.Client
}

// NewClient initializes a new Redis cache client.
func NewClient(addr, password string, db int) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Client{rdb: rdb}
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error { return c.rdb.Close() }

func examKey(name string) string {
	return fmt.Sprintf("examgen:exam:%s", name)
}

// GetExam returns the cached artifact bytes, or cache.ErrMiss.
func (c *Client) GetExam(ctx context.Context, name string) ([]byte, error) {
	data, err := c.rdb.Get(ctx, examKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cache.ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// SetExam caches the artifact bytes with a TTL.
func (c *Client) SetExam(ctx context.Context, name string, data []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, examKey(name), data, ttl).Err()
}

// InvalidateExam drops a cached artifact, e.g. after a regeneration
// overwrote it in the store.
func (c *Client) InvalidateExam(ctx context.Context, name string) error {
	return c.rdb.Del(ctx, examKey(name)).Err()
}
