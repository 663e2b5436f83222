package redis

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/acme/popup-campaign-engine/internal/config"
)

// Client wraps the go-redis client shared by the frequency, token and
// rate-limit stores.
type Client struct {
	inner *redis.Client
}

// NewClient opens a connection and verifies it with a bounded ping.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	inner := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := inner.Ping(ctx).Err(); err != nil {
		_ = inner.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &Client{inner: inner}, nil
}

// Inner exposes the raw redis client.
func (c *Client) Inner() *redis.Client {
	return c.inner
}

// Close closes the underlying client.
func (c *Client) Close() error {
	if c.inner != nil {
		return c.inner.Close()
	}
	return nil
}
