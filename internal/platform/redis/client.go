package redis

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"punchclock/internal/platform/config"
)

// Client wraps the go-redis client with availability tracking.
// It is constructed once in main and injected into the template cache.
type Client struct {
	*redis.Client
	available atomic.Bool
}

// New builds a client from the provided configuration without dialing.
// Returns nil if the URL is empty (Redis not configured).
func New(cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	return &Client{Client: redis.NewClient(opts)}, nil
}

// Connect pings the server and records whether it is reachable.
// A failed connect leaves the client usable; callers degrade to the store.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.Ping(ctx).Err(); err != nil {
		c.available.Store(false)
		return fmt.Errorf("redis ping failed: %w", err)
	}
	c.available.Store(true)
	return nil
}

// IsAvailable reports the result of the most recent Connect or Health call.
func (c *Client) IsAvailable() bool {
	if c == nil {
		return false
	}
	return c.available.Load()
}

// Health checks if the Redis connection is healthy and updates availability.
func (c *Client) Health(ctx context.Context) error {
	err := c.Ping(ctx).Err()
	c.available.Store(err == nil)
	return err
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	c.available.Store(false)
	return c.Client.Close()
}
