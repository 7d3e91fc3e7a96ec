// Package redis backs the marketplace's distributed lock, event bus and API
// rate limiter with go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// defaultNamespace prefixes every key and channel written by this package.
const defaultNamespace = "market"

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	// Namespace separates deployments sharing one Redis; empty means "market".
	Namespace string
}

// Client wraps a go-redis client together with the key namespace.
type Client struct {
	rdb *redis.Client
	ns  string
}

// New connects and pings Redis.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return Wrap(rdb, cfg.Namespace), nil
}

// Wrap adopts an existing go-redis client.
func Wrap(rdb *redis.Client, namespace string) *Client {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &Client{rdb: rdb, ns: namespace}
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key joins parts under the client's namespace, e.g. "market:lock:order:7".
func (c *Client) Key(parts ...string) string {
	return c.ns + ":" + strings.Join(parts, ":")
}
