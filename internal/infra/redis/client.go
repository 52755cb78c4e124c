package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arklim/chat-moderation/internal/infra/config"
	"github.com/arklim/chat-moderation/internal/infra/telemetry"
)

const (
	defaultPoolSize  = 10
	defaultOpTimeout = 3 * time.Second
	connectTimeout   = 5 * time.Second
)

// Client wraps redis.Client with health check and lifecycle management.
// It backs the sliding-window rate limiter on the guard and admin routes.
type Client struct {
	client *redis.Client
	logger *zap.Logger
}

// NewClient connects to Redis and verifies the connection with a ping.
func NewClient(ctx context.Context, cfg config.RedisSettings, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(options(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("Redis connection established",
		zap.String("addr", client.Options().Addr),
		zap.Int("db", cfg.DB),
		zap.Int("pool_size", client.Options().PoolSize),
		zap.Bool("tls_enabled", cfg.TLSEnabled),
	)

	return &Client{client: client, logger: logger}, nil
}

func options(cfg config.RedisSettings) *redis.Options {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}
	opTimeout := cfg.OpTimeout
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}

	opts := &redis.Options{
		Addr:            net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        poolSize,
		MinIdleConns:    min(2, poolSize),
		MaxRetries:      3,
		DialTimeout:     connectTimeout,
		ReadTimeout:     opTimeout,
		WriteTimeout:    opTimeout,
		PoolTimeout:     opTimeout + time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
	}

	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: cfg.Host,
		}
	}
	return opts
}

// Client returns the underlying redis.Client for direct access
func (c *Client) Client() *redis.Client {
	return c.client
}

// HealthCheck performs a ping to verify Redis connectivity
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close gracefully closes the Redis connection pool
func (c *Client) Close() error {
	c.logger.Info("Closing Redis connection")
	if err := c.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}

// RegisterPoolMetrics exposes connection pool statistics under chat_redis_pool_*.
// Values are read from the pool on every scrape.
func (c *Client) RegisterPoolMetrics(reg prometheus.Registerer) error {
	stats := c.client.PoolStats

	gauges := map[string]func() float64{
		"total_connections": func() float64 { return float64(stats().TotalConns) },
		"idle_connections":  func() float64 { return float64(stats().IdleConns) },
	}
	counters := map[string]func() float64{
		"hits_total":     func() float64 { return float64(stats().Hits) },
		"misses_total":   func() float64 { return float64(stats().Misses) },
		"timeouts_total": func() float64 { return float64(stats().Timeouts) },
	}

	for name, fn := range gauges {
		opts := prometheus.GaugeOpts{Namespace: "chat", Subsystem: "redis_pool", Name: name, Help: "Redis pool " + name + "."}
		if _, err := telemetry.Register(reg, prometheus.NewGaugeFunc(opts, fn)); err != nil {
			return fmt.Errorf("redis pool %s: %w", name, err)
		}
	}
	for name, fn := range counters {
		opts := prometheus.CounterOpts{Namespace: "chat", Subsystem: "redis_pool", Name: name, Help: "Redis pool " + name + "."}
		if _, err := telemetry.Register(reg, prometheus.NewCounterFunc(opts, fn)); err != nil {
			return fmt.Errorf("redis pool %s: %w", name, err)
		}
	}
	return nil
}

// NewFromClient wraps an existing client, used with miniredis in tests.
func NewFromClient(client *redis.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{client: client, logger: logger}
}
