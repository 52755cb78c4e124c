package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/arklim/chat-moderation/internal/core/port"
)

var errNonPositiveWindow = errors.New("window must be positive")

// SlidingWindowConfig defines configuration for the sliding window limiter.
type SlidingWindowConfig struct {
	KeyPrefix string
	// TTL bounds how long an idle key survives; it should be at least the longest window in use.
	TTL time.Duration
}

// RateLimitRepository keeps per-key attempt logs in Redis sorted sets scored by Unix milliseconds.
type RateLimitRepository struct {
	client redis.UniversalClient
	cfg    SlidingWindowConfig
}

// NewRateLimitRepository constructs a repository using the provided Redis client and config.
func NewRateLimitRepository(client redis.UniversalClient, cfg SlidingWindowConfig) *RateLimitRepository {
	return &RateLimitRepository{client: client, cfg: cfg}
}

// RecordAttempt appends an attempt at the given instant and refreshes the key TTL in one round trip.
// Members carry a random suffix so concurrent attempts in the same millisecond are all counted.
func (r *RateLimitRepository) RecordAttempt(ctx context.Context, key string, at time.Time) error {
	redisKey := r.key(key)
	member := redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: strconv.FormatInt(at.UnixMilli(), 10) + ":" + uuid.NewString(),
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, redisKey, member)
		if r.cfg.TTL > 0 {
			pipe.Expire(ctx, redisKey, r.cfg.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis record attempt: %w", err)
	}
	return nil
}

// CountAttempts returns how many attempts fall inside the window ending at reference.
func (r *RateLimitRepository) CountAttempts(ctx context.Context, key string, window time.Duration, reference time.Time) (int, error) {
	if window <= 0 {
		return 0, errNonPositiveWindow
	}

	min, max := windowBounds(window, reference)
	count, err := r.client.ZCount(ctx, r.key(key), min, max).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcount: %w", err)
	}
	return int(count), nil
}

// TrimWindow drops attempts older than the window relative to reference.
func (r *RateLimitRepository) TrimWindow(ctx context.Context, key string, window time.Duration, reference time.Time) error {
	if window <= 0 {
		return errNonPositiveWindow
	}

	threshold := "(" + strconv.FormatInt(reference.Add(-window).UnixMilli(), 10)
	if err := r.client.ZRemRangeByScore(ctx, r.key(key), "-inf", threshold).Err(); err != nil {
		return fmt.Errorf("redis zremrangebyscore: %w", err)
	}
	return nil
}

// OldestAttempt returns the earliest attempt still inside the window, used to compute Retry-After.
func (r *RateLimitRepository) OldestAttempt(ctx context.Context, key string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	if window <= 0 {
		return time.Time{}, false, errNonPositiveWindow
	}

	min, max := windowBounds(window, reference)
	values, err := r.client.ZRangeByScoreWithScores(ctx, r.key(key), &redis.ZRangeBy{
		Min:   min,
		Max:   max,
		Count: 1,
	}).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis zrangebyscore: %w", err)
	}
	if len(values) == 0 {
		return time.Time{}, false, nil
	}

	return time.UnixMilli(int64(values[0].Score)), true, nil
}

func windowBounds(window time.Duration, reference time.Time) (string, string) {
	return strconv.FormatInt(reference.Add(-window).UnixMilli(), 10), strconv.FormatInt(reference.UnixMilli(), 10)
}

func (r *RateLimitRepository) key(key string) string {
	if r.cfg.KeyPrefix == "" {
		return key
	}
	return r.cfg.KeyPrefix + ":" + key
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
