package port

import (
	"context"
	"time"
)

// RateLimitStore holds the sliding-window attempt log used to throttle unauthenticated guard endpoints.
// Keys are opaque to the store; callers scope them by rule name and client address.
type RateLimitStore interface {
	TrimWindow(ctx context.Context, key string, window time.Duration, reference time.Time) error
	CountAttempts(ctx context.Context, key string, window time.Duration, reference time.Time) (int, error)
	RecordAttempt(ctx context.Context, key string, at time.Time) error
	OldestAttempt(ctx context.Context, key string, window time.Duration, reference time.Time) (time.Time, bool, error)
}
