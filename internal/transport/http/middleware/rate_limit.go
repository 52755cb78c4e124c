package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/chat-moderation/internal/core/port"
	appLogger "github.com/arklim/chat-moderation/internal/infra/logger"
)

const rateLimitedCode = "rate_limited"

// IdentifierFunc extracts the identifier used to scope rate limits (e.g., client IP).
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule configures a sliding-window limit for a particular identifier.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
}

// Rate limit decisions reported to RateLimitRecorder.
const (
	DecisionAllowed     = "allowed"
	DecisionLimited     = "limited"
	DecisionStoreFailed = "store_failed"
)

// RateLimitRecorder observes one decision per evaluated rule.
type RateLimitRecorder interface {
	RecordDecision(rule, decision string)
}

// RateLimiter enforces sliding-window limits backed by a shared attempt log.
// Store failures fail open so an unavailable Redis never blocks sign-up checks.
type RateLimiter struct {
	store    port.RateLimitStore
	logger   *zap.Logger
	now      func() time.Time
	recorder RateLimitRecorder
}

type ruleResult struct {
	rule       RateLimitRule
	allowed    bool
	limit      int
	remaining  int
	reset      time.Time
	retryAfter time.Duration
	identifier string
	storageKey string
}

// RateLimitedResponse is returned with 429 responses.
type RateLimitedResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
	TraceID    string `json:"trace_id,omitempty"`
}

// NewRateLimiter builds a reusable rate limiter middleware helper.
func NewRateLimiter(store port.RateLimitStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RateLimiter{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// WithRecorder reports every decision to recorder.
func (rl *RateLimiter) WithRecorder(recorder RateLimitRecorder) *RateLimiter {
	rl.recorder = recorder
	return rl
}

// ClientIPIdentifier builds an IdentifierFunc using the request's client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		if ip == "" {
			return "", false
		}
		return ip, true
	}
}

// RateLimit returns a Gin middleware enforcing the provided rules. Every rule must admit the
// request; the most restrictive result is reported in the X-RateLimit-* headers.
func (rl *RateLimiter) RateLimit(rules ...RateLimitRule) gin.HandlerFunc {
	active := make([]RateLimitRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Identifier == nil || rule.Limit <= 0 || rule.Window <= 0 {
			continue
		}
		if rule.Name == "" {
			rule.Name = "default"
		}
		active = append(active, rule)
	}

	return func(c *gin.Context) {
		if len(active) == 0 || rl.store == nil {
			c.Next()
			return
		}

		now := rl.now()
		var reported *ruleResult

		for _, rule := range active {
			identifier, ok := rule.Identifier(c)
			if !ok || identifier == "" {
				continue
			}

			res, err := rl.evaluateRule(c.Request.Context(), rule, identifier, now)
			if err != nil {
				rl.record(rule.Name, DecisionStoreFailed)
				rl.logger.Warn("rate limit check failed",
					zap.String("rule", rule.Name),
					zap.String("identifier", appLogger.MaskIP(identifier)),
					zap.Error(err),
				)
				continue
			}

			if !res.allowed {
				rl.record(rule.Name, DecisionLimited)
				rl.applyHeaders(c, res)
				rl.respondRateLimited(c, res)
				return
			}

			rl.record(rule.Name, DecisionAllowed)
			if reported == nil || res.tighterThan(*reported) {
				snapshot := res
				reported = &snapshot
			}
		}

		if reported != nil {
			rl.applyHeaders(c, *reported)
		}

		c.Next()
	}
}

// evaluateRule trims the window, counts what is left and records the attempt when it is admitted.
// Rejected attempts are not recorded so a blocked client regains access once the window slides.
func (rl *RateLimiter) evaluateRule(ctx context.Context, rule RateLimitRule, identifier string, now time.Time) (ruleResult, error) {
	key := rule.Name + ":" + identifier

	if err := rl.store.TrimWindow(ctx, key, rule.Window, now); err != nil {
		return ruleResult{}, fmt.Errorf("trim window: %w", err)
	}

	count, err := rl.store.CountAttempts(ctx, key, rule.Window, now)
	if err != nil {
		return ruleResult{}, fmt.Errorf("count attempts: %w", err)
	}

	oldest, hasAttempts, err := rl.store.OldestAttempt(ctx, key, rule.Window, now)
	if err != nil {
		return ruleResult{}, fmt.Errorf("oldest attempt: %w", err)
	}

	reset := now.Add(rule.Window)
	if hasAttempts {
		reset = oldest.Add(rule.Window)
	}

	res := ruleResult{
		rule:       rule,
		limit:      rule.Limit,
		reset:      reset,
		retryAfter: max(reset.Sub(now), 0),
		identifier: identifier,
		storageKey: key,
	}
	if count >= rule.Limit {
		return res, nil
	}

	if err := rl.store.RecordAttempt(ctx, key, now); err != nil {
		return ruleResult{}, fmt.Errorf("record attempt: %w", err)
	}

	res.allowed = true
	res.remaining = max(rule.Limit-count-1, 0)
	return res, nil
}

// tighterThan reports whether r leaves the client less headroom than other.
func (r ruleResult) tighterThan(other ruleResult) bool {
	if r.remaining != other.remaining {
		return r.remaining < other.remaining
	}
	return r.reset.Before(other.reset)
}

func (rl *RateLimiter) record(rule, decision string) {
	if rl.recorder != nil {
		rl.recorder.RecordDecision(rule, decision)
	}
}

func (rl *RateLimiter) applyHeaders(c *gin.Context, res ruleResult) {
	headers := c.Writer.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(res.limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(res.remaining))
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(res.reset.Unix(), 10))

	if !res.allowed {
		headers.Set("Retry-After", strconv.Itoa(retrySeconds(res.retryAfter)))
	}
}

func (rl *RateLimiter) respondRateLimited(c *gin.Context, res ruleResult) {
	seconds := retrySeconds(res.retryAfter)

	rl.logger.Info("request rate limited",
		zap.String("rule", res.rule.Name),
		zap.String("identifier", appLogger.MaskIP(res.identifier)),
		zap.Int("retry_after", seconds),
	)

	c.AbortWithStatusJSON(http.StatusTooManyRequests, RateLimitedResponse{
		Error:      rateLimitedCode,
		Message:    fmt.Sprintf("Too many requests. Try again in %d seconds.", seconds),
		RetryAfter: seconds,
		TraceID:    GetTraceID(c),
	})
}

func retrySeconds(d time.Duration) int {
	return max(int(math.Ceil(d.Seconds())), 0)
}
