package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/chat-moderation/internal/infra/config"
	"github.com/arklim/chat-moderation/internal/transport/http/handlers"
	"github.com/arklim/chat-moderation/internal/transport/http/middleware"
)

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Gatherer    prometheus.Gatherer
	Moderation  handlers.ModerationActions
	Guard       handlers.GuardChecks
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// trustProxies limits X-Forwarded-For handling to the configured proxies. With
// none configured ClientIP is the socket peer, so rate-limit buckets cannot be
// chosen by the caller.
func trustProxies(r *gin.Engine, deps Dependencies) {
	var proxies []string
	if deps.Config != nil && len(deps.Config.App.TrustedProxies) > 0 {
		proxies = deps.Config.App.TrustedProxies
	}
	if err := r.SetTrustedProxies(proxies); err != nil {
		deps.Logger.Error("invalid trusted proxies, trusting none", zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config != nil && deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	r := gin.New()
	trustProxies(r, deps)
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.Config != nil && len(deps.Config.App.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))
	}
	r.Use(deps.Metrics.Handler())

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api/v1")
	{
		adminGroup := api.Group("/admin")
		if limiter := buildAdminMiddlewares(deps); len(limiter) > 0 {
			adminGroup.Use(limiter...)
		}
		handlers.NewAdminHandler(deps.Moderation).RegisterRoutes(adminGroup)

		guardGroup := api.Group("/guard")
		handlers.NewGuardHandler(deps.Guard).RegisterRoutes(guardGroup, buildGuardMiddlewares(deps)...)
	}

	return r
}

func buildAdminMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.Config == nil {
		return nil
	}
	return buildRateLimit(deps, "admin_ip", deps.Config.RateLimit.AdminMaxAttempts)
}

func buildGuardMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.Config == nil {
		return nil
	}
	return buildRateLimit(deps, "guard_ip", deps.Config.RateLimit.GuardMaxAttempts)
}

func buildRateLimit(deps Dependencies, name string, limit int) []gin.HandlerFunc {
	if deps.RateLimiter == nil || limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
