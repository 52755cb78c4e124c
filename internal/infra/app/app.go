package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/arklim/chat-moderation/internal/core/port"
	"github.com/arklim/chat-moderation/internal/infra/config"
	"github.com/arklim/chat-moderation/internal/infra/database"
	kafkainfra "github.com/arklim/chat-moderation/internal/infra/kafka"
	"github.com/arklim/chat-moderation/internal/infra/logger"
	redisinfra "github.com/arklim/chat-moderation/internal/infra/redis"
	"github.com/arklim/chat-moderation/internal/infra/security"
	"github.com/arklim/chat-moderation/internal/infra/telemetry"
	"github.com/arklim/chat-moderation/internal/infra/validation"
	postgresrepo "github.com/arklim/chat-moderation/internal/repository/postgres"
	redisrepo "github.com/arklim/chat-moderation/internal/repository/redis"
	transportgrpc "github.com/arklim/chat-moderation/internal/transport/grpc"
	grpcinterceptors "github.com/arklim/chat-moderation/internal/transport/grpc/interceptors"
	"github.com/arklim/chat-moderation/internal/transport/http/middleware"
	"github.com/arklim/chat-moderation/internal/transport/http/routes"
	"github.com/arklim/chat-moderation/internal/usecase"
)

const tracerName = "github.com/arklim/chat-moderation"

type Application struct {
	cfg        *config.AppConfig
	engine     *gin.Engine
	logger     *zap.Logger
	pool       *pgxpool.Pool
	redis      *redisinfra.Client
	producer   *kafkainfra.Producer
	tracing    *telemetry.TracerProvider
	grpcServer *transportgrpc.Server
	grpcAddr   string
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	tracing, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, cfg.App.Env, log)
	switch {
	case errors.Is(err, telemetry.ErrTracingDisabled):
		log.Info("otlp endpoint not configured, tracing disabled")
	case err != nil:
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	a := &Application{
		cfg:      cfg,
		logger:   log,
		tracing:  tracing,
		grpcAddr: net.JoinHostPort(cfg.GRPC.Host, strconv.Itoa(cfg.GRPC.Port)),
	}

	a.pool, err = database.NewPostgresPool(ctx, cfg.Postgres, cfg.App.Name, log)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	if err := a.build(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *Application) build(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	if cfg.Postgres.AutoMigrate {
		if err := postgresrepo.EnsureSchema(ctx, a.pool); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		log.Info("database schema ensured")
	}
	repos := postgresrepo.NewRepositories(a.pool)

	keyProvider, err := security.NewKeyProvider(cfg.JWT.JWKSURL, cfg.JWT.KeyDirectory, cfg.JWT.JWKSRefreshInterval, log)
	if err != nil {
		return fmt.Errorf("init key provider: %w", err)
	}
	verifier := security.NewJWTVerifier(keyProvider, security.VerifierOptions{
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		Leeway:   cfg.JWT.Leeway,
	})

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	a.redis = redisClient

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.KeyPrefix,
		TTL:       rateLimitWindow * 2,
	})
	publisher, remover := a.eventSinks()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	moderationMetrics, err := telemetry.NewModerationMetrics(registry)
	if err != nil {
		return fmt.Errorf("init moderation metrics: %w", err)
	}
	guardMetrics, err := telemetry.NewGuardMetrics(registry)
	if err != nil {
		return fmt.Errorf("init guard metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}
	grpcMetrics, err := grpcinterceptors.NewGRPCMetrics(grpcinterceptors.GRPCMetricsOptions{Registerer: registry})
	if err != nil {
		return fmt.Errorf("init grpc metrics: %w", err)
	}
	rateLimitMetrics, err := telemetry.NewRateLimitMetrics(registry)
	if err != nil {
		return fmt.Errorf("init rate limit metrics: %w", err)
	}
	if err := redisClient.RegisterPoolMetrics(registry); err != nil {
		return fmt.Errorf("init redis pool metrics: %w", err)
	}
	if a.producer != nil {
		failures := prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "events",
			Name:      "delivery_failures_total",
			Help:      "Moderation events rejected by Kafka after retries.",
		}, func() float64 { return float64(a.producer.Failures()) })
		if _, err := telemetry.Register(registry, failures); err != nil {
			return fmt.Errorf("init event delivery metrics: %w", err)
		}
	}
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log).WithRecorder(rateLimitMetrics)

	validator := validation.New()
	identity := usecase.NewIdentityVerifier(verifier).WithLogger(log)
	gate := usecase.NewPrivilegeGate(repos.Subjects).WithLogger(log)
	audit := usecase.NewAuditSink(repos.Audit, publisher).WithLogger(log)

	moderation := usecase.NewModerationService(validator, identity, gate, repos.Subjects, repos.Bans, repos.Licenses, audit).
		WithLogger(log).
		WithMetrics(moderationMetrics).
		WithTracer(otel.Tracer(tracerName)).
		WithAccountRemover(remover)

	guard := usecase.NewAbuseGuard(validator, repos.Bans, repos.AddressUsage, usecase.AbuseGuardOptions{
		MaxAccountsPerAddress: cfg.Guard.MaxAccountsPerIP,
	}).
		WithLogger(log).
		WithMetrics(guardMetrics)

	a.grpcServer = transportgrpc.NewServer(transportgrpc.ServerDependencies{
		Logger:         log,
		Metrics:        grpcMetrics,
		TracerProvider: otel.GetTracerProvider(),
		Probe:          a.pool.Ping,
	})

	a.engine = routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Metrics:     httpMetrics,
		Gatherer:    registry,
		Moderation:  moderation,
		Guard:       guard,
		Database:    a.pool,
		Cache:       redisClient,
	})

	return nil
}

// eventSinks returns the Kafka publisher when brokers are configured and a logging stub otherwise.
func (a *Application) eventSinks() (port.EventPublisher, port.IdentityAccountRemover) {
	cfg, log := a.cfg, a.logger

	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka brokers not configured, using stub publisher")
		stub := kafkainfra.NewStubPublisher(log)
		return stub, stub
	}

	producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		stub := kafkainfra.NewStubPublisher(log)
		return stub, stub
	}
	a.producer = producer

	publisher := kafkainfra.NewEventPublisher(producer, cfg.App, log)
	log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	return publisher, publisher
}

func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	probeCtx, stopProbe := context.WithCancel(ctx)
	defer stopProbe()
	go a.grpcServer.RunProbe(probeCtx)

	grpcErrCh := make(chan error, 1)
	lis, err := net.Listen("tcp", a.grpcAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	a.logger.Info("starting gRPC server", zap.String("address", a.grpcAddr))
	go func() {
		if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			grpcErrCh <- fmt.Errorf("run grpc server: %w", err)
		}
	}()
	defer a.grpcServer.GracefulStop()

	srv := &http.Server{
		Addr:              net.JoinHostPort(a.cfg.App.Host, strconv.Itoa(a.cfg.App.Port)),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting moderation API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErrCh:
		return err
	case err := <-grpcErrCh:
		return err
	}

	timeout := a.cfg.App.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

// close releases resources in reverse order of acquisition.
func (a *Application) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracing != nil {
		if err := a.tracing.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown tracer provider", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
