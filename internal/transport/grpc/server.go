package transportgrpc

import (
	"context"
	"net"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcinterceptors "github.com/arklim/chat-moderation/internal/transport/grpc/interceptors"
)

// ServiceName is the health service name reported alongside the overall ("") status.
const ServiceName = "chat.moderation"

const defaultProbeInterval = 10 * time.Second

// DependencyProbe reports whether a backing store is reachable.
type DependencyProbe func(ctx context.Context) error

// ServerDependencies encapsulates what the gRPC server layer needs.
type ServerDependencies struct {
	Logger         *zap.Logger
	Metrics        *grpcinterceptors.GRPCMetrics
	TracerProvider trace.TracerProvider
	// Probe drives the health status. A nil probe leaves the server SERVING.
	Probe         DependencyProbe
	ProbeInterval time.Duration
}

// Server hosts the standard health service and reflection.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	logger   *zap.Logger
	probe    DependencyProbe
	interval time.Duration
}

// NewServer wires the health service with metrics, logging and tracing on every call.
func NewServer(deps ServerDependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	interval := deps.ProbeInterval
	if interval <= 0 {
		interval = defaultProbeInterval
	}

	server := grpc.NewServer(
		grpcinterceptors.TracingServerOption(grpcinterceptors.TracingOptions{TracerProvider: deps.TracerProvider}),
		grpc.ChainUnaryInterceptor(
			grpcinterceptors.UnaryLogging(logger),
			deps.Metrics.UnaryServerInterceptor(),
		),
		grpc.ChainStreamInterceptor(deps.Metrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)

	// Register reflection service for tools like grpcurl.
	reflection.Register(server)

	s := &Server{
		grpc:     server,
		health:   healthServer,
		logger:   logger,
		probe:    deps.Probe,
		interval: interval,
	}
	s.setStatus(healthpb.HealthCheckResponse_SERVING)
	return s
}

// Serve accepts connections on lis until Stop or GracefulStop is called.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// RunProbe refreshes the health status from the dependency probe until ctx is done.
func (s *Server) RunProbe(ctx context.Context) {
	if s.probe == nil {
		return
	}

	s.CheckDependencies(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckDependencies(ctx)
		}
	}
}

// CheckDependencies runs the probe once and updates the reported status.
func (s *Server) CheckDependencies(ctx context.Context) {
	if s.probe == nil {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	if err := s.probe(probeCtx); err != nil {
		s.logger.Warn("dependency probe failed, reporting NOT_SERVING", zap.Error(err))
		s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	s.setStatus(healthpb.HealthCheckResponse_SERVING)
}

// GracefulStop marks the server as shutting down and drains in-flight calls.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func (s *Server) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
