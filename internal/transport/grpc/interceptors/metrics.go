package interceptors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/arklim/chat-moderation/internal/infra/telemetry"
)

// GRPCMetricsOptions controls construction of gRPC metrics collectors.
type GRPCMetricsOptions struct {
	Registerer prometheus.Registerer
	Buckets    []float64
}

// GRPCMetrics counts handled RPCs and streamed messages under chat_grpc_*.
type GRPCMetrics struct {
	handled  *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	messages *prometheus.CounterVec
	active   *prometheus.GaugeVec
}

var rpcLabels = []string{"grpc_service", "grpc_method", "grpc_code"}

// NewGRPCMetrics registers the collectors, reusing any that already exist on the registerer.
func NewGRPCMetrics(opts GRPCMetricsOptions) (*GRPCMetrics, error) {
	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = []float64{.001, .005, .01, .05, .1, .5, 1}
	}

	handled, err := telemetry.Register(opts.Registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "grpc",
		Name:      "requests_total",
		Help:      "Completed RPCs by service, method and status code.",
	}, rpcLabels))
	if err != nil {
		return nil, fmt.Errorf("grpc requests: %w", err)
	}

	latency, err := telemetry.Register(opts.Registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chat",
		Subsystem: "grpc",
		Name:      "request_duration_seconds",
		Help:      "RPC latency by service, method and status code.",
		Buckets:   buckets,
	}, rpcLabels))
	if err != nil {
		return nil, fmt.Errorf("grpc duration: %w", err)
	}

	messages, err := telemetry.Register(opts.Registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "grpc",
		Name:      "stream_messages_total",
		Help:      "Messages exchanged on server streams by direction.",
	}, []string{"grpc_service", "grpc_method", "direction"}))
	if err != nil {
		return nil, fmt.Errorf("grpc stream messages: %w", err)
	}

	active, err := telemetry.Register(opts.Registerer, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chat",
		Subsystem: "grpc",
		Name:      "in_flight_requests",
		Help:      "RPCs currently being handled, by service.",
	}, []string{"grpc_service"}))
	if err != nil {
		return nil, fmt.Errorf("grpc inflight: %w", err)
	}

	return &GRPCMetrics{handled: handled, latency: latency, messages: messages, active: active}, nil
}

// UnaryServerInterceptor returns a gRPC unary interceptor that records metrics.
func (m *GRPCMetrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if m == nil {
			return handler(ctx, req)
		}

		service, method := splitFullMethod(info.FullMethod)
		finish := m.track(service, method)
		resp, err := handler(ctx, req)
		finish(err)
		return resp, err
	}
}

// StreamServerInterceptor records one observation per stream once it completes
// and counts every message sent or received on it.
func (m *GRPCMetrics) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if m == nil {
			return handler(srv, ss)
		}

		service, method := splitFullMethod(info.FullMethod)
		finish := m.track(service, method)
		err := handler(srv, &countingStream{
			ServerStream: ss,
			sent:         m.messages.WithLabelValues(service, method, "sent"),
			received:     m.messages.WithLabelValues(service, method, "received"),
		})
		finish(err)
		return err
	}
}

func (m *GRPCMetrics) track(service, method string) func(error) {
	start := time.Now()
	gauge := m.active.WithLabelValues(service)
	gauge.Inc()

	return func(err error) {
		gauge.Dec()
		code := status.Code(err).String()
		m.handled.WithLabelValues(service, method, code).Inc()
		m.latency.WithLabelValues(service, method, code).Observe(time.Since(start).Seconds())
	}
}

type countingStream struct {
	grpc.ServerStream
	sent     prometheus.Counter
	received prometheus.Counter
}

func (s *countingStream) SendMsg(msg any) error {
	err := s.ServerStream.SendMsg(msg)
	if err == nil {
		s.sent.Inc()
	}
	return err
}

func (s *countingStream) RecvMsg(msg any) error {
	err := s.ServerStream.RecvMsg(msg)
	if err == nil {
		s.received.Inc()
	}
	return err
}

// splitFullMethod turns "/pkg.Service/Method" into its two halves, using
// "unknown" for anything missing.
func splitFullMethod(full string) (service, method string) {
	service, method, found := strings.Cut(strings.TrimPrefix(full, "/"), "/")
	if !found {
		method = ""
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}
