package transportgrpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	grpcinterceptors "github.com/arklim/chat-moderation/internal/transport/grpc/interceptors"
)

func startServer(t *testing.T, deps ServerDependencies) (*Server, healthpb.HealthClient) {
	t.Helper()

	srv := NewServer(deps)
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.GracefulStop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return srv, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("health check %q: %v", service, err)
	}
	return resp.GetStatus()
}

func TestHealthReportsServingWithoutProbe(t *testing.T) {
	_, client := startServer(t, ServerDependencies{Logger: zaptest.NewLogger(t)})

	for _, service := range []string{"", ServiceName} {
		if got := check(t, client, service); got != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("service %q: expected SERVING, got %s", service, got)
		}
	}
}

func TestHealthTracksDependencyProbe(t *testing.T) {
	var probeErr error
	srv, client := startServer(t, ServerDependencies{
		Logger: zaptest.NewLogger(t),
		Probe:  func(context.Context) error { return probeErr },
	})

	probeErr = errors.New("postgres unreachable")
	srv.CheckDependencies(context.Background())
	if got := check(t, client, ServiceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %s", got)
	}

	probeErr = nil
	srv.CheckDependencies(context.Background())
	if got := check(t, client, ServiceName); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING after recovery, got %s", got)
	}
}

func TestServerRecordsMetricsAndSpans(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := grpcinterceptors.NewGRPCMetrics(grpcinterceptors.GRPCMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("NewGRPCMetrics: %v", err)
	}

	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, client := startServer(t, ServerDependencies{
		Logger:         zaptest.NewLogger(t),
		Metrics:        metrics,
		TracerProvider: tp,
	})

	check(t, client, "")

	if got, err := testutil.GatherAndCount(registry, "chat_grpc_requests_total"); err != nil || got != 1 {
		t.Fatalf("expected one request series, got %d (%v)", got, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(exporter.GetSpans()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	spans := exporter.GetSpans()
	if len(spans) == 0 {
		t.Fatal("expected a server span")
	}
	if spans[0].Name != "grpc.health.v1.Health/Check" {
		t.Fatalf("unexpected span name %q", spans[0].Name)
	}
}
