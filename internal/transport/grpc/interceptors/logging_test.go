package interceptors

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryLoggingLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	interceptor := UnaryLogging(zap.New(core))

	calls := []struct {
		method string
		err    error
		level  zapcore.Level
	}{
		{"/" + healthv1Service + "/Check", nil, zapcore.DebugLevel},
		{"/chat.moderation.v1.Admin/Ping", nil, zapcore.InfoLevel},
		{"/chat.moderation.v1.Admin/Ping", status.Error(codes.InvalidArgument, "bad"), zapcore.WarnLevel},
		{"/chat.moderation.v1.Admin/Ping", status.Error(codes.Internal, "boom"), zapcore.ErrorLevel},
	}

	for _, call := range calls {
		handler := func(ctx context.Context, req any) (any, error) { return nil, call.err }
		_, _ = interceptor(context.Background(), struct{}{}, &grpc.UnaryServerInfo{FullMethod: call.method}, handler)
	}

	entries := logs.All()
	if len(entries) != len(calls) {
		t.Fatalf("expected %d entries, got %d", len(calls), len(entries))
	}
	for i, entry := range entries {
		if entry.Level != calls[i].level {
			t.Fatalf("call %d: expected level %s, got %s", i, calls[i].level, entry.Level)
		}
	}
}

func TestUnaryLoggingRecoversPanics(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	interceptor := UnaryLogging(zap.New(core))

	handler := func(ctx context.Context, req any) (any, error) { panic("nil map") }
	_, err := interceptor(context.Background(), struct{}{}, &grpc.UnaryServerInfo{FullMethod: "/svc/Method"}, handler)
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected internal error, got %v", err)
	}
	if logs.FilterMessage("grpc handler panicked").Len() != 1 {
		t.Fatal("expected panic to be logged")
	}
}

type mockServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (m *mockServerStream) Context() context.Context {
	return m.ctx
}

func (m *mockServerStream) SendMsg(any) error { return nil }

func (m *mockServerStream) RecvMsg(any) error { return nil }
