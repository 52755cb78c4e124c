package interceptors

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const healthv1Service = "grpc.health.v1.Health"

// UnaryLogging logs every unary call. Health probes are logged at debug level.
func UnaryLogging(logger *zap.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		start := time.Now()
		service, _ := splitFullMethod(info.FullMethod)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("grpc handler panicked",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
				)
				err = status.Error(codes.Internal, "internal error")
			}

			code := status.Code(err)
			level := zapcore.InfoLevel
			switch {
			case code == codes.Internal || code == codes.Unknown:
				level = zapcore.ErrorLevel
			case code != codes.OK:
				level = zapcore.WarnLevel
			case service == healthv1Service:
				level = zapcore.DebugLevel
			}

			logger.Log(level, "grpc request",
				zap.String("method", info.FullMethod),
				zap.String("code", code.String()),
				zap.Duration("latency", time.Since(start)),
			)
		}()

		return handler(ctx, req)
	}
}
