package grpcx

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/cwrk-planet/plan-chat/pkg/logger"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	mdRequestID    = "x-request-id"
	defaultTimeout = 10 * time.Second
)

// UnaryServerInterceptor gives every call a request-scoped logger and a
// deadline, turns panics into codes.Internal and logs the outcome.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		start := time.Now()
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
			defer cancel()
		}

		reqID := requestID(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(mdRequestID, reqID))
		log := logger.FromContext(ctx).With(
			slog.String("req_id", reqID),
			slog.String("method", info.FullMethod),
		)
		ctx = logger.WithContext(ctx, log)

		defer func() {
			if r := recover(); r != nil {
				log.Error("grpc.panic", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
				err = status.Error(codes.Internal, "internal server error")
			}
			code := status.Code(err)
			log.LogAttrs(ctx, levelFor(code), "grpc.unary",
				slog.String("code", code.String()),
				slog.Duration("duration", time.Since(start)))
		}()

		return handler(ctx, req)
	}
}

func requestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if id := first(md.Get(mdRequestID)); id != "" && len(id) <= 128 {
			return id
		}
	}
	return uuid.NewString()
}

func levelFor(code codes.Code) slog.Level {
	switch code {
	case codes.OK, codes.Canceled:
		return slog.LevelInfo
	case codes.Internal, codes.Unavailable, codes.Unknown, codes.DataLoss:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
