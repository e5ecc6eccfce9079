// Package middleware holds the server interceptors that need no package of their own.
package middleware

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"

	"github.com/openfga/recordrelay/pkg/logger"
)

// TimeoutInterceptor bounds every request by a deadline.
// For a server stream the deadline covers the whole stream, not a single message.
type TimeoutInterceptor struct {
	timeout time.Duration
	logger  logger.Logger
}

// NewTimeoutInterceptor returns a TimeoutInterceptor. A zero timeout disables it.
func NewTimeoutInterceptor(timeout time.Duration, logger logger.Logger) *TimeoutInterceptor {
	return &TimeoutInterceptor{
		timeout: timeout,
		logger:  logger,
	}
}

func (h *TimeoutInterceptor) NewUnaryTimeoutInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if h.timeout <= 0 {
			return handler(ctx, req)
		}

		ctx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()

		resp, err := handler(ctx, req)
		h.report(ctx, info.FullMethod)
		return resp, err
	}
}

func (h *TimeoutInterceptor) NewStreamTimeoutInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, stream grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if h.timeout <= 0 {
			return handler(srv, stream)
		}

		ctx, cancel := context.WithTimeout(stream.Context(), h.timeout)
		defer cancel()

		err := handler(srv, &recvWrapper{
			ctx:          ctx,
			ServerStream: stream,
		})
		h.report(ctx, info.FullMethod)
		return err
	}
}

func (h *TimeoutInterceptor) report(ctx context.Context, method string) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		h.logger.WarnWithContext(ctx, "request timed out",
			logger.String("grpc_method", method),
			logger.Duration("timeout", h.timeout),
		)
	}
}

type recvWrapper struct {
	ctx context.Context
	grpc.ServerStream
}

// Context returns the context associated with the recvWrapper.
func (r *recvWrapper) Context() context.Context {
	return r.ctx
}
