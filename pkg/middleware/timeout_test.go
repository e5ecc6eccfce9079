package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/openfga/recordrelay/pkg/logger"
)

// mockServerGRPCStream only returns its context.
type mockServerGRPCStream struct {
	ctx context.Context
}

func (m mockServerGRPCStream) SetHeader(metadata.MD) error  { return nil }
func (m mockServerGRPCStream) SendHeader(metadata.MD) error { return nil }
func (m mockServerGRPCStream) SetTrailer(metadata.MD)       {}
func (m mockServerGRPCStream) Context() context.Context     { return m.ctx }
func (m mockServerGRPCStream) SendMsg(any) error            { return nil }
func (m mockServerGRPCStream) RecvMsg(any) error            { return nil }

func waitForDeadline(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Second):
		return nil
	}
}

func TestUnaryTimeoutInterceptor(t *testing.T) {
	l, logs := logger.NewObserverLogger("warn")
	interceptor := NewTimeoutInterceptor(5*time.Millisecond, l).NewUnaryTimeoutInterceptor()

	handler := func(ctx context.Context, req any) (any, error) {
		return nil, waitForDeadline(ctx)
	}

	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Write"}, handler)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.Equal(t, 1, logs.Len())
	require.Equal(t, "request timed out", logs.All()[0].Message)
}

func TestStreamTimeoutInterceptor(t *testing.T) {
	l, logs := logger.NewObserverLogger("warn")
	interceptor := NewTimeoutInterceptor(5*time.Millisecond, l).NewStreamTimeoutInterceptor()

	handler := func(srv any, stream grpc.ServerStream) error {
		return waitForDeadline(stream.Context())
	}

	err := interceptor(nil, mockServerGRPCStream{ctx: context.Background()}, &grpc.StreamServerInfo{FullMethod: "/svc/Read"}, handler)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, logs.Len())
}

func TestTimeoutInterceptorDisabled(t *testing.T) {
	interceptor := NewTimeoutInterceptor(0, logger.NewNoopLogger())

	_, err := interceptor.NewUnaryTimeoutInterceptor()(context.Background(), nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
		_, ok := ctx.Deadline()
		require.False(t, ok)
		return nil, nil
	})
	require.NoError(t, err)

	err = interceptor.NewStreamTimeoutInterceptor()(nil, mockServerGRPCStream{ctx: context.Background()}, &grpc.StreamServerInfo{}, func(srv any, stream grpc.ServerStream) error {
		_, ok := stream.Context().Deadline()
		require.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestFastRequestIsNotReported(t *testing.T) {
	l, logs := logger.NewObserverLogger("warn")
	interceptor := NewTimeoutInterceptor(time.Second, l).NewUnaryTimeoutInterceptor()

	resp, err := interceptor(context.Background(), "req", &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
		return req, nil
	})
	require.NoError(t, err)
	require.Equal(t, "req", resp)
	require.Equal(t, 0, logs.Len())
}
