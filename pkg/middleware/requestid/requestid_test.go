package requestid

import (
	"context"
	"testing"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/testing/testpb"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

var pingReq = &testpb.PingRequest{Value: "ping"}

type pingService struct {
	testpb.TestServiceServer
	T *testing.T
}

func (s *pingService) Ping(ctx context.Context, req *testpb.PingRequest) (*testpb.PingResponse, error) {
	_, ok := FromContext(ctx)
	require.True(s.T, ok)

	return s.TestServiceServer.Ping(ctx, req)
}

func (s *pingService) PingList(req *testpb.PingListRequest, stream testpb.TestService_PingListServer) error {
	_, ok := FromContext(stream.Context())
	require.True(s.T, ok)

	return s.TestServiceServer.PingList(req, stream)
}

func TestRequestIDTestSuite(t *testing.T) {
	s := &RequestIDTestSuite{
		InterceptorTestSuite: &testpb.InterceptorTestSuite{
			TestService: &pingService{&testpb.TestPingService{}, t},
			ServerOpts: []grpc.ServerOption{
				grpc.UnaryInterceptor(NewUnaryInterceptor()),
				grpc.StreamInterceptor(NewStreamingInterceptor()),
			},
		},
	}

	suite.Run(t, s)
}

type RequestIDTestSuite struct {
	*testpb.InterceptorTestSuite
}

func (s *RequestIDTestSuite) TestPingReturnsHeader() {
	var header metadata.MD
	_, err := s.Client.Ping(s.SimpleCtx(), pingReq, grpc.Header(&header))
	s.Require().NoError(err)

	ids := header.Get(RequestIDHeader)
	s.Require().Len(ids, 1)
	_, err = ulid.Parse(ids[0])
	s.Require().NoError(err)
}

func (s *RequestIDTestSuite) TestPingKeepsCallerID() {
	ctx := metadata.AppendToOutgoingContext(s.SimpleCtx(), RequestIDHeader, "caller-id")

	var header metadata.MD
	_, err := s.Client.Ping(ctx, pingReq, grpc.Header(&header))
	s.Require().NoError(err)
	s.Require().Equal([]string{"caller-id"}, header.Get(RequestIDHeader))
}

func (s *RequestIDTestSuite) TestStreamingPingList() {
	stream, err := s.Client.PingList(s.SimpleCtx(), &testpb.PingListRequest{Value: "ping"})
	s.Require().NoError(err)

	header, err := stream.Header()
	s.Require().NoError(err)
	s.Require().Len(header.Get(RequestIDHeader), 1)
}

func TestInitIDUsesTraceID(t *testing.T) {
	traceID := trace.TraceID{0x01, 0x02}
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  trace.SpanID{0x01},
	}))

	require.Equal(t, traceID.String(), InitID(ctx))
}
