package recovery

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/openfga/recordrelay/pkg/logger"
	"github.com/openfga/recordrelay/pkg/recordpb"
)

func TestHTTPPanic(t *testing.T) {
	panicHandlerFunc := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		panic("Unexpected error!")
	})

	l, logs := logger.NewObserverLogger("error")
	handler := HTTPPanicRecoveryHandler(panicHandlerFunc, l)

	req, err := http.NewRequest(http.MethodGet, "/metrics", nil)
	require.NoError(t, err)

	resp := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(resp, req)
	})

	require.Equal(t, http.StatusInternalServerError, resp.Code)
	require.JSONEq(t, `{"code":"Internal","message":"internal server error"}`, resp.Body.String())
	require.Equal(t, 1, logs.FilterMessage("HTTPPanicRecoveryHandler has recovered a panic").Len())
}

func newPanickingClient(t *testing.T, opts ...grpc.ServerOption) recordpb.RecordServiceClient {
	t.Helper()

	listener := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer(opts...)
	recordpb.RegisterRecordServiceServer(srv, &panickingServer{})

	go func() {
		_ = srv.Serve(listener)
	}()

	conn, err := grpc.NewClient("passthrough://bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return listener.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		srv.Stop()
		goleak.VerifyNone(t)
	})

	return recordpb.NewRecordServiceClient(conn)
}

func TestUnaryPanicInterceptor(t *testing.T) {
	l, logs := logger.NewObserverLogger("error")
	cli := newPanickingClient(t, grpc.ChainUnaryInterceptor(
		grpc_recovery.UnaryServerInterceptor(
			grpc_recovery.WithRecoveryHandlerContext(PanicRecoveryHandler(l)),
		),
	))

	_, err := cli.WriteRecords(context.Background(), &structpb.Struct{})
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.Internal, st.Code())
	require.Equal(t, InternalServerErrorMsg, st.Message())
	require.Equal(t, 1, logs.Len())
}

func TestStreamPanicInterceptor(t *testing.T) {
	l, _ := logger.NewObserverLogger("error")
	cli := newPanickingClient(t, grpc.ChainStreamInterceptor(
		grpc_recovery.StreamServerInterceptor(
			grpc_recovery.WithRecoveryHandlerContext(PanicRecoveryHandler(l)),
		),
	))

	stream, err := cli.ReadRecords(context.Background(), &structpb.Struct{})
	require.NoError(t, err)

	_, err = stream.Recv()
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.Internal, st.Code())
}

type panickingServer struct {
	recordpb.UnimplementedRecordServiceServer
}

func (panickingServer) WriteRecords(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	panic("Unexpected error!")
}

func (panickingServer) ReadRecords(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error {
	panic("Unexpected error!")
}
