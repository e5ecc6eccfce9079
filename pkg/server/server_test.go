package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/mock/gomock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/openfga/recordrelay/internal/mocks"
	"github.com/openfga/recordrelay/pkg/logger"
	"github.com/openfga/recordrelay/pkg/middleware"
	"github.com/openfga/recordrelay/pkg/recordpb"
	"github.com/openfga/recordrelay/pkg/relay"
	"github.com/openfga/recordrelay/pkg/storage"
	"github.com/openfga/recordrelay/pkg/storage/memory"
)

const testBufSize = 1024 * 1024

func newTestClient(t *testing.T, srv *Server, opts ...grpc.ServerOption) recordpb.RecordServiceClient {
	t.Helper()

	lis := bufconn.Listen(testBufSize)
	grpcServer := grpc.NewServer(opts...)
	recordpb.RegisterRecordServiceServer(grpcServer, srv)

	go func() {
		_ = grpcServer.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough://bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		grpcServer.Stop()
	})

	return recordpb.NewRecordServiceClient(conn)
}

func seed(t *testing.T, ds storage.RecordBackend, collection string, n int) {
	t.Helper()

	for i := range n {
		payload, err := structpb.NewStruct(map[string]any{"n": float64(i)})
		require.NoError(t, err)
		err = ds.Write(context.Background(), storage.Writes{{Collection: collection, Key: fmt.Sprintf("key-%03d", i), Payload: payload}})
		require.NoError(t, err)
	}
}

// drain reads the stream to its end and returns the records and the terminal error (nil on io.EOF).
func drain(t *testing.T, stream grpc.ServerStreamingClient[structpb.Struct]) ([]*storage.Record, error) {
	t.Helper()

	var records []*storage.Record
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		r, err := recordpb.RecordFromStruct(msg)
		require.NoError(t, err)
		records = append(records, r)
	}
}

func readRequest(collection string) *structpb.Struct {
	return recordpb.NewReadRecordsRequest(storage.ReadRecordsFilter{Collection: collection}, storage.ReadRecordsOptions{})
}

func TestReadRecords(t *testing.T) {
	ds := memory.New()
	seed(t, ds, "orders", 40)
	seed(t, ds, "invoices", 3)

	client := newTestClient(t, New(ds, WithRelayCapacity(4)))

	t.Run("streams_every_record_in_order", func(t *testing.T) {
		stream, err := client.ReadRecords(context.Background(), readRequest("orders"))
		require.NoError(t, err)

		records, err := drain(t, stream)
		require.NoError(t, err)
		require.Len(t, records, 40)
		for i, r := range records {
			require.Equal(t, fmt.Sprintf("key-%03d", i), r.Key)
			require.InDelta(t, float64(i), r.Payload.GetFields()["n"].GetNumberValue(), 0)
			require.NotEmpty(t, r.Ulid)
			require.False(t, r.InsertedAt.IsZero())
		}
	})

	t.Run("prefix_and_limit", func(t *testing.T) {
		req := recordpb.NewReadRecordsRequest(
			storage.ReadRecordsFilter{Collection: "orders", KeyPrefix: "key-01"},
			storage.ReadRecordsOptions{Limit: 3},
		)
		stream, err := client.ReadRecords(context.Background(), req)
		require.NoError(t, err)

		records, err := drain(t, stream)
		require.NoError(t, err)
		require.Len(t, records, 3)
		require.Equal(t, "key-010", records[0].Key)
	})

	t.Run("empty_collection", func(t *testing.T) {
		stream, err := client.ReadRecords(context.Background(), readRequest("missing"))
		require.NoError(t, err)

		records, err := drain(t, stream)
		require.NoError(t, err)
		require.Empty(t, records)
	})

	t.Run("malformed_request", func(t *testing.T) {
		stream, err := client.ReadRecords(context.Background(), &structpb.Struct{})
		require.NoError(t, err)

		_, err = drain(t, stream)
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	})
}

func TestReadRecordsSourceFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{name: "unknown_error", err: errors.New("no such table: record"), code: codes.Internal},
		{name: "not_found", err: storage.ErrNotFound, code: codes.NotFound},
		{name: "cancelled", err: storage.ErrCancelled, code: codes.Canceled},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			backend := mocks.NewMockRecordBackend(ctrl)
			backend.EXPECT().
				ReadRecords(gomock.Any(), storage.ReadRecordsFilter{Collection: "orders"}, gomock.Any()).
				Return(storage.NewErrorIterator[*storage.Record](test.err), nil)

			client := newTestClient(t, New(backend))

			stream, err := client.ReadRecords(context.Background(), readRequest("orders"))
			require.NoError(t, err)

			records, err := drain(t, stream)
			require.Empty(t, records)
			require.Equal(t, test.code, status.Code(err))
		})
	}

	t.Run("failure_after_some_records", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		cause := errors.New("connection reset")

		iter := mocks.NewMockIterator[*storage.Record](ctrl)
		gomock.InOrder(
			iter.EXPECT().Next(gomock.Any()).Return(&storage.Record{Collection: "orders", Key: "1"}, nil),
			iter.EXPECT().Next(gomock.Any()).Return(&storage.Record{Collection: "orders", Key: "2"}, nil),
			iter.EXPECT().Next(gomock.Any()).Return(nil, cause),
		)
		var stopped atomic.Bool
		iter.EXPECT().Stop().Do(func() { stopped.Store(true) }).MinTimes(1)

		backend := mocks.NewMockRecordBackend(ctrl)
		backend.EXPECT().ReadRecords(gomock.Any(), gomock.Any(), gomock.Any()).Return(iter, nil)

		client := newTestClient(t, New(backend, WithRelayCapacity(1)))

		stream, err := client.ReadRecords(context.Background(), readRequest("orders"))
		require.NoError(t, err)

		records, err := drain(t, stream)
		require.Len(t, records, 2)
		require.Equal(t, codes.Internal, status.Code(err))
		require.ErrorContains(t, err, "connection reset")
		require.Eventually(t, stopped.Load, time.Second, time.Millisecond)
	})

	t.Run("read_records_error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mocks.NewMockRecordBackend(ctrl)
		backend.EXPECT().ReadRecords(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, storage.ErrNotFound)

		client := newTestClient(t, New(backend))

		stream, err := client.ReadRecords(context.Background(), readRequest("orders"))
		require.NoError(t, err)

		_, err = drain(t, stream)
		require.Equal(t, codes.NotFound, status.Code(err))
	})
}

type countingIterator struct {
	storage.RecordIterator
	pulled  atomic.Int32
	stopped atomic.Bool
}

func (c *countingIterator) Next(ctx context.Context) (*storage.Record, error) {
	c.pulled.Add(1)
	return c.RecordIterator.Next(ctx)
}

func (c *countingIterator) Stop() {
	c.stopped.Store(true)
	c.RecordIterator.Stop()
}

func TestStreamRecordsSendFailureStopsTheSource(t *testing.T) {
	records := make([]*storage.Record, 5)
	for i := range records {
		records[i] = &storage.Record{Collection: "orders", Key: fmt.Sprintf("%d", i+1)}
	}
	iter := &countingIterator{RecordIterator: storage.NewStaticRecordIterator(records)}

	ctrl := gomock.NewController(t)
	backend := mocks.NewMockRecordBackend(ctrl)
	backend.EXPECT().ReadRecords(gomock.Any(), gomock.Any(), gomock.Any()).Return(iter, nil)

	srv := New(backend, WithRelayCapacity(1))

	broken := errors.New("transport is closing")
	var sent []string
	err := srv.StreamRecords(context.Background(), storage.ReadRecordsFilter{Collection: "orders"}, storage.ReadRecordsOptions{}, func(msg *structpb.Struct) error {
		if len(sent) == 1 {
			return broken
		}
		sent = append(sent, msg.GetFields()["key"].GetStringValue())
		return nil
	})
	require.ErrorIs(t, err, broken)
	require.Equal(t, []string{"1"}, sent)

	require.Eventually(t, iter.stopped.Load, time.Second, time.Millisecond)
	// two records taken by the consumer, one buffered, one blocked in Send
	require.LessOrEqual(t, iter.pulled.Load(), int32(4))
}

func TestReadRecordsClientCancellation(t *testing.T) {
	ds := memory.New()
	seed(t, ds, "orders", 50)

	client := newTestClient(t, New(ds, WithRelayCapacity(2)))

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := client.ReadRecords(ctx, readRequest("orders"))
	require.NoError(t, err)

	for range 2 {
		_, err := stream.Recv()
		require.NoError(t, err)
	}
	cancel()

	_, err = drain(t, stream)
	require.Equal(t, codes.Canceled, status.Code(err))
}

func TestReadRecordsTimeout(t *testing.T) {
	ds := memory.New()
	seed(t, ds, "orders", 10)

	timeout := middleware.NewTimeoutInterceptor(20*time.Millisecond, logger.NewNoopLogger())
	client := newTestClient(t,
		New(mocks.NewMockSlowRecordBackend(ds, 50*time.Millisecond)),
		grpc.ChainStreamInterceptor(timeout.NewStreamTimeoutInterceptor()),
	)

	stream, err := client.ReadRecords(context.Background(), readRequest("orders"))
	require.NoError(t, err)

	records, err := drain(t, stream)
	require.Empty(t, records)
	require.Equal(t, codes.DeadlineExceeded, status.Code(err))
}

func TestWriteRecords(t *testing.T) {
	client := newTestClient(t, New(memory.New(memory.WithMaxRecordsPerWrite(2))))

	payload, err := structpb.NewStruct(map[string]any{"total": 12.5})
	require.NoError(t, err)

	resp, err := client.WriteRecords(context.Background(), recordpb.NewWriteRecordsRequest(storage.Writes{
		{Collection: "orders", Key: "1", Payload: payload},
		{Collection: "orders", Key: "2"},
	}))
	require.NoError(t, err)
	written, err := recordpb.ParseWriteRecordsResponse(resp)
	require.NoError(t, err)
	require.Equal(t, 2, written)

	stream, err := client.ReadRecords(context.Background(), readRequest("orders"))
	require.NoError(t, err)
	records, err := drain(t, stream)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.InDelta(t, 12.5, records[0].Payload.GetFields()["total"].GetNumberValue(), 0)

	tests := []struct {
		name string
		req  *structpb.Struct
		code codes.Code
	}{
		{
			name: "collision",
			req:  recordpb.NewWriteRecordsRequest(storage.Writes{{Collection: "orders", Key: "1"}}),
			code: codes.AlreadyExists,
		},
		{
			name: "batch_limit",
			req: recordpb.NewWriteRecordsRequest(storage.Writes{
				{Collection: "orders", Key: "3"}, {Collection: "orders", Key: "4"}, {Collection: "orders", Key: "5"},
			}),
			code: codes.InvalidArgument,
		},
		{
			name: "malformed",
			req:  &structpb.Struct{},
			code: codes.InvalidArgument,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := client.WriteRecords(context.Background(), test.req)
			require.Equal(t, test.code, status.Code(err))
		})
	}
}

func TestMisuseIsReportedAsInternal(t *testing.T) {
	log, logs := logger.NewObserverLogger("error")
	srv := New(memory.New(), WithLogger(log))

	span := trace.SpanFromContext(context.Background())
	err := srv.finish(context.Background(), span, fmt.Errorf("%w: stream already finished", relay.ErrMisuse))
	require.Equal(t, codes.Internal, status.Code(err))
	require.Equal(t, 1, logs.FilterMessage("relay misuse while streaming records").Len())
}

func TestVerify(t *testing.T) {
	require.NoError(t, New(memory.New()).Verify())
	require.ErrorIs(t, New(memory.New(), WithRelayCapacity(0)).Verify(), relay.ErrInvalidCapacity)
}

func TestIsReady(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockRecordBackend(ctrl)

	gomock.InOrder(
		backend.EXPECT().IsReady(gomock.Any()).Return(storage.ReadinessStatus{IsReady: true}, nil),
		backend.EXPECT().IsReady(gomock.Any()).Return(storage.ReadinessStatus{Message: "migrating"}, nil),
		backend.EXPECT().IsReady(gomock.Any()).Return(storage.ReadinessStatus{}, errors.New("down")),
	)

	srv := New(backend)

	ready, err := srv.IsReady(context.Background())
	require.NoError(t, err)
	require.True(t, ready)

	ready, err = srv.IsReady(context.Background())
	require.NoError(t, err)
	require.False(t, ready)

	_, err = srv.IsReady(context.Background())
	require.Error(t, err)
}
