package records

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	healthv1pb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/openfga/recordrelay/cmd"
	"github.com/openfga/recordrelay/cmd/util"
	"github.com/openfga/recordrelay/pkg/recordpb"
	"github.com/openfga/recordrelay/pkg/server"
	"github.com/openfga/recordrelay/pkg/server/health"
	"github.com/openfga/recordrelay/pkg/storage"
	"github.com/openfga/recordrelay/pkg/storage/memory"
)

// startServer serves an in-memory backend on a local TCP port and returns its address.
func startServer(t *testing.T) (string, storage.RecordBackend) {
	t.Helper()

	ds := memory.New(memory.WithMaxRecordsPerWrite(3))
	srv := server.New(ds, server.WithRelayCapacity(2))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	grpcServer := grpc.NewServer()
	recordpb.RegisterRecordServiceServer(grpcServer, srv)
	healthv1pb.RegisterHealthServer(grpcServer, &health.Checker{TargetService: srv, TargetServiceName: recordpb.RecordService_ServiceName})

	go func() {
		_ = grpcServer.Serve(lis)
	}()
	t.Cleanup(func() {
		grpcServer.Stop()
		ds.Close()
	})

	return lis.Addr().String(), ds
}

func execute(t *testing.T, sub *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := cmd.NewRootCommand()
	root.AddCommand(sub)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

const input = `{"collection": "users", "key": "u1", "payload": {"name": "ada"}}
{"collection": "users", "key": "u2", "payload": {"name": "grace"}}

{"collection": "users", "key": "x1"}
{"collection": "users", "key": "u3", "payload": {"name": "barbara", "tags": ["a", "b"]}}
{"collection": "groups", "key": "g1"}
`

func TestLoadAndRead(t *testing.T) {
	util.PrepareTempConfigDir(t)
	addr, ds := startServer(t)

	_, err := execute(t, NewLoadCommand(), input, "load", "--server-addr", addr, "--batch-size", "3")
	require.NoError(t, err)

	stored, err := storage.ToSlice(context.Background(), mustRead(t, ds, "users"))
	require.NoError(t, err)
	require.Len(t, stored, 4)

	out, err := execute(t, NewReadCommand(), "", "read", "--server-addr", addr, "--collection", "users", "--key-prefix", "u")
	require.NoError(t, err)

	var keys, names []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		var msg structpb.Struct
		require.NoError(t, protojson.Unmarshal(scanner.Bytes(), &msg))

		record, err := recordpb.RecordFromStruct(&msg)
		require.NoError(t, err)
		require.NotEmpty(t, record.Ulid)
		require.False(t, record.InsertedAt.IsZero())

		keys = append(keys, record.Key)
		names = append(names, record.Payload.GetFields()["name"].GetStringValue())
	}
	require.Equal(t, []string{"u1", "u2", "u3"}, keys)
	require.Equal(t, []string{"ada", "grace", "barbara"}, names)

	out, err = execute(t, NewReadCommand(), "", "read", "--server-addr", addr, "--collection", "users", "--limit", "1")
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(out, "\n"))
}

func TestLoadFromFile(t *testing.T) {
	util.PrepareTempConfigDir(t)
	addr, ds := startServer(t)

	path := filepath.Join(t.TempDir(), "records.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(input), 0600))

	_, err := execute(t, NewLoadCommand(), "", "load", "--server-addr", addr, "--file", path, "--batch-size", "2")
	require.NoError(t, err)

	groups, err := storage.ToSlice(context.Background(), mustRead(t, ds, "groups"))
	require.NoError(t, err)
	require.Len(t, groups, 1)
}

func TestLoadErrors(t *testing.T) {
	util.PrepareTempConfigDir(t)
	addr, _ := startServer(t)

	t.Run("malformed_line", func(t *testing.T) {
		_, err := execute(t, NewLoadCommand(), `{"collection": "users"}`, "load", "--server-addr", addr)
		require.ErrorContains(t, err, "line 1")
		require.ErrorIs(t, err, recordpb.ErrMalformedMessage)
	})

	t.Run("batch_above_server_limit", func(t *testing.T) {
		_, err := execute(t, NewLoadCommand(), input, "load", "--server-addr", addr, "--batch-size", "10")
		require.ErrorIs(t, err, storage.ErrExceededWriteBatchLimit)
	})

	t.Run("collision", func(t *testing.T) {
		line := `{"collection": "dup", "key": "k"}` + "\n"
		_, err := execute(t, NewLoadCommand(), line, "load", "--server-addr", addr)
		require.NoError(t, err)
		_, err = execute(t, NewLoadCommand(), line, "load", "--server-addr", addr)
		require.ErrorIs(t, err, storage.ErrCollision)
	})

	t.Run("invalid_batch_size", func(t *testing.T) {
		_, err := execute(t, NewLoadCommand(), input, "load", "--server-addr", addr, "--batch-size", "0")
		require.ErrorContains(t, err, "'batch-size' must be greater than zero")
	})
}

func TestReadRequiresCollection(t *testing.T) {
	util.PrepareTempConfigDir(t)

	_, err := execute(t, NewReadCommand(), "", "read")
	require.ErrorContains(t, err, "'collection' is required")
}

func TestScanRecordsBatches(t *testing.T) {
	var sizes []int
	err := scanRecords(strings.NewReader(input), 2, func(batch storage.Writes) error {
		sizes = append(sizes, len(batch))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{2, 2, 1}, sizes)
}

func mustRead(t *testing.T, ds storage.RecordBackend, collection string) storage.RecordIterator {
	t.Helper()

	iter, err := ds.ReadRecords(context.Background(), storage.ReadRecordsFilter{Collection: collection}, storage.ReadRecordsOptions{})
	require.NoError(t, err)
	return iter
}
