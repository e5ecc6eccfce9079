package test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/openfga/recordrelay/pkg/storage"
)

// NewRecords builds n records of collection with keys key-000, key-001, ...
func NewRecords(t testing.TB, collection string, n int) []*storage.Record {
	t.Helper()

	records := make([]*storage.Record, 0, n)
	for i := range n {
		payload, err := structpb.NewStruct(map[string]any{
			"index": i,
			"label": fmt.Sprintf("record %d", i),
		})
		require.NoError(t, err)

		records = append(records, &storage.Record{
			Collection: collection,
			Key:        fmt.Sprintf("key-%03d", i),
			Payload:    payload,
		})
	}
	return records
}

func readAll(t *testing.T, ds storage.RecordReader, filter storage.ReadRecordsFilter, options storage.ReadRecordsOptions) []*storage.Record {
	t.Helper()

	iter, err := ds.ReadRecords(context.Background(), filter, options)
	require.NoError(t, err)

	records, err := storage.ToSlice(context.Background(), iter)
	require.NoError(t, err)
	return records
}

func RecordWritingAndReadingTest(t *testing.T, ds storage.RecordBackend) {
	ctx := context.Background()
	collection := "write-read"

	records := NewRecords(t, collection, 5)
	require.NoError(t, ds.Write(ctx, records[:3]))
	require.NoError(t, ds.Write(ctx, records[3:]))

	got := readAll(t, ds, storage.ReadRecordsFilter{Collection: collection}, storage.ReadRecordsOptions{})
	if diff := cmp.Diff(records, got, cmpOpts...); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	for i := 1; i < len(got); i++ {
		require.Less(t, got[i-1].Ulid, got[i].Ulid, "records must be ordered by ulid")
		require.False(t, got[i].InsertedAt.IsZero())
	}

	t.Run("duplicate_key_is_a_collision", func(t *testing.T) {
		err := ds.Write(ctx, []*storage.Record{{Collection: collection, Key: "key-000"}})
		require.ErrorIs(t, err, storage.ErrCollision)
	})

	t.Run("unknown_collection_is_empty", func(t *testing.T) {
		got := readAll(t, ds, storage.ReadRecordsFilter{Collection: "missing"}, storage.ReadRecordsOptions{})
		require.Empty(t, got)
	})
}

func ReadRecordsKeyPrefixTest(t *testing.T, ds storage.RecordBackend) {
	ctx := context.Background()
	collection := "prefix"

	records := []*storage.Record{
		{Collection: collection, Key: "eu/1"},
		{Collection: collection, Key: "us/1"},
		{Collection: collection, Key: "eu/2"},
	}
	require.NoError(t, ds.Write(ctx, records))

	got := readAll(t, ds, storage.ReadRecordsFilter{Collection: collection, KeyPrefix: "eu/"}, storage.ReadRecordsOptions{})
	require.Len(t, got, 2)
	require.Equal(t, "eu/1", got[0].Key)
	require.Equal(t, "eu/2", got[1].Key)
}

func ReadRecordsLimitTest(t *testing.T, ds storage.RecordBackend) {
	ctx := context.Background()
	collection := "limit"

	require.NoError(t, ds.Write(ctx, NewRecords(t, collection, 10)))

	got := readAll(t, ds, storage.ReadRecordsFilter{Collection: collection}, storage.ReadRecordsOptions{Limit: 4})
	require.Len(t, got, 4)
	require.Equal(t, "key-003", got[3].Key)
}

// ReadRecordsIsLazyTest checks that records written after ReadRecords but before the
// first Next are visible, i.e. the read happens on the first pull.
func ReadRecordsIsLazyTest(t *testing.T, ds storage.RecordBackend) {
	ctx := context.Background()
	collection := "lazy"

	iter, err := ds.ReadRecords(ctx, storage.ReadRecordsFilter{Collection: collection}, storage.ReadRecordsOptions{})
	require.NoError(t, err)
	defer iter.Stop()

	require.NoError(t, ds.Write(ctx, NewRecords(t, collection, 2)))

	got, err := storage.ToSlice(ctx, iter)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func ReadRecordsStopTest(t *testing.T, ds storage.RecordBackend) {
	ctx := context.Background()
	collection := "stop"

	require.NoError(t, ds.Write(ctx, NewRecords(t, collection, 3)))

	iter, err := ds.ReadRecords(ctx, storage.ReadRecordsFilter{Collection: collection}, storage.ReadRecordsOptions{})
	require.NoError(t, err)

	_, err = iter.Next(ctx)
	require.NoError(t, err)

	iter.Stop()
	iter.Stop()

	_, err = iter.Next(ctx)
	require.ErrorIs(t, err, storage.ErrIteratorDone)
}

func WriteValidationTest(t *testing.T, ds storage.RecordBackend) {
	ctx := context.Background()

	t.Run("missing_key", func(t *testing.T) {
		err := ds.Write(ctx, []*storage.Record{{Collection: "validation"}})
		require.ErrorIs(t, err, storage.ErrInvalidWriteInput)
	})

	t.Run("exceeds_batch_limit", func(t *testing.T) {
		records := NewRecords(t, "validation", ds.MaxRecordsPerWrite()+1)
		err := ds.Write(ctx, records)
		require.ErrorIs(t, err, storage.ErrExceededWriteBatchLimit)
	})

	t.Run("failed_batch_writes_nothing", func(t *testing.T) {
		records := NewRecords(t, "atomic", 2)
		require.NoError(t, ds.Write(ctx, records[:1]))

		err := ds.Write(ctx, []*storage.Record{records[1], records[0]})
		require.ErrorIs(t, err, storage.ErrCollision)

		got := readAll(t, ds, storage.ReadRecordsFilter{Collection: "atomic"}, storage.ReadRecordsOptions{})
		require.Len(t, got, 1)
	})
}
