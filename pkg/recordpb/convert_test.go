package recordpb

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/testing/protocmp"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/openfga/recordrelay/pkg/storage"
)

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestReadRecordsRequest(t *testing.T) {
	t.Run("round_trip", func(t *testing.T) {
		req := NewReadRecordsRequest(
			storage.ReadRecordsFilter{Collection: "orders", KeyPrefix: "2024-"},
			storage.ReadRecordsOptions{Limit: 10},
		)

		filter, options, err := ParseReadRecordsRequest(req)
		require.NoError(t, err)
		require.Equal(t, storage.ReadRecordsFilter{Collection: "orders", KeyPrefix: "2024-"}, filter)
		require.Equal(t, 10, options.Limit)
	})

	t.Run("optional_fields_are_omitted", func(t *testing.T) {
		req := NewReadRecordsRequest(storage.ReadRecordsFilter{Collection: "orders"}, storage.ReadRecordsOptions{})
		require.Len(t, req.GetFields(), 1)
	})

	var testCases = map[string]struct {
		req     map[string]any
		wantErr string
	}{
		`missing_collection`: {
			req:     map[string]any{"key_prefix": "a"},
			wantErr: "field 'collection' is required",
		},
		`empty_collection`: {
			req:     map[string]any{"collection": ""},
			wantErr: "field 'collection' must not be empty",
		},
		`collection_not_a_string`: {
			req:     map[string]any{"collection": 4},
			wantErr: "field 'collection' must be a string",
		},
		`key_prefix_not_a_string`: {
			req:     map[string]any{"collection": "orders", "key_prefix": true},
			wantErr: "field 'key_prefix' must be a string",
		},
		`negative_limit`: {
			req:     map[string]any{"collection": "orders", "limit": -1},
			wantErr: "field 'limit' must be a non-negative integer",
		},
		`fractional_limit`: {
			req:     map[string]any{"collection": "orders", "limit": 1.5},
			wantErr: "field 'limit' must be a non-negative integer",
		},
		`limit_not_a_number`: {
			req:     map[string]any{"collection": "orders", "limit": "10"},
			wantErr: "field 'limit' must be a number",
		},
	}

	for name, test := range testCases {
		t.Run(name, func(t *testing.T) {
			_, _, err := ParseReadRecordsRequest(mustStruct(t, test.req))
			require.ErrorIs(t, err, ErrMalformedMessage)
			require.ErrorContains(t, err, test.wantErr)
		})
	}
}

func TestRecordStruct(t *testing.T) {
	insertedAt := time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.UTC)
	record := &storage.Record{
		Collection: "orders",
		Key:        "2024-0001",
		Payload:    mustStruct(t, map[string]any{"total": 42.5, "items": []any{"a", "b"}}),
		Ulid:       "01HQ3Z8X9K6V4C0J2N7R5T1W8Y",
		InsertedAt: insertedAt,
	}

	s := RecordToStruct(record)
	require.Equal(t, "2024-03-01T12:30:00.123456789Z", s.GetFields()["inserted_at"].GetStringValue())

	got, err := RecordFromStruct(s)
	require.NoError(t, err)
	if diff := cmp.Diff(record, got, protocmp.Transform()); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	t.Run("without_payload", func(t *testing.T) {
		got, err := RecordFromStruct(RecordToStruct(&storage.Record{Collection: "c", Key: "k"}))
		require.NoError(t, err)
		require.Nil(t, got.Payload)
		require.True(t, got.InsertedAt.IsZero())
	})

	t.Run("bad_timestamp", func(t *testing.T) {
		_, err := RecordFromStruct(mustStruct(t, map[string]any{"collection": "c", "key": "k", "inserted_at": "yesterday"}))
		require.ErrorIs(t, err, ErrMalformedMessage)
	})

	t.Run("payload_not_an_object", func(t *testing.T) {
		_, err := RecordFromStruct(mustStruct(t, map[string]any{"collection": "c", "key": "k", "payload": "x"}))
		require.ErrorIs(t, err, ErrMalformedMessage)
		require.ErrorContains(t, err, "field 'payload' must be an object")
	})
}

func TestWriteRecords(t *testing.T) {
	records := storage.Writes{
		{Collection: "orders", Key: "1", Payload: mustStruct(t, map[string]any{"n": 1.0})},
		{Collection: "orders", Key: "2", Ulid: "ignored", InsertedAt: time.Now()},
	}

	got, err := ParseWriteRecordsRequest(NewWriteRecordsRequest(records))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "1", got[0].Key)
	require.True(t, cmp.Equal(records[0].Payload, got[0].Payload, protocmp.Transform()))
	require.Empty(t, got[1].Ulid)
	require.True(t, got[1].InsertedAt.IsZero())

	t.Run("missing_records", func(t *testing.T) {
		_, err := ParseWriteRecordsRequest(&structpb.Struct{})
		require.ErrorIs(t, err, ErrMalformedMessage)
	})

	t.Run("item_not_an_object", func(t *testing.T) {
		_, err := ParseWriteRecordsRequest(mustStruct(t, map[string]any{"records": []any{"x"}}))
		require.ErrorContains(t, err, "item 0 must be an object")
	})

	t.Run("item_missing_key", func(t *testing.T) {
		_, err := ParseWriteRecordsRequest(mustStruct(t, map[string]any{"records": []any{map[string]any{"collection": "c"}}}))
		require.ErrorIs(t, err, ErrMalformedMessage)
		require.ErrorContains(t, err, "record 0")
	})

	t.Run("response", func(t *testing.T) {
		n, err := ParseWriteRecordsResponse(NewWriteRecordsResponse(3))
		require.NoError(t, err)
		require.Equal(t, 3, n)

		_, err = ParseWriteRecordsResponse(&structpb.Struct{})
		require.ErrorIs(t, err, ErrMalformedMessage)
	})
}
