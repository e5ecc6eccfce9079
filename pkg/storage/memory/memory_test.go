package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openfga/recordrelay/pkg/storage"
	"github.com/openfga/recordrelay/pkg/storage/test"
)

func TestMemdbStorage(t *testing.T) {
	ds := New()
	test.RunAllTests(t, ds)
}

func TestRecordIteratorNoRace(t *testing.T) {
	ds := New()
	require.NoError(t, ds.Write(context.Background(), test.NewRecords(t, "race", 2)))

	iter, err := ds.ReadRecords(context.Background(), storage.ReadRecordsFilter{Collection: "race"}, storage.ReadRecordsOptions{})
	require.NoError(t, err)
	defer iter.Stop()

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := iter.Next(context.Background())
			require.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	ds := New()
	records := test.NewRecords(t, "copies", 1)
	require.NoError(t, ds.Write(context.Background(), records))

	iter, err := ds.ReadRecords(context.Background(), storage.ReadRecordsFilter{Collection: "copies"}, storage.ReadRecordsOptions{})
	require.NoError(t, err)
	got, err := storage.ToSlice(context.Background(), iter)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got[0].Key = "mutated"

	iter, err = ds.ReadRecords(context.Background(), storage.ReadRecordsFilter{Collection: "copies"}, storage.ReadRecordsOptions{})
	require.NoError(t, err)
	again, err := storage.ToSlice(context.Background(), iter)
	require.NoError(t, err)
	require.Equal(t, "key-000", again[0].Key)
}
