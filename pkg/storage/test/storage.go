package test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/testing/protocmp"

	"github.com/openfga/recordrelay/pkg/storage"
)

var (
	cmpOpts = []cmp.Option{
		cmpopts.IgnoreFields(storage.Record{}, "Ulid", "InsertedAt"),
		protocmp.Transform(),
	}
)

// RunAllTests runs the datastore conformance suite against ds. The suite writes
// into collections prefixed with the test name, so ds may be shared between runs.
func RunAllTests(t *testing.T, ds storage.RecordBackend) {
	t.Run("TestDatastoreIsReady", func(t *testing.T) {
		status, err := ds.IsReady(context.Background())
		require.NoError(t, err)
		require.True(t, status.IsReady)
	})

	t.Run("TestRecordWriteAndRead", func(t *testing.T) { RecordWritingAndReadingTest(t, ds) })
	t.Run("TestReadRecordsKeyPrefix", func(t *testing.T) { ReadRecordsKeyPrefixTest(t, ds) })
	t.Run("TestReadRecordsLimit", func(t *testing.T) { ReadRecordsLimitTest(t, ds) })
	t.Run("TestReadRecordsIsLazy", func(t *testing.T) { ReadRecordsIsLazyTest(t, ds) })
	t.Run("TestReadRecordsStop", func(t *testing.T) { ReadRecordsStopTest(t, ds) })
	t.Run("TestWriteValidation", func(t *testing.T) { WriteValidationTest(t, ds) })
}
