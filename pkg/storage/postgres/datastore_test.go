package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openfga/recordrelay/pkg/storage"
	"github.com/openfga/recordrelay/pkg/storage/postgres"
	"github.com/openfga/recordrelay/pkg/storage/sqlcommon"
	"github.com/openfga/recordrelay/pkg/storage/test"
	storagefixtures "github.com/openfga/recordrelay/pkg/testfixtures/storage"
)

func TestPostgresDatastore(t *testing.T) {
	testDatastore := storagefixtures.RunDatastoreTestContainer(t, "postgres")
	require.Positive(t, testDatastore.GetDatabaseSchemaVersion())

	ds, err := postgres.New(testDatastore.GetConnectionURI(), sqlcommon.NewConfig())
	require.NoError(t, err)
	defer ds.Close()

	test.RunAllTests(t, ds)

	t.Run("reads_run_on_the_pool", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, ds.Write(ctx, test.NewRecords(t, "pool", 3)))

		iter, err := ds.ReadRecords(ctx, storage.ReadRecordsFilter{Collection: "pool"}, storage.ReadRecordsOptions{})
		require.NoError(t, err)

		got, err := storage.ToSlice(ctx, iter)
		require.NoError(t, err)
		require.Len(t, got, 3)
	})
}
