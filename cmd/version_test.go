package cmd

import (
	"bytes"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/openfga/recordrelay/cmd/util"
	"github.com/openfga/recordrelay/internal/build"
)

func TestVersionCommand(t *testing.T) {
	util.PrepareTempConfigDir(t)

	var out bytes.Buffer
	root := NewRootCommand()
	root.AddCommand(NewVersionCommand())
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "recordrelay version "+build.Version)
}

func TestRootCommandReadsDatastoreDefaultsFromConfig(t *testing.T) {
	util.PrepareTempConfigFile(t, `datastore:
    engine: sqlite
    uri: file:records.db
`)

	root := NewRootCommand()
	require.Equal(t, "recordrelay", root.Use)
	require.Equal(t, "sqlite", viper.GetString(datastoreEngineFlag))
	require.Equal(t, "file:records.db", viper.GetString(datastoreURIFlag))
}
