package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestMustBindPFlag(t *testing.T) {
	t.Cleanup(ResetViper)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("relay-capacity", 16, "")
	MustBindPFlag("relay.capacity", flags.Lookup("relay-capacity"))

	require.Equal(t, 16, viper.GetInt("relay.capacity"))

	require.NoError(t, flags.Parse([]string{"--relay-capacity=4"}))
	require.Equal(t, 4, viper.GetInt("relay.capacity"))

	require.Panics(t, func() {
		MustBindPFlag("missing", nil)
	})
}

func TestMustBindEnv(t *testing.T) {
	t.Cleanup(ResetViper)
	t.Setenv("RECORDRELAY_RELAY_CAPACITY", "8")

	MustBindEnv("relay.capacity", "RECORDRELAY_RELAY_CAPACITY")
	require.Equal(t, 8, viper.GetInt("relay.capacity"))

	require.Panics(t, func() {
		MustBindEnv()
	})
}

func TestPrepareTempConfigFile(t *testing.T) {
	PrepareTempConfigFile(t, "log:\n  level: debug\n")

	content, err := os.ReadFile(filepath.Join(os.Getenv("HOME"), ".recordrelay", "config.yaml"))
	require.NoError(t, err)
	require.Equal(t, "log:\n  level: debug\n", string(content))
}
