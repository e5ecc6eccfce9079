// Package util provides common utilities for spf13/cobra CLI utilities
// that can be used for various commands within this project.
package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

// MustBindPFlag attempts to bind a specific key to a pflag (as used by cobra) and panics
// if the binding fails with a non-nil error.
func MustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}

func MustBindEnv(input ...string) {
	if err := viper.BindEnv(input...); err != nil {
		panic("failed to bind env key: " + err.Error())
	}
}

// ResetViper drops every key, binding and default of the global viper instance.
func ResetViper() {
	viper.Reset()
}

// PrepareTempConfigDir points $HOME to a temporary directory holding an empty
// .recordrelay config directory and returns the latter.
func PrepareTempConfigDir(t *testing.T) string {
	_, err := os.Stat("/etc/recordrelay/config.yaml")
	require.ErrorIs(t, err, os.ErrNotExist, "Config file at /etc/recordrelay/config.yaml would disturb test result.")

	homedir := t.TempDir()
	t.Setenv("HOME", homedir)
	t.Cleanup(ResetViper)

	confdir := filepath.Join(homedir, ".recordrelay")
	require.NoError(t, os.Mkdir(confdir, 0750))

	return confdir
}

func PrepareTempConfigFile(t *testing.T, config string) {
	confdir := PrepareTempConfigDir(t)
	confFile, err := os.Create(filepath.Join(confdir, "config.yaml"))
	require.NoError(t, err)
	_, err = confFile.WriteString(config)
	require.NoError(t, err)
	require.NoError(t, confFile.Close())
}
