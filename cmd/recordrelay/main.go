package main

import (
	"os"

	"github.com/openfga/recordrelay/cmd"
	"github.com/openfga/recordrelay/cmd/migrate"
	"github.com/openfga/recordrelay/cmd/records"
	"github.com/openfga/recordrelay/cmd/run"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	runCmd := run.NewRunCommand()
	rootCmd.AddCommand(runCmd)

	migrateCmd := migrate.NewMigrateCommand()
	rootCmd.AddCommand(migrateCmd)

	rootCmd.AddCommand(records.NewLoadCommand())
	rootCmd.AddCommand(records.NewReadCommand())

	versionCmd := cmd.NewVersionCommand()
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
