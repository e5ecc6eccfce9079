package records

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfga/recordrelay/cmd/util"
)

// bindFlags returns a PreRun that binds the named cobra flags to viper keys of the same name
// and to their RECORDRELAY_ environment variables.
func bindFlags(names ...string) func(*cobra.Command, []string) {
	return func(command *cobra.Command, _ []string) {
		flags := command.Flags()
		for _, name := range names {
			util.MustBindPFlag(name, flags.Lookup(name))
			util.MustBindEnv(name, "RECORDRELAY_"+strings.ToUpper(strings.ReplaceAll(name, "-", "_")))
		}
	}
}
