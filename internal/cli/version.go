package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"skinarb/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build metadata",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "skinarb %s (commit %s, built %s)\n", version.Version, version.Commit, version.BuildDate)
	},
}
