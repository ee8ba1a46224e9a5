package cli

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of zedlogin",
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "zedlogin %s\n", version)
		if commit != "none" {
			fmt.Fprintf(w, "  commit: %s\n", commit)
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			fmt.Fprintf(w, "  go:     %s\n", info.GoVersion)
		}
	},
}
