package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X github.com/khanhnv2901/seca-posture/cmd.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the posture build",
	Long: `Show which posture build is running.

With --verbose the commit, build date and Go runtime are printed too, which
helps when comparing scores produced by different builds.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "posture version %s\n", Version)

		if verbose, _ := cmd.Flags().GetBool("verbose"); !verbose {
			return
		}
		fmt.Fprintf(out, "  commit:  %s\n", GitCommit)
		fmt.Fprintf(out, "  built:   %s\n", BuildDate)
		fmt.Fprintf(out, "  runtime: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	versionCmd.Flags().BoolP("verbose", "v", false, "also print commit, build date and runtime")
}
