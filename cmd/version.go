package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/bebsworthy/arcset/internal/channel"
)

// Version information (set via ldflags during build)
var (
	BuildDate = "dev"
	GitCommit = "unknown"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print version information about arcset.`,
	Args:  noArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "arcset - parallel feedback arc set search\n")
		fmt.Fprintf(out, "Version:        %s\n", BuildDate)
		fmt.Fprintf(out, "Git commit:     %s\n", GitCommit)
		fmt.Fprintf(out, "Segment layout: v%d\n", channel.SegmentVersion)
		fmt.Fprintf(out, "Go version:     %s\n", runtime.Version())
		fmt.Fprintf(out, "OS/Arch:        %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
