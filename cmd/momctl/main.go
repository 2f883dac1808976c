// Command momctl runs publish/subscribe scenarios against an in-process
// middleware and reports what was delivered.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "momctl",
		Short: "Run message oriented middleware scenarios",
		Long: `momctl builds a signal tree from a TOML scenario, attaches callback
and queue subscribers, publishes the scripted frames and prints every
delivery. A summary with a snapshot of the tree can be written as JSON
or MessagePack.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log middleware activity to stderr")

	rootCmd.AddCommand(
		runCmd(),
		exampleCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "momctl %s (%s)\n", version, commit)
		},
	}
}
