package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/bestinslot-xyz/OPI/cmd/run"
)

var rootCmd = &cobra.Command{
	Use:          "opi",
	Short:        "OPI replays Bitcoin metaprotocol inscription streams into verifiable indexer state",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(run.Command())
}

// Execute runs the root command, exiting 1 on any error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
