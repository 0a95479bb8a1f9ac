package run

import (
	"github.com/spf13/cobra"

	"github.com/bestinslot-xyz/OPI/cmd/run/bitmap"
	"github.com/bestinslot-xyz/OPI/cmd/run/brc20"
	"github.com/bestinslot-xyz/OPI/cmd/run/sns"
)

// Command groups the per-protocol replay services under "opi run <protocol>".
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a protocol replay indexer",
		Args:  cobra.MinimumNArgs(1),
	}

	cmd.AddCommand(brc20.Command())
	cmd.AddCommand(bitmap.Command())
	cmd.AddCommand(sns.Command())

	return cmd
}
