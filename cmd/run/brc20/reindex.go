package brc20

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bestinslot-xyz/OPI/internal/brc20"
	"github.com/bestinslot-xyz/OPI/internal/config"
	"github.com/bestinslot-xyz/OPI/internal/replay"
	"github.com/bestinslot-xyz/OPI/internal/store"
)

// reindexHashesCommand implements the reference's
// reindex_cumulative_hashes maintenance operation: recompute every
// cumulative digest from the stored per-block event hashes, used after
// manual data surgery that leaves the chain internally inconsistent.
func reindexHashesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex-hashes",
		Short: "Recompute cumulative event hashes from the stored per-block digests",
		Args:  cobra.ExactArgs(0),
		RunE:  reindexHashes,
	}
}

func reindexHashes(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ownStore, err := store.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer ownStore.Close()

	indexer := brc20.NewIndexer(cfg.Network)
	engine := replay.New(ownStore, nil, indexer, replay.Config{})

	return engine.ReindexCumulativeHashes(context.Background())
}
