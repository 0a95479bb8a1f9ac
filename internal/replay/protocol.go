// Package replay implements the shared ingestion loop every protocol
// indexer runs: residue detection, reorg detection, per-block state
// application, digest chaining, and conditional reporting (§4.1, §5).
package replay

import (
	"context"
	"database/sql"

	"github.com/bestinslot-xyz/OPI/internal/store"
)

// Protocol adapts the generic replay engine to one of BRC-20, bitmap or
// SNS. Each method operates against the block's own explicit transaction
// except where noted.
type Protocol interface {
	// Name identifies the protocol for logging and table-prefix lookups
	// ("brc20", "bitmap", "sns").
	Name() string

	// MinTransferCount is the minimum max_transfer_cnt the upstream must
	// report for this protocol to run (§4.1's "permits multiple
	// transfers per inscription" check).
	MinTransferCount() int

	// FirstHeight is the first block height this protocol indexes
	// activity at, for the configured network.
	FirstHeight() int64

	// IndexBlock applies one block's worth of events within tx and
	// returns the canonicalized event strings added, in processing
	// order, for the hash chain. An empty slice is a valid, empty
	// block.
	IndexBlock(ctx context.Context, tx *sql.Tx, upstream store.Upstream, height int64) ([]string, error)

	// ResidueHeights reports the maximum block_height present in every
	// protocol-owned table, used by residue detection (§4.1.1) to
	// detect partially-committed rows from a crashed prior run.
	ResidueHeights(ctx context.Context, db *sql.DB) ([]int64, error)

	// RollbackAbove deletes all protocol-owned rows with block_height >
	// height and re-credits any reverted state (e.g. BRC-20 mint
	// amounts), within tx (§4.1.3).
	RollbackAbove(ctx context.Context, tx *sql.Tx, height int64) error

	// WarmCaches reloads any in-memory state (tickers, balances) after
	// a rollback invalidates it (§5, "Shared resources").
	WarmCaches(ctx context.Context, db *sql.DB) error
}
