package store

import (
	"context"
	"database/sql"
	"fmt"
)

// RecoverableDBVersions lists, per protocol, the db_version values an
// already-initialized database may carry that this indexer knows how to
// migrate forward from. A version outside this set is a fatal
// inconsistency (§7c): the operator must re-initialize the database.
var RecoverableDBVersions = map[string][]int{
	"brc20":  {4, 5},
	"bitmap": {1},
	"sns":    {1},
}

const CurrentDBVersion = 5

// CheckVersion validates the recorded db_version against
// RecoverableDBVersions and, if a known upgrade path applies, runs it.
// A never-initialized database (version -1) is not an error: the caller
// is expected to write the current version marker once its schema is
// created.
func CheckVersion(ctx context.Context, db *sql.DB, anchors *Anchors, proto string) error {
	version, err := anchors.Version(ctx)
	if err != nil {
		return err
	}
	if version == -1 {
		return nil
	}
	if version == CurrentDBVersion {
		return nil
	}

	recoverable := RecoverableDBVersions[proto]
	found := false
	for _, v := range recoverable {
		if v == version {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf(
			"%s database is at version %d, which is not recoverable (known: %v); re-initialize the database",
			proto, version, recoverable,
		)
	}

	if proto == "brc20" && version == 4 {
		if err := migrateBRC20V4ToV5(ctx, db); err != nil {
			return fmt.Errorf("migrate brc20 db v4->v5: %w", err)
		}
	}

	return nil
}

// migrateBRC20V4ToV5 widens original_tick to text, the one documented
// recoverable BRC-20 schema change (the self-mint extension introduced
// 5-byte tickers, which no longer fit the original fixed-width column).
func migrateBRC20V4ToV5(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `ALTER TABLE brc20_tickers ALTER COLUMN original_tick TYPE text`)
	return err
}
