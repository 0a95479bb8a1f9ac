package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Anchors wraps the block-anchor, digest-chain and version-marker tables
// every protocol owns, parameterized by its table prefix ("brc20",
// "bitmap", "sns"). These three tables share an identical shape across
// protocols (§6), so one implementation serves all three.
type Anchors struct {
	db     *sql.DB
	prefix string
}

// NewAnchors binds to the {prefix}_block_hashes /
// {prefix}_cumulative_event_hashes / {prefix}_indexer_version tables.
func NewAnchors(db *sql.DB, prefix string) *Anchors {
	return &Anchors{db: db, prefix: prefix}
}

func (a *Anchors) table(name string) string {
	return a.prefix + "_" + name
}

// LocalTip returns the highest committed block height, or -1 if none.
func (a *Anchors) LocalTip(ctx context.Context) (int64, error) {
	var height sql.NullInt64
	err := a.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT max(block_height) FROM %s`, a.table("block_hashes")),
	).Scan(&height)
	if err != nil {
		return 0, fmt.Errorf("query local tip: %w", err)
	}
	if !height.Valid {
		return -1, nil
	}
	return height.Int64, nil
}

// DigestsMaxHeight returns the highest block_height present in the digest
// chain table, or -1 if empty. Used by residue detection alongside each
// protocol's own tables.
func (a *Anchors) DigestsMaxHeight(ctx context.Context) (int64, error) {
	var height sql.NullInt64
	err := a.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT max(block_height) FROM %s`, a.table("cumulative_event_hashes")),
	).Scan(&height)
	if err != nil {
		return 0, fmt.Errorf("query digest max height: %w", err)
	}
	if !height.Valid {
		return -1, nil
	}
	return height.Int64, nil
}

// RecentAnchors returns up to the last `limit` committed anchors, highest
// height first, used by reorg detection (§4.1.2).
func (a *Anchors) RecentAnchors(ctx context.Context, limit int) ([]BlockAnchor, error) {
	rows, err := a.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT block_height, block_hash FROM %s ORDER BY block_height DESC LIMIT $1`, a.table("block_hashes")),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent anchors: %w", err)
	}
	defer rows.Close()

	var out []BlockAnchor
	for rows.Next() {
		var anc BlockAnchor
		if err := rows.Scan(&anc.BlockHeight, &anc.BlockHash); err != nil {
			return nil, fmt.Errorf("scan anchor row: %w", err)
		}
		out = append(out, anc)
	}
	return out, rows.Err()
}

// AllAnchors returns every committed anchor, ascending by height. Used by
// the extra-tables projector to re-seed its own anchor table on rebuild.
func (a *Anchors) AllAnchors(ctx context.Context) ([]BlockAnchor, error) {
	rows, err := a.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT block_height, block_hash FROM %s ORDER BY block_height ASC`, a.table("block_hashes")),
	)
	if err != nil {
		return nil, fmt.Errorf("query all anchors: %w", err)
	}
	defer rows.Close()

	var out []BlockAnchor
	for rows.Next() {
		var anc BlockAnchor
		if err := rows.Scan(&anc.BlockHeight, &anc.BlockHash); err != nil {
			return nil, fmt.Errorf("scan anchor row: %w", err)
		}
		out = append(out, anc)
	}
	return out, rows.Err()
}

// InsertAnchor records the block anchor within the block's transaction.
func (a *Anchors) InsertAnchor(ctx context.Context, tx *sql.Tx, height int64, hash string) error {
	_, err := tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (block_height, block_hash) VALUES ($1, $2)`, a.table("block_hashes")),
		height, hash,
	)
	if err != nil {
		return fmt.Errorf("insert anchor for %d: %w", height, err)
	}
	return nil
}

// LastCumulativeHash returns the cumulative hash at the highest recorded
// height, or "" if the chain is empty (§4.6).
func (a *Anchors) LastCumulativeHash(ctx context.Context) (string, error) {
	var cumulative sql.NullString
	err := a.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT cumulative_event_hash FROM %s ORDER BY block_height DESC LIMIT 1`,
		a.table("cumulative_event_hashes"),
	)).Scan(&cumulative)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query last cumulative hash: %w", err)
	}
	return cumulative.String, nil
}

// InsertDigest records the per-block and cumulative digests within the
// block's transaction.
func (a *Anchors) InsertDigest(ctx context.Context, tx *sql.Tx, height int64, blockEventHash, cumulativeEventHash string) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (block_height, block_event_hash, cumulative_event_hash) VALUES ($1, $2, $3)`,
		a.table("cumulative_event_hashes"),
	), height, blockEventHash, cumulativeEventHash)
	if err != nil {
		return fmt.Errorf("insert digest for %d: %w", height, err)
	}
	return nil
}

// DeleteAbove removes anchor and digest rows above height, the common
// first step of every rollback (§4.1.3).
func (a *Anchors) DeleteAbove(ctx context.Context, tx *sql.Tx, height int64) error {
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE block_height > $1`, a.table("block_hashes")), height,
	); err != nil {
		return fmt.Errorf("rollback anchors above %d: %w", height, err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE block_height > $1`, a.table("cumulative_event_hashes")), height,
	); err != nil {
		return fmt.Errorf("rollback digests above %d: %w", height, err)
	}
	return nil
}

// Version reads the indexer's recorded db_version, or (-1, nil) if the
// version marker row has never been written.
func (a *Anchors) Version(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := a.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT db_version FROM %s LIMIT 1`, a.table("indexer_version")),
	).Scan(&version)
	if err == sql.ErrNoRows {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query db version: %w", err)
	}
	if !version.Valid {
		return -1, nil
	}
	return int(version.Int64), nil
}

// SetVersion upserts the single version-marker row.
func (a *Anchors) SetVersion(ctx context.Context, indexerVersion string, dbVersion int) error {
	_, err := a.db.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM %s;
	`, a.table("indexer_version")))
	if err != nil {
		return fmt.Errorf("clear version marker: %w", err)
	}
	_, err = a.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (indexer_version, db_version) VALUES ($1, $2)`, a.table("indexer_version")),
		indexerVersion, dbVersion,
	)
	if err != nil {
		return fmt.Errorf("set version marker: %w", err)
	}
	return nil
}
