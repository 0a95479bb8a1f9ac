// Package extratables maintains the BRC-20 extra-tables projector
// (§4.5): a materialized current-balance view and an unused
// transfer-inscription view, kept in lockstep with the authoritative
// brc20_events/brc20_historic_balances log but rebuildable from it at
// any time. Grounded on the reference implementation's
// update_extra_tables / reorg_on_extra_tables machinery.
package extratables

import (
	"context"
	"database/sql"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/bestinslot-xyz/OPI/internal/store"
)

// Projector derives brc20_current_balances and brc20_unused_tx_inscrs
// from the historic log, tracked against its own anchor table
// (brc20_extras_block_hashes) so drift from the main chain is
// detectable (§4.5).
type Projector struct {
	anchors *store.Anchors
}

// New builds a Projector bound to the given store's own extras anchor
// table.
func New(db *sql.DB) *Projector {
	return &Projector{anchors: store.NewAnchors(db, "brc20_extras")}
}

// ApplyBlock upserts current-balances and unused-tx rows touched by one
// block within tx, then records the extras anchor. The replay engine
// calls it in a transaction of its own, after the main BRC-20 commit
// for the same block has succeeded (§4.5: "updated per block after the
// main commit").
func (p *Projector) ApplyBlock(ctx context.Context, tx *sql.Tx, height int64, blockHash string) error {
	if err := upsertCurrentBalances(ctx, tx, height); err != nil {
		return fmt.Errorf("upsert current balances at %d: %w", height, err)
	}
	if err := insertUnusedTransfers(ctx, tx, height); err != nil {
		return fmt.Errorf("insert unused transfers at %d: %w", height, err)
	}
	if err := deleteConsumedTransfers(ctx, tx, height); err != nil {
		return fmt.Errorf("delete consumed transfers at %d: %w", height, err)
	}
	if err := p.anchors.InsertAnchor(ctx, tx, height, blockHash); err != nil {
		return err
	}
	return nil
}

// upsertCurrentBalances replaces the current-balance row for every
// (pkscript, tick) pair touched at height with the latest historic
// row for that pair, mirroring the reference's per-block upsert.
func upsertCurrentBalances(ctx context.Context, tx *sql.Tx, height int64) error {
	_, err := tx.ExecContext(ctx, `
		WITH touched AS (
			SELECT DISTINCT pkscript, tick FROM brc20_historic_balances WHERE block_height = $1
		), latest AS (
			SELECT DISTINCT ON (hb.pkscript, hb.tick)
				hb.pkscript, hb.wallet, hb.tick, hb.overall_balance, hb.available_balance, hb.block_height
			FROM brc20_historic_balances hb
			JOIN touched t ON t.pkscript = hb.pkscript AND t.tick = hb.tick
			ORDER BY hb.pkscript, hb.tick, hb.id DESC
		)
		INSERT INTO brc20_current_balances (pkscript, wallet, tick, overall_balance, available_balance, block_height)
		SELECT pkscript, wallet, tick, overall_balance, available_balance, block_height FROM latest
		ON CONFLICT (pkscript, tick) DO UPDATE SET
			wallet = EXCLUDED.wallet,
			overall_balance = EXCLUDED.overall_balance,
			available_balance = EXCLUDED.available_balance,
			block_height = EXCLUDED.block_height
	`, height)
	return err
}

// insertUnusedTransfers adds one unused-tx row per transfer-inscribe
// event committed at height.
func insertUnusedTransfers(ctx context.Context, tx *sql.Tx, height int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO brc20_unused_tx_inscrs (inscription_id, pkscript, tick, amount, block_height)
		SELECT
			e.inscription_id,
			e.event->>'source_pkScript',
			e.event->>'tick',
			(e.event->>'amount')::numeric,
			e.block_height
		FROM brc20_events e
		WHERE e.event_type = 3 AND e.block_height = $1
		ON CONFLICT (inscription_id) DO NOTHING
	`, height)
	return err
}

// deleteConsumedTransfers removes the unused-tx row for every
// transfer-transfer committed at height (its reservation is spent).
func deleteConsumedTransfers(ctx context.Context, tx *sql.Tx, height int64) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM brc20_unused_tx_inscrs
		WHERE inscription_id IN (
			SELECT inscription_id FROM brc20_events
			WHERE event_type = 4 AND block_height = $1
		)
	`, height)
	return err
}

// ExtrasTip returns the highest block_height recorded in the extras
// anchor table, or -1 if empty.
func (p *Projector) ExtrasTip(ctx context.Context) (int64, error) {
	return p.anchors.LocalTip(ctx)
}

// CheckDrift compares the extras anchor tip against the main chain's
// tip; if the extras tables lag or lead it, the caller should rebuild
// (§4.5: "on drift, rollback by rederivation from the historic log up
// to the common block").
func CheckDrift(ctx context.Context, db *sql.DB, mainTip int64) (drifted bool, extrasTip int64, err error) {
	p := New(db)
	extrasTip, err = p.ExtrasTip(ctx)
	if err != nil {
		return false, 0, err
	}
	return extrasTip != mainTip, extrasTip, nil
}

// Rebuild recomputes brc20_current_balances and brc20_unused_tx_inscrs
// from scratch against the whole historic log, and replaces the extras
// anchor table with anchorRows. Used both for
// initial backfill (§4.5) and for drift recovery after a rollback,
// where the main chain's RollbackAbove already deleted the
// now-invalid historic rows and this rederives the projector's view
// of what remains.
func Rebuild(ctx context.Context, db *sql.DB, anchorRows []store.BlockAnchor) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `TRUNCATE brc20_current_balances, brc20_unused_tx_inscrs`); err != nil {
		return fmt.Errorf("truncate extra tables: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO brc20_current_balances (pkscript, wallet, tick, overall_balance, available_balance, block_height)
		SELECT DISTINCT ON (pkscript, tick) pkscript, wallet, tick, overall_balance, available_balance, block_height
		FROM brc20_historic_balances
		ORDER BY pkscript, tick, id DESC
	`); err != nil {
		return fmt.Errorf("rebuild current balances: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO brc20_unused_tx_inscrs (inscription_id, pkscript, tick, amount, block_height)
		SELECT
			ti.inscription_id, ti.event->>'source_pkScript', ti.event->>'tick',
			(ti.event->>'amount')::numeric, ti.block_height
		FROM brc20_events ti
		WHERE ti.event_type = 3
		AND NOT EXISTS (
			SELECT 1 FROM brc20_events tt
			WHERE tt.event_type = 4 AND tt.inscription_id = ti.inscription_id
		)
	`); err != nil {
		return fmt.Errorf("rebuild unused transfers: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM brc20_extras_block_hashes`); err != nil {
		return fmt.Errorf("clear extras anchors: %w", err)
	}
	for _, a := range anchorRows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO brc20_extras_block_hashes (block_height, block_hash) VALUES ($1, $2)`,
			a.BlockHeight, a.BlockHash,
		); err != nil {
			return fmt.Errorf("reinsert extras anchor %d: %w", a.BlockHeight, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit extras rebuild: %w", err)
	}
	log.WithField("rows", len(anchorRows)).Info("extratables: rebuilt current-balances and unused-tx views")
	return nil
}
