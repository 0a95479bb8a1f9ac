package store

import (
	"context"
	"database/sql"
	"fmt"
)

// anchorSchema renders the three tables common to every protocol: the
// block anchor, the digest chain, and the version marker (§6).
func anchorSchema(prefix string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s_block_hashes (
			block_height bigint PRIMARY KEY,
			block_hash   text NOT NULL
		);
		CREATE TABLE IF NOT EXISTS %[1]s_cumulative_event_hashes (
			block_height          bigint PRIMARY KEY,
			block_event_hash      text NOT NULL,
			cumulative_event_hash text NOT NULL
		);
		CREATE TABLE IF NOT EXISTS %[1]s_indexer_version (
			indexer_version text NOT NULL,
			db_version      int NOT NULL
		);
	`, prefix)
}

// EnsureBRC20Schema creates every table the BRC-20 indexer owns,
// including the optional extra-tables projector relations.
func EnsureBRC20Schema(ctx context.Context, db *sql.DB, withExtras bool) error {
	stmts := anchorSchema("brc20") + `
		CREATE TABLE IF NOT EXISTS brc20_event_types (
			event_type_name text PRIMARY KEY,
			event_type_id   smallint NOT NULL
		);
		CREATE TABLE IF NOT EXISTS brc20_tickers (
			original_tick         text PRIMARY KEY,
			tick                  text NOT NULL UNIQUE,
			max_supply            numeric NOT NULL,
			decimals              int NOT NULL,
			limit_per_mint        numeric NOT NULL,
			remaining_supply      numeric NOT NULL,
			burned_supply         numeric NOT NULL,
			is_self_mint          boolean NOT NULL,
			deploy_inscription_id text NOT NULL,
			block_height          bigint NOT NULL
		);
		CREATE TABLE IF NOT EXISTS brc20_events (
			id              bigserial PRIMARY KEY,
			event_type      smallint NOT NULL,
			block_height    bigint NOT NULL,
			inscription_id  text NOT NULL,
			event           jsonb NOT NULL
		);
		CREATE TABLE IF NOT EXISTS brc20_historic_balances (
			id                bigserial PRIMARY KEY,
			pkscript          text NOT NULL,
			wallet            text NOT NULL,
			tick              text NOT NULL,
			overall_balance   numeric NOT NULL,
			available_balance numeric NOT NULL,
			block_height      bigint NOT NULL,
			event_id          bigint NOT NULL UNIQUE
		);
		CREATE INDEX IF NOT EXISTS brc20_historic_balances_pkscript_tick_idx
			ON brc20_historic_balances (pkscript, tick, id DESC);
	`

	if withExtras {
		stmts += `
		CREATE TABLE IF NOT EXISTS brc20_current_balances (
			pkscript          text NOT NULL,
			wallet            text NOT NULL,
			tick              text NOT NULL,
			overall_balance   numeric NOT NULL,
			available_balance numeric NOT NULL,
			block_height      bigint NOT NULL,
			UNIQUE (pkscript, tick)
		);
		CREATE TABLE IF NOT EXISTS brc20_unused_tx_inscrs (
			inscription_id    text PRIMARY KEY,
			pkscript          text NOT NULL,
			tick              text NOT NULL,
			amount            numeric NOT NULL,
			block_height      bigint NOT NULL
		);
		` + anchorSchema("brc20_extras")
	}

	if _, err := db.ExecContext(ctx, stmts); err != nil {
		return fmt.Errorf("ensure brc20 schema: %w", err)
	}
	return nil
}

// EnsureBitmapSchema creates the tables the bitmap indexer owns.
func EnsureBitmapSchema(ctx context.Context, db *sql.DB) error {
	stmts := anchorSchema("bitmap") + `
		CREATE TABLE IF NOT EXISTS bitmaps (
			id                 bigserial PRIMARY KEY,
			inscription_id     text NOT NULL,
			inscription_number bigint NOT NULL,
			bitmap_number      bigint NOT NULL UNIQUE,
			block_height       bigint NOT NULL
		);
	`
	if _, err := db.ExecContext(ctx, stmts); err != nil {
		return fmt.Errorf("ensure bitmap schema: %w", err)
	}
	return nil
}

// EnsureSNSSchema creates the tables the SNS indexer owns.
func EnsureSNSSchema(ctx context.Context, db *sql.DB) error {
	stmts := anchorSchema("sns") + `
		CREATE TABLE IF NOT EXISTS sns_names (
			id                 bigserial PRIMARY KEY,
			inscription_id     text NOT NULL,
			inscription_number bigint NOT NULL,
			name               text NOT NULL UNIQUE,
			domain             text NOT NULL,
			block_height       bigint NOT NULL
		);
		CREATE TABLE IF NOT EXISTS sns_namespaces (
			id                 bigserial PRIMARY KEY,
			inscription_id     text NOT NULL,
			inscription_number bigint NOT NULL,
			namespace          text NOT NULL UNIQUE,
			block_height       bigint NOT NULL
		);
	`
	if _, err := db.ExecContext(ctx, stmts); err != nil {
		return fmt.Errorf("ensure sns schema: %w", err)
	}
	return nil
}
