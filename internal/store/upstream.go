package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Upstream is the read-only view onto the upstream ord-indexer data the
// replay engine ingests (§6). Two implementations exist: SQLUpstream reads
// the upstream Postgres tables directly (the default, used by BRC-20 and
// SNS); RPCUpstream speaks the alternate JSON-RPC interface historically
// used by the bitmap indexer. Both satisfy this interface so the replay
// engine is source-agnostic.
type Upstream interface {
	NetworkType(ctx context.Context) (string, error)
	MaxTransferCount(ctx context.Context, eventType string) (int, error)
	Tip(ctx context.Context) (int64, error)
	BlockHash(ctx context.Context, height int64) (string, error)
	// TransfersForBlock returns the ord_transfers rows for height, joined
	// to ord_content/ord_number_to_id, ordered by ascending id. Drives
	// the BRC-20 state machine.
	TransfersForBlock(ctx context.Context, height int64) ([]Transfer, error)
	// ContentForBlock returns the ord_content rows for height, ordered by
	// ascending inscription_number. Drives the bitmap and SNS engines,
	// which are not transfer-activity-driven.
	ContentForBlock(ctx context.Context, height int64) ([]Content, error)
}

// SQLUpstream reads the upstream ord-indexer's own Postgres database
// directly, mirroring the reference implementation's default data path.
type SQLUpstream struct {
	db *sql.DB
}

// NewSQLUpstream wraps an already-open upstream Postgres connection.
func NewSQLUpstream(db *sql.DB) *SQLUpstream {
	return &SQLUpstream{db: db}
}

func (u *SQLUpstream) NetworkType(ctx context.Context) (string, error) {
	var network string
	err := u.db.QueryRowContext(ctx, `SELECT network_type FROM ord_network_type LIMIT 1`).Scan(&network)
	if err != nil {
		return "", fmt.Errorf("query ord_network_type: %w", err)
	}
	return network, nil
}

func (u *SQLUpstream) MaxTransferCount(ctx context.Context, eventType string) (int, error) {
	var cnt int
	err := u.db.QueryRowContext(ctx,
		`SELECT max_transfer_cnt FROM ord_transfer_counts WHERE event_type = $1`, eventType,
	).Scan(&cnt)
	if err != nil {
		return 0, fmt.Errorf("query ord_transfer_counts: %w", err)
	}
	return cnt, nil
}

func (u *SQLUpstream) Tip(ctx context.Context) (int64, error) {
	var height int64
	err := u.db.QueryRowContext(ctx, `SELECT max(block_height) FROM block_hashes`).Scan(&height)
	if err != nil {
		return 0, fmt.Errorf("query upstream tip: %w", err)
	}
	return height, nil
}

func (u *SQLUpstream) BlockHash(ctx context.Context, height int64) (string, error) {
	var hash string
	err := u.db.QueryRowContext(ctx,
		`SELECT block_hash FROM block_hashes WHERE block_height = $1`, height,
	).Scan(&hash)
	if err != nil {
		return "", fmt.Errorf("query block hash at %d: %w", height, err)
	}
	return hash, nil
}

// TransfersForBlock mirrors the reference brc20 indexer's per-block join:
// ord_transfers joined to ord_content and ord_number_to_id, ordered by
// ascending transfer id (the processing order events are canonicalized
// in, per §4.2).
func (u *SQLUpstream) TransfersForBlock(ctx context.Context, height int64) ([]Transfer, error) {
	rows, err := u.db.QueryContext(ctx, `
		SELECT ot.id, ot.inscription_id, ot.old_satpoint, ot.new_pkscript,
		       ot.new_wallet, ot.sent_as_fee, ot.block_height,
		       oc.content, oc.text_content, oc.content_type,
		       onti.inscription_number, onti.parent_id, onti.cursed_for_brc20
		FROM ord_transfers ot
		JOIN ord_content oc ON oc.inscription_id = ot.inscription_id
		JOIN ord_number_to_id onti ON onti.inscription_id = ot.inscription_id
		WHERE ot.block_height = $1
		ORDER BY ot.id ASC
	`, height)
	if err != nil {
		return nil, fmt.Errorf("query transfers for block %d: %w", height, err)
	}
	defer rows.Close()

	var out []Transfer
	for rows.Next() {
		var t Transfer
		if err := rows.Scan(
			&t.ID, &t.InscriptionID, &t.OldSatpoint, &t.NewPkScript,
			&t.NewWallet, &t.SentAsFee, &t.BlockHeight,
			&t.Content, &t.TextContent, &t.ContentTypeHex,
			&t.InscriptionNumber, &t.ParentID, &t.CursedForBRC20,
		); err != nil {
			return nil, fmt.Errorf("scan transfer row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ContentForBlock drives the bitmap and SNS engines: all inscriptions
// first seen at height, ordered by ascending inscription_number,
// independent of transfer activity.
func (u *SQLUpstream) ContentForBlock(ctx context.Context, height int64) ([]Content, error) {
	rows, err := u.db.QueryContext(ctx, `
		SELECT oc.inscription_id, oc.content, oc.text_content, oc.content_type,
		       onti.inscription_number, onti.parent_id
		FROM ord_content oc
		JOIN ord_number_to_id onti ON onti.inscription_id = oc.inscription_id
		WHERE oc.block_height = $1 AND onti.inscription_number >= 0
		ORDER BY onti.inscription_number ASC
	`, height)
	if err != nil {
		return nil, fmt.Errorf("query content for block %d: %w", height, err)
	}
	defer rows.Close()

	var out []Content
	for rows.Next() {
		var c Content
		if err := rows.Scan(
			&c.InscriptionID, &c.Content, &c.TextContent, &c.ContentTypeHex,
			&c.InscriptionNumber, &c.ParentID,
		); err != nil {
			return nil, fmt.Errorf("scan content row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
