// Package bitmap implements the spatial-claim metaprotocol: the first
// inscription whose content is "<blockheight>.bitmap" to reach the
// indexer claims that block height, enforced by a database-level
// uniqueness constraint rather than an in-memory lock.
package bitmap

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/bestinslot-xyz/OPI/internal/config"
	"github.com/bestinslot-xyz/OPI/internal/store"
)

const bitmapSuffix = ".bitmap"

// Indexer implements replay.Protocol for bitmap. It carries no mutable
// state of its own: first-valid-wins is enforced by the bitmap_number
// unique constraint, checked per-claim via INSERT ... ON CONFLICT.
type Indexer struct {
	network config.NetworkType
}

func NewIndexer(network config.NetworkType) *Indexer {
	return &Indexer{network: network}
}

func (ix *Indexer) Name() string         { return "bitmap" }
func (ix *Indexer) MinTransferCount() int { return 1 }
func (ix *Indexer) FirstHeight() int64    { return config.FirstInscriptionHeight[ix.network] }

// IndexBlock mirrors the reference bitmap indexer's index_block: every
// inscription first seen at height is checked for a ".bitmap" claim and
// raced against the table's unique constraint.
func (ix *Indexer) IndexBlock(ctx context.Context, tx *sql.Tx, upstream store.Upstream, height int64) ([]string, error) {
	contents, err := upstream.ContentForBlock(ctx, height)
	if err != nil {
		return nil, err
	}

	var events []string
	for _, c := range contents {
		if !strings.HasPrefix(strings.ToLower(hexDecodedContentType(c.ContentTypeHex)), "text/plain") {
			continue
		}
		if c.InscriptionNumber < 0 {
			continue
		}

		number, ok := parseBitmapNumber(c.TextContent)
		if !ok {
			continue
		}
		numberInt, ok := new(big.Int).SetString(number, 10)
		if !ok || !numberInt.IsInt64() || numberInt.Int64() > height {
			continue
		}

		var id int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO bitmaps (inscription_id, inscription_number, bitmap_number, block_height)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (bitmap_number) DO NOTHING
			RETURNING id
		`, c.InscriptionID, c.InscriptionNumber, number, height).Scan(&id)
		if err == sql.ErrNoRows {
			continue // bitmap_number already claimed by an earlier inscription
		}
		if err != nil {
			return nil, fmt.Errorf("claim bitmap %s at block %d: %w", number, height, err)
		}

		events = append(events, "inscribe;"+c.InscriptionID+";"+number)
	}

	return events, nil
}

// hexDecodedContentType decodes the upstream's hex-encoded content_type
// column to UTF-8; an undecodable value is treated as empty so the
// caller's prefix check simply rejects it.
func hexDecodedContentType(contentTypeHex string) string {
	decoded, err := hex.DecodeString(contentTypeHex)
	if err != nil {
		return ""
	}
	return string(decoded)
}

// parseBitmapNumber validates content is exactly "<digits>.bitmap" with
// no leading zero on a multi-digit number, mirroring get_bitmap_number.
func parseBitmapNumber(content string) (string, bool) {
	if !strings.HasSuffix(content, bitmapSuffix) {
		return "", false
	}
	number := content[:len(content)-len(bitmapSuffix)]
	if number == "" {
		return "", false
	}
	for i := 0; i < len(number); i++ {
		if number[i] < '0' || number[i] > '9' {
			return "", false
		}
	}
	if len(number) > 1 && number[0] == '0' {
		return "", false
	}
	return number, true
}

// ResidueHeights reports the maximum block_height in the bitmaps table.
func (ix *Indexer) ResidueHeights(ctx context.Context, db *sql.DB) ([]int64, error) {
	var h sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT max(block_height) FROM bitmaps`).Scan(&h); err != nil {
		return nil, fmt.Errorf("residue height for bitmaps: %w", err)
	}
	if !h.Valid {
		return []int64{-1}, nil
	}
	return []int64{h.Int64}, nil
}

// RollbackAbove deletes every claim committed above height. Reverted
// claims simply vanish; there is no supply or balance to re-credit.
func (ix *Indexer) RollbackAbove(ctx context.Context, tx *sql.Tx, height int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM bitmaps WHERE block_height > $1`, height); err != nil {
		return fmt.Errorf("rollback bitmaps above %d: %w", height, err)
	}
	if _, err := tx.ExecContext(ctx, `
		SELECT setval(pg_get_serial_sequence('bitmaps', 'id'), COALESCE((SELECT max(id) FROM bitmaps), 1))
	`); err != nil {
		return fmt.Errorf("reset bitmaps sequence: %w", err)
	}
	return nil
}

// WarmCaches is a no-op: bitmap carries no in-memory state.
func (ix *Indexer) WarmCaches(ctx context.Context, db *sql.DB) error { return nil }
