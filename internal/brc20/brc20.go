// Package brc20 implements the fungible-token metaprotocol: ticker
// deploys (including self-mint), mints, and the two-phase
// transfer-inscribe/transfer-transfer handoff, replayed from upstream
// inscription activity into a canonical, hash-chained event log.
package brc20

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/bestinslot-xyz/OPI/internal/config"
	"github.com/bestinslot-xyz/OPI/internal/numeric"
	"github.com/bestinslot-xyz/OPI/internal/store"
)

const batchSize = 1000

const protocolMarker = "brc-20"

// Indexer implements replay.Protocol for BRC-20.
type Indexer struct {
	network config.NetworkType
	caches  *caches
}

// NewIndexer builds an uninitialized BRC-20 indexer; call WarmCaches
// before the first IndexBlock.
func NewIndexer(network config.NetworkType) *Indexer {
	return &Indexer{network: network, caches: newCaches()}
}

func (ix *Indexer) Name() string             { return "brc20" }
func (ix *Indexer) MinTransferCount() int     { return 2 }
func (ix *Indexer) FirstHeight() int64        { return config.FirstBRC20Height[ix.network] }

// content is the permitted field set of a BRC-20 JSON inscription. Every
// value is string-typed per the protocol's convention of quoting numbers;
// a numeric JSON literal fails to unmarshal here and the inscription is
// rejected, matching the reference indexer's strict string check.
type content struct {
	Proto     string  `json:"p"`
	Operation string  `json:"op"`
	Tick      string  `json:"tick"`
	Max       *string `json:"max"`
	Limit     *string `json:"lim"`
	Decimals  *string `json:"dec"`
	Amount    *string `json:"amt"`
	SelfMint  *string `json:"self_mint"`
}

// IndexBlock mirrors the reference implementation's index_block: iterate
// upstream transfers in ascending id order, dispatch each to the
// deploy/mint/transfer-inscribe branch (new inscriptions) or the
// transfer-transfer branch (existing inscriptions changing hands).
func (ix *Indexer) IndexBlock(ctx context.Context, tx *sql.Tx, upstream store.Upstream, height int64) ([]string, error) {
	transfers, err := upstream.TransfersForBlock(ctx, height)
	if err != nil {
		return nil, err
	}

	maxEventID, err := queryMaxEventID(ctx, tx)
	if err != nil {
		return nil, err
	}

	w := newBlockWork(ctx, tx, ix.caches, height, maxEventID)

	for _, t := range transfers {
		if t.SentAsFee && t.OldSatpoint == "" {
			continue
		}

		if t.OldSatpoint == "" {
			if err := ix.handleInscribe(w, t, height); err != nil {
				return nil, err
			}
			continue
		}

		if err := ix.handleTransfer(w, t); err != nil {
			return nil, err
		}
	}

	if err := flush(ctx, tx, w); err != nil {
		return nil, err
	}

	return w.events, nil
}

// handleInscribe dispatches a brand-new inscription to deploy, mint or
// transfer-inscribe, based on its JSON content.
func (ix *Indexer) handleInscribe(w *blockWork, t store.Transfer, height int64) error {
	if t.CursedForBRC20 {
		return nil
	}

	contentType, err := hex.DecodeString(t.ContentTypeHex)
	if err != nil {
		return nil
	}
	normalized := strings.ToLower(string(contentType))
	if idx := strings.IndexByte(normalized, ';'); idx >= 0 {
		normalized = normalized[:idx]
	}
	if normalized != "text/plain" && normalized != "application/json" {
		return nil
	}

	var c content
	if err := json.Unmarshal(bytes.TrimSpace(t.Content), &c); err != nil {
		return nil
	}
	if c.Proto != protocolMarker || c.Tick == "" {
		return nil
	}

	switch c.Operation {
	case "deploy":
		return ix.deploy(w, t, c, height)
	case "mint":
		return ix.mint(w, t, c)
	case "transfer":
		return ix.transferInscribe(w, t, c)
	default:
		return nil
	}
}

func (ix *Indexer) deploy(w *blockWork, t store.Transfer, c content, height int64) error {
	originalTick := c.Tick
	tick := strings.ToLower(originalTick)
	tickLen := len([]byte(originalTick))
	if tickLen != 4 && tickLen != 5 {
		return nil
	}
	if tickLen == 5 && height < config.SelfMintEnableHeight {
		return nil
	}
	if ix.network != config.Mainnet && tickLen == 5 {
		return nil // self-mint is a mainnet-only activation (§2 Non-goals)
	}

	isSelfMint := false
	if tickLen == 5 {
		if c.SelfMint == nil || *c.SelfMint != "true" {
			return nil
		}
		isSelfMint = true
	}

	if _, exists := w.caches.tickers[tick]; exists {
		return nil
	}

	decimals := 18
	if c.Decimals != nil {
		if !numeric.IsPositiveNumber(*c.Decimals) {
			return nil
		}
		d, ok := new(big.Int).SetString(*c.Decimals, 10)
		if !ok || !d.IsInt64() || d.Int64() < 0 || d.Int64() > 18 {
			return nil
		}
		decimals = int(d.Int64())
	}

	// "max" is mandatory on every deploy, including self-mint ones: the
	// unlimited-supply request is spelled as an explicit "max":"0", never
	// an absent field.
	if c.Max == nil {
		return nil
	}
	if !numeric.IsPositiveNumberWithDot(*c.Max) {
		return nil
	}
	maxSupply := numeric.ToFixedPoint(*c.Max, decimals)
	if maxSupply == nil || !numeric.InRange(maxSupply, true) {
		return nil
	}

	selfMintMaxRewritten := false
	if isSelfMint && maxSupply.Sign() == 0 {
		maxSupply = new(big.Int).Set(numeric.MaxFixedPoint)
		selfMintMaxRewritten = true
	}
	if maxSupply.Sign() == 0 {
		return nil
	}

	limitPerMint := new(big.Int).Set(maxSupply)
	if c.Limit != nil {
		if !numeric.IsPositiveNumberWithDot(*c.Limit) {
			return nil
		}
		limitPerMint = numeric.ToFixedPoint(*c.Limit, decimals)
		if limitPerMint == nil || !numeric.InRange(limitPerMint, true) {
			return nil
		}
		// "replace max and lim==0" (§4.2): an explicit lim=0 rides the same
		// unlimited-supply rewrite as max, but only when max's own zero
		// actually triggered it — a plain lim=0 on a non-rewritten deploy
		// is still invalid.
		if limitPerMint.Sign() == 0 {
			if !selfMintMaxRewritten {
				return nil
			}
			limitPerMint = new(big.Int).Set(numeric.MaxFixedPoint)
		}
	}

	w.deployInscribe(t.InscriptionID, t.NewPkScript, t.NewWallet, tick, originalTick, maxSupply, decimals, limitPerMint, isSelfMint)
	return nil
}

func (ix *Indexer) mint(w *blockWork, t store.Transfer, c content) error {
	tick := strings.ToLower(c.Tick)
	tk, exists := w.caches.tickers[tick]
	if !exists {
		return nil
	}
	if c.Amount == nil || !numeric.IsPositiveNumberWithDot(*c.Amount) {
		return nil
	}
	amount := numeric.ToFixedPoint(*c.Amount, tk.decimals)
	if amount == nil || !numeric.InRange(amount, false) {
		return nil
	}

	if tk.isSelfMint && t.ParentID != tk.deployInscriptionID {
		return nil
	}

	if amount.Cmp(tk.limitPerMint) > 0 {
		return nil
	}
	if tk.remainingSupply.Sign() <= 0 {
		return nil
	}
	if amount.Cmp(tk.remainingSupply) > 0 {
		amount = new(big.Int).Set(tk.remainingSupply)
	}

	return w.mintInscribe(t.InscriptionID, t.NewPkScript, t.NewWallet, tick, tk.originalTick, amount, t.ParentID, tk.decimals)
}

func (ix *Indexer) transferInscribe(w *blockWork, t store.Transfer, c content) error {
	tick := strings.ToLower(c.Tick)
	tk, exists := w.caches.tickers[tick]
	if !exists {
		return nil
	}
	if c.Amount == nil || !numeric.IsPositiveNumberWithDot(*c.Amount) {
		return nil
	}
	amount := numeric.ToFixedPoint(*c.Amount, tk.decimals)
	if amount == nil || !numeric.InRange(amount, false) {
		return nil
	}

	ok, err := w.checkAvailableBalance(t.NewPkScript, tick, amount)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	return w.transferInscribe(t.InscriptionID, t.NewPkScript, t.NewWallet, tick, tk.originalTick, amount, tk.decimals)
}

// handleTransfer dispatches an existing inscription changing hands to the
// transfer-transfer state, consuming a previously reserved
// transfer-inscribe. Inscriptions with no valid pending reservation
// (never transfer-inscribed, or already spent) are ignored.
func (ix *Indexer) handleTransfer(w *blockWork, t store.Transfer) error {
	if w.caches.transferValidity[t.InscriptionID] != transferValid {
		return nil
	}

	inscribeEvent := w.caches.transferInscribes[t.InscriptionID]
	tick := inscribeEvent.tick
	tk, exists := w.caches.tickers[tick]
	if !exists {
		return nil
	}
	amount := inscribeEvent.amount
	originalTick := tk.originalTick

	if t.SentAsFee {
		return w.transferTransferSpendToFee(t.InscriptionID, tick, originalTick, amount, t.ID, tk.decimals)
	}
	return w.transferTransferNormal(t.InscriptionID, t.NewPkScript, t.NewWallet, tick, originalTick, amount, t.ID, tk.decimals)
}

// ResidueHeights reports the maximum block_height across every
// BRC-20-owned table, for crash-recovery residue detection.
func (ix *Indexer) ResidueHeights(ctx context.Context, db *sql.DB) ([]int64, error) {
	tables := []string{"brc20_tickers", "brc20_events", "brc20_historic_balances"}
	heights := make([]int64, 0, len(tables))
	for _, table := range tables {
		var h sql.NullInt64
		err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT max(block_height) FROM %s`, table)).Scan(&h)
		if err != nil {
			return nil, fmt.Errorf("residue height for %s: %w", table, err)
		}
		if h.Valid {
			heights = append(heights, h.Int64)
		} else {
			heights = append(heights, -1)
		}
	}
	return heights, nil
}

// RollbackAbove deletes every BRC-20 row committed above height,
// re-crediting remaining_supply for reverted mints and reverting
// burned_supply for reverted burns, mirroring reorg_fix.
func (ix *Indexer) RollbackAbove(ctx context.Context, tx *sql.Tx, height int64) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT event->>'tick', event->>'amount' FROM brc20_events
		WHERE event_type = $1 AND block_height > $2
	`, EventTypeMintInscribe, height)
	if err != nil {
		return fmt.Errorf("query reverted mints: %w", err)
	}
	reCredit := make(map[string]*big.Int)
	for rows.Next() {
		var tick, amountStr string
		if err := rows.Scan(&tick, &amountStr); err != nil {
			rows.Close()
			return err
		}
		amount, ok := new(big.Int).SetString(amountStr, 10)
		if !ok {
			rows.Close()
			return fmt.Errorf("non-numeric reverted mint amount %q", amountStr)
		}
		if cur, ok := reCredit[tick]; ok {
			cur.Add(cur, amount)
		} else {
			reCredit[tick] = amount
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	burnRows, err := tx.QueryContext(ctx, `
		SELECT event->>'tick', event->>'amount' FROM brc20_events
		WHERE event_type = $1 AND block_height > $2 AND event->>'spent_pkScript' = $3
	`, EventTypeTransferTransfer, height, opReturnPkScript)
	if err != nil {
		return fmt.Errorf("query reverted burns: %w", err)
	}
	reDebitBurn := make(map[string]*big.Int)
	for burnRows.Next() {
		var tick, amountStr string
		if err := burnRows.Scan(&tick, &amountStr); err != nil {
			burnRows.Close()
			return err
		}
		amount, ok := new(big.Int).SetString(amountStr, 10)
		if !ok {
			burnRows.Close()
			return fmt.Errorf("non-numeric reverted burn amount %q", amountStr)
		}
		if cur, ok := reDebitBurn[tick]; ok {
			cur.Add(cur, amount)
		} else {
			reDebitBurn[tick] = amount
		}
	}
	if err := burnRows.Err(); err != nil {
		burnRows.Close()
		return err
	}
	burnRows.Close()

	for tick, amount := range reCredit {
		if _, err := tx.ExecContext(ctx,
			`UPDATE brc20_tickers SET remaining_supply = remaining_supply + $1 WHERE tick = $2`,
			amount.String(), tick,
		); err != nil {
			return fmt.Errorf("re-credit remaining_supply for %s: %w", tick, err)
		}
	}
	for tick, amount := range reDebitBurn {
		if _, err := tx.ExecContext(ctx,
			`UPDATE brc20_tickers SET burned_supply = burned_supply - $1 WHERE tick = $2`,
			amount.String(), tick,
		); err != nil {
			return fmt.Errorf("revert burned_supply for %s: %w", tick, err)
		}
	}

	for _, table := range []string{"brc20_historic_balances", "brc20_events", "brc20_tickers"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE block_height > $1`, table), height,
		); err != nil {
			return fmt.Errorf("rollback %s above %d: %w", table, height, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		SELECT setval(pg_get_serial_sequence('brc20_events', 'id'), COALESCE((SELECT max(id) FROM brc20_events), 1))
	`); err != nil {
		return fmt.Errorf("reset brc20_events sequence: %w", err)
	}

	return nil
}

// WarmCaches reloads the in-memory ticker table and the set of
// transfer-inscribe events with no matching transfer-transfer yet
// (valid, unconsumed reservations), mirroring reset_caches.
func (ix *Indexer) WarmCaches(ctx context.Context, db *sql.DB) error {
	ix.caches.reset()
	ix.caches.tickers = make(map[string]*ticker)

	rows, err := db.QueryContext(ctx, `
		SELECT tick, original_tick, remaining_supply, limit_per_mint, decimals, is_self_mint, deploy_inscription_id
		FROM brc20_tickers
	`)
	if err != nil {
		return fmt.Errorf("load tickers: %w", err)
	}
	for rows.Next() {
		var tick, originalTick, remaining, limit, deployID string
		var decimals int
		var isSelfMint bool
		if err := rows.Scan(&tick, &originalTick, &remaining, &limit, &decimals, &isSelfMint, &deployID); err != nil {
			rows.Close()
			return err
		}
		remainingSupply, _ := new(big.Int).SetString(remaining, 10)
		limitPerMint, _ := new(big.Int).SetString(limit, 10)
		ix.caches.tickers[tick] = &ticker{
			remainingSupply: remainingSupply, limitPerMint: limitPerMint, decimals: decimals,
			isSelfMint: isSelfMint, deployInscriptionID: deployID, originalTick: originalTick,
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	pending, err := db.QueryContext(ctx, `
		SELECT e.inscription_id, e.event->>'source_pkScript', e.event->>'source_wallet',
		       e.event->>'tick', e.event->>'amount'
		FROM brc20_events e
		WHERE e.event_type = $1
		AND NOT EXISTS (
			SELECT 1 FROM brc20_events e2
			WHERE e2.event_type = $2 AND e2.inscription_id = e.inscription_id
		)
	`, EventTypeTransferInscribe, EventTypeTransferTransfer)
	if err != nil {
		return fmt.Errorf("load pending transfer-inscribes: %w", err)
	}
	defer pending.Close()
	for pending.Next() {
		var inscriptionID, sourcePkScript, sourceWallet, tick, amountStr string
		if err := pending.Scan(&inscriptionID, &sourcePkScript, &sourceWallet, &tick, &amountStr); err != nil {
			return err
		}
		amount, _ := new(big.Int).SetString(amountStr, 10)
		ix.caches.transferInscribes[inscriptionID] = transferInscribeEvent{
			sourcePkScript: sourcePkScript, sourceWallet: sourceWallet, tick: tick, amount: amount,
		}
		ix.caches.transferValidity[inscriptionID] = transferValid
	}
	return pending.Err()
}

func queryMaxEventID(ctx context.Context, tx *sql.Tx) (int64, error) {
	var id sql.NullInt64
	err := tx.QueryRowContext(ctx, `SELECT max(id) FROM brc20_events`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("query max event id: %w", err)
	}
	if !id.Valid {
		return 0, nil
	}
	return id.Int64, nil
}

// flush writes one block's accumulated mutations within tx, one INSERT
// or UPDATE statement per row; event rows are walked in chunks of
// batchSize, but each row is still sent as its own statement.
func flush(ctx context.Context, tx *sql.Tx, w *blockWork) error {
	for start := 0; start < len(w.eventRows); start += batchSize {
		end := start + batchSize
		if end > len(w.eventRows) {
			end = len(w.eventRows)
		}
		for _, r := range w.eventRows[start:end] {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO brc20_events (id, event_type, block_height, inscription_id, event)
				VALUES ($1, $2, $3, $4, $5)
			`, r.id, r.eventType, r.blockHeight, r.inscriptionID, r.payload); err != nil {
				return fmt.Errorf("insert brc20_events: %w", err)
			}
		}
	}

	for _, r := range w.tickerRows {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO brc20_tickers
				(original_tick, tick, max_supply, decimals, limit_per_mint, remaining_supply, burned_supply, is_self_mint, deploy_inscription_id, block_height)
			VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9)
		`, r.originalTick, r.tick, r.maxSupply.String(), r.decimals, r.limitPerMint.String(), r.maxSupply.String(), r.isSelfMint, r.deployInscriptionID, r.blockHeight); err != nil {
			return fmt.Errorf("insert brc20_tickers: %w", err)
		}
	}

	for _, r := range w.balanceRows {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO brc20_historic_balances
				(pkscript, wallet, tick, overall_balance, available_balance, block_height, event_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, r.pkScript, r.wallet, r.tick, r.overall.String(), r.available.String(), r.blockHeight, r.eventID); err != nil {
			return fmt.Errorf("insert brc20_historic_balances: %w", err)
		}
	}

	for tick, delta := range w.remainingDelta {
		if _, err := tx.ExecContext(ctx,
			`UPDATE brc20_tickers SET remaining_supply = remaining_supply - $1 WHERE tick = $2`,
			delta.String(), tick,
		); err != nil {
			return fmt.Errorf("debit remaining_supply for %s: %w", tick, err)
		}
	}
	for tick, delta := range w.burnedDelta {
		if _, err := tx.ExecContext(ctx,
			`UPDATE brc20_tickers SET burned_supply = burned_supply + $1 WHERE tick = $2`,
			delta.String(), tick,
		); err != nil {
			return fmt.Errorf("credit burned_supply for %s: %w", tick, err)
		}
	}

	return nil
}
