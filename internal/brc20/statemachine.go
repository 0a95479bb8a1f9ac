package brc20

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
)

// eventRow is a pending brc20_events insert.
type eventRow struct {
	id            int64
	eventType     int
	blockHeight   int64
	inscriptionID string
	payload       []byte
}

// tickerRow is a pending brc20_tickers insert.
type tickerRow struct {
	tick                string
	originalTick        string
	maxSupply           *big.Int
	decimals            int
	limitPerMint        *big.Int
	blockHeight         int64
	isSelfMint          bool
	deployInscriptionID string
}

// historicBalanceRow is a pending brc20_historic_balances insert.
type historicBalanceRow struct {
	pkScript    string
	wallet      string
	tick        string
	overall     *big.Int
	available   *big.Int
	blockHeight int64
	eventID     int64
}

// blockWork accumulates one block's worth of mutations before they are
// flushed to the store in a single transaction, mirroring the reference
// implementation's batch-insert caches (brc20_events_insert_cache etc.).
// Balances not yet in the in-memory cache are lazily pulled from the most
// recent brc20_historic_balances row, since the cache only ever holds
// entries touched since the last warm reload.
type blockWork struct {
	ctx context.Context
	tx  *sql.Tx

	caches *caches

	blockHeight int64
	nextEventID int64

	events []string

	eventRows      []eventRow
	tickerRows     []tickerRow
	balanceRows    []historicBalanceRow
	remainingDelta map[string]*big.Int
	burnedDelta    map[string]*big.Int
}

func newBlockWork(ctx context.Context, tx *sql.Tx, c *caches, blockHeight, startEventID int64) *blockWork {
	return &blockWork{
		ctx:            ctx,
		tx:             tx,
		caches:         c,
		blockHeight:    blockHeight,
		nextEventID:    startEventID + 1,
		remainingDelta: make(map[string]*big.Int),
		burnedDelta:    make(map[string]*big.Int),
	}
}

func (w *blockWork) allocEventID() int64 {
	id := w.nextEventID
	w.nextEventID++
	return id
}

// loadBalance returns the cached balance for (pkScript, tick), pulling it
// from the most recent brc20_historic_balances row on a cache miss.
func (w *blockWork) loadBalance(pkScript, tick string) (*balance, error) {
	key := balanceCacheKey(pkScript, tick)
	if b, ok := w.caches.balances[key]; ok {
		return b, nil
	}

	var overall, available string
	err := w.tx.QueryRowContext(w.ctx, `
		SELECT overall_balance, available_balance FROM brc20_historic_balances
		WHERE pkscript = $1 AND tick = $2
		ORDER BY id DESC LIMIT 1
	`, pkScript, tick).Scan(&overall, &available)

	b := &balance{overall: big.NewInt(0), available: big.NewInt(0)}
	if err == nil {
		b.overall, _ = numericFromDecimalString(overall)
		b.available, _ = numericFromDecimalString(available)
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("load balance for %s/%s: %w", pkScript, tick, err)
	}

	w.caches.balances[key] = b
	return b, nil
}

func (w *blockWork) checkAvailableBalance(pkScript, tick string, amount *big.Int) (bool, error) {
	b, err := w.loadBalance(pkScript, tick)
	if err != nil {
		return false, err
	}
	return b.available.Cmp(amount) >= 0, nil
}

// deployInscribe implements the reference's deploy_inscribe: persist the
// new ticker and append its canonical event string.
func (w *blockWork) deployInscribe(inscriptionID, deployerPkScript, deployerWallet, tick, originalTick string, maxSupply *big.Int, decimals int, limitPerMint *big.Int, isSelfMint bool) {
	id := w.allocEventID()

	selfMintStr := "false"
	if isSelfMint {
		selfMintStr = "true"
	}

	ev := deployInscribeEvent{
		DeployerPkScript: deployerPkScript,
		DeployerWallet:   deployerWallet,
		Tick:             tick,
		OriginalTick:     originalTick,
		MaxSupply:        maxSupply.String(),
		Decimals:         itoa(decimals),
		LimitPerMint:     limitPerMint.String(),
		IsSelfMint:       selfMintStr,
	}
	w.events = append(w.events, deployEventString(ev, inscriptionID, decimals))

	payload, _ := json.Marshal(ev)
	w.eventRows = append(w.eventRows, eventRow{id, EventTypeDeployInscribe, w.blockHeight, inscriptionID, payload})

	w.tickerRows = append(w.tickerRows, tickerRow{
		tick: tick, originalTick: originalTick, maxSupply: new(big.Int).Set(maxSupply),
		decimals: decimals, limitPerMint: new(big.Int).Set(limitPerMint),
		blockHeight: w.blockHeight, isSelfMint: isSelfMint, deployInscriptionID: inscriptionID,
	})

	w.caches.tickers[tick] = &ticker{
		remainingSupply:     new(big.Int).Set(maxSupply),
		limitPerMint:        new(big.Int).Set(limitPerMint),
		decimals:            decimals,
		isSelfMint:          isSelfMint,
		deployInscriptionID: inscriptionID,
		originalTick:        originalTick,
	}
}

// mintInscribe implements mint_inscribe: credit the minter's balance and
// debit the ticker's remaining supply.
func (w *blockWork) mintInscribe(inscriptionID, mintedPkScript, mintedWallet, tick, originalTick string, amount *big.Int, parentID string, decimals int) error {
	id := w.allocEventID()

	ev := mintInscribeEvent{
		MintedPkScript: mintedPkScript,
		MintedWallet:   mintedWallet,
		Tick:           tick,
		OriginalTick:   originalTick,
		Amount:         amount.String(),
		ParentID:       parentID,
	}
	w.events = append(w.events, mintEventString(ev, inscriptionID, decimals))

	payload, _ := json.Marshal(ev)
	w.eventRows = append(w.eventRows, eventRow{id, EventTypeMintInscribe, w.blockHeight, inscriptionID, payload})

	if cur, ok := w.remainingDelta[tick]; ok {
		cur.Add(cur, amount)
	} else {
		w.remainingDelta[tick] = new(big.Int).Set(amount)
	}

	b, err := w.loadBalance(mintedPkScript, tick)
	if err != nil {
		return err
	}
	b.overall.Add(b.overall, amount)
	b.available.Add(b.available, amount)
	w.balanceRows = append(w.balanceRows, historicBalanceRow{
		pkScript: mintedPkScript, wallet: mintedWallet, tick: tick,
		overall: new(big.Int).Set(b.overall), available: new(big.Int).Set(b.available),
		blockHeight: w.blockHeight, eventID: id,
	})

	w.caches.tickers[tick].remainingSupply.Sub(w.caches.tickers[tick].remainingSupply, amount)
	return nil
}

// transferInscribe implements transfer_inscribe: reserve the sender's
// available balance and cache the event for the later transfer-transfer.
func (w *blockWork) transferInscribe(inscriptionID, sourcePkScript, sourceWallet, tick, originalTick string, amount *big.Int, decimals int) error {
	id := w.allocEventID()

	ev := transferInscribePayload{
		SourcePkScript: sourcePkScript, SourceWallet: sourceWallet,
		Tick: tick, OriginalTick: originalTick, Amount: amount.String(),
	}
	w.events = append(w.events, transferInscribeEventString(ev, inscriptionID, decimals))

	payload, _ := json.Marshal(ev)
	w.eventRows = append(w.eventRows, eventRow{id, EventTypeTransferInscribe, w.blockHeight, inscriptionID, payload})

	w.caches.transferValidity[inscriptionID] = transferValid

	b, err := w.loadBalance(sourcePkScript, tick)
	if err != nil {
		return err
	}
	b.available.Sub(b.available, amount)
	w.balanceRows = append(w.balanceRows, historicBalanceRow{
		pkScript: sourcePkScript, wallet: sourceWallet, tick: tick,
		overall: new(big.Int).Set(b.overall), available: new(big.Int).Set(b.available),
		blockHeight: w.blockHeight, eventID: id,
	})

	w.caches.transferInscribes[inscriptionID] = transferInscribeEvent{
		sourcePkScript: sourcePkScript, sourceWallet: sourceWallet,
		tick: tick, amount: new(big.Int).Set(amount),
	}
	return nil
}

// transferTransferNormal implements transfer_transfer_normal: settle the
// reservation between source and receiver, crediting burned_supply when
// the receiver is the OP_RETURN script.
func (w *blockWork) transferTransferNormal(inscriptionID, spentPkScript, spentWallet, tick, originalTick string, amount *big.Int, usingTxID int64, decimals int) error {
	inscribeEvent := w.caches.transferInscribes[inscriptionID]
	delete(w.caches.transferInscribes, inscriptionID)
	sourcePkScript := inscribeEvent.sourcePkScript
	sourceWallet := inscribeEvent.sourceWallet

	id := w.allocEventID()

	spentPk := spentPkScript
	spentWl := spentWallet
	ev := transferTransferPayload{
		SourcePkScript: sourcePkScript, SourceWallet: sourceWallet,
		SpentPkScript: &spentPk, SpentWallet: &spentWl,
		Tick: tick, OriginalTick: originalTick, Amount: amount.String(),
		UsingTxID: itoa64(usingTxID),
	}
	w.events = append(w.events, transferTransferEventString(ev, inscriptionID, decimals))

	payload, _ := json.Marshal(ev)
	w.eventRows = append(w.eventRows, eventRow{id, EventTypeTransferTransfer, w.blockHeight, inscriptionID, payload})

	w.caches.transferValidity[inscriptionID] = transferUsed

	source, err := w.loadBalance(sourcePkScript, tick)
	if err != nil {
		return err
	}
	source.overall.Sub(source.overall, amount)
	w.balanceRows = append(w.balanceRows, historicBalanceRow{
		pkScript: sourcePkScript, wallet: sourceWallet, tick: tick,
		overall: new(big.Int).Set(source.overall), available: new(big.Int).Set(source.available),
		blockHeight: w.blockHeight, eventID: id,
	})

	receiver, err := w.loadBalance(spentPkScript, tick)
	if err != nil {
		return err
	}
	receiver.overall.Add(receiver.overall, amount)
	receiver.available.Add(receiver.available, amount)
	w.balanceRows = append(w.balanceRows, historicBalanceRow{
		pkScript: spentPkScript, wallet: spentWallet, tick: tick,
		overall: new(big.Int).Set(receiver.overall), available: new(big.Int).Set(receiver.available),
		blockHeight: w.blockHeight, eventID: -id, // negated: credit side of a same-event pair
	})

	if spentPkScript == opReturnPkScript {
		if cur, ok := w.burnedDelta[tick]; ok {
			cur.Add(cur, amount)
		} else {
			w.burnedDelta[tick] = new(big.Int).Set(amount)
		}
	}
	return nil
}

// transferTransferSpendToFee implements transfer_transfer_spend_to_fee:
// release the reservation back to the source without any receiver.
func (w *blockWork) transferTransferSpendToFee(inscriptionID, tick, originalTick string, amount *big.Int, usingTxID int64, decimals int) error {
	inscribeEvent := w.caches.transferInscribes[inscriptionID]
	delete(w.caches.transferInscribes, inscriptionID)
	sourcePkScript := inscribeEvent.sourcePkScript
	sourceWallet := inscribeEvent.sourceWallet

	id := w.allocEventID()

	ev := transferTransferPayload{
		SourcePkScript: sourcePkScript, SourceWallet: sourceWallet,
		SpentPkScript: nil, SpentWallet: nil,
		Tick: tick, OriginalTick: originalTick, Amount: amount.String(),
		UsingTxID: itoa64(usingTxID),
	}
	w.events = append(w.events, transferTransferEventString(ev, inscriptionID, decimals))

	payload, _ := json.Marshal(ev)
	w.eventRows = append(w.eventRows, eventRow{id, EventTypeTransferTransfer, w.blockHeight, inscriptionID, payload})

	w.caches.transferValidity[inscriptionID] = transferUsed

	source, err := w.loadBalance(sourcePkScript, tick)
	if err != nil {
		return err
	}
	source.available.Add(source.available, amount)
	w.balanceRows = append(w.balanceRows, historicBalanceRow{
		pkScript: sourcePkScript, wallet: sourceWallet, tick: tick,
		overall: new(big.Int).Set(source.overall), available: new(big.Int).Set(source.available),
		blockHeight: w.blockHeight, eventID: id,
	})
	return nil
}

// opReturnPkScript is the canonical hex encoding of a bare OP_RETURN
// script, the conventional burn address checked against the receiving
// pkScript of a transfer-transfer.
const opReturnPkScript = "6a"

func numericFromDecimalString(s string) (*big.Int, error) {
	// brc20_historic_balances stores amounts as numeric(78,0)-compatible
	// strings at full 18-decimal scale; pgx returns them unquoted.
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("non-numeric stored balance %q", s)
	}
	return n, nil
}

func itoa(n int) string {
	return itoa64(int64(n))
}

func itoa64(n int64) string {
	return new(big.Int).SetInt64(n).String()
}
