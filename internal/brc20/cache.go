package brc20

import "math/big"

// ticker is the in-memory mirror of a brc20_tickers row, keyed by
// normalized tick. Field order mirrors the reference implementation's
// list-shaped cache entry (remaining_supply, limit_per_mint, decimals,
// is_self_mint, deploy_inscription_id) to keep the two implementations
// easy to cross-check.
type ticker struct {
	remainingSupply     *big.Int
	limitPerMint        *big.Int
	decimals            int
	isSelfMint          bool
	deployInscriptionID string
	originalTick        string
}

// balance is the in-memory mirror of the latest brc20_historic_balances
// row for one (pkScript, tick) pair.
type balance struct {
	overall   *big.Int
	available *big.Int
}

// transferInscribeEvent is the cached payload of a not-yet-consumed
// transfer-inscribe event, looked up by inscription id when its matching
// transfer-transfer is processed.
type transferInscribeEvent struct {
	sourcePkScript string
	sourceWallet   string
	tick           string
	amount         *big.Int
}

// transferValidity tracks whether an inscription's transfer-inscribe has
// been seen and, if so, whether it has already been consumed.
type transferValidity int8

const (
	transferInvalid transferValidity = 0 // no transfer-inscribe event exists
	transferUsed    transferValidity = -1
	transferValid   transferValidity = 1
)

// caches holds the process-wide mutable state invalidated on every
// rollback and warm-reloaded on demand (§5).
type caches struct {
	tickers               map[string]*ticker
	balances              map[string]*balance
	transferInscribes     map[string]transferInscribeEvent
	transferValidity      map[string]transferValidity
}

func newCaches() *caches {
	return &caches{
		tickers:           make(map[string]*ticker),
		balances:          make(map[string]*balance),
		transferInscribes: make(map[string]transferInscribeEvent),
		transferValidity:  make(map[string]transferValidity),
	}
}

func (c *caches) reset() {
	c.balances = make(map[string]*balance)
	c.transferInscribes = make(map[string]transferInscribeEvent)
	c.transferValidity = make(map[string]transferValidity)
}

func balanceCacheKey(pkScript, tick string) string {
	return pkScript + "\x00" + tick
}
