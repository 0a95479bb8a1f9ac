package brc20

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBalanceCacheKeyDistinguishesTickAndPkScript(t *testing.T) {
	a := balanceCacheKey("pk1", "ordi")
	b := balanceCacheKey("pk1", "sats")
	c := balanceCacheKey("pk2", "ordi")
	require.NotEqual(t, a, b)
	require.NotEqual(t, a, c)
}

func TestCacheResetKeepsTickersClearsRest(t *testing.T) {
	c := newCaches()
	c.tickers["ordi"] = &ticker{remainingSupply: big.NewInt(1), limitPerMint: big.NewInt(1)}
	c.balances[balanceCacheKey("pk", "ordi")] = &balance{overall: big.NewInt(5), available: big.NewInt(5)}
	c.transferInscribes["i1i0"] = transferInscribeEvent{sourcePkScript: "pk"}
	c.transferValidity["i1i0"] = transferValid

	c.reset()

	require.Contains(t, c.tickers, "ordi")
	require.Empty(t, c.balances)
	require.Empty(t, c.transferInscribes)
	require.Empty(t, c.transferValidity)
}

func TestTransferValidityConstants(t *testing.T) {
	require.EqualValues(t, 0, transferInvalid)
	require.EqualValues(t, -1, transferUsed)
	require.EqualValues(t, 1, transferValid)
}
