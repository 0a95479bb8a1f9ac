package hashchain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmptyBlockHash(t *testing.T) {
	b := NewBuilder()
	require.Equal(t, "", b.String())
	require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", BlockEventHash(b))
}

func TestCumulativeChainFirstBlock(t *testing.T) {
	b := NewBuilder()
	b.Add("deploy-inscribe;i1;A;ordi;ORDI;1000;18;10;false")
	blockHash := BlockEventHash(b)
	cum := CumulativeEventHash("", blockHash)
	require.Equal(t, blockHash, cum)
}

func TestCumulativeChainLinksForward(t *testing.T) {
	first := NewBuilder()
	first.Add("deploy-inscribe;i1;A;ordi;ORDI;1000;18;10;false")
	firstHash := BlockEventHash(first)
	firstCum := CumulativeEventHash("", firstHash)

	second := NewBuilder()
	second.Add("mint-inscribe;i2;B;ordi;ORDI;5;i1")
	secondHash := BlockEventHash(second)
	secondCum := CumulativeEventHash(firstCum, secondHash)

	require.Equal(t, SHA256Hex(firstCum+secondHash), secondCum)
	require.NotEqual(t, firstCum, secondCum)
}

func TestMultipleEventsJoinedBySeparator(t *testing.T) {
	b := NewBuilder()
	b.Add("a")
	b.Add("b")
	require.Equal(t, "a|b", b.String())
}
