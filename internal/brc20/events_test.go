package brc20

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeployEventString(t *testing.T) {
	ev := deployInscribeEvent{
		DeployerPkScript: "76a914...88ac",
		Tick:             "ordi",
		OriginalTick:     "ordi",
		MaxSupply:        "21000000000000000000000000",
		Decimals:         "18",
		LimitPerMint:     "1000000000000000000000",
		IsSelfMint:       "false",
	}
	got := deployEventString(ev, "i1i0", 18)
	require.Equal(t, "deploy-inscribe;i1i0;76a914...88ac;ordi;ordi;21000000;18;1000;false", got)
}

func TestMintEventString(t *testing.T) {
	ev := mintInscribeEvent{
		MintedPkScript: "76a914...88ac",
		Tick:           "ordi",
		OriginalTick:   "ordi",
		Amount:         "1000000000000000000000",
		ParentID:       "",
	}
	got := mintEventString(ev, "i2i0", 18)
	require.Equal(t, "mint-inscribe;i2i0;76a914...88ac;ordi;ordi;1000;", got)
}

func TestTransferInscribeEventString(t *testing.T) {
	ev := transferInscribePayload{
		SourcePkScript: "76a914...88ac",
		Tick:           "ordi",
		OriginalTick:   "ordi",
		Amount:         "500000000000000000000",
	}
	got := transferInscribeEventString(ev, "i3i0", 18)
	require.Equal(t, "transfer-inscribe;i3i0;76a914...88ac;ordi;ordi;500", got)
}

func TestTransferTransferEventStringNormal(t *testing.T) {
	spent := "76a914receiver88ac"
	spentWallet := "bc1receiver"
	ev := transferTransferPayload{
		SourcePkScript: "76a914source88ac",
		SpentPkScript:  &spent,
		SpentWallet:    &spentWallet,
		Tick:           "ordi",
		OriginalTick:   "ordi",
		Amount:         "500000000000000000000",
		UsingTxID:      "42",
	}
	got := transferTransferEventString(ev, "i3i0", 18)
	require.Equal(t, "transfer-transfer;i3i0;76a914source88ac;76a914receiver88ac;ordi;ordi;500", got)
}

func TestTransferTransferEventStringSpendToFee(t *testing.T) {
	ev := transferTransferPayload{
		SourcePkScript: "76a914source88ac",
		SpentPkScript:  nil,
		Tick:           "ordi",
		OriginalTick:   "ordi",
		Amount:         "500000000000000000000",
		UsingTxID:      "42",
	}
	got := transferTransferEventString(ev, "i3i0", 18)
	require.Equal(t, "transfer-transfer;i3i0;76a914source88ac;;ordi;ordi;500", got)
}

func TestFixNumStrPanicsOnNonNumeric(t *testing.T) {
	require.Panics(t, func() {
		fixNumStr("not-a-number", 18)
	})
}
