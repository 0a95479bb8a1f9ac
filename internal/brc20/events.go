package brc20

import (
	"fmt"
	"math/big"

	"github.com/bestinslot-xyz/OPI/internal/numeric"
)

// Event type ids persisted in brc20_events.event_type, stable across the
// lifetime of the database (mirrors brc20_event_types).
const (
	EventTypeDeployInscribe   = 1
	EventTypeMintInscribe     = 2
	EventTypeTransferInscribe = 3
	EventTypeTransferTransfer = 4
)

// deployInscribeEvent is the JSON payload persisted for a deploy.
type deployInscribeEvent struct {
	DeployerPkScript string `json:"deployer_pkScript"`
	DeployerWallet   string `json:"deployer_wallet"`
	Tick             string `json:"tick"`
	OriginalTick     string `json:"original_tick"`
	MaxSupply        string `json:"max_supply"`
	Decimals         string `json:"decimals"`
	LimitPerMint     string `json:"limit_per_mint"`
	IsSelfMint       string `json:"is_self_mint"`
}

func deployEventString(e deployInscribeEvent, inscriptionID string, decimals int) string {
	return "deploy-inscribe;" + inscriptionID + ";" +
		e.DeployerPkScript + ";" +
		e.Tick + ";" +
		e.OriginalTick + ";" +
		fixNumStr(e.MaxSupply, decimals) + ";" +
		e.Decimals + ";" +
		fixNumStr(e.LimitPerMint, decimals) + ";" +
		e.IsSelfMint
}

// mintInscribeEvent is the JSON payload persisted for a mint.
type mintInscribeEvent struct {
	MintedPkScript string `json:"minted_pkScript"`
	MintedWallet   string `json:"minted_wallet"`
	Tick           string `json:"tick"`
	OriginalTick   string `json:"original_tick"`
	Amount         string `json:"amount"`
	ParentID       string `json:"parent_id"`
}

func mintEventString(e mintInscribeEvent, inscriptionID string, decimals int) string {
	return "mint-inscribe;" + inscriptionID + ";" +
		e.MintedPkScript + ";" +
		e.Tick + ";" +
		e.OriginalTick + ";" +
		fixNumStr(e.Amount, decimals) + ";" +
		e.ParentID
}

// transferInscribePayload is the JSON payload persisted for a
// transfer-inscribe.
type transferInscribePayload struct {
	SourcePkScript string `json:"source_pkScript"`
	SourceWallet   string `json:"source_wallet"`
	Tick           string `json:"tick"`
	OriginalTick   string `json:"original_tick"`
	Amount         string `json:"amount"`
}

func transferInscribeEventString(e transferInscribePayload, inscriptionID string, decimals int) string {
	return "transfer-inscribe;" + inscriptionID + ";" +
		e.SourcePkScript + ";" +
		e.Tick + ";" +
		e.OriginalTick + ";" +
		fixNumStr(e.Amount, decimals)
}

// transferTransferPayload is the JSON payload persisted for a
// transfer-transfer (both the normal and spend-to-fee paths).
type transferTransferPayload struct {
	SourcePkScript string  `json:"source_pkScript"`
	SourceWallet   string  `json:"source_wallet"`
	SpentPkScript  *string `json:"spent_pkScript"`
	SpentWallet    *string `json:"spent_wallet"`
	Tick           string  `json:"tick"`
	OriginalTick   string  `json:"original_tick"`
	Amount         string  `json:"amount"`
	UsingTxID      string  `json:"using_tx_id"`
}

func transferTransferEventString(e transferTransferPayload, inscriptionID string, decimals int) string {
	res := "transfer-transfer;" + inscriptionID + ";" + e.SourcePkScript + ";"
	if e.SpentPkScript != nil {
		res += *e.SpentPkScript
	}
	res += ";" + e.Tick + ";" + e.OriginalTick + ";" + fixNumStr(e.Amount, decimals)
	return res
}

func fixNumStr(s string, decimals int) string {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		// Every caller only ever formats amounts it produced itself via
		// big.Int.String(), so this indicates a programming error, not
		// bad input data.
		panic(fmt.Sprintf("brc20: non-numeric event amount %q", s))
	}
	return numeric.FixNumStrDecimals(n, decimals)
}
