package store

// Transfer is one row of the upstream ord_transfers stream, joined against
// ord_content and ord_number_to_id, in the shape the BRC-20 state machine
// consumes.
type Transfer struct {
	ID                int64
	InscriptionID     string
	OldSatpoint       string
	NewPkScript       string
	NewWallet         string
	SentAsFee         bool
	BlockHeight       int64
	Content           []byte // raw JSON content, when content_type is JSON
	TextContent       string
	ContentTypeHex    string
	InscriptionNumber int64
	ParentID          string
	CursedForBRC20    bool
}

// Content is one row of the upstream ord_content stream, ordered by
// ascending inscription_number, the shape the bitmap and SNS engines
// consume (they are not driven by transfer activity).
type Content struct {
	InscriptionID     string
	Content           []byte
	TextContent       string
	ContentTypeHex    string
	InscriptionNumber int64
	ParentID          string
}

// BlockAnchor records the upstream block hash at a given height.
type BlockAnchor struct {
	BlockHeight int64
	BlockHash   string
}
