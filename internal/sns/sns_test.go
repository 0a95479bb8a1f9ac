package sns

import (
	"context"
	"database/sql"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bestinslot-xyz/OPI/internal/config"
	"github.com/bestinslot-xyz/OPI/internal/store"
)

// fakeUpstream implements store.Upstream with only ContentForBlock wired
// up; IndexBlock never touches the other methods or the *sql.Tx it is
// given for a row that is skipped before any query is issued.
type fakeUpstream struct {
	contents []store.Content
}

func (f *fakeUpstream) NetworkType(ctx context.Context) (string, error)            { return "", nil }
func (f *fakeUpstream) MaxTransferCount(ctx context.Context, t string) (int, error) { return 0, nil }
func (f *fakeUpstream) Tip(ctx context.Context) (int64, error)                     { return 0, nil }
func (f *fakeUpstream) BlockHash(ctx context.Context, height int64) (string, error) { return "", nil }
func (f *fakeUpstream) TransfersForBlock(ctx context.Context, height int64) ([]store.Transfer, error) {
	return nil, nil
}
func (f *fakeUpstream) ContentForBlock(ctx context.Context, height int64) ([]store.Content, error) {
	return f.contents, nil
}

func hexEncode(s string) string { return hex.EncodeToString([]byte(s)) }

func TestFirstTokenTakesFirstWhitespaceDelimitedTokenLowercased(t *testing.T) {
	tok, ok := firstToken("Satoshi.sats extra stuff")
	require.True(t, ok)
	require.Equal(t, "satoshi.sats", tok)
}

func TestFirstTokenRejectsNULByte(t *testing.T) {
	_, ok := firstToken("sat\x00oshi.sats")
	require.False(t, ok)
}

func TestFirstTokenRejectsOverLongToken(t *testing.T) {
	huge := make([]byte, maxNameBytes+1)
	for i := range huge {
		huge[i] = 'a'
	}
	_, ok := firstToken(string(huge))
	require.False(t, ok)
}

func TestFirstTokenRejectsEmptyInput(t *testing.T) {
	_, ok := firstToken("   ")
	require.False(t, ok)
}

// TestFirstTokenAcceptsUnderscoreAndUnregisteredDomain proves name
// parsing has no character whitelist and no namespace-existence
// dependency: a label with an underscore under a domain nobody ever
// registered as a namespace tokenizes the same as any other name.
func TestFirstTokenAcceptsUnderscoreAndUnregisteredDomain(t *testing.T) {
	name, ok := firstToken("Bit_coin.xyz")
	require.True(t, ok)
	require.Equal(t, "bit_coin.xyz", name)
	require.Equal(t, 1, strings.Count(name, "."))
}

// TestFirstTokenKeepsDotForNamespaceCheck shows that firstToken itself
// accepts a dotted "ns" payload and keeps the dot, so registerNamespace's
// namespace.count('.') != 0 check sees it and rejects the payload before
// it reaches the claim insert.
func TestFirstTokenKeepsDotForNamespaceCheck(t *testing.T) {
	namespace, ok := firstToken("foo.bar")
	require.True(t, ok)
	require.NotEqual(t, 0, strings.Count(namespace, "."))
}

// TestIndexBlockSkipsNonTextNonJSONContentType exercises the content-type
// admission gate (§4.4): a row whose bytes parse as valid SNS JSON5 but
// whose declared content-type is neither text/plain* nor application/json*
// must be skipped outright. It is given a nil *sql.Tx to prove the row
// never reaches the namespace/name claim path, which would panic on a nil
// tx if the gate were missing.
func TestIndexBlockSkipsNonTextNonJSONContentType(t *testing.T) {
	ix := NewIndexer(config.Mainnet)
	upstream := &fakeUpstream{
		contents: []store.Content{
			{
				InscriptionID:     "abc123i0",
				TextContent:       `{"p":"sns","op":"reg","name":"satoshi.sats"}`,
				ContentTypeHex:    hexEncode("application/octet-stream"),
				InscriptionNumber: 1,
			},
		},
	}

	var tx *sql.Tx
	events, err := ix.IndexBlock(context.Background(), tx, upstream, 1)
	require.NoError(t, err)
	require.Empty(t, events)
}
