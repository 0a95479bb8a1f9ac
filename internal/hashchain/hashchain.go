// Package hashchain builds the per-block event digest and links it into
// the cumulative chain shared by every protocol indexer.
package hashchain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// EventSeparator joins canonicalized event strings within a block.
const EventSeparator = "|"

// Builder accumulates canonicalized event strings for one block in
// processing order.
type Builder struct {
	events []string
}

// NewBuilder returns an empty event-string accumulator.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends a canonicalized event string to the block.
func (b *Builder) Add(event string) {
	b.events = append(b.events, event)
}

// Len reports how many events have been added so far.
func (b *Builder) Len() int {
	return len(b.events)
}

// String renders the block event sequence: events joined by
// EventSeparator, no trailing separator. An empty block renders "".
func (b *Builder) String() string {
	return strings.Join(b.events, EventSeparator)
}

// SHA256Hex returns the lowercase hex SHA-256 digest of s.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// BlockEventHash computes SHA256_hex(canonical_block_event_string).
func BlockEventHash(b *Builder) string {
	return SHA256Hex(b.String())
}

// CumulativeEventHash computes the next link in the chain. prevCumulative
// is the empty string for the first block in the chain, in which case the
// cumulative hash equals the block's own event hash.
func CumulativeEventHash(prevCumulative, blockEventHash string) string {
	if prevCumulative == "" {
		return blockEventHash
	}
	return SHA256Hex(prevCumulative + blockEventHash)
}
