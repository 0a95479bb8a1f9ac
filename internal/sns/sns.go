// Package sns implements the naming metaprotocol: namespace registration
// and name registration, first-valid-wins per name and per namespace.
// Content is parsed permissively with JSON5, matching the reference
// indexer's tolerance for trailing commas, comments and unquoted keys
// in hand-authored inscriptions.
package sns

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"

	"github.com/bestinslot-xyz/OPI/internal/config"
	"github.com/bestinslot-xyz/OPI/internal/store"
)

const (
	opRegisterName      = "reg"
	opRegisterNamespace = "ns"
)

// content is the permitted field set of an SNS JSON5 inscription. A
// name registration carries "name"; a namespace registration carries
// "ns" (§4.4).
type content struct {
	Proto     string `json:"p"`
	Operation string `json:"op"`
	Name      string `json:"name"`
	Namespace string `json:"ns"`
}

// Indexer implements replay.Protocol for SNS.
type Indexer struct {
	network config.NetworkType
}

func NewIndexer(network config.NetworkType) *Indexer {
	return &Indexer{network: network}
}

func (ix *Indexer) Name() string         { return "sns" }
func (ix *Indexer) MinTransferCount() int { return 0 }
func (ix *Indexer) FirstHeight() int64    { return config.FirstInscriptionHeight[ix.network] }

// IndexBlock parses every text/plain* or application/json* inscription
// first seen at height as SNS content and dispatches namespace and name
// registrations in arrival order (ContentForBlock is ordered by
// ascending inscription_number).
func (ix *Indexer) IndexBlock(ctx context.Context, tx *sql.Tx, upstream store.Upstream, height int64) ([]string, error) {
	contents, err := upstream.ContentForBlock(ctx, height)
	if err != nil {
		return nil, err
	}

	var events []string
	for _, c := range contents {
		contentType := strings.ToLower(hexDecodedContentType(c.ContentTypeHex))
		if !strings.HasPrefix(contentType, "text/plain") && !strings.HasPrefix(contentType, "application/json") {
			continue
		}

		var parsed content
		if err := json5.Unmarshal([]byte(c.TextContent), &parsed); err != nil {
			continue
		}
		if parsed.Proto != "sns" {
			continue
		}

		switch parsed.Operation {
		case opRegisterNamespace:
			ev, err := ix.registerNamespace(ctx, tx, c, parsed.Namespace, height)
			if err != nil {
				return nil, err
			}
			if ev != "" {
				events = append(events, ev)
			}
		case opRegisterName:
			ev, err := ix.registerName(ctx, tx, c, parsed.Name, height)
			if err != nil {
				return nil, err
			}
			if ev != "" {
				events = append(events, ev)
			}
		}
	}

	return events, nil
}

func (ix *Indexer) registerNamespace(ctx context.Context, tx *sql.Tx, c store.Content, namespace string, height int64) (string, error) {
	namespace, ok := firstToken(namespace)
	if !ok {
		return "", nil
	}
	if strings.Count(namespace, ".") != 0 {
		return "", nil
	}

	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO sns_namespaces (inscription_id, inscription_number, namespace, block_height)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (namespace) DO NOTHING
		RETURNING id
	`, c.InscriptionID, c.InscriptionNumber, namespace, height).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("claim namespace %s at block %d: %w", namespace, height, err)
	}

	return "ns_register;" + c.InscriptionID + ";" + namespace, nil
}

func (ix *Indexer) registerName(ctx context.Context, tx *sql.Tx, c store.Content, name string, height int64) (string, error) {
	name, ok := firstToken(name)
	if !ok {
		return "", nil
	}
	if strings.Count(name, ".") != 1 {
		return "", nil
	}
	domain := name[strings.IndexByte(name, '.')+1:]

	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO sns_names (inscription_id, inscription_number, name, domain, block_height)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO NOTHING
		RETURNING id
	`, c.InscriptionID, c.InscriptionNumber, name, domain, height).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("claim name %s at block %d: %w", name, height, err)
	}

	return "register;" + c.InscriptionID + ";" + name + ";" + domain, nil
}

// hexDecodedContentType decodes the upstream's hex-encoded content_type
// column to UTF-8; an undecodable value is treated as empty so the
// caller's prefix check simply rejects it.
func hexDecodedContentType(contentTypeHex string) string {
	decoded, err := hex.DecodeString(contentTypeHex)
	if err != nil {
		return ""
	}
	return string(decoded)
}

// maxNameBytes is the longest name or namespace accepted (§4.4).
const maxNameBytes = 2048

// firstToken extracts the first whitespace-delimited token of raw,
// lowercases it, and rejects NUL bytes or tokens over maxNameBytes,
// mirroring the reference's name/namespace field normalization.
func firstToken(raw string) (string, bool) {
	if strings.ContainsRune(raw, 0) {
		return "", false
	}
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return "", false
	}
	token := strings.ToLower(fields[0])
	if len(token) == 0 || len(token) > maxNameBytes {
		return "", false
	}
	return token, true
}

// ResidueHeights reports the maximum block_height across both
// SNS-owned tables.
func (ix *Indexer) ResidueHeights(ctx context.Context, db *sql.DB) ([]int64, error) {
	heights := make([]int64, 0, 2)
	for _, table := range []string{"sns_names", "sns_namespaces"} {
		var h sql.NullInt64
		if err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT max(block_height) FROM %s`, table)).Scan(&h); err != nil {
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

// RollbackAbove deletes every claim committed above height.
func (ix *Indexer) RollbackAbove(ctx context.Context, tx *sql.Tx, height int64) error {
	for _, table := range []string{"sns_names", "sns_namespaces"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE block_height > $1`, table), height); err != nil {
			return fmt.Errorf("rollback %s above %d: %w", table, height, err)
		}
	}
	for _, table := range []string{"sns_names", "sns_namespaces"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
			SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE((SELECT max(id) FROM %s), 1))
		`, table, table)); err != nil {
			return fmt.Errorf("reset %s sequence: %w", table, err)
		}
	}
	return nil
}

// WarmCaches is a no-op: name and namespace claims are resolved purely
// by database uniqueness constraints, so SNS carries no in-memory state.
func (ix *Indexer) WarmCaches(ctx context.Context, db *sql.DB) error {
	return nil
}
