package replay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bestinslot-xyz/OPI/internal/hashchain"
	"github.com/bestinslot-xyz/OPI/internal/reporter"
	"github.com/bestinslot-xyz/OPI/internal/store"
)

// ErrCaughtUpToTip is a sentinel signaling the engine has no forward work
// this cycle; the caller should sleep and retry rather than treat it as
// an error.
var ErrCaughtUpToTip = errors.New("caught up to upstream tip")

// ErrFatalInconsistency signals a §7(c) fatal condition: the process must
// exit rather than retry.
var ErrFatalInconsistency = errors.New("fatal upstream inconsistency")

// Config bundles the engine's tunables, mirroring the reference
// implementation's sleep constants (§5).
type Config struct {
	NetworkType       string
	IndexerVersion    string
	DBVersion         int
	EventHashVersion  int // 0 to omit (non-BRC-20 protocols)
	PollInterval      time.Duration // 5s: sleep when caught up to tip
	ErrorRetryDelay   time.Duration // 10s: sleep after a transient error
	ReportEnabled     bool
	Report            *reporter.Reporter
	ReportName        string

	// ApplyExtras, if set, runs the BRC-20 extra-tables projector (§4.5)
	// against its own transaction once the main block commit succeeds.
	// Left nil for protocols with no extra-tables projector.
	ApplyExtras func(ctx context.Context, tx *sql.Tx, height int64, blockHash string) error
}

// Engine drives one protocol's replay loop: residue detection, reorg
// detection, block-by-block application, digest chaining, reporting.
type Engine struct {
	store    *store.Store
	upstream store.Upstream
	anchors  *store.Anchors
	protocol Protocol
	cfg      Config

	lastReportedHeight int64
}

// New builds an Engine for one protocol.
func New(st *store.Store, upstream store.Upstream, protocol Protocol, cfg Config) *Engine {
	return &Engine{
		store:    st,
		upstream: upstream,
		anchors:  store.NewAnchors(st.DB(), protocol.Name()),
		protocol: protocol,
		cfg:      cfg,
	}
}

// Run executes the main loop (§4.1) until ctx is cancelled. A transient
// error sleeps ErrorRetryDelay and retries from residue detection; a
// fatal inconsistency returns immediately so the caller can exit(1).
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := e.tick(ctx)
		switch {
		case errors.Is(err, ErrCaughtUpToTip):
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(e.cfg.PollInterval):
				continue
			}
		case errors.Is(err, ErrFatalInconsistency):
			return err
		case err != nil:
			log.WithError(err).WithField("protocol", e.protocol.Name()).
				Warn("replay: transient error, retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(e.cfg.ErrorRetryDelay):
				continue
			}
		default:
			continue
		}
	}
}

// tick performs one iteration: residue check, tip comparison, reorg
// check, and (if there is forward work) one block's worth of indexing.
func (e *Engine) tick(ctx context.Context) error {
	if err := e.checkResidue(ctx); err != nil {
		return fmt.Errorf("residue check: %w", err)
	}

	localTip, err := e.anchors.LocalTip(ctx)
	if err != nil {
		return err
	}

	upstreamTip, err := e.upstream.Tip(ctx)
	if err != nil {
		return fmt.Errorf("query upstream tip: %w", err)
	}

	nextHeight := localTip + 1
	if nextHeight < e.protocol.FirstHeight() {
		nextHeight = e.protocol.FirstHeight()
	}

	if nextHeight > upstreamTip {
		return ErrCaughtUpToTip
	}

	if localTip >= 0 {
		rolledBack, err := e.checkReorg(ctx, localTip)
		if err != nil {
			return err
		}
		if rolledBack {
			return nil // retry from residue detection with the new tip
		}
	}

	return e.indexBlock(ctx, nextHeight)
}

// checkResidue implements §4.1.1: if any protocol table holds rows at or
// past the next height to process, a prior run was interrupted mid-commit;
// roll back to restore invariants.
func (e *Engine) checkResidue(ctx context.Context) error {
	localTip, err := e.anchors.LocalTip(ctx)
	if err != nil {
		return err
	}
	nextHeight := localTip + 1
	if nextHeight < e.protocol.FirstHeight() {
		nextHeight = e.protocol.FirstHeight()
	}

	heights, err := e.protocol.ResidueHeights(ctx, e.store.DB())
	if err != nil {
		return err
	}

	digestHeight, err := e.anchors.DigestsMaxHeight(ctx)
	if err != nil {
		return err
	}
	heights = append(heights, digestHeight)

	residue := false
	for _, h := range heights {
		if h >= nextHeight {
			residue = true
			break
		}
	}
	if !residue {
		return nil
	}

	log.WithField("rollback_to", nextHeight-1).Warn("replay: residue from prior run detected, rolling back")
	return e.rollback(ctx, nextHeight-1)
}

// checkReorg implements §4.1.2: compare the last ReorgWindow local
// anchors against upstream; find the common ancestor and roll back.
// Returns true if a rollback occurred.
func (e *Engine) checkReorg(ctx context.Context, localTip int64) (bool, error) {
	const reorgWindow = 10

	anchors, err := e.anchors.RecentAnchors(ctx, reorgWindow)
	if err != nil {
		return false, err
	}
	if len(anchors) == 0 {
		return false, nil
	}

	upstreamHash, err := e.upstream.BlockHash(ctx, anchors[0].BlockHeight)
	if err != nil {
		return false, fmt.Errorf("query upstream hash at %d: %w", anchors[0].BlockHeight, err)
	}
	if upstreamHash == anchors[0].BlockHash {
		return false, nil // no reorg
	}

	log.WithField("height", anchors[0].BlockHeight).Warn("replay: reorg detected")

	for _, anchor := range anchors {
		hash, err := e.upstream.BlockHash(ctx, anchor.BlockHeight)
		if err != nil {
			return false, fmt.Errorf("query upstream hash at %d: %w", anchor.BlockHeight, err)
		}
		if hash == anchor.BlockHash {
			log.WithField("ancestor", anchor.BlockHeight).Warn("replay: reorg common ancestor found")
			if err := e.rollback(ctx, anchor.BlockHeight); err != nil {
				return false, err
			}
			return true, nil
		}
	}

	return false, fmt.Errorf("%w: reorg deeper than %d blocks, upstream does not retain it", ErrFatalInconsistency, reorgWindow)
}

// rollback implements §4.1.3.
func (e *Engine) rollback(ctx context.Context, height int64) error {
	tx, err := e.store.BeginBlock(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.anchors.DeleteAbove(ctx, tx, height); err != nil {
		return err
	}
	if err := e.protocol.RollbackAbove(ctx, tx, height); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rollback to %d: %w", height, err)
	}

	return e.protocol.WarmCaches(ctx, e.store.DB())
}

// indexBlock applies one block end-to-end: state machine, digest
// chaining, anchor, and conditional report (§4.1 steps 4-5).
func (e *Engine) indexBlock(ctx context.Context, height int64) error {
	blockHash, err := e.upstream.BlockHash(ctx, height)
	if err != nil {
		return fmt.Errorf("query block hash at %d: %w", height, err)
	}

	tx, err := e.store.BeginBlock(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	events, err := e.protocol.IndexBlock(ctx, tx, e.upstream, height)
	if err != nil {
		return fmt.Errorf("index block %d: %w", height, err)
	}

	builder := hashchain.NewBuilder()
	for _, ev := range events {
		builder.Add(ev)
	}
	blockEventHash := hashchain.BlockEventHash(builder)

	prevCumulative, err := e.anchors.LastCumulativeHash(ctx)
	if err != nil {
		return err
	}
	cumulativeHash := hashchain.CumulativeEventHash(prevCumulative, blockEventHash)

	if err := e.anchors.InsertDigest(ctx, tx, height, blockEventHash, cumulativeHash); err != nil {
		return err
	}
	if err := e.anchors.InsertAnchor(ctx, tx, height, blockHash); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit block %d: %w", height, err)
	}

	log.WithFields(log.Fields{
		"protocol":     e.protocol.Name(),
		"block_height": height,
		"events":       len(events),
	}).Info("replay: committed block")

	if e.cfg.ApplyExtras != nil {
		if err := e.applyExtras(ctx, height, blockHash); err != nil {
			// The extra-tables projector is a secondary, rederivable view
			// (§4.5); its failure must not roll back the authoritative
			// commit that already succeeded above.
			log.WithError(err).WithField("block_height", height).
				Warn("replay: extra-tables projector failed, block not applied to extra tables")
		}
	}

	e.maybeReport(ctx, height, blockHash, blockEventHash, cumulativeHash)

	return nil
}

// applyExtras runs the extra-tables projector in its own transaction,
// separate from the main block commit, mirroring §4.5's "updated per
// block after the main commit".
func (e *Engine) applyExtras(ctx context.Context, height int64, blockHash string) error {
	tx, err := e.store.BeginBlock(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.cfg.ApplyExtras(ctx, tx, height, blockHash); err != nil {
		return err
	}
	return tx.Commit()
}

func (e *Engine) maybeReport(ctx context.Context, height int64, blockHash, blockEventHash, cumulativeHash string) {
	if !e.cfg.ReportEnabled || e.cfg.Report == nil {
		return
	}

	upstreamTip, err := e.upstream.Tip(ctx)
	if err != nil {
		log.WithError(err).Warn("replay: could not fetch upstream tip for report gating")
		return
	}
	if !reporter.ShouldReport(height, upstreamTip, e.lastReportedHeight) {
		return
	}

	e.cfg.Report.Report(ctx, reporter.Digest{
		Name:                e.cfg.ReportName,
		Type:                e.protocol.Name(),
		NodeType:            "full_node",
		NetworkType:         e.cfg.NetworkType,
		Version:             e.cfg.IndexerVersion,
		DBVersion:           e.cfg.DBVersion,
		EventHashVersion:    e.cfg.EventHashVersion,
		BlockHeight:         height,
		BlockHash:           blockHash,
		BlockEventHash:      blockEventHash,
		CumulativeEventHash: cumulativeHash,
	})
	e.lastReportedHeight = height
}

// PreflightCheck implements §4.1's startup contract check: the engine
// refuses to run if the upstream's recorded network type does not match
// the configured one, or if the upstream's max_transfer_cnt is below the
// protocol's minimum (the latter would silently truncate the
// transfer-inscribe/transfer-transfer pairing BRC-20 depends on).
func PreflightCheck(ctx context.Context, upstream store.Upstream, expectedNetwork string, protocol Protocol) error {
	network, err := upstream.NetworkType(ctx)
	if err == nil && network != "" && network != expectedNetwork {
		return fmt.Errorf("%w: upstream network %q does not match configured %q", ErrFatalInconsistency, network, expectedNetwork)
	}

	if protocol.MinTransferCount() > 0 {
		maxCnt, err := upstream.MaxTransferCount(ctx, protocol.Name())
		if err != nil {
			// Not every upstream source exposes ord_transfer_counts (the
			// bitmap JSON-RPC source, in particular); this is a
			// best-effort precondition check, not a hard requirement of
			// the interface.
			log.WithError(err).Warn("replay: upstream does not expose max transfer count, skipping preflight check")
			return nil
		}
		if maxCnt < protocol.MinTransferCount() {
			return fmt.Errorf("%w: upstream max_transfer_cnt %d is below %s's minimum %d",
				ErrFatalInconsistency, maxCnt, protocol.Name(), protocol.MinTransferCount())
		}
	}

	return nil
}

// ReindexCumulativeHashes recomputes every cumulative digest from the
// stored per-block event hashes, a maintenance operation used after
// manual data surgery.
func (e *Engine) ReindexCumulativeHashes(ctx context.Context) error {
	rows, err := e.store.DB().QueryContext(ctx, fmt.Sprintf(
		`SELECT block_height, block_event_hash FROM %s_cumulative_event_hashes ORDER BY block_height ASC`,
		e.protocol.Name(),
	))
	if err != nil {
		return fmt.Errorf("query digest rows: %w", err)
	}
	defer rows.Close()

	type row struct {
		height int64
		hash   string
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.height, &r.hash); err != nil {
			return err
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	prev := ""
	for _, r := range all {
		cumulative := hashchain.CumulativeEventHash(prev, r.hash)
		_, err := e.store.DB().ExecContext(ctx, fmt.Sprintf(
			`UPDATE %s_cumulative_event_hashes SET cumulative_event_hash = $1 WHERE block_height = $2`,
			e.protocol.Name(),
		), cumulative, r.height)
		if err != nil {
			return fmt.Errorf("update cumulative hash at %d: %w", r.height, err)
		}
		prev = cumulative
	}
	return nil
}
