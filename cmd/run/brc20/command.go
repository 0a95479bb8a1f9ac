package brc20

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bestinslot-xyz/OPI/internal/brc20"
	"github.com/bestinslot-xyz/OPI/internal/config"
	"github.com/bestinslot-xyz/OPI/internal/extratables"
	"github.com/bestinslot-xyz/OPI/internal/replay"
	"github.com/bestinslot-xyz/OPI/internal/reporter"
	"github.com/bestinslot-xyz/OPI/internal/store"
)

func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "brc20",
		Short: "Start the BRC-20 replay indexer",
		Args:  cobra.ExactArgs(0),
		RunE:  run,
	}
	cmd.AddCommand(reindexHashesCommand())
	return cmd
}

func run(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ownStore, err := store.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer ownStore.Close()

	upstreamStore, err := store.Open(cfg.UpstreamDB)
	if err != nil {
		return err
	}
	defer upstreamStore.Close()

	ctx := context.Background()

	if err := store.EnsureBRC20Schema(ctx, ownStore.DB(), cfg.CreateExtras); err != nil {
		return err
	}

	anchors := store.NewAnchors(ownStore.DB(), "brc20")
	if err := store.CheckVersion(ctx, ownStore.DB(), anchors, "brc20"); err != nil {
		return err
	}
	if err := anchors.SetVersion(ctx, config.IndexerVersion, store.CurrentDBVersion); err != nil {
		return err
	}

	upstream := store.NewSQLUpstream(upstreamStore.DB())
	indexer := brc20.NewIndexer(cfg.Network)

	if err := replay.PreflightCheck(ctx, upstream, string(cfg.Network), indexer); err != nil {
		return err
	}
	if err := indexer.WarmCaches(ctx, ownStore.DB()); err != nil {
		return err
	}

	var applyExtras func(context.Context, *sql.Tx, int64, string) error
	if cfg.CreateExtras {
		projector := extratables.New(ownStore.DB())
		if err := reconcileExtras(ctx, ownStore, anchors, projector); err != nil {
			return err
		}
		applyExtras = projector.ApplyBlock
	}

	var rep *reporter.Reporter
	if cfg.Report.Enabled {
		rep = reporter.New(cfg.Report.URL, cfg.Report.Retries)
	}

	engine := replay.New(ownStore, upstream, indexer, replay.Config{
		NetworkType:      string(cfg.Network),
		IndexerVersion:   config.IndexerVersion,
		DBVersion:        store.CurrentDBVersion,
		EventHashVersion: config.EventHashVersion,
		PollInterval:     5 * time.Second,
		ErrorRetryDelay:  10 * time.Second,
		ReportEnabled:    cfg.Report.Enabled,
		Report:           rep,
		ReportName:       cfg.Report.Name,
		ApplyExtras:      applyExtras,
	})

	return runWithSignals(ctx, engine)
}

// reconcileExtras rebuilds the extra-tables projector from the historic
// log if its anchor tip has drifted from the main chain's, matching
// §4.5's "derived view, rederivable at any time" contract.
func reconcileExtras(ctx context.Context, st *store.Store, anchors *store.Anchors, projector *extratables.Projector) error {
	mainTip, err := anchors.LocalTip(ctx)
	if err != nil {
		return err
	}
	if mainTip < 0 {
		return nil
	}

	drifted, extrasTip, err := extratables.CheckDrift(ctx, st.DB(), mainTip)
	if err != nil {
		return err
	}
	if !drifted {
		return nil
	}

	log.WithFields(log.Fields{"main_tip": mainTip, "extras_tip": extrasTip}).
		Warn("brc20: extra-tables projector has drifted, rebuilding from historic log")

	rows, err := anchors.AllAnchors(ctx)
	if err != nil {
		return err
	}
	return extratables.Rebuild(ctx, st.DB(), rows)
}

// runWithSignals runs the engine's blocking loop alongside a signal
// watcher, cancelling the shared context on SIGINT/SIGTERM.
func runWithSignals(parent context.Context, engine *replay.Engine) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		notify := make(chan os.Signal, 1)
		signal.Notify(notify, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-ctx.Done():
			return nil
		case sig := <-notify:
			log.WithField("signal", sig.String()).Info("brc20: received signal, shutting down")
			cancel()
			return nil
		}
	})

	eg.Go(func() error {
		return engine.Run(ctx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("brc20: unhandled error")
		return err
	}
	return nil
}
