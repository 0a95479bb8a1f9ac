package sns

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bestinslot-xyz/OPI/internal/config"
	"github.com/bestinslot-xyz/OPI/internal/replay"
	"github.com/bestinslot-xyz/OPI/internal/reporter"
	"github.com/bestinslot-xyz/OPI/internal/sns"
	"github.com/bestinslot-xyz/OPI/internal/store"
)

func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sns",
		Short: "Start the SNS name/namespace replay indexer",
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

	if err := store.EnsureSNSSchema(ctx, ownStore.DB()); err != nil {
		return err
	}

	anchors := store.NewAnchors(ownStore.DB(), "sns")
	if err := store.CheckVersion(ctx, ownStore.DB(), anchors, "sns"); err != nil {
		return err
	}
	if err := anchors.SetVersion(ctx, config.IndexerVersion, store.CurrentDBVersion); err != nil {
		return err
	}

	upstream := store.NewSQLUpstream(upstreamStore.DB())
	indexer := sns.NewIndexer(cfg.Network)

	if err := replay.PreflightCheck(ctx, upstream, string(cfg.Network), indexer); err != nil {
		return err
	}
	if err := indexer.WarmCaches(ctx, ownStore.DB()); err != nil {
		return err
	}

	var rep *reporter.Reporter
	if cfg.Report.Enabled {
		rep = reporter.New(cfg.Report.URL, cfg.Report.Retries)
	}

	engine := replay.New(ownStore, upstream, indexer, replay.Config{
		NetworkType:     string(cfg.Network),
		IndexerVersion:  config.IndexerVersion,
		DBVersion:       store.CurrentDBVersion,
		PollInterval:    5 * time.Second,
		ErrorRetryDelay: 10 * time.Second,
		ReportEnabled:   cfg.Report.Enabled,
		Report:          rep,
		ReportName:      cfg.Report.Name,
	})

	return runWithSignals(ctx, engine)
}

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
			log.WithField("signal", sig.String()).Info("sns: received signal, shutting down")
			cancel()
			return nil
		}
	})

	eg.Go(func() error {
		return engine.Run(ctx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("sns: unhandled error")
		return err
	}
	return nil
}
