package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/relaycore/relaycore/internal/common/config"
	"github.com/relaycore/relaycore/internal/common/logger"
	"github.com/relaycore/relaycore/internal/relayclient"
	"github.com/relaycore/relaycore/internal/runtime"
	"github.com/relaycore/relaycore/internal/upload"
)

// renderTick is the UI poll cadence used to coalesce change notifications;
// carried here since the render loop owning it, however stubbed, is this
// binary's responsibility.
const renderTick = 50 * time.Millisecond

// draftCleanupInterval is how often CleanupConfirmedPublishes runs to
// archive drafts past their 24h grace period.
const draftCleanupInterval = time.Hour

var (
	dataDirFlag string
	verboseFlag bool
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "relaycore",
		Short:         "relaycore is the event-ingestion engine for a relay-backed terminal agent client",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          run,
	}
	cmd.Flags().StringVar(&dataDirFlag, "data-dir", "", "override the local data directory (drafts, cache, credentials)")
	cmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug-level logging")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if dataDirFlag != "" {
		cfg.DataDir.Root = dataDirFlag
	}
	if verboseFlag {
		cfg.Logging.Level = "debug"
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting relaycore", zap.Strings("relays", cfg.Relay.URLs), zap.String("data_dir", cfg.DataDir.Root))

	rt := runtime.NewFromConfig(cfg, log)
	defer rt.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	if n, err := rt.ReconcileUnconfirmedPublishes(ctx); err != nil {
		log.Warn("publish-snapshot reconciliation failed", zap.Error(err))
	} else if n > 0 {
		log.Info("reconciled unconfirmed publishes against stored messages", zap.Int("count", n))
	}

	group, gctx := errgroup.WithContext(ctx)

	if len(cfg.Relay.URLs) > 0 {
		client := relayclient.New(cfg.Relay, nil, log)
		group.Go(func() error {
			return client.Run(gctx, cfg.Relay.URLs[0])
		})
		group.Go(func() error {
			return ingestLoop(gctx, client, rt)
		})
	} else {
		log.Warn("no relay URLs configured, running with local state only")
	}

	uploadWorker := upload.New(cfg.Upload, log)
	group.Go(func() error {
		return uploadWorker.Run(gctx)
	})

	group.Go(func() error {
		return draftCleanupLoop(gctx, rt)
	})
	group.Go(func() error {
		return renderLoop(gctx, rt, uploadWorker, log)
	})

	if err := group.Wait(); err != nil && gctx.Err() == nil {
		return fmt.Errorf("relaycore: %w", err)
	}

	log.Info("relaycore shut down cleanly")
	return nil
}

// ingestLoop drains decoded-event batches from the relay client and folds
// them into the runtime object — the relay ingestion arm of the cooperative
// select.
func ingestLoop(ctx context.Context, client *relayclient.Client, rt *runtime.Runtime) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-client.Events():
			if !ok {
				return nil
			}
			rt.IngestBatch(batch)
		}
	}
}

// draftCleanupLoop archives Confirmed drafts past their grace period once
// at startup and then periodically.
func draftCleanupLoop(ctx context.Context, rt *runtime.Runtime) error {
	rt.Drafts.CleanupConfirmedPublishes()
	ticker := time.NewTicker(draftCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rt.Drafts.CleanupConfirmedPublishes()
		}
	}
}

// renderLoop stands in for the 50ms render tick; the actual terminal
// rendering is out of scope, so this arm only drains the change notifier
// and the upload worker's results to keep the cooperative select shape
// faithful to the concurrency model (terminal input has no standalone
// surface without a renderer and is therefore omitted here).
func renderLoop(ctx context.Context, rt *runtime.Runtime, uploads *upload.Worker, log *logger.Logger) error {
	ticker := time.NewTicker(renderTick)
	defer ticker.Stop()
	poller := struct{ lastVersion uint64 }{}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if v := rt.Notifier.Version(); v != poller.lastVersion {
				poller.lastVersion = v
			}
		case result, ok := <-uploads.Results():
			if !ok {
				continue
			}
			if result.Err != nil {
				log.Warn("upload failed", zap.String("filename", result.Filename), zap.Error(result.Err))
				continue
			}
		}
	}
}
