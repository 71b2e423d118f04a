package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/tagrelay/internal/config"
	"github.com/JakeFAU/tagrelay/internal/feed"
	"github.com/JakeFAU/tagrelay/internal/filter"
	"github.com/JakeFAU/tagrelay/internal/logging"
	"github.com/JakeFAU/tagrelay/internal/relay"
	"github.com/JakeFAU/tagrelay/internal/seen"
	"github.com/JakeFAU/tagrelay/internal/seen/postgres"
	"github.com/JakeFAU/tagrelay/internal/sink"
	"github.com/JakeFAU/tagrelay/internal/worker"
)

const sinkTimeout = 15 * time.Second

const missingWebhookHelp = `DISCORD_WEBHOOK_URL is not set.
Add it to the .env file (or the environment), for example:
  DISCORD_WEBHOOK_URL=https://discord.com/api/webhooks/...
To capture a login session first, run with INIT_LOGIN=1.`

// newWorkerCmd creates the 'worker' subcommand, normally spawned by 'serve'.
func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Runs the crawl-and-dispatch loop (or the login handshake when INIT_LOGIN=1)",
		RunE:  runWorkerCommand,
	}
}

func runWorkerCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadWorker(envFile)
	if err != nil {
		if errors.Is(err, config.ErrMissingWebhook) {
			fmt.Fprintln(os.Stderr, missingWebhookHelp)
		}
		return fmt.Errorf("load worker config: %w", err)
	}

	logger := logging.NewSplit(cfg.Development, os.Stdout, os.Stderr).Named("worker")
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := feed.Open(ctx, feedOptions(cfg), logger.Named("feed"))
	if err != nil {
		return fmt.Errorf("open feed: %w", err)
	}

	if cfg.InitLogin {
		return worker.Login(ctx, sess, os.Stdin, cfg.StoragePath, logger)
	}
	defer sess.Close()

	store, err := openSeenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("close seen store", zap.Error(cerr))
		}
	}()

	client := &http.Client{Timeout: sinkTimeout}
	targets := []sink.Target{{Name: "webhook", Sink: sink.NewWebhook(cfg.WebhookURL, client)}}
	if cfg.OverlayEnabled && cfg.OverlayURL != "" {
		targets = append(targets, sink.Target{
			Name:       "overlay",
			Sink:       sink.NewOverlay(cfg.OverlayURL, client),
			BestEffort: true,
		})
	}
	dispatcher := sink.NewDispatcher(logger.Named("sink"), targets...)
	defer dispatcher.Wait()

	w := worker.New(sess, filter.New(cfg.Hashtags, cfg.MaxTextLen), store, dispatcher, worker.Config{
		Interval:  cfg.PollInterval,
		Pace:      cfg.Pace,
		DebugPost: cfg.DebugPost,
	}, logger)

	logger.Info("watching feed",
		zap.Strings("hashtags", cfg.Hashtags),
		zap.Duration("interval", cfg.PollInterval),
		zap.Int("seen", store.Len()),
		zap.Bool("overlay", len(targets) > 1),
	)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run worker: %w", err)
	}
	logger.Info("worker stopped")
	return nil
}

// feedOptions maps the worker config onto the browser session. Login mode is
// always visible so the operator can sign in.
func feedOptions(cfg config.Worker) feed.Options {
	return feed.Options{
		URL:          feed.SearchURL(cfg.SearchBaseURL, cfg.Hashtags),
		Headless:     cfg.Headless && !cfg.InitLogin,
		BrowserPath:  cfg.BrowserPath,
		StatePath:    cfg.StoragePath,
		RestoreState: !cfg.InitLogin,
	}
}

func openSeenStore(ctx context.Context, cfg config.Worker, logger *zap.Logger) (relay.SeenStore, error) {
	if cfg.SeenDSN != "" {
		store, err := postgres.New(ctx, postgres.Config{DSN: cfg.SeenDSN, Table: cfg.SeenTable})
		if err != nil {
			return nil, fmt.Errorf("open postgres seen store: %w", err)
		}
		return store, nil
	}
	store, err := seen.OpenFile(cfg.SeenPath, logger.Named("seen"))
	if err != nil {
		return nil, fmt.Errorf("open seen file: %w", err)
	}
	return store, nil
}
