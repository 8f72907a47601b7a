package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"symfetch/internal/crashfeed"
	"symfetch/internal/pipeline"
)

// watchCmd runs the pipeline repeatedly
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run on an interval and whenever new crash records arrive",
	Long: `Runs the pipeline immediately, then again every watch.interval and
after the crash directory has been quiet for watch.debounce following a
change. Runs never overlap. Stop with Ctrl-C; the skiplist is saved by the
run in progress before exiting.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	if cfg.Input.ModulesCSV != "" {
		return errors.New("watch reads crash records; unset input.modules_csv")
	}

	ctx, cancel := signalContext()
	defer cancel()

	deps, cleanup, err := buildDeps(cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	p := pipeline.New(cfg, deps)

	watcher, err := crashfeed.NewWatcher(cfg.Input.CrashDir, cfg.GetWatchDebounce())
	if err != nil {
		return err
	}
	defer watcher.Stop()
	if err := watcher.Start(ctx); err != nil {
		return err
	}

	return watchLoop(ctx, p, watcher.Triggers(), cfg.GetWatchInterval())
}

// watchLoop runs p once, then on every tick or trigger until ctx is done.
func watchLoop(ctx context.Context, p *pipeline.Pipeline, triggers <-chan struct{}, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runOnce(ctx, p, "startup")
	for {
		select {
		case <-ctx.Done():
			logger.Info("Watch stopped")
			return nil
		case <-ticker.C:
			runOnce(ctx, p, "interval")
		case <-triggers:
			runOnce(ctx, p, "crash records changed")
		}
	}
}

func runOnce(ctx context.Context, p *pipeline.Pipeline, reason string) {
	if ctx.Err() != nil {
		return
	}
	logger.Info("Starting run", zap.String("trigger", reason))

	// An unavailable crash store is retried on the next trigger
	report, err := p.Run(ctx)
	if err != nil {
		logger.Error("Run failed", zap.Error(err))
		return
	}
	printReport(report)
}
