package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/searchsync/internal/config"
	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/metrics"
	"github.com/Aman-CERP/searchsync/internal/output"
	"github.com/Aman-CERP/searchsync/internal/pipeline"
	"github.com/Aman-CERP/searchsync/internal/watcher"
	"github.com/Aman-CERP/searchsync/pkg/version"
)

const shutdownTimeout = 30 * time.Second

type watchOptions struct {
	initial      bool
	forcePolling bool
	autoManage   bool
	metricsAddr  string
}

func newWatchCmd() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch [root]",
		Short: "Index records as their files change",
		Long: `Watch a record tree and keep the index in sync with it.

Records are JSON objects stored as <root>/<type>/<id>.json. Creating or
modifying a file saves the record; removing it deletes the record from the
index. Saves are buffered per type and written in batches.

Only types listed under 'types' in the configuration are indexed, unless
--auto-manage is set. The root defaults to watch.root from the
configuration.`,
		Example: `  # Watch ./data using .searchsync.yaml
  searchsync watch

  # Watch another tree, indexing every type found, with metrics
  searchsync watch ./records --auto-manage --metrics-addr :9090`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{consoleLogs: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			root := cfg.Watch.Root
			if len(args) == 1 {
				root = args[0]
			}
			return runWatch(cmd, cfg, config.Resolve(projectDir, root), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.initial, "initial", true, "Index every existing record before watching")
	cmd.Flags().BoolVar(&opts.forcePolling, "force-polling", false, "Poll instead of using file system notifications")
	cmd.Flags().BoolVar(&opts.autoManage, "auto-manage", false, "Index every record type, not only configured ones")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides metrics.addr)")

	return cmd
}

func runWatch(cmd *cobra.Command, cfg *config.Config, root string, opts watchOptions) error {
	logger := slog.Default()
	out := output.New(cmd.OutOrStdout())

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return serrors.New(serrors.ErrCodeFileNotFound, fmt.Sprintf("record root %s is not a directory", root), err).
			WithSuggestion("Create it, or pass the record root as 'searchsync watch <root>'")
	}

	autoManage := opts.autoManage || len(cfg.Types) == 0
	if len(cfg.Types) == 0 && !opts.autoManage {
		out.Warningf("No types configured; indexing every record type")
	}

	p, err := pipeline.Open(pipeline.Options{
		Config:     cfg,
		Dir:        projectDir,
		AutoManage: autoManage,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	build := version.GetInfo()
	metrics.BuildInfo.WithLabelValues(build.Version, build.Commit, build.Date).Set(1)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := watchLoop(ctx, cmd, cfg, root, opts, p)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	closeErr := p.Close(closeCtx)
	if errors.Is(closeErr, context.DeadlineExceeded) {
		closeErr = serrors.New(serrors.ErrCodeShutdownTimeout, "timed out flushing buffered records", closeErr)
	}

	if err := errors.Join(runErr, closeErr); err != nil {
		return err
	}
	out.Successf("Stopped; buffered records flushed")
	return nil
}

func watchLoop(ctx context.Context, cmd *cobra.Command, cfg *config.Config, root string,
	opts watchOptions, p *pipeline.Pipeline) error {
	logger := slog.Default()
	out := output.New(cmd.OutOrStdout())

	if opts.initial {
		if err := initialScan(ctx, out, root, p); err != nil {
			return err
		}
	}

	w, err := watcher.New(watcher.Options{
		DebounceWindow: cfg.Debounce(),
		PollInterval:   cfg.PollInterval(),
		ForcePolling:   opts.forcePolling || cfg.Watch.ForcePolling,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	out.Successf("Watching %s (%s); press Ctrl+C to stop", root, w.Mode())

	g, gctx := errgroup.WithContext(ctx)
	// Start blocks until gctx ends or the watcher is stopped.
	g.Go(func() error {
		return w.Start(gctx, root)
	})
	g.Go(func() error {
		<-gctx.Done()
		return w.Stop()
	})
	g.Go(func() error {
		// Drain until the watcher closes its channel so no batch is lost.
		return watcher.Pump(context.WithoutCancel(gctx), root, w.Events(), p, logger)
	})
	g.Go(func() error {
		for err := range w.Errors() {
			logger.Warn("watcher_error", slog.String("error", err.Error()))
		}
		return nil
	})

	addr := cfg.Metrics.Addr
	if opts.metricsAddr != "" {
		addr = opts.metricsAddr
	}
	if addr != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, addr, logger)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func initialScan(ctx context.Context, out *output.Writer, root string, p *pipeline.Pipeline) error {
	events, err := watcher.Scan(root)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	for i, ev := range events {
		if err := watcher.Apply(ctx, root, []watcher.RecordEvent{ev}, p); err != nil {
			slog.Warn("initial_scan_skip", slog.String("path", ev.Path), slog.String("error", err.Error()))
		}
		out.Progress(i+1, len(events), "indexing existing records")
	}
	return p.Flush(ctx)
}
