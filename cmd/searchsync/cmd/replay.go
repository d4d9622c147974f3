package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchsync/internal/config"
	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/output"
	"github.com/Aman-CERP/searchsync/internal/pipeline"
	"github.com/Aman-CERP/searchsync/internal/record"
	"github.com/Aman-CERP/searchsync/pkg/signals"
)

type replayOptions struct {
	autoManage bool
	keepGoing  bool
}

func newReplayCmd() *cobra.Command {
	var opts replayOptions

	cmd := &cobra.Command{
		Use:   "replay <file|->",
		Short: "Apply a mutation log to the index",
		Long: `Apply a JSON Lines mutation log to the index, one mutation per line:

  {"op":"save","type":"article","id":"42","fields":{"title":"Hello"}}
  {"op":"delete","type":"article","id":"7"}

Blank lines and lines starting with '#' are skipped. Saves are buffered per
type exactly as in 'watch'; whatever is still buffered is written when the
log ends. Use '-' to read from standard input.`,
		Example: `  searchsync replay changes.jsonl
  producer | searchsync replay - --auto-manage`,
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{consoleLogs: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.autoManage, "auto-manage", false, "Index every record type, not only configured ones")
	cmd.Flags().BoolVar(&opts.keepGoing, "keep-going", false, "Log failed mutations and continue instead of stopping")

	return cmd
}

func runReplay(cmd *cobra.Command, source string, opts replayOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if source != "-" {
		f, err := os.Open(source)
		if err != nil {
			if os.IsNotExist(err) {
				return serrors.New(serrors.ErrCodeFileNotFound, fmt.Sprintf("mutation log %s not found", source), err)
			}
			return serrors.IOError(fmt.Sprintf("failed to open mutation log %s", source), err)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	p, err := pipeline.Open(pipeline.Options{
		Config:     cfg,
		Dir:        projectDir,
		AutoManage: opts.autoManage || len(cfg.Types) == 0,
		Logger:     slog.Default(),
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	applied, failed := 0, 0
	readErr := record.ReadMutations(in, func(line int, m record.Mutation) error {
		if err := p.Apply(ctx, m); err != nil {
			if !opts.keepGoing {
				return err
			}
			failed++
			slog.Warn("replay_mutation_failed",
				slog.Int("line", line),
				slog.String("type", m.Type),
				slog.String("id", m.ID),
				slog.String("error", err.Error()))
			return nil
		}
		applied++
		return nil
	})

	closeErr := p.Close(context.WithoutCancel(ctx))
	if err := errors.Join(readErr, closeErr); err != nil {
		return err
	}

	counts, err := typeCounts(ctx, cfg, p.Types())
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.Successf("Applied %d mutations in %s", applied, time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		out.Warningf("%d mutations failed; see the log for details", failed)
	}
	if len(counts) > 0 {
		out.Newline()
		out.Counts("TYPE", counts)
	}
	return nil
}

// typeCounts reopens the index read-only and counts documents per type.
func typeCounts(ctx context.Context, cfg *config.Config, types []signals.RecordType) (map[string]int, error) {
	idx, err := openIndex(cfg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = idx.Close() }()

	counts := make(map[string]int, len(types))
	for _, rt := range types {
		n, err := idx.Count(ctx, string(rt))
		if err != nil {
			return nil, err
		}
		counts[string(rt)] = n
	}
	return counts, nil
}
