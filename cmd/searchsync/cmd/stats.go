package cmd

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchsync/internal/config"
	"github.com/Aman-CERP/searchsync/internal/output"
	"github.com/Aman-CERP/searchsync/internal/store"
)

type statsReport struct {
	Backend   string         `json:"backend"`
	Path      string         `json:"path"`
	Documents int            `json:"documents"`
	Writing   bool           `json:"writing"`
	Types     map[string]int `json:"types"`
}

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Long:  `Show the index backend and the number of indexed documents per configured type.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStats(cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	idx, err := openIndex(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close() }()

	st := idx.Stats()
	report := statsReport{
		Backend:   string(st.Backend),
		Path:      config.Resolve(projectDir, cfg.Index.Path),
		Documents: st.DocumentCount,
		Writing:   writerActive(cfg),
		Types:     make(map[string]int, len(cfg.Types)),
	}
	for _, t := range cfg.Types {
		n, err := idx.Count(cmd.Context(), t)
		if err != nil {
			return err
		}
		report.Types[t] = n
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	out := output.New(cmd.OutOrStdout())
	out.Status("📦", "Index: "+report.Path)
	out.Infof("Backend:   %s", report.Backend)
	out.Infof("Documents: %d", report.Documents)
	if report.Writing {
		out.Infof("Writer:    active (watch or replay is running)")
	}
	if len(report.Types) > 0 {
		out.Newline()
		out.Counts("TYPE", report.Types)
	}
	return nil
}

// writerActive reports whether another process holds the index writer
// lock.
func writerActive(cfg *config.Config) bool {
	lock := store.NewDirLock(store.LockDir(config.Resolve(projectDir, cfg.Index.Path)))
	if err := lock.TryLock(); err != nil {
		return errors.Is(err, store.ErrLocked)
	}
	_ = lock.Unlock()
	return false
}
