package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/output"
	"github.com/Aman-CERP/searchsync/internal/store"
)

type searchOptions struct {
	typeName string
	limit    int
	format   string // "text" or "json"
}

type searchResult struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Score        float64  `json:"score"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Long: `Search indexed records by keyword. Results are ranked by relevance.

The index is opened read-only, so searching works while 'watch' runs
(SQLite backend).`,
		Example: `  searchsync search "climate report"
  searchsync search gopher --type article --limit 5
  searchsync search gopher --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.typeName, "type", "t", "", "Only return records of this type")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", store.DefaultSearchLimit, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	if strings.TrimSpace(query) == "" {
		return serrors.New(serrors.ErrCodeQueryEmpty, "search query is empty", nil)
	}
	if opts.format != "text" && opts.format != "json" {
		return serrors.ValidationError(fmt.Sprintf("unknown format %q (valid: text, json)", opts.format), nil)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	idx, err := openIndex(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close() }()

	hits, err := idx.Search(cmd.Context(), query, store.Filter{Type: opts.typeName, Limit: opts.limit})
	if err != nil {
		return serrors.New(serrors.ErrCodeSearchFailed, "search failed", err)
	}
	slog.Debug("search_completed", slog.String("query", query), slog.Int("hits", len(hits)))

	if opts.format == "json" {
		results := make([]searchResult, len(hits))
		for i, h := range hits {
			results[i] = searchResult{ID: h.ID, Type: h.Type, Score: h.Score, MatchedTerms: h.MatchedTerms}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	out := output.New(cmd.OutOrStdout())
	if len(hits) == 0 {
		out.Warningf("No results for %q", query)
		return nil
	}

	rows := [][]string{{"SCORE", "TYPE", "ID", "MATCHED"}}
	for _, h := range hits {
		rows = append(rows, []string{
			fmt.Sprintf("%.3f", h.Score),
			h.Type,
			h.ID,
			strings.Join(h.MatchedTerms, ","),
		})
	}
	out.Table(rows)
	return nil
}
