package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/shareandimprove/archivist/internal/storage"
)

func newRunsCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent index runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateStore(); err != nil {
				return err
			}

			store, err := storage.NewSQLiteStorage(cfg.DB)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			runs, err := store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			count, err := store.CountFiles(ctx)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"indexed_files": count, "runs": runs})
			}
			return printRuns(cmd, count, runs)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func printRuns(cmd *cobra.Command, count int, runs []*storage.IndexRun) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d files indexed\n\n", count)
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs yet")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tENDED\tSEEN\tOK\tFAILED\tSKIPPED\tTYPES")
	for _, r := range runs {
		ended := "running"
		if r.EndedAt != nil {
			ended = r.EndedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), ended,
			r.TotalSeen, r.SuccessCount, r.FailedCount, r.SkippedCount, formatTypeStats(r.TypeStats))
	}
	return w.Flush()
}

func formatTypeStats(stats map[string]int) string {
	if len(stats) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(stats))
	for t, n := range stats {
		parts = append(parts, fmt.Sprintf("%s=%d", t, n))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
