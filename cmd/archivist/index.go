package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shareandimprove/archivist/internal/config"
	"github.com/shareandimprove/archivist/internal/embedder"
	"github.com/shareandimprove/archivist/internal/indexer"
	"github.com/shareandimprove/archivist/internal/logging"
)

func newIndexCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index a directory into the library",
		Long: `Index every non-hidden file under --input.

Files whose content is already indexed are skipped and restored into the
library if missing. New content is described by the ai1 endpoint (images are
first transcribed by ai2), embedded, stored in --db and copied to
--output/<sha256>.

Examples:
  archivist index --input ~/Downloads --output ~/library --db ~/library/index.db \
    --ai1-host https://api.openai.com --ai1-key $KEY --ai2-host https://api.openai.com --ai2-key $KEY
  archivist index --config archivist.yaml --force --workers 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logging.Sync(logger) }()

			p, err := newPipeline(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := p.Close(); err != nil {
					logger.Warn("failed to close pipeline", zap.Error(err))
				}
			}()

			stats, err := p.indexer.Run(cmd.Context(), indexer.Options{InputDir: cfg.Input, Force: cfg.Force})
			if stats != nil {
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					if encErr := enc.Encode(stats); encErr != nil {
						return encErr
					}
				} else {
					printStatistics(cmd, stats)
				}
			}
			return err
		},
	}

	f := cmd.Flags()
	f.String("input", "", "directory to index")
	f.String("output", "", "library directory receiving content-addressed copies")
	f.String("ai1-host", "", "metadata endpoint base URL (/v1 appended when missing)")
	f.String("ai1-key", "", "metadata endpoint API key")
	f.String("ai1-model", config.DefaultChatModel, "metadata model")
	f.String("ai2-host", "", "vision endpoint base URL (/v1 appended when missing)")
	f.String("ai2-key", "", "vision endpoint API key")
	f.String("ai2-model", config.DefaultChatModel, "vision model")
	f.Bool("embedding-local", false, "embed in process instead of calling a remote endpoint")
	f.String("embedding-host", "", "embedding endpoint base URL (default: ai1 host)")
	f.String("embedding-key", "", "embedding endpoint API key (default: ai1 key)")
	f.String("embedding-model", embedder.DefaultModel, "embedding model")
	f.String("embedding-cache-dir", "", "directory for downloaded local embedding models")
	f.Bool("force", false, "re-analyze files whose content is already indexed")
	f.Int("workers", config.DefaultWorkers, "files processed concurrently")
	f.String("language", config.DefaultLanguage, "language of generated descriptions")
	f.BoolVar(&asJSON, "json", false, "print statistics as JSON")

	return cmd
}

func printStatistics(cmd *cobra.Command, stats *indexer.Statistics) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %d finished in %s\n", stats.RunID, stats.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  seen:    %d\n", stats.FilesSeen)
	fmt.Fprintf(out, "  indexed: %d\n", stats.FilesIndexed)
	fmt.Fprintf(out, "  skipped: %d\n", stats.FilesSkipped)
	fmt.Fprintf(out, "  failed:  %d\n", stats.FilesFailed)

	if len(stats.TypeStats) == 0 {
		return
	}
	types := make([]string, 0, len(stats.TypeStats))
	for t := range stats.TypeStats {
		types = append(types, t)
	}
	sort.Strings(types)
	fmt.Fprintln(out, "  by type:")
	for _, t := range types {
		fmt.Fprintf(out, "    %-8s %d\n", t, stats.TypeStats[t])
	}
}
