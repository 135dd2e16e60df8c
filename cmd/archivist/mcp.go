package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shareandimprove/archivist/internal/logging"
	"github.com/shareandimprove/archivist/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve index tools to MCP clients over stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout.

The server takes the same configuration as index; the input directory is
supplied per call by the index_directory tool. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidatePipeline(); err != nil {
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

			err = mcp.NewServer(p.store, p.indexer, logger).Serve(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
