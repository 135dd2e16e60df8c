package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/shareandimprove/archivist/internal/config"
	"github.com/shareandimprove/archivist/internal/logging"
)

// flagKeys maps command-line flags to configuration keys. Only flags the
// user set explicitly override the file and environment.
var flagKeys = map[string]string{
	"input":               "input",
	"output":              "output",
	"db":                  "db",
	"ai1-host":            "ai1.host",
	"ai1-key":             "ai1.key",
	"ai1-model":           "ai1.model",
	"ai2-host":            "ai2.host",
	"ai2-key":             "ai2.key",
	"ai2-model":           "ai2.model",
	"embedding-local":     "embedding.local",
	"embedding-host":      "embedding.host",
	"embedding-key":       "embedding.key",
	"embedding-model":     "embedding.model",
	"embedding-cache-dir": "embedding.cache_dir",
	"force":               "force",
	"workers":             "workers",
	"language":            "language",
	"log-level":           "log.level",
	"log-format":          "log.format",
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "archivist",
		Short: "Deduplicate, analyze and catalogue a directory of documents",
		Long: `archivist walks a directory, hashes every file, asks an AI endpoint to
describe new content, stores the description with an embedding in SQLite and
copies each unique file into a content-addressed library.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "YAML configuration file")
	root.PersistentFlags().String("db", "", "SQLite database path")
	root.PersistentFlags().String("log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", config.DefaultLogFormat, "log format (console, json)")

	root.AddCommand(
		newIndexCmd(),
		newRunsCmd(),
		newEmbedServerCmd(),
		newMCPCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig merges defaults, the --config file, ARCHIVIST_ variables and
// the flags set on cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	overrides := make(map[string]any)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			overrides[key] = f.Value.String()
		}
	})

	cfg, err := config.Load(path, overrides)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	return logger, nil
}
