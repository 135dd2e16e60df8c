package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shareandimprove/archivist/internal/embedder"
	"github.com/shareandimprove/archivist/internal/embedserver"
	"github.com/shareandimprove/archivist/internal/logging"
)

const shutdownTimeout = 5 * time.Second

func newEmbedServerCmd() *cobra.Command {
	var (
		host     string
		port     int
		model    string
		cacheDir string
	)

	cmd := &cobra.Command{
		Use:   "embed-server",
		Short: "Serve a local embedding model over an OpenAI-compatible API",
		Long: `Serve POST /v1/embeddings backed by an in-process ONNX model.

Point the indexer at it with --embedding-host http://localhost:5001.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logging.Sync(logger) }()

			// The server still starts without a model and answers 500.
			var emb embedder.Embedder
			local, err := embedder.NewLocalProvider(embedder.LocalConfig{Model: model, CacheDir: cacheDir}, nil)
			if err != nil {
				logger.Error("failed to load embedding model", zap.String("model", model), zap.Error(err))
			} else {
				emb = local
				defer func() { _ = local.Close() }()
				logger.Info("embedding model loaded", zap.String("model", local.Model()))
			}

			return serveHTTP(cmd.Context(), net.JoinHostPort(host, strconv.Itoa(port)), embedserver.NewHandler(emb, logger), logger)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "interface to listen on")
	cmd.Flags().IntVar(&port, "port", embedserver.DefaultPort, "port to listen on")
	cmd.Flags().StringVar(&model, "model", embedder.DefaultModel, "embedding model")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "directory for downloaded models")
	return cmd
}

// serveHTTP runs handler on addr until ctx is done.
func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("embedding server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down embedding server")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
