package main

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/shareandimprove/archivist/internal/analysis"
	"github.com/shareandimprove/archivist/internal/config"
	"github.com/shareandimprove/archivist/internal/embedder"
	"github.com/shareandimprove/archivist/internal/extract"
	"github.com/shareandimprove/archivist/internal/indexer"
	"github.com/shareandimprove/archivist/internal/llm"
	"github.com/shareandimprove/archivist/internal/storage"
)

// pipeline owns everything an index run needs.
type pipeline struct {
	store    *storage.SQLiteStorage
	embedder embedder.Embedder
	indexer  *indexer.Indexer
}

// newPipeline wires storage, the AI clients and the indexer. Any failure
// here is a configuration failure and happens before the walk starts.
func newPipeline(cfg *config.Config, logger *zap.Logger) (*pipeline, error) {
	provider := embedder.ProviderRemote
	if cfg.Embedding.Local {
		provider = embedder.ProviderLocal
	}
	emb, err := embedder.New(embedder.Config{
		Provider:  provider,
		BaseURL:   cfg.Embedding.Host,
		APIKey:    cfg.Embedding.Key.Value(),
		Model:     cfg.Embedding.Model,
		Timeout:   cfg.Embedding.Timeout,
		CacheDir:  cfg.Embedding.CacheDir,
		CacheSize: cfg.Embedding.CacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing embedder: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.DB)
	if err != nil {
		_ = emb.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	text := llm.NewClient(cfg.AI1.Host, cfg.AI1.Key.Value(), cfg.AI1.Model, cfg.AI1.Timeout)
	vision := llm.NewClient(cfg.AI2.Host, cfg.AI2.Key.Value(), cfg.AI2.Model, cfg.AI2.Timeout)
	analyzer := analysis.New(text, vision, emb, analysis.Config{Language: cfg.Language}, logger)

	idx, err := indexer.New(store, extract.New(logger), analyzer, indexer.Config{
		OutputDir: cfg.Output,
		Workers:   cfg.Workers,
	}, logger)
	if err != nil {
		_ = store.Close()
		_ = emb.Close()
		return nil, err
	}

	logger.Debug("pipeline ready",
		zap.String("db", cfg.DB),
		zap.String("driver", storage.DriverName),
		zap.String("embedder", emb.Provider()),
		zap.String("embedding_model", emb.Model()),
		zap.String("ai1_model", cfg.AI1.Model),
		zap.String("ai2_model", cfg.AI2.Model))

	return &pipeline{store: store, embedder: emb, indexer: idx}, nil
}

func (p *pipeline) Close() error {
	return errors.Join(p.store.Close(), p.embedder.Close())
}
