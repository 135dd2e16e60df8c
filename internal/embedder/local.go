//go:build cgo

package embedder

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/anush008/fastembed-go"
)

// LocalConfig configures the in-process ONNX embedder.
type LocalConfig struct {
	// Model is a friendly or fastembed model name. Defaults to all-MiniLM-L6-v2.
	Model string
	// CacheDir is where model files are downloaded. Defaults to ./local_cache.
	CacheDir string
	// MaxLength is the maximum input sequence length. Defaults to 512.
	MaxLength int
}

// localModels maps accepted model names to fastembed models.
var localModels = map[string]fastembed.EmbeddingModel{
	"all-MiniLM-L6-v2":                       fastembed.AllMiniLML6V2,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
	"fast-all-MiniLM-L6-v2":                  fastembed.AllMiniLML6V2,
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"fast-bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"fast-bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-small-zh-v1.5":                 fastembed.BGESmallZH,
	"fast-bge-small-zh-v1.5":                 fastembed.BGESmallZH,
}

// LocalProvider implements Embedder with a model loaded into the process.
type LocalProvider struct {
	model     *fastembed.FlagEmbedding
	modelName string
	cache     *Cache
	mu        sync.Mutex
}

// NewLocalProvider loads the model, downloading it into CacheDir on first use.
func NewLocalProvider(cfg LocalConfig, cache *Cache) (*LocalProvider, error) {
	name := cfg.Model
	if name == "" {
		name = DefaultModel
	}
	model, ok := localModels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, name)
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(".", "local_cache")
	}
	maxLength := cfg.MaxLength
	if maxLength == 0 {
		maxLength = 512
	}
	showProgress := false

	flagEmbed, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cacheDir,
		MaxLength:            maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: loading %s: %v", ErrInvalidConfig, name, err)
	}

	return &LocalProvider{
		model:     flagEmbed,
		modelName: name,
		cache:     cache,
	}, nil
}

func (p *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	hash := ComputeHash(p.modelName, req.Text)
	if emb, ok := p.cache.Get(hash); ok {
		return emb, nil
	}

	resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (p *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.model == nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: model is closed", ErrProviderFailed)
	}
	vectors, err := p.model.Embed(req.Texts, 32)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	if len(vectors) != len(req.Texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrProviderFailed, len(req.Texts), len(vectors))
	}

	embeddings := make([]*Embedding, len(vectors))
	for i, vec := range vectors {
		hash := ComputeHash(p.modelName, req.Texts[i])
		embeddings[i] = &Embedding{
			Vector:    vec,
			Dimension: len(vec),
			Provider:  ProviderLocal,
			Model:     p.modelName,
			Hash:      hash,
		}
		p.cache.Set(hash, embeddings[i])
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      p.modelName,
	}, nil
}

func (p *LocalProvider) Provider() string {
	return ProviderLocal
}

func (p *LocalProvider) Model() string {
	return p.modelName
}

func (p *LocalProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.model == nil {
		return nil
	}
	err := p.model.Destroy()
	p.model = nil
	return err
}
