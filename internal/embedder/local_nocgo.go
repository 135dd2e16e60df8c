//go:build !cgo

package embedder

import "context"

// LocalConfig configures the in-process ONNX embedder.
type LocalConfig struct {
	Model     string
	CacheDir  string
	MaxLength int
}

// LocalProvider is unavailable without cgo; the ONNX runtime needs it.
type LocalProvider struct{}

// NewLocalProvider always fails in builds without cgo.
func NewLocalProvider(_ LocalConfig, _ *Cache) (*LocalProvider, error) {
	return nil, ErrLocalUnavailable
}

func (p *LocalProvider) GenerateEmbedding(context.Context, EmbeddingRequest) (*Embedding, error) {
	return nil, ErrLocalUnavailable
}

func (p *LocalProvider) GenerateBatch(context.Context, BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	return nil, ErrLocalUnavailable
}

func (p *LocalProvider) Provider() string { return ProviderLocal }

func (p *LocalProvider) Model() string { return "" }

func (p *LocalProvider) Close() error { return nil }
