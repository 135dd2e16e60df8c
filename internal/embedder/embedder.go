package embedder

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrProviderFailed   = errors.New("embedding provider failed")
	ErrUnsupportedModel = errors.New("unsupported model")
	ErrEmptyText        = errors.New("text cannot be empty")
	ErrInvalidConfig    = errors.New("invalid embedder configuration")
	// ErrLocalUnavailable is returned when the binary was built without
	// support for in-process models.
	ErrLocalUnavailable = errors.New("local embedding model not available in this build")
)

// Embedding is one vector and where it came from.
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Hash      string // cache key, see ComputeHash
}

// Clone returns a copy that shares no memory with e.
func (e *Embedding) Clone() *Embedding {
	c := *e
	c.Vector = append([]float32(nil), e.Vector...)
	return &c
}

// EmbeddingRequest asks for the vector of a single text.
type EmbeddingRequest struct {
	Text string
}

// BatchEmbeddingRequest asks for the vectors of several texts.
type BatchEmbeddingRequest struct {
	Texts []string
}

// BatchEmbeddingResponse holds one embedding per requested text, in order.
type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Embedder turns text into vectors. An error means "no embedding"; callers
// decide whether that is fatal.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)
	// GenerateBatch returns embeddings in input order.
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)
	Provider() string
	Model() string
	Close() error
}

// ValidateRequest rejects empty text.
func ValidateRequest(req EmbeddingRequest) error {
	if req.Text == "" {
		return ErrEmptyText
	}
	return nil
}

// ValidateBatchRequest rejects empty batches and empty elements.
func ValidateBatchRequest(req BatchEmbeddingRequest) error {
	if len(req.Texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	for i, text := range req.Texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}
	return nil
}
