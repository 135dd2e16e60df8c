package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Provider names
const (
	ProviderRemote = "remote"
	ProviderLocal  = "local"

	// DefaultModel is used when no model is configured.
	DefaultModel = "all-MiniLM-L6-v2"

	// DefaultRemoteTimeout bounds a single embeddings call.
	DefaultRemoteTimeout = 30 * time.Second
)

// RemoteProvider implements Embedder against an OpenAI-compatible
// /embeddings endpoint.
type RemoteProvider struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	cache      *Cache
}

// NewRemoteProvider creates an embedder that POSTs to baseURL + "/embeddings".
func NewRemoteProvider(baseURL, apiKey, model string, timeout time.Duration, cache *Cache) (*RemoteProvider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: remote embedding host is required", ErrInvalidConfig)
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}

	return &RemoteProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache: cache,
	}, nil
}

func (p *RemoteProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	hash := ComputeHash(p.model, req.Text)
	if emb, ok := p.cache.Get(hash); ok {
		return emb, nil
	}

	vectors, err := p.callAPI(ctx, req.Text)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: empty embedding in response", ErrProviderFailed)
	}

	emb := &Embedding{
		Vector:    vectors[0],
		Dimension: len(vectors[0]),
		Provider:  ProviderRemote,
		Model:     p.model,
		Hash:      hash,
	}
	p.cache.Set(hash, emb)
	return emb, nil
}

func (p *RemoteProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	vectors, err := p.callAPI(ctx, req.Texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(req.Texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrProviderFailed, len(req.Texts), len(vectors))
	}

	embeddings := make([]*Embedding, len(vectors))
	for i, vec := range vectors {
		if len(vec) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at index %d", ErrProviderFailed, i)
		}
		hash := ComputeHash(p.model, req.Texts[i])
		embeddings[i] = &Embedding{
			Vector:    vec,
			Dimension: len(vec),
			Provider:  ProviderRemote,
			Model:     p.model,
			Hash:      hash,
		}
		p.cache.Set(hash, embeddings[i])
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderRemote,
		Model:      p.model,
	}, nil
}

// callAPI sends input (a string or a slice of strings) and returns the
// vectors ordered by their response index.
func (p *RemoteProvider) callAPI(ctx context.Context, input any) ([][]float32, error) {
	body, err := json.Marshal(map[string]any{
		"model": p.model,
		"input": input,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: api call: %v", ErrProviderFailed, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: api error %d: %s", ErrProviderFailed, resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProviderFailed, err)
	}

	vectors := make([][]float32, len(apiResp.Data))
	for i, d := range apiResp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(vectors) || vectors[idx] != nil {
			idx = i
		}
		vectors[idx] = d.Embedding
	}
	return vectors, nil
}

func (p *RemoteProvider) Provider() string {
	return ProviderRemote
}

func (p *RemoteProvider) Model() string {
	return p.model
}

func (p *RemoteProvider) Close() error {
	if p.cache != nil {
		p.cache.Clear()
	}
	return nil
}
