// Package embedserver serves a local embedding model over an
// OpenAI-compatible HTTP API.
package embedserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/shareandimprove/archivist/internal/embedder"
)

// DefaultPort matches the default remote embedding host of the indexer.
const DefaultPort = 5001

const maxRequestBodySize = 4 << 20

type embeddingsRequest struct {
	Input json.RawMessage `json:"input"`
	Model string          `json:"model,omitempty"`
}

type embeddingData struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type usage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type embeddingsResponse struct {
	Object string          `json:"object"`
	Data   []embeddingData `json:"data"`
	Model  string          `json:"model"`
	Usage  usage           `json:"usage"`
}

// NewHandler returns the HTTP API backed by emb. A nil emb answers every
// embeddings request with 500.
func NewHandler(emb embedder.Embedder, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("embedserver")

	r := chi.NewRouter()
	r.Get("/health", handleHealth)
	r.Post("/v1/embeddings", handleEmbeddings(emb, logger))
	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleEmbeddings(emb embedder.Embedder, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if emb == nil {
			writeError(w, http.StatusInternalServerError, "Model not loaded")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer func() { _ = r.Body.Close() }()

		var req embeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		texts, err := parseInput(req.Input)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		resp, err := emb.GenerateBatch(r.Context(), embedder.BatchEmbeddingRequest{Texts: texts})
		if err != nil {
			logger.Error("embedding failed", zap.Int("texts", len(texts)), zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		out := embeddingsResponse{
			Object: "list",
			Data:   make([]embeddingData, len(resp.Embeddings)),
			Model:  emb.Model(),
		}
		for i, e := range resp.Embeddings {
			out.Data[i] = embeddingData{Object: "embedding", Index: i, Embedding: e.Vector}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// parseInput accepts a string or an array of strings.
func parseInput(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, errors.New("Missing 'input' field")
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return nil, errors.New("'input' must not be empty")
		}
		return []string{single}, nil
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, errors.New("'input' must be a string or an array of strings")
	}
	if len(many) == 0 {
		return nil, errors.New("'input' must not be empty")
	}
	for _, s := range many {
		if s == "" {
			return nil, errors.New("'input' must not contain empty strings")
		}
	}
	return many, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
