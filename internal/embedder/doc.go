// Package embedder generates vector embeddings for analysed files.
//
// Two providers implement the Embedder interface:
//   - remote: any OpenAI-compatible /embeddings endpoint, one attempt per call
//     with a bounded timeout
//   - local: an ONNX model run in process through fastembed (cgo builds only)
//
// The provider is chosen once at startup with New and the same instance is
// passed to every consumer. Both providers share an LRU Cache keyed by model
// and text.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider:  embedder.ProviderRemote,
//	    BaseURL:   "https://api.openai.com/v1",
//	    APIKey:    key,
//	    Model:     "text-embedding-3-small",
//	    CacheSize: 1000,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "Physics optics, lenses Optics notes",
//	})
//
// An error from GenerateEmbedding means no vector was produced. It is never
// retried here.
package embedder
