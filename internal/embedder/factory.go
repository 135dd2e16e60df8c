package embedder

import (
	"fmt"
	"strings"
	"time"
)

// Config holds embedder configuration
type Config struct {
	Provider  string // "local" or "remote"
	BaseURL   string // remote only
	APIKey    string // remote only
	Model     string
	Timeout   time.Duration // remote only
	CacheDir  string        // local only
	CacheSize int
}

// New creates an embedder with explicit configuration. The choice is made
// once; callers share the returned instance.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	provider := strings.ToLower(cfg.Provider)
	switch provider {
	case ProviderRemote:
		p, err := NewRemoteProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Timeout, cache)
		if err != nil {
			return nil, err
		}
		return p, nil
	case ProviderLocal:
		p, err := NewLocalProvider(LocalConfig{Model: cfg.Model, CacheDir: cfg.CacheDir}, cache)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}
