// Package config loads archivist configuration from defaults, an optional
// YAML file, ARCHIVIST_ environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalid is returned by Validate for unusable configuration.
var ErrInvalid = errors.New("invalid configuration")

// Defaults
const (
	DefaultChatModel      = "gpt-4o"
	DefaultEmbeddingModel = "all-MiniLM-L6-v2"
	DefaultLanguage       = "English"
	DefaultWorkers        = 1
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
	DefaultChatTimeout    = 60 * time.Second
	DefaultEmbedTimeout   = 30 * time.Second
	DefaultCacheSize      = 1000
)

// Config is the complete archivist configuration.
type Config struct {
	Input  string `koanf:"input"`
	Output string `koanf:"output"`
	DB     string `koanf:"db"`

	// AI1 produces the metadata; AI2 transcribes images.
	AI1 Endpoint `koanf:"ai1"`
	AI2 Endpoint `koanf:"ai2"`

	Embedding EmbeddingConfig `koanf:"embedding"`

	Force    bool   `koanf:"force"`
	Workers  int    `koanf:"workers"`
	Language string `koanf:"language"`

	Log LogConfig `koanf:"log"`
}

// Endpoint is an OpenAI-compatible chat completion endpoint.
type Endpoint struct {
	Host    string        `koanf:"host"`
	Key     Secret        `koanf:"key"`
	Model   string        `koanf:"model"`
	Timeout time.Duration `koanf:"timeout"`
}

// EmbeddingConfig selects the local or remote embedder.
type EmbeddingConfig struct {
	Local     bool          `koanf:"local"`
	Host      string        `koanf:"host"`
	Key       Secret        `koanf:"key"`
	Model     string        `koanf:"model"`
	Timeout   time.Duration `koanf:"timeout"`
	CacheDir  string        `koanf:"cache_dir"`
	CacheSize int           `koanf:"cache_size"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// applyDefaults fills unset values. Endpoint hosts are normalized here so
// every consumer sees the same base URL.
func applyDefaults(cfg *Config) {
	for _, ep := range []*Endpoint{&cfg.AI1, &cfg.AI2} {
		if ep.Model == "" {
			ep.Model = DefaultChatModel
		}
		if ep.Timeout == 0 {
			ep.Timeout = DefaultChatTimeout
		}
		ep.Host = NormalizeHost(ep.Host)
	}

	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = DefaultEmbeddingModel
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = DefaultEmbedTimeout
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = DefaultCacheSize
	}
	if !cfg.Embedding.Local {
		if cfg.Embedding.Host == "" {
			cfg.Embedding.Host = cfg.AI1.Host
		}
		if !cfg.Embedding.Key.IsSet() {
			cfg.Embedding.Key = cfg.AI1.Key
		}
	}
	cfg.Embedding.Host = NormalizeHost(cfg.Embedding.Host)

	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

// NormalizeHost trims trailing slashes and appends /v1 when missing.
// An empty host stays empty.
func NormalizeHost(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		return ""
	}
	if !strings.HasSuffix(host, "/v1") {
		host += "/v1"
	}
	return host
}

// Validate checks everything an index run needs.
func (c *Config) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("%w: input directory is required", ErrInvalid)
	}
	return c.ValidatePipeline()
}

// ValidatePipeline checks everything except the input directory, which MCP
// clients supply per call.
func (c *Config) ValidatePipeline() error {
	if c.Output == "" {
		return fmt.Errorf("%w: output directory is required", ErrInvalid)
	}
	if err := c.ValidateStore(); err != nil {
		return err
	}
	if err := c.AI1.validate("ai1"); err != nil {
		return err
	}
	if err := c.AI2.validate("ai2"); err != nil {
		return err
	}
	if !c.Embedding.Local && c.Embedding.Host == "" {
		return fmt.Errorf("%w: embedding host is required unless embedding.local is set", ErrInvalid)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalid)
	}
	return nil
}

// ValidateStore checks the database path only.
func (c *Config) ValidateStore() error {
	if c.DB == "" {
		return fmt.Errorf("%w: database path is required", ErrInvalid)
	}
	return nil
}

func (e Endpoint) validate(name string) error {
	if e.Host == "" {
		return fmt.Errorf("%w: %s host is required", ErrInvalid, name)
	}
	if !e.Key.IsSet() {
		return fmt.Errorf("%w: %s key is required", ErrInvalid, name)
	}
	return nil
}
