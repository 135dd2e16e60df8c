package embedder

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is used when NewCache gets a non-positive size.
const DefaultCacheSize = 10000

// Cache is an LRU of embeddings keyed by ComputeHash. A nil *Cache is valid
// and never hits. Entries are copied on the way in and out so callers may
// mutate what they hold.
type Cache struct {
	lru *lru.Cache[string, *Embedding]
}

// NewCache creates a cache holding up to size embeddings.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	// lru.New only fails for non-positive sizes.
	l, _ := lru.New[string, *Embedding](size)
	return &Cache{lru: l}
}

// Get returns a copy of the embedding stored under key.
func (c *Cache) Get(key string) (*Embedding, bool) {
	if c == nil {
		return nil, false
	}
	emb, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return emb.Clone(), true
}

// Set stores a copy of emb under key, evicting the least recently used
// entry when the cache is full.
func (c *Cache) Set(key string, emb *Embedding) {
	if c == nil || emb == nil {
		return
	}
	c.lru.Add(key, emb.Clone())
}

// Size returns the number of cached embeddings.
func (c *Cache) Size() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// Clear removes every entry.
func (c *Cache) Clear() {
	if c != nil {
		c.lru.Purge()
	}
}

// ComputeHash is the cache key for text embedded by model. A NUL separates
// the two so ("ab", "c") and ("a", "bc") differ.
func ComputeHash(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
